// Package dataset parses uploaded tabular files into a frame whose ds column
// is coerced to dates.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	errx "github.com/retailchat-ai/server/internal/core/error"
)

const (
	DateColumn  = "ds"
	ValueColumn = "y"

	dateLayout = "2006-01-02"
	timeLayout = "2006-01-02 15:04:05"
)

var dateLayouts = []string{
	dateLayout,
	timeLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"2006-01",
}

// Frame is a parsed table. Dates holds the coerced ds value of every row.
type Frame struct {
	Header []string
	Rows   [][]string
	Dates  []time.Time
}

// ParseDate coerces a ds cell using the accepted layouts.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// ParseCSV reads a CSV with a header row. The ds column is required and every
// row must hold a parseable date in it.
func ParseCSV(r io.Reader) (*Frame, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errx.Validation("the uploaded file is empty", err)
	}
	if err != nil {
		return nil, errx.Validation("the uploaded file is not valid CSV", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	f := &Frame{Header: header}
	dsIdx := f.Index(DateColumn)
	if dsIdx < 0 {
		return nil, errx.Validation(fmt.Sprintf("the uploaded data has no %q column", DateColumn), nil)
	}

	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, errx.Validation(fmt.Sprintf("the uploaded file is not valid CSV at line %d", line), err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		if len(rec) != len(header) {
			return nil, errx.Validation(fmt.Sprintf("line %d has %d fields, expected %d", line, len(rec), len(header)), nil)
		}
		d, err := ParseDate(rec[dsIdx])
		if err != nil {
			return nil, errx.Validation(fmt.Sprintf("column %q has a malformed date at line %d", DateColumn, line), err)
		}
		f.Rows = append(f.Rows, rec)
		f.Dates = append(f.Dates, d)
	}
	return f, nil
}

// Index returns the position of column name, or -1.
func (f *Frame) Index(name string) int {
	for i, h := range f.Header {
		if strings.EqualFold(h, name) {
			return i
		}
	}
	return -1
}

func (f *Frame) Len() int { return len(f.Rows) }

// Float returns column name parsed as finite numbers.
func (f *Frame) Float(name string) ([]float64, error) {
	idx := f.Index(name)
	if idx < 0 {
		return nil, errx.Validation(fmt.Sprintf("the uploaded data has no %q column", name), nil)
	}
	out := make([]float64, len(f.Rows))
	for i, row := range f.Rows {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[idx]), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errx.Validation(fmt.Sprintf("column %q has a non-numeric value at row %d", name, i+1), err)
		}
		out[i] = v
	}
	return out, nil
}

// WriteCSV writes the frame back with ds normalised.
func (f *Frame) WriteCSV(w io.Writer) error {
	dsIdx := f.Index(DateColumn)
	layout := dateLayout
	for _, d := range f.Dates {
		if d.Hour() != 0 || d.Minute() != 0 || d.Second() != 0 {
			layout = timeLayout
			break
		}
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(f.Header); err != nil {
		return err
	}
	for i, row := range f.Rows {
		out := append([]string(nil), row...)
		if dsIdx >= 0 {
			out[dsIdx] = f.Dates[i].Format(layout)
		}
		if err := cw.Write(out); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
