package dataset

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/retailchat-ai/server/internal/core/error"
)

func TestParseCSVCoercesDates(t *testing.T) {
	in := "ds,y\n2024-01-01,10\n01/02/2024,11.5\n2024/01/03,12\n"
	f, err := ParseCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Equal(t, 3, f.Len())

	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), f.Dates[1])
	ys, err := f.Float("y")
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 11.5, 12}, ys)

	var buf bytes.Buffer
	require.NoError(t, f.WriteCSV(&buf))
	assert.Equal(t, "ds,y\n2024-01-01,10\n2024-01-02,11.5\n2024-01-03,12\n", buf.String())
}

func TestParseCSVErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{name: "empty", in: ""},
		{name: "missing ds", in: "date,y\n2024-01-01,1\n"},
		{name: "malformed date", in: "ds,y\nyesterday,1\n"},
		{name: "ragged row", in: "ds,y\n2024-01-01\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCSV(strings.NewReader(tt.in))
			require.Error(t, err)
			assert.True(t, errors.Is(err, errx.ErrValidation))
		})
	}
}

func TestFloatRejectsNonNumeric(t *testing.T) {
	f, err := ParseCSV(strings.NewReader("ds,y\n2024-01-01,abc\n"))
	require.NoError(t, err)

	_, err = f.Float("y")
	assert.True(t, errors.Is(err, errx.ErrValidation))

	_, err = f.Float("sales")
	assert.True(t, errors.Is(err, errx.ErrValidation))
}

func TestHeaderBOMAndCase(t *testing.T) {
	f, err := ParseCSV(strings.NewReader("\ufeffDS,Y\n2024-03-01 08:30:00,4\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, f.Index("ds"))

	var buf bytes.Buffer
	require.NoError(t, f.WriteCSV(&buf))
	assert.Contains(t, buf.String(), "2024-03-01 08:30:00")
}
