// Package ingest validates uploaded files and persists them to the session's
// upload slots.
package ingest

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/spf13/afero"

	"github.com/retailchat-ai/server/internal/agent/session"
	errx "github.com/retailchat-ai/server/internal/core/error"
	"github.com/retailchat-ai/server/internal/dataset"
	logx "github.com/retailchat-ai/server/pkg/logger"
)

// Config is processed by envconfig under the UPLOAD_ prefix.
type Config struct {
	Dir string `default:"/tmp/retailchat/uploads"`
}

type Kind string

const (
	KindTabular Kind = "tabular"
	KindImage   Kind = "image"
)

// Allowed lists accepted extensions, in the order shown to users.
var Allowed = []string{".csv", ".txt", ".png", ".jpg", ".jpeg"}

var kinds = map[string]Kind{
	".csv":  KindTabular,
	".txt":  KindTabular,
	".png":  KindImage,
	".jpg":  KindImage,
	".jpeg": KindImage,
}

// Validate checks the filename's extension against the allow-list.
func Validate(filename string) (bool, string) {
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := kinds[ext]; !ok {
		return false, fmt.Sprintf("Error: Invalid file type: %s. Only %v files are allowed.", ext, Allowed)
	}
	return true, fmt.Sprintf("File type %s is valid.", ext)
}

// KindOf returns the modality of an accepted filename.
func KindOf(filename string) (Kind, bool) {
	k, ok := kinds[strings.ToLower(filepath.Ext(filename))]
	return k, ok
}

type Upload struct {
	Filename string `json:"filename"`
	Kind     Kind   `json:"kind"`
	Path     string `json:"-"`
	Rows     int    `json:"rows,omitempty"`
}

type Ingestor struct {
	fs afero.Fs
}

func New(fs afero.Fs) *Ingestor {
	return &Ingestor{fs: fs}
}

// Ingest validates, decodes and persists payload into the matching slot,
// replacing whatever the slot held.
func (in *Ingestor) Ingest(ctx context.Context, slots session.Slots, filename, payload string) (*Upload, error) {
	ok, reason := Validate(filename)
	if !ok {
		return nil, errx.Validation(reason, nil)
	}
	kind, _ := KindOf(filename)

	raw, err := DecodePayload(payload)
	if err != nil {
		return nil, err
	}
	if err := in.fs.MkdirAll(slots.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	up := &Upload{Filename: filename, Kind: kind}
	switch kind {
	case KindTabular:
		up.Path = slots.Tabular
		up.Rows, err = in.storeTabular(slots.Tabular, raw)
	case KindImage:
		up.Path = slots.Image
		err = in.storeImage(slots.Image, raw)
	}
	if err != nil {
		return nil, err
	}

	logx.Info().
		Str("filename", filename).
		Str("kind", string(kind)).
		Str("path", up.Path).
		Int("rows", up.Rows).
		Msg("upload stored")
	return up, nil
}

// DecodePayload accepts raw base64 or a data URL.
func DecodePayload(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "data:") {
		if i := strings.IndexByte(payload, ','); i >= 0 {
			payload = payload[i+1:]
		}
	}
	payload = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, payload)
	if payload == "" {
		return nil, errx.Validation("the uploaded file is empty", nil)
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if raw, err = base64.RawStdEncoding.DecodeString(payload); err != nil {
			return nil, errx.Validation("the uploaded file is not valid base64", err)
		}
	}
	return raw, nil
}

func (in *Ingestor) storeTabular(path string, raw []byte) (int, error) {
	if !utf8.Valid(raw) {
		return 0, errx.Validation("the uploaded data is not UTF-8 text", nil)
	}
	frame, err := dataset.ParseCSV(bytes.NewReader(raw))
	if err != nil {
		return 0, err
	}
	var buf bytes.Buffer
	if err := frame.WriteCSV(&buf); err != nil {
		return 0, fmt.Errorf("normalise csv: %w", err)
	}
	if err := afero.WriteFile(in.fs, path, buf.Bytes(), 0o644); err != nil {
		return 0, fmt.Errorf("write tabular slot: %w", err)
	}
	return frame.Len(), nil
}

func (in *Ingestor) storeImage(path string, raw []byte) error {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return errx.Validation("the uploaded image could not be decoded", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encode image: %w", err)
	}
	if err := afero.WriteFile(in.fs, path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write image slot: %w", err)
	}
	return nil
}
