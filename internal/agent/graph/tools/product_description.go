package tools

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"io/fs"
	"strings"

	"github.com/spf13/afero"

	"github.com/retailchat-ai/server/internal/agent/model"
	"github.com/retailchat-ai/server/internal/assets"
	errx "github.com/retailchat-ai/server/internal/core/error"
)

// ===================================
// Product Description Generator
// ===================================

// Captioner turns a base64 image into text.
type Captioner interface {
	Caption(ctx context.Context, imageBase64, prompt string) (string, error)
}

type DescriptionExecutor struct {
	fs        afero.Fs
	assets    *assets.Store
	captioner Captioner
}

func (e *DescriptionExecutor) Run(ctx context.Context, call ProductDescriptionCall) (model.ToolResult, error) {
	sess, err := sessionFrom(ctx)
	if err != nil {
		return model.ToolResult{}, err
	}

	raw, err := afero.ReadFile(e.fs, sess.Slots.Image)
	if errors.Is(err, fs.ErrNotExist) {
		return model.ToolResult{}, errx.Upstream("no product image has been uploaded", err)
	}
	if err != nil {
		return model.ToolResult{}, errx.Upstream("the product image could not be read", err)
	}

	text, err := e.captioner.Caption(ctx, base64.StdEncoding.EncodeToString(raw), strings.TrimSpace(call.Prompt))
	if err != nil {
		return model.ToolResult{}, err
	}

	display, err := e.assets.Save(model.ArtifactImage, "display", ".png", func(w io.Writer) error {
		_, err := io.Copy(w, bytes.NewReader(raw))
		return err
	})
	if err != nil {
		return model.ToolResult{}, errx.Internal("the display image could not be saved", err)
	}

	return model.ToolResult{
		Tool:      NameDescription,
		Summary:   text,
		Artifacts: []model.Artifact{display},
	}, nil
}
