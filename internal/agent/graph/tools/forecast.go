package tools

import (
	"context"
	"errors"
	"io"
	"io/fs"

	"github.com/spf13/afero"

	"github.com/retailchat-ai/server/internal/agent/model"
	"github.com/retailchat-ai/server/internal/agent/session"
	"github.com/retailchat-ai/server/internal/assets"
	errx "github.com/retailchat-ai/server/internal/core/error"
	"github.com/retailchat-ai/server/internal/dataset"
	"github.com/retailchat-ai/server/internal/forecast"
)

// ===================================
// Forecast Generator
// ===================================

type ForecastExecutor struct {
	fs     afero.Fs
	assets *assets.Store
}

func (e *ForecastExecutor) Run(ctx context.Context, call ForecastCall) (model.ToolResult, error) {
	sess, err := sessionFrom(ctx)
	if err != nil {
		return model.ToolResult{}, err
	}

	f, err := e.fs.Open(sess.Slots.Tabular)
	if errors.Is(err, fs.ErrNotExist) {
		return model.ToolResult{}, errx.Validation("no CSV file has been uploaded; upload one with ds and y columns", err)
	}
	if err != nil {
		return model.ToolResult{}, errx.Internal("the uploaded CSV file could not be opened", err)
	}
	defer f.Close()

	frame, err := dataset.ParseCSV(f)
	if err != nil {
		return model.ToolResult{}, err
	}
	ys, err := frame.Float(dataset.ValueColumn)
	if err != nil {
		return model.ToolResult{}, err
	}

	res, err := forecast.Run(frame.Dates, ys, forecast.Options{Frequency: call.Frequency})
	if err != nil {
		return model.ToolResult{}, err
	}

	chart, err := e.assets.Save(model.ArtifactChart, "forecast", ".png", func(w io.Writer) error {
		return forecast.RenderPNG(res, w)
	})
	if err != nil {
		return model.ToolResult{}, errx.Internal("the forecast chart could not be saved", err)
	}
	table, err := e.assets.Save(model.ArtifactTable, "forecast", ".xlsx", func(w io.Writer) error {
		return forecast.WriteXLSX(res, w)
	})
	if err != nil {
		return model.ToolResult{}, errx.Internal("the forecast table could not be saved", err)
	}

	return model.ToolResult{
		Tool:      NameForecast,
		Summary:   res.Summary(),
		Artifacts: []model.Artifact{chart, table},
	}, nil
}

func sessionFrom(ctx context.Context) (*session.Context, error) {
	sess, ok := session.FromContext(ctx)
	if !ok {
		return nil, errx.Internal("no session attached to the request", nil)
	}
	return sess, nil
}
