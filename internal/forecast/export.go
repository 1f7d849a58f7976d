package forecast

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	tableSheet   = "Forecast"
	metricsSheet = "Metrics"
)

// WriteXLSX exports the forecast table and its metrics as a workbook.
func WriteXLSX(r *Result, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", tableSheet); err != nil {
		return err
	}
	header := []any{"Date", "y", "yhat", "yhat_lower", "yhat_upper"}
	if err := f.SetSheetRow(tableSheet, "A1", &header); err != nil {
		return err
	}
	for i, row := range r.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		var actual any = ""
		if row.Actual != nil {
			actual = *row.Actual
		}
		values := []any{row.Date.Format("2006-01-02"), actual, row.Predicted, row.Lower, row.Upper}
		if err := f.SetSheetRow(tableSheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	if _, err := f.NewSheet(metricsSheet); err != nil {
		return err
	}
	metrics := [][]any{
		{"mae", r.Metrics.MAE},
		{"mse", r.Metrics.MSE},
		{"rmse", r.Metrics.RMSE},
		{"above_upper", r.Alerts.Above},
		{"below_lower", r.Alerts.Below},
	}
	for i, m := range metrics {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(metricsSheet, cell, &m); err != nil {
			return err
		}
	}
	return f.Write(w)
}
