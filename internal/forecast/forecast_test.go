package forecast

import (
	"bytes"
	"errors"
	"image/png"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	errx "github.com/retailchat-ai/server/internal/core/error"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func dailySeries(n int, f func(i int) float64) ([]time.Time, []float64) {
	dates := make([]time.Time, n)
	ys := make([]float64, n)
	for i := 0; i < n; i++ {
		dates[i] = start.AddDate(0, 0, i)
		ys[i] = f(i)
	}
	return dates, ys
}

func seasonalNoise(i int) float64 {
	return 100 + 0.5*float64(i) + 10*math.Sin(2*math.Pi*float64(i)/7) + float64((i*37)%11) - 5
}

func TestRunHistoryJoinedWithHorizon(t *testing.T) {
	dates, ys := dailySeries(60, seasonalNoise)

	res, err := Run(dates, ys, Options{})
	require.NoError(t, err)
	require.Len(t, res.Rows, 90)

	hist := res.History()
	require.Len(t, hist, 60)
	for i, row := range hist {
		assert.True(t, row.Date.Equal(dates[i]))
		assert.Equal(t, ys[i], *row.Actual)
		assert.LessOrEqual(t, row.Lower, row.Predicted)
		assert.GreaterOrEqual(t, row.Upper, row.Predicted)
	}
	for k, row := range res.Rows[60:] {
		assert.Nil(t, row.Actual)
		assert.True(t, row.Date.Equal(dates[59].AddDate(0, 0, k+1)))
	}
}

func TestRunIsDeterministic(t *testing.T) {
	dates, ys := dailySeries(45, seasonalNoise)
	a, err := Run(dates, ys, Options{})
	require.NoError(t, err)
	b, err := Run(dates, ys, Options{})
	require.NoError(t, err)
	assert.Equal(t, a.Metrics, b.Metrics)
	assert.Equal(t, a.Alerts, b.Alerts)
}

func TestMetricsRoundedToFourDecimals(t *testing.T) {
	dates, ys := dailySeries(30, seasonalNoise)
	res, err := Run(dates, ys, Options{})
	require.NoError(t, err)
	for _, v := range []float64{res.Metrics.MAE, res.Metrics.MSE, res.Metrics.RMSE} {
		assert.InDelta(t, v, math.Round(v*1e4)/1e4, 1e-12)
	}
	assert.Greater(t, res.Metrics.MAE, 0.0)
}

func TestPerfectFitHasNoAlerts(t *testing.T) {
	dates, ys := dailySeries(20, func(i int) float64 { return 2*float64(i) + 5 })
	res, err := Run(dates, ys, Options{})
	require.NoError(t, err)

	assert.Equal(t, Alerts{}, res.Alerts)
	summary := res.Summary()
	assert.Contains(t, summary, "above the upper bound: 0.")
	assert.Contains(t, summary, "below the lower bound: 0.")
	assert.Contains(t, summary, "85% prediction interval")
}

func TestSpikeRaisesAboveAlert(t *testing.T) {
	dates, ys := dailySeries(60, func(i int) float64 { return 10 + float64(i%3) })
	ys[30] = 1000
	res, err := Run(dates, ys, Options{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Alerts.Above, 1)
}

func TestRunUnsortedInputIsSorted(t *testing.T) {
	dates, ys := dailySeries(10, func(i int) float64 { return float64(i) })
	dates[0], dates[9] = dates[9], dates[0]
	ys[0], ys[9] = ys[9], ys[0]

	res, err := Run(dates, ys, Options{})
	require.NoError(t, err)
	assert.True(t, res.Rows[0].Date.Equal(start))
	assert.Equal(t, 0.0, *res.Rows[0].Actual)
}

func TestFrequencyIsHonored(t *testing.T) {
	dates, ys := dailySeries(10, func(i int) float64 { return float64(i) })
	last := dates[9]

	weekly, err := Run(dates, ys, Options{Frequency: Weekly})
	require.NoError(t, err)
	assert.True(t, weekly.Rows[10].Date.Equal(last.AddDate(0, 0, 7)))
	assert.True(t, weekly.Rows[39].Date.Equal(last.AddDate(0, 0, 7*30)))

	monthly, err := Run(dates, ys, Options{Frequency: Monthly})
	require.NoError(t, err)
	assert.True(t, monthly.Rows[10].Date.Equal(last.AddDate(0, 1, 0)))
}

func TestDuplicateDatesAreTotalled(t *testing.T) {
	dates, ys := dailySeries(20, func(i int) float64 { return float64(10 + i) })
	dates = append(dates, dates[3], dates[3], dates[7])
	ys = append(ys, 1, 2, 5)

	res, err := Run(dates, ys, Options{})
	require.NoError(t, err)
	require.Len(t, res.Rows, 20+DefaultHorizon)

	hist := res.History()
	require.Len(t, hist, 20)
	assert.Equal(t, 13.0+1+2, *hist[3].Actual)
	assert.Equal(t, 17.0+5, *hist[7].Actual)
	for i := 1; i < len(res.Rows); i++ {
		assert.True(t, res.Rows[i].Date.After(res.Rows[i-1].Date))
	}
}

func TestMonthlyStepClampsToMonthEnd(t *testing.T) {
	jan31 := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		k    int
		want time.Time
	}{
		{1, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)},
		{2, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)},
		{3, time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC)},
		{13, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Monthly.Step(jan31, tt.k), "k=%d", tt.k)
	}
	assert.Equal(t, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC), Monthly.Step(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), 1))
}

func TestParseFrequency(t *testing.T) {
	assert.Equal(t, Daily, ParseFrequency(""))
	assert.Equal(t, Daily, ParseFrequency("hourly"))
	assert.Equal(t, Weekly, ParseFrequency(" Weekly "))
	assert.Equal(t, Monthly, ParseFrequency("MONTHLY"))
}

func TestValidationVersusModelFit(t *testing.T) {
	_, err := Run([]time.Time{start}, []float64{1}, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errx.ErrValidation))
	assert.False(t, errors.Is(err, errx.ErrModelFit))

	_, err = Run([]time.Time{start, start, start}, []float64{1, 2, 3}, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errx.ErrModelFit))
	assert.False(t, errors.Is(err, errx.ErrValidation))

	_, err = Run([]time.Time{start}, []float64{1, 2}, Options{})
	assert.True(t, errors.Is(err, errx.ErrValidation))
}

func TestRenderPNG(t *testing.T) {
	dates, ys := dailySeries(20, seasonalNoise)
	res, err := Run(dates, ys, Options{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, RenderPNG(res, &buf))
	cfg, err := png.DecodeConfig(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Greater(t, cfg.Width, cfg.Height)
}

func TestWriteXLSX(t *testing.T) {
	dates, ys := dailySeries(20, seasonalNoise)
	res, err := Run(dates, ys, Options{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(res, &buf))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(tableSheet)
	require.NoError(t, err)
	require.Len(t, rows, 51)
	assert.Equal(t, []string{"Date", "y", "yhat", "yhat_lower", "yhat_upper"}, rows[0])
	assert.Equal(t, "2024-01-01", rows[1][0])

	mae, err := f.GetCellValue(metricsSheet, "A1")
	require.NoError(t, err)
	assert.Equal(t, "mae", mae)
}
