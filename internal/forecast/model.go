// Package forecast fits an additive trend plus seasonality model to a time
// series and extends it over a future horizon with a prediction interval.
package forecast

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	errx "github.com/retailchat-ai/server/internal/core/error"
)

const (
	DefaultHorizon  = 30
	DefaultInterval = 0.85
)

type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

// ParseFrequency maps user input to a frequency; unknown values are daily.
func ParseFrequency(s string) Frequency {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "weekly", "week", "w":
		return Weekly
	case "monthly", "month", "m":
		return Monthly
	default:
		return Daily
	}
}

// Step returns t moved k periods forward.
func (f Frequency) Step(t time.Time, k int) time.Time {
	switch f {
	case Weekly:
		return t.AddDate(0, 0, 7*k)
	case Monthly:
		return addMonths(t, k)
	default:
		return t.AddDate(0, 0, k)
	}
}

// addMonths moves t k months forward, clamping the day to the end of the
// target month so Jan 31 steps to Feb 28/29 instead of rolling into March.
func addMonths(t time.Time, k int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	target := first.AddDate(0, k, 0)
	last := target.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > last {
		day = last
	}
	return target.AddDate(0, 0, day-1)
}

func (f Frequency) unitDays() float64 {
	switch f {
	case Weekly:
		return 7
	case Monthly:
		return 365.25 / 12
	default:
		return 1
	}
}

// season returns the seasonal bucket of t and the number of buckets.
func (f Frequency) season(t time.Time) (int, int) {
	switch f {
	case Weekly:
		return ((t.YearDay() - 1) / 7) % 52, 52
	case Monthly:
		return int(t.Month()) - 1, 12
	default:
		return int(t.Weekday()), 7
	}
}

type Options struct {
	Frequency Frequency
	Horizon   int
	Interval  float64
}

func (o Options) withDefaults() Options {
	if o.Frequency == "" {
		o.Frequency = Daily
	}
	if o.Horizon <= 0 {
		o.Horizon = DefaultHorizon
	}
	if o.Interval <= 0 || o.Interval >= 1 {
		o.Interval = DefaultInterval
	}
	return o
}

// Model is a fitted linear trend with an optional seasonal offset per bucket.
type Model struct {
	freq     Frequency
	origin   time.Time
	alpha    float64
	beta     float64
	seasonal []float64
	margin   float64
}

func (m *Model) x(t time.Time) float64 {
	return t.Sub(m.origin).Hours() / 24 / m.freq.unitDays()
}

// Predict returns the point estimate and interval bounds at t.
func (m *Model) Predict(t time.Time) (yhat, lower, upper float64) {
	yhat = m.alpha + m.beta*m.x(t)
	if m.seasonal != nil {
		b, _ := m.freq.season(t)
		yhat += m.seasonal[b]
	}
	return yhat, yhat - m.margin, yhat + m.margin
}

// Fit fits the model to observations sorted by date.
func Fit(dates []time.Time, ys []float64, opts Options) (*Model, error) {
	opts = opts.withDefaults()
	n := len(ys)
	if n < 2 {
		return nil, errx.Validation("at least 2 rows are required to fit a forecast", nil)
	}
	if dates[0].Equal(dates[n-1]) {
		return nil, errx.ModelFit("the series needs at least two distinct dates", nil)
	}

	m := &Model{freq: opts.Frequency, origin: dates[0]}
	xs := make([]float64, n)
	for i, d := range dates {
		xs[i] = m.x(d)
	}
	m.alpha, m.beta = stat.LinearRegression(xs, ys, nil, false)
	if !finite(m.alpha) || !finite(m.beta) {
		return nil, errx.ModelFit("the trend could not be estimated", fmt.Errorf("alpha=%v beta=%v", m.alpha, m.beta))
	}

	resid := make([]float64, n)
	for i := range ys {
		resid[i] = ys[i] - (m.alpha + m.beta*xs[i])
	}

	// seasonality needs two full cycles to be told apart from noise
	if _, period := m.freq.season(dates[0]); n >= 2*period {
		sums := make([]float64, period)
		counts := make([]int, period)
		for i, d := range dates {
			b, _ := m.freq.season(d)
			sums[b] += resid[i]
			counts[b]++
		}
		m.seasonal = make([]float64, period)
		for b := range sums {
			if counts[b] > 0 {
				m.seasonal[b] = sums[b] / float64(counts[b])
			}
		}
		for i, d := range dates {
			b, _ := m.freq.season(d)
			resid[i] -= m.seasonal[b]
		}
	}

	dof := n - 2
	if dof < 1 {
		dof = 1
	}
	sigma := math.Sqrt(floats.Dot(resid, resid) / float64(dof))
	z := distuv.UnitNormal.Quantile(0.5 + opts.Interval/2)
	m.margin = z * sigma
	if !finite(m.margin) {
		return nil, errx.ModelFit("the prediction interval could not be estimated", nil)
	}
	return m, nil
}

type Row struct {
	Date      time.Time `json:"date"`
	Actual    *float64  `json:"actual,omitempty"`
	Predicted float64   `json:"predicted"`
	Lower     float64   `json:"predicted_lower"`
	Upper     float64   `json:"predicted_upper"`
}

type Metrics struct {
	MAE  float64 `json:"mae"`
	MSE  float64 `json:"mse"`
	RMSE float64 `json:"rmse"`
}

type Alerts struct {
	Above int `json:"above_upper"`
	Below int `json:"below_lower"`
}

type Result struct {
	Frequency Frequency `json:"frequency"`
	Horizon   int       `json:"horizon"`
	Interval  float64   `json:"interval"`
	Rows      []Row     `json:"rows"`
	Metrics   Metrics   `json:"metrics"`
	Alerts    Alerts    `json:"alerts"`
}

type observation struct {
	date time.Time
	y    float64
}

// Run fits the series and returns history joined with predictions followed by
// the future horizon.
func Run(dates []time.Time, ys []float64, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if len(dates) != len(ys) {
		return nil, errx.Validation("ds and y have different lengths", nil)
	}

	if len(ys) < 2 {
		return nil, errx.Validation("at least 2 rows are required to fit a forecast", nil)
	}

	obs := collapse(dates, ys)
	if len(obs) < 2 {
		return nil, errx.ModelFit("the series needs at least two distinct dates", nil)
	}
	sd := make([]time.Time, len(obs))
	sy := make([]float64, len(obs))
	for i, o := range obs {
		sd[i], sy[i] = o.date, o.y
	}

	m, err := Fit(sd, sy, opts)
	if err != nil {
		return nil, err
	}

	res := &Result{Frequency: opts.Frequency, Horizon: opts.Horizon, Interval: opts.Interval}
	res.Rows = make([]Row, 0, len(obs)+opts.Horizon)
	for _, o := range obs {
		yhat, lo, hi := m.Predict(o.date)
		actual := o.y
		res.Rows = append(res.Rows, Row{Date: o.date, Actual: &actual, Predicted: yhat, Lower: lo, Upper: hi})
	}
	last := sd[len(sd)-1]
	for k := 1; k <= opts.Horizon; k++ {
		d := opts.Frequency.Step(last, k)
		yhat, lo, hi := m.Predict(d)
		res.Rows = append(res.Rows, Row{Date: d, Predicted: yhat, Lower: lo, Upper: hi})
	}

	res.Metrics = evaluate(res.Rows)
	res.Alerts = countAlerts(res.Rows)
	return res, nil
}

// collapse sorts the observations by date and totals rows sharing a date.
func collapse(dates []time.Time, ys []float64) []observation {
	obs := make([]observation, len(ys))
	for i := range ys {
		obs[i] = observation{date: dates[i], y: ys[i]}
	}
	sort.SliceStable(obs, func(i, j int) bool { return obs[i].date.Before(obs[j].date) })

	out := obs[:0]
	for _, o := range obs {
		if n := len(out); n > 0 && out[n-1].date.Equal(o.date) {
			out[n-1].y += o.y
			continue
		}
		out = append(out, o)
	}
	return out
}

func evaluate(rows []Row) Metrics {
	var absSum, sqSum float64
	n := 0
	for _, r := range rows {
		if r.Actual == nil {
			continue
		}
		e := *r.Actual - r.Predicted
		absSum += math.Abs(e)
		sqSum += e * e
		n++
	}
	if n == 0 {
		return Metrics{}
	}
	mse := sqSum / float64(n)
	return Metrics{
		MAE:  round4(absSum / float64(n)),
		MSE:  round4(mse),
		RMSE: round4(math.Sqrt(mse)),
	}
}

func countAlerts(rows []Row) Alerts {
	var a Alerts
	for _, r := range rows {
		if r.Actual == nil {
			continue
		}
		if *r.Actual > r.Upper+tolerance(r.Upper) {
			a.Above++
		}
		if *r.Actual < r.Lower-tolerance(r.Lower) {
			a.Below++
		}
	}
	return a
}

// History returns the rows that carry an actual value.
func (r *Result) History() []Row {
	out := make([]Row, 0, len(r.Rows))
	for _, row := range r.Rows {
		if row.Actual != nil {
			out = append(out, row)
		}
	}
	return out
}

// Summary renders the alert counts and error metrics for the primary model.
func (r *Result) Summary() string {
	return fmt.Sprintf(
		"A %s forecast was generated for the next %d periods with a %d%% prediction interval. "+
			"Number of actual values above the upper bound: %d. "+
			"Number of actual values below the lower bound: %d. "+
			"Mean absolute error: %.4f. Mean squared error: %.4f. Root mean squared error: %.4f.",
		r.Frequency, r.Horizon, int(math.Round(r.Interval*100)),
		r.Alerts.Above, r.Alerts.Below,
		r.Metrics.MAE, r.Metrics.MSE, r.Metrics.RMSE,
	)
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

func tolerance(v float64) float64 {
	return 1e-9 * math.Max(1, math.Abs(v))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
