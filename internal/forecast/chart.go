package forecast

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var (
	colorActual    = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	colorPredicted = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	colorBound     = color.RGBA{R: 150, G: 150, B: 150, A: 255}
)

// RenderPNG draws actual, predicted, upper and lower series against date.
func RenderPNG(r *Result, w io.Writer) error {
	p := plot.New()
	p.Title.Text = "Forecast"
	p.X.Label.Text = "Date"
	p.Y.Label.Text = "Value"
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01-02"}
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	var actual, predicted, upper, lower plotter.XYs
	for _, row := range r.Rows {
		x := float64(row.Date.Unix())
		if row.Actual != nil {
			actual = append(actual, plotter.XY{X: x, Y: *row.Actual})
		}
		predicted = append(predicted, plotter.XY{X: x, Y: row.Predicted})
		upper = append(upper, plotter.XY{X: x, Y: row.Upper})
		lower = append(lower, plotter.XY{X: x, Y: row.Lower})
	}

	series := []struct {
		name   string
		xys    plotter.XYs
		color  color.Color
		dashed bool
	}{
		{"y", actual, colorActual, false},
		{"yhat", predicted, colorPredicted, false},
		{"yhat_upper", upper, colorBound, true},
		{"yhat_lower", lower, colorBound, true},
	}
	for _, s := range series {
		line, err := plotter.NewLine(s.xys)
		if err != nil {
			return fmt.Errorf("%s series: %w", s.name, err)
		}
		line.Color = s.color
		line.Width = vg.Points(1.5)
		if s.dashed {
			line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		}
		p.Add(line)
		p.Legend.Add(s.name, line)
	}

	wt, err := p.WriterTo(12*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("chart writer: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}
