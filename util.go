package demandcast

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

var ErrNothingToPlot = errors.New("no item forecasts to plot")

// missing is the echarts placeholder for a gap in a line series
const missing = "-"

func lineValue(v float64) opts.LineData {
	if math.IsNaN(v) {
		return opts.LineData{Value: missing}
	}
	return opts.LineData{Value: v}
}

// LineTSeries generates an echart multi-line chart for some arbitrary time/value combination. The input
// y is a slice of series that must have the same length as the input time slice. NaN values are
// drawn as gaps.
func LineTSeries(title string, seriesName []string, t []time.Time, y [][]float64) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(
			opts.Title{
				Title: title,
			},
		),
	)

	x := make([]string, len(t))
	for i, ts := range t {
		x[i] = ts.Format(time.DateOnly)
	}
	line = line.SetXAxis(x)
	for i, series := range seriesName {
		lineData := make([]opts.LineData, 0, len(t))
		for j := range t {
			v := math.NaN()
			if j < len(y[i]) {
				v = y[i][j]
			}
			lineData = append(lineData, lineValue(v))
		}
		line = line.AddSeries(series, lineData)
	}
	return line
}

// LineItemForecast generates an echart line chart of an item's observed demand followed by the
// forecast mean and its interval bounds. Stockout days are drawn as gaps in the actuals.
func LineItemForecast(f ItemForecast) *charts.Line {
	n := len(f.History) + len(f.Forecasts)
	t := make([]time.Time, 0, n)
	actual := make([]float64, 0, n)
	mean := make([]float64, 0, n)
	upper := make([]float64, 0, n)
	lower := make([]float64, 0, n)

	for _, o := range f.History {
		t = append(t, o.Day.T)
		q := o.Quantity
		if o.Stockout {
			q = math.NaN()
		}
		actual = append(actual, q)
		mean = append(mean, math.NaN())
		upper = append(upper, math.NaN())
		lower = append(lower, math.NaN())
	}
	for _, d := range f.Forecasts {
		t = append(t, d.Date)
		actual = append(actual, math.NaN())
		mean = append(mean, d.Predicted)
		upper = append(upper, d.High)
		lower = append(lower, d.Low)
	}

	line := LineTSeries(
		fmt.Sprintf("%s (%s)", f.Item, f.Category),
		[]string{"Actual", "Forecast", "Upper", "Lower"},
		t,
		[][]float64{actual, mean, upper, lower},
	)
	line.SetGlobalOptions(
		charts.WithTitleOpts(
			opts.Title{
				Title:    fmt.Sprintf("%s (%s)", f.Item, f.Category),
				Subtitle: fmt.Sprintf("prior weight %.2f from %s prior", f.PriorWeight, f.PriorSource),
			},
		),
	)
	return line
}

// LineCoverDemand generates an echart line chart of the forecast daily units over all items
func LineCoverDemand(res *Result) *charts.Line {
	totals := make(map[time.Time][3]float64)
	for _, f := range res.Items {
		for _, d := range f.Forecasts {
			v := totals[d.Date]
			v[0] += d.Predicted
			v[1] += d.High
			v[2] += d.Low
			totals[d.Date] = v
		}
	}
	t := make([]time.Time, 0, len(totals))
	for day := range totals {
		t = append(t, day)
	}
	sort.Slice(t, func(i, j int) bool { return t[i].Before(t[j]) })

	y := [][]float64{make([]float64, len(t)), make([]float64, len(t)), make([]float64, len(t))}
	for i, day := range t {
		v := totals[day]
		for k := range y {
			y[k][i] = v[k]
		}
	}
	return LineTSeries("Total Forecast Units", []string{"Forecast", "Upper", "Lower"}, t, y)
}

// PlotResult renders the forecast of every item of a run as one html page
func PlotResult(w io.Writer, res *Result) error {
	if res == nil || len(res.Items) == 0 {
		return ErrNothingToPlot
	}
	page := components.NewPage()
	page.AddCharts(LineCoverDemand(res))
	for _, f := range res.Items {
		page.AddCharts(LineItemForecast(f))
	}
	return page.Render(w)
}
