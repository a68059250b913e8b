package output

import (
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"ctcbalance/util"
)

const (
	CHART_WIDTH  = 1400
	CHART_HEIGHT = 500
)

var palette = []drawing.Color{
	{R: 31, G: 119, B: 180, A: 255},
	{R: 255, G: 127, B: 14, A: 255},
	{R: 44, G: 160, B: 44, A: 255},
	{R: 214, G: 39, B: 40, A: 255},
	{R: 148, G: 103, B: 189, A: 255},
	{R: 140, G: 86, B: 75, A: 255},
	{R: 227, G: 119, B: 194, A: 255},
	{R: 127, G: 127, B: 127, A: 255},
	{R: 188, G: 189, B: 34, A: 255},
	{R: 23, G: 190, B: 207, A: 255},
}

func formatCTC(v interface{}) string {
	if f, ok := v.(float64); ok {
		return humanize.Comma(int64(math.Round(f)))
	}
	return ""
}

func formatReward(v interface{}) string {
	if f, ok := v.(float64); ok {
		return humanize.CommafWithDigits(f, 2)
	}
	return ""
}

// yRange starts at zero with headroom above the largest value
func yRange(values ...[]float64) *chart.ContinuousRange {

	top := 0.0
	for _, vs := range values {
		for _, v := range vs {
			top = math.Max(top, v)
		}
	}

	if top == 0 {
		top = 1
	}

	return &chart.ContinuousRange{Min: 0, Max: top * 1.1}
}

// PlotBalances renders <base>.png with one line per account, <base>_total.png
// and, when includeRewards is set, <base>_rewards.png with the daily reward
// total. base is the combined CSV path; its extension is replaced. At least two
// dates are needed to draw a line, so fewer produce no files.
func PlotBalances(base, title string, names []string, entries []HistoryEntry, includeRewards bool) ([]string, error) {

	if len(entries) < 2 {
		log.Warn("Not enough dates to plot")
		return nil, nil
	}

	xs := make([]time.Time, len(entries))
	for i, e := range entries {
		t, err := time.Parse(util.DATE_FORMAT, e.Date)
		if err != nil {
			return nil, errors.Wrapf(err, "Unable to parse date '%s'", e.Date)
		}
		xs[i] = t
	}

	stem := strings.TrimSuffix(base, ".csv")
	var files []string

	// Individual balances
	series := make([]chart.Series, 0, len(names))
	perAccount := make([][]float64, 0, len(names))

	for i, name := range names {

		ys := make([]float64, len(entries))
		for j, e := range entries {
			ys[j] = e.Balances[name]
		}
		perAccount = append(perAccount, ys)

		series = append(series, chart.TimeSeries{
			Name:    name,
			XValues: xs,
			YValues: ys,
			Style: chart.Style{
				StrokeColor: palette[i%len(palette)],
				StrokeWidth: 2,
			},
		})
	}

	individual := timeChart(title+" - Individual Account Balances", formatCTC, yRange(perAccount...), series)
	individual.Elements = []chart.Renderable{chart.LegendLeft(&individual)}

	if err := render(&individual, stem+".png"); err != nil {
		return files, err
	}
	files = append(files, stem+".png")

	// Total balance
	totals := make([]float64, len(entries))
	for i, e := range entries {
		totals[i] = e.Total
	}

	total := timeChart(title+" - Total Balance", formatCTC, yRange(totals), []chart.Series{
		chart.TimeSeries{
			Name:    "total",
			XValues: xs,
			YValues: totals,
			Style: chart.Style{
				StrokeColor: palette[0],
				StrokeWidth: 2,
				FillColor:   palette[0].WithAlpha(76),
			},
		},
	})

	if err := render(&total, stem+"_total.png"); err != nil {
		return files, err
	}
	files = append(files, stem+"_total.png")

	if !includeRewards {
		return files, nil
	}

	// Daily reward total with its moving average
	daily := make([]float64, len(entries))
	avg := make([]float64, len(entries))
	for i, e := range entries {
		daily[i] = e.TotalReward
		avg[i] = e.RewardAvg10
	}

	rewards := timeChart(title+" - Daily Rewards", formatReward, yRange(daily, avg), []chart.Series{
		chart.TimeSeries{
			Name:    "daily reward",
			XValues: xs,
			YValues: daily,
			Style: chart.Style{
				StrokeColor: palette[2],
				StrokeWidth: 2,
			},
		},
		chart.TimeSeries{
			Name:    "10 day average",
			XValues: xs,
			YValues: avg,
			Style: chart.Style{
				StrokeColor:     palette[3],
				StrokeWidth:     2,
				StrokeDashArray: []float64{5, 5},
			},
		},
	})
	rewards.Elements = []chart.Renderable{chart.LegendLeft(&rewards)}

	if err := render(&rewards, stem+"_rewards.png"); err != nil {
		return files, err
	}
	files = append(files, stem+"_rewards.png")

	return files, nil
}

func timeChart(title string, yFormat chart.ValueFormatter, yr *chart.ContinuousRange, series []chart.Series) chart.Chart {
	return chart.Chart{
		Title:  title,
		Width:  CHART_WIDTH,
		Height: CHART_HEIGHT,
		Background: chart.Style{
			Padding: chart.Box{Top: 50, Left: 20, Right: 20, Bottom: 20},
		},
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			ValueFormatter: yFormat,
			Range:          yr,
		},
		Series: series,
	}
}

func render(c *chart.Chart, path string) error {

	f, err := createFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := c.Render(chart.PNG, f); err != nil {
		return errors.Wrapf(err, "Unable to render %s", path)
	}

	log.WithField("File", path).Info("Saved chart")

	return nil
}
