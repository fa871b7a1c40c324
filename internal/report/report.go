// Package report renders a finished session as a self-contained HTML page:
// per-rep metric charts plus the aggregated feedback summary.
package report

import (
	"fmt"
	"html"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/formsight-data/form.report/internal/session"
)

// Render writes the HTML report for a terminal session.
func Render(w io.Writer, sess *session.Session) error {
	if !sess.Status.Terminal() {
		return fmt.Errorf("session %s is still %s", sess.ID, sess.Status)
	}

	if err := renderDepthChart(w, sess); err != nil {
		return err
	}
	if err := renderAscentChart(w, sess); err != nil {
		return err
	}
	return renderSummaryTable(w, sess)
}

func repLabels(sess *session.Session) []string {
	labels := make([]string, 0, len(sess.Reps))
	for _, rep := range sess.Reps {
		labels = append(labels, fmt.Sprintf("rep %d", rep.Index))
	}
	return labels
}

// renderDepthChart plots the bottom depth ratio per rep against the legal
// depth line at 1.0.
func renderDepthChart(w io.Writer, sess *session.Session) error {
	data := make([]opts.BarData, 0, len(sess.Reps))
	for _, rep := range sess.Reps {
		if rep.BottomMetrics.DepthRatio.OK {
			data = append(data, opts.BarData{Value: rep.BottomMetrics.DepthRatio.V})
		} else {
			data = append(data, opts.BarData{Value: nil})
		}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Depth per rep",
			Subtitle: "ratio >= 1.0 means hips reached knee height",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "hip/knee ratio"}),
	)
	bar.SetXAxis(repLabels(sess))
	bar.AddSeries("depth ratio", data)
	bar.SetSeriesOptions(charts.WithMarkLineNameYAxisItemOpts(
		opts.MarkLineNameYAxisItem{Name: "legal depth", YAxis: 1.0},
	))
	return bar.Render(w)
}

// renderAscentChart plots ascent time per rep.
func renderAscentChart(w io.Writer, sess *session.Session) error {
	data := make([]opts.LineData, 0, len(sess.Reps))
	for _, rep := range sess.Reps {
		if rep.CompletionMetrics.AscentSeconds.OK {
			data = append(data, opts.LineData{Value: rep.CompletionMetrics.AscentSeconds.V})
		} else {
			data = append(data, opts.LineData{Value: nil})
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Ascent time per rep"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "seconds"}),
	)
	line.SetXAxis(repLabels(sess))
	line.AddSeries("ascent", data)
	return line.Render(w)
}

// renderSummaryTable writes the aggregated feedback as a plain HTML table
// appended after the charts.
func renderSummaryTable(w io.Writer, sess *session.Session) error {
	fmt.Fprintf(w, "<h2>Session %s: %d reps</h2>\n", html.EscapeString(sess.ID), sess.RepCount())
	if len(sess.Summary) == 0 {
		_, err := io.WriteString(w, "<p>No feedback recorded.</p>\n")
		return err
	}

	io.WriteString(w, "<table border=\"1\" cellpadding=\"6\">\n")
	io.WriteString(w, "<tr><th>Feedback</th><th>Reps affected</th><th>Detail</th></tr>\n")
	for _, item := range sess.Summary {
		fmt.Fprintf(w, "<tr><td>%s</td><td>%d</td><td>%s</td></tr>\n",
			html.EscapeString(item.Message), item.Count, html.EscapeString(item.Detail))
	}
	_, err := io.WriteString(w, "</table>\n")
	return err
}
