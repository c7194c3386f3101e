package chart

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/DR-lin-eng/download-speed-tester/internal/compare"
	"github.com/DR-lin-eng/download-speed-tester/internal/probe"
	"github.com/DR-lin-eng/download-speed-tester/internal/resolver"
	"github.com/DR-lin-eng/download-speed-tester/internal/session"
	"github.com/DR-lin-eng/download-speed-tester/internal/stats"
)

const mib = 1024 * 1024

var palette = []drawing.Color{
	{R: 0x3b, G: 0x82, B: 0xf6, A: 255}, // blue
	{R: 0xef, G: 0x44, B: 0x44, A: 255}, // red
	{R: 0x22, G: 0xc5, B: 0x5e, A: 255}, // green
	{R: 0xf9, G: 0x73, B: 0x16, A: 255}, // orange
	{R: 0xa8, G: 0x55, B: 0xf7, A: 255}, // purple
	{R: 0x92, G: 0x5a, B: 0x28, A: 255}, // brown
	{R: 0xec, G: 0x48, B: 0x99, A: 255}, // pink
	{R: 0x6b, G: 0x72, B: 0x80, A: 255}, // gray
}

// SessionFilename builds the deterministic artifact name for a session chart.
func SessionFilename(t *resolver.Target, ts time.Time) string {
	return fmt.Sprintf("download_test_%s_%s.png", t.FileLabel(), ts.Format("20060102_150405"))
}

// ProbeFilename builds the deterministic artifact name for a probe chart.
func ProbeFilename(t *resolver.Target, ts time.Time) string {
	return fmt.Sprintf("concurrent_test_%s_%s.png", t.FileLabel(), ts.Format("20060102_150405"))
}

// ComparisonFilename builds the deterministic artifact name for a
// worker-count comparison chart.
func ComparisonFilename(t *resolver.Target, ts time.Time) string {
	return fmt.Sprintf("comparison_test_%s_%s.png", t.FileLabel(), ts.Format("20060102_150405"))
}

// RenderSession draws per-worker and aggregate throughput over time and saves
// the PNG under dir. It returns the written path.
func RenderSession(res *session.Result, agg *stats.AggregateStats, dir string) (string, error) {
	var series []chart.Series
	var annotations []chart.Value2

	for i, w := range res.Workers {
		xs, ys := workerSeries(w)
		if len(xs) >= 2 {
			series = append(series, chart.ContinuousSeries{
				Name:    fmt.Sprintf("worker %d (%s)", w.WorkerID, w.Status),
				XValues: xs,
				YValues: ys,
				Style: chart.Style{
					StrokeColor: palette[i%len(palette)],
					StrokeWidth: 1.0,
				},
			})
		}
		if w.Status == session.StatusFailed && len(xs) > 0 {
			annotations = append(annotations, chart.Value2{
				XValue: xs[len(xs)-1],
				YValue: ys[len(ys)-1],
				Label:  fmt.Sprintf("w%d: %s", w.WorkerID, w.Reason),
			})
		}
	}

	if xs, ys := bucketSeries(agg); len(xs) >= 2 {
		series = append(series, chart.ContinuousSeries{
			Name:    "aggregate",
			XValues: xs,
			YValues: ys,
			Style: chart.Style{
				StrokeColor: drawing.ColorBlack,
				StrokeWidth: 2.0,
			},
		})
		// Average reference line across the full session window.
		avg := agg.MeanBps / mib
		series = append(series, chart.ContinuousSeries{
			Name:    fmt.Sprintf("avg %.2f MB/s", avg),
			XValues: []float64{xs[0], xs[len(xs)-1]},
			YValues: []float64{avg, avg},
			Style: chart.Style{
				StrokeColor:     drawing.ColorRed,
				StrokeWidth:     1.0,
				StrokeDashArray: []float64{4.0, 4.0},
			},
		})
	}

	if len(series) == 0 {
		return "", fmt.Errorf("not enough samples to chart")
	}
	if len(annotations) > 0 {
		series = append(series, chart.AnnotationSeries{Annotations: annotations})
	}

	graph := chart.Chart{
		Title:  fmt.Sprintf("Download throughput - %s (%d workers)", res.Target.Describe(), res.Concurrency),
		Width:  1280,
		Height: 720,
		XAxis:  chart.XAxis{Name: "elapsed (s)"},
		YAxis:  chart.YAxis{Name: "throughput (MB/s)"},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	path := filepath.Join(dir, SessionFilename(res.Target, res.Start))
	return path, renderPNG(&graph, path)
}

// RenderProbe draws aggregate throughput against concurrency level with the
// knee annotated, and saves the PNG under dir.
func RenderProbe(rep *probe.Report, dir string) (string, error) {
	if len(rep.Points) < 2 {
		return "", fmt.Errorf("not enough probe points to chart")
	}

	xs := make([]float64, len(rep.Points))
	ys := make([]float64, len(rep.Points))
	for i, pt := range rep.Points {
		xs[i] = float64(pt.Concurrency)
		ys[i] = pt.Aggregate / mib
	}

	series := []chart.Series{
		chart.ContinuousSeries{
			Name:    "aggregate throughput",
			XValues: xs,
			YValues: ys,
			Style: chart.Style{
				StrokeColor: palette[0],
				StrokeWidth: 2.0,
				DotColor:    palette[0],
				DotWidth:    3.0,
			},
		},
		chart.AnnotationSeries{
			Annotations: []chart.Value2{{
				XValue: float64(rep.Best.Concurrency),
				YValue: rep.Best.Aggregate / mib,
				Label:  fmt.Sprintf("knee: %d workers, %.2f MB/s", rep.Best.Concurrency, rep.Best.Aggregate/mib),
			}},
		},
	}

	graph := chart.Chart{
		Title:  fmt.Sprintf("Max concurrency probe - %s (stop: %s)", rep.Target.Describe(), rep.StopReason),
		Width:  1280,
		Height: 720,
		XAxis:  chart.XAxis{Name: "concurrent workers"},
		YAxis:  chart.YAxis{Name: "aggregate throughput (MB/s)"},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	path := filepath.Join(dir, ProbeFilename(rep.Target, rep.Start))
	return path, renderPNG(&graph, path)
}

// RenderComparison overlays each ladder run's aggregate throughput series in
// one chart and saves the PNG under dir.
func RenderComparison(rep *compare.Report, dir string) (string, error) {
	var series []chart.Series
	for i, r := range rep.Runs {
		xs, ys := bucketSeries(r.Stats)
		if len(xs) < 2 {
			continue
		}
		series = append(series, chart.ContinuousSeries{
			Name:    fmt.Sprintf("%d workers (avg %.2f MB/s)", r.Concurrency, r.Stats.MeanBps/mib),
			XValues: xs,
			YValues: ys,
			Style: chart.Style{
				StrokeColor: palette[i%len(palette)],
				StrokeWidth: 1.5,
			},
		})
	}
	if len(series) == 0 {
		return "", fmt.Errorf("not enough samples to chart")
	}

	if rep.Best.Result != nil {
		series = append(series, chart.AnnotationSeries{
			Annotations: []chart.Value2{{
				XValue: rep.Best.Stats.Duration.Seconds(),
				YValue: rep.Best.Stats.MeanBps / mib,
				Label:  fmt.Sprintf("best: %d workers", rep.Best.Concurrency),
			}},
		})
	}

	graph := chart.Chart{
		Title:  fmt.Sprintf("Worker count comparison - %s", rep.Target.Describe()),
		Width:  1280,
		Height: 720,
		XAxis:  chart.XAxis{Name: "elapsed (s)"},
		YAxis:  chart.YAxis{Name: "aggregate throughput (MB/s)"},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	path := filepath.Join(dir, ComparisonFilename(rep.Target, rep.Start))
	return path, renderPNG(&graph, path)
}

func renderPNG(graph *chart.Chart, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return graph.Render(chart.PNG, f)
}

// workerSeries converts a cumulative sample series into instantaneous MB/s
// points at the worker's own sample times.
func workerSeries(w session.WorkerResult) (xs, ys []float64) {
	var prev session.Sample
	for _, s := range w.Samples {
		dt := (s.Elapsed - prev.Elapsed).Seconds()
		if dt > 0 {
			xs = append(xs, s.Elapsed.Seconds())
			ys = append(ys, float64(s.Bytes-prev.Bytes)/dt/mib)
		}
		prev = s
	}
	return xs, ys
}

func bucketSeries(agg *stats.AggregateStats) (xs, ys []float64) {
	for _, b := range agg.Buckets {
		xs = append(xs, b.Elapsed.Seconds())
		ys = append(ys, b.Aggregate/mib)
	}
	return xs, ys
}
