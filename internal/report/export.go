package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/DR-lin-eng/download-speed-tester/internal/probe"
	"github.com/DR-lin-eng/download-speed-tester/internal/session"
	"github.com/DR-lin-eng/download-speed-tester/internal/stats"
)

// ExportCSV writes every worker's sample series as rows, one sample per line.
func ExportCSV(res *session.Result, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{"worker_id", "run_id", "elapsed_ms", "cumulative_bytes", "status", "reason"}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, wr := range res.Workers {
		for _, s := range wr.Samples {
			record := []string{
				strconv.Itoa(wr.WorkerID),
				wr.ID,
				fmt.Sprintf("%d", s.Elapsed.Milliseconds()),
				strconv.FormatInt(s.Bytes, 10),
				wr.Status.String(),
				wr.Reason,
			}
			if err := w.Write(record); err != nil {
				return err
			}
		}
	}
	return nil
}

// Summary is the JSON shape written next to the charts.
type Summary struct {
	URL         string                `json:"url"`
	RemoteAddr  string                `json:"remote_addr"`
	Concurrency int                   `json:"concurrency"`
	StartedAt   string                `json:"started_at"`
	Seconds     float64               `json:"seconds"`
	TotalBytes  int64                 `json:"total_bytes"`
	MeanBps     float64               `json:"mean_bps"`
	PeakBps     float64               `json:"peak_bps"`
	P50Bps      float64               `json:"p50_bps"`
	P90Bps      float64               `json:"p90_bps"`
	P99Bps      float64               `json:"p99_bps"`
	Workers     []stats.WorkerSummary `json:"workers"`
}

// ExportJSON writes the aggregated session summary.
func ExportJSON(res *session.Result, agg *stats.AggregateStats, filename string) error {
	s := Summary{
		URL:         res.Target.URL,
		RemoteAddr:  res.RemoteAddr,
		Concurrency: res.Concurrency,
		StartedAt:   res.Start.Format("2006-01-02T15:04:05Z07:00"),
		Seconds:     agg.Duration.Seconds(),
		TotalBytes:  agg.TotalBytes,
		MeanBps:     agg.MeanBps,
		PeakBps:     agg.PeakBps,
		P50Bps:      agg.P50Bps,
		P90Bps:      agg.P90Bps,
		P99Bps:      agg.P99Bps,
		Workers:     agg.Workers,
	}

	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, b, 0644)
}

// ExportProbeJSON writes the probed curve so the knee can be re-analysed
// without re-running the measurement.
func ExportProbeJSON(rep *probe.Report, filename string) error {
	out := map[string]interface{}{
		"url":          rep.Target.URL,
		"points":       rep.Points,
		"baseline_bps": rep.Baseline,
		"best":         rep.Best,
		"stop_reason":  rep.StopReason,
		"started_at":   rep.Start.Format("2006-01-02T15:04:05Z07:00"),
		"seconds":      rep.End.Sub(rep.Start).Seconds(),
	}

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, b, 0644)
}
