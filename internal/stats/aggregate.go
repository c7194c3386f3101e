package stats

import (
	"time"

	"github.com/DR-lin-eng/download-speed-tester/internal/session"
)

// Bucket is one point on the common time grid: instantaneous throughput
// across the workers that were still alive in that interval.
type Bucket struct {
	Elapsed   time.Duration `json:"elapsed"`
	Aggregate float64       `json:"aggregate_bps"`
	Mean      float64       `json:"mean_bps"`
	Min       float64       `json:"min_bps"`
	Max       float64       `json:"max_bps"`
	Workers   int           `json:"workers"`
}

// WorkerSummary is a worker's final line in reports and charts.
type WorkerSummary struct {
	WorkerID int     `json:"worker_id"`
	Status   string  `json:"status"`
	Reason   string  `json:"reason,omitempty"`
	Bytes    int64   `json:"bytes"`
	Seconds  float64 `json:"seconds"`
	AvgBps   float64 `json:"avg_bps"`
}

// AggregateStats is the merged view of one session: resampled buckets plus
// summary numbers. Deterministic for a given Result, so aggregating twice
// yields identical output.
type AggregateStats struct {
	Interval   time.Duration   `json:"interval"`
	Buckets    []Bucket        `json:"buckets"`
	Workers    []WorkerSummary `json:"workers"`
	TotalBytes int64           `json:"total_bytes"`
	Duration   time.Duration   `json:"duration"`
	MeanBps    float64         `json:"mean_bps"`
	PeakBps    float64         `json:"peak_bps"`
	P50Bps     float64         `json:"p50_bps"`
	P90Bps     float64         `json:"p90_bps"`
	P99Bps     float64         `json:"p99_bps"`
}

// Aggregate resamples every worker's series onto a common grid at the given
// interval and merges them. Resampling is step interpolation: a grid point
// with no exact sample uses the worker's last known cumulative value, and a
// worker contributes nothing past its terminal sample.
func Aggregate(res *session.Result, interval time.Duration) *AggregateStats {
	if interval <= 0 {
		interval = session.DefaultSampleInterval
	}

	agg := &AggregateStats{
		Interval:   interval,
		TotalBytes: res.TotalBytes(),
		Duration:   res.Duration(),
	}
	if sec := agg.Duration.Seconds(); sec > 0 {
		agg.MeanBps = float64(agg.TotalBytes) / sec
	}

	for _, w := range res.Workers {
		agg.Workers = append(agg.Workers, WorkerSummary{
			WorkerID: w.WorkerID,
			Status:   w.Status.String(),
			Reason:   w.Reason,
			Bytes:    w.Bytes,
			Seconds:  w.Duration.Seconds(),
			AvgBps:   w.AvgThroughput(),
		})
	}

	hist := NewSafeHistogram()
	cursors := make([]int, len(res.Workers))

	for t := interval; t <= agg.Duration; t += interval {
		b := Bucket{Elapsed: t}
		for i, w := range res.Workers {
			if len(w.Samples) == 0 || t > w.Samples[len(w.Samples)-1].Elapsed {
				continue // never extend a worker past its terminal sample
			}
			prev := cumulativeAt(w.Samples, t-interval, &cursors[i])
			cur := cumulativeAt(w.Samples, t, &cursors[i])
			bps := float64(cur-prev) / interval.Seconds()

			b.Aggregate += bps
			if b.Workers == 0 || bps < b.Min {
				b.Min = bps
			}
			if bps > b.Max {
				b.Max = bps
			}
			b.Mean += bps
			b.Workers++
		}
		if b.Workers == 0 {
			continue
		}
		b.Mean /= float64(b.Workers)
		if b.Aggregate > agg.PeakBps {
			agg.PeakBps = b.Aggregate
		}
		kb := int64(b.Aggregate / 1024)
		if kb < 1 {
			kb = 1 // stall buckets still count against the percentiles
		}
		hist.RecordValue(kb)
		agg.Buckets = append(agg.Buckets, b)
	}

	if hist.TotalCount() > 0 {
		agg.P50Bps = float64(hist.ValueAtQuantile(50)) * 1024
		agg.P90Bps = float64(hist.ValueAtQuantile(90)) * 1024
		agg.P99Bps = float64(hist.ValueAtQuantile(99)) * 1024
	}

	return agg
}

// cumulativeAt returns the worker's cumulative byte count at elapsed offset t
// using step interpolation. The cursor makes a full-grid walk linear; callers
// must ask for non-decreasing t per worker. Past the terminal sample the last
// value is returned, but callers skip those buckets entirely.
func cumulativeAt(samples []session.Sample, t time.Duration, cursor *int) int64 {
	i := *cursor
	if i >= len(samples) {
		i = len(samples) - 1
	}
	// Rewind when asked for the previous grid point of a fresh bucket.
	for i > 0 && samples[i].Elapsed > t {
		i--
	}
	for i+1 < len(samples) && samples[i+1].Elapsed <= t {
		i++
	}
	*cursor = i
	if samples[i].Elapsed > t {
		return 0 // before the first observation
	}
	return samples[i].Bytes
}
