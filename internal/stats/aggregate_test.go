package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DR-lin-eng/download-speed-tester/internal/session"
)

func syntheticResult() *session.Result {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return &session.Result{
		Concurrency: 2,
		Start:       start,
		End:         start.Add(2 * time.Second),
		Workers: []session.WorkerResult{
			{
				WorkerID: 0,
				Status:   session.StatusCompleted,
				Bytes:    2048000,
				Duration: 2 * time.Second,
				Samples: []session.Sample{
					{Elapsed: 500 * time.Millisecond, Bytes: 512000},
					{Elapsed: 1000 * time.Millisecond, Bytes: 1024000},
					{Elapsed: 1500 * time.Millisecond, Bytes: 1536000},
					{Elapsed: 2000 * time.Millisecond, Bytes: 2048000},
				},
			},
			{
				WorkerID: 1,
				Status:   session.StatusTimedOut,
				Bytes:    512000,
				Duration: time.Second,
				Samples: []session.Sample{
					{Elapsed: 500 * time.Millisecond, Bytes: 256000},
					{Elapsed: 1000 * time.Millisecond, Bytes: 512000},
				},
			},
		},
	}
}

func TestAggregateBuckets(t *testing.T) {
	t.Parallel()

	agg := Aggregate(syntheticResult(), 500*time.Millisecond)

	require.EqualValues(t, 2560000, agg.TotalBytes)
	require.Equal(t, 2*time.Second, agg.Duration)
	require.InDelta(t, 1280000, agg.MeanBps, 0.01)
	require.Len(t, agg.Buckets, 4)

	// Both workers alive: worker 0 at 1 MB/s, worker 1 at 512 KB/s.
	first := agg.Buckets[0]
	require.Equal(t, 500*time.Millisecond, first.Elapsed)
	require.Equal(t, 2, first.Workers)
	require.InDelta(t, 1536000, first.Aggregate, 0.01)
	require.InDelta(t, 768000, first.Mean, 0.01)
	require.InDelta(t, 512000, first.Min, 0.01)
	require.InDelta(t, 1024000, first.Max, 0.01)

	require.InDelta(t, 1536000, agg.PeakBps, 0.01)
	require.Len(t, agg.Workers, 2)
	require.Equal(t, "timed_out", agg.Workers[1].Status)
}

func TestAggregateNeverExtrapolates(t *testing.T) {
	t.Parallel()

	agg := Aggregate(syntheticResult(), 500*time.Millisecond)

	// Worker 1's series ends at 1.0s; later buckets must not count it, not
	// even as zero throughput.
	require.Equal(t, 2, agg.Buckets[1].Workers)
	require.Equal(t, 1, agg.Buckets[2].Workers)
	require.Equal(t, 1, agg.Buckets[3].Workers)
	require.InDelta(t, 1024000, agg.Buckets[2].Aggregate, 0.01)
	require.InDelta(t, 1024000, agg.Buckets[2].Mean, 0.01)
}

func TestAggregateStepInterpolation(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	res := &session.Result{
		Concurrency: 1,
		Start:       start,
		End:         start.Add(2 * time.Second),
		Workers: []session.WorkerResult{
			{
				WorkerID: 0,
				Status:   session.StatusCompleted,
				Bytes:    2000,
				Duration: 2 * time.Second,
				Samples: []session.Sample{
					{Elapsed: 700 * time.Millisecond, Bytes: 700},
					{Elapsed: 2000 * time.Millisecond, Bytes: 2000},
				},
			},
		},
	}

	agg := Aggregate(res, 500*time.Millisecond)
	require.Len(t, agg.Buckets, 4)

	// Grid points between samples carry the last known cumulative value, so
	// the whole delta lands in the bucket whose end crosses the sample.
	require.InDelta(t, 0, agg.Buckets[0].Aggregate, 0.01)          // t=0.5: before first sample
	require.InDelta(t, 1400, agg.Buckets[1].Aggregate, 0.01)       // t=1.0: (700-0)/0.5
	require.InDelta(t, 0, agg.Buckets[2].Aggregate, 0.01)          // t=1.5: plateau
	require.InDelta(t, 2600, agg.Buckets[3].Aggregate, 0.01)       // t=2.0: (2000-700)/0.5
}

func TestAggregateIsDeterministic(t *testing.T) {
	t.Parallel()

	res := syntheticResult()
	first := Aggregate(res, 500*time.Millisecond)
	second := Aggregate(res, 500*time.Millisecond)
	require.Equal(t, first, second)
}

func TestAggregatePercentiles(t *testing.T) {
	t.Parallel()

	agg := Aggregate(syntheticResult(), 500*time.Millisecond)

	require.Greater(t, agg.P50Bps, 0.0)
	require.LessOrEqual(t, agg.P50Bps, agg.P90Bps)
	require.LessOrEqual(t, agg.P90Bps, agg.P99Bps)
	require.LessOrEqual(t, agg.P99Bps, agg.PeakBps*1.01)
}

func TestAggregatePercentilesCountStallBuckets(t *testing.T) {
	t.Parallel()

	// A crawling download: every bucket moves well under 1 KB/s. The
	// percentiles must still reflect those buckets instead of dropping them.
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	res := &session.Result{
		Concurrency: 1,
		Start:       start,
		End:         start.Add(2 * time.Second),
		Workers: []session.WorkerResult{
			{
				WorkerID: 0,
				Status:   session.StatusTimedOut,
				Bytes:    40,
				Duration: 2 * time.Second,
				Samples: []session.Sample{
					{Elapsed: 500 * time.Millisecond, Bytes: 10},
					{Elapsed: 1000 * time.Millisecond, Bytes: 20},
					{Elapsed: 1500 * time.Millisecond, Bytes: 30},
					{Elapsed: 2000 * time.Millisecond, Bytes: 40},
				},
			},
		},
	}

	agg := Aggregate(res, 500*time.Millisecond)
	require.Len(t, agg.Buckets, 4)
	require.Greater(t, agg.P50Bps, 0.0)
	require.Greater(t, agg.P99Bps, 0.0)
}

func TestAggregateDefaultsInterval(t *testing.T) {
	t.Parallel()

	agg := Aggregate(syntheticResult(), 0)
	require.Equal(t, session.DefaultSampleInterval, agg.Interval)
	require.NotEmpty(t, agg.Buckets)
}
