package chart

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DR-lin-eng/download-speed-tester/internal/compare"
	"github.com/DR-lin-eng/download-speed-tester/internal/probe"
	"github.com/DR-lin-eng/download-speed-tester/internal/resolver"
	"github.com/DR-lin-eng/download-speed-tester/internal/session"
	"github.com/DR-lin-eng/download-speed-tester/internal/stats"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func chartTarget(t *testing.T) *resolver.Target {
	t.Helper()
	target, err := resolver.Resolve("https://speed.example.com/100MB.bin", "")
	require.NoError(t, err)
	return target
}

func chartResult(t *testing.T) *session.Result {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return &session.Result{
		Target:      chartTarget(t),
		RemoteAddr:  "203.0.113.9:443",
		Concurrency: 2,
		Start:       start,
		End:         start.Add(2 * time.Second),
		Workers: []session.WorkerResult{
			{
				WorkerID: 0,
				Status:   session.StatusCompleted,
				Bytes:    4 << 20,
				Duration: 2 * time.Second,
				Samples: []session.Sample{
					{Elapsed: 500 * time.Millisecond, Bytes: 1 << 20},
					{Elapsed: 1000 * time.Millisecond, Bytes: 2 << 20},
					{Elapsed: 1500 * time.Millisecond, Bytes: 3 << 20},
					{Elapsed: 2000 * time.Millisecond, Bytes: 4 << 20},
				},
			},
			{
				WorkerID: 1,
				Status:   session.StatusFailed,
				Reason:   "http_status_503",
				Bytes:    1 << 20,
				Duration: time.Second,
				Samples: []session.Sample{
					{Elapsed: 500 * time.Millisecond, Bytes: 1 << 19},
					{Elapsed: 1000 * time.Millisecond, Bytes: 1 << 20},
				},
			},
		},
	}
}

func requirePNG(t *testing.T, path string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(data), len(pngMagic))
	require.Equal(t, pngMagic, data[:len(pngMagic)])
}

func TestRenderSessionWritesPNG(t *testing.T) {
	t.Parallel()

	res := chartResult(t)
	agg := stats.Aggregate(res, 500*time.Millisecond)

	dir := t.TempDir()
	path, err := RenderSession(res, agg, dir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, SessionFilename(res.Target, res.Start)), path)
	requirePNG(t, path)
}

func TestRenderSessionRejectsEmptyResult(t *testing.T) {
	t.Parallel()

	res := &session.Result{Target: chartTarget(t)}
	agg := stats.Aggregate(res, 500*time.Millisecond)

	_, err := RenderSession(res, agg, t.TempDir())
	require.Error(t, err)
}

func TestRenderProbeWritesPNG(t *testing.T) {
	t.Parallel()

	rep := &probe.Report{
		Target: chartTarget(t),
		Points: []probe.Point{
			{Concurrency: 1, Aggregate: 10 << 20, PerWorker: 10 << 20},
			{Concurrency: 2, Aggregate: 18 << 20, PerWorker: 9 << 20},
			{Concurrency: 4, Aggregate: 20 << 20, PerWorker: 5 << 20},
		},
		Baseline:   10 << 20,
		Best:       probe.Point{Concurrency: 4, Aggregate: 20 << 20, PerWorker: 5 << 20},
		StopReason: probe.StopThreshold,
		Start:      time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	dir := t.TempDir()
	path, err := RenderProbe(rep, dir)
	require.NoError(t, err)
	requirePNG(t, path)
}

func TestRenderComparisonWritesPNG(t *testing.T) {
	t.Parallel()

	single := chartResult(t)
	single.Concurrency = 1
	single.Workers = single.Workers[:1]

	rep := &compare.Report{
		Target: chartTarget(t),
		Start:  time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	for _, res := range []*session.Result{single, chartResult(t)} {
		rep.Runs = append(rep.Runs, compare.Run{
			Concurrency: res.Concurrency,
			Result:      res,
			Stats:       stats.Aggregate(res, 500*time.Millisecond),
		})
	}
	rep.Best = rep.Runs[1]

	dir := t.TempDir()
	path, err := RenderComparison(rep, dir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, ComparisonFilename(rep.Target, rep.Start)), path)
	requirePNG(t, path)
}

func TestRenderComparisonRejectsEmptyReport(t *testing.T) {
	t.Parallel()

	rep := &compare.Report{Target: chartTarget(t), Start: time.Now()}
	_, err := RenderComparison(rep, t.TempDir())
	require.Error(t, err)
}

func TestRenderProbeNeedsTwoPoints(t *testing.T) {
	t.Parallel()

	rep := &probe.Report{
		Target: chartTarget(t),
		Points: []probe.Point{{Concurrency: 1, Aggregate: 10 << 20}},
		Start:  time.Now(),
	}
	_, err := RenderProbe(rep, t.TempDir())
	require.Error(t, err)
}

func TestFilenamesAreDeterministic(t *testing.T) {
	t.Parallel()

	target, err := resolver.Resolve("https://speed.example.com/f", "2001:db8::1")
	require.NoError(t, err)

	ts := time.Date(2025, 3, 1, 12, 30, 45, 0, time.UTC)
	require.Equal(t, "download_test_speed.example.com_2001-db8--1_20250301_123045.png", SessionFilename(target, ts))
	require.Equal(t, "concurrent_test_speed.example.com_2001-db8--1_20250301_123045.png", ProbeFilename(target, ts))
	require.Equal(t, "comparison_test_speed.example.com_2001-db8--1_20250301_123045.png", ComparisonFilename(target, ts))
}
