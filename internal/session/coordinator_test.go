package session

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DR-lin-eng/download-speed-tester/internal/dummy"
	"github.com/DR-lin-eng/download-speed-tester/internal/resolver"
)

func testTarget(t *testing.T, srv *httptest.Server, path string) *resolver.Target {
	t.Helper()
	target, err := resolver.Resolve(srv.URL+path, "")
	require.NoError(t, err)
	return target
}

func TestCoordinatorRunsAllWorkers(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(dummy.Handler())
	defer srv.Close()

	const size = 256 * 1024
	target := testTarget(t, srv, fmt.Sprintf("/file?size=%d", size))
	cfg := Config{
		Concurrency:    4,
		TimeBudget:     10 * time.Second,
		SampleInterval: 50 * time.Millisecond,
	}

	coord := NewCoordinator(target, cfg, nil)
	res := coord.Run(context.Background())

	require.Len(t, res.Workers, 4)
	require.Equal(t, 4, res.Concurrency)
	require.EqualValues(t, 4*size, res.TotalBytes())
	require.True(t, strings.HasPrefix(res.RemoteAddr, "127.0.0.1:"), "remote addr %q", res.RemoteAddr)

	seen := map[int]bool{}
	for _, w := range res.Workers {
		require.Equal(t, StatusCompleted, w.Status)
		require.EqualValues(t, size, w.Bytes)
		require.False(t, seen[w.WorkerID], "worker id %d reported twice", w.WorkerID)
		seen[w.WorkerID] = true
		for _, s := range w.Samples {
			require.GreaterOrEqual(t, s.Elapsed, time.Duration(0))
			require.LessOrEqual(t, s.Elapsed, res.Duration()+100*time.Millisecond)
		}
	}

	completed, timedOut, failed := res.Counts()
	require.Equal(t, 4, completed)
	require.Zero(t, timedOut)
	require.Zero(t, failed)
}

func TestCoordinatorSharedDeadline(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(dummy.Handler())
	defer srv.Close()

	// Every worker is throttled well below what the budget allows, so all of
	// them must be cut at the same wall-clock instant.
	target := testTarget(t, srv, "/throttled?size=10485760&rate=262144")
	cfg := Config{
		Concurrency:    3,
		TimeBudget:     800 * time.Millisecond,
		SampleInterval: 100 * time.Millisecond,
	}

	coord := NewCoordinator(target, cfg, nil)
	start := time.Now()
	res := coord.Run(context.Background())
	elapsed := time.Since(start)

	require.Less(t, elapsed, 3*time.Second, "workers must not run serially past the budget")
	for _, w := range res.Workers {
		require.Equal(t, StatusTimedOut, w.Status)
		require.Greater(t, w.Bytes, int64(0))
	}
}

func TestCoordinatorCanceledContextStopsWorkersPromptly(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(dummy.Handler())
	defer srv.Close()

	// Throttled downloads that would otherwise run for the full minute.
	target := testTarget(t, srv, "/throttled?size=104857600&rate=1048576")
	cfg := Config{
		Concurrency:    3,
		TimeBudget:     time.Minute,
		SampleInterval: 50 * time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(300 * time.Millisecond)
		cancel()
	}()

	coord := NewCoordinator(target, cfg, nil)
	start := time.Now()
	res := coord.Run(ctx)
	elapsed := time.Since(start)

	require.Less(t, elapsed, 5*time.Second, "cancellation must cut the session, not the time budget")
	require.Len(t, res.Workers, 3)
	for _, w := range res.Workers {
		require.Equal(t, StatusTimedOut, w.Status)
		require.Equal(t, "interrupted", w.Reason)
	}
}

func TestCoordinatorRecordsFailuresWithoutAborting(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(dummy.Handler())
	defer srv.Close()

	target := testTarget(t, srv, "/error?code=503")
	cfg := Config{
		Concurrency:    2,
		TimeBudget:     5 * time.Second,
		SampleInterval: 50 * time.Millisecond,
	}

	coord := NewCoordinator(target, cfg, nil)
	res := coord.Run(context.Background())

	require.Len(t, res.Workers, 2)
	for _, w := range res.Workers {
		require.Equal(t, StatusFailed, w.Status)
		require.Equal(t, "http_status_503", w.Reason)
	}
	_, _, failed := res.Counts()
	require.Equal(t, 2, failed)
}

func TestCoordinatorPublishesSnapshots(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(dummy.Handler())
	defer srv.Close()

	target := testTarget(t, srv, "/throttled?size=1048576&rate=1048576")
	cfg := Config{
		Concurrency:    1,
		TimeBudget:     5 * time.Second,
		SampleInterval: 50 * time.Millisecond,
	}

	updates := make(UpdateChan, 64)
	coord := NewCoordinator(target, cfg, updates)
	res := coord.Run(context.Background())
	require.Equal(t, StatusCompleted, res.Workers[0].Status)

	var snaps []Snapshot
	for {
		select {
		case s := <-updates:
			snaps = append(snaps, s)
			continue
		default:
		}
		break
	}

	require.NotEmpty(t, snaps, "at least one snapshot per sampling tick")
	last := snaps[len(snaps)-1]
	require.Greater(t, last.TotalBytes, int64(0))
	require.Greater(t, last.Elapsed, time.Duration(0))
}
