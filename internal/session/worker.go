package session

import (
	"context"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// worker performs one download attempt, counting bytes per read so sampling
// ticks see progress even inside large body chunks.
type worker struct {
	id     int
	client *http.Client
	url    string
	cfg    Config
	start  time.Time // shared session reference start

	received     int64  // atomic
	sessionBytes *int64 // coordinator's session-wide counter, atomic
}

func (w *worker) run(ctx context.Context) WorkerResult {
	res := WorkerResult{WorkerID: w.id, ID: uuid.New().String()}

	done := make(chan error, 1)
	go func() {
		done <- w.download(ctx)
	}()

	ticker := time.NewTicker(w.cfg.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			res.Samples = appendSample(res.Samples, time.Since(w.start), atomic.LoadInt64(&w.received))
		case err := <-done:
			elapsed := time.Since(w.start)
			res.Samples = appendSample(res.Samples, elapsed, atomic.LoadInt64(&w.received))
			res.Bytes = atomic.LoadInt64(&w.received)
			res.Duration = elapsed
			res.finish(ctx, err)
			return res
		}
	}
}

// appendSample keeps the series valid: strictly increasing elapsed offsets,
// non-decreasing cumulative bytes. A flush that would tie the last tick is
// dropped.
func appendSample(s []Sample, elapsed time.Duration, bytes int64) []Sample {
	if n := len(s); n > 0 {
		last := s[n-1]
		if elapsed <= last.Elapsed || bytes < last.Bytes {
			return s
		}
	}
	return append(s, Sample{Elapsed: elapsed, Bytes: bytes})
}

func (w *worker) download(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", w.cfg.UserAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &HTTPError{Status: resp.StatusCode}
	}

	buf := make([]byte, 32*1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			atomic.AddInt64(&w.received, int64(n))
			atomic.AddInt64(w.sessionBytes, int64(n))
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}
