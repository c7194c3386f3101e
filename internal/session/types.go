package session

import (
	"time"

	"github.com/DR-lin-eng/download-speed-tester/internal/resolver"
)

// Config carries the read-only parameters shared by all workers of a session.
type Config struct {
	Concurrency    int
	TimeBudget     time.Duration
	SampleInterval time.Duration
	UserAgent      string
}

const (
	DefaultTimeBudget     = 60 * time.Second
	DefaultSampleInterval = 500 * time.Millisecond

	// Same UA the classic speed testers send; some CDNs throttle unknown agents.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

func (c Config) withDefaults() Config {
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.TimeBudget <= 0 {
		c.TimeBudget = DefaultTimeBudget
	}
	if c.SampleInterval <= 0 {
		c.SampleInterval = DefaultSampleInterval
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	return c
}

// Status is a worker's terminal state.
type Status int

const (
	StatusCompleted Status = iota
	StatusTimedOut
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusTimedOut:
		return "timed_out"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Sample is one progress observation: cumulative bytes received at an elapsed
// offset from the shared session start.
type Sample struct {
	Elapsed time.Duration `json:"elapsed"`
	Bytes   int64         `json:"bytes"`
}

// WorkerResult holds one worker's time series and terminal state. Owned by the
// coordinator that spawned it; never mutated after the worker returns.
type WorkerResult struct {
	WorkerID int           `json:"worker_id"`
	ID       string        `json:"id"`
	Samples  []Sample      `json:"samples"`
	Status   Status        `json:"status"`
	Reason   string        `json:"reason,omitempty"`
	Err      error         `json:"-"`
	Bytes    int64         `json:"bytes"`
	Duration time.Duration `json:"duration"`
}

// AvgThroughput is the worker's final average in bytes per second.
func (w WorkerResult) AvgThroughput() float64 {
	if w.Duration <= 0 {
		return 0
	}
	return float64(w.Bytes) / w.Duration.Seconds()
}

// Result is one session's raw outcome: the per-worker series plus session
// bounds. Immutable once Run returns.
type Result struct {
	Target      *resolver.Target
	RemoteAddr  string // peer address observed on the first connection
	Concurrency int
	Workers     []WorkerResult
	Start       time.Time
	End         time.Time
}

func (r *Result) TotalBytes() int64 {
	var total int64
	for _, w := range r.Workers {
		total += w.Bytes
	}
	return total
}

func (r *Result) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Counts tallies workers by terminal status.
func (r *Result) Counts() (completed, timedOut, failed int) {
	for _, w := range r.Workers {
		switch w.Status {
		case StatusCompleted:
			completed++
		case StatusTimedOut:
			timedOut++
		case StatusFailed:
			failed++
		}
	}
	return
}
