package session

import (
	"context"
	"net/http"
	"net/http/httptrace"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DR-lin-eng/download-speed-tester/internal/resolver"
)

// Snapshot is sent over the updates channel while a session runs.
type Snapshot struct {
	Elapsed    time.Duration
	TotalBytes int64
	Speed      float64 // bytes/s over the last tick
	AvgSpeed   float64 // bytes/s since session start
	Active     int
	Done       int
	Failed     int
}

// UpdateChan carries live snapshots to the CLI progress line or the TUI.
type UpdateChan chan Snapshot

// Coordinator launches the configured number of workers against one target,
// waits for every terminal status, and returns the raw per-worker results.
type Coordinator struct {
	Target  *resolver.Target
	Cfg     Config
	Client  *http.Client
	Updates UpdateChan

	received int64        // atomic, session-wide bytes
	active   int64        // atomic
	done     int64        // atomic
	failed   int64        // atomic
	remote   atomic.Value // string
}

func NewCoordinator(target *resolver.Target, cfg Config, updates UpdateChan) *Coordinator {
	cfg = cfg.withDefaults()
	if updates == nil {
		// Avoid nil sends if no consumer is wired
		updates = make(UpdateChan, 10)
	}
	return &Coordinator{
		Target:  target,
		Cfg:     cfg,
		Client:  target.Client(cfg.Concurrency),
		Updates: updates,
	}
}

// Run executes one measurement session. All workers observe the same
// reference start and the same wall-clock deadline, so their elapsed offsets
// are directly comparable. Run blocks until every worker reports a terminal
// status; worker failures are recorded, never propagated.
func (c *Coordinator) Run(ctx context.Context) *Result {
	start := time.Now()
	dctx, cancel := context.WithDeadline(ctx, start.Add(c.Cfg.TimeBudget))
	defer cancel()

	// One trace on the shared context captures the peer address of the first
	// established connection for reporting.
	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			if info.Conn != nil {
				c.remote.CompareAndSwap(nil, info.Conn.RemoteAddr().String())
			}
		},
	}
	tctx := httptrace.WithClientTrace(dctx, trace)

	c.startTickLoop(dctx, start)

	workers := make([]WorkerResult, c.Cfg.Concurrency)
	gate := make(chan struct{})
	var wg sync.WaitGroup

	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-gate

			atomic.AddInt64(&c.active, 1)
			w := &worker{
				id:           i,
				client:       c.Client,
				url:          c.Target.URL,
				cfg:          c.Cfg,
				start:        start,
				sessionBytes: &c.received,
			}
			workers[i] = w.run(tctx)

			atomic.AddInt64(&c.active, -1)
			atomic.AddInt64(&c.done, 1)
			if workers[i].Status == StatusFailed {
				atomic.AddInt64(&c.failed, 1)
			}
		}(i)
	}
	close(gate)
	wg.Wait()

	remote := "system-default"
	if v, ok := c.remote.Load().(string); ok {
		remote = v
	}

	return &Result{
		Target:      c.Target,
		RemoteAddr:  remote,
		Concurrency: c.Cfg.Concurrency,
		Workers:     workers,
		Start:       start,
		End:         time.Now(),
	}
}

// startTickLoop pushes snapshots until the session context ends, mirroring
// the sampling interval so the live view moves with the series.
func (c *Coordinator) startTickLoop(ctx context.Context, start time.Time) {
	go func() {
		ticker := time.NewTicker(c.Cfg.SampleInterval)
		defer ticker.Stop()

		var lastBytes int64
		lastTime := start
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				total := atomic.LoadInt64(&c.received)
				dt := now.Sub(lastTime).Seconds()
				if dt <= 0 {
					dt = c.Cfg.SampleInterval.Seconds()
				}
				elapsed := now.Sub(start)

				s := Snapshot{
					Elapsed:    elapsed,
					TotalBytes: total,
					Speed:      float64(total-lastBytes) / dt,
					Active:     int(atomic.LoadInt64(&c.active)),
					Done:       int(atomic.LoadInt64(&c.done)),
					Failed:     int(atomic.LoadInt64(&c.failed)),
				}
				if sec := elapsed.Seconds(); sec > 0 {
					s.AvgSpeed = float64(total) / sec
				}

				// Non-blocking send; a slow consumer just misses ticks
				select {
				case c.Updates <- s:
				default:
				}

				lastBytes = total
				lastTime = now
			}
		}
	}()
}
