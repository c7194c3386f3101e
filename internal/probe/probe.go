package probe

import (
	"context"
	"net/http"
	"time"

	"github.com/DR-lin-eng/download-speed-tester/internal/resolver"
	"github.com/DR-lin-eng/download-speed-tester/internal/session"
)

// Config bounds the concurrency search.
type Config struct {
	Start     int     // first concurrency level
	Step      int     // level increment between sessions
	Max       int     // hard cap on concurrency
	Threshold float64 // fraction of the N=1 per-worker throughput below which the search stops
	Session   session.Config
}

const (
	DefaultMax = 32
	// A 20% per-worker drop against the single-connection baseline marks the
	// knee; beyond it extra connections only split the same bandwidth.
	DefaultThreshold = 0.8
)

func (c Config) withDefaults() Config {
	if c.Start < 1 {
		c.Start = 1
	}
	if c.Step < 1 {
		c.Step = 1
	}
	if c.Max < c.Start {
		c.Max = DefaultMax
	}
	if c.Threshold <= 0 || c.Threshold >= 1 {
		c.Threshold = DefaultThreshold
	}
	return c
}

// Point is one probed concurrency level. Aggregate is the sum of per-worker
// average throughput; PerWorker is their mean. Bytes per second throughout.
type Point struct {
	Concurrency int     `json:"concurrency"`
	Aggregate   float64 `json:"aggregate_bps"`
	PerWorker   float64 `json:"per_worker_bps"`
	Failed      bool    `json:"failed"`
}

// Stop reasons recorded on a Report.
const (
	StopThreshold = "threshold"
	StopFailure   = "worker_failure"
	StopMax       = "max_concurrency"
	StopCanceled  = "canceled"
)

// Report is the full probed curve, so the renderer can show the knee rather
// than just the chosen maximum.
type Report struct {
	Target     *resolver.Target
	Points     []Point `json:"points"`
	Baseline   float64 `json:"baseline_bps"` // per-worker throughput at N=1
	Best       Point   `json:"best"`
	StopReason string  `json:"stop_reason"`
	Start      time.Time
	End        time.Time
}

// Prober discovers the highest concurrency a single resolved IP sustains by
// running sessions at increasing worker counts.
type Prober struct {
	Target  *resolver.Target
	Cfg     Config
	Client  *http.Client // shared across levels; tests may inject their own
	Updates session.UpdateChan

	// OnLevel and OnPoint, when set, report search progress to the CLI.
	OnLevel func(concurrency int)
	OnPoint func(pt Point)
}

func NewProber(target *resolver.Target, cfg Config, updates session.UpdateChan) *Prober {
	cfg = cfg.withDefaults()
	return &Prober{
		Target:  target,
		Cfg:     cfg,
		Client:  target.Client(cfg.Max),
		Updates: updates,
	}
}

// Run probes levels start, start+step, ... until per-worker throughput drops
// below threshold x baseline, a worker fails, the cap is reached, or the
// context ends. The N=1 baseline session always runs first; it doubles as the
// first point when the search starts at 1.
func (p *Prober) Run(ctx context.Context) *Report {
	cfg := p.Cfg
	rep := &Report{Target: p.Target, Start: time.Now()}
	defer func() {
		rep.End = time.Now()
		for _, pt := range rep.Points {
			if !pt.Failed && pt.Aggregate > rep.Best.Aggregate {
				rep.Best = pt
			}
		}
	}()

	record := func(pt Point) {
		rep.Points = append(rep.Points, pt)
		if p.OnPoint != nil {
			p.OnPoint(pt)
		}
	}

	if p.OnLevel != nil {
		p.OnLevel(1)
	}
	base := p.runLevel(ctx, 1)
	basePt := pointFrom(base)
	rep.Baseline = basePt.PerWorker

	level := cfg.Start
	if cfg.Start == 1 {
		record(basePt)
		if basePt.Failed {
			rep.StopReason = StopFailure
			return rep
		}
		level += cfg.Step
	} else if basePt.Failed {
		rep.StopReason = StopFailure
		return rep
	}

	for ; level <= cfg.Max; level += cfg.Step {
		if ctx.Err() != nil {
			rep.StopReason = StopCanceled
			return rep
		}
		if p.OnLevel != nil {
			p.OnLevel(level)
		}

		pt := pointFrom(p.runLevel(ctx, level))
		record(pt)

		if pt.Failed {
			rep.StopReason = StopFailure
			return rep
		}
		if rep.Baseline > 0 && pt.PerWorker < cfg.Threshold*rep.Baseline {
			rep.StopReason = StopThreshold
			return rep
		}
	}

	rep.StopReason = StopMax
	return rep
}

func (p *Prober) runLevel(ctx context.Context, concurrency int) *session.Result {
	scfg := p.Cfg.Session
	scfg.Concurrency = concurrency

	c := session.NewCoordinator(p.Target, scfg, p.Updates)
	if p.Client != nil {
		c.Client = p.Client
	}
	return c.Run(ctx)
}

func pointFrom(res *session.Result) Point {
	pt := Point{Concurrency: res.Concurrency}
	for _, w := range res.Workers {
		if w.Status == session.StatusFailed {
			pt.Failed = true
		}
		pt.Aggregate += w.AvgThroughput()
	}
	if len(res.Workers) > 0 {
		pt.PerWorker = pt.Aggregate / float64(len(res.Workers))
	}
	return pt
}
