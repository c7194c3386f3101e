package compare

import (
	"context"
	"net/http"
	"time"

	"github.com/DR-lin-eng/download-speed-tester/internal/resolver"
	"github.com/DR-lin-eng/download-speed-tester/internal/session"
	"github.com/DR-lin-eng/download-speed-tester/internal/stats"
)

// DefaultLevels is the classic single-vs-multi ladder.
var DefaultLevels = []int{1, 8, 16, 32, 64}

// Config holds the ladder of worker counts to compare.
type Config struct {
	Levels  []int
	Session session.Config
}

func (c Config) withDefaults() Config {
	if len(c.Levels) == 0 {
		c.Levels = DefaultLevels
	}
	return c
}

// Run is one finished ladder step with its aggregated view.
type Run struct {
	Concurrency int
	Result      *session.Result
	Stats       *stats.AggregateStats
}

// Report collects every ladder step; Best is the run with the highest mean
// throughput.
type Report struct {
	Target *resolver.Target
	Runs   []Run
	Best   Run
	Start  time.Time
	End    time.Time
}

// Comparer runs full sessions at each configured worker count against one
// target, so the per-level speed series can be overlaid in a single chart.
type Comparer struct {
	Target  *resolver.Target
	Cfg     Config
	Client  *http.Client // shared across levels; tests may inject their own
	Updates session.UpdateChan

	// OnLevel and OnRun, when set, report ladder progress to the CLI.
	OnLevel func(concurrency int)
	OnRun   func(r Run)
}

func NewComparer(target *resolver.Target, cfg Config, updates session.UpdateChan) *Comparer {
	cfg = cfg.withDefaults()
	max := 1
	for _, n := range cfg.Levels {
		if n > max {
			max = n
		}
	}
	return &Comparer{
		Target:  target,
		Cfg:     cfg,
		Client:  target.Client(max),
		Updates: updates,
	}
}

// Run walks the ladder in order. A canceled context ends the ladder after the
// current session; the runs finished so far are still reported.
func (c *Comparer) Run(ctx context.Context) *Report {
	rep := &Report{Target: c.Target, Start: time.Now()}
	defer func() {
		rep.End = time.Now()
		for _, r := range rep.Runs {
			if rep.Best.Result == nil || r.Stats.MeanBps > rep.Best.Stats.MeanBps {
				rep.Best = r
			}
		}
	}()

	for _, level := range c.Cfg.Levels {
		if ctx.Err() != nil {
			return rep
		}
		if c.OnLevel != nil {
			c.OnLevel(level)
		}

		scfg := c.Cfg.Session
		scfg.Concurrency = level

		coord := session.NewCoordinator(c.Target, scfg, c.Updates)
		if c.Client != nil {
			coord.Client = c.Client
		}
		res := coord.Run(ctx)

		r := Run{
			Concurrency: level,
			Result:      res,
			Stats:       stats.Aggregate(res, scfg.SampleInterval),
		}
		rep.Runs = append(rep.Runs, r)
		if c.OnRun != nil {
			c.OnRun(r)
		}
	}
	return rep
}
