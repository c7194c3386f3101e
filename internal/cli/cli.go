package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/DR-lin-eng/download-speed-tester/internal/chart"
	"github.com/DR-lin-eng/download-speed-tester/internal/compare"
	"github.com/DR-lin-eng/download-speed-tester/internal/probe"
	"github.com/DR-lin-eng/download-speed-tester/internal/report"
	"github.com/DR-lin-eng/download-speed-tester/internal/resolver"
	"github.com/DR-lin-eng/download-speed-tester/internal/session"
	"github.com/DR-lin-eng/download-speed-tester/internal/stats"
	"github.com/DR-lin-eng/download-speed-tester/internal/storage"
	"github.com/DR-lin-eng/download-speed-tester/internal/tui/live"
	"github.com/DR-lin-eng/download-speed-tester/internal/tui/styles"
)

const mib = 1024 * 1024

// Options is everything a run needs, collected from flags, config file or the
// interactive prompts.
type Options struct {
	URL       string
	IP        string
	Workers   int
	Duration  time.Duration
	Interval  time.Duration
	UserAgent string

	Probe      bool
	ProbeStart int
	ProbeStep  int
	ProbeMax   int
	Threshold  float64

	Compare       bool
	CompareLevels []int

	OutPrefix string
	ChartDir  string
	Live      bool
	NoHistory bool
}

func (o Options) sessionConfig() session.Config {
	return session.Config{
		Concurrency:    o.Workers,
		TimeBudget:     o.Duration,
		SampleInterval: o.Interval,
		UserAgent:      o.UserAgent,
	}
}

// Run executes the requested mode end to end: measure, summarize, render,
// export, record. Only setup failures return an error.
func Run(opts Options) error {
	target, err := resolver.Resolve(opts.URL, opts.IP)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	printHeader(ctx, target, opts)

	if opts.Probe {
		return runProbe(ctx, target, opts)
	}
	if opts.Compare {
		return runCompare(ctx, target, opts)
	}
	return runSession(ctx, target, opts)
}

func runSession(ctx context.Context, target *resolver.Target, opts Options) error {
	updates := make(session.UpdateChan, 100)
	coord := session.NewCoordinator(target, opts.sessionConfig(), updates)

	var res *session.Result
	if opts.Live {
		res = runLive(ctx, coord, updates, opts)
	} else {
		res = runHeadless(ctx, coord, updates)
	}

	agg := stats.Aggregate(res, coord.Cfg.SampleInterval)
	printSummary(res, agg)

	if path, err := chart.RenderSession(res, agg, opts.ChartDir); err != nil {
		fmt.Printf("⚠️  chart skipped: %v\n", err)
	} else {
		fmt.Printf("📈 Chart saved: %s\n", path)
	}

	if opts.OutPrefix != "" {
		exportSession(res, agg, opts.OutPrefix)
	}
	if !opts.NoHistory {
		recordSession(res, agg)
	}
	return nil
}

func runHeadless(ctx context.Context, coord *session.Coordinator, updates session.UpdateChan) *session.Result {
	done := make(chan *session.Result, 1)
	go func() {
		done <- coord.Run(ctx)
	}()

	budget := coord.Cfg.TimeBudget
	for {
		select {
		case s := <-updates:
			pct := float64(s.Elapsed) / float64(budget)
			if pct > 1.0 {
				pct = 1.0
			}
			fmt.Printf("\r%s %3.0f%% | %6.1fs | %8.2f MB | cur %6.2f MB/s | avg %6.2f MB/s | active %d",
				progressBar(pct, 20), pct*100,
				s.Elapsed.Seconds(),
				float64(s.TotalBytes)/mib,
				s.Speed/mib,
				s.AvgSpeed/mib,
				s.Active,
			)
		case res := <-done:
			fmt.Println()
			return res
		}
	}
}

func runLive(ctx context.Context, coord *session.Coordinator, updates session.UpdateChan, opts Options) *session.Result {
	// The session runs on its own cancelable context: bubbletea owns the
	// terminal in raw mode, so q and ctrl+c surface as key messages here
	// rather than as signals.
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := live.NewModel(coord.Target.Describe(), coord.Cfg.Concurrency, coord.Cfg.TimeBudget)
	p := tea.NewProgram(m)

	done := make(chan *session.Result, 1)
	go func() {
		res := coord.Run(sctx)
		done <- res
		p.Send(live.DoneMsg{})
	}()
	go func() {
		for s := range updates {
			p.Send(s)
		}
	}()

	if _, err := p.Run(); err != nil {
		fmt.Printf("live view failed: %v\n", err)
	}
	// Quitting the view before DoneMsg stops the workers right away.
	cancel()
	return <-done
}

func runProbe(ctx context.Context, target *resolver.Target, opts Options) error {
	cfg := probe.Config{
		Start:     opts.ProbeStart,
		Step:      opts.ProbeStep,
		Max:       opts.ProbeMax,
		Threshold: opts.Threshold,
		Session:   opts.sessionConfig(),
	}

	updates := make(session.UpdateChan, 100)
	go func() { // drain; per-level progress is reported via callbacks
		for range updates {
		}
	}()

	prober := probe.NewProber(target, cfg, updates)
	prober.OnLevel = func(n int) {
		fmt.Printf("🔎 Testing %d worker(s)...\n", n)
	}
	prober.OnPoint = func(pt probe.Point) {
		mark := "✓"
		if pt.Failed {
			mark = "✗"
		}
		fmt.Printf("   %s %3d workers: %8.2f MB/s aggregate, %6.2f MB/s per worker\n",
			mark, pt.Concurrency, pt.Aggregate/mib, pt.PerWorker/mib)
	}

	rep := prober.Run(ctx)
	printProbeSummary(rep)

	if path, err := chart.RenderProbe(rep, opts.ChartDir); err != nil {
		fmt.Printf("⚠️  chart skipped: %v\n", err)
	} else {
		fmt.Printf("📈 Chart saved: %s\n", path)
	}

	if opts.OutPrefix != "" {
		if err := report.ExportProbeJSON(rep, opts.OutPrefix+"_probe.json"); err != nil {
			fmt.Printf("⚠️  export failed: %v\n", err)
		} else {
			fmt.Printf("💾 Report saved: %s_probe.json\n", opts.OutPrefix)
		}
	}
	if !opts.NoHistory {
		recordProbe(rep)
	}
	return nil
}

func runCompare(ctx context.Context, target *resolver.Target, opts Options) error {
	cfg := compare.Config{
		Levels:  opts.CompareLevels,
		Session: opts.sessionConfig(),
	}

	updates := make(session.UpdateChan, 100)
	go func() { // drain; per-level progress is reported via callbacks
		for range updates {
		}
	}()

	cmp := compare.NewComparer(target, cfg, updates)
	cmp.OnLevel = func(n int) {
		fmt.Printf("🔁 Running %d worker(s) for %s...\n", n, opts.Duration)
	}
	cmp.OnRun = func(r compare.Run) {
		fmt.Printf("   ✓ %3d workers: %8.2f MB avg %6.2f MB/s peak %6.2f MB/s\n",
			r.Concurrency, float64(r.Stats.TotalBytes)/mib, r.Stats.MeanBps/mib, r.Stats.PeakBps/mib)
	}

	rep := cmp.Run(ctx)
	printCompareSummary(rep)

	if path, err := chart.RenderComparison(rep, opts.ChartDir); err != nil {
		fmt.Printf("⚠️  chart skipped: %v\n", err)
	} else {
		fmt.Printf("📈 Chart saved: %s\n", path)
	}

	if !opts.NoHistory {
		recordComparison(rep)
	}
	return nil
}

// --- console output ---

func printHeader(ctx context.Context, target *resolver.Target, opts Options) {
	mode := "fixed-concurrency download"
	switch {
	case opts.Probe:
		mode = "max-concurrency probe"
	case opts.Compare:
		mode = "worker-count comparison"
	case opts.Workers == 1:
		mode = "single download"
	}

	fmt.Printf("\n🚀 DOWNLOAD SPEED TEST\n")
	fmt.Printf("======================================================================\n")
	fmt.Printf("Target URL : %s\n", opts.URL)
	if target.PinnedIP != "" {
		fmt.Printf("Connection : pinned IP %s (Host/SNI stay %s)\n", target.PinnedIP, target.Host)
	} else {
		fmt.Printf("Connection : DNS resolution (%s)\n", target.Lookup())
	}
	fmt.Printf("Mode       : %s\n", mode)
	switch {
	case opts.Probe:
		fmt.Printf("Probe      : start %d, step %d, max %d, threshold %.0f%%\n",
			opts.ProbeStart, opts.ProbeStep, opts.ProbeMax, opts.Threshold*100)
	case opts.Compare:
		fmt.Printf("Ladder     : %s workers\n", levelsString(opts.CompareLevels))
	default:
		fmt.Printf("Workers    : %d\n", opts.Workers)
	}
	if lat, err := measureLatency(ctx, target, opts.UserAgent); err == nil {
		fmt.Printf("Latency    : %.1f ms\n", float64(lat.Microseconds())/1000)
	} else {
		fmt.Printf("Latency    : n/a\n")
	}
	fmt.Printf("Budget     : %s per session, sampling every %s\n", opts.Duration, opts.Interval)
	fmt.Printf("======================================================================\n\n")
}

// measureLatency times a single HEAD request before the test starts, the way
// classic speed testers report a baseline round trip.
func measureLatency(ctx context.Context, target *resolver.Target, userAgent string) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target.URL, nil)
	if err != nil {
		return 0, err
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	client := target.Client(1)
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return time.Since(start), nil
}

func levelsString(levels []int) string {
	if len(levels) == 0 {
		levels = compare.DefaultLevels
	}
	parts := make([]string, len(levels))
	for i, n := range levels {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, "/")
}

func progressBar(pct float64, width int) string {
	filled := int(pct * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("-", width-filled) + "]"
}

func printSummary(res *session.Result, agg *stats.AggregateStats) {
	completed, timedOut, failed := res.Counts()

	fmt.Printf("\n📊 TEST RESULTS\n")
	fmt.Printf("======================================================================\n")
	fmt.Printf("Remote address : %s\n", res.RemoteAddr)
	fmt.Printf("Duration       : %.1fs\n", agg.Duration.Seconds())
	fmt.Printf("Total download : %.2f MB\n", float64(agg.TotalBytes)/mib)
	fmt.Printf("Average speed  : %s\n", styles.Value.Render(fmt.Sprintf("%.2f MB/s", agg.MeanBps/mib)))
	fmt.Printf("Peak speed     : %.2f MB/s\n", agg.PeakBps/mib)
	fmt.Printf("Stability      : p50 %.2f | p90 %.2f | p99 %.2f MB/s\n",
		agg.P50Bps/mib, agg.P90Bps/mib, agg.P99Bps/mib)
	fmt.Printf("Workers        : %d completed, %d timed out, %d failed\n", completed, timedOut, failed)

	if failed > 0 {
		fmt.Printf("\n❌ FAILURES\n")
		for _, w := range res.Workers {
			if w.Status == session.StatusFailed {
				fmt.Printf("   worker %d: %s\n", w.WorkerID, styles.Error.Render(w.Reason))
			}
		}
	}
	fmt.Printf("======================================================================\n")
}

func printProbeSummary(rep *probe.Report) {
	fmt.Printf("\n📊 PROBE RESULTS\n")
	fmt.Printf("======================================================================\n")
	fmt.Printf("Levels tried   : %d\n", len(rep.Points))
	fmt.Printf("Baseline (N=1) : %.2f MB/s\n", rep.Baseline/mib)
	fmt.Printf("Best level     : %s\n",
		styles.Value.Render(fmt.Sprintf("%d workers at %.2f MB/s aggregate", rep.Best.Concurrency, rep.Best.Aggregate/mib)))
	fmt.Printf("Stopped on     : %s\n", rep.StopReason)
	fmt.Printf("======================================================================\n")
}

func printCompareSummary(rep *compare.Report) {
	fmt.Printf("\n📊 COMPARISON RESULTS\n")
	fmt.Printf("======================================================================\n")
	fmt.Printf("%-8s %-12s %-12s %-12s %s\n", "WORKERS", "TOTAL MB", "AVG MB/s", "PEAK MB/s", "OUTCOME")
	for _, r := range rep.Runs {
		completed, timedOut, failed := r.Result.Counts()
		outcome := fmt.Sprintf("%d ok, %d cut, %d failed", completed, timedOut, failed)
		fmt.Printf("%-8d %-12.2f %-12.2f %-12.2f %s\n",
			r.Concurrency,
			float64(r.Stats.TotalBytes)/mib,
			r.Stats.MeanBps/mib,
			r.Stats.PeakBps/mib,
			outcome,
		)
	}
	if rep.Best.Result != nil {
		fmt.Printf("\nBest configuration : %s\n",
			styles.Value.Render(fmt.Sprintf("%d workers at %.2f MB/s", rep.Best.Concurrency, rep.Best.Stats.MeanBps/mib)))
	}
	fmt.Printf("======================================================================\n")
}

// ParseLevels reads a comma-separated worker ladder like "1,8,16,32,64".
func ParseLevels(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var levels []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid worker count %q", strings.TrimSpace(part))
		}
		levels = append(levels, n)
	}
	return levels, nil
}

// --- persistence ---

func exportSession(res *session.Result, agg *stats.AggregateStats, prefix string) {
	if err := report.ExportCSV(res, prefix+".csv"); err != nil {
		fmt.Printf("⚠️  CSV export failed: %v\n", err)
		return
	}
	if err := report.ExportJSON(res, agg, prefix+"_summary.json"); err != nil {
		fmt.Printf("⚠️  JSON export failed: %v\n", err)
		return
	}
	fmt.Printf("💾 Reports saved: %s.csv, %s_summary.json\n", prefix, prefix)
}

func recordSession(res *session.Result, agg *stats.AggregateStats) {
	store, err := storage.NewStore()
	if err != nil {
		return // history is best-effort
	}
	defer store.Close()

	completed, timedOut, failed := res.Counts()
	store.Save(storage.HistoryItem{
		Timestamp:   res.Start,
		Mode:        "download",
		URL:         res.Target.URL,
		IP:          res.RemoteAddr,
		Concurrency: res.Concurrency,
		Seconds:     agg.Duration.Seconds(),
		Summary: storage.Summary{
			TotalBytes: agg.TotalBytes,
			MeanBps:    agg.MeanBps,
			PeakBps:    agg.PeakBps,
			Workers:    len(res.Workers),
			Completed:  completed,
			TimedOut:   timedOut,
			Failed:     failed,
		},
	})
}

func recordComparison(rep *compare.Report) {
	if rep.Best.Result == nil {
		return
	}
	store, err := storage.NewStore()
	if err != nil {
		return
	}
	defer store.Close()

	completed, timedOut, failed := rep.Best.Result.Counts()
	store.Save(storage.HistoryItem{
		Timestamp:   rep.Start,
		Mode:        "comparison",
		URL:         rep.Target.URL,
		IP:          rep.Best.Result.RemoteAddr,
		Concurrency: rep.Best.Concurrency,
		Seconds:     rep.End.Sub(rep.Start).Seconds(),
		Summary: storage.Summary{
			TotalBytes: rep.Best.Stats.TotalBytes,
			MeanBps:    rep.Best.Stats.MeanBps,
			PeakBps:    rep.Best.Stats.PeakBps,
			Workers:    rep.Best.Concurrency,
			Completed:  completed,
			TimedOut:   timedOut,
			Failed:     failed,
		},
	})
}

func recordProbe(rep *probe.Report) {
	store, err := storage.NewStore()
	if err != nil {
		return
	}
	defer store.Close()

	store.Save(storage.HistoryItem{
		Timestamp:   rep.Start,
		Mode:        "probe",
		URL:         rep.Target.URL,
		IP:          rep.Target.PinnedIP,
		Concurrency: rep.Best.Concurrency,
		Seconds:     rep.End.Sub(rep.Start).Seconds(),
		Summary: storage.Summary{
			MeanBps: rep.Best.Aggregate,
			Workers: rep.Best.Concurrency,
		},
	})
}
