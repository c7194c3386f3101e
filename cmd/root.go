package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/DR-lin-eng/download-speed-tester/internal/banner"
	"github.com/DR-lin-eng/download-speed-tester/internal/cli"
	"github.com/DR-lin-eng/download-speed-tester/internal/dummy"
	"github.com/DR-lin-eng/download-speed-tester/internal/probe"
	"github.com/DR-lin-eng/download-speed-tester/internal/session"
	"github.com/DR-lin-eng/download-speed-tester/internal/storage"
)

var (
	cfgFile string

	// CLI Flags
	url        string
	overrideIP string
	workers    int
	durationS  float64
	intervalS  float64
	userAgent  string
	doProbe    bool
	probeStart int
	probeStep  int
	probeMax   int
	threshold  float64
	doCompare  bool
	compareStr string
	outPrefix  string
	chartDir   string
	liveView   bool
	noHistory  bool
)

var rootCmd = &cobra.Command{
	Use:   "dlspeed",
	Short: "dlspeed - HTTP download throughput tester",
	Long: `
dlspeed measures HTTP(S) download throughput and stability with concurrent
workers, optionally pinned to a specific IP, and renders the results as
PNG charts.

Modes:
1. Single download       (--workers 1)
2. Fixed concurrency     (--workers N)
3. Max-concurrency probe (--probe)
4. Worker-count comparison (--compare)

Run without --url for interactive prompts.`,
	Run: func(cmd *cobra.Command, args []string) {
		opts := buildOptions(cmd)

		// No URL flag means the operator drives via prompts
		if !cmd.Flags().Changed("url") {
			var err error
			opts, err = cli.Prompt(opts)
			if err != nil {
				fmt.Fprintln(os.Stderr, "❌", err)
				os.Exit(1)
			}
		}

		if err := cli.Run(opts); err != nil {
			fmt.Fprintln(os.Stderr, "❌", err)
			os.Exit(1)
		}
	},
}

func Execute() {
	// Custom Help with Banner
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Println(banner.GetString())
		cmd.Usage()
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(dummyCmd)
	rootCmd.AddCommand(historyCmd)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.dlspeed.yaml)")

	rootCmd.Flags().StringVarP(&url, "url", "u", "", "Download URL (enables headless mode)")
	rootCmd.Flags().StringVar(&overrideIP, "ip", "", "Pin connections to this IP (Host/SNI keep the URL hostname)")
	rootCmd.Flags().IntVarP(&workers, "workers", "w", 32, "Concurrent download workers")
	rootCmd.Flags().Float64VarP(&durationS, "duration", "d", 60, "Time budget per session in seconds")
	rootCmd.Flags().Float64VarP(&intervalS, "interval", "i", 0.5, "Progress sample interval in seconds")
	rootCmd.Flags().StringVar(&userAgent, "user-agent", session.DefaultUserAgent, "User-Agent header")
	rootCmd.Flags().BoolVar(&doProbe, "probe", false, "Probe for the maximum sustainable concurrency")
	rootCmd.Flags().IntVar(&probeStart, "probe-start", 1, "First concurrency level to probe")
	rootCmd.Flags().IntVar(&probeStep, "probe-step", 1, "Concurrency increment between probe levels")
	rootCmd.Flags().IntVar(&probeMax, "probe-max", probe.DefaultMax, "Concurrency cap for the probe")
	rootCmd.Flags().Float64Var(&threshold, "threshold", probe.DefaultThreshold, "Per-worker degradation threshold (fraction of the N=1 baseline)")
	rootCmd.Flags().BoolVar(&doCompare, "compare", false, "Compare full sessions across a ladder of worker counts")
	rootCmd.Flags().StringVar(&compareStr, "compare-levels", "1,8,16,32,64", "Worker ladder for --compare, comma-separated")
	rootCmd.Flags().StringVarP(&outPrefix, "out", "o", "", "Output filename prefix for CSV/JSON reports")
	rootCmd.Flags().StringVar(&chartDir, "chart-dir", ".", "Directory for chart PNGs")
	rootCmd.Flags().BoolVar(&liveView, "live", false, "Show the live TUI view while downloading")
	rootCmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record this run in history")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigType("yaml")
			viper.SetConfigName(".dlspeed")
		}
	}
	viper.SetEnvPrefix("dlspeed")
	viper.AutomaticEnv()
	viper.ReadInConfig()
}

// buildOptions merges flags with config-file values: an unchanged flag yields
// to the config file when the key is set there.
func buildOptions(cmd *cobra.Command) cli.Options {
	intVal := func(flag, key string, v int) int {
		if !cmd.Flags().Changed(flag) && viper.IsSet(key) {
			return viper.GetInt(key)
		}
		return v
	}
	floatVal := func(flag, key string, v float64) float64 {
		if !cmd.Flags().Changed(flag) && viper.IsSet(key) {
			return viper.GetFloat64(key)
		}
		return v
	}
	stringVal := func(flag, key string, v string) string {
		if !cmd.Flags().Changed(flag) && viper.IsSet(key) {
			return viper.GetString(key)
		}
		return v
	}

	levels, err := cli.ParseLevels(stringVal("compare-levels", "compare.levels", compareStr))
	if err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}

	return cli.Options{
		URL:           url,
		IP:            overrideIP,
		Workers:       intVal("workers", "workers", workers),
		Duration:      time.Duration(floatVal("duration", "duration", durationS) * float64(time.Second)),
		Interval:      time.Duration(floatVal("interval", "interval", intervalS) * float64(time.Second)),
		UserAgent:     stringVal("user-agent", "user_agent", userAgent),
		Probe:         doProbe,
		ProbeStart:    intVal("probe-start", "probe.start", probeStart),
		ProbeStep:     intVal("probe-step", "probe.step", probeStep),
		ProbeMax:      intVal("probe-max", "probe.max", probeMax),
		Threshold:     floatVal("threshold", "probe.threshold", threshold),
		Compare:       doCompare,
		CompareLevels: levels,
		OutPrefix:     outPrefix,
		ChartDir:      chartDir,
		Live:          liveView,
		NoHistory:     noHistory,
	}
}

// --- Dummy Subcommand ---

var dummyCmd = &cobra.Command{
	Use:   "dummy",
	Short: "Run a local dummy origin for self-testing",
	Run: func(cmd *cobra.Command, args []string) {
		port, _ := cmd.Flags().GetInt("port")
		dummy.Start(dummy.ServerConfig{Port: port})
		select {}
	},
}

// --- History Subcommand ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past measurement sessions",
	Run: func(cmd *cobra.Command, args []string) {
		store, err := storage.NewStore()
		if err != nil {
			fmt.Fprintln(os.Stderr, "❌ cannot open history:", err)
			os.Exit(1)
		}
		defer store.Close()

		items := store.List()
		if len(items) == 0 {
			fmt.Println("No recorded sessions yet.")
			return
		}

		fmt.Printf("%-20s %-9s %-6s %-10s %-10s %s\n",
			"WHEN", "MODE", "N", "TOTAL MB", "AVG MB/s", "URL")
		for _, it := range items {
			fmt.Printf("%-20s %-9s %-6d %-10.2f %-10.2f %s\n",
				it.Timestamp.Format("2006-01-02 15:04:05"),
				it.Mode,
				it.Concurrency,
				float64(it.Summary.TotalBytes)/(1024*1024),
				it.Summary.MeanBps/(1024*1024),
				it.URL,
			)
		}
	},
}

func init() {
	dummyCmd.Flags().IntP("port", "p", 8080, "Port to run the dummy origin on")
}
