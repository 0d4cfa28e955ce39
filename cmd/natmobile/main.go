package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/pkg/profile"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/r-mite/nat-mobile/internal/config"
	"github.com/r-mite/nat-mobile/internal/logging"
	"github.com/r-mite/nat-mobile/internal/observability"
	"github.com/r-mite/nat-mobile/internal/scenario"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	configPath  string
	scheduler   string
	stop        time.Duration
	interval    time.Duration
	stations    int
	metricsAddr string
	linger      time.Duration
	profileMode string
	profileDir  string
	outDir      string
	runID       string
	logLevel    string
}

func parseFlags(args []string, stderr io.Writer) (*options, *flag.FlagSet, error) {
	fs := flag.NewFlagSet("natmobile", flag.ContinueOnError)
	fs.SetOutput(stderr)

	o := &options{}
	fs.StringVar(&o.configPath, "config", "", "YAML scenario file; built-in defaults when empty")
	fs.StringVar(&o.scheduler, "scheduler", config.SchedulerBuiltin, "event scheduler backend (builtin|evtm)")
	fs.DurationVar(&o.stop, "stop", 0, "virtual stop time, overrides run.stop_time")
	fs.DurationVar(&o.interval, "interval", 0, "sampling interval, overrides sampling.interval")
	fs.IntVar(&o.stations, "stations", 0, "number of tracked stations, overrides stations.count")
	fs.StringVar(&o.metricsAddr, "metrics-addr", "", "HTTP address for Prometheus /metrics; disabled when empty")
	fs.DurationVar(&o.linger, "metrics-linger", 0, "keep serving /metrics this long after the run")
	fs.StringVar(&o.profileMode, "profile", "", "write a cpu or mem profile")
	fs.StringVar(&o.profileDir, "profile-dir", ".", "directory for profile output")
	fs.StringVar(&o.outDir, "out", "", "directory for gnuplot scripts and CSV samples; nothing is written when empty")
	fs.StringVar(&o.runID, "run-id", "", "run identifier; generated when empty")
	fs.StringVar(&o.logLevel, "log-level", "", "log level (debug|info|warn|error), overrides LOG_LEVEL")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if fs.NArg() > 0 {
		return nil, nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return o, fs, nil
}

// loadConfig reads the scenario file and applies the flags that were set
// on the command line.
func loadConfig(o *options, fs *flag.FlagSet) (config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		loaded, err := config.LoadUnchecked(o.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = *loaded
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "scheduler":
			cfg.Run.Scheduler = o.scheduler
		case "stop":
			cfg.Run.StopTime = o.stop
		case "interval":
			cfg.Sampling.Interval = o.interval
		case "stations":
			cfg.Stations.Count = o.stations
		}
	})
	return cfg, cfg.Validate()
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	o, fs, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 2
	}

	level := o.logLevel
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	log := logging.New(logging.Config{
		Level:  level,
		Format: os.Getenv("LOG_FORMAT"),
		Output: stderr,
	})

	cfg, err := loadConfig(o, fs)
	if err != nil {
		log.Error(ctx, "invalid configuration", logging.String("path", o.configPath), logging.Err(err))
		return 1
	}

	switch o.profileMode {
	case "":
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(o.profileDir), profile.NoShutdownHook, profile.Quiet).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath(o.profileDir), profile.NoShutdownHook, profile.Quiet).Stop()
	default:
		log.Error(ctx, "unknown profile mode", logging.String("profile", o.profileMode))
		return 2
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		return 1
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	reg := prometheus.NewRegistry()
	collector, err := observability.NewStatsCollector(reg)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.Err(err))
		return 1
	}
	schedMetrics, err := observability.NewSchedulerCollector(reg)
	if err != nil {
		log.Error(ctx, "failed to initialise scheduler metrics", logging.Err(err))
		return 1
	}

	var metricsSrv *http.Server
	if o.metricsAddr != "" {
		metricsSrv = serveMetrics(o.metricsAddr, collector, log)
	}

	res, err := scenario.Run(ctx, cfg, scenario.Options{
		Logger:           log,
		Metrics:          collector,
		SchedulerMetrics: schedMetrics,
		RunID:            o.runID,
	})
	if err != nil {
		if scenario.IsConfigError(err) {
			log.Error(ctx, "statistics engine does not match the radio configuration", logging.Err(err))
		}
		shutdownMetrics(metricsSrv)
		return 1
	}

	if err := printSummary(stdout, res); err != nil {
		log.Error(ctx, "failed to print summary", logging.Err(err))
		return 1
	}

	if o.outDir != "" {
		paths, err := scenario.Export(o.outDir, res)
		if err != nil {
			log.Error(ctx, "export failed", logging.String("dir", o.outDir), logging.Err(err))
			return 1
		}
		log.Info(ctx, "exported datasets", logging.String("dir", o.outDir), logging.Int("files", len(paths)))
	}

	if metricsSrv != nil && o.linger > 0 {
		log.Info(ctx, "serving metrics until linger expires", logging.Duration("linger", o.linger))
		select {
		case <-time.After(o.linger):
		case <-ctx.Done():
		}
	}
	shutdownMetrics(metricsSrv)
	return 0
}

func serveMetrics(addr string, collector *observability.StatsCollector, log logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

func shutdownMetrics(srv *http.Server) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

func printSummary(w io.Writer, res *scenario.Result) error {
	fmt.Fprintf(w, "run %s: scheduler=%s virtual=%s wall=%s beacons=%d events=%d\n",
		res.RunID, res.Scheduler, res.StopTime, res.WallTime.Round(time.Microsecond), res.Beacons, res.Events.NumDispatched)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STATION\tMAC\tSAMPLES\tDELIVERED\tTHROUGHPUT MEAN\tTHROUGHPUT MEDIAN\tTHROUGHPUT MAX\tPOWER MEAN\tPOWER STDDEV")
	for _, st := range res.Stations {
		tp := st.Throughput.Summary()
		pw := st.Power.Summary()
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d/%d\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\n",
			st.ID, st.Address, tp.Count, st.FramesDelivered, st.FramesSent,
			tp.Mean, tp.Median, tp.Max, pw.Mean, pw.StdDev)
	}
	return tw.Flush()
}
