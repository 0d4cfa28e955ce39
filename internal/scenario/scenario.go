// Package scenario wires the access point, the tracked stations and their
// statistics engines onto one virtual-time scheduler and runs them to the
// configured stop time.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/r-mite/nat-mobile/core"
	"github.com/r-mite/nat-mobile/internal/config"
	"github.com/r-mite/nat-mobile/internal/eventsched"
	"github.com/r-mite/nat-mobile/internal/logging"
	"github.com/r-mite/nat-mobile/internal/observability"
	"github.com/r-mite/nat-mobile/internal/stats"
	"github.com/r-mite/nat-mobile/kb"
	"github.com/r-mite/nat-mobile/model"
	"github.com/r-mite/nat-mobile/timectrl"
)

// APID is the knowledge-base ID of the access point.
const APID = "ap"

// Stations are laid out on a grid of this width, DeltaX by DeltaY apart.
const (
	gridWidth  = 3
	gridDeltaX = 5.0
	gridDeltaY = 10.0
)

// Options carries the run's collaborators. The zero value runs silently.
type Options struct {
	Logger           logging.Logger
	Metrics          stats.MetricsRecorder
	SchedulerMetrics *observability.SchedulerCollector
	// Listeners observe the AP's radio events for every destination,
	// after the engine that owns it.
	Listeners []core.RadioListener
	// RunID overrides the generated run identifier.
	RunID string
	// RandomSource supplies the random stream for the named walker. When
	// nil, walkers draw from rngstream.
	RandomSource func(name string) core.UniformSource
}

// StationResult is the output of one tracked station.
type StationResult struct {
	ID      string
	Address model.MacAddress

	Throughput stats.Dataset
	Power      stats.Dataset
	Samples    []stats.Sample

	FramesSent      uint64
	FramesDelivered uint64
	// Moves counts the position changes the knowledge base reported.
	Moves         uint64
	FinalPosition model.Vector
}

// Result is the output of a finished run.
type Result struct {
	RunID     string
	Scheduler string
	StopTime  time.Duration
	WallTime  time.Duration
	Beacons   uint64
	Stations  []StationResult
	Events    eventsched.StatsSnapshot
}

type tracked struct {
	id      string
	addr    model.MacAddress
	engine  *stats.Engine
	tracker *kb.Tracker

	sent      uint64
	delivered uint64
	moves     uint64
}

// Run executes the scenario described by cfg. A radio event the engines
// cannot account for aborts the run and is returned.
func Run(ctx context.Context, cfg config.Config, opts Options) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.RunID != "" {
		ctx = logging.ContextWithRunID(ctx, opts.RunID)
	}
	ctx, log := logging.WithRunLogger(ctx, opts.Logger)
	ctx = logging.ContextWithLogger(ctx, log)
	runID := logging.RunIDFromContext(ctx)

	ctx, span := otel.Tracer("github.com/r-mite/nat-mobile/internal/scenario").Start(ctx, "scenario.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("run_id", runID),
		attribute.String("scheduler", cfg.Run.Scheduler),
		attribute.Int("stations", cfg.Stations.Count),
		attribute.Float64("stop_time_s", cfg.Run.StopTime.Seconds()),
	)

	res, err := run(ctx, cfg, opts, runID, log)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error(ctx, "scenario failed", logging.Err(err))
		return nil, err
	}
	return res, nil
}

func run(ctx context.Context, cfg config.Config, opts Options, runID string, log logging.Logger) (*Result, error) {
	counters := eventsched.NewStats()
	sched, err := newScheduler(cfg.Run.Scheduler, counters)
	if err != nil {
		return nil, err
	}

	store := kb.NewKnowledgeBase()
	stations, ap, err := buildTopology(store, cfg)
	if err != nil {
		return nil, err
	}

	phy, err := core.NewWifiPhy(cfg.Radio.PhyConfig())
	if err != nil {
		return nil, fmt.Errorf("build phy: %w", err)
	}
	adapt, err := core.NewDistanceAdaptation(phy, cfg.Radio.AdaptationMarginDB)
	if err != nil {
		return nil, fmt.Errorf("build adaptation: %w", err)
	}
	apTracker, err := store.Tracker(ap.ID)
	if err != nil {
		return nil, err
	}
	device, err := core.NewAccessPoint(ap.Address, phy, adapt, apTracker.Position)
	if err != nil {
		return nil, fmt.Errorf("build access point: %w", err)
	}

	engineCfg := stats.Config{
		Interval:        cfg.Sampling.Interval,
		InitialOffset:   cfg.Sampling.InitialOffset,
		PacketSize:      cfg.Radio.PacketSize,
		NominalPowerDbm: cfg.Radio.NominalPowerDbm,
		StepSize:        cfg.Sampling.StepSize,
	}

	var runs []*tracked
	byID := make(map[string]*tracked, len(stations))
	for _, s := range stations {
		tr, err := store.Tracker(s.ID)
		if err != nil {
			return nil, err
		}
		eng, err := stats.NewEngine(engineCfg, phy, []model.MacAddress{s.Address}, tr, sched,
			stats.WithLogger(log),
			stats.WithMetricsRecorder(opts.Metrics),
			stats.WithName(s.ID),
		)
		if err != nil {
			return nil, fmt.Errorf("station %s: %w", s.ID, err)
		}
		if err := device.Attach(s.Address, eng, eng); err != nil {
			return nil, fmt.Errorf("station %s: %w", s.ID, err)
		}
		r := &tracked{id: s.ID, addr: s.Address, engine: eng, tracker: tr}
		runs = append(runs, r)
		byID[s.ID] = r
	}

	unsubscribe := store.Subscribe(func(ev kb.Event) {
		if ev.Type != kb.EventStationMoved {
			return
		}
		if r, ok := byID[ev.Station.ID]; ok {
			r.moves++
			log.Debug(ctx, "station moved",
				logging.String("station", ev.Station.ID),
				logging.Float64("x", ev.Station.Position.X),
				logging.Float64("y", ev.Station.Position.Y),
			)
		}
	})
	defer unsubscribe()

	for _, l := range opts.Listeners {
		device.AddListener(l)
	}

	var fatal error
	fail := func(err error) {
		if fatal != nil {
			return
		}
		fatal = err
		sched.Stop()
	}

	driver, err := buildMotion(store, cfg.Mobility, opts.RandomSource)
	if err != nil {
		return nil, err
	}
	if err := every(sched, timectrl.Epoch, cfg.Mobility.UpdateInterval, func() error {
		return driver.Step(sched.Now())
	}, fail); err != nil {
		return nil, fmt.Errorf("mobility updates: %w", err)
	}

	frameGap := frameInterval(cfg.Traffic.PayloadBytes, cfg.Traffic.RateBps)
	if frameGap <= 0 {
		return nil, fmt.Errorf("traffic rate %d b/s is too high for %d-byte frames", cfg.Traffic.RateBps, cfg.Traffic.PayloadBytes)
	}
	for _, r := range runs {
		if err := every(sched, timectrl.Epoch.Add(cfg.Traffic.Start), frameGap, func() error {
			tx, err := device.Send(r.addr, r.tracker.Position(), cfg.Traffic.PayloadBytes)
			if err != nil {
				return fmt.Errorf("downlink to %s: %w", r.id, err)
			}
			r.sent++
			if tx.Delivered {
				r.delivered++
			}
			return nil
		}, fail); err != nil {
			return nil, fmt.Errorf("downlink to %s: %w", r.id, err)
		}
	}

	var beacons uint64
	if cfg.Traffic.BeaconInterval > 0 {
		if err := every(sched, timectrl.Epoch, cfg.Traffic.BeaconInterval, func() error {
			if _, err := device.Send(model.BroadcastAddress, model.Vector{}, 0); err != nil {
				return fmt.Errorf("beacon: %w", err)
			}
			beacons++
			return nil
		}, fail); err != nil {
			return nil, fmt.Errorf("beacons: %w", err)
		}
	}

	for _, r := range runs {
		if err := r.engine.Start(ctx); err != nil {
			return nil, fmt.Errorf("start %s: %w", r.id, err)
		}
	}

	log.Info(ctx, "scenario started",
		logging.String("scheduler", cfg.Run.Scheduler),
		logging.Int("stations", len(runs)),
		logging.Duration("stop_time", cfg.Run.StopTime),
	)

	wallStart := time.Now()
	loopErr := sched.RunUntil(ctx, timectrl.Epoch.Add(cfg.Run.StopTime))
	wall := time.Since(wallStart)
	for _, r := range runs {
		r.engine.Halt()
	}

	snap := counters.Snapshot()
	virtual := sched.Now().Sub(timectrl.Epoch)
	opts.SchedulerMetrics.ObserveRun(wall, virtual, snap.NumDispatched, snap.NumCancelled)

	if fatal != nil {
		return nil, fatal
	}
	if loopErr != nil {
		return nil, fmt.Errorf("event loop: %w", loopErr)
	}

	res := &Result{
		RunID:     runID,
		Scheduler: cfg.Run.Scheduler,
		StopTime:  virtual,
		WallTime:  wall,
		Beacons:   beacons,
		Events:    snap,
	}
	for _, r := range runs {
		res.Stations = append(res.Stations, StationResult{
			ID:              r.id,
			Address:         r.addr,
			Throughput:      r.engine.ThroughputDataset(),
			Power:           r.engine.PowerDataset(),
			Samples:         r.engine.Samples(),
			FramesSent:      r.sent,
			FramesDelivered: r.delivered,
			Moves:           r.moves,
			FinalPosition:   r.tracker.Position(),
		})
	}

	log.Info(ctx, "scenario finished",
		logging.Duration("virtual_time", virtual),
		logging.Duration("wall_time", wall),
		logging.Any("events", snap),
	)
	return res, nil
}

func newScheduler(kind string, counters *eventsched.Stats) (eventsched.EventScheduler, error) {
	switch kind {
	case config.SchedulerBuiltin:
		return eventsched.NewEventScheduler(timectrl.NewVirtualClock(timectrl.Epoch), counters), nil
	case config.SchedulerEvtm:
		return eventsched.NewEvtmScheduler(timectrl.Epoch, counters), nil
	default:
		return nil, fmt.Errorf("unknown scheduler %q", kind)
	}
}

// buildTopology registers the stations and the AP. Stations get the
// addresses 00:00:00:00:00:01 onward and the AP the next one.
func buildTopology(store *kb.KnowledgeBase, cfg config.Config) ([]model.Station, model.Station, error) {
	var stations []model.Station
	for i := 0; i < cfg.Stations.Count; i++ {
		s := &model.Station{
			ID:       fmt.Sprintf("sta-%d", i),
			Name:     fmt.Sprintf("station %d", i),
			Role:     model.RoleStation,
			Address:  model.MacAddressFromIndex(uint64(i)),
			Position: gridPosition(i),
		}
		if err := store.AddStation(s); err != nil {
			return nil, model.Station{}, err
		}
		stations = append(stations, *s)
	}

	p := cfg.Stations.APPosition
	ap := &model.Station{
		ID:       APID,
		Name:     "access point",
		Role:     model.RoleAccessPoint,
		Address:  model.MacAddressFromIndex(uint64(cfg.Stations.Count)),
		Position: model.Vector{X: p.X, Y: p.Y, Z: p.Z},
	}
	if err := store.AddStation(ap); err != nil {
		return nil, model.Station{}, err
	}
	return stations, *ap, nil
}

func gridPosition(i int) model.Vector {
	return model.Vector{
		X: gridDeltaX * float64(i%gridWidth),
		Y: gridDeltaY * float64(i/gridWidth),
	}
}

// buildMotion gives every registered station a motion model. The AP stays
// where it was placed.
func buildMotion(store *kb.KnowledgeBase, cfg config.MobilityConfig, source func(string) core.UniformSource) (*core.MotionDriver, error) {
	driver := core.NewMotionDriver(store)
	for _, s := range store.ListStations() {
		if s.Role != model.RoleStation {
			continue
		}
		var m core.MotionModel
		switch cfg.Model {
		case config.MobilityConstant:
			m = &core.ConstantPositionModel{}
		case config.MobilityRandomWalk:
			var (
				walker *core.RandomWalk2dModel
				err    error
			)
			name := "walk-" + s.ID
			if source != nil {
				walker, err = core.NewRandomWalk2dModelWithSource(source(name), cfg.RandomWalk())
			} else {
				walker, err = core.NewRandomWalk2dModel(name, cfg.RandomWalk())
			}
			if err != nil {
				return nil, fmt.Errorf("station %s: %w", s.ID, err)
			}
			m = walker
		default:
			return nil, fmt.Errorf("unknown mobility model %q", cfg.Model)
		}
		driver.Track(s.ID, m)
	}
	return driver, nil
}

// frameInterval is the gap between frames of a constant-bit-rate source.
func frameInterval(payload uint32, rateBps uint64) time.Duration {
	return time.Duration(uint64(payload) * 8 * uint64(time.Second) / rateBps)
}

// every runs f at first and then every period until f fails or the
// scheduler stops. A failure is handed to fail and ends the series.
func every(sched eventsched.EventScheduler, first time.Time, period time.Duration, f func() error, fail func(error)) error {
	if period <= 0 {
		return fmt.Errorf("period must be positive, got %s", period)
	}
	var tick func()
	tick = func() {
		if err := f(); err != nil {
			fail(err)
			return
		}
		sched.Schedule(sched.Now().Add(period), tick)
	}
	sched.Schedule(first, tick)
	return nil
}

// IsConfigError reports whether err came from a radio configuration the
// engines do not match.
func IsConfigError(err error) bool {
	return errors.Is(err, stats.ErrUnknownMode) || errors.Is(err, stats.ErrPowerLevels)
}
