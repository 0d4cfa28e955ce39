package stats

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/r-mite/nat-mobile/internal/logging"
	"github.com/r-mite/nat-mobile/model"
)

var (
	// ErrUnknownMode reports a mode that is not in the radio's mode list.
	ErrUnknownMode = errors.New("unknown wifi mode")
	// ErrPowerLevels reports a transmit power range that cannot be interpolated.
	ErrPowerLevels = errors.New("invalid transmit power levels")
)

// Radio is the access-point radio the engine reads modes and power ranges from.
type Radio interface {
	NModes() int
	Mode(i int) model.WifiMode
	TxDuration(size uint32, mode model.WifiMode) time.Duration
	TxPowerRange() (startDbm, endDbm float64, levels uint32)
}

// Mobility reads and moves the tracked station.
type Mobility interface {
	Position() model.Vector
	SetPosition(model.Vector)
}

// Scheduler is the virtual-time event scheduler the sampler re-arms on.
type Scheduler interface {
	Now() time.Time
	Schedule(at time.Time, f func()) (id string)
	Cancel(id string)
}

// MetricsRecorder receives every sample and window update. Implementations
// must tolerate being called once per radio event.
type MetricsRecorder interface {
	RecordSample(station string, x, throughputMbps, avgPower float64)
	RecordTransmission(station string, airtime time.Duration)
	RecordReceived(station string, n uint32)
}

// Config holds the sampler parameters.
type Config struct {
	// Interval is the sampling period and the divisor of both metrics.
	Interval time.Duration
	// InitialOffset delays the first sample after Start.
	InitialOffset time.Duration
	// PacketSize is the frame size in bytes the duration table is built for.
	PacketSize uint32
	// NominalPowerDbm seeds every non-broadcast destination.
	NominalPowerDbm float64
	// StepSize displaces the station along x after every sample.
	StepSize float64
}

// State is the sampler's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateArmed
	StateSampling
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateSampling:
		return "sampling"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Sample is one emitted measurement.
type Sample struct {
	Time           time.Time
	X              float64
	ThroughputMbps float64
	AvgPower       float64
}

// Option customises an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMetricsRecorder mirrors samples and window updates into rec.
func WithMetricsRecorder(rec MetricsRecorder) Option {
	return func(e *Engine) { e.metrics = rec }
}

// WithName labels the engine in logs, metrics and spans.
func WithName(name string) Option {
	return func(e *Engine) { e.name = name }
}

// Engine observes one access point's radio events on behalf of a tracked
// station and turns them into periodic throughput and transmit-power
// samples. It is driven by a single-threaded scheduler and holds no locks.
type Engine struct {
	cfg      Config
	radio    Radio
	mobility Mobility
	sched    Scheduler

	durations durationTable
	states    *txStates
	win       window

	throughput *Dataset
	power      *Dataset
	samples    []Sample

	state   State
	pending string
	ctx     context.Context

	name    string
	log     logging.Logger
	metrics MetricsRecorder
	tracer  trace.Tracer
}

// NewEngine builds an engine for one tracked station. peers are the
// destinations seeded with nominal defaults; the broadcast address is
// always seeded.
func NewEngine(cfg Config, radio Radio, peers []model.MacAddress, mob Mobility, sched Scheduler, opts ...Option) (*Engine, error) {
	if radio == nil {
		return nil, fmt.Errorf("radio is nil")
	}
	if mob == nil {
		return nil, fmt.Errorf("mobility is nil")
	}
	if sched == nil {
		return nil, fmt.Errorf("scheduler is nil")
	}

	durations, err := newDurationTable(radio, cfg.PacketSize)
	if err != nil {
		return nil, fmt.Errorf("build duration table: %w", err)
	}

	e := &Engine{
		cfg:        cfg,
		radio:      radio,
		mobility:   mob,
		sched:      sched,
		durations:  durations,
		states:     newTxStates(peers, cfg.NominalPowerDbm, radio.Mode(0)),
		throughput: NewDataset(ThroughputTitle),
		power:      NewDataset(PowerTitle),
		ctx:        context.Background(),
		log:        logging.Noop(),
		tracer:     otel.Tracer("github.com/r-mite/nat-mobile/internal/stats"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.name != "" {
		e.log = e.log.With(logging.String("station", e.name))
	}
	return e, nil
}

// Start arms the sampler; the first sample runs InitialOffset from now.
func (e *Engine) Start(ctx context.Context) error {
	if e.state != StateIdle {
		return fmt.Errorf("engine is %s, want %s", e.state, StateIdle)
	}
	if ctx != nil {
		e.ctx = ctx
	}
	e.arm(e.cfg.InitialOffset)
	e.log.Debug(e.ctx, "sampler armed",
		logging.Duration("initial_offset", e.cfg.InitialOffset),
		logging.Duration("interval", e.cfg.Interval),
	)
	return nil
}

// Halt terminates the sampler. A pending sample is cancelled and a late
// callback is ignored.
func (e *Engine) Halt() {
	if e.state == StateTerminated {
		return
	}
	if e.pending != "" {
		e.sched.Cancel(e.pending)
		e.pending = ""
	}
	e.state = StateTerminated
	e.log.Debug(e.ctx, "sampler halted", logging.Int("samples", len(e.samples)))
}

func (e *Engine) arm(after time.Duration) {
	e.state = StateArmed
	e.pending = e.sched.Schedule(e.sched.Now().Add(after), e.sample)
}

// sample is the Sampling transition.
func (e *Engine) sample() {
	if e.state != StateArmed {
		return
	}
	e.state = StateSampling
	e.pending = ""

	_, span := e.tracer.Start(e.ctx, "stats.sample")
	defer span.End()

	now := e.sched.Now()
	pos := e.mobility.Position()
	secs := e.cfg.Interval.Seconds()
	w := e.win.drain()

	throughput := float64(w.rxBytes) * 8 / (1e6 * secs)
	avgPower := math.Pow(10, (w.energy/secs)/10)

	e.throughput.Add(pos.X, throughput)
	e.power.Add(pos.X, avgPower)
	e.samples = append(e.samples, Sample{Time: now, X: pos.X, ThroughputMbps: throughput, AvgPower: avgPower})

	span.SetAttributes(
		attribute.String("station", e.name),
		attribute.Float64("x", pos.X),
		attribute.Float64("throughput_mbps", throughput),
		attribute.Float64("avg_power", avgPower),
	)
	e.log.Debug(e.ctx, "sample",
		logging.Time("time", now),
		logging.Float64("x", pos.X),
		logging.Float64("throughput_mbps", throughput),
		logging.Float64("avg_power", avgPower),
	)
	if e.metrics != nil {
		e.metrics.RecordSample(e.name, pos.X, throughput, avgPower)
	}

	e.mobility.SetPosition(model.Vector{X: pos.X + e.cfg.StepSize, Y: pos.Y, Z: pos.Z})
	e.arm(e.cfg.Interval)
}

// OnTransmission accounts one frame sent to dest at dest's current power
// and mode.
func (e *Engine) OnTransmission(dest model.MacAddress) error {
	st := e.states.get(dest)
	d, err := e.durations.lookup(st.Mode)
	if err != nil {
		return fmt.Errorf("transmission to %s: %w", dest, err)
	}
	e.win.addTransmission(st.PowerDbm, d)
	if e.metrics != nil {
		e.metrics.RecordTransmission(e.name, d)
	}
	return nil
}

// OnPowerAdapted records the power the radio now uses for dest.
func (e *Engine) OnPowerAdapted(dest model.MacAddress, level uint8) error {
	start, end, levels := e.radio.TxPowerRange()
	dbm, err := InterpolatePower(level, start, end, levels)
	if err != nil {
		return fmt.Errorf("power level %d for %s: %w", level, dest, err)
	}
	e.states.setPower(dest, dbm)
	e.log.Debug(e.ctx, "power adapted",
		logging.String("dest", dest.String()),
		logging.Int("level", int(level)),
		logging.Float64("power_dbm", dbm),
	)
	return nil
}

// OnRateAdapted records the mode the radio now uses for dest.
func (e *Engine) OnRateAdapted(dest model.MacAddress, modeIndex uint32) error {
	if uint64(modeIndex) >= uint64(e.radio.NModes()) {
		return fmt.Errorf("mode index %d for %s (radio has %d): %w", modeIndex, dest, e.radio.NModes(), ErrUnknownMode)
	}
	mode := e.radio.Mode(int(modeIndex))
	e.states.setMode(dest, mode)
	e.log.Debug(e.ctx, "rate adapted",
		logging.String("dest", dest.String()),
		logging.String("mode", mode.String()),
	)
	return nil
}

// OnReceived adds n payload bytes delivered to the tracked station.
func (e *Engine) OnReceived(n uint32) {
	e.win.addReceived(n)
	if e.metrics != nil {
		e.metrics.RecordReceived(e.name, n)
	}
}

// State returns the sampler state.
func (e *Engine) State() State { return e.state }

// Name returns the engine's label.
func (e *Engine) Name() string { return e.name }

// TxState returns dest's transmission state, inserting nominal defaults
// for an unseen destination.
func (e *Engine) TxState(dest model.MacAddress) TxState { return e.states.get(dest) }

// TxDuration returns the tabled airtime for mode.
func (e *Engine) TxDuration(mode model.WifiMode) (time.Duration, error) {
	return e.durations.lookup(mode)
}

// Window returns the accumulators collected since the last sample.
func (e *Engine) Window() WindowSnapshot {
	return WindowSnapshot{Energy: e.win.energy, Airtime: e.win.airtime, RxBytes: e.win.rxBytes}
}

// Samples returns every sample emitted so far.
func (e *Engine) Samples() []Sample {
	return append([]Sample(nil), e.samples...)
}

// ThroughputDataset returns a copy of the throughput series.
func (e *Engine) ThroughputDataset() Dataset { return e.throughput.Clone() }

// PowerDataset returns a copy of the average-power series.
func (e *Engine) PowerDataset() Dataset { return e.power.Clone() }
