package core

import (
	"fmt"
	"math"
	"time"

	"github.com/iti/rngstream"

	"github.com/r-mite/nat-mobile/model"
)

// MotionModel updates a station's position for a given simulation time.
type MotionModel interface {
	UpdatePosition(simTime time.Time, s *model.Station)
}

// ConstantPositionModel leaves the station where it is.
type ConstantPositionModel struct{}

// UpdatePosition for constant position does nothing.
func (m *ConstantPositionModel) UpdatePosition(simTime time.Time, s *model.Station) {}

// UniformSource yields uniform samples in (0,1).
type UniformSource interface {
	RandU01() float64
}

// Bounds is an axis-aligned rectangle on the x/y plane.
type Bounds struct {
	XMin float64 `yaml:"x_min"`
	XMax float64 `yaml:"x_max"`
	YMin float64 `yaml:"y_min"`
	YMax float64 `yaml:"y_max"`
}

// Contains reports whether p lies inside b, edges included.
func (b Bounds) Contains(p model.Vector) bool {
	return p.X >= b.XMin && p.X <= b.XMax && p.Y >= b.YMin && p.Y <= b.YMax
}

// RandomWalkConfig parameterises RandomWalk2dModel.
type RandomWalkConfig struct {
	Bounds Bounds
	// Speed is drawn uniformly from [MinSpeed, MaxSpeed] m/s at every change.
	MinSpeed float64
	MaxSpeed float64
	// ChangeInterval is how long the walker keeps a heading.
	ChangeInterval time.Duration
}

// RandomWalk2dModel moves a station at a random heading and speed inside a
// rectangle, reflecting off the edges and redrawing both every
// ChangeInterval.
type RandomWalk2dModel struct {
	cfg RandomWalkConfig
	rng UniformSource

	started    bool
	lastUpdate time.Time
	nextChange time.Time
	vx, vy     float64
}

// NewRandomWalk2dModel builds a walker drawing from a named rngstream.
func NewRandomWalk2dModel(name string, cfg RandomWalkConfig) (*RandomWalk2dModel, error) {
	return NewRandomWalk2dModelWithSource(rngstream.New(name), cfg)
}

// NewRandomWalk2dModelWithSource builds a walker drawing from src.
func NewRandomWalk2dModelWithSource(src UniformSource, cfg RandomWalkConfig) (*RandomWalk2dModel, error) {
	if src == nil {
		return nil, fmt.Errorf("random source is nil")
	}
	b := cfg.Bounds
	if b.XMin > b.XMax || b.YMin > b.YMax {
		return nil, fmt.Errorf("invalid bounds %+v", b)
	}
	if cfg.MinSpeed < 0 || cfg.MaxSpeed < cfg.MinSpeed {
		return nil, fmt.Errorf("invalid speed range [%v, %v]", cfg.MinSpeed, cfg.MaxSpeed)
	}
	if cfg.ChangeInterval <= 0 {
		cfg.ChangeInterval = time.Second
	}
	return &RandomWalk2dModel{cfg: cfg, rng: src}, nil
}

// UpdatePosition advances the station from the last update to simTime.
func (m *RandomWalk2dModel) UpdatePosition(simTime time.Time, s *model.Station) {
	if !m.started {
		m.started = true
		m.lastUpdate = simTime
		m.redraw(simTime)
		s.Position = m.clamp(s.Position)
		return
	}

	for simTime.After(m.lastUpdate) {
		segEnd := simTime
		if m.nextChange.Before(segEnd) {
			segEnd = m.nextChange
		}
		dt := segEnd.Sub(m.lastUpdate).Seconds()
		s.Position = m.reflect(model.Vector{
			X: s.Position.X + m.vx*dt,
			Y: s.Position.Y + m.vy*dt,
			Z: s.Position.Z,
		})
		m.lastUpdate = segEnd
		if !segEnd.Before(m.nextChange) {
			m.redraw(segEnd)
		}
	}
}

func (m *RandomWalk2dModel) redraw(now time.Time) {
	heading := 2 * math.Pi * m.rng.RandU01()
	speed := m.cfg.MinSpeed + (m.cfg.MaxSpeed-m.cfg.MinSpeed)*m.rng.RandU01()
	m.vx = speed * math.Cos(heading)
	m.vy = speed * math.Sin(heading)
	m.nextChange = now.Add(m.cfg.ChangeInterval)
}

// reflect folds a point that left the rectangle back inside, flipping the
// velocity component that crossed an edge.
func (m *RandomWalk2dModel) reflect(p model.Vector) model.Vector {
	b := m.cfg.Bounds
	p.X, m.vx = reflectAxis(p.X, m.vx, b.XMin, b.XMax)
	p.Y, m.vy = reflectAxis(p.Y, m.vy, b.YMin, b.YMax)
	return p
}

func reflectAxis(x, v, lo, hi float64) (float64, float64) {
	if hi <= lo {
		return lo, 0
	}
	for x < lo || x > hi {
		if x < lo {
			x = 2*lo - x
		} else {
			x = 2*hi - x
		}
		v = -v
	}
	return x, v
}

func (m *RandomWalk2dModel) clamp(p model.Vector) model.Vector {
	b := m.cfg.Bounds
	p.X = math.Min(math.Max(p.X, b.XMin), b.XMax)
	p.Y = math.Min(math.Max(p.Y, b.YMin), b.YMax)
	return p
}

// PositionUpdater persists a station's new position.
type PositionUpdater interface {
	GetStation(id string) (model.Station, bool)
	UpdateStationPosition(id string, pos model.Vector) error
}

type motionTrack struct {
	id    string
	model MotionModel
}

// MotionDriver applies motion models to stations held by an updater.
type MotionDriver struct {
	updater PositionUpdater
	tracks  []motionTrack
}

// NewMotionDriver binds a driver to a station store.
func NewMotionDriver(updater PositionUpdater) *MotionDriver {
	return &MotionDriver{updater: updater}
}

// Track attaches a motion model to a station.
func (d *MotionDriver) Track(id string, m MotionModel) {
	d.tracks = append(d.tracks, motionTrack{id: id, model: m})
}

// Step moves every tracked station to its position at simTime.
func (d *MotionDriver) Step(simTime time.Time) error {
	for _, tr := range d.tracks {
		s, ok := d.updater.GetStation(tr.id)
		if !ok {
			return fmt.Errorf("station %q not found", tr.id)
		}
		before := s.Position
		tr.model.UpdatePosition(simTime, &s)
		if s.Position == before {
			continue
		}
		if err := d.updater.UpdateStationPosition(tr.id, s.Position); err != nil {
			return fmt.Errorf("update station %q: %w", tr.id, err)
		}
	}
	return nil
}
