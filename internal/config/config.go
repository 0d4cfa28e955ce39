package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/r-mite/nat-mobile/core"
)

// Scheduler backends accepted in run.scheduler.
const (
	SchedulerBuiltin = "builtin"
	SchedulerEvtm    = "evtm"
)

// Mobility models accepted in mobility.model.
const (
	MobilityRandomWalk = "random_walk"
	MobilityConstant   = "constant"
)

// Config is the on-disk scenario configuration (YAML).
type Config struct {
	Run      RunConfig      `yaml:"run"`
	Sampling SamplingConfig `yaml:"sampling"`
	Radio    RadioConfig    `yaml:"radio"`
	Traffic  TrafficConfig  `yaml:"traffic"`
	Mobility MobilityConfig `yaml:"mobility"`
	Stations StationsConfig `yaml:"stations"`
}

type RunConfig struct {
	StopTime  time.Duration `yaml:"stop_time"`
	Scheduler string        `yaml:"scheduler"`
}

type SamplingConfig struct {
	Interval      time.Duration `yaml:"interval"`
	InitialOffset time.Duration `yaml:"initial_offset"`
	StepSize      float64       `yaml:"step_size"`
}

type RadioConfig struct {
	PacketSize         uint32                `yaml:"packet_size"`
	TxPowerStartDbm    float64               `yaml:"tx_power_start_dbm"`
	TxPowerEndDbm      float64               `yaml:"tx_power_end_dbm"`
	TxPowerLevels      uint32                `yaml:"tx_power_levels"`
	NominalPowerDbm    float64               `yaml:"nominal_power_dbm"`
	AdaptationMarginDB float64               `yaml:"adaptation_margin_db"`
	Transceiver        core.TransceiverModel `yaml:"transceiver"`
}

type TrafficConfig struct {
	RateBps        uint64        `yaml:"rate_bps"`
	PayloadBytes   uint32        `yaml:"payload_bytes"`
	Start          time.Duration `yaml:"start"`
	BeaconInterval time.Duration `yaml:"beacon_interval"`
}

type MobilityConfig struct {
	Model          string        `yaml:"model"`
	Bounds         core.Bounds   `yaml:"bounds"`
	MinSpeed       float64       `yaml:"min_speed"`
	MaxSpeed       float64       `yaml:"max_speed"`
	ChangeInterval time.Duration `yaml:"change_interval"`
	UpdateInterval time.Duration `yaml:"update_interval"`
}

type StationsConfig struct {
	Count      int     `yaml:"count"`
	APPosition Vector3 `yaml:"ap_position"`
}

// Vector3 is a YAML-friendly position.
type Vector3 struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

// Default returns the configuration of the reference scenario: one station
// random-walking in a 100 m square around the AP for 40 s, sampled every
// second from 1.5 s.
func Default() Config {
	return Config{
		Run: RunConfig{
			StopTime:  40 * time.Second,
			Scheduler: SchedulerBuiltin,
		},
		Sampling: SamplingConfig{
			Interval:      time.Second,
			InitialOffset: 1500 * time.Millisecond,
		},
		Radio: RadioConfig{
			PacketSize:      1420,
			TxPowerStartDbm: 0,
			TxPowerEndDbm:   17,
			TxPowerLevels:   18,
			NominalPowerDbm: 17,
		},
		Traffic: TrafficConfig{
			RateBps:        500_000,
			PayloadBytes:   1024,
			Start:          500 * time.Millisecond,
			BeaconInterval: 102400 * time.Microsecond,
		},
		Mobility: MobilityConfig{
			Model:          MobilityRandomWalk,
			Bounds:         core.Bounds{XMin: -50, XMax: 50, YMin: -50, YMax: 50},
			MinSpeed:       2,
			MaxSpeed:       4,
			ChangeInterval: time.Second,
			UpdateInterval: 100 * time.Millisecond,
		},
		Stations: StationsConfig{Count: 1},
	}
}

// Load reads a scenario file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	c, err := LoadUnchecked(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadUnchecked reads a scenario file over the defaults without validating.
// Keys absent from the file keep their default values.
func LoadUnchecked(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Default()
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Sampling.Interval <= 0 {
		return fmt.Errorf("sampling.interval must be positive, got %v", c.Sampling.Interval)
	}
	if c.Sampling.InitialOffset < 0 {
		return fmt.Errorf("sampling.initial_offset must not be negative, got %v", c.Sampling.InitialOffset)
	}
	if c.Run.StopTime <= c.Sampling.InitialOffset {
		return fmt.Errorf("run.stop_time (%v) must be after sampling.initial_offset (%v)", c.Run.StopTime, c.Sampling.InitialOffset)
	}
	switch c.Run.Scheduler {
	case SchedulerBuiltin, SchedulerEvtm:
	default:
		return fmt.Errorf("run.scheduler %q is not one of %q, %q", c.Run.Scheduler, SchedulerBuiltin, SchedulerEvtm)
	}
	if c.Stations.Count <= 0 {
		return fmt.Errorf("stations.count must be at least 1, got %d", c.Stations.Count)
	}
	if err := c.Radio.validate(); err != nil {
		return fmt.Errorf("radio: %w", err)
	}
	if err := c.Traffic.validate(); err != nil {
		return fmt.Errorf("traffic: %w", err)
	}
	if err := c.Mobility.validate(); err != nil {
		return fmt.Errorf("mobility: %w", err)
	}
	return nil
}

func (r RadioConfig) validate() error {
	if r.PacketSize == 0 {
		return errors.New("packet_size must be positive")
	}
	switch {
	case r.TxPowerLevels == 0:
		return errors.New("tx_power_levels must be at least 1")
	case r.TxPowerLevels == 1 && r.TxPowerStartDbm != r.TxPowerEndDbm:
		return fmt.Errorf("a single tx power level needs tx_power_start_dbm == tx_power_end_dbm, got %v and %v", r.TxPowerStartDbm, r.TxPowerEndDbm)
	case r.TxPowerLevels > 256:
		return fmt.Errorf("tx_power_levels %d exceeds 256", r.TxPowerLevels)
	}
	if r.AdaptationMarginDB < 0 {
		return fmt.Errorf("adaptation_margin_db must not be negative, got %v", r.AdaptationMarginDB)
	}
	return nil
}

func (t TrafficConfig) validate() error {
	if t.RateBps == 0 {
		return errors.New("rate_bps must be positive")
	}
	if t.PayloadBytes == 0 {
		return errors.New("payload_bytes must be positive")
	}
	if t.Start < 0 {
		return fmt.Errorf("start must not be negative, got %v", t.Start)
	}
	if t.BeaconInterval < 0 {
		return fmt.Errorf("beacon_interval must not be negative, got %v", t.BeaconInterval)
	}
	return nil
}

func (m MobilityConfig) validate() error {
	if m.UpdateInterval <= 0 {
		return fmt.Errorf("update_interval must be positive, got %v", m.UpdateInterval)
	}
	switch m.Model {
	case MobilityConstant:
		return nil
	case MobilityRandomWalk:
	default:
		return fmt.Errorf("model %q is not one of %q, %q", m.Model, MobilityRandomWalk, MobilityConstant)
	}
	b := m.Bounds
	if b.XMin > b.XMax || b.YMin > b.YMax {
		return fmt.Errorf("bounds %+v are inverted", b)
	}
	if m.MinSpeed < 0 || m.MaxSpeed < m.MinSpeed {
		return fmt.Errorf("speed range [%v, %v] is invalid", m.MinSpeed, m.MaxSpeed)
	}
	return nil
}

// PhyConfig converts the radio section into the phy's configuration.
func (r RadioConfig) PhyConfig() core.PhyConfig {
	return core.PhyConfig{
		TxPowerStartDbm: r.TxPowerStartDbm,
		TxPowerEndDbm:   r.TxPowerEndDbm,
		TxPowerLevels:   r.TxPowerLevels,
		Transceiver:     r.Transceiver,
	}
}

// RandomWalk converts the mobility section into a random-walk configuration.
func (m MobilityConfig) RandomWalk() core.RandomWalkConfig {
	return core.RandomWalkConfig{
		Bounds:         m.Bounds,
		MinSpeed:       m.MinSpeed,
		MaxSpeed:       m.MaxSpeed,
		ChangeInterval: m.ChangeInterval,
	}
}
