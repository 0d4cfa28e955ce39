package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatsCollector mirrors the per-station telemetry samples into Prometheus.
// It satisfies stats.MetricsRecorder.
type StatsCollector struct {
	gatherer prometheus.Gatherer

	Throughput *prometheus.GaugeVec
	AvgPower   *prometheus.GaugeVec
	PositionX  *prometheus.GaugeVec

	Samples *prometheus.CounterVec
	RxBytes *prometheus.CounterVec
	Airtime *prometheus.CounterVec
}

// NewStatsCollector registers station metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewStatsCollector(reg prometheus.Registerer) (*StatsCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	throughput, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "station_throughput_mbps",
		Help: "Throughput of the last sampling window in Mbit/s, labeled by station.",
	}, []string{"station"}), "station_throughput_mbps")
	if err != nil {
		return nil, err
	}
	power, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "station_avg_tx_power",
		Help: "Average transmit power figure of the last sampling window, labeled by station.",
	}, []string{"station"}), "station_avg_tx_power")
	if err != nil {
		return nil, err
	}
	posX, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "station_position_x_meters",
		Help: "X position of the station at its last sample.",
	}, []string{"station"}), "station_position_x_meters")
	if err != nil {
		return nil, err
	}

	samples, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "station_samples_total",
		Help: "Number of samples emitted, labeled by station.",
	}, []string{"station"}), "station_samples_total")
	if err != nil {
		return nil, err
	}
	rxBytes, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "station_rx_bytes_total",
		Help: "Payload bytes delivered to the station.",
	}, []string{"station"}), "station_rx_bytes_total")
	if err != nil {
		return nil, err
	}
	airtime, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "station_tx_airtime_seconds_total",
		Help: "Virtual airtime of access-point transmissions observed by the station's engine.",
	}, []string{"station"}), "station_tx_airtime_seconds_total")
	if err != nil {
		return nil, err
	}

	return &StatsCollector{
		gatherer:   gatherer,
		Throughput: throughput,
		AvgPower:   power,
		PositionX:  posX,
		Samples:    samples,
		RxBytes:    rxBytes,
		Airtime:    airtime,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *StatsCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *StatsCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// RecordSample sets the station gauges and counts the sample.
func (c *StatsCollector) RecordSample(station string, x, throughputMbps, avgPower float64) {
	if c == nil {
		return
	}
	c.Throughput.WithLabelValues(station).Set(throughputMbps)
	c.AvgPower.WithLabelValues(station).Set(avgPower)
	c.PositionX.WithLabelValues(station).Set(x)
	c.Samples.WithLabelValues(station).Inc()
}

// RecordTransmission adds one frame's airtime.
func (c *StatsCollector) RecordTransmission(station string, airtime time.Duration) {
	if c == nil {
		return
	}
	c.Airtime.WithLabelValues(station).Add(airtime.Seconds())
}

// RecordReceived adds delivered payload bytes.
func (c *StatsCollector) RecordReceived(station string, n uint32) {
	if c == nil {
		return
	}
	c.RxBytes.WithLabelValues(station).Add(float64(n))
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
