package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SchedulerCollector exposes event-scheduler metrics for a run.
type SchedulerCollector struct {
	gatherer prometheus.Gatherer

	RunDuration      prometheus.Histogram
	EventsDispatched prometheus.Counter
	EventsCancelled  prometheus.Counter
	VirtualTime      prometheus.Gauge
}

// NewSchedulerCollector registers scheduler metrics against the provided registerer.
func NewSchedulerCollector(reg prometheus.Registerer) (*SchedulerCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	runHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scheduler_run_duration_seconds",
		Help:    "Wall-clock duration of scenario event loops.",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})
	runHistogram, err := registerHistogram(reg, runHistogram, "scheduler_run_duration_seconds")
	if err != nil {
		return nil, err
	}

	dispatched := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_events_dispatched_total",
		Help: "Cumulative number of events the scheduler has run.",
	})
	dispatched, err = registerCounter(reg, dispatched, "scheduler_events_dispatched_total")
	if err != nil {
		return nil, err
	}

	cancelled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_events_cancelled_total",
		Help: "Cumulative number of events cancelled before they ran.",
	})
	cancelled, err = registerCounter(reg, cancelled, "scheduler_events_cancelled_total")
	if err != nil {
		return nil, err
	}

	virtual := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_virtual_time_seconds",
		Help: "Virtual time reached by the most recent run.",
	})
	virtual, err = registerGauge(reg, virtual, "scheduler_virtual_time_seconds")
	if err != nil {
		return nil, err
	}

	return &SchedulerCollector{
		gatherer:         gatherer,
		RunDuration:      runHistogram,
		EventsDispatched: dispatched,
		EventsCancelled:  cancelled,
		VirtualTime:      virtual,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SchedulerCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveRun records one finished event loop.
func (c *SchedulerCollector) ObserveRun(wall, virtual time.Duration, dispatched, cancelled uint64) {
	if c == nil {
		return
	}
	if c.RunDuration != nil {
		c.RunDuration.Observe(wall.Seconds())
	}
	if c.EventsDispatched != nil {
		c.EventsDispatched.Add(float64(dispatched))
	}
	if c.EventsCancelled != nil {
		c.EventsCancelled.Add(float64(cancelled))
	}
	if c.VirtualTime != nil {
		c.VirtualTime.Set(virtual.Seconds())
	}
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
