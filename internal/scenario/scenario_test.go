package scenario

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/r-mite/nat-mobile/core"
	"github.com/r-mite/nat-mobile/internal/config"
	"github.com/r-mite/nat-mobile/internal/eventsched"
	"github.com/r-mite/nat-mobile/internal/observability"
	"github.com/r-mite/nat-mobile/internal/stats"
	"github.com/r-mite/nat-mobile/model"
	"github.com/r-mite/nat-mobile/timectrl"
)

// Frames leave every 16.384 ms from 0.5 s, so the four windows ending at
// 1.5, 2.5, 3.5 and 4.5 s hold 62, 61, 61 and 61 frames.
var framesPerWindow = []float64{62, 61, 61, 61}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Run.StopTime = 5 * time.Second
	cfg.Mobility.Model = config.MobilityConstant
	return cfg
}

func assertClose(t *testing.T, what string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("%s = %v, want %v", what, got, want)
	}
}

func TestRunSamplesEveryIntervalFromOffset(t *testing.T) {
	res, err := Run(context.Background(), testConfig(), Options{RunID: "run-1"})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.RunID != "run-1" {
		t.Fatalf("RunID = %q, want run-1", res.RunID)
	}
	if res.StopTime != 5*time.Second {
		t.Fatalf("StopTime = %v, want 5s", res.StopTime)
	}
	if res.Beacons != 49 {
		t.Fatalf("Beacons = %d, want 49", res.Beacons)
	}
	if len(res.Stations) != 1 {
		t.Fatalf("expected 1 station, got %d", len(res.Stations))
	}

	st := res.Stations[0]
	if st.ID != "sta-0" || st.Address != model.MacAddressFromIndex(0) {
		t.Fatalf("unexpected station identity %s %s", st.ID, st.Address)
	}
	if st.FramesSent != 275 || st.FramesDelivered != 275 {
		t.Fatalf("frames sent/delivered = %d/%d, want 275/275", st.FramesSent, st.FramesDelivered)
	}
	if st.Moves != 0 {
		t.Fatalf("Moves = %d for a constant position, want 0", st.Moves)
	}
	if st.Throughput.Title != stats.ThroughputTitle || st.Power.Title != stats.PowerTitle {
		t.Fatalf("unexpected dataset titles %q, %q", st.Throughput.Title, st.Power.Title)
	}
	if len(st.Samples) != len(framesPerWindow) {
		t.Fatalf("expected %d samples, got %d", len(framesPerWindow), len(st.Samples))
	}

	for i, s := range st.Samples {
		wantAt := timectrl.Epoch.Add(1500*time.Millisecond + time.Duration(i)*time.Second)
		if !s.Time.Equal(wantAt) {
			t.Fatalf("sample %d at %v, want %v", i, s.Time, wantAt)
		}
		if s.X != 0 {
			t.Fatalf("sample %d x = %v, want 0", i, s.X)
		}
		assertClose(t, fmt.Sprintf("sample %d throughput", i), s.ThroughputMbps, framesPerWindow[i]*1024*8/1e6)
		// Next to the AP every frame goes out at level 0, i.e. 0 dBm.
		assertClose(t, fmt.Sprintf("sample %d power", i), s.AvgPower, 1)
	}
}

func TestRunAdaptsPowerToDistance(t *testing.T) {
	cfg := testConfig()
	cfg.Stations.APPosition = config.Vector3{X: 30}

	res, err := Run(context.Background(), cfg, Options{})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	st := res.Stations[0]
	if st.FramesDelivered != st.FramesSent {
		t.Fatalf("expected every frame delivered at 30 m, got %d/%d", st.FramesDelivered, st.FramesSent)
	}

	// 30 m away the AP settles on 36 Mbit/s at 15 dBm; a 1420-byte frame
	// then lasts 340 us. Beacons go out at 0 dBm and add nothing.
	airtime := core.TxDuration(cfg.Radio.PacketSize, core.OfdmModes()[5]).Seconds()
	assertClose(t, "airtime", airtime, 340e-6)
	for i, s := range st.Samples {
		want := math.Pow(10, framesPerWindow[i]*15*airtime/10)
		if math.Abs(s.AvgPower-want) > 1e-9 {
			t.Fatalf("sample %d power = %v, want %v", i, s.AvgPower, want)
		}
	}
}

type constSource float64

func (c constSource) RandU01() float64 { return float64(c) }

func TestRunMovesStationsWithRandomWalk(t *testing.T) {
	cfg := testConfig()
	cfg.Mobility.Model = config.MobilityRandomWalk

	var names []string
	res, err := Run(context.Background(), cfg, Options{
		RandomSource: func(name string) core.UniformSource {
			names = append(names, name)
			// Heading pi/2 at 2.5 m/s.
			return constSource(0.25)
		},
	})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(names) != 1 || names[0] != "walk-sta-0" {
		t.Fatalf("unexpected random streams %v", names)
	}
	final := res.Stations[0].FinalPosition
	if math.Abs(final.X) > 1e-6 || math.Abs(final.Y-12.5) > 1e-6 {
		t.Fatalf("final position = %+v, want (0, 12.5)", final)
	}
	if !cfg.Mobility.Bounds.Contains(final) {
		t.Fatalf("station left the bounds: %+v", final)
	}
	if res.Stations[0].Moves == 0 {
		t.Fatalf("expected the knowledge base to report moves")
	}
}

func TestRunTracksEveryStation(t *testing.T) {
	cfg := testConfig()
	cfg.Stations.Count = 4

	res, err := Run(context.Background(), cfg, Options{})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(res.Stations) != 4 {
		t.Fatalf("expected 4 stations, got %d", len(res.Stations))
	}
	for i, st := range res.Stations {
		if st.ID != fmt.Sprintf("sta-%d", i) {
			t.Fatalf("station %d ID = %q", i, st.ID)
		}
		if got := st.FinalPosition; got != gridPosition(i) {
			t.Fatalf("station %d at %+v, want %+v", i, got, gridPosition(i))
		}
		if len(st.Samples) != 4 {
			t.Fatalf("station %d has %d samples, want 4", i, len(st.Samples))
		}
	}
}

func TestRunKeepsStationStatisticsApart(t *testing.T) {
	cfg := testConfig()
	cfg.Stations.APPosition = config.Vector3{X: 45}
	cfg.Traffic.BeaconInterval = 0

	alone, err := Run(context.Background(), cfg, Options{})
	if err != nil {
		t.Fatalf("single-station Run error: %v", err)
	}
	cfg.Stations.Count = 2
	shared, err := Run(context.Background(), cfg, Options{})
	if err != nil {
		t.Fatalf("two-station Run error: %v", err)
	}

	want := alone.Stations[0].Samples
	got := shared.Stations[0].Samples
	if len(got) != len(want) {
		t.Fatalf("sta-0 has %d samples next to sta-1, want %d", len(got), len(want))
	}
	for i := range want {
		if want[i].AvgPower <= 1 {
			t.Fatalf("sample %d power = %v, expected energy from frames at 45 m", i, want[i].AvgPower)
		}
		assertClose(t, fmt.Sprintf("sample %d power", i), got[i].AvgPower, want[i].AvgPower)
		assertClose(t, fmt.Sprintf("sample %d throughput", i), got[i].ThroughputMbps, want[i].ThroughputMbps)
	}
	if shared.Stations[1].FramesSent != alone.Stations[0].FramesSent {
		t.Fatalf("sta-1 sent %d frames, want %d", shared.Stations[1].FramesSent, alone.Stations[0].FramesSent)
	}
}

func TestRunWithEvtmScheduler(t *testing.T) {
	cfg := testConfig()
	cfg.Run.Scheduler = config.SchedulerEvtm

	res, err := Run(context.Background(), cfg, Options{})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	st := res.Stations[0]
	if len(st.Samples) != 4 {
		t.Fatalf("expected 4 samples, got %d", len(st.Samples))
	}
	if st.FramesSent != 275 {
		t.Fatalf("FramesSent = %d, want 275", st.FramesSent)
	}
	if res.Events.NumDispatched == 0 {
		t.Fatalf("expected dispatched events to be counted")
	}
}

func TestRunRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := observability.NewStatsCollector(reg)
	if err != nil {
		t.Fatalf("NewStatsCollector error: %v", err)
	}
	schedMetrics, err := observability.NewSchedulerCollector(reg)
	if err != nil {
		t.Fatalf("NewSchedulerCollector error: %v", err)
	}

	if _, err := Run(context.Background(), testConfig(), Options{
		Metrics:          collector,
		SchedulerMetrics: schedMetrics,
	}); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if got := testutil.ToFloat64(collector.Samples.WithLabelValues("sta-0")); got != 4 {
		t.Fatalf("samples counter = %v, want 4", got)
	}
	if got := testutil.ToFloat64(collector.RxBytes.WithLabelValues("sta-0")); got != 275*1024 {
		t.Fatalf("rx bytes counter = %v, want %d", got, 275*1024)
	}
	if got := testutil.ToFloat64(schedMetrics.VirtualTime); got != 5 {
		t.Fatalf("virtual time gauge = %v, want 5", got)
	}
	// Halting the engine cancels its pending sample.
	if got := testutil.ToFloat64(schedMetrics.EventsCancelled); got != 1 {
		t.Fatalf("cancelled counter = %v, want 1", got)
	}
}

type failingListener struct {
	err   error
	after int
	seen  int
}

func (f *failingListener) OnTransmission(model.MacAddress) error {
	f.seen++
	if f.seen > f.after {
		return f.err
	}
	return nil
}

func (f *failingListener) OnPowerAdapted(model.MacAddress, uint8) error { return nil }

func (f *failingListener) OnRateAdapted(model.MacAddress, uint32) error { return nil }

func TestRunAbortsOnListenerError(t *testing.T) {
	cfg := testConfig()
	l := &failingListener{err: fmt.Errorf("mode 9: %w", stats.ErrUnknownMode), after: 10}

	res, err := Run(context.Background(), cfg, Options{Listeners: []core.RadioListener{l}})
	if err == nil {
		t.Fatalf("expected Run to fail, got %+v", res)
	}
	if !errors.Is(err, stats.ErrUnknownMode) || !IsConfigError(err) {
		t.Fatalf("expected a configuration error, got %v", err)
	}
	if l.seen != l.after+1 {
		t.Fatalf("expected the run to stop at the first failure, listener saw %d transmissions", l.seen)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Stations.Count = 0
	if _, err := Run(context.Background(), cfg, Options{}); err == nil {
		t.Fatalf("expected error for zero stations")
	}

	cfg = testConfig()
	cfg.Sampling.Interval = 0
	if _, err := Run(context.Background(), cfg, Options{}); err == nil {
		t.Fatalf("expected error for zero interval")
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, testConfig(), Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if IsConfigError(err) {
		t.Fatalf("cancellation must not be reported as a configuration error")
	}
}

func TestRunRejectsZeroUpdateInterval(t *testing.T) {
	cfg := testConfig()
	cfg.Mobility.UpdateInterval = 0

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := Run(ctx, cfg, Options{})
	if err == nil || errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected a validation error, got %v", err)
	}
}

func TestEveryRejectsNonPositivePeriod(t *testing.T) {
	sched := eventsched.NewFakeEventScheduler(timectrl.Epoch)
	calls := 0
	tick := func() error { calls++; return nil }
	fail := func(err error) { t.Fatalf("unexpected failure: %v", err) }

	for _, period := range []time.Duration{0, -time.Second} {
		if err := every(sched, timectrl.Epoch, period, tick, fail); err == nil {
			t.Fatalf("expected error for period %v", period)
		}
	}
	if len(sched.Pending()) != 0 {
		t.Fatalf("rejected series left events behind: %v", sched.Pending())
	}

	if err := every(sched, timectrl.Epoch, time.Second, tick, fail); err != nil {
		t.Fatalf("every error: %v", err)
	}
	sched.AdvanceTo(timectrl.Epoch)
	sched.AdvanceTo(timectrl.Epoch.Add(time.Second))
	sched.AdvanceTo(timectrl.Epoch.Add(2 * time.Second))
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestFrameInterval(t *testing.T) {
	if got := frameInterval(1024, 500_000); got != 16384*time.Microsecond {
		t.Fatalf("frameInterval = %v, want 16.384ms", got)
	}
}
