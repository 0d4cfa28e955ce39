package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/r-mite/nat-mobile/model"
)

var errListener = errors.New("listener failure")

type recordingListener struct {
	events []string
	failOn string
}

func (r *recordingListener) record(ev string) error {
	r.events = append(r.events, ev)
	if r.failOn != "" && ev == r.failOn {
		return errListener
	}
	return nil
}

func (r *recordingListener) OnTransmission(dest model.MacAddress) error {
	return r.record(fmt.Sprintf("tx %s", dest))
}

func (r *recordingListener) OnPowerAdapted(dest model.MacAddress, level uint8) error {
	return r.record(fmt.Sprintf("power %d", level))
}

func (r *recordingListener) OnRateAdapted(dest model.MacAddress, modeIndex uint32) error {
	return r.record(fmt.Sprintf("rate %d", modeIndex))
}

func newTestPhy(t *testing.T) *WifiPhy {
	t.Helper()
	phy, err := NewWifiPhy(PhyConfig{TxPowerStartDbm: 0, TxPowerEndDbm: 17, TxPowerLevels: 18})
	if err != nil {
		t.Fatalf("NewWifiPhy error: %v", err)
	}
	return phy
}

func TestDecidePicksModeAndPowerFromDistance(t *testing.T) {
	adapt, err := NewDistanceAdaptation(newTestPhy(t), 0)
	if err != nil {
		t.Fatalf("NewDistanceAdaptation error: %v", err)
	}
	ap := model.Vector{}
	cases := []struct {
		distance float64
		want     Choice
	}{
		{distance: 1, want: Choice{ModeIndex: 7, PowerLevel: 0}},
		{distance: 30, want: Choice{ModeIndex: 5, PowerLevel: 15}},
		{distance: 100, want: Choice{ModeIndex: 0, PowerLevel: 17}},
	}
	for _, tc := range cases {
		got := adapt.Decide(ap, model.Vector{X: tc.distance})
		if got != tc.want {
			t.Fatalf("Decide at %v m = %+v, want %+v", tc.distance, got, tc.want)
		}
	}
}

func TestUpdateNotifiesOnlyOnChange(t *testing.T) {
	adapt, err := NewDistanceAdaptation(newTestPhy(t), 0)
	if err != nil {
		t.Fatalf("NewDistanceAdaptation error: %v", err)
	}
	dest := model.MacAddressFromIndex(0)
	l := &recordingListener{}
	ap := model.Vector{}

	steps := []struct {
		distance float64
		want     []string
	}{
		{1, []string{"power 0", "rate 7"}},
		{1, nil},
		{30, []string{"power 15", "rate 5"}},
		{30, nil},
	}
	for i, step := range steps {
		l.events = nil
		if _, err := adapt.Update(dest, ap, model.Vector{X: step.distance}, l); err != nil {
			t.Fatalf("step %d: Update error: %v", i, err)
		}
		if fmt.Sprint(l.events) != fmt.Sprint(step.want) {
			t.Fatalf("step %d: events %v, want %v", i, l.events, step.want)
		}
	}
	if c, ok := adapt.Current(dest); !ok || c.ModeIndex != 5 {
		t.Fatalf("Current = %+v, %v", c, ok)
	}
}

func TestUpdatePropagatesListenerError(t *testing.T) {
	adapt, err := NewDistanceAdaptation(newTestPhy(t), 0)
	if err != nil {
		t.Fatalf("NewDistanceAdaptation error: %v", err)
	}
	l := &recordingListener{failOn: "rate 7"}
	if _, err := adapt.Update(model.MacAddressFromIndex(0), model.Vector{}, model.Vector{X: 1}, l); !errors.Is(err, errListener) {
		t.Fatalf("Update error = %v, want listener error", err)
	}
}

func TestNewDistanceAdaptationRejectsNilPhy(t *testing.T) {
	if _, err := NewDistanceAdaptation(nil, 0); err == nil {
		t.Fatalf("expected error for nil phy")
	}
}
