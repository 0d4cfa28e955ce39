package core

import (
	"testing"
	"time"

	"github.com/r-mite/nat-mobile/model"
)

func TestTxDurationOfdm(t *testing.T) {
	modes := OfdmModes()
	cases := []struct {
		mode int
		size uint32
		want time.Duration
	}{
		{mode: 0, size: 1420, want: 1920 * time.Microsecond}, // 475 symbols
		{mode: 7, size: 1420, want: 232 * time.Microsecond},  // 53 symbols
		{mode: 0, size: 0, want: 24 * time.Microsecond},      // 22 bits -> 1 symbol
		{mode: 4, size: 1024, want: 20*time.Microsecond + 86*4*time.Microsecond},
	}
	for _, tc := range cases {
		got := TxDuration(tc.size, modes[tc.mode])
		if got != tc.want {
			t.Fatalf("TxDuration(%d, %s) = %v, want %v", tc.size, modes[tc.mode], got, tc.want)
		}
	}
}

func TestTxDurationDecreasesWithRate(t *testing.T) {
	modes := OfdmModes()
	prev := time.Duration(1<<62 - 1)
	for _, m := range modes {
		d := TxDuration(1420, m)
		if d <= 0 || d >= prev {
			t.Fatalf("duration for %s = %v, want positive and below %v", m, d, prev)
		}
		prev = d
	}
}

func TestTxDurationDsss(t *testing.T) {
	m := model.WifiMode{Name: "DsssRate1Mbps", Class: model.ModulationDSSS, DataRateBps: 1_000_000}
	if got, want := TxDuration(100, m), 192*time.Microsecond+800*time.Microsecond; got != want {
		t.Fatalf("TxDuration = %v, want %v", got, want)
	}
}

func TestNewWifiPhyDefaultsAndPowerLevels(t *testing.T) {
	phy, err := NewWifiPhy(PhyConfig{TxPowerStartDbm: 0, TxPowerEndDbm: 17, TxPowerLevels: 18})
	if err != nil {
		t.Fatalf("NewWifiPhy error: %v", err)
	}
	if phy.NModes() != 8 {
		t.Fatalf("NModes = %d, want 8", phy.NModes())
	}
	if got := phy.Mode(8); got != (model.WifiMode{}) {
		t.Fatalf("out of range Mode = %v, want zero", got)
	}
	for _, lvl := range []uint8{0, 9, 17} {
		if got := phy.PowerForLevel(lvl); got != float64(lvl) {
			t.Fatalf("PowerForLevel(%d) = %v", lvl, got)
		}
	}
	start, end, levels := phy.TxPowerRange()
	if start != 0 || end != 17 || levels != 18 {
		t.Fatalf("TxPowerRange = %v %v %v", start, end, levels)
	}
}

func TestNewWifiPhyRejectsZeroRate(t *testing.T) {
	_, err := NewWifiPhy(PhyConfig{Modes: []model.WifiMode{{Name: "broken"}}})
	if err == nil {
		t.Fatalf("expected zero-rate mode to be rejected")
	}
}
