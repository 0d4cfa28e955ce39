package core

import (
	"math"
	"testing"

	"github.com/r-mite/nat-mobile/model"
)

func TestReferenceLossAt5GHz(t *testing.T) {
	got := ReferenceLossDB(TransceiverModel{FrequencyGHz: 5.18})
	if math.Abs(got-46.73) > 0.05 {
		t.Fatalf("ReferenceLossDB = %.3f, want about 46.73", got)
	}
}

func TestPathLossClampsAtOneMetre(t *testing.T) {
	tm := TransceiverModel{}
	origin := model.Vector{}
	if PathLossDB(tm, origin, origin) != PathLossDB(tm, origin, model.Vector{X: 1}) {
		t.Fatalf("loss below 1 m should equal the reference loss")
	}
	want := ReferenceLossDB(tm) + 30
	if got := PathLossDB(tm, origin, model.Vector{X: 10}); math.Abs(got-want) > 1e-9 {
		t.Fatalf("PathLossDB at 10 m = %v, want %v", got, want)
	}
}

func TestNoiseFloorHonoursExplicitZeroFigure(t *testing.T) {
	zero := 0.0
	withDefault := NoiseFloorDbm(TransceiverModel{})
	withZero := NoiseFloorDbm(TransceiverModel{NoiseFigureDB: &zero})
	if math.Abs(withDefault-withZero-defaultNoiseFigureDB) > 1e-9 {
		t.Fatalf("noise floors %v and %v should differ by the default figure", withDefault, withZero)
	}
	if math.Abs(withZero-(-174+73.0103)) > 1e-3 {
		t.Fatalf("thermal floor for 20 MHz = %v", withZero)
	}
}

func TestSNRDecreasesWithDistance(t *testing.T) {
	tm := TransceiverModel{}
	prev := math.Inf(1)
	for _, d := range []float64{1, 5, 20, 50, 100} {
		snr := EstimateSNRdB(tm, 17, model.Vector{}, model.Vector{X: d})
		if snr >= prev {
			t.Fatalf("SNR at %v m = %v, not below %v", d, snr, prev)
		}
		prev = snr
	}
}
