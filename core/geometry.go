package core

import (
	"math"

	"github.com/r-mite/nat-mobile/model"
)

const (
	speedOfLight = 299792458.0
	// thermalNoiseDbmPerHz is kT at 290 K.
	thermalNoiseDbmPerHz = -174.0
	// minDistanceM clamps the log-distance model at the reference distance.
	minDistanceM = 1.0
)

// ReferenceLossDB returns the free-space loss at 1 m for the model's
// carrier frequency.
func ReferenceLossDB(tm TransceiverModel) float64 {
	lambda := speedOfLight / (tm.frequencyGHz() * 1e9)
	return 20 * math.Log10(4*math.Pi/lambda)
}

// PathLossDB is the log-distance loss between two points in metres.
func PathLossDB(tm TransceiverModel, a, b model.Vector) float64 {
	d := a.DistanceTo(b)
	if d < minDistanceM {
		d = minDistanceM
	}
	return ReferenceLossDB(tm) + 10*tm.pathLossExponent()*math.Log10(d/minDistanceM)
}

// NoiseFloorDbm is the receiver noise power over the channel bandwidth.
func NoiseFloorDbm(tm TransceiverModel) float64 {
	return thermalNoiseDbmPerHz + 10*math.Log10(tm.channelWidthMHz()*1e6) + tm.noiseFigureDB()
}

// EstimateSNRdB estimates the SNR at rx for a transmission at txPowerDbm
// from tx. This is a monotonic distance vs. quality relationship, not an
// engineering-grade link budget.
func EstimateSNRdB(tm TransceiverModel, txPowerDbm float64, tx, rx model.Vector) float64 {
	rxPower := txPowerDbm + tm.GainTxDBi + tm.GainRxDBi - PathLossDB(tm, tx, rx)
	return rxPower - NoiseFloorDbm(tm)
}
