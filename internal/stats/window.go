package stats

import "time"

// window accumulates transmit energy, airtime and received bytes between
// two samples.
type window struct {
	energy  float64 // dBm*s, summed as if linear
	airtime float64 // s
	rxBytes uint64
}

func (w *window) addTransmission(powerDbm float64, d time.Duration) {
	w.energy += powerDbm * d.Seconds()
	w.airtime += d.Seconds()
}

func (w *window) addReceived(n uint32) {
	w.rxBytes += uint64(n)
}

// drain returns the current totals and zeroes the window.
func (w *window) drain() window {
	out := *w
	*w = window{}
	return out
}

// WindowSnapshot exposes the accumulators between samples.
type WindowSnapshot struct {
	Energy  float64
	Airtime float64
	RxBytes uint64
}
