package core

import (
	"fmt"

	"github.com/r-mite/nat-mobile/model"
)

// RadioListener receives the transmit-side events of a radio. Returning an
// error aborts the operation that raised the event.
type RadioListener interface {
	OnTransmission(dest model.MacAddress) error
	OnPowerAdapted(dest model.MacAddress, level uint8) error
	OnRateAdapted(dest model.MacAddress, modeIndex uint32) error
}

// PayloadListener receives the size of every payload a station delivers to
// its upper layer.
type PayloadListener interface {
	OnReceived(n uint32)
}

// Choice is the adaptation decision for one destination.
type Choice struct {
	ModeIndex  uint32
	PowerLevel uint8
}

// DistanceAdaptation picks, per destination, the fastest mode the
// estimated SNR at full power supports, then the lowest power level that
// still meets that mode's threshold plus the margin. It reacts to geometry
// only and stands in for a real rate/power control algorithm.
type DistanceAdaptation struct {
	phy      *WifiPhy
	marginDB float64
	current  map[model.MacAddress]Choice
}

// NewDistanceAdaptation binds the manager to a phy.
func NewDistanceAdaptation(phy *WifiPhy, marginDB float64) (*DistanceAdaptation, error) {
	if phy == nil {
		return nil, fmt.Errorf("phy is nil")
	}
	if phy.NModes() == 0 {
		return nil, fmt.Errorf("phy has no modes")
	}
	return &DistanceAdaptation{
		phy:      phy,
		marginDB: marginDB,
		current:  make(map[model.MacAddress]Choice),
	}, nil
}

// Current returns the last decision for dest.
func (a *DistanceAdaptation) Current(dest model.MacAddress) (Choice, bool) {
	c, ok := a.current[dest]
	return c, ok
}

// Decide computes the choice for a link from tx to rx without recording it.
func (a *DistanceAdaptation) Decide(tx, rx model.Vector) Choice {
	tm := a.phy.Transceiver()
	_, _, levels := a.phy.TxPowerRange()
	top := uint8(0)
	if levels > 1 {
		top = uint8(min(levels-1, 255))
	}

	snrMax := EstimateSNRdB(tm, a.phy.PowerForLevel(top), tx, rx)
	choice := Choice{PowerLevel: top}
	for i := a.phy.NModes() - 1; i >= 0; i-- {
		if snrMax >= a.phy.Mode(i).MinSNRdB+a.marginDB {
			choice.ModeIndex = uint32(i)
			break
		}
	}

	need := a.phy.Mode(int(choice.ModeIndex)).MinSNRdB + a.marginDB
	for lvl := uint8(0); lvl < top; lvl++ {
		if EstimateSNRdB(tm, a.phy.PowerForLevel(lvl), tx, rx) >= need {
			choice.PowerLevel = lvl
			break
		}
	}
	return choice
}

// Update recomputes the choice for dest and reports changes to l. Only the
// components that differ from the previous decision are reported; the first
// decision for a destination reports both.
func (a *DistanceAdaptation) Update(dest model.MacAddress, tx, rx model.Vector, l RadioListener) (Choice, error) {
	next := a.Decide(tx, rx)
	prev, seen := a.current[dest]
	a.current[dest] = next
	if l == nil {
		return next, nil
	}
	if !seen || prev.PowerLevel != next.PowerLevel {
		if err := l.OnPowerAdapted(dest, next.PowerLevel); err != nil {
			return next, err
		}
	}
	if !seen || prev.ModeIndex != next.ModeIndex {
		if err := l.OnRateAdapted(dest, next.ModeIndex); err != nil {
			return next, err
		}
	}
	return next, nil
}
