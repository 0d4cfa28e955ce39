package stats

import (
	"fmt"

	"github.com/r-mite/nat-mobile/model"
)

// TxState is the current adaptive-transmission choice for one destination.
type TxState struct {
	PowerDbm float64
	Mode     model.WifiMode
}

// txStates holds one TxState per destination. Unseen destinations get the
// nominal defaults on first access; entries are never removed.
type txStates struct {
	byDest   map[model.MacAddress]TxState
	defaults TxState
}

func newTxStates(peers []model.MacAddress, nominalPowerDbm float64, base model.WifiMode) *txStates {
	s := &txStates{
		byDest:   make(map[model.MacAddress]TxState, len(peers)+1),
		defaults: TxState{PowerDbm: nominalPowerDbm, Mode: base},
	}
	for _, p := range peers {
		s.byDest[p] = s.defaults
	}
	// Beacons and other broadcast frames are accounted at 0 dBm.
	s.byDest[model.BroadcastAddress] = TxState{PowerDbm: 0, Mode: base}
	return s
}

func (s *txStates) get(dest model.MacAddress) TxState {
	st, ok := s.byDest[dest]
	if !ok {
		st = s.defaults
		s.byDest[dest] = st
	}
	return st
}

func (s *txStates) setPower(dest model.MacAddress, dbm float64) {
	st := s.get(dest)
	st.PowerDbm = dbm
	s.byDest[dest] = st
}

func (s *txStates) setMode(dest model.MacAddress, mode model.WifiMode) {
	st := s.get(dest)
	st.Mode = mode
	s.byDest[dest] = st
}

// InterpolatePower maps a discrete power level onto [start, end] dBm spread
// over levels steps. A single level is only meaningful when start == end.
func InterpolatePower(level uint8, startDbm, endDbm float64, levels uint32) (float64, error) {
	switch {
	case levels == 0:
		return 0, fmt.Errorf("zero power levels: %w", ErrPowerLevels)
	case levels == 1:
		if startDbm != endDbm {
			return 0, fmt.Errorf("one power level but range [%v, %v] dBm: %w", startDbm, endDbm, ErrPowerLevels)
		}
		return startDbm, nil
	}
	return startDbm + float64(level)*(endDbm-startDbm)/float64(levels-1), nil
}
