package stats

import (
	"fmt"
	"time"

	"github.com/r-mite/nat-mobile/model"
)

// durationTable maps every mode of the radio to the airtime of one frame of
// the configured packet size. It is built once and never mutated.
type durationTable map[model.WifiMode]time.Duration

func newDurationTable(radio Radio, packetSize uint32) (durationTable, error) {
	n := radio.NModes()
	if n == 0 {
		return nil, fmt.Errorf("radio reports no modes: %w", ErrUnknownMode)
	}
	table := make(durationTable, n)
	for i := 0; i < n; i++ {
		mode := radio.Mode(i)
		d := radio.TxDuration(packetSize, mode)
		if d <= 0 {
			return nil, fmt.Errorf("mode %s: non-positive tx duration %v", mode, d)
		}
		table[mode] = d
	}
	return table, nil
}

// lookup returns the stored duration for mode.
func (t durationTable) lookup(mode model.WifiMode) (time.Duration, error) {
	d, ok := t[mode]
	if !ok {
		return 0, fmt.Errorf("no tx duration for mode %s: %w", mode, ErrUnknownMode)
	}
	return d, nil
}
