package core

import (
	"fmt"
	"time"

	"github.com/r-mite/nat-mobile/model"
)

// OFDM timing for 20 MHz 802.11a channels.
const (
	ofdmPreamble   = 16 * time.Microsecond
	ofdmSignal     = 4 * time.Microsecond
	ofdmSymbol     = 4 * time.Microsecond
	ofdmServiceBit = 16
	ofdmTailBits   = 6

	dsssLongPreamble = 192 * time.Microsecond
)

// OfdmModes returns the eight 802.11a modes, slowest first.
func OfdmModes() []model.WifiMode {
	return []model.WifiMode{
		{Name: "OfdmRate6Mbps", Class: model.ModulationOFDM, DataRateBps: 6_000_000, Constellation: 2, CodeRate: "1/2", MinSNRdB: 5},
		{Name: "OfdmRate9Mbps", Class: model.ModulationOFDM, DataRateBps: 9_000_000, Constellation: 2, CodeRate: "3/4", MinSNRdB: 6},
		{Name: "OfdmRate12Mbps", Class: model.ModulationOFDM, DataRateBps: 12_000_000, Constellation: 4, CodeRate: "1/2", MinSNRdB: 8},
		{Name: "OfdmRate18Mbps", Class: model.ModulationOFDM, DataRateBps: 18_000_000, Constellation: 4, CodeRate: "3/4", MinSNRdB: 10},
		{Name: "OfdmRate24Mbps", Class: model.ModulationOFDM, DataRateBps: 24_000_000, Constellation: 16, CodeRate: "1/2", MinSNRdB: 13},
		{Name: "OfdmRate36Mbps", Class: model.ModulationOFDM, DataRateBps: 36_000_000, Constellation: 16, CodeRate: "3/4", MinSNRdB: 17},
		{Name: "OfdmRate48Mbps", Class: model.ModulationOFDM, DataRateBps: 48_000_000, Constellation: 64, CodeRate: "2/3", MinSNRdB: 21},
		{Name: "OfdmRate54Mbps", Class: model.ModulationOFDM, DataRateBps: 54_000_000, Constellation: 64, CodeRate: "3/4", MinSNRdB: 23},
	}
}

// PhyConfig describes a radio's power range and supported modes.
type PhyConfig struct {
	TxPowerStartDbm float64
	TxPowerEndDbm   float64
	TxPowerLevels   uint32

	// Modes defaults to OfdmModes when empty.
	Modes []model.WifiMode

	Transceiver TransceiverModel
}

// WifiPhy is a station's physical layer: the modes it can send with, the
// airtime of a frame and the transmit power range.
type WifiPhy struct {
	modes       []model.WifiMode
	startDbm    float64
	endDbm      float64
	levels      uint32
	transceiver TransceiverModel
}

// NewWifiPhy validates cfg and builds a phy. The power range itself is not
// checked here; consumers that need a level decide how to treat a single
// level with distinct bounds.
func NewWifiPhy(cfg PhyConfig) (*WifiPhy, error) {
	modes := cfg.Modes
	if len(modes) == 0 {
		modes = OfdmModes()
	}
	for i, m := range modes {
		if m.DataRateBps == 0 {
			return nil, fmt.Errorf("mode %d (%s) has zero data rate", i, m)
		}
	}
	return &WifiPhy{
		modes:       append([]model.WifiMode(nil), modes...),
		startDbm:    cfg.TxPowerStartDbm,
		endDbm:      cfg.TxPowerEndDbm,
		levels:      cfg.TxPowerLevels,
		transceiver: cfg.Transceiver,
	}, nil
}

// NModes returns the number of supported modes.
func (p *WifiPhy) NModes() int { return len(p.modes) }

// Mode returns the i-th mode, or the zero mode when i is out of range.
func (p *WifiPhy) Mode(i int) model.WifiMode {
	if i < 0 || i >= len(p.modes) {
		return model.WifiMode{}
	}
	return p.modes[i]
}

// TxPowerRange returns the power bounds in dBm and the number of levels.
func (p *WifiPhy) TxPowerRange() (startDbm, endDbm float64, levels uint32) {
	return p.startDbm, p.endDbm, p.levels
}

// Transceiver returns the RF model used for link budgets.
func (p *WifiPhy) Transceiver() TransceiverModel { return p.transceiver }

// PowerForLevel maps a level onto the power range linearly.
func (p *WifiPhy) PowerForLevel(level uint8) float64 {
	if p.levels <= 1 {
		return p.startDbm
	}
	return p.startDbm + float64(level)*(p.endDbm-p.startDbm)/float64(p.levels-1)
}

// TxDuration returns the airtime of a frame of size bytes sent with mode.
func (p *WifiPhy) TxDuration(size uint32, mode model.WifiMode) time.Duration {
	return TxDuration(size, mode)
}

// TxDuration computes frame airtime. OFDM frames are padded to whole
// symbols; DSSS frames use the long preamble.
func TxDuration(size uint32, mode model.WifiMode) time.Duration {
	if mode.DataRateBps == 0 {
		return 0
	}
	switch mode.Class {
	case model.ModulationDSSS:
		bits := uint64(size) * 8 * 1_000_000
		payloadUs := (bits + mode.DataRateBps - 1) / mode.DataRateBps
		return dsssLongPreamble + time.Duration(payloadUs)*time.Microsecond
	default:
		// Data bits per 4 us symbol: 24 at 6 Mbit/s, 216 at 54 Mbit/s.
		ndbps := mode.DataRateBps * uint64(ofdmSymbol/time.Microsecond) / 1_000_000
		if ndbps == 0 {
			ndbps = 1
		}
		bits := ofdmServiceBit + 8*uint64(size) + ofdmTailBits
		symbols := (bits + ndbps - 1) / ndbps
		return ofdmPreamble + ofdmSignal + time.Duration(symbols)*ofdmSymbol
	}
}
