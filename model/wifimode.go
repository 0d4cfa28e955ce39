package model

import "fmt"

// ModulationClass groups transmission modes by PHY family.
type ModulationClass int

const (
	ModulationUnknown ModulationClass = iota
	ModulationDSSS
	ModulationOFDM
)

func (c ModulationClass) String() string {
	switch c {
	case ModulationDSSS:
		return "DSSS"
	case ModulationOFDM:
		return "OFDM"
	default:
		return "UNKNOWN"
	}
}

// WifiMode is a modulation/coding scheme. Modes are value types and compare
// equal when every field matches, so they can key maps directly.
type WifiMode struct {
	Name        string
	Class       ModulationClass
	DataRateBps uint64

	// Constellation is the number of points (2 for BPSK, 64 for 64-QAM).
	Constellation uint16
	// CodeRate is the convolutional coding rate, e.g. "1/2", "3/4".
	CodeRate string

	// MinSNRdB is the SNR the mode needs for reliable decoding. It is only
	// consulted by the scenario's adaptation stand-in.
	MinSNRdB float64
}

func (m WifiMode) String() string {
	if m.Name != "" {
		return m.Name
	}
	return fmt.Sprintf("%s-%dbps", m.Class, m.DataRateBps)
}
