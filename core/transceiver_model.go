package core

// TransceiverModel describes the RF characteristics shared by every radio
// in a run. The link budget in geometry.go reads these fields; zero values
// fall back to the defaults below.
type TransceiverModel struct {
	ID   string `json:"ID" yaml:"id"`
	Name string `json:"Name" yaml:"name"`

	// FrequencyGHz is the carrier frequency. 802.11a channel 36 by default.
	FrequencyGHz float64 `json:"FrequencyGHz,omitempty" yaml:"frequency_ghz,omitempty"`
	// ChannelWidthMHz sets the thermal noise bandwidth.
	ChannelWidthMHz float64 `json:"ChannelWidthMHz,omitempty" yaml:"channel_width_mhz,omitempty"`

	GainTxDBi float64 `json:"GainTxDBi,omitempty" yaml:"gain_tx_dbi,omitempty"`
	GainRxDBi float64 `json:"GainRxDBi,omitempty" yaml:"gain_rx_dbi,omitempty"`

	// NoiseFigureDB raises the receiver noise floor. A pointer is used to
	// distinguish between unset (nil) and explicitly set to 0.
	NoiseFigureDB *float64 `json:"NoiseFigureDB,omitempty" yaml:"noise_figure_db,omitempty"`

	// PathLossExponent is the log-distance exponent; 3 when unset.
	PathLossExponent float64 `json:"PathLossExponent,omitempty" yaml:"path_loss_exponent,omitempty"`
}

const (
	defaultFrequencyGHz     = 5.18
	defaultChannelWidthMHz  = 20
	defaultNoiseFigureDB    = 7
	defaultPathLossExponent = 3
)

func (tm TransceiverModel) frequencyGHz() float64 {
	if tm.FrequencyGHz <= 0 {
		return defaultFrequencyGHz
	}
	return tm.FrequencyGHz
}

func (tm TransceiverModel) channelWidthMHz() float64 {
	if tm.ChannelWidthMHz <= 0 {
		return defaultChannelWidthMHz
	}
	return tm.ChannelWidthMHz
}

func (tm TransceiverModel) noiseFigureDB() float64 {
	if tm.NoiseFigureDB == nil {
		return defaultNoiseFigureDB
	}
	return *tm.NoiseFigureDB
}

func (tm TransceiverModel) pathLossExponent() float64 {
	if tm.PathLossExponent <= 0 {
		return defaultPathLossExponent
	}
	return tm.PathLossExponent
}
