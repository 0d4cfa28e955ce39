package core

import (
	"fmt"

	"github.com/r-mite/nat-mobile/model"
)

// listenerFanout forwards radio events to several listeners, stopping at
// the first error.
type listenerFanout []RadioListener

func (f listenerFanout) OnTransmission(dest model.MacAddress) error {
	for _, l := range f {
		if err := l.OnTransmission(dest); err != nil {
			return err
		}
	}
	return nil
}

func (f listenerFanout) OnPowerAdapted(dest model.MacAddress, level uint8) error {
	for _, l := range f {
		if err := l.OnPowerAdapted(dest, level); err != nil {
			return err
		}
	}
	return nil
}

func (f listenerFanout) OnRateAdapted(dest model.MacAddress, modeIndex uint32) error {
	for _, l := range f {
		if err := l.OnRateAdapted(dest, modeIndex); err != nil {
			return err
		}
	}
	return nil
}

// Transmission describes the outcome of one frame sent by an AccessPoint.
type Transmission struct {
	Dest      model.MacAddress
	Mode      model.WifiMode
	PowerDbm  float64
	SNRdB     float64
	Delivered bool
}

// receiver is what the AP knows about one associated station.
type receiver struct {
	radio   listenerFanout
	payload PayloadListener
}

// AccessPoint is the transmitting device of a scenario. It adapts power and
// rate per destination, raises radio events on its listeners and decides
// whether a unicast frame reaches its receiver.
type AccessPoint struct {
	Address model.MacAddress

	phy       *WifiPhy
	adapt     *DistanceAdaptation
	listeners listenerFanout
	position  func() model.Vector

	receivers map[model.MacAddress]*receiver
	order     []model.MacAddress
}

// NewAccessPoint builds an AP whose position is read through pos.
func NewAccessPoint(addr model.MacAddress, phy *WifiPhy, adapt *DistanceAdaptation, pos func() model.Vector) (*AccessPoint, error) {
	if phy == nil {
		return nil, fmt.Errorf("phy is nil")
	}
	if adapt == nil {
		return nil, fmt.Errorf("adaptation manager is nil")
	}
	if pos == nil {
		pos = func() model.Vector { return model.Vector{} }
	}
	return &AccessPoint{
		Address:   addr,
		phy:       phy,
		adapt:     adapt,
		position:  pos,
		receivers: make(map[model.MacAddress]*receiver),
	}, nil
}

// Phy returns the AP's physical layer.
func (a *AccessPoint) Phy() *WifiPhy { return a.phy }

// AddListener subscribes l to the AP's radio events for every destination.
func (a *AccessPoint) AddListener(l RadioListener) {
	a.listeners = append(a.listeners, l)
}

// Attach associates the station at dest. Radio events for frames addressed
// to dest reach l only, broadcast events reach every attached station, and
// payloads delivered to dest are handed to p. Either listener may be nil.
func (a *AccessPoint) Attach(dest model.MacAddress, l RadioListener, p PayloadListener) error {
	if dest.IsBroadcast() {
		return fmt.Errorf("cannot attach the broadcast address")
	}
	r, ok := a.receivers[dest]
	if !ok {
		r = &receiver{}
		a.receivers[dest] = r
		a.order = append(a.order, dest)
	}
	if l != nil {
		r.radio = append(r.radio, l)
	}
	if p != nil {
		if r.payload != nil {
			return fmt.Errorf("station %s already has a payload listener", dest)
		}
		r.payload = p
	}
	return nil
}

// listenersFor returns the listeners that observe frames to dest, attached
// stations first.
func (a *AccessPoint) listenersFor(dest model.MacAddress) listenerFanout {
	var out listenerFanout
	if dest.IsBroadcast() {
		for _, addr := range a.order {
			out = append(out, a.receivers[addr].radio...)
		}
	} else if r, ok := a.receivers[dest]; ok {
		out = append(out, r.radio...)
	}
	return append(out, a.listeners...)
}

// Send transmits one frame carrying payload bytes to dest located at
// destPos. Unicast frames are adapted to the current geometry first and a
// delivered payload is passed to the station's payload listener. Broadcast
// frames go out at the lowest power level with the base mode and are never
// reported delivered.
func (a *AccessPoint) Send(dest model.MacAddress, destPos model.Vector, payload uint32) (Transmission, error) {
	src := a.position()
	tx := Transmission{Dest: dest}
	listeners := a.listenersFor(dest)

	if dest.IsBroadcast() {
		tx.Mode = a.phy.Mode(0)
		tx.PowerDbm = a.phy.PowerForLevel(0)
	} else {
		choice, err := a.adapt.Update(dest, src, destPos, listeners)
		if err != nil {
			return tx, fmt.Errorf("adapt %s: %w", dest, err)
		}
		tx.Mode = a.phy.Mode(int(choice.ModeIndex))
		tx.PowerDbm = a.phy.PowerForLevel(choice.PowerLevel)
	}

	if err := listeners.OnTransmission(dest); err != nil {
		return tx, fmt.Errorf("transmit to %s: %w", dest, err)
	}
	if dest.IsBroadcast() {
		return tx, nil
	}

	tx.SNRdB = EstimateSNRdB(a.phy.Transceiver(), tx.PowerDbm, src, destPos)
	tx.Delivered = tx.SNRdB >= tx.Mode.MinSNRdB
	if r, ok := a.receivers[dest]; ok && tx.Delivered && r.payload != nil {
		r.payload.OnReceived(payload)
	}
	return tx, nil
}
