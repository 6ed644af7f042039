//go:build tinygo || baremetal

package nrf

import (
	"time"

	"github.com/rkotov-iot/meshlink/protocol"
)

// rxPollWindow bounds how long Drain spends listening on each known
// peer's address before moving to the next one. Keeping it short is what
// lets a half-duplex, single-pipe radio stand in for radio.Adapter's
// implicit multi-peer model without stalling the cooperative tick.
const rxPollWindow = 2 * time.Millisecond

type peer struct {
	channel   uint8
	encrypted bool
}

// Adapter drives one nRF52 radio peripheral as a meshlink radio.Adapter.
// Unlike ESP-NOW (the original firmware's radio, and what radio/loopback
// imitates for host testing), this hardware has one address register: it
// cannot listen to several peers at once. Adapter compensates in software,
// keeping a peer table and round-robin polling each peer's address for one
// short window per Drain call (spec §9 open question: single-pipe hardware
// vs. the multi-peer addressing radio.Adapter otherwise assumes).
type Adapter struct {
	mac   protocol.MAC
	peers map[protocol.MAC]peer
	cb    func(data []byte, from protocol.MAC)
}

// New returns an Adapter identified by mac. Call StartHFCLK once at
// startup before using it.
func New(mac protocol.MAC) *Adapter {
	return &Adapter{mac: mac, peers: make(map[protocol.MAC]peer)}
}

// LocalMAC implements radio.Adapter.
func (a *Adapter) LocalMAC() protocol.MAC { return a.mac }

// AddPeer implements radio.Adapter.
func (a *Adapter) AddPeer(mac protocol.MAC, channel uint8, encrypted bool) error {
	a.peers[mac] = peer{channel: channel, encrypted: encrypted}
	return nil
}

// ModifyPeer implements radio.Adapter.
func (a *Adapter) ModifyPeer(mac protocol.MAC, channel uint8, encrypted bool) error {
	return a.AddPeer(mac, channel, encrypted)
}

// RemovePeer implements radio.Adapter.
func (a *Adapter) RemovePeer(mac protocol.MAC) error {
	delete(a.peers, mac)
	return nil
}

// Send implements radio.Adapter. Broadcast fans out to every known peer in
// turn, since the peripheral has no hardware broadcast address.
func (a *Adapter) Send(mac protocol.MAC, data []byte) error {
	if mac == protocol.BroadcastMAC {
		for peerMAC, p := range a.peers {
			if err := a.sendTo(peerMAC, p.channel, data); err != nil {
				return err
			}
		}
		return nil
	}
	p, ok := a.peers[mac]
	if !ok {
		return protocol.ErrUnknownPeer
	}
	return a.sendTo(mac, p.channel, data)
}

func (a *Adapter) sendTo(mac protocol.MAC, channel uint8, data []byte) error {
	addr, prefix := addressOf(mac)
	StartHFCLK()
	if err := ConfigureRadio(addr, prefix, channel); err != nil {
		return err
	}
	return transmit(data)
}

// Drain implements radio.Drainer. It gives every known peer one short
// receive window; a host should call it once per cooperative tick, the
// same contract radio/loopback's Drain documents.
func (a *Adapter) Drain() {
	if a.cb == nil {
		return
	}
	for mac, p := range a.peers {
		addr, prefix := addressOf(mac)
		StartHFCLK()
		if err := ConfigureRadio(addr, prefix, p.channel); err != nil {
			continue
		}
		data, err := receive(rxPollWindow)
		if err != nil {
			continue
		}
		a.cb(data, mac)
	}
}

// SetReceiveCallback implements radio.Adapter.
func (a *Adapter) SetReceiveCallback(cb func(data []byte, from protocol.MAC)) {
	a.cb = cb
}

// addressOf derives the nRF base address and prefix byte from a
// protocol.MAC: the top 4 bytes become BASE0, the 5th becomes PREFIX0. The
// 6th byte is unused here; a true multi-pipe implementation would spread
// it across the radio's 8 logical addresses instead of polling serially.
func addressOf(mac protocol.MAC) (uint32, byte) {
	addr := uint32(mac[0])<<24 | uint32(mac[1])<<16 | uint32(mac[2])<<8 | uint32(mac[3])
	return addr, mac[4]
}
