// Package loopback implements radio.Adapter over a shared in-process
// medium, standing in for real radio hardware the way the teacher's
// driver/stub package stands in for the nRF radio on host builds. It lets
// cmd/meshsim and the coordinator's tests run a population of devices
// exchanging frames without any real antenna.
package loopback

import (
	"sync"

	"github.com/rkotov-iot/meshlink/protocol"
)

const inboxCapacity = 256

type inboundFrame struct {
	data []byte
	from protocol.MAC
}

// Ether is the shared medium a population of loopback Adapters registers
// onto. It has no notion of channel or range: every registered adapter
// can reach every other one, matching the single-hop-star assumption the
// spec makes (§1 Non-goals: no multi-hop routing).
type Ether struct {
	mu       sync.Mutex
	adapters map[protocol.MAC]*Adapter
}

// NewEther returns an empty shared medium.
func NewEther() *Ether {
	return &Ether{adapters: make(map[protocol.MAC]*Adapter)}
}

// NewAdapter registers and returns a new loopback radio.Adapter with the
// given MAC. Registering the same MAC twice replaces the previous
// adapter, which is convenient for simulating a device reboot.
func (e *Ether) NewAdapter(mac protocol.MAC) *Adapter {
	a := &Adapter{
		ether: e,
		mac:   mac,
		peers: make(map[protocol.MAC]peerInfo),
	}
	e.mu.Lock()
	e.adapters[mac] = a
	e.mu.Unlock()
	return a
}

func (e *Ether) deliver(dest, src protocol.MAC, data []byte) {
	e.mu.Lock()
	a, ok := e.adapters[dest]
	e.mu.Unlock()
	if !ok {
		return
	}
	a.enqueue(inboundFrame{data: append([]byte(nil), data...), from: src})
}

func (e *Ether) broadcastFrom(src protocol.MAC, data []byte) {
	e.mu.Lock()
	targets := make([]*Adapter, 0, len(e.adapters))
	for mac, a := range e.adapters {
		if mac == src {
			continue
		}
		targets = append(targets, a)
	}
	e.mu.Unlock()
	for _, a := range targets {
		a.enqueue(inboundFrame{data: append([]byte(nil), data...), from: src})
	}
}

type peerInfo struct {
	channel   uint8
	encrypted bool
}

// Adapter is one device's view of an Ether. It implements radio.Adapter.
type Adapter struct {
	ether *Ether
	mac   protocol.MAC

	mu    sync.Mutex
	peers map[protocol.MAC]peerInfo
	inbox []inboundFrame

	cb func(data []byte, from protocol.MAC)
}

// LocalMAC implements radio.Adapter.
func (a *Adapter) LocalMAC() protocol.MAC { return a.mac }

// AddPeer implements radio.Adapter.
func (a *Adapter) AddPeer(mac protocol.MAC, channel uint8, encrypted bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.peers[mac] = peerInfo{channel: channel, encrypted: encrypted}
	return nil
}

// ModifyPeer implements radio.Adapter.
func (a *Adapter) ModifyPeer(mac protocol.MAC, channel uint8, encrypted bool) error {
	return a.AddPeer(mac, channel, encrypted)
}

// RemovePeer implements radio.Adapter.
func (a *Adapter) RemovePeer(mac protocol.MAC) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.peers, mac)
	return nil
}

// Send implements radio.Adapter.
func (a *Adapter) Send(mac protocol.MAC, data []byte) error {
	if mac == protocol.BroadcastMAC {
		a.ether.broadcastFrom(a.mac, data)
		return nil
	}
	a.ether.deliver(mac, a.mac, data)
	return nil
}

// SetReceiveCallback implements radio.Adapter.
func (a *Adapter) SetReceiveCallback(cb func(data []byte, from protocol.MAC)) {
	a.mu.Lock()
	a.cb = cb
	a.mu.Unlock()
}

func (a *Adapter) enqueue(f inboundFrame) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.inbox) >= inboxCapacity {
		a.inbox = a.inbox[1:]
	}
	a.inbox = append(a.inbox, f)
}

// Drain delivers every queued inbound frame to the installed callback, in
// arrival order. It is meant to be called once per cooperative tick (spec
// §5: deliveries are marshaled into update(), never invoked concurrently
// with it).
func (a *Adapter) Drain() {
	a.mu.Lock()
	pending := a.inbox
	a.inbox = nil
	cb := a.cb
	a.mu.Unlock()

	if cb == nil {
		return
	}
	for _, f := range pending {
		cb(f.data, f.from)
	}
}
