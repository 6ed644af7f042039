// Package radio defines the external radio-driver contract (spec §2,
// "Radio Adapter"): add/modify/remove peer, send to a peer MAC, and
// deliver inbound frames carrying the sender's MAC. The underlying radio
// hardware and its link-layer encryption are out of scope; this package
// only fixes the interface and ships a loopback implementation useful for
// host-side simulation and tests (see package radio/loopback).
package radio

import "github.com/rkotov-iot/meshlink/protocol"

// Adapter is the peer-table-level radio contract the packet transport is
// built on. Add/Modify/Remove must be idempotent; a failed Modify should
// be retried by the caller as Remove+Add (spec §5).
type Adapter interface {
	LocalMAC() protocol.MAC

	AddPeer(mac protocol.MAC, channel uint8, encrypted bool) error
	ModifyPeer(mac protocol.MAC, channel uint8, encrypted bool) error
	RemovePeer(mac protocol.MAC) error

	// Send transmits data to mac. It does not block waiting for
	// acknowledgement; that is the packet transport's job.
	Send(mac protocol.MAC, data []byte) error

	// SetReceiveCallback installs the function invoked for every inbound
	// frame. The design requires adapters to marshal deliveries into the
	// host's cooperative tick (spec §5); SetReceiveCallback itself may be
	// called from any context, but the callback must only ever be invoked
	// from inside the adapter's Drain (or equivalent), never concurrently
	// with the caller's own update().
	SetReceiveCallback(cb func(data []byte, from protocol.MAC))
}

// Drainer is implemented by adapters that buffer inbound frames and need
// an explicit pump step to hand them to the installed receive callback
// (package radio/loopback is one). Callers that only hold an Adapter
// should type-assert for this before Update, the way io.Closer is
// type-asserted for optional close behaviour.
type Drainer interface {
	Drain()
}
