// Package persist models the "persistent key/value store" external
// collaborator (spec §2, §6): atomic read/write of one small record
// keyed by the fixed namespace "rokor_mesh"... renamed here to the
// project's own namespace, Namespace. The store itself (flash,
// a file, NVS) is out of scope; this package only fixes the Record shape
// and the Store contract, plus two concrete Stores useful off a
// microcontroller: an in-memory one for tests and a YAML-file-backed one
// for host/simulation use standing in for flash.
package persist

import "github.com/rkotov-iot/meshlink/protocol"

// Namespace names the mesh record's namespace, mirroring the original
// firmware's NVS_NAMESPACE "rokor_mesh". The stores in this package hold a
// single record and do not key it by Namespace.
const Namespace = "meshlink"

// Record is the persisted configuration (spec §3/§6). PMK is deliberately
// absent: it is never persisted.
type Record struct {
	NetworkName     string
	Role            protocol.Role
	MyLogicalID     protocol.LogicalID
	BusID           [protocol.BusIDLen]byte
	Channel         uint8
	GatewayID       protocol.LogicalID // node only
	GatewayMAC      protocol.MAC       // node only
}

// MatchesStartup reports whether r could plausibly have come from a real begin()
// call: a persisted record is only ever usable if it matches the network
// name and channel the caller is starting with (spec §3 invariant).
func (r Record) MatchesStartup(networkName string, channel uint8) bool {
	return r.NetworkName == networkName && r.Channel == channel
}

// Store is the persistence contract. Implementations must make Save
// atomic with respect to concurrent process crashes (write-then-rename or
// equivalent); Load of a namespace that was never saved returns
// ok == false with no error.
type Store interface {
	Load() (rec Record, ok bool, err error)
	Save(rec Record) error
	Clear() error
}
