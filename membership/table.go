// Package membership implements the gateway's node membership table (spec
// §4.4): id allocation on NodeIDRequest, idempotent re-request handling,
// last-seen tracking, and the periodic inactivity sweep. It is grounded
// directly on the original handleNodeIdRequest/cleanupInactiveNodes
// routines, translated from a fixed C array scan into a Go slice.
package membership

import (
	"github.com/rkotov-iot/meshlink/protocol"
)

// Record is one child node as seen by the gateway.
type Record struct {
	ID             protocol.LogicalID
	MAC            protocol.MAC
	LastSeenMillis int64

	// PendingAck is set when an id is freshly allocated and cleared once
	// the node's NodeIDAck arrives (AckPending). No operation currently
	// branches on it beyond reporting; it mirrors the original's
	// id_assigned_this_session bookkeeping.
	PendingAck bool
}

// StatusFunc is invoked whenever a node's connected/disconnected status
// changes: fresh assignment, explicit ack/ping-driven reconnect, or
// inactivity-sweep removal.
type StatusFunc func(id protocol.LogicalID, connected bool, reason string)

// Table is the fixed-capacity (protocol.MaxNodesPerGateway) set of child
// nodes a gateway currently knows about.
type Table struct {
	gatewayID     protocol.LogicalID
	nodes         []Record
	nextCandidate protocol.LogicalID
	onStatus      StatusFunc
}

// NewTable returns an empty table for a gateway operating as gatewayID.
func NewTable(gatewayID protocol.LogicalID) *Table {
	return &Table{
		gatewayID:     gatewayID,
		nextCandidate: protocol.MinNodeID,
	}
}

// SetStatusCallback installs the function called on connect/disconnect
// transitions. Passing nil silences notifications.
func (t *Table) SetStatusCallback(cb StatusFunc) {
	t.onStatus = cb
}

// Count returns the number of nodes currently tracked.
func (t *Table) Count() int { return len(t.nodes) }

// Nodes returns a snapshot of the current table, safe for the caller to
// range over without holding a reference into internal state.
func (t *Table) Nodes() []Record {
	out := make([]Record, len(t.nodes))
	copy(out, t.nodes)
	return out
}

// FindByMAC returns the record for mac, if known.
func (t *Table) FindByMAC(mac protocol.MAC) (Record, bool) {
	for _, n := range t.nodes {
		if n.MAC == mac {
			return n, true
		}
	}
	return Record{}, false
}

// FindByID returns the record for id, if known.
func (t *Table) FindByID(id protocol.LogicalID) (Record, bool) {
	if id == protocol.UnassignedID {
		return Record{}, false
	}
	for _, n := range t.nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Record{}, false
}

// HandleIDRequest resolves a NodeIDRequest from mac: a node already known
// by that MAC gets its previous id re-sent and its last-seen time bumped
// (the request is idempotent); an unknown MAC gets the next free id in
// [protocol.MinNodeID, protocol.MaxNodeID], found by linear probing from
// the last candidate and wrapping past the gateway's own id, 0 and 255.
func (t *Table) HandleIDRequest(mac protocol.MAC, nowMillis int64) (protocol.LogicalID, error) {
	if existing, ok := t.FindByMAC(mac); ok {
		t.touch(existing.ID, nowMillis)
		return existing.ID, nil
	}

	if len(t.nodes) >= protocol.MaxNodesPerGateway {
		return protocol.UnassignedID, protocol.ErrPeerTableFull
	}

	candidate := t.nextCandidate
	for attempt := 0; attempt < int(protocol.MaxNodeID); attempt++ {
		if candidate == protocol.UnassignedID || candidate > protocol.MaxNodeID {
			candidate = protocol.MinNodeID
		}
		if candidate == t.gatewayID {
			candidate++
			continue
		}
		if _, taken := t.FindByID(candidate); !taken {
			t.nextCandidate = candidate + 1
			t.nodes = append(t.nodes, Record{
				ID:             candidate,
				MAC:            mac,
				LastSeenMillis: nowMillis,
				PendingAck:     true,
			})
			t.notify(candidate, true, "id_assign")
			return candidate, nil
		}
		candidate++
	}
	return protocol.UnassignedID, protocol.ErrAddressSpaceExhausted
}

// Touch refreshes the last-seen time for id (on ack or ping receipt). It
// reports whether id was known.
func (t *Table) Touch(id protocol.LogicalID, nowMillis int64) bool {
	return t.touch(id, nowMillis)
}

// AckPending clears the PendingAck flag for id on receipt of its
// NodeIDAck, reporting whether id was known.
func (t *Table) AckPending(id protocol.LogicalID) bool {
	for i := range t.nodes {
		if t.nodes[i].ID == id {
			t.nodes[i].PendingAck = false
			return true
		}
	}
	return false
}

func (t *Table) touch(id protocol.LogicalID, nowMillis int64) bool {
	for i := range t.nodes {
		if t.nodes[i].ID == id {
			t.nodes[i].LastSeenMillis = nowMillis
			return true
		}
	}
	return false
}

// Sweep removes every node whose last-seen time is older than
// inactivityThresholdMillis, firing the status callback with reason
// "timeout" for each, and returns the removed records so the caller can
// tear down the matching radio peer and transport mapping.
func (t *Table) Sweep(nowMillis, inactivityThresholdMillis int64) []Record {
	var removed []Record
	kept := t.nodes[:0]
	for _, n := range t.nodes {
		if nowMillis-n.LastSeenMillis > inactivityThresholdMillis {
			t.notify(n.ID, false, "timeout")
			removed = append(removed, n)
			continue
		}
		kept = append(kept, n)
	}
	t.nodes = kept
	return removed
}

// Reset clears the table and restarts id allocation from MinNodeID,
// mirroring the original clearConfigNVS/gateway-restart path.
func (t *Table) Reset() {
	t.nodes = nil
	t.nextCandidate = protocol.MinNodeID
}

func (t *Table) notify(id protocol.LogicalID, connected bool, reason string) {
	if t.onStatus != nil {
		t.onStatus(id, connected, reason)
	}
}
