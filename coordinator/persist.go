package coordinator

import (
	"github.com/rkotov-iot/meshlink/persist"
	"github.com/rkotov-iot/meshlink/protocol"
)

// persistRecordFor snapshots the coordinator's current operational
// identity into the shape persist.Store saves, mirroring the original's
// save-on-every-state-mutating-transition policy (spec §5).
func persistRecordFor(c *Coordinator) persist.Record {
	rec := persist.Record{
		NetworkName: c.networkName,
		Role:        c.fsm.Role(),
		MyLogicalID: c.fsm.LocalID(),
		BusID:       protocol.DeriveBusID(c.networkName),
		Channel:     c.channel,
	}
	if c.fsm.Role() == protocol.RoleNode {
		rec.GatewayID = c.fsm.GatewayID()
		rec.GatewayMAC = c.fsm.GatewayMAC()
	}
	return rec
}
