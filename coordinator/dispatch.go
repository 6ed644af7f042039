package coordinator

import (
	"github.com/rkotov-iot/meshlink/discovery"
	"github.com/rkotov-iot/meshlink/liveness"
	"github.com/rkotov-iot/meshlink/protocol"
	"github.com/rkotov-iot/meshlink/transport"
)

// onTransportReceive implements the receiver multiplexing spec §4.6
// describes: the only place FSM transitions happen on event rather than
// on a timer. Control tags are dispatched by role; anything else is
// reassembled (tag and all, per §4.3) and surfaced to the host verbatim.
func (c *Coordinator) onTransportReceive(tag byte, body []byte, senderID protocol.LogicalID, senderMAC protocol.MAC) {
	if !protocol.IsControlTag(tag) {
		if c.onReceive != nil {
			raw := make([]byte, 0, len(body)+1)
			raw = append(raw, tag)
			raw = append(raw, body...)
			c.onReceive(senderID, raw)
		}
		return
	}

	switch tag {
	case protocol.TagGatewayAnnounce:
		c.handleGatewayAnnounce(body, senderID, senderMAC)
	case protocol.TagNodeIDRequest:
		c.handleNodeIDRequest(body)
	case protocol.TagNodeIDAssign:
		c.handleNodeIDAssign(body)
	case protocol.TagNodeIDAck:
		c.handleNodeIDAck(senderID)
	case protocol.TagNodePing:
		c.handleNodePing(senderID, senderMAC)
	case protocol.TagGatewayPong:
		c.handleGatewayPong()
	}
}

func (c *Coordinator) handleGatewayAnnounce(body []byte, senderID protocol.LogicalID, senderMAC protocol.MAC) {
	msg, ok := protocol.DecodeGatewayAnnounce(body)
	if !ok {
		return
	}
	senderMAC = msg.SenderMAC

	if c.fsm.State() == discovery.StateOperationalNode {
		if senderMAC != c.fsm.GatewayMAC() && c.fsm.UpdateGatewayMAC(senderID, senderMAC) {
			c.log.Warnw("gateway MAC changed, updating silently", "gateway_id", senderID, "mac", senderMAC)
			c.transport.SetPeerMAC(senderID, senderMAC)
			_ = c.adapter.AddPeer(senderMAC, c.channel, c.encrypted)
			c.persistNode()
		}
		return
	}

	busID := protocol.DeriveBusID(c.networkName)
	_ = c.adapter.AddPeer(senderMAC, c.channel, c.encrypted)
	c.transport.SetPeerMAC(senderID, senderMAC)

	switch c.fsm.OnGatewayAnnounce(senderID, senderMAC) {
	case discovery.ActionSendNodeIDRequest:
		c.sendNodeIDRequest()
	case discovery.ActionBecomeOperationalNode:
		c.transport.Configure(busID, c.fsm.LocalID(), c.onTransportReceive, c.onTransportAck, c.onTransportError)
		c.monitor = liveness.NewScheduler(c.pingInterval, c.maxPingAttempts)
		c.monitor.StartDelayed(c.clk.NowMillis())
		c.persistNode()
		if c.onGatewayStatus != nil {
			c.onGatewayStatus(true)
		}
	}
}

func (c *Coordinator) handleNodeIDRequest(body []byte) {
	if c.table == nil {
		return
	}
	msg, ok := protocol.DecodeNodeIDRequest(body)
	if !ok {
		return
	}
	id, err := c.table.HandleIDRequest(msg.RequesterMAC, c.clk.NowMillis())
	if err != nil {
		c.log.Debugw("node id request dropped", "mac", msg.RequesterMAC, "error", err)
		if c.metrics != nil {
			c.metrics.NodeIDRejections.WithLabelValues(err.Error()).Inc()
		}
		return
	}
	if c.metrics != nil {
		c.metrics.NodeIDAssigns.Inc()
	}
	_ = c.adapter.AddPeer(msg.RequesterMAC, c.channel, c.encrypted)
	c.transport.SetPeerMAC(id, msg.RequesterMAC)
	c.transport.Send(id, protocol.TagNodeIDAssign, protocol.EncodeNodeIDAssign(protocol.NodeIDAssign{
		AssignedID: id,
		TargetMAC:  msg.RequesterMAC,
	})[1:])
}

func (c *Coordinator) handleNodeIDAssign(body []byte) {
	if c.fsm.State() != discovery.StateRequestNodeID {
		return
	}
	msg, ok := protocol.DecodeNodeIDAssign(body)
	if !ok {
		return
	}
	myMAC := c.adapter.LocalMAC()
	action, applied := c.fsm.OnNodeIDAssign(msg.AssignedID, msg.TargetMAC, myMAC)
	if !applied || action != discovery.ActionBecomeOperationalNode {
		return
	}

	busID := protocol.DeriveBusID(c.networkName)
	c.transport.Configure(busID, c.fsm.LocalID(), c.onTransportReceive, c.onTransportAck, c.onTransportError)
	c.transport.SetPeerMAC(c.fsm.GatewayID(), c.fsm.GatewayMAC())
	c.transport.Send(c.fsm.GatewayID(), protocol.TagNodeIDAck, nil)

	c.monitor = liveness.NewScheduler(c.pingInterval, c.maxPingAttempts)
	c.monitor.StartDelayed(c.clk.NowMillis())
	c.persistNode()
	if c.onGatewayStatus != nil {
		c.onGatewayStatus(true)
	}
}

func (c *Coordinator) handleNodeIDAck(senderID protocol.LogicalID) {
	if c.table == nil {
		return
	}
	c.table.AckPending(senderID)
	c.table.Touch(senderID, c.clk.NowMillis())
}

func (c *Coordinator) handleNodePing(senderID protocol.LogicalID, senderMAC protocol.MAC) {
	if c.table == nil {
		return
	}
	c.table.Touch(senderID, c.clk.NowMillis())
	c.transport.Send(senderID, protocol.TagGatewayPong, nil)
}

func (c *Coordinator) handleGatewayPong() {
	if c.monitor == nil {
		return
	}
	c.monitor.OnPong(c.clk.NowMillis())
}

func (c *Coordinator) onTransportAck(dest protocol.LogicalID, tag byte) {
	c.log.Debugw("delivery acked", "dest", dest, "tag", tag)
}

func (c *Coordinator) onTransportError(err error, dest protocol.LogicalID) {
	c.log.Debugw("transport error", "dest", dest, "error", err)
	if c.fsm.Role() == protocol.RoleNode && dest == c.fsm.GatewayID() {
		c.disconnectFromGateway()
	}
}

func (c *Coordinator) sendGatewayAnnounce() {
	body := protocol.EncodeGatewayAnnounce(protocol.GatewayAnnounce{SenderMAC: c.adapter.LocalMAC()})
	c.transport.Send(protocol.BroadcastID, protocol.TagGatewayAnnounce, body[1:])
}

func (c *Coordinator) sendNodeIDRequest() {
	busID := protocol.DeriveBusID(c.networkName)
	c.transport.Configure(busID, protocol.UnassignedID, c.onTransportReceive, c.onTransportAck, c.onTransportError)
	c.transport.SetPeerMAC(c.fsm.GatewayID(), c.fsm.GatewayMAC())
	body := protocol.EncodeNodeIDRequest(protocol.NodeIDRequest{RequesterMAC: c.adapter.LocalMAC()})
	c.transport.Send(c.fsm.GatewayID(), protocol.TagNodeIDRequest, body[1:])
}

func (c *Coordinator) persistGateway() {
	rec := persistRecordFor(c)
	if err := c.store.Save(rec); err != nil {
		c.log.Warnw("persisting gateway record failed", "error", err)
	}
}

func (c *Coordinator) persistNode() {
	rec := persistRecordFor(c)
	if err := c.store.Save(rec); err != nil {
		c.log.Warnw("persisting node record failed", "error", err)
	}
}

// SendResult re-exported for callers that want to branch on Send's
// outcome without importing the transport package directly.
type SendResult = transport.SendResult

const (
	ResultQueued = transport.ResultQueued
	ResultBusy   = transport.ResultBusy
	ResultFail   = transport.ResultFail
)
