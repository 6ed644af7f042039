// Package coordinator wires every other package into the host-facing
// façade the spec calls the "Coordinator": begin/end/update/send plus
// status callbacks and tunables (spec §6). It owns no protocol logic of
// its own beyond the receiver multiplexing in dispatch.go (spec §4.6);
// everything else is delegated to discovery.FSM, membership.Table,
// liveness.Scheduler and transport.Transport.
//
// Grounded on the teacher's facade.go (re-export + build-tag-split
// constructor pattern): here that becomes functional options over a
// single constructor, since unlike the teacher's fixed nRF/stub split
// this repo's radio.Adapter is swappable by the caller.
package coordinator

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rkotov-iot/meshlink/clock"
	"github.com/rkotov-iot/meshlink/discovery"
	"github.com/rkotov-iot/meshlink/internal/telemetry"
	"github.com/rkotov-iot/meshlink/liveness"
	"github.com/rkotov-iot/meshlink/membership"
	"github.com/rkotov-iot/meshlink/persist"
	"github.com/rkotov-iot/meshlink/protocol"
	"github.com/rkotov-iot/meshlink/radio"
	"github.com/rkotov-iot/meshlink/transport"
	"github.com/rkotov-iot/meshlink/xrand"
)

type forcedRequest struct {
	role      protocol.Role
	myID      protocol.LogicalID
	gatewayID protocol.LogicalID
}

// Coordinator is the top-level handle a host application drives with one
// Update call per cooperative tick. It is not safe for concurrent use.
type Coordinator struct {
	adapter radio.Adapter
	clk     clock.Source
	rng     xrand.Source
	store   persist.Store
	log     *zap.SugaredLogger
	metrics *telemetry.Metrics

	transport *transport.Transport
	fsm       *discovery.FSM
	table     *membership.Table
	monitor   *liveness.Scheduler

	networkName string
	userKey     string
	channel     uint8
	pmk         [protocol.PMKLen]byte
	encrypted   bool
	gatewayHint protocol.LogicalID
	pending     *forcedRequest

	cfg discovery.Config
	announceInterval time.Duration
	pingInterval     time.Duration
	maxPingAttempts  int

	lastAnnounceAt int64
	lastCleanupAt  int64

	began bool
	erred bool

	onReceive       func(senderID protocol.LogicalID, payload []byte)
	onGatewayStatus func(connected bool)
	onNodeStatus    func(id protocol.LogicalID, connected bool)
}

// New returns a Coordinator ready for Begin. adapter is the only required
// dependency; every other collaborator has a sensible production default
// overridable via Option.
func New(adapter radio.Adapter, opts ...Option) *Coordinator {
	c := &Coordinator{
		adapter:          adapter,
		clk:              clock.System{},
		rng:              xrand.System{},
		store:            persist.NewMemoryStore(),
		log:              zap.NewNop().Sugar(),
		gatewayHint:      protocol.DefaultGatewayID,
		cfg: discovery.Config{
			DiscoveryTimeout: protocol.DefaultDiscoveryTimeout,
			ContentionWindow: protocol.DefaultContentionWindow,
			NodeIDRequestTTL: protocol.NodeIDRequestTimeout,
		},
		announceInterval: protocol.DefaultGatewayAnnounceInterval,
		pingInterval:     protocol.DefaultNodePingInterval,
		maxPingAttempts:  protocol.DefaultNodeMaxPingAttempts,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetPMK installs a custom pre-shared key, used instead of deriving one
// from the network name. Must be called before Begin.
func (c *Coordinator) SetPMK(userKey string) {
	c.userKey = userKey
}

// ForceRoleGateway pins the device to become gateway with myID (or the
// WithGatewayIDHint id, protocol.DefaultGatewayID by default, if myID is
// protocol.UnassignedID), bypassing election entirely. Must be called
// before Begin.
func (c *Coordinator) ForceRoleGateway(myID protocol.LogicalID) {
	c.pending = &forcedRequest{role: protocol.RoleGateway, myID: myID}
}

// ForceRoleNode starts the device in the node role with myID, listening for
// a gateway announce instead of starting as discovering. gatewayID is
// recorded but not used: the node joins whichever gateway it hears first,
// and if none is heard within the discovery timeout it enters gateway
// contention like an unforced device. Must be called before Begin.
func (c *Coordinator) ForceRoleNode(myID, gatewayID protocol.LogicalID) {
	c.pending = &forcedRequest{role: protocol.RoleNode, myID: myID, gatewayID: gatewayID}
}

// Begin starts the coordinator for networkName on channel (defaulted to
// protocol.DefaultChannel if out of [1,13]). It attempts to resume a
// matching persisted record before falling through to forced-role or
// election startup (spec §4.1 LoadConfig).
func (c *Coordinator) Begin(networkName string, channel uint8) error {
	if len(networkName) == 0 || len(networkName) > protocol.MaxNetworkNameLen {
		return fmt.Errorf("coordinator: begin %q: %w", networkName, protocol.ErrInvalidArgument)
	}
	if channel < protocol.MinChannel || channel > protocol.MaxChannel {
		channel = protocol.DefaultChannel
	}

	c.networkName = networkName
	c.channel = channel
	c.began = false
	c.erred = false
	c.pmk = protocol.DerivePMK(networkName, c.userKey)
	c.encrypted = !protocol.IsUnencrypted(networkName, c.userKey)

	busID := protocol.DeriveBusID(networkName)
	c.transport = transport.New(c.adapter, c.clk)
	c.fsm = discovery.New(c.cfg, c.clk, c.rng)

	rec, ok, err := c.store.Load()
	if err != nil {
		c.log.Warnw("persisted record load failed, starting fresh", "error", err)
		ok = false
	}

	if ok && rec.MatchesStartup(networkName, channel) && c.recordUsable(rec) {
		if err := c.resumeFromRecord(busID, rec); err != nil {
			c.log.Errorw("radio init failed resuming from persisted record", "error", err)
			return err
		}
	} else {
		if ok {
			if err := c.store.Clear(); err != nil {
				c.log.Warnw("clearing stale persisted record failed", "error", err)
			}
		}
		if err := c.startFresh(busID); err != nil {
			c.log.Errorw("radio init failed starting fresh", "error", err)
			return err
		}
	}

	c.began = true
	c.lastAnnounceAt = c.clk.NowMillis()
	c.lastCleanupAt = c.clk.NowMillis()
	return nil
}

func (c *Coordinator) recordUsable(rec persist.Record) bool {
	if rec.Role == protocol.RoleGateway {
		return true
	}
	return rec.Role == protocol.RoleNode && rec.GatewayID != protocol.UnassignedID && !rec.GatewayMAC.IsZero()
}

func (c *Coordinator) resumeFromRecord(busID [protocol.BusIDLen]byte, rec persist.Record) error {
	c.fsm.LoadPersisted(rec)
	c.transport.Configure(busID, rec.MyLogicalID, c.onTransportReceive, c.onTransportAck, c.onTransportError)
	if rec.Role == protocol.RoleGateway {
		c.table = membership.NewTable(rec.MyLogicalID)
		c.table.SetStatusCallback(c.onNodeStatusInternal)
		if err := c.adapter.AddPeer(protocol.BroadcastMAC, c.channel, c.encrypted); err != nil {
			return fmt.Errorf("coordinator: resume as gateway: %w: %w", protocol.ErrRadioInitFailed, err)
		}
	} else {
		c.table = nil
		c.transport.SetPeerMAC(rec.GatewayID, rec.GatewayMAC)
		if err := c.adapter.AddPeer(rec.GatewayMAC, c.channel, c.encrypted); err != nil {
			return fmt.Errorf("coordinator: resume as node: %w: %w", protocol.ErrRadioInitFailed, err)
		}
		c.monitor = liveness.NewScheduler(c.pingInterval, c.maxPingAttempts)
		c.monitor.Start(c.clk.NowMillis())
	}
	return nil
}

func (c *Coordinator) startFresh(busID [protocol.BusIDLen]byte) error {
	if c.pending != nil {
		if c.pending.role == protocol.RoleGateway {
			myID := c.pending.myID
			if myID == protocol.UnassignedID {
				myID = c.gatewayHint
			}
			c.fsm.SetForcedRole(discovery.ForcedRole{Active: true, Role: protocol.RoleGateway, ID: myID})
		} else {
			c.fsm.SetForcedRole(discovery.ForcedRole{Active: true, Role: protocol.RoleNode, ID: c.pending.myID})
		}
	}
	c.transport.Configure(busID, protocol.UnassignedID, c.onTransportReceive, c.onTransportAck, c.onTransportError)

	c.fsm.Tick() // Init -> LoadConfig
	c.fsm.Tick() // LoadConfig -> CheckForcedRole
	c.fsm.Tick() // CheckForcedRole -> ListenForGateway or AnnounceAsGateway

	if c.fsm.LocalID() != protocol.UnassignedID {
		// A forced node id is known before transport is reconfigured under it.
		c.transport.Configure(busID, c.fsm.LocalID(), c.onTransportReceive, c.onTransportAck, c.onTransportError)
	}
	if c.fsm.State() == discovery.StateAnnounceAsGateway {
		// AnnounceAsGateway's own logic (and its ActionBecomeGateway) only
		// runs on the Tick after the one that transitioned into it; each
		// Tick executes exactly one state.
		c.fsm.Tick()
		if err := c.becomeGateway(busID); err != nil {
			return fmt.Errorf("%w: %w", protocol.ErrRadioInitFailed, err)
		}
	}
	return nil
}

// becomeGateway registers the gateway's broadcast peer and announces. A
// failure here is reported to the caller: Begin wraps it as
// RadioInitFailed (spec §4.7, "radio init failure at begin()"); if this
// instead fires later from handleAction (a fresh election completing
// mid-run), the caller treats it as TransportStartFailed and halts via
// FSM.Fail (spec §4.7, "transport fails to start during FSM").
func (c *Coordinator) becomeGateway(busID [protocol.BusIDLen]byte) error {
	c.transport.Configure(busID, c.fsm.LocalID(), c.onTransportReceive, c.onTransportAck, c.onTransportError)
	c.table = membership.NewTable(c.fsm.LocalID())
	c.table.SetStatusCallback(c.onNodeStatusInternal)
	if err := c.adapter.AddPeer(protocol.BroadcastMAC, c.channel, c.encrypted); err != nil {
		return err
	}
	c.persistGateway()
	c.sendGatewayAnnounce()
	if c.metrics != nil {
		c.metrics.Elections.Inc()
	}
	return nil
}

// End stops the transport and wipes runtime state; persistence (if any
// was written) is left intact, per spec §5 cancellation semantics.
func (c *Coordinator) End() error {
	c.began = false
	c.transport = nil
	c.fsm = nil
	c.table = nil
	c.monitor = nil
	return nil
}

// Update advances the FSM, performs role-specific periodic work, and
// drains inbound traffic, in that order (spec §5 ordering guarantee). It
// is a no-op before Begin or after a fatal Error transition.
func (c *Coordinator) Update() {
	if !c.began || c.erred {
		return
	}

	action := c.fsm.Tick()
	c.handleAction(action)
	if c.erred {
		return
	}

	switch c.fsm.Role() {
	case protocol.RoleGateway:
		c.updateGateway()
	case protocol.RoleNode:
		c.updateNode()
	}

	c.transport.Update()
}

func (c *Coordinator) handleAction(action discovery.Action) {
	switch action {
	case discovery.ActionBecomeGateway:
		busID := protocol.DeriveBusID(c.networkName)
		if err := c.becomeGateway(busID); err != nil {
			c.log.Errorw("transport failed to start", "error", fmt.Errorf("%w: %w", protocol.ErrTransportStartFailed, err))
			c.erred = true
			c.fsm.Fail()
		}
	case discovery.ActionSendNodeIDRequest:
		c.sendNodeIDRequest()
	}
}

func (c *Coordinator) updateGateway() {
	now := c.clk.NowMillis()
	if now-c.lastAnnounceAt >= c.announceInterval.Milliseconds() {
		c.sendGatewayAnnounce()
		c.lastAnnounceAt = now
	}

	cleanupInterval, inactivityThreshold := membership.DeriveIntervals(c.pingInterval, c.maxPingAttempts)
	if now-c.lastCleanupAt >= cleanupInterval.Milliseconds() {
		removed := c.table.Sweep(now, inactivityThreshold.Milliseconds())
		for _, rec := range removed {
			_ = c.adapter.RemovePeer(rec.MAC)
		}
		c.lastCleanupAt = now
	}
	if c.metrics != nil {
		c.metrics.TableSize.Set(float64(c.table.Count()))
	}
}

func (c *Coordinator) updateNode() {
	if c.monitor == nil {
		return
	}
	switch c.monitor.Update(c.clk.NowMillis()) {
	case liveness.OutcomeSendPing:
		c.transport.Send(c.fsm.GatewayID(), protocol.TagNodePing, nil)
		if c.metrics != nil {
			c.metrics.PingsSent.Inc()
		}
	case liveness.OutcomeDisconnected:
		c.disconnectFromGateway()
	}
}

func (c *Coordinator) disconnectFromGateway() {
	gatewayID := c.fsm.GatewayID()
	c.fsm.OnGatewayLost()
	c.monitor = nil
	if c.onGatewayStatus != nil {
		c.onGatewayStatus(false)
	}
	if c.metrics != nil {
		c.metrics.GatewayDisconnects.Inc()
	}
	c.log.Infow("gateway unreachable, returning to discovery", "gateway_id", gatewayID)
}

// Send transmits payload to destID. On a node, destID is normally the
// node's own gateway id (SendToGateway is a convenience for that case).
// payload's own first byte rides the wire as-is (spec §4.3): it must not
// fall in the reserved 0xD1..0xD6 control range.
func (c *Coordinator) Send(destID protocol.LogicalID, payload []byte) (transport.SendResult, error) {
	if !c.began {
		return transport.ResultFail, protocol.ErrSendRefused
	}
	if len(payload) == 0 || len(payload) > protocol.MaxPayloadSize {
		return transport.ResultFail, protocol.ErrInvalidPayload
	}
	if protocol.IsControlTag(payload[0]) {
		return transport.ResultFail, protocol.ErrInvalidArgument
	}
	return c.transport.Send(destID, payload[0], payload[1:]), nil
}

// SendToGateway is the node-only convenience form of Send: it addresses
// the node's current gateway.
func (c *Coordinator) SendToGateway(payload []byte) (transport.SendResult, error) {
	if c.fsm == nil || c.fsm.Role() != protocol.RoleNode {
		return transport.ResultFail, protocol.ErrSendRefused
	}
	return c.Send(c.fsm.GatewayID(), payload)
}

// SetReceiveCallback installs the handler for application payloads (any
// tag outside the reserved control range).
func (c *Coordinator) SetReceiveCallback(cb func(senderID protocol.LogicalID, payload []byte)) {
	c.onReceive = cb
}

// SetGatewayStatusCallback installs the handler fired whenever this node's
// connection to its gateway changes. Only meaningful in the node role.
func (c *Coordinator) SetGatewayStatusCallback(cb func(connected bool)) {
	c.onGatewayStatus = cb
}

// SetNodeStatusCallback installs the handler fired whenever a child node's
// connection to this gateway changes. Only meaningful in the gateway role.
func (c *Coordinator) SetNodeStatusCallback(cb func(id protocol.LogicalID, connected bool)) {
	c.onNodeStatus = cb
}

func (c *Coordinator) onNodeStatusInternal(id protocol.LogicalID, connected bool, reason string) {
	c.log.Debugw("node status", "id", id, "connected", connected, "reason", reason)
	if c.onNodeStatus != nil {
		c.onNodeStatus(id, connected)
	}
}

// Role returns the current role (protocol.RoleUninitialized before Begin).
func (c *Coordinator) Role() protocol.Role {
	if c.fsm == nil {
		return protocol.RoleUninitialized
	}
	return c.fsm.Role()
}

// LocalID returns the device's own logical id (protocol.UnassignedID if
// not yet settled).
func (c *Coordinator) LocalID() protocol.LogicalID {
	if c.fsm == nil {
		return protocol.UnassignedID
	}
	return c.fsm.LocalID()
}

// BusID returns the transport scoping id derived from the network name.
func (c *Coordinator) BusID() [protocol.BusIDLen]byte {
	return protocol.DeriveBusID(c.networkName)
}

// NetworkName returns the name passed to Begin.
func (c *Coordinator) NetworkName() string { return c.networkName }

// IsNetworkActive reports whether Begin has run and no fatal error has
// halted the FSM.
func (c *Coordinator) IsNetworkActive() bool { return c.began && !c.erred }

// IsGatewayConnected reports whether a node currently has a live gateway
// association. Always false for a gateway or before Begin.
func (c *Coordinator) IsGatewayConnected() bool {
	return c.fsm != nil && c.fsm.Role() == protocol.RoleNode && c.fsm.GatewayID() != protocol.UnassignedID
}
