// Package discovery implements the role-election state machine (spec
// §4.1): a device with no persisted identity listens for a gateway
// announcement, and if none arrives within the discovery timeout, waits a
// randomised contention delay before promoting itself to gateway — unless
// it hears another device announce first, which cancels the promotion.
// States and transitions are grounded directly on the original's
// DiscoveryFSM enum and runDiscoveryFSM switch; the side effects that
// switch performed inline (persistence, transport sends, peer table
// updates) are pulled out into the Action values Tick and the On*
// methods return, leaving the FSM itself pure and independently testable.
package discovery

import (
	"time"

	"github.com/rkotov-iot/meshlink/clock"
	"github.com/rkotov-iot/meshlink/persist"
	"github.com/rkotov-iot/meshlink/protocol"
	"github.com/rkotov-iot/meshlink/xrand"
)

// State is one node of the discovery state machine.
type State int

const (
	StateInit State = iota
	StateLoadConfig
	StateCheckForcedRole
	StateListenForGateway
	StateGatewayElectionDelay
	StateAnnounceAsGateway
	StateRequestNodeID
	StateOperationalNode
	StateOperationalGateway
	StateError
)

// String names a state the way the original's debug traces do, for log
// lines and test failure messages.
func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateLoadConfig:
		return "LoadConfig"
	case StateCheckForcedRole:
		return "CheckForcedRole"
	case StateListenForGateway:
		return "ListenForGateway"
	case StateGatewayElectionDelay:
		return "GatewayElectionDelay"
	case StateAnnounceAsGateway:
		return "AnnounceAsGateway"
	case StateRequestNodeID:
		return "RequestNodeID"
	case StateOperationalNode:
		return "OperationalNode"
	case StateOperationalGateway:
		return "OperationalGateway"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Action is a side effect Tick or an On* event method asks the caller to
// perform. The FSM never touches transport, persistence or radio itself.
type Action int

const (
	ActionNone Action = iota
	ActionBecomeGateway
	ActionSendGatewayAnnounce
	ActionSendNodeIDRequest
	ActionBecomeOperationalNode
	ActionGatewayUnreachable
	ActionError
)

// ForcedRole pins the device to a specific role and (for a gateway) id,
// bypassing election entirely — the equivalent of the original's
// forceRoleGateway/forceRoleNode host calls.
type ForcedRole struct {
	Active bool
	Role   protocol.Role
	ID     protocol.LogicalID
}

// Config bundles the tunables the FSM's timers run against.
type Config struct {
	DiscoveryTimeout time.Duration
	ContentionWindow time.Duration
	NodeIDRequestTTL time.Duration
}

// FSM is the pure election state machine for one device. It holds no
// network or persistence handle; the coordinator supplies those as
// dependencies and drives the FSM with Tick plus the On* event methods.
type FSM struct {
	cfg Config
	clk clock.Source
	rng xrand.Source

	state         State
	stateEnteredAt int64

	forced ForcedRole

	role       protocol.Role
	localID    protocol.LogicalID
	gatewayID  protocol.LogicalID
	gatewayMAC protocol.MAC

	contentionDelayMillis int64
	hasContentionDelay    bool
}

// New returns an FSM in StateInit, ready for its first Tick.
func New(cfg Config, clk clock.Source, rng xrand.Source) *FSM {
	return &FSM{cfg: cfg, clk: clk, rng: rng, state: StateInit}
}

// State returns the current state.
func (f *FSM) State() State { return f.state }

// Role returns the role decided so far (RoleUninitialized until settled).
func (f *FSM) Role() protocol.Role { return f.role }

// LocalID returns the logical id assigned so far (protocol.UnassignedID
// until a gateway promotion or a NodeIDAssign completes it).
func (f *FSM) LocalID() protocol.LogicalID { return f.localID }

// GatewayID and GatewayMAC return the node's current gateway association.
func (f *FSM) GatewayID() protocol.LogicalID { return f.gatewayID }
func (f *FSM) GatewayMAC() protocol.MAC      { return f.gatewayMAC }

// SetForcedRole pins the FSM to a host-selected role. It takes effect if
// called before the Tick that runs StateCheckForcedRole.
func (f *FSM) SetForcedRole(role ForcedRole) {
	f.forced = role
}

// LoadPersisted seeds the FSM from a previously saved record, taking the
// LOAD_NVS_CONFIG "valid config found" branch directly to the operational
// state it was saved in, with no election.
func (f *FSM) LoadPersisted(rec persist.Record) {
	f.role = rec.Role
	f.localID = rec.MyLogicalID
	f.gatewayID = rec.GatewayID
	f.gatewayMAC = rec.GatewayMAC
	if rec.Role == protocol.RoleGateway {
		f.transition(StateOperationalGateway)
	} else {
		f.transition(StateOperationalNode)
	}
}

func (f *FSM) transition(to State) {
	f.state = to
	f.stateEnteredAt = f.clk.NowMillis()
}

func (f *FSM) elapsed() time.Duration {
	return time.Duration(f.clk.NowMillis()-f.stateEnteredAt) * time.Millisecond
}

// Tick advances time-driven transitions, running exactly one state per
// call: StateInit/LoadConfig/CheckForcedRole take one Tick each (three in
// all when LoadPersisted was skipped), ListenForGateway and
// GatewayElectionDelay advance on their timers, and RequestNodeID times
// out back to listening.
func (f *FSM) Tick() Action {
	switch f.state {
	case StateInit:
		f.transition(StateLoadConfig)
		return ActionNone

	case StateLoadConfig:
		// No persisted record (LoadPersisted was never called, or the
		// caller determined it didn't match startup conditions): proceed
		// to forced-role evaluation, same as the original's "invalid NVS"
		// branch.
		f.transition(StateCheckForcedRole)
		return ActionNone

	case StateCheckForcedRole:
		if f.forced.Active {
			if f.forced.Role == protocol.RoleGateway {
				f.role = protocol.RoleGateway
				f.localID = f.forced.ID
				f.transition(StateAnnounceAsGateway)
				return ActionNone
			}
			f.role = protocol.RoleNode
			f.localID = f.forced.ID
			f.transition(StateListenForGateway)
			return ActionNone
		}
		f.role = protocol.RoleDiscovering
		f.transition(StateListenForGateway)
		return ActionNone

	case StateListenForGateway:
		if f.elapsed() > f.cfg.DiscoveryTimeout {
			f.transition(StateGatewayElectionDelay)
		}
		return ActionNone

	case StateGatewayElectionDelay:
		if !f.hasContentionDelay {
			window := int(f.cfg.ContentionWindow.Milliseconds())
			if window <= 0 {
				window = 1
			}
			f.contentionDelayMillis = int64(f.rng.Intn(window))
			f.hasContentionDelay = true
		}
		if f.elapsed() > time.Duration(f.contentionDelayMillis)*time.Millisecond {
			f.hasContentionDelay = false
			f.transition(StateAnnounceAsGateway)
		}
		return ActionNone

	case StateAnnounceAsGateway:
		f.role = protocol.RoleGateway
		if f.localID == protocol.UnassignedID {
			f.localID = protocol.DefaultGatewayID
		}
		f.transition(StateOperationalGateway)
		return ActionBecomeGateway

	case StateRequestNodeID:
		if f.elapsed() > f.cfg.NodeIDRequestTTL {
			f.gatewayID = protocol.UnassignedID
			f.gatewayMAC = protocol.MAC{}
			f.transition(StateListenForGateway)
		}
		return ActionNone
	}
	return ActionNone
}

// OnGatewayAnnounce handles an inbound GatewayAnnounce while listening or
// contending. A node with no id yet moves to RequestNodeID (cancelling
// any in-progress election); a node that already has one goes straight
// operational.
func (f *FSM) OnGatewayAnnounce(senderID protocol.LogicalID, senderMAC protocol.MAC) Action {
	if f.state != StateListenForGateway && f.state != StateGatewayElectionDelay {
		return ActionNone
	}
	f.gatewayID = senderID
	f.gatewayMAC = senderMAC
	f.hasContentionDelay = false

	if f.localID == protocol.UnassignedID {
		f.transition(StateRequestNodeID)
		return ActionSendNodeIDRequest
	}

	f.role = protocol.RoleNode
	f.transition(StateOperationalNode)
	return ActionBecomeOperationalNode
}

// OnNodeIDAssign completes a pending id request addressed to targetMAC. It
// reports ok==false if myMAC doesn't match, meaning the assignment was for
// some other device sharing the broadcast medium.
func (f *FSM) OnNodeIDAssign(assignedID protocol.LogicalID, targetMAC, myMAC protocol.MAC) (Action, bool) {
	if f.state != StateRequestNodeID || targetMAC != myMAC {
		return ActionNone, false
	}
	f.localID = assignedID
	f.role = protocol.RoleNode
	f.transition(StateOperationalNode)
	return ActionBecomeOperationalNode, true
}

// UpdateGatewayMAC refreshes the stored gateway MAC while already
// operational as a node of senderID, the silent-roaming behaviour spec
// §4.6/§9 calls out as preserved-but-flagged: a gateway reachable at a new
// MAC under the same logical id is accepted without re-election. It
// reports whether the update applied.
func (f *FSM) UpdateGatewayMAC(senderID protocol.LogicalID, senderMAC protocol.MAC) bool {
	if f.state != StateOperationalNode || senderID != f.gatewayID {
		return false
	}
	f.gatewayMAC = senderMAC
	return true
}

// OnGatewayLost returns the node to listening after the liveness monitor
// declares the current gateway unreachable.
func (f *FSM) OnGatewayLost() Action {
	if f.state != StateOperationalNode {
		return ActionNone
	}
	f.gatewayID = protocol.UnassignedID
	f.gatewayMAC = protocol.MAC{}
	f.transition(StateListenForGateway)
	return ActionGatewayUnreachable
}

// Fail forces the FSM into StateError, the terminal state a hard runtime
// failure (transport failing to start while the FSM is already running,
// spec §4.7) moves it to. There is no transition out of StateError; the
// host must End and Begin again.
func (f *FSM) Fail() Action {
	f.role = protocol.RoleError
	f.transition(StateError)
	return ActionError
}
