package protocol

// Role is the device's current position in the mesh. It mirrors the
// original firmware's flat enum, but higher layers keep the per-role
// payload (node linkage / membership table) out of this type — see
// discovery.State and coordinator.Coordinator for the "tagged variant"
// these fields actually live in.
type Role uint8

const (
	RoleUninitialized Role = iota
	RoleDiscovering
	RoleNode
	RoleGateway
	RoleError
)

func (r Role) String() string {
	switch r {
	case RoleUninitialized:
		return "uninitialized"
	case RoleDiscovering:
		return "discovering"
	case RoleNode:
		return "node"
	case RoleGateway:
		return "gateway"
	case RoleError:
		return "error"
	default:
		return "unknown"
	}
}

// PersistableByte returns the symbolic byte used to persist Role, chosen
// instead of the raw enum ordinal so a future firmware revision that
// reorders Role's constants doesn't silently misload old records (see
// spec Open Questions).
func (r Role) PersistableByte() byte {
	switch r {
	case RoleNode:
		return 'N'
	case RoleGateway:
		return 'G'
	default:
		return 0
	}
}

// RoleFromPersistedByte is the inverse of PersistableByte. ok is false for
// any byte that doesn't name a persistable role.
func RoleFromPersistedByte(b byte) (Role, bool) {
	switch b {
	case 'N':
		return RoleNode, true
	case 'G':
		return RoleGateway, true
	default:
		return RoleUninitialized, false
	}
}
