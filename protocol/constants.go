package protocol

import "time"

// Network/protocol constants, platform independent. Defaults mirror the
// original firmware's NVS-tunable values so a fresh device behaves like a
// freshly flashed one.
const (
	MaxNetworkNameLen = 32
	PMKLen            = 16
	MaxPayloadSize    = 200

	MinChannel     = 1
	MaxChannel     = 13
	DefaultChannel = 1

	MaxNodesPerGateway = 30
)

// Control message tags (spec §4.3). The tag space 0xD1..0xD6 is reserved;
// any other first byte is passed through unchanged to the host.
const (
	TagGatewayAnnounce byte = 0xD1
	TagNodeIDRequest   byte = 0xD2
	TagNodeIDAssign    byte = 0xD3
	TagNodeIDAck       byte = 0xD4
	TagNodePing        byte = 0xD5
	TagGatewayPong     byte = 0xD6
)

// Default tunables (spec §6, matching original_source defaults).
const (
	DefaultDiscoveryTimeout        = 5000 * time.Millisecond
	DefaultContentionWindow        = 1500 * time.Millisecond
	DefaultGatewayAnnounceInterval = 10000 * time.Millisecond
	DefaultNodePingInterval        = 30000 * time.Millisecond
	DefaultNodeMaxPingAttempts     = 3

	MinContentionWindow        = 100 * time.Millisecond
	MinGatewayAnnounceInterval = 2000 * time.Millisecond
	MinNodePingInterval        = 1000 * time.Millisecond
	MinNodeMaxPingAttempts     = 1

	NodeIDRequestTimeout = 5000 * time.Millisecond

	// NodeCleanupInterval and NodeInactivityThreshold are derived from the
	// ping interval/attempts the way operateAsGateway/cleanupInactiveNodes
	// does in the original, not fixed constants; see membership.DeriveIntervals.
)
