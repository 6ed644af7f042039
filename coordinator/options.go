package coordinator

import (
	"time"

	"go.uber.org/zap"

	"github.com/rkotov-iot/meshlink/clock"
	"github.com/rkotov-iot/meshlink/internal/telemetry"
	"github.com/rkotov-iot/meshlink/persist"
	"github.com/rkotov-iot/meshlink/protocol"
	"github.com/rkotov-iot/meshlink/xrand"
)

// Option configures a Coordinator at construction time, the way the
// teacher's build-tag-split constructors wire in a fixed driver — here
// each collaborator is swappable independently instead.
type Option func(*Coordinator)

// WithClock overrides the monotonic clock (default clock.System{}).
func WithClock(clk clock.Source) Option {
	return func(c *Coordinator) { c.clk = clk }
}

// WithRandSource overrides the contention-delay random source (default
// xrand.System{}).
func WithRandSource(rng xrand.Source) Option {
	return func(c *Coordinator) { c.rng = rng }
}

// WithStore overrides the persistence backend (default an in-memory
// store, discarded across process restarts).
func WithStore(store persist.Store) Option {
	return func(c *Coordinator) { c.store = store }
}

// WithLogger installs a structured logger; the default is a no-op logger
// so library consumers opt in explicitly.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Coordinator) {
		if log != nil {
			c.log = log
		}
	}
}

// WithMetrics attaches a telemetry.Metrics instance this Coordinator
// reports elections, node id assignment, disconnects and table
// occupancy into. Omit it and the Coordinator runs uninstrumented.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithGatewayIDHint sets the logical id a device adopts when ForceRoleGateway
// is called with protocol.UnassignedID (default protocol.DefaultGatewayID).
// It is not applied to a device that wins an election: that device always
// takes protocol.DefaultGatewayID.
func WithGatewayIDHint(id protocol.LogicalID) Option {
	return func(c *Coordinator) { c.gatewayHint = id }
}

// WithDiscoveryTimeout overrides how long ListenForGateway waits before
// entering contention (default protocol.DefaultDiscoveryTimeout).
func WithDiscoveryTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.cfg.DiscoveryTimeout = d }
}

// WithContentionWindow overrides the gateway-election random delay window,
// clamped to protocol.MinContentionWindow.
func WithContentionWindow(d time.Duration) Option {
	return func(c *Coordinator) {
		if d < protocol.MinContentionWindow {
			d = protocol.MinContentionWindow
		}
		c.cfg.ContentionWindow = d
	}
}

// WithGatewayAnnounceInterval overrides how often an operational gateway
// broadcasts GatewayAnnounce, clamped to protocol.MinGatewayAnnounceInterval.
func WithGatewayAnnounceInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		if d < protocol.MinGatewayAnnounceInterval {
			d = protocol.MinGatewayAnnounceInterval
		}
		c.announceInterval = d
	}
}

// WithNodePingInterval overrides how often an operational node pings its
// gateway, clamped to protocol.MinNodePingInterval.
func WithNodePingInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		if d < protocol.MinNodePingInterval {
			d = protocol.MinNodePingInterval
		}
		c.pingInterval = d
	}
}

// WithNodeMaxPingAttempts overrides how many missed pings a node tolerates
// before declaring its gateway unreachable, clamped to
// protocol.MinNodeMaxPingAttempts.
func WithNodeMaxPingAttempts(n int) Option {
	return func(c *Coordinator) {
		if n < protocol.MinNodeMaxPingAttempts {
			n = protocol.MinNodeMaxPingAttempts
		}
		c.maxPingAttempts = n
	}
}

// WithNodeIDRequestTimeout overrides how long a node waits for NodeIDAssign
// after sending NodeIDRequest before giving up and returning to listening.
func WithNodeIDRequestTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.cfg.NodeIDRequestTTL = d }
}
