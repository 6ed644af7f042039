// Package liveness implements the node-side gateway liveness monitor
// (spec §4.5): a ping scheduled every interval, counted against a max
// attempt budget, declaring the gateway lost once the budget is spent
// without a pong. Grounded on the original's _next_gateway_ping_time /
// _failed_gateway_pings_count bookkeeping in its main update loop.
package liveness

import "time"

// Outcome is what Update asks the caller to do this tick.
type Outcome int

const (
	// OutcomeNone means nothing is due yet.
	OutcomeNone Outcome = iota
	// OutcomeSendPing means the caller should send a NodePing to the
	// gateway now; the attempt has already been counted against the
	// budget.
	OutcomeSendPing
	// OutcomeDisconnected means the attempt budget is spent with no pong;
	// the caller should tear down the gateway association and return to
	// listening.
	OutcomeDisconnected
)

// Scheduler tracks one node's ping-and-wait cycle against its current
// gateway. It holds no gateway identity itself; the caller is expected to
// Start a fresh Scheduler (or Stop the old one) whenever the gateway
// association changes.
type Scheduler struct {
	pingInterval   time.Duration
	maxAttempts    int
	failedAttempts int
	nextPingAt     int64
	armed          bool
}

// NewScheduler returns a Scheduler that is not yet armed; call Start once
// a gateway association is established.
func NewScheduler(pingInterval time.Duration, maxAttempts int) *Scheduler {
	return &Scheduler{pingInterval: pingInterval, maxAttempts: maxAttempts}
}

// Start arms the scheduler to fire OutcomeSendPing on the very next
// Update. This matches the original's persisted-resume path only
// (_next_gateway_ping_time = current_time on reboot into a saved node
// record): a freshly elected node must use StartDelayed instead.
func (s *Scheduler) Start(nowMillis int64) {
	s.failedAttempts = 0
	s.nextPingAt = nowMillis
	s.armed = true
}

// StartDelayed arms the scheduler with its first ping due a full
// pingInterval from now, matching the original's normal election path
// (_next_gateway_ping_time = millis() + _node_ping_gateway_interval_ms):
// a node entering OperationalNode via election pings for the first time
// one interval after becoming operational, not on the same tick.
func (s *Scheduler) StartDelayed(nowMillis int64) {
	s.failedAttempts = 0
	s.nextPingAt = nowMillis + s.pingInterval.Milliseconds()
	s.armed = true
}

// Stop disarms the scheduler; Update returns OutcomeNone until Start is
// called again.
func (s *Scheduler) Stop() {
	s.armed = false
}

// OnPong records a pong from the gateway: the failure count resets and the
// next ping is pushed a full interval out.
func (s *Scheduler) OnPong(nowMillis int64) {
	s.failedAttempts = 0
	s.nextPingAt = nowMillis + s.pingInterval.Milliseconds()
}

// Update advances the scheduler by one tick.
func (s *Scheduler) Update(nowMillis int64) Outcome {
	if !s.armed || nowMillis < s.nextPingAt {
		return OutcomeNone
	}
	if s.failedAttempts >= s.maxAttempts {
		s.armed = false
		return OutcomeDisconnected
	}
	s.failedAttempts++
	s.nextPingAt = nowMillis + s.pingInterval.Milliseconds()
	return OutcomeSendPing
}
