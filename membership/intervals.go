package membership

import "time"

// DeriveIntervals computes the gateway-side cleanup sweep period and the
// per-node inactivity threshold from the node ping interval and max ping
// attempts, exactly as the original firmware derives
// NODE_CLEANUP_INTERVAL_MS/NODE_INACTIVITY_THRESHOLD_MS from
// DEFAULT_NODE_PING_INTERVAL_MS/DEFAULT_NODE_MAX_PING_ATTEMPTS at compile
// time. Deriving them at runtime instead means a gateway that changes its
// ping tunables before starting still gets a consistent sweep schedule.
func DeriveIntervals(pingInterval time.Duration, maxPingAttempts int) (cleanupInterval, inactivityThreshold time.Duration) {
	inactivityThreshold = pingInterval * time.Duration(maxPingAttempts+1)
	cleanupInterval = pingInterval*time.Duration(maxPingAttempts+2) + 10*time.Second
	return cleanupInterval, inactivityThreshold
}
