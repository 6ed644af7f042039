package liveness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScheduler_PingsImmediatelyOnStart(t *testing.T) {
	s := NewScheduler(1000*time.Millisecond, 3)
	s.Start(5000)
	require.Equal(t, OutcomeSendPing, s.Update(5000))
}

func TestScheduler_StartDelayedWaitsAFullInterval(t *testing.T) {
	s := NewScheduler(1000*time.Millisecond, 3)
	s.StartDelayed(5000)
	require.Equal(t, OutcomeNone, s.Update(5000))
	require.Equal(t, OutcomeNone, s.Update(5999))
	require.Equal(t, OutcomeSendPing, s.Update(6000))
}

func TestScheduler_StartDelayedMatchesScenario3Timing(t *testing.T) {
	s := NewScheduler(1000*time.Millisecond, 3)
	s.StartDelayed(0)

	require.Equal(t, OutcomeNone, s.Update(0))
	require.Equal(t, OutcomeSendPing, s.Update(1000))  // ping #1
	require.Equal(t, OutcomeSendPing, s.Update(2000))  // ping #2
	require.Equal(t, OutcomeSendPing, s.Update(3000))  // ping #3
	require.Equal(t, OutcomeDisconnected, s.Update(4000))
}

func TestScheduler_NoOutcomeBeforeIntervalElapses(t *testing.T) {
	s := NewScheduler(1000*time.Millisecond, 3)
	s.Start(0)
	require.Equal(t, OutcomeSendPing, s.Update(0))
	require.Equal(t, OutcomeNone, s.Update(500))
}

func TestScheduler_PongResetsFailureCount(t *testing.T) {
	s := NewScheduler(1000*time.Millisecond, 2)
	s.Start(0)
	require.Equal(t, OutcomeSendPing, s.Update(0))
	require.Equal(t, OutcomeSendPing, s.Update(1000))

	s.OnPong(1000)
	require.Equal(t, OutcomeNone, s.Update(1500))
	require.Equal(t, OutcomeSendPing, s.Update(2000))
}

func TestScheduler_DisconnectsAfterMaxAttempts(t *testing.T) {
	s := NewScheduler(1000*time.Millisecond, 2)
	s.Start(0)

	require.Equal(t, OutcomeSendPing, s.Update(0))    // attempt 1
	require.Equal(t, OutcomeSendPing, s.Update(1000)) // attempt 2
	require.Equal(t, OutcomeDisconnected, s.Update(2000))

	// Once disarmed, further ticks report nothing.
	require.Equal(t, OutcomeNone, s.Update(10000))
}

func TestScheduler_StopDisarms(t *testing.T) {
	s := NewScheduler(1000*time.Millisecond, 3)
	s.Start(0)
	s.Stop()
	require.Equal(t, OutcomeNone, s.Update(0))
}
