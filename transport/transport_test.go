package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rkotov-iot/meshlink/clock"
	"github.com/rkotov-iot/meshlink/protocol"
	"github.com/rkotov-iot/meshlink/radio/loopback"
)

var testBusID = protocol.DeriveBusID("greenhouse")

func newPair(t *testing.T) (*Transport, *Transport, *clock.Manual) {
	t.Helper()
	ether := loopback.NewEther()
	clk := clock.NewManual(0)

	macA := protocol.MAC{1, 1, 1, 1, 1, 1}
	macB := protocol.MAC{2, 2, 2, 2, 2, 2}

	adapterA := ether.NewAdapter(macA)
	adapterB := ether.NewAdapter(macB)

	tA := New(adapterA, clk)
	tB := New(adapterB, clk)

	tA.SetPeerMAC(protocol.LogicalID(2), macB)
	tB.SetPeerMAC(protocol.LogicalID(1), macA)

	return tA, tB, clk
}

func TestTransport_SendAndAck(t *testing.T) {
	tA, tB, clk := newPair(t)

	var received []byte
	var recvTag byte
	tB.Configure(testBusID, protocol.LogicalID(2),
		func(tag byte, payload []byte, senderID protocol.LogicalID, senderMAC protocol.MAC) {
			recvTag = tag
			received = payload
			require.Equal(t, protocol.LogicalID(1), senderID)
		}, nil, nil)

	var acked protocol.LogicalID
	var ackedTag byte
	tA.Configure(testBusID, protocol.LogicalID(1), nil,
		func(dest protocol.LogicalID, tag byte) {
			acked = dest
			ackedTag = tag
		}, nil)

	result := tA.Send(protocol.LogicalID(2), protocol.TagNodePing, nil)
	require.Equal(t, ResultQueued, result)

	// B drains and processes inbound, auto-acking.
	tB.Update()
	require.Equal(t, protocol.TagNodePing, recvTag)
	require.Empty(t, received)

	// A drains and should see the ack.
	tA.Update()
	require.Equal(t, protocol.LogicalID(2), acked)
	require.Equal(t, protocol.TagNodePing, ackedTag)

	_ = clk
}

func TestTransport_BroadcastNotAcked(t *testing.T) {
	tA, tB, _ := newPair(t)

	var gotAnnounce bool
	tB.Configure(testBusID, protocol.LogicalID(2),
		func(tag byte, payload []byte, senderID protocol.LogicalID, senderMAC protocol.MAC) {
			if tag == protocol.TagGatewayAnnounce {
				gotAnnounce = true
			}
		}, nil, nil)

	ackCalled := false
	tA.Configure(testBusID, protocol.LogicalID(1), nil,
		func(dest protocol.LogicalID, tag byte) { ackCalled = true }, nil)

	result := tA.Send(protocol.BroadcastID, protocol.TagGatewayAnnounce, nil)
	require.Equal(t, ResultQueued, result)

	tB.Update()
	require.True(t, gotAnnounce)

	tA.Update()
	require.False(t, ackCalled, "broadcasts are never tracked for ack")
}

func TestTransport_RetriesThenReportsConnectionLost(t *testing.T) {
	tA, _, clk := newPair(t)
	// B never drains, so no ack ever arrives.

	var lostDest protocol.LogicalID
	var lostErr error
	tA.Configure(testBusID, protocol.LogicalID(1), nil, nil,
		func(err error, dest protocol.LogicalID) {
			lostErr = err
			lostDest = dest
		})
	tA.SetRetryPolicy(2, 50*time.Millisecond)

	result := tA.Send(protocol.LogicalID(2), protocol.TagNodePing, nil)
	require.Equal(t, ResultQueued, result)

	clk.Advance(60 * time.Millisecond)
	tA.Update() // retry 1

	clk.Advance(60 * time.Millisecond)
	tA.Update() // exhausts retries

	require.ErrorIs(t, lostErr, protocol.ErrConnectionLost)
	require.Equal(t, protocol.LogicalID(2), lostDest)
}

func TestTransport_SendToUnknownDestFails(t *testing.T) {
	tA, _, _ := newPair(t)
	tA.Configure(testBusID, protocol.LogicalID(1), nil, nil, nil)

	result := tA.Send(protocol.LogicalID(99), protocol.TagNodePing, nil)
	require.Equal(t, ResultFail, result)
}
