package coordinator

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rkotov-iot/meshlink/clock"
	"github.com/rkotov-iot/meshlink/persist"
	"github.com/rkotov-iot/meshlink/protocol"
	"github.com/rkotov-iot/meshlink/radio"
	"github.com/rkotov-iot/meshlink/radio/loopback"
	"github.com/rkotov-iot/meshlink/xrand"
)

func tickAll(clk *clock.Manual, d time.Duration, step time.Duration, coords ...*Coordinator) {
	elapsed := time.Duration(0)
	for elapsed <= d {
		for _, c := range coords {
			c.Update()
		}
		clk.Advance(step)
		elapsed += step
	}
}

// TestCoordinator_ColdElectionTwoDevices is seed scenario 1: device A
// draws the shorter contention delay and becomes gateway; device B hears
// A's announce first and becomes its node.
func TestCoordinator_ColdElectionTwoDevices(t *testing.T) {
	clk := clock.NewManual(0)
	ether := loopback.NewEther()

	a := New(ether.NewAdapter(protocol.MAC{1, 1, 1, 1, 1, 1}),
		WithClock(clk),
		WithRandSource(xrand.Fixed{Value: 200}),
		WithDiscoveryTimeout(50*time.Millisecond),
		WithContentionWindow(1000*time.Millisecond),
	)
	b := New(ether.NewAdapter(protocol.MAC{2, 2, 2, 2, 2, 2}),
		WithClock(clk),
		WithRandSource(xrand.Fixed{Value: 800}),
		WithDiscoveryTimeout(50*time.Millisecond),
		WithContentionWindow(1000*time.Millisecond),
	)

	require.NoError(t, a.Begin("greenhouse", 6))
	require.NoError(t, b.Begin("greenhouse", 6))

	tickAll(clk, 1200*time.Millisecond, 10*time.Millisecond, a, b)

	require.Equal(t, protocol.RoleGateway, a.Role())
	require.Equal(t, protocol.DefaultGatewayID, a.LocalID())
	require.Equal(t, protocol.RoleNode, b.Role())
	require.True(t, b.IsGatewayConnected())
}

// TestCoordinator_GatewayReboot is seed scenario 2: a gateway resumes
// operational from a matching persisted record with no election.
func TestCoordinator_GatewayReboot(t *testing.T) {
	clk := clock.NewManual(0)
	ether := loopback.NewEther()
	store := persist.NewMemoryStore()
	mac := protocol.MAC{5, 5, 5, 5, 5, 5}

	require.NoError(t, store.Save(persist.Record{
		NetworkName: "greenhouse",
		Role:        protocol.RoleGateway,
		MyLogicalID: protocol.DefaultGatewayID,
		Channel:     6,
	}))

	c := New(ether.NewAdapter(mac), WithClock(clk), WithStore(store))
	require.NoError(t, c.Begin("greenhouse", 6))

	require.Equal(t, protocol.RoleGateway, c.Role())
	require.Equal(t, protocol.DefaultGatewayID, c.LocalID())
	require.Equal(t, 0, tableCount(c))
}

func tableCount(c *Coordinator) int {
	if c.table == nil {
		return 0
	}
	return c.table.Count()
}

// TestCoordinator_NodeDisconnectsOnPingFailure is seed scenario 3: a node
// whose gateway goes silent declares disconnection once its ping budget
// is spent.
func TestCoordinator_NodeDisconnectsOnPingFailure(t *testing.T) {
	clk := clock.NewManual(0)
	store := persist.NewMemoryStore()
	require.NoError(t, store.Save(persist.Record{
		NetworkName: "greenhouse",
		Role:        protocol.RoleNode,
		MyLogicalID: protocol.LogicalID(5),
		Channel:     6,
		GatewayID:   protocol.DefaultGatewayID,
		GatewayMAC:  protocol.MAC{9, 9, 9, 9, 9, 9},
	}))

	ether := loopback.NewEther()
	node := New(ether.NewAdapter(protocol.MAC{1, 2, 3, 4, 5, 6}),
		WithClock(clk),
		WithStore(store),
		WithNodePingInterval(1000*time.Millisecond),
		WithNodeMaxPingAttempts(3),
	)
	require.NoError(t, node.Begin("greenhouse", 6))
	require.True(t, node.IsGatewayConnected())

	var disconnected bool
	node.SetGatewayStatusCallback(func(connected bool) {
		if !connected {
			disconnected = true
		}
	})

	// Gateway never answers; the node gives up once either the liveness
	// scheduler's own ping budget is spent or the transport's
	// ConnectionLost short-circuits it first (spec §4.7/§8 scenario 3).
	for i := 0; i < 5; i++ {
		node.Update()
		clk.Advance(1000 * time.Millisecond)
	}

	require.True(t, disconnected)
	require.False(t, node.IsGatewayConnected())
}

// TestCoordinator_DuplicateIDRequestIsIdempotent is seed scenario 4.
func TestCoordinator_DuplicateIDRequestIsIdempotent(t *testing.T) {
	clk := clock.NewManual(0)
	ether := loopback.NewEther()

	gw := New(ether.NewAdapter(protocol.MAC{1, 1, 1, 1, 1, 1}), WithClock(clk),
		WithGatewayAnnounceInterval(protocol.MinGatewayAnnounceInterval))
	gw.ForceRoleGateway(protocol.DefaultGatewayID)
	require.NoError(t, gw.Begin("greenhouse", 6))

	nodeMAC := protocol.MAC{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0x01}
	var assigned []protocol.LogicalID

	// Drive two independent node coordinators sharing the same MAC, the
	// way a power-cycled node re-requesting its id would look from the
	// gateway's side. Each node starts after the gateway's entry announce,
	// so each drive loop spans one periodic announce interval.
	node1 := New(ether.NewAdapter(nodeMAC), WithClock(clk))
	require.NoError(t, node1.Begin("greenhouse", 6))
	tickAll(clk, 2100*time.Millisecond, 10*time.Millisecond, gw, node1)
	require.True(t, node1.IsGatewayConnected())
	assigned = append(assigned, node1.LocalID())

	node2 := New(ether.NewAdapter(nodeMAC), WithClock(clk))
	require.NoError(t, node2.Begin("greenhouse", 6))
	tickAll(clk, 2100*time.Millisecond, 10*time.Millisecond, gw, node2)
	assigned = append(assigned, node2.LocalID())

	require.Equal(t, assigned[0], assigned[1])
	require.Equal(t, 1, tableCount(gw))
}

// TestCoordinator_InvalidTagPassthrough is seed scenario 6.
func TestCoordinator_InvalidTagPassthrough(t *testing.T) {
	clk := clock.NewManual(0)
	ether := loopback.NewEther()

	gw := New(ether.NewAdapter(protocol.MAC{1, 1, 1, 1, 1, 1}), WithClock(clk),
		WithGatewayAnnounceInterval(protocol.MinGatewayAnnounceInterval))
	gw.ForceRoleGateway(protocol.DefaultGatewayID)
	require.NoError(t, gw.Begin("greenhouse", 6))

	// The node starts after the gateway's entry announce and joins on the
	// next periodic one.
	node := New(ether.NewAdapter(protocol.MAC{2, 2, 2, 2, 2, 2}), WithClock(clk))
	require.NoError(t, node.Begin("greenhouse", 6))
	tickAll(clk, 2100*time.Millisecond, 10*time.Millisecond, gw, node)
	require.True(t, node.IsGatewayConnected())

	var gotSender protocol.LogicalID
	var gotPayload []byte
	gw.SetReceiveCallback(func(senderID protocol.LogicalID, payload []byte) {
		gotSender = senderID
		gotPayload = payload
	})

	res, err := node.SendToGateway([]byte{0x10, 'h', 'i'})
	require.NoError(t, err)
	require.Equal(t, ResultQueued, res)

	tickAll(clk, 100*time.Millisecond, 10*time.Millisecond, gw, node)

	require.Equal(t, node.LocalID(), gotSender)
	require.Equal(t, []byte{0x10, 'h', 'i'}, gotPayload)
}

// failingAdapter wraps a radio.Adapter and fails AddPeer once armed, to
// exercise the radio-init/transport-start failure paths spec §4.7
// describes without needing real hardware.
type failingAdapter struct {
	radio.Adapter
	failAddPeer bool
}

func (f *failingAdapter) AddPeer(mac protocol.MAC, channel uint8, encrypted bool) error {
	if f.failAddPeer {
		return errors.New("radio: simulated init failure")
	}
	return f.Adapter.AddPeer(mac, channel, encrypted)
}

// Drain forwards to the wrapped adapter if it implements radio.Drainer,
// keeping failingAdapter transparent to transport.Update's Drainer check.
func (f *failingAdapter) Drain() {
	if d, ok := f.Adapter.(radio.Drainer); ok {
		d.Drain()
	}
}

// TestCoordinator_BeginFailsOnRadioInitFailure covers spec §4.7 "radio
// init failure at begin(): begin() returns failure; subsequent update()
// is a no-op" for the forced-gateway startup path.
func TestCoordinator_BeginFailsOnRadioInitFailure(t *testing.T) {
	clk := clock.NewManual(0)
	ether := loopback.NewEther()
	adapter := &failingAdapter{Adapter: ether.NewAdapter(protocol.MAC{1, 1, 1, 1, 1, 1}), failAddPeer: true}

	c := New(adapter, WithClock(clk))
	c.ForceRoleGateway(protocol.DefaultGatewayID)

	err := c.Begin("greenhouse", 6)
	require.Error(t, err)
	require.ErrorIs(t, err, protocol.ErrRadioInitFailed)
	require.False(t, c.IsNetworkActive())

	c.Update() // must be a no-op; nothing should panic or change state
	require.False(t, c.IsNetworkActive())
}

// TestCoordinator_TransportStartFailureHaltsRunningCoordinator covers
// spec §4.7 "transport fails to start during FSM: transition to Error
// and halt", for an election that completes after Begin has already
// returned successfully.
func TestCoordinator_TransportStartFailureHaltsRunningCoordinator(t *testing.T) {
	clk := clock.NewManual(0)
	ether := loopback.NewEther()
	adapter := &failingAdapter{Adapter: ether.NewAdapter(protocol.MAC{3, 3, 3, 3, 3, 3})}

	c := New(adapter,
		WithClock(clk),
		WithRandSource(xrand.Fixed{Value: 10}),
		WithDiscoveryTimeout(50*time.Millisecond),
		WithContentionWindow(100*time.Millisecond),
	)
	require.NoError(t, c.Begin("greenhouse", 6))
	require.True(t, c.IsNetworkActive())

	// Let the device run its election undisturbed (no gateway announce
	// ever arrives), then arm the failure right as it is about to
	// register itself as gateway.
	elapsed := time.Duration(0)
	for elapsed <= 200*time.Millisecond {
		if c.Role() == protocol.RoleDiscovering {
			adapter.failAddPeer = true
		}
		c.Update()
		clk.Advance(10 * time.Millisecond)
		elapsed += 10 * time.Millisecond
	}

	require.False(t, c.IsNetworkActive())

	// Once halted, further ticks change nothing further.
	roleBefore := c.Role()
	c.Update()
	require.Equal(t, roleBefore, c.Role())
	require.False(t, c.IsNetworkActive())
}
