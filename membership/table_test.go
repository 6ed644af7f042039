package membership

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rkotov-iot/meshlink/protocol"
)

func TestTable_HandleIDRequest_AssignsSequentialIDs(t *testing.T) {
	table := NewTable(protocol.DefaultGatewayID)

	mac1 := protocol.MAC{1, 1, 1, 1, 1, 1}
	mac2 := protocol.MAC{2, 2, 2, 2, 2, 2}

	id1, err := table.HandleIDRequest(mac1, 1000)
	require.NoError(t, err)
	require.Equal(t, protocol.LogicalID(2), id1)

	id2, err := table.HandleIDRequest(mac2, 1001)
	require.NoError(t, err)
	require.Equal(t, protocol.LogicalID(3), id2)
	require.Equal(t, 2, table.Count())
}

func TestTable_HandleIDRequest_IdempotentByMAC(t *testing.T) {
	table := NewTable(protocol.DefaultGatewayID)
	mac := protocol.MAC{1, 1, 1, 1, 1, 1}

	id1, err := table.HandleIDRequest(mac, 1000)
	require.NoError(t, err)

	id2, err := table.HandleIDRequest(mac, 5000)
	require.NoError(t, err)
	require.Equal(t, id1, id2, "re-request from a known MAC must re-send the same id")
	require.Equal(t, 1, table.Count())

	rec, ok := table.FindByID(id1)
	require.True(t, ok)
	require.Equal(t, int64(5000), rec.LastSeenMillis)
}

func TestTable_HandleIDRequest_SkipsReservedIDs(t *testing.T) {
	table := NewTable(protocol.DefaultGatewayID)

	mac := protocol.MAC{9, 9, 9, 9, 9, 9}
	id, err := table.HandleIDRequest(mac, 0)
	require.NoError(t, err)
	require.NotEqual(t, protocol.DefaultGatewayID, id)
	require.NotEqual(t, protocol.UnassignedID, id)
	require.NotEqual(t, protocol.BroadcastID, id)
	require.True(t, id >= protocol.MinNodeID && id <= protocol.MaxNodeID)
}

func TestTable_HandleIDRequest_TableFull(t *testing.T) {
	table := NewTable(protocol.DefaultGatewayID)
	for i := 0; i < protocol.MaxNodesPerGateway; i++ {
		mac := protocol.MAC{byte(i), byte(i), byte(i), byte(i), byte(i), byte(i)}
		_, err := table.HandleIDRequest(mac, 0)
		require.NoError(t, err)
	}

	_, err := table.HandleIDRequest(protocol.MAC{99, 99, 99, 99, 99, 99}, 0)
	require.ErrorIs(t, err, protocol.ErrPeerTableFull)
}

func TestTable_StatusCallbackFiresOnAssignAndTimeout(t *testing.T) {
	table := NewTable(protocol.DefaultGatewayID)

	type event struct {
		id        protocol.LogicalID
		connected bool
		reason    string
	}
	var events []event
	table.SetStatusCallback(func(id protocol.LogicalID, connected bool, reason string) {
		events = append(events, event{id, connected, reason})
	})

	mac := protocol.MAC{1, 1, 1, 1, 1, 1}
	id, err := table.HandleIDRequest(mac, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.True(t, events[0].connected)
	require.Equal(t, "id_assign", events[0].reason)

	removed := table.Sweep(100000, 5000)
	require.Len(t, removed, 1)
	require.Equal(t, id, removed[0].ID)
	require.Len(t, events, 2)
	require.False(t, events[1].connected)
	require.Equal(t, "timeout", events[1].reason)
	require.Equal(t, 0, table.Count())
}

func TestTable_AckPendingClearsFlagOnce(t *testing.T) {
	table := NewTable(protocol.DefaultGatewayID)
	mac := protocol.MAC{1, 1, 1, 1, 1, 1}
	id, err := table.HandleIDRequest(mac, 0)
	require.NoError(t, err)

	rec, ok := table.FindByID(id)
	require.True(t, ok)
	require.True(t, rec.PendingAck)

	require.True(t, table.AckPending(id))
	rec, ok = table.FindByID(id)
	require.True(t, ok)
	require.False(t, rec.PendingAck)

	require.False(t, table.AckPending(protocol.LogicalID(250)))
}

func TestTable_SweepKeepsRecentlySeenNodes(t *testing.T) {
	table := NewTable(protocol.DefaultGatewayID)
	mac := protocol.MAC{1, 1, 1, 1, 1, 1}
	id, err := table.HandleIDRequest(mac, 1000)
	require.NoError(t, err)

	table.Touch(id, 9000)
	removed := table.Sweep(10000, 5000)
	require.Empty(t, removed)
	require.Equal(t, 1, table.Count())
}

func TestDeriveIntervals(t *testing.T) {
	cleanup, inactivity := DeriveIntervals(30*time.Second, 3)
	require.Equal(t, 150*time.Second+10*time.Second, cleanup)
	require.Equal(t, 120*time.Second, inactivity)
}
