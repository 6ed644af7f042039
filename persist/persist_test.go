package persist

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rkotov-iot/meshlink/protocol"
)

func sampleRecord() Record {
	rec := Record{
		NetworkName: "greenhouse",
		Role:        protocol.RoleGateway,
		MyLogicalID: protocol.DefaultGatewayID,
		Channel:     6,
		GatewayID:   protocol.UnassignedID,
	}
	rec.BusID = protocol.DeriveBusID(rec.NetworkName)
	return rec
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	store := NewMemoryStore()

	_, ok, err := store.Load()
	require.NoError(t, err)
	require.False(t, ok)

	want := sampleRecord()
	require.NoError(t, store.Save(want))

	got, ok, err := store.Load()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, want, got)

	require.NoError(t, store.Clear())
	_, ok, err = store.Load()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mesh.yaml")
	store := NewFileStore(path)

	_, ok, err := store.Load()
	require.NoError(t, err)
	require.False(t, ok)

	want := sampleRecord()
	require.NoError(t, store.Save(want))

	got, ok, err := store.Load()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, want, got)

	require.True(t, got.MatchesStartup("greenhouse", 6))
	require.False(t, got.MatchesStartup("greenhouse", 7))
	require.False(t, got.MatchesStartup("other", 6))

	require.NoError(t, store.Clear())
	_, ok, err = store.Load()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFileStore_NodeRecordRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mesh.yaml")
	store := NewFileStore(path)

	want := Record{
		NetworkName: "greenhouse",
		Role:        protocol.RoleNode,
		MyLogicalID: protocol.LogicalID(5),
		Channel:     6,
		GatewayID:   protocol.DefaultGatewayID,
		GatewayMAC:  protocol.MAC{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0x01},
	}
	want.BusID = protocol.DeriveBusID(want.NetworkName)

	require.NoError(t, store.Save(want))
	got, ok, err := store.Load()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, want, got)
}

func TestFileStore_CorruptRoleInvalidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mesh.yaml")
	store := NewFileStore(path)

	require.NoError(t, store.Save(sampleRecord()))

	// Overwrite with a record carrying an unrecognised role byte.
	require.NoError(t, store.Save(Record{NetworkName: "x"}))
	_, ok, err := store.Load()
	require.NoError(t, err)
	require.False(t, ok)
}
