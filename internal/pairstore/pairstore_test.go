package pairstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gomux/remotexpc/internal/muxclient"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_PutGet_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	record := &muxclient.PairRecord{
		HostID:          "host-1",
		SystemBUID:      "buid-1",
		HostCertificate: []byte("cert"),
		HostPrivateKey:  []byte("key"),
	}
	require.NoError(t, s.Put(ctx, "udid-1", record))

	got, err := s.Get(ctx, "udid-1")
	require.NoError(t, err)
	require.Equal(t, record.HostID, got.HostID)
	require.Equal(t, record.SystemBUID, got.SystemBUID)
	require.Equal(t, record.HostCertificate, got.HostCertificate)
}

func TestStore_Get_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "udid-1", &muxclient.PairRecord{HostID: "h"}))
	require.NoError(t, s.Delete(ctx, "udid-1"))

	_, err := s.Get(ctx, "udid-1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_List(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "udid-a", &muxclient.PairRecord{HostID: "a"}))
	require.NoError(t, s.Put(ctx, "udid-b", &muxclient.PairRecord{HostID: "b"}))

	udids, err := s.List(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"udid-a", "udid-b"}, udids)
}
