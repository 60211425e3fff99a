package wsstore

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bloops-games/partyroom/internal/syncstore"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*syncstore.Hub, string) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := syncstore.NewHub()
	srv, err := NewServer(hub, &Config{
		RequestRate:       1000,
		RequestBurst:      1000,
		ReadLimit:         1 << 16,
		PingPeriod:        time.Second,
		PongWait:          5 * time.Second,
		SnapshotCacheSize: 16,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handle(ctx))
	t.Cleanup(ts.Close)

	return hub, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url string) *Client {
	t.Helper()

	c, err := Dial(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return c
}

func TestClientReadWrite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, url := newTestServer(t)
	c := dial(t, url)

	require.NoError(t, c.Set(ctx, "rooms/ABCD", map[string]interface{}{
		"roomCode": "ABCD",
		"timer":    30,
	}))

	snap, err := c.Get(ctx, "rooms/ABCD")
	require.NoError(t, err)
	require.True(t, snap.Exists)
	require.Equal(t, "ABCD", snap.Value.(map[string]interface{})["roomCode"])
	require.Equal(t, float64(30), snap.Value.(map[string]interface{})["timer"])

	require.NoError(t, c.Commit(ctx, "rooms/ABCD", snap.Version, map[string]interface{}{"timer": 29}))
	err = c.Commit(ctx, "rooms/ABCD", snap.Version, map[string]interface{}{"timer": 28})
	require.ErrorIs(t, err, syncstore.ErrConflict)

	require.ErrorIs(t, c.Set(ctx, "rooms/A$B", 1), syncstore.ErrBadPath)

	require.NoError(t, c.Delete(ctx, "rooms/ABCD"))
	snap, err = c.Get(ctx, "rooms/ABCD")
	require.NoError(t, err)
	require.False(t, snap.Exists)
}

func TestClientSubscribe(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, url := newTestServer(t)
	reader, writer := dial(t, url), dial(t, url)

	snaps := make(chan syncstore.Snapshot, 16)
	unsubscribe, err := reader.Subscribe(ctx, "rooms/ABCD/timer", func(s syncstore.Snapshot) {
		snaps <- s
	})
	require.NoError(t, err)
	defer unsubscribe()

	next := func() syncstore.Snapshot {
		select {
		case s := <-snaps:
			return s
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for snapshot")
		}
		return syncstore.Snapshot{}
	}

	require.False(t, next().Exists)

	require.NoError(t, writer.Set(ctx, "rooms/ABCD/timer", 5))
	require.NoError(t, writer.Set(ctx, "rooms/ABCD/timer", 4))

	require.Equal(t, float64(5), next().Value)
	require.Equal(t, float64(4), next().Value)
}

func TestClientCloseRunsDisconnect(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	hub, url := newTestServer(t)
	player, observer := dial(t, url), dial(t, url)

	require.NoError(t, player.Set(ctx, "rooms/ABCD/players/player_1/id", "player_1"))
	require.NoError(t, player.OnDisconnect(ctx, "rooms/ABCD/players/player_1"))
	require.NoError(t, player.Close())

	require.Eventually(t, func() bool {
		snap, err := observer.Get(ctx, "rooms/ABCD/players/player_1")
		return err == nil && !snap.Exists
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return hub.SessionsLen() == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, err := player.Get(ctx, "rooms/ABCD")
	require.ErrorIs(t, err, syncstore.ErrClosed)
}
