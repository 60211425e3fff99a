package membership

import (
	"context"
	"testing"
	"time"

	"github.com/bloops-games/partyroom/internal/room"
	"github.com/bloops-games/partyroom/internal/room/consensus"
	"github.com/bloops-games/partyroom/internal/room/elias"
	"github.com/bloops-games/partyroom/internal/syncstore"
	"github.com/stretchr/testify/require"
)

func createRoom(t *testing.T, store syncstore.Store, rules room.Rules, code string) {
	t.Helper()
	require.NoError(t, store.Set(context.Background(), room.Path(rules, code), rules.NewRoom(code, "en", time.Now())))
}

func players(t *testing.T, store syncstore.Store, rules room.Rules, code string) *room.Room {
	t.Helper()

	snap, err := store.Get(context.Background(), room.Path(rules, code))
	require.NoError(t, err)
	if !snap.Exists {
		return nil
	}
	state, err := rules.Decode(snap.Value)
	require.NoError(t, err)
	return state.Common()
}

func hosts(r *room.Room) []string {
	var out []string
	for _, p := range r.Ordered() {
		if p.IsHost {
			out = append(out, p.ID)
		}
	}
	return out
}

func TestJoinFirstIsHost(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	hub := syncstore.NewHub()
	rules := consensus.Rules{}
	admin := hub.Session()
	createRoom(t, admin, rules, "ABCD")

	now := time.Unix(100, 0)
	a, err := Join(ctx, hub.Session(), rules, "ABCD", "ann", now)
	require.NoError(t, err)
	require.True(t, a.IsHost)

	b, err := Join(ctx, hub.Session(), rules, "ABCD", "bob", now)
	require.NoError(t, err)
	require.False(t, b.IsHost)
	require.NotEqual(t, a.ID, b.ID)
	require.True(t, room.Less(a.ID, b.ID))

	r := players(t, admin, rules, "ABCD")
	require.Len(t, r.Players, 2)
	require.Equal(t, []string{a.ID}, hosts(r))
}

func TestJoinMissingRoom(t *testing.T) {
	t.Parallel()

	_, err := Join(context.Background(), syncstore.NewHub().Session(), consensus.Rules{}, "ZZZZ", "ann", time.Now())
	require.ErrorIs(t, err, room.ErrNotFound)
}

func TestJoinCapacity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	hub := syncstore.NewHub()
	rules := consensus.Rules{}
	admin := hub.Session()
	createRoom(t, admin, rules, "ABCD")

	now := time.Unix(100, 0)
	for i := 0; i < rules.MaxPlayers(); i++ {
		_, err := Join(ctx, hub.Session(), rules, "ABCD", "p", now.Add(time.Duration(i)))
		require.NoError(t, err)
	}

	_, err := Join(ctx, hub.Session(), rules, "ABCD", "late", now.Add(time.Hour))
	require.ErrorIs(t, err, room.ErrCapacity)
	require.Len(t, players(t, admin, rules, "ABCD").Players, rules.MaxPlayers())
}

func TestLeaveLastPlayerDeletesRoom(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	hub := syncstore.NewHub()
	rules := consensus.Rules{}
	admin := hub.Session()
	createRoom(t, admin, rules, "ABCD")

	s := hub.Session()
	a, err := Join(ctx, s, rules, "ABCD", "ann", time.Now())
	require.NoError(t, err)

	require.NoError(t, Leave(ctx, s, rules, "ABCD", a.ID))
	require.Nil(t, players(t, admin, rules, "ABCD"))

	require.ErrorIs(t, Leave(ctx, s, rules, "ABCD", a.ID), room.ErrNotFound)
}

func TestLeaveHostFailover(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	hub := syncstore.NewHub()
	rules := consensus.Rules{}
	admin := hub.Session()
	createRoom(t, admin, rules, "ABCD")

	now := time.Unix(100, 0)
	sa := hub.Session()
	a, err := Join(ctx, sa, rules, "ABCD", "a", now)
	require.NoError(t, err)
	b, err := Join(ctx, hub.Session(), rules, "ABCD", "b", now.Add(time.Second))
	require.NoError(t, err)
	_, err = Join(ctx, hub.Session(), rules, "ABCD", "c", now.Add(2*time.Second))
	require.NoError(t, err)

	require.NoError(t, Leave(ctx, sa, rules, "ABCD", a.ID))

	r := players(t, admin, rules, "ABCD")
	require.Len(t, r.Players, 2)
	require.Equal(t, []string{b.ID}, hosts(r))
}

func TestDisconnectRemovesPlayer(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	hub := syncstore.NewHub()
	rules := consensus.Rules{}
	admin := hub.Session()
	createRoom(t, admin, rules, "ABCD")

	sa := hub.Session()
	a, err := Join(ctx, sa, rules, "ABCD", "a", time.Unix(1, 0))
	require.NoError(t, err)
	_, err = Join(ctx, hub.Session(), rules, "ABCD", "b", time.Unix(2, 0))
	require.NoError(t, err)

	require.NoError(t, sa.Close())

	r := players(t, admin, rules, "ABCD")
	require.NotContains(t, r.Players, a.ID)
	require.Empty(t, hosts(r))

	patch, ok := Repair(r)
	require.True(t, ok)
	require.Len(t, patch, 1)
}

// busyStore loses every compare-and-set, as if the room never stopped changing.
type busyStore struct {
	*syncstore.Session
}

func (busyStore) Commit(context.Context, string, uint64, map[string]interface{}) error {
	return syncstore.ErrConflict
}

func TestLeaveKeepsDisconnectCleanupWhenStale(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	hub := syncstore.NewHub()
	rules := consensus.Rules{}
	admin := hub.Session()
	createRoom(t, admin, rules, "ABCD")

	sa := hub.Session()
	a, err := Join(ctx, sa, rules, "ABCD", "a", time.Unix(1, 0))
	require.NoError(t, err)
	_, err = Join(ctx, hub.Session(), rules, "ABCD", "b", time.Unix(2, 0))
	require.NoError(t, err)

	err = Leave(ctx, busyStore{sa}, rules, "ABCD", a.ID)
	require.ErrorIs(t, err, room.ErrStale)
	require.Contains(t, players(t, admin, rules, "ABCD").Players, a.ID)

	require.NoError(t, sa.Close())
	require.NotContains(t, players(t, admin, rules, "ABCD").Players, a.ID)
}

func TestLeaveDropsPair(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	hub := syncstore.NewHub()
	rules := elias.Rules{}
	admin := hub.Session()
	createRoom(t, admin, rules, "ABCD")

	sa := hub.Session()
	a, err := Join(ctx, sa, rules, "ABCD", "a", time.Unix(1, 0))
	require.NoError(t, err)
	b, err := Join(ctx, hub.Session(), rules, "ABCD", "b", time.Unix(2, 0))
	require.NoError(t, err)

	require.NoError(t, admin.Set(ctx, room.Path(rules, "ABCD")+"/pairs/pair_1", elias.Pair{ID: "pair_1", Player1ID: a.ID, Player2ID: b.ID}))
	require.NoError(t, Leave(ctx, sa, rules, "ABCD", a.ID))

	snap, err := admin.Get(ctx, room.Path(rules, "ABCD")+"/pairs")
	require.NoError(t, err)
	require.False(t, snap.Exists)
}

func TestRepair(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		players map[string]room.Player
		patch   room.Patch
	}{
		{
			name:    "empty",
			players: map[string]room.Player{},
		},
		{
			name: "healthy",
			players: map[string]room.Player{
				"player_1": {ID: "player_1", IsHost: true},
				"player_2": {ID: "player_2"},
			},
		},
		{
			name: "no_host",
			players: map[string]room.Player{
				"player_3": {ID: "player_3"},
				"player_2": {ID: "player_2"},
			},
			patch: room.Patch{"players/player_2/isHost": true},
		},
		{
			name: "two_hosts",
			players: map[string]room.Player{
				"player_3": {ID: "player_3", IsHost: true},
				"player_2": {ID: "player_2", IsHost: true},
			},
			patch: room.Patch{"players/player_3/isHost": false},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			patch, ok := Repair(&room.Room{Players: tc.players})
			require.Equal(t, tc.patch != nil, ok)
			if tc.patch != nil {
				require.Equal(t, tc.patch, patch)
			}
		})
	}
}
