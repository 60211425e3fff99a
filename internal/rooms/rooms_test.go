package rooms

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bloops-games/partyroom/internal/membership"
	"github.com/bloops-games/partyroom/internal/room"
	"github.com/bloops-games/partyroom/internal/room/consensus"
	"github.com/bloops-games/partyroom/internal/room/elias"
	"github.com/bloops-games/partyroom/internal/room/wordplay"
	"github.com/bloops-games/partyroom/internal/roomcode"
	"github.com/bloops-games/partyroom/internal/syncstore"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	t.Parallel()

	for _, kind := range []string{"consensus", "elias", "riddle", "wordplay"} {
		rules, err := Lookup(kind)
		require.NoError(t, err)
		require.Equal(t, kind, string(rules.Kind()))
	}

	_, err := Lookup("chess")
	require.ErrorIs(t, err, ErrUnknownVariant)
}

func TestCreate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := syncstore.NewHub().Session()
	defer store.Close()

	code, err := Create(ctx, store, elias.Rules{}, "ru", time.Now())
	require.NoError(t, err)
	_, ok := roomcode.Parse(code)
	require.True(t, ok)

	snap, err := store.Get(ctx, room.Path(elias.Rules{}, code))
	require.NoError(t, err)
	require.True(t, snap.Exists)

	state, err := elias.Rules{}.Decode(snap.Value)
	require.NoError(t, err)
	require.Equal(t, room.PhaseLobby, state.Common().Phase)
	require.Equal(t, "ru", state.Common().Language)
	require.Equal(t, elias.DefaultTargetScore, state.(*elias.State).TargetScore)
	require.Empty(t, state.Common().Players)
}

func TestSweep(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	hub := syncstore.NewHub()
	store := hub.Session()
	defer store.Close()

	created := time.Now()
	rules := consensus.Rules{}

	empty, err := Create(ctx, store, rules, "en", created)
	require.NoError(t, err)
	played, err := Create(ctx, store, rules, "en", created)
	require.NoError(t, err)
	_, err = membership.Join(ctx, hub.Session(), rules, played, "ann", created)
	require.NoError(t, err)

	reaper := NewReaper(store, ReaperConfig{EmptyTTL: 10 * time.Minute, MaxAge: time.Hour}, Variants())

	// nothing is old enough yet
	reaper.now = func() time.Time { return created.Add(time.Minute) }
	n, err := reaper.Sweep(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	reaper.now = func() time.Time { return created.Add(11 * time.Minute) }
	n, err = reaper.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	snap, _ := store.Get(ctx, room.Path(rules, empty))
	require.False(t, snap.Exists)
	snap, _ = store.Get(ctx, room.Path(rules, played))
	require.True(t, snap.Exists)

	reaper.now = func() time.Time { return created.Add(2 * time.Hour) }
	n, err = reaper.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	snap, _ = store.Get(ctx, rules.Root())
	require.False(t, snap.Exists)
}

func TestFind(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := syncstore.NewHub().Session()
	defer store.Close()

	code, err := Create(ctx, store, elias.Rules{}, "en", time.Now())
	require.NoError(t, err)

	rules, err := Find(ctx, store, code)
	require.NoError(t, err)
	require.Equal(t, room.KindElias, rules.Kind())

	_, err = Find(ctx, store, "ZZZZ")
	require.ErrorIs(t, err, room.ErrNotFound)
}

func TestCreateSkipsCodesOfOtherVariants(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := syncstore.NewHub().Session()
	defer store.Close()

	require.NoError(t, store.Set(ctx, room.Path(elias.Rules{}, "ABCD"), elias.Rules{}.NewRoom("ABCD", "en", time.Now())))

	codes := []string{"ABCD", "EFGH"}
	next := func() string {
		code := codes[0]
		codes = codes[1:]
		return code
	}

	code, err := create(ctx, store, consensus.Rules{}, "en", time.Now(), next)
	require.NoError(t, err)
	require.Equal(t, "EFGH", code)

	rules, err := Find(ctx, store, "ABCD")
	require.NoError(t, err)
	require.Equal(t, room.KindElias, rules.Kind())
	rules, err = Find(ctx, store, "EFGH")
	require.NoError(t, err)
	require.Equal(t, room.KindConsensus, rules.Kind())

	same := func() string { return "ABCD" }
	_, err = create(ctx, store, wordplay.Rules{}, "en", time.Now(), same)
	require.ErrorIs(t, err, ErrNoFreeCode)
}

type memPersister struct {
	mtx  sync.Mutex
	docs map[string]interface{}
}

func (m *memPersister) Save(docs map[string]interface{}) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	for k, v := range docs {
		if v == nil {
			delete(m.docs, k)
			continue
		}
		m.docs[k] = v
	}
	return nil
}

func (m *memPersister) LoadAll() (map[string]interface{}, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	out := make(map[string]interface{}, len(m.docs))
	for k, v := range m.docs {
		out[k] = v
	}
	return out, nil
}

func TestRestoreDropsPresence(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rules := consensus.Rules{}
	created := time.Now().Add(-time.Hour)
	p := &memPersister{docs: map[string]interface{}{}}

	hub := syncstore.NewHub(syncstore.WithPersister(p, 0))
	admin := hub.Session()
	code, err := Create(ctx, admin, rules, "ru", created)
	require.NoError(t, err)
	ann, err := membership.Join(ctx, hub.Session(), rules, code, "ann", created)
	require.NoError(t, err)
	require.True(t, ann.IsHost)
	require.NoError(t, admin.Set(ctx, "unknown/ZZZZ", map[string]interface{}{"roomCode": "ZZZZ"}))
	require.NoError(t, hub.Flush())

	// a restart: ann's connection is gone with the old hub
	restored := syncstore.NewHub(syncstore.WithPersister(p, 0), syncstore.WithRestore(Restore))
	_, err = restored.Load()
	require.NoError(t, err)

	store := restored.Session()
	defer store.Close()

	snap, err := store.Get(ctx, room.Path(rules, code))
	require.NoError(t, err)
	require.True(t, snap.Exists)
	state, err := rules.Decode(snap.Value)
	require.NoError(t, err)
	require.Empty(t, state.Common().Players)
	require.Equal(t, room.PhaseLobby, state.Common().Phase)
	require.Equal(t, "ru", state.Common().Language)
	require.Equal(t, created.UnixMilli(), state.Common().CreatedAt)

	snap, err = store.Get(ctx, "unknown/ZZZZ")
	require.NoError(t, err)
	require.False(t, snap.Exists)

	bob, err := membership.Join(ctx, restored.Session(), rules, code, "bob", time.Now())
	require.NoError(t, err)
	require.True(t, bob.IsHost)

	// the restored room gets a fresh grace period before it counts as empty
	reaper := NewReaper(store, ReaperConfig{EmptyTTL: 10 * time.Minute, MaxAge: 24 * time.Hour}, Variants())
	require.NoError(t, store.Update(ctx, room.Path(rules, code), map[string]interface{}{room.PlayerPath(bob.ID): nil}))
	n, err := reaper.Sweep(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	reaper.now = func() time.Time { return time.Now().Add(11 * time.Minute) }
	n, err = reaper.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
