// Package membership joins and removes players and keeps exactly one host in
// every room that has players.
package membership

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bloops-games/partyroom/internal/logging"
	"github.com/bloops-games/partyroom/internal/room"
	"github.com/bloops-games/partyroom/internal/syncstore"
)

const maxAttempts = 5

// Join adds a player named name to the room. The first player becomes host.
// The player record is removed by the store when this client disconnects.
func Join(ctx context.Context, store syncstore.Store, rules room.Rules, code, name string, now time.Time) (room.Player, error) {
	logger := logging.FromContext(ctx).Named("membership.Join")
	path := room.Path(rules, code)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		snap, err := store.Get(ctx, path)
		if err != nil {
			return room.Player{}, fmt.Errorf("get room: %w", err)
		}
		if !snap.Exists {
			return room.Player{}, room.ErrNotFound
		}

		state, err := rules.Decode(snap.Value)
		if err != nil {
			return room.Player{}, fmt.Errorf("decode room: %w", err)
		}
		r := state.Common()

		if len(r.Players) >= rules.MaxPlayers() {
			return room.Player{}, room.ErrCapacity
		}

		id := room.NewID("player", now, func(id string) bool {
			_, ok := r.Players[id]
			return ok
		})
		_, hasHost := r.Host()
		player := room.Player{ID: id, Name: name, IsHost: !hasHost, Avatar: id}

		err = store.Commit(ctx, path, snap.Version, map[string]interface{}{room.PlayerPath(id): player})
		if errors.Is(err, syncstore.ErrConflict) {
			logger.Debugf("room %s changed while joining, retrying", code)
			continue
		}
		if err != nil {
			return room.Player{}, fmt.Errorf("commit player: %w", err)
		}

		if err := store.OnDisconnect(ctx, path+"/"+room.PlayerPath(id)); err != nil {
			return room.Player{}, fmt.Errorf("register disconnect: %w", err)
		}

		return player, nil
	}

	return room.Player{}, fmt.Errorf("join: %w", room.ErrStale)
}

// Leave removes the player and its variant records. The last player to leave
// deletes the room; a departing host hands over to the first remaining player.
func Leave(ctx context.Context, store syncstore.Store, rules room.Rules, code, playerID string) error {
	logger := logging.FromContext(ctx).Named("membership.Leave")
	path := room.Path(rules, code)
	playerPath := path + "/" + room.PlayerPath(playerID)

	// the disconnect cleanup stays registered until the player is gone
	cancel := func() error {
		if err := store.CancelDisconnect(ctx, playerPath); err != nil {
			return fmt.Errorf("cancel disconnect: %w", err)
		}
		return nil
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		snap, err := store.Get(ctx, path)
		if err != nil {
			return fmt.Errorf("get room: %w", err)
		}
		if !snap.Exists {
			if err := cancel(); err != nil {
				return err
			}
			return room.ErrNotFound
		}

		state, err := rules.Decode(snap.Value)
		if err != nil {
			return fmt.Errorf("decode room: %w", err)
		}
		r := state.Common()

		if _, ok := r.Players[playerID]; ok && len(r.Players) == 1 {
			err = store.CompareAndDelete(ctx, path, snap.Version)
		} else {
			patch := room.Patch{room.PlayerPath(playerID): nil}
			patch.Merge(rules.Leave(state, playerID))

			rest := *r
			rest.Players = make(map[string]room.Player, len(r.Players))
			for id, p := range r.Players {
				if id != playerID {
					rest.Players[id] = p
				}
			}
			if repair, ok := Repair(&rest); ok {
				patch.Merge(repair)
			}

			err = store.Commit(ctx, path, snap.Version, patch)
		}

		if errors.Is(err, syncstore.ErrConflict) {
			logger.Debugf("room %s changed while leaving, retrying", code)
			continue
		}
		if err != nil {
			return fmt.Errorf("commit leave: %w", err)
		}

		return cancel()
	}

	return fmt.Errorf("leave: %w", room.ErrStale)
}

// Repair returns the patch restoring exactly one host: the first player in
// join order is promoted when nobody is host, extra hosts are demoted.
func Repair(r *room.Room) (room.Patch, bool) {
	if len(r.Players) == 0 {
		return nil, false
	}

	ordered := r.Ordered()
	patch := room.Patch{}
	var host string
	for _, p := range ordered {
		if !p.IsHost {
			continue
		}
		if host == "" {
			host = p.ID
			continue
		}
		patch[room.PlayerPath(p.ID)+"/isHost"] = false
	}

	if host == "" {
		patch[room.PlayerPath(ordered[0].ID)+"/isHost"] = true
	}

	return patch, len(patch) > 0
}
