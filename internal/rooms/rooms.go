// Package rooms creates rooms and reaps the ones nobody plays in anymore.
package rooms

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bloops-games/partyroom/internal/logging"
	"github.com/bloops-games/partyroom/internal/room"
	"github.com/bloops-games/partyroom/internal/room/consensus"
	"github.com/bloops-games/partyroom/internal/room/elias"
	"github.com/bloops-games/partyroom/internal/room/riddle"
	"github.com/bloops-games/partyroom/internal/room/wordplay"
	"github.com/bloops-games/partyroom/internal/roomcode"
	"github.com/bloops-games/partyroom/internal/syncstore"
)

const maxCreateAttempts = 10

var (
	ErrUnknownVariant = fmt.Errorf("unknown variant")
	ErrNoFreeCode     = fmt.Errorf("no free room code")
)

// Variants lists the rules of every playable variant.
func Variants() []room.Rules {
	return []room.Rules{consensus.Rules{}, elias.Rules{}, riddle.New(), wordplay.Rules{}}
}

func Lookup(kind string) (room.Rules, error) {
	for _, rules := range Variants() {
		if string(rules.Kind()) == kind {
			return rules, nil
		}
	}
	return nil, fmt.Errorf("%q: %w", kind, ErrUnknownVariant)
}

// Create writes a fresh lobby under a code no variant uses yet. The room has
// no players until someone joins it.
func Create(ctx context.Context, store syncstore.Store, rules room.Rules, language string, now time.Time) (string, error) {
	return create(ctx, store, rules, language, now, roomcode.New)
}

func create(ctx context.Context, store syncstore.Store, rules room.Rules, language string, now time.Time, next func() string) (string, error) {
	logger := logging.FromContext(ctx).Named("rooms.Create")

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		code := next()

		// codes are looked up across roots, so one code serves one variant only
		taken, err := Find(ctx, store, code)
		if err == nil {
			logger.Debugf("code %s is taken by %s", code, taken.Kind())
			continue
		}
		if !errors.Is(err, room.ErrNotFound) {
			return "", err
		}

		path := room.Path(rules, code)
		snap, err := store.Get(ctx, path)
		if err != nil {
			return "", fmt.Errorf("get room: %w", err)
		}
		if snap.Exists {
			continue
		}

		err = store.Commit(ctx, path, snap.Version, map[string]interface{}{"": rules.NewRoom(code, language, now)})
		if errors.Is(err, syncstore.ErrConflict) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("commit room: %w", err)
		}

		return code, nil
	}

	return "", ErrNoFreeCode
}

// Restore turns a persisted room document back into an empty lobby. Players
// are bound to connections that did not survive the restart, so they rejoin
// and the first of them becomes host. Documents under unknown roots are
// discarded.
func Restore(path string, doc interface{}) interface{} {
	root, code := path, ""
	if i := strings.LastIndex(path, "/"); i >= 0 {
		root, code = path[:i], path[i+1:]
	}

	for _, rules := range Variants() {
		if rules.Root() != root {
			continue
		}

		state, err := rules.Decode(doc)
		if err != nil {
			return nil
		}
		c := state.Common()
		if c.Code != "" {
			code = c.Code
		}
		return rules.NewRoom(code, c.Language, time.UnixMilli(c.CreatedAt))
	}

	return nil
}

type ReaperConfig struct {
	Interval time.Duration `envconfig:"PARTYROOM_REAP_INTERVAL" default:"1m"`
	EmptyTTL time.Duration `envconfig:"PARTYROOM_EMPTY_ROOM_TTL" default:"10m"`
	MaxAge   time.Duration `envconfig:"PARTYROOM_MAX_ROOM_AGE" default:"24h"`
}

func NewReaper(store syncstore.Store, config ReaperConfig, variants []room.Rules) *Reaper {
	return &Reaper{store: store, config: config, variants: variants, now: time.Now, started: time.Now()}
}

// Reaper deletes rooms left without players and rooms older than MaxAge.
type Reaper struct {
	store    syncstore.Store
	config   ReaperConfig
	variants []room.Rules
	now      func() time.Time
	// rooms restored at startup get EmptyTTL from here to be rejoined
	started time.Time
}

func (r *Reaper) expired(s room.State, now time.Time) bool {
	c := s.Common()
	age := now.Sub(time.UnixMilli(c.CreatedAt))
	if r.config.MaxAge > 0 && age > r.config.MaxAge {
		return true
	}
	if len(c.Players) > 0 {
		return false
	}

	idle := age
	if since := now.Sub(r.started); since < idle {
		idle = since
	}
	return idle > r.config.EmptyTTL
}

// Sweep runs one pass over every variant root and returns the number of rooms
// deleted.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	logger := logging.FromContext(ctx).Named("rooms.Sweep")
	now := r.now()

	var deleted int
	for _, rules := range r.variants {
		snap, err := r.store.Get(ctx, rules.Root())
		if err != nil {
			return deleted, fmt.Errorf("get %s: %w", rules.Root(), err)
		}

		docs, _ := snap.Value.(map[string]interface{})
		codes := make([]string, 0, len(docs))
		for code := range docs {
			codes = append(codes, code)
		}
		sort.Strings(codes)

		for _, code := range codes {
			path := room.Path(rules, code)
			// re-read, the room may have gained a player since the root read
			doc, err := r.store.Get(ctx, path)
			if err != nil {
				return deleted, fmt.Errorf("get room: %w", err)
			}
			if !doc.Exists {
				continue
			}

			state, err := rules.Decode(doc.Value)
			if err != nil {
				logger.Errorf("decode %s: %v", path, err)
				continue
			}
			if !r.expired(state, now) {
				continue
			}

			err = r.store.CompareAndDelete(ctx, path, doc.Version)
			if errors.Is(err, syncstore.ErrConflict) {
				continue
			}
			if err != nil {
				return deleted, fmt.Errorf("delete room: %w", err)
			}

			logger.Infof("reaped room %s", path)
			deleted++
		}
	}

	return deleted, nil
}

func (r *Reaper) Run(ctx context.Context) error {
	logger := logging.FromContext(ctx).Named("rooms.Reaper")
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				logger.Errorf("sweep: %v", err)
			}
		}
	}
}

// Find looks a code up under every variant root.
func Find(ctx context.Context, store syncstore.Store, code string) (room.Rules, error) {
	for _, rules := range Variants() {
		snap, err := store.Get(ctx, room.Path(rules, code))
		if err != nil {
			return nil, fmt.Errorf("get room: %w", err)
		}
		if snap.Exists {
			return rules, nil
		}
	}
	return nil, room.ErrNotFound
}
