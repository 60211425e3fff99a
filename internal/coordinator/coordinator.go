// Package coordinator drives one client's view of a room. Every client runs
// one; the client whose player is host also advances the shared state
// machine: it counts the timer down, closes phases once every submission is
// in and settles scores.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bloops-games/partyroom/internal/logging"
	"github.com/bloops-games/partyroom/internal/membership"
	"github.com/bloops-games/partyroom/internal/room"
	"github.com/bloops-games/partyroom/internal/syncstore"
)

var (
	ErrNotJoined = fmt.Errorf("not joined")
	ErrRemoved   = fmt.Errorf("removed from room")
)

// View is what a client renders. Err is set when the room is gone or the
// player was removed from it.
type View struct {
	State  room.State
	Self   room.Player
	Joined bool
	Err    error
}

func (v View) IsHost() bool {
	return v.Joined && v.Self.IsHost
}

func New(config Config) *Coordinator {
	config.setDefaults()

	return &Coordinator{
		config: config,
		path:   room.Path(config.Rules, config.Code),
		snapCh: make(chan syncstore.Snapshot),
		views:  make(chan View, 1),
		done:   make(chan struct{}),
	}
}

type Coordinator struct {
	mtx sync.RWMutex

	config      Config
	path        string
	playerID    string
	joined      bool
	snapCh      chan syncstore.Snapshot
	views       chan View
	done        chan struct{}
	cancel      func()
	unsubscribe func()
	sema        sync.Once
	started     bool
}

func (c *Coordinator) PlayerID() string {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.playerID
}

// Views delivers the latest view; views not yet read are replaced.
func (c *Coordinator) Views() <-chan View {
	return c.views
}

// Done is closed when the loop exits.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

func (c *Coordinator) Join(ctx context.Context, name string) (room.Player, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.joined {
		return room.Player{}, fmt.Errorf("already joined as %s", c.playerID)
	}

	p, err := membership.Join(ctx, c.config.Store, c.config.Rules, c.config.Code, name, c.config.Clock())
	if err != nil {
		return room.Player{}, fmt.Errorf("membership join: %w", err)
	}

	c.playerID = p.ID
	c.joined = true
	return p, nil
}

func (c *Coordinator) Leave(ctx context.Context) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if !c.joined {
		return ErrNotJoined
	}

	err := membership.Leave(ctx, c.config.Store, c.config.Rules, c.config.Code, c.playerID)
	if err != nil && !errors.Is(err, room.ErrNotFound) {
		return fmt.Errorf("membership leave: %w", err)
	}

	c.joined = false
	return nil
}

// Submit records a player scoped intent. Rejections are typed errors the
// caller may ignore.
func (c *Coordinator) Submit(ctx context.Context, in room.Intent) error {
	id := c.PlayerID()
	if id == "" {
		return ErrNotJoined
	}

	return c.update(ctx, false, func(s room.State) (room.Patch, error) {
		return c.config.Rules.Submit(s, id, in)
	})
}

// Command runs a host only command.
func (c *Coordinator) Command(ctx context.Context, cmd room.Command) error {
	if c.PlayerID() == "" {
		return ErrNotJoined
	}
	if cmd.Now.IsZero() {
		cmd.Now = c.config.Clock()
	}

	return c.update(ctx, true, func(s room.State) (room.Patch, error) {
		return c.config.Rules.Command(ctx, s, cmd, c.config.Content)
	})
}

func (c *Coordinator) Run(ctx context.Context) error {
	var err error
	c.sema.Do(func() {
		ctx, cancel := context.WithCancel(ctx)

		unsubscribe, subErr := c.config.Store.Subscribe(ctx, c.path, func(s syncstore.Snapshot) {
			select {
			case c.snapCh <- s:
			case <-c.done:
			}
		})
		if subErr != nil {
			cancel()
			close(c.done)
			err = fmt.Errorf("subscribe room: %w", subErr)
			return
		}

		c.mtx.Lock()
		c.cancel = cancel
		c.unsubscribe = unsubscribe
		c.started = true
		c.mtx.Unlock()

		go c.loop(ctx)
	})

	return err
}

// Stop tears the loop down and waits for it: the subscription, ticker and
// settle timer are gone once Stop returns.
func (c *Coordinator) Stop() {
	c.mtx.RLock()
	cancel, started := c.cancel, c.started
	c.mtx.RUnlock()

	if !started {
		return
	}
	cancel()
	<-c.done
}

func (c *Coordinator) publish(v View) {
	select {
	case <-c.views:
	default:
	}
	select {
	case c.views <- v:
	default:
	}
}

func (c *Coordinator) loop(ctx context.Context) {
	logger := logging.FromContext(ctx).Named("coordinator.loop")

	var ticker *time.Ticker
	var tickCh <-chan time.Time
	var settle *time.Timer
	var settleCh <-chan time.Time
	var settlePhase room.Phase

	stopTicker := func() {
		if ticker != nil {
			ticker.Stop()
			ticker, tickCh = nil, nil
		}
	}
	stopSettle := func() {
		if settle != nil {
			settle.Stop()
			settle, settleCh = nil, nil
		}
		settlePhase = ""
	}

	defer func() {
		stopTicker()
		stopSettle()
		c.unsubscribe()
		close(c.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-c.snapCh:
			if !snap.Exists {
				c.publish(View{Err: room.ErrNotFound})
				return
			}

			state, err := c.config.Rules.Decode(snap.Value)
			if err != nil {
				logger.Errorf("decode room %s: %v", c.config.Code, err)
				continue
			}

			c.mtx.RLock()
			id, joined := c.playerID, c.joined
			c.mtx.RUnlock()

			self, present := state.Common().Player(id)
			view := View{State: state, Self: self, Joined: joined && present}
			if joined && !present {
				view.Err = ErrRemoved
			}
			c.publish(view)

			if !view.Joined {
				stopTicker()
				stopSettle()
				continue
			}

			if _, ok := membership.Repair(state.Common()); ok {
				if err := c.repair(ctx); err != nil {
					logger.Debugf("repair hosts: %v", err)
				}
				continue
			}

			if !self.IsHost {
				stopTicker()
				stopSettle()
				continue
			}

			if c.config.Rules.Timed(state) {
				if ticker == nil {
					ticker = time.NewTicker(c.config.TickInterval)
					tickCh = ticker.C
				}
			} else {
				stopTicker()
			}

			if delay, ok := c.config.Rules.Settle(state); ok {
				if phase := state.Common().Phase; settlePhase != phase {
					stopSettle()
					settle = time.NewTimer(delay)
					settleCh = settle.C
					settlePhase = phase
				}
			} else {
				stopSettle()
			}

			if _, err := c.config.Rules.Transition(state, room.EventSnapshot); err == nil {
				if err := c.advance(ctx, room.EventSnapshot); err != nil {
					logger.Debugf("advance: %v", err)
				}
			}
		case <-tickCh:
			if err := c.tick(ctx); err != nil {
				logger.Debugf("tick: %v", err)
				if errors.Is(err, room.ErrNotHost) || errors.Is(err, room.ErrNotFound) {
					stopTicker()
				}
			}
		case <-settleCh:
			settle, settleCh = nil, nil
			err := c.advance(ctx, room.EventSettle)
			switch {
			case err == nil:
			case errors.Is(err, room.ErrNotHost), errors.Is(err, room.ErrNotFound):
				logger.Debugf("settle: %v", err)
				settlePhase = ""
			default:
				// the phase is still pending, try again shortly
				logger.Debugf("settle: %v, retrying", err)
				settle = time.NewTimer(c.config.SettleRetry)
				settleCh = settle.C
			}
		}
	}
}

// update re-reads the room, builds a patch from the fresh state and commits
// it against the version read. Conflicts are retried a bounded number of
// times.
func (c *Coordinator) update(ctx context.Context, hostOnly bool, fn func(room.State) (room.Patch, error)) error {
	for attempt := 0; attempt < c.config.Retries; attempt++ {
		snap, err := c.config.Store.Get(ctx, c.path)
		if err != nil {
			return fmt.Errorf("get room: %w", err)
		}
		if !snap.Exists {
			return room.ErrNotFound
		}

		state, err := c.config.Rules.Decode(snap.Value)
		if err != nil {
			return fmt.Errorf("decode room: %w", err)
		}
		if hostOnly && !state.Common().IsHost(c.PlayerID()) {
			return room.ErrNotHost
		}

		patch, err := fn(state)
		if err != nil {
			return err
		}
		if len(patch) == 0 {
			return nil
		}

		err = c.config.Store.Commit(ctx, c.path, snap.Version, patch)
		if errors.Is(err, syncstore.ErrConflict) {
			continue
		}
		if err != nil {
			return fmt.Errorf("commit: %w", err)
		}

		return nil
	}

	return room.ErrStale
}

func (c *Coordinator) advance(ctx context.Context, ev room.EventKind) error {
	err := c.update(ctx, true, func(s room.State) (room.Patch, error) {
		return c.config.Rules.Transition(s, ev)
	})
	if errors.Is(err, room.ErrNoOp) {
		return nil
	}
	return err
}

// tick counts the authoritative timer down by one, or fires the timer event
// once it is at zero.
func (c *Coordinator) tick(ctx context.Context) error {
	err := c.update(ctx, true, func(s room.State) (room.Patch, error) {
		if !c.config.Rules.Timed(s) {
			return nil, room.ErrNoOp
		}
		if t := s.Common().Timer; t > 0 {
			return room.Patch{"timer": t - 1}, nil
		}
		return c.config.Rules.Transition(s, room.EventTimerExpired)
	})
	if errors.Is(err, room.ErrNoOp) {
		return nil
	}
	return err
}

func (c *Coordinator) repair(ctx context.Context) error {
	return c.update(ctx, false, func(s room.State) (room.Patch, error) {
		patch, _ := membership.Repair(s.Common())
		return patch, nil
	})
}
