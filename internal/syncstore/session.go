package syncstore

import (
	"context"
	"fmt"
	"sync"
)

var _ Store = (*Session)(nil)

// Session is one client connection to a Hub. Closing it behaves like a lost
// connection: subscriptions stop and OnDisconnect paths are removed.
type Session struct {
	mtx sync.Mutex

	id          string
	hub         *Hub
	closed      bool
	disconnects map[string]struct{}
	subs        map[uint64]func()
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *Session) Get(ctx context.Context, path string) (Snapshot, error) {
	if err := s.check(ctx); err != nil {
		return Snapshot{}, err
	}
	return s.hub.get(path)
}

func (s *Session) Set(ctx context.Context, path string, value interface{}) error {
	return s.Update(ctx, path, map[string]interface{}{"": value})
}

func (s *Session) Update(ctx context.Context, path string, values map[string]interface{}) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	return s.hub.apply(path, nil, values)
}

func (s *Session) Delete(ctx context.Context, path string) error {
	return s.Update(ctx, path, map[string]interface{}{"": nil})
}

func (s *Session) Commit(ctx context.Context, path string, version uint64, values map[string]interface{}) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	return s.hub.apply(path, &version, values)
}

func (s *Session) CompareAndDelete(ctx context.Context, path string, version uint64) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	return s.hub.compareAndDelete(path, version)
}

func (s *Session) Subscribe(ctx context.Context, path string, fn func(Snapshot)) (func(), error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	id, cancel, err := s.hub.subscribe(path, fn)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	s.mtx.Lock()
	s.subs[id] = cancel
	s.mtx.Unlock()

	return func() {
		s.mtx.Lock()
		delete(s.subs, id)
		s.mtx.Unlock()
		cancel()
	}, nil
}

func (s *Session) OnDisconnect(ctx context.Context, path string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if err := validate(path); err != nil {
		return err
	}

	s.mtx.Lock()
	s.disconnects[Clean(path)] = struct{}{}
	s.mtx.Unlock()
	return nil
}

func (s *Session) CancelDisconnect(ctx context.Context, path string) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	s.mtx.Lock()
	delete(s.disconnects, Clean(path))
	s.mtx.Unlock()
	return nil
}

// Close stops subscriptions and runs the disconnect cleanups in one write.
func (s *Session) Close() error {
	s.mtx.Lock()
	if s.closed {
		s.mtx.Unlock()
		return nil
	}
	s.closed = true
	subs := s.subs
	s.subs = map[uint64]func(){}
	cleanup := make(map[string]interface{}, len(s.disconnects))
	for p := range s.disconnects {
		cleanup[p] = nil
	}
	s.mtx.Unlock()

	for _, cancel := range subs {
		cancel()
	}

	s.hub.mtx.Lock()
	delete(s.hub.sessions, s.id)
	s.hub.mtx.Unlock()

	if len(cleanup) == 0 {
		return nil
	}

	if err := s.hub.apply("", nil, cleanup); err != nil {
		return fmt.Errorf("disconnect cleanup: %w", err)
	}

	return nil
}
