package syncstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bloops-games/partyroom/internal/logging"
	"github.com/google/uuid"
)

const defaultDocumentDepth = 2

type HubOption func(*Hub)

// WithPersister makes the hub track changed documents (subtrees at depth
// segments below the root, e.g. "rooms/ABCD") for Flush.
func WithPersister(p Persister, depth int) HubOption {
	return func(h *Hub) {
		h.persister = p
		if depth > 0 {
			h.depth = depth
		}
	}
}

// WithRestore rewrites every document Load reads before it enters the tree.
// Connection-bound state does not survive a restart, so fn should drop it.
// A nil result discards the document. Rewritten documents are flushed back.
func WithRestore(fn func(path string, doc interface{}) interface{}) HubOption {
	return func(h *Hub) {
		h.restore = fn
	}
}

type subscription struct {
	id      uint64
	path    string
	last    uint64
	mailbox *Mailbox
}

// Hub is the shared, authoritative tree. Clients talk to it through Sessions.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		root:      map[string]interface{}{},
		touched:   map[string]uint64{},
		written:   map[string]uint64{},
		subs:      map[uint64]*subscription{},
		sessions:  map[string]*Session{},
		depth:     defaultDocumentDepth,
		dirty:     map[string]struct{}{},
		persisted: map[string]struct{}{},
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

type Hub struct {
	mtx sync.Mutex

	root map[string]interface{}
	rev  uint64
	// last revision that changed anything at or below a path
	touched map[string]uint64
	// last revision that wrote a path directly, covering its descendants
	written map[string]uint64

	subs     map[uint64]*subscription
	nextSub  uint64
	sessions map[string]*Session

	persister Persister
	depth     int
	dirty     map[string]struct{}
	dirtyAll  bool
	persisted map[string]struct{}
	restore   func(path string, doc interface{}) interface{}
}

// Session opens a new client connection to the hub.
func (h *Hub) Session() *Session {
	s := &Session{
		id:          uuid.New().String(),
		hub:         h,
		disconnects: map[string]struct{}{},
		subs:        map[uint64]func(){},
	}

	h.mtx.Lock()
	h.sessions[s.id] = s
	h.mtx.Unlock()

	return s
}

func (h *Hub) SessionsLen() int {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	return len(h.sessions)
}

type write struct {
	path  string
	segs  []string
	value interface{}
}

func prepare(base string, values map[string]interface{}) ([]write, error) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	// parents before children so a nested key refines its parent's write
	sort.Strings(keys)

	writes := make([]write, 0, len(keys))
	for _, k := range keys {
		p := Join(base, k)
		if err := validate(p); err != nil {
			return nil, err
		}

		v, err := normalize(values[k])
		if err != nil {
			return nil, fmt.Errorf("normalize %s: %w", p, err)
		}

		writes = append(writes, write{path: p, segs: Split(p), value: v})
	}

	return writes, nil
}

// apply writes values below base. A non-nil expected version turns the write
// into a compare-and-set on base.
func (h *Hub) apply(base string, expected *uint64, values map[string]interface{}) error {
	base = Clean(base)
	writes, err := prepare(base, values)
	if err != nil {
		return err
	}

	h.mtx.Lock()
	defer h.mtx.Unlock()

	if expected != nil && h.version(base) != *expected {
		return ErrConflict
	}

	h.rev++
	changed := make([]string, 0, len(writes))
	for _, w := range writes {
		if len(w.segs) == 0 {
			root, _ := w.value.(map[string]interface{})
			if root == nil {
				root = map[string]interface{}{}
			}
			h.root = root
		} else {
			setAt(h.root, w.segs, w.value)
		}
		h.record(w.path, w.value == nil)
		h.markDirty(w.path)
		changed = append(changed, w.path)
	}

	h.notify(changed)

	return nil
}

func (h *Hub) compareAndDelete(p string, expected uint64) error {
	return h.apply(p, &expected, map[string]interface{}{"": nil})
}

func (h *Hub) record(p string, deleted bool) {
	if deleted {
		prefix := p + "/"
		for k := range h.touched {
			if p == "" || strings.HasPrefix(k, prefix) {
				delete(h.touched, k)
			}
		}
		for k := range h.written {
			if p == "" || strings.HasPrefix(k, prefix) {
				delete(h.written, k)
			}
		}
	}

	h.written[p] = h.rev
	h.touched[p] = h.rev
	for _, a := range ancestors(p) {
		h.touched[a] = h.rev
	}
}

func (h *Hub) version(p string) uint64 {
	v := h.touched[p]
	for _, a := range ancestors(p) {
		if w := h.written[a]; w > v {
			v = w
		}
	}
	return v
}

func (h *Hub) snapshot(p string) Snapshot {
	p = Clean(p)
	s := Snapshot{Path: p, Version: h.version(p)}
	if v, ok := getAt(h.root, Split(p)); ok {
		s.Value = clone(v)
		s.Exists = true
	}
	return s
}

func (h *Hub) get(p string) (Snapshot, error) {
	if err := validate(p); err != nil {
		return Snapshot{}, err
	}

	h.mtx.Lock()
	defer h.mtx.Unlock()
	return h.snapshot(p), nil
}

func (h *Hub) notify(changed []string) {
	for _, sub := range h.subs {
		for _, c := range changed {
			if !Overlaps(sub.path, c) {
				continue
			}

			snap := h.snapshot(sub.path)
			if snap.Version != sub.last {
				sub.last = snap.Version
				sub.mailbox.Push(snap)
			}
			break
		}
	}
}

func (h *Hub) subscribe(p string, fn func(Snapshot)) (uint64, func(), error) {
	p = Clean(p)
	if err := validate(p); err != nil {
		return 0, nil, err
	}

	h.mtx.Lock()
	h.nextSub++
	sub := &subscription{id: h.nextSub, path: p, mailbox: NewMailbox()}
	snap := h.snapshot(p)
	sub.last = snap.Version
	sub.mailbox.Push(snap)
	h.subs[sub.id] = sub
	h.mtx.Unlock()

	go sub.mailbox.Run(fn)

	cancel := func() {
		h.mtx.Lock()
		delete(h.subs, sub.id)
		h.mtx.Unlock()
		sub.mailbox.Close()
	}

	return sub.id, cancel, nil
}

func (h *Hub) markDirty(p string) {
	if h.persister == nil {
		return
	}

	segs := Split(p)
	if len(segs) >= h.depth {
		h.dirty[strings.Join(segs[:h.depth], "/")] = struct{}{}
		return
	}
	h.dirtyAll = true
}

// documents lists the paths of every subtree at the document depth.
func (h *Hub) documents() []string {
	var out []string
	var walk func(node interface{}, prefix []string)
	walk = func(node interface{}, prefix []string) {
		if len(prefix) == h.depth {
			out = append(out, strings.Join(prefix, "/"))
			return
		}
		m, ok := node.(map[string]interface{})
		if !ok {
			return
		}
		for k, child := range m {
			walk(child, append(append([]string{}, prefix...), k))
		}
	}
	walk(h.root, nil)
	return out
}

// Load restores persisted documents. It must run before sessions connect.
func (h *Hub) Load() (int, error) {
	if h.persister == nil {
		return 0, nil
	}

	docs, err := h.persister.LoadAll()
	if err != nil {
		return 0, fmt.Errorf("load all: %w", err)
	}

	h.mtx.Lock()
	defer h.mtx.Unlock()

	h.rev++
	for p, doc := range docs {
		segs := Split(p)
		if len(segs) == 0 {
			continue
		}
		p = Clean(p)
		h.persisted[p] = struct{}{}

		if h.restore != nil {
			v, err := normalize(h.restore(p, doc))
			if err != nil {
				return 0, fmt.Errorf("restore %s: %w", p, err)
			}
			doc = v
			h.dirty[p] = struct{}{}
		}

		if v := prune(doc); v != nil {
			setAt(h.root, segs, v)
			h.record(p, false)
		}
	}

	return len(docs), nil
}

// Flush hands changed documents to the persister.
func (h *Hub) Flush() error {
	if h.persister == nil {
		return nil
	}

	h.mtx.Lock()
	keys := h.dirty
	if h.dirtyAll {
		for _, p := range h.documents() {
			keys[p] = struct{}{}
		}
		for p := range h.persisted {
			keys[p] = struct{}{}
		}
	}
	h.dirty = map[string]struct{}{}
	h.dirtyAll = false

	docs := make(map[string]interface{}, len(keys))
	for p := range keys {
		if v, ok := getAt(h.root, Split(p)); ok {
			docs[p] = clone(v)
		} else {
			docs[p] = nil
		}
	}
	h.mtx.Unlock()

	if err := h.persister.Save(docs); err != nil {
		h.mtx.Lock()
		for p := range docs {
			h.dirty[p] = struct{}{}
		}
		h.mtx.Unlock()
		return fmt.Errorf("persister save: %w", err)
	}

	h.mtx.Lock()
	for p, doc := range docs {
		if doc == nil {
			delete(h.persisted, p)
		} else {
			h.persisted[p] = struct{}{}
		}
	}
	h.mtx.Unlock()

	return nil
}

// RunFlusher flushes every interval until ctx is done, then flushes once more.
func (h *Hub) RunFlusher(ctx context.Context, interval time.Duration) error {
	logger := logging.FromContext(ctx).Named("syncstore.RunFlusher")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := h.Flush(); err != nil {
				return fmt.Errorf("final flush: %w", err)
			}
			return nil
		case <-ticker.C:
			if err := h.Flush(); err != nil {
				logger.Errorf("flush: %v", err)
			}
		}
	}
}
