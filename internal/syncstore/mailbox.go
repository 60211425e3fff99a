package syncstore

import "sync"

// Mailbox is an unbounded FIFO between a producer that must never block on a
// slow subscriber and the subscriber callback.
type Mailbox struct {
	mtx    sync.Mutex
	queue  []Snapshot
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

func NewMailbox() *Mailbox {
	return &Mailbox{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (m *Mailbox) Push(s Snapshot) {
	m.mtx.Lock()
	m.queue = append(m.queue, s)
	m.mtx.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *Mailbox) Close() {
	m.once.Do(func() { close(m.done) })
}

// Run calls fn for every pushed snapshot in order until Close.
func (m *Mailbox) Run(fn func(Snapshot)) {
	for {
		select {
		case <-m.done:
			return
		case <-m.signal:
		}

		m.mtx.Lock()
		batch := m.queue
		m.queue = nil
		m.mtx.Unlock()

		for _, s := range batch {
			select {
			case <-m.done:
				return
			default:
			}
			fn(s)
		}
	}
}
