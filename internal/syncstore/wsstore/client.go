package wsstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/bloops-games/partyroom/internal/syncstore"
	"github.com/gorilla/websocket"
)

var _ syncstore.Store = (*Client)(nil)

// Dial connects to a Server. The connection is the client's presence: when
// it drops, the server runs the OnDisconnect cleanups registered through it.
func Dial(ctx context.Context, url string) (*Client, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := &Client{
		ws:      ws,
		pending: map[uint64]chan frame{},
		subs:    map[uint64]*syncstore.Mailbox{},
		done:    make(chan struct{}),
	}
	go c.readLoop()

	return c, nil
}

type Client struct {
	mtx sync.Mutex

	ws       *websocket.Conn
	writeMtx sync.Mutex
	nextID   uint64
	nextSub  uint64
	pending  map[uint64]chan frame
	subs     map[uint64]*syncstore.Mailbox
	done     chan struct{}
	once     sync.Once
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) readLoop() {
	defer c.shutdown()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}

		if f.ID == 0 {
			if f.Sub == 0 {
				continue
			}
			c.mtx.Lock()
			mb := c.subs[f.Sub]
			c.mtx.Unlock()
			if mb == nil {
				continue
			}

			var snap syncstore.Snapshot
			if err := json.Unmarshal(f.Snapshot, &snap); err != nil {
				continue
			}
			mb.Push(snap)
			continue
		}

		c.mtx.Lock()
		ch, ok := c.pending[f.ID]
		delete(c.pending, f.ID)
		c.mtx.Unlock()
		if ok {
			ch <- f
		}
	}
}

func (c *Client) shutdown() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()

		c.mtx.Lock()
		subs := c.subs
		c.subs = map[uint64]*syncstore.Mailbox{}
		c.mtx.Unlock()
		for _, mb := range subs {
			mb.Close()
		}
	})
}

func (c *Client) write(req request) error {
	data, err := encode(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	c.writeMtx.Lock()
	defer c.writeMtx.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write request: %w", err)
	}

	return nil
}

func (c *Client) call(ctx context.Context, req request) (frame, error) {
	if err := ctx.Err(); err != nil {
		return frame{}, err
	}

	ch := make(chan frame, 1)
	c.mtx.Lock()
	select {
	case <-c.done:
		c.mtx.Unlock()
		return frame{}, syncstore.ErrClosed
	default:
	}
	c.nextID++
	req.ID = c.nextID
	c.pending[req.ID] = ch
	c.mtx.Unlock()

	forget := func() {
		c.mtx.Lock()
		delete(c.pending, req.ID)
		c.mtx.Unlock()
	}

	if err := c.write(req); err != nil {
		forget()
		return frame{}, err
	}

	select {
	case f := <-ch:
		if err := decodeError(f.Error); err != nil {
			return f, err
		}
		return f, nil
	case <-c.done:
		return frame{}, syncstore.ErrClosed
	case <-ctx.Done():
		forget()
		return frame{}, ctx.Err()
	}
}

func (c *Client) Get(ctx context.Context, path string) (syncstore.Snapshot, error) {
	f, err := c.call(ctx, request{Op: opGet, Path: path})
	if err != nil {
		return syncstore.Snapshot{}, err
	}

	var snap syncstore.Snapshot
	if err := json.Unmarshal(f.Snapshot, &snap); err != nil {
		return syncstore.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}

	return snap, nil
}

func (c *Client) Set(ctx context.Context, path string, value interface{}) error {
	return c.Update(ctx, path, map[string]interface{}{"": value})
}

func (c *Client) Update(ctx context.Context, path string, values map[string]interface{}) error {
	_, err := c.call(ctx, request{Op: opUpdate, Path: path, Values: values})
	return err
}

func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Update(ctx, path, map[string]interface{}{"": nil})
}

func (c *Client) Commit(ctx context.Context, path string, version uint64, values map[string]interface{}) error {
	_, err := c.call(ctx, request{Op: opCommit, Path: path, Version: version, Values: values})
	return err
}

func (c *Client) CompareAndDelete(ctx context.Context, path string, version uint64) error {
	_, err := c.call(ctx, request{Op: opCompareAndDelete, Path: path, Version: version})
	return err
}

func (c *Client) Subscribe(ctx context.Context, path string, fn func(syncstore.Snapshot)) (func(), error) {
	mb := syncstore.NewMailbox()

	c.mtx.Lock()
	c.nextSub++
	id := c.nextSub
	c.subs[id] = mb
	c.mtx.Unlock()

	go mb.Run(fn)

	drop := func() {
		c.mtx.Lock()
		delete(c.subs, id)
		c.mtx.Unlock()
		mb.Close()
	}

	if _, err := c.call(ctx, request{Op: opSubscribe, Path: path, Sub: id}); err != nil {
		drop()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	return func() {
		drop()
		// the reply carries nothing useful
		_ = c.write(request{Op: opUnsubscribe, Sub: id})
	}, nil
}

func (c *Client) OnDisconnect(ctx context.Context, path string) error {
	_, err := c.call(ctx, request{Op: opOnDisconnect, Path: path})
	return err
}

func (c *Client) CancelDisconnect(ctx context.Context, path string) error {
	_, err := c.call(ctx, request{Op: opCancelDisconnect, Path: path})
	return err
}

// Close ends the connection, which triggers the server side cleanups.
func (c *Client) Close() error {
	select {
	case <-c.done:
		return nil
	default:
	}

	c.writeMtx.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	c.writeMtx.Unlock()

	c.shutdown()
	return nil
}
