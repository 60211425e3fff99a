package wsstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bloops-games/partyroom/internal/cache"
	"github.com/bloops-games/partyroom/internal/logging"
	"github.com/bloops-games/partyroom/internal/syncstore"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const writeWait = 10 * time.Second

type Config struct {
	RequestRate       float64       `envconfig:"PARTYROOM_WS_REQUEST_RATE" default:"50"`
	RequestBurst      int           `envconfig:"PARTYROOM_WS_REQUEST_BURST" default:"100"`
	ReadLimit         int64         `envconfig:"PARTYROOM_WS_READ_LIMIT" default:"65536"`
	PingPeriod        time.Duration `envconfig:"PARTYROOM_WS_PING_PERIOD" default:"54s"`
	PongWait          time.Duration `envconfig:"PARTYROOM_WS_PONG_WAIT" default:"60s"`
	SnapshotCacheSize int           `envconfig:"PARTYROOM_WS_SNAPSHOT_CACHE_SIZE" default:"1024"`
}

func NewServer(hub *syncstore.Hub, config *Config) (*Server, error) {
	encoded, err := cache.NewLRU(config.SnapshotCacheSize)
	if err != nil {
		return nil, fmt.Errorf("snapshot cache: %w", err)
	}

	return &Server{
		hub:     hub,
		config:  config,
		encoded: encoded,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}, nil
}

// Server exposes a hub to remote clients. Every connection gets its own hub
// session, so a dropped socket runs that client's OnDisconnect cleanups.
type Server struct {
	hub      *syncstore.Hub
	config   *Config
	upgrader websocket.Upgrader
	// encoded snapshots keyed by path@version, shared by all connections
	// watching the same room
	encoded cache.Cache
}

// Handle upgrades requests to websocket connections. Connections are closed
// when ctx is done.
func (s *Server) Handle(ctx context.Context) http.Handler {
	logger := logging.FromContext(ctx).Named("wsstore.Handle")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warnf("upgrade: %v", err)
			return
		}

		c := &conn{
			server:  s,
			ws:      ws,
			session: s.hub.Session(),
			limiter: rate.NewLimiter(rate.Limit(s.config.RequestRate), s.config.RequestBurst),
			send:    make(chan []byte, 256),
			done:    make(chan struct{}),
			subs:    map[uint64]func(){},
		}

		logger.Debugf("connection %s opened from %s", c.session.ID(), r.RemoteAddr)
		c.serve(ctx)
		logger.Debugf("connection %s closed", c.session.ID())
	})
}

func (s *Server) encodeSnapshot(snap syncstore.Snapshot) (json.RawMessage, error) {
	key := fmt.Sprintf("%s@%d", snap.Path, snap.Version)
	if v, ok := s.encoded.Get(key); ok {
		return v.(json.RawMessage), nil
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}

	s.encoded.Add(key, json.RawMessage(data))
	return data, nil
}

type conn struct {
	mtx sync.Mutex

	server  *Server
	ws      *websocket.Conn
	session *syncstore.Session
	limiter *rate.Limiter
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	subs    map[uint64]func()
}

func (c *conn) serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.close()

	go c.writeLoop(ctx)
	go func() {
		select {
		case <-ctx.Done():
			c.close()
		case <-c.done:
		}
	}()

	c.readLoop(ctx)
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.done)

		c.mtx.Lock()
		subs := c.subs
		c.subs = nil
		c.mtx.Unlock()
		for _, cancel := range subs {
			cancel()
		}

		_ = c.session.Close()
		_ = c.ws.Close()
	})
}

func (c *conn) readLoop(ctx context.Context) {
	logger := logging.FromContext(ctx).Named("wsstore.readLoop")

	c.ws.SetReadLimit(c.server.config.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.server.config.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.server.config.PongWait))
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debugf("unexpected close: %v", err)
			}
			return
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return
		}

		var req request
		if err := json.Unmarshal(message, &req); err != nil {
			logger.Warnf("decode request: %v", err)
			continue
		}

		c.push(ctx, c.handle(ctx, req))
	}
}

func (c *conn) writeLoop(ctx context.Context) {
	logger := logging.FromContext(ctx).Named("wsstore.writeLoop")
	ticker := time.NewTicker(c.server.config.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Debugf("write: %v", err)
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *conn) push(ctx context.Context, f frame) {
	data, err := encode(f)
	if err != nil {
		logging.FromContext(ctx).Named("wsstore.push").Errorf("encode frame: %v", err)
		return
	}

	select {
	case c.send <- data:
	case <-c.done:
	}
}

func (c *conn) handle(ctx context.Context, req request) frame {
	out := frame{ID: req.ID}

	var err error
	switch req.Op {
	case opGet:
		var snap syncstore.Snapshot
		if snap, err = c.session.Get(ctx, req.Path); err == nil {
			out.Snapshot, err = c.server.encodeSnapshot(snap)
		}
	case opUpdate:
		err = c.session.Update(ctx, req.Path, req.Values)
	case opCommit:
		err = c.session.Commit(ctx, req.Path, req.Version, req.Values)
	case opCompareAndDelete:
		err = c.session.CompareAndDelete(ctx, req.Path, req.Version)
	case opSubscribe:
		err = c.subscribe(ctx, req.Path, req.Sub)
	case opUnsubscribe:
		c.unsubscribe(req.Sub)
	case opOnDisconnect:
		err = c.session.OnDisconnect(ctx, req.Path)
	case opCancelDisconnect:
		err = c.session.CancelDisconnect(ctx, req.Path)
	default:
		err = fmt.Errorf("unknown op %q", req.Op)
	}

	if err != nil {
		out.Error = encodeError(err)
	}

	return out
}

func (c *conn) subscribe(ctx context.Context, path string, sub uint64) error {
	if sub == 0 {
		return fmt.Errorf("subscription id required")
	}

	cancel, err := c.session.Subscribe(ctx, path, func(snap syncstore.Snapshot) {
		data, err := c.server.encodeSnapshot(snap)
		if err != nil {
			logging.FromContext(ctx).Named("wsstore.subscribe").Errorf("encode snapshot: %v", err)
			return
		}
		c.push(ctx, frame{Sub: sub, Snapshot: data})
	})
	if err != nil {
		return err
	}

	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.subs == nil {
		cancel()
		return syncstore.ErrClosed
	}
	if old, ok := c.subs[sub]; ok {
		old()
	}
	c.subs[sub] = cancel

	return nil
}

func (c *conn) unsubscribe(sub uint64) {
	c.mtx.Lock()
	cancel, ok := c.subs[sub]
	delete(c.subs, sub)
	c.mtx.Unlock()

	if ok {
		cancel()
	}
}
