package coordinator

import (
	"time"

	"github.com/bloops-games/partyroom/internal/content"
	"github.com/bloops-games/partyroom/internal/room"
	"github.com/bloops-games/partyroom/internal/syncstore"
)

const (
	defaultTickInterval = time.Second
	defaultRetries      = 3
	defaultSettleRetry  = 500 * time.Millisecond
)

type Config struct {
	Store syncstore.Store
	Rules room.Rules
	Code  string
	// Content should never fail; wrap it with content.WithFallback.
	Content      content.Generator
	Clock        func() time.Time
	TickInterval time.Duration
	// Retries bounds re-read and commit attempts after a version conflict.
	Retries int
	// SettleRetry is the delay before a failed settlement is attempted again.
	SettleRetry time.Duration
}

func (c *Config) setDefaults() {
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.TickInterval <= 0 {
		c.TickInterval = defaultTickInterval
	}
	if c.Retries <= 0 {
		c.Retries = defaultRetries
	}
	if c.SettleRetry <= 0 {
		c.SettleRetry = defaultSettleRetry
	}
}
