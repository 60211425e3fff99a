package partyroom

import (
	"time"

	"github.com/bloops-games/partyroom/internal/content"
	"github.com/bloops-games/partyroom/internal/database"
	"github.com/bloops-games/partyroom/internal/rooms"
	"github.com/bloops-games/partyroom/internal/syncstore/wsstore"
)

// Config is the server configuration.
type Config struct {
	Debug         bool          `envconfig:"PARTYROOM_DEBUG" default:"false"`
	Port          string        `envconfig:"PARTYROOM_PORT" default:"8080"`
	ProfPort      string        `envconfig:"PARTYROOM_PROF_PORT" default:"8081"`
	FlushInterval time.Duration `envconfig:"PARTYROOM_FLUSH_INTERVAL" default:"5s"`
	DB            database.Config
	WS            wsstore.Config
	Reaper        rooms.ReaperConfig
}

// ClientConfig is the configuration of a playing client.
type ClientConfig struct {
	Debug        bool          `envconfig:"PARTYROOM_DEBUG" default:"false"`
	ServerURL    string        `envconfig:"PARTYROOM_SERVER_URL" default:"http://localhost:8080"`
	Language     string        `envconfig:"PARTYROOM_LANGUAGE" default:"en"`
	TickInterval time.Duration `envconfig:"PARTYROOM_TICK_INTERVAL" default:"1s"`
	Content      content.Config
}
