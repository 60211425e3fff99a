package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/bloops-games/partyroom/internal/database"
	"github.com/bloops-games/partyroom/internal/database/roomdoc"
	"github.com/bloops-games/partyroom/internal/logging"
	"github.com/bloops-games/partyroom/internal/partyroom"
	"github.com/bloops-games/partyroom/internal/rooms"
	"github.com/bloops-games/partyroom/internal/server"
	"github.com/bloops-games/partyroom/internal/shutdown"
	"github.com/bloops-games/partyroom/internal/syncstore"
	"github.com/bloops-games/partyroom/internal/syncstore/wsstore"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/sync/errgroup"
)

var version string

func main() {
	_, _ = fmt.Fprintf(os.Stdout, "partyroom server %s\n", version)

	ctx, done := shutdown.New()
	defer done()

	config := partyroom.Config{}
	if err := envconfig.Process("", &config); err != nil {
		logging.DefaultLogger().Fatalf("processing the config: %v", err)
	}

	logger := logging.NewLogger(config.Debug)
	ctx = logging.WithLogger(ctx, logger)

	if err := realMain(ctx, config); err != nil {
		logger.Fatalf("main.realMain: %v", err)
	}
}

func realMain(ctx context.Context, config partyroom.Config) error {
	logger := logging.FromContext(ctx).Named("main.realMain")

	db, err := database.NewFromEnv(ctx, &config.DB)
	if err != nil {
		return fmt.Errorf("new database from env: %w", err)
	}

	defer db.Close(ctx)

	hub := syncstore.NewHub(
		syncstore.WithPersister(roomdoc.New(db), 0),
		syncstore.WithRestore(rooms.Restore),
	)
	n, err := hub.Load()
	if err != nil {
		return fmt.Errorf("hub load: %w", err)
	}
	logger.Infof("restored %d rooms", n)

	ws, err := wsstore.NewServer(hub, &config.WS)
	if err != nil {
		return fmt.Errorf("wsstore.NewServer: %w", err)
	}

	srv, err := server.New(config.Port)
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}

	// the server's own session, used for room creation and reaping
	admin := hub.Session()
	defer admin.Close()

	mux := http.NewServeMux()
	mux.Handle("/health", server.HandleHealth(ctx))
	mux.Handle("/ws", ws.Handle(ctx))
	mux.Handle("/rooms", partyroom.HandleCreateRoom(ctx, admin))

	logger.Infof("listening on %s", srv.Addr())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ServeHTTP(ctx, &http.Server{Handler: mux})
	})
	g.Go(func() error {
		return hub.RunFlusher(ctx, config.FlushInterval)
	})
	g.Go(func() error {
		return rooms.NewReaper(admin, config.Reaper, rooms.Variants()).Run(ctx)
	})

	go func() {
		if err := http.ListenAndServe(":"+config.ProfPort, nil); err != nil {
			logger.Errorf("pprof default server: %v", err)
		}
	}()

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run: %w", err)
	}

	return nil
}
