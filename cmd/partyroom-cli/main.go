package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/bloops-games/partyroom/internal/content"
	"github.com/bloops-games/partyroom/internal/coordinator"
	"github.com/bloops-games/partyroom/internal/logging"
	"github.com/bloops-games/partyroom/internal/partyroom"
	"github.com/bloops-games/partyroom/internal/room"
	"github.com/bloops-games/partyroom/internal/roomcode"
	"github.com/bloops-games/partyroom/internal/rooms"
	"github.com/bloops-games/partyroom/internal/shutdown"
	"github.com/bloops-games/partyroom/internal/syncstore/wsstore"
	"github.com/enescakir/emoji"
	"github.com/kelseyhightower/envconfig"
)

var version string

func main() {
	_, _ = fmt.Fprintf(os.Stdout, "%s partyroom %s\n", emoji.VideoGame, version)

	ctx, done := shutdown.New()
	defer done()

	config := partyroom.ClientConfig{}
	if err := envconfig.Process("", &config); err != nil {
		logging.DefaultLogger().Fatalf("processing the config: %v", err)
	}

	logger := logging.NewLogger(config.Debug)
	ctx = logging.WithLogger(ctx, logger)

	if err := realMain(ctx, config); err != nil {
		logger.Fatalf("main.realMain: %v", err)
	}
}

func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

func prompt(ctx context.Context, lines <-chan string, question string) (string, error) {
	_, _ = fmt.Fprintln(os.Stdout, question)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-lines:
		if !ok {
			return "", io.EOF
		}
		return strings.TrimSpace(line), nil
	}
}

func realMain(ctx context.Context, config partyroom.ClientConfig) error {
	logger := logging.FromContext(ctx).Named("main.realMain")
	lines := readLines(os.Stdin)

	var name string
	for name == "" {
		var err error
		if name, err = prompt(ctx, lines, "Enter your name:"); err != nil {
			return fmt.Errorf("read name: %w", err)
		}
	}

	code, err := prompt(ctx, lines, "Enter room code, or leave empty to create a room:")
	if err != nil {
		return fmt.Errorf("read code: %w", err)
	}

	var rules room.Rules
	if code == "" {
		variant, err := prompt(ctx, lines, "Choose a game: consensus, elias, riddle, wordplay")
		if err != nil {
			return fmt.Errorf("read variant: %w", err)
		}
		resp, err := partyroom.CreateRoom(ctx, http.DefaultClient, config.ServerURL, partyroom.CreateRoomRequest{
			Variant:  strings.ToLower(variant),
			Language: config.Language,
		})
		if err != nil {
			return fmt.Errorf("create room: %w", err)
		}
		if rules, err = rooms.Lookup(resp.Variant); err != nil {
			return fmt.Errorf("created room: %w", err)
		}
		code = resp.RoomCode
		_, _ = fmt.Fprintf(os.Stdout, "Room code: %s\n", code)
	}

	code, ok := roomcode.Parse(code)
	if !ok {
		return fmt.Errorf("malformed room code")
	}

	url, err := partyroom.WebsocketURL(config.ServerURL)
	if err != nil {
		return fmt.Errorf("websocket url: %w", err)
	}

	store, err := wsstore.Dial(ctx, url)
	if err != nil {
		return fmt.Errorf("dial store: %w", err)
	}
	defer store.Close()

	if rules == nil {
		if rules, err = rooms.Find(ctx, store, code); err != nil {
			return fmt.Errorf("find room %s: %w", code, err)
		}
	}

	var gen content.Generator = content.Static{}
	if config.Content.URL != "" {
		gen = content.NewClient(&config.Content)
	}
	fallback, err := content.WithFallback(gen)
	if err != nil {
		return fmt.Errorf("content fallback: %w", err)
	}

	c := coordinator.New(coordinator.Config{
		Store:        store,
		Rules:        rules,
		Code:         code,
		Content:      fallback,
		TickInterval: config.TickInterval,
	})

	if _, err := c.Join(ctx, name); err != nil {
		if errors.Is(err, room.ErrCapacity) {
			return fmt.Errorf("room %s is full", code)
		}
		return fmt.Errorf("join: %w", err)
	}
	if err := c.Run(ctx); err != nil {
		return fmt.Errorf("coordinator run: %w", err)
	}
	defer c.Stop()

	var listing partyroom.Listing

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-store.Done():
			return fmt.Errorf("connection to %s lost", config.ServerURL)
		case <-c.Done():
			return nil
		case v := <-c.Views():
			var out string
			out, listing = partyroom.Render(v)
			_, _ = fmt.Fprint(os.Stdout, "\n"+out)
		case line, ok := <-lines:
			if !ok {
				return c.Leave(ctx)
			}
			if strings.TrimSpace(line) == "" {
				continue
			}

			action, err := partyroom.Parse(line, listing)
			if err != nil {
				_, _ = fmt.Fprintf(os.Stdout, "%s %v\n", emoji.CrossMark, err)
				continue
			}

			switch {
			case action.Leave:
				return c.Leave(ctx)
			case action.Intent != nil:
				err = c.Submit(ctx, *action.Intent)
			case action.Command != nil:
				err = c.Command(ctx, *action.Command)
			}
			if err != nil {
				logger.Debugf("action %q: %v", line, err)
				_, _ = fmt.Fprintf(os.Stdout, "%s %v\n", emoji.CrossMark, err)
			}
		}
	}
}
