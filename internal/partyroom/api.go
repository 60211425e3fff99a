package partyroom

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bloops-games/partyroom/internal/logging"
	"github.com/bloops-games/partyroom/internal/rooms"
	"github.com/bloops-games/partyroom/internal/syncstore"
)

const (
	defaultLanguage = "en"
	maxRequestBody  = 1 << 10
)

type CreateRoomRequest struct {
	Variant  string `json:"variant"`
	Language string `json:"language"`
}

type CreateRoomResponse struct {
	RoomCode string `json:"roomCode"`
	Variant  string `json:"variant"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// HandleCreateRoom serves POST /rooms.
func HandleCreateRoom(ctx context.Context, store syncstore.Store) http.Handler {
	logger := logging.FromContext(ctx).Named("partyroom.HandleCreateRoom")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
			return
		}

		var req CreateRoomRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request"})
			return
		}
		if req.Language == "" {
			req.Language = defaultLanguage
		}

		rules, err := rooms.Lookup(req.Variant)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}

		code, err := rooms.Create(r.Context(), store, rules, req.Language, time.Now())
		if err != nil {
			logger.Errorf("create room: %v", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "can not create room"})
			return
		}

		logger.Infof("created %s room %s", req.Variant, code)
		writeJSON(w, http.StatusCreated, CreateRoomResponse{RoomCode: code, Variant: req.Variant})
	})
}

// CreateRoom asks the server at base to create a room.
func CreateRoom(ctx context.Context, client *http.Client, base string, req CreateRoomRequest) (CreateRoomResponse, error) {
	var out CreateRoomResponse

	body, err := json.Marshal(req)
	if err != nil {
		return out, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(base, "/")+"/rooms", bytes.NewReader(body))
	if err != nil {
		return out, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return out, fmt.Errorf("post rooms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		var e errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = resp.Status
		}
		return out, errors.New(e.Error)
	}

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decode response: %w", err)
	}

	return out, nil
}

// WebsocketURL turns the server base URL into the store endpoint.
func WebsocketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"

	return u.String(), nil
}
