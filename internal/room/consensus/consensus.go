// Package consensus is the word association game: every round the players
// answer a category and win together when all answers match.
package consensus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bloops-games/partyroom/internal/content"
	"github.com/bloops-games/partyroom/internal/room"
)

const (
	Root        = "rooms"
	MaxPlayers  = 8
	MinPlayers  = 2
	RoundTime   = 30
	MatchPoints = 10

	settleBase      = 2 * time.Second
	settlePerPlayer = 500 * time.Millisecond
)

type State struct {
	room.Room
	Category           string            `json:"category"`
	Round              int               `json:"round"`
	Streak             int               `json:"streak"`
	Answers            map[string]string `json:"answers,omitempty"`
	PreviousCategories []string          `json:"previousCategories,omitempty"`
	LastRoundSuccess   bool              `json:"lastRoundSuccess"`
}

type Rules struct{}

var _ room.Rules = Rules{}

func (Rules) Kind() room.Kind {
	return room.KindConsensus
}

func (Rules) Root() string {
	return Root
}

func (Rules) MaxPlayers() int {
	return MaxPlayers
}

func (Rules) NewRoom(code, language string, now time.Time) room.State {
	return &State{
		Room: room.Room{
			Code:      code,
			Phase:     room.PhaseLobby,
			Language:  language,
			CreatedAt: now.UnixMilli(),
		},
	}
}

func (Rules) Decode(raw interface{}) (room.State, error) {
	var s State
	if err := room.Decode(raw, &s); err != nil {
		return nil, err
	}
	if s.Answers == nil {
		s.Answers = map[string]string{}
	}
	return &s, nil
}

func cast(s room.State) *State {
	return s.(*State)
}

// answered reports whether every present player has an answer.
func (s *State) answered() bool {
	if len(s.Players) == 0 {
		return false
	}
	for id := range s.Players {
		if _, ok := s.Answers[id]; !ok {
			return false
		}
	}
	return true
}

// matched reports a unanimous normalized answer from every present player.
func (s *State) matched() bool {
	var first string
	for id := range s.Players {
		a := room.Normalize(s.Answers[id])
		if a == "" {
			return false
		}
		if first == "" {
			first = a
		} else if a != first {
			return false
		}
	}
	return first != ""
}

func (Rules) Transition(rs room.State, ev room.EventKind) (room.Patch, error) {
	s := cast(rs)

	switch s.Phase {
	case room.PhasePlaying:
		if ev == room.EventTimerExpired || s.Timer <= 0 || s.answered() {
			return room.Patch{"gameState": room.PhaseRevealing, "timer": 0}, nil
		}
	case room.PhaseRevealing:
		if ev != room.EventSettle {
			break
		}

		patch := room.Patch{"gameState": room.PhaseResults}
		if s.matched() {
			patch["streak"] = s.Streak + 1
			patch["lastRoundSuccess"] = true
			for id, p := range s.Players {
				patch[room.PlayerPath(id)+"/score"] = p.Score + MatchPoints
			}
		} else {
			patch["streak"] = 0
			patch["lastRoundSuccess"] = false
		}
		return patch, nil
	}

	return nil, room.ErrNoOp
}

func (Rules) Settle(rs room.State) (time.Duration, bool) {
	s := cast(rs)
	if s.Phase != room.PhaseRevealing {
		return 0, false
	}
	return settleBase + time.Duration(len(s.Players))*settlePerPlayer, true
}

func (Rules) Timed(rs room.State) bool {
	return cast(rs).Phase == room.PhasePlaying
}

func (Rules) Submit(rs room.State, playerID string, in room.Intent) (room.Patch, error) {
	s := cast(rs)

	if in.Kind != room.IntentAnswer {
		return nil, room.ErrInvalidIntent
	}
	if s.Phase != room.PhasePlaying {
		return nil, room.ErrWrongPhase
	}
	if _, ok := s.Players[playerID]; !ok {
		return nil, room.ErrNotFound
	}
	if _, ok := s.Answers[playerID]; ok {
		return nil, room.ErrDoubleSubmission
	}

	answer := strings.TrimSpace(in.Text)
	if answer == "" {
		return nil, room.ErrInvalidIntent
	}

	return room.Patch{"answers/" + playerID: answer}, nil
}

func (r Rules) Command(ctx context.Context, rs room.State, cmd room.Command, gen content.Generator) (room.Patch, error) {
	s := cast(rs)

	switch cmd.Kind {
	case room.CommandStart:
		if s.Phase != room.PhaseLobby {
			return nil, room.ErrWrongPhase
		}
		if len(s.Players) < MinPlayers {
			return nil, fmt.Errorf("need %d players: %w", MinPlayers, room.ErrInvalidIntent)
		}
		return r.round(ctx, s, 1, s.PreviousCategories, gen)
	case room.CommandNextRound:
		if s.Phase != room.PhaseResults {
			return nil, room.ErrWrongPhase
		}
		previous := append(append([]string{}, s.PreviousCategories...), s.Category)
		return r.round(ctx, s, s.Round+1, previous, gen)
	case room.CommandSetLanguage:
		if cmd.Language == "" {
			return nil, room.ErrInvalidIntent
		}
		return room.Patch{"language": cmd.Language}, nil
	}

	return nil, room.ErrInvalidIntent
}

func (Rules) round(ctx context.Context, s *State, round int, previous []string, gen content.Generator) (room.Patch, error) {
	rate := 0.5
	if round > 1 {
		rate = 0
		if s.LastRoundSuccess {
			rate = 1
		}
	}

	resp, err := gen.Category(ctx, content.CategoryRequest{
		PreviousCategories: previous,
		SuccessRate:        rate,
		Language:           s.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("generate category: %w", err)
	}

	return room.Patch{
		"gameState":          room.PhasePlaying,
		"round":              round,
		"timer":              RoundTime,
		"answers":            nil,
		"category":           resp.Category,
		"previousCategories": previous,
	}, nil
}

func (Rules) Leave(_ room.State, playerID string) room.Patch {
	return room.Patch{"answers/" + playerID: nil}
}
