// Package riddle is the impostor game: everybody but one player knows the
// secret word, and the room votes out whoever seems not to.
package riddle

import (
	"context"
	"fmt"
	"time"

	"github.com/bloops-games/partyroom/internal/content"
	"github.com/bloops-games/partyroom/internal/room"
	"github.com/valyala/fastrand"
)

const (
	Root           = "impostor-riddles"
	MaxPlayers     = 8
	MinPlayers     = 3
	DiscussionTime = 600

	WinnerImpostor = "impostor"
	WinnerKnowers  = "knowers"
)

type State struct {
	room.Room
	Category      string   `json:"category"`
	SecretWord    string   `json:"secretWord"`
	Winner        string   `json:"winner,omitempty"`
	PreviousWords []string `json:"previousWords,omitempty"`
}

// Impostor returns the id of the impostor, if still present.
func (s *State) Impostor() (string, bool) {
	for id, p := range s.Players {
		if p.IsImpostor {
			return id, true
		}
	}
	return "", false
}

func New() *Rules {
	return &Rules{pick: func(n int) int {
		return int(fastrand.Uint32n(uint32(n)))
	}}
}

type Rules struct {
	pick func(n int) int
}

var _ room.Rules = (*Rules)(nil)

func (*Rules) Kind() room.Kind {
	return room.KindRiddle
}

func (*Rules) Root() string {
	return Root
}

func (*Rules) MaxPlayers() int {
	return MaxPlayers
}

func (*Rules) NewRoom(code, language string, now time.Time) room.State {
	return &State{
		Room: room.Room{
			Code:      code,
			Phase:     room.PhaseLobby,
			Language:  language,
			CreatedAt: now.UnixMilli(),
		},
	}
}

func (*Rules) Decode(raw interface{}) (room.State, error) {
	var s State
	if err := room.Decode(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func cast(s room.State) *State {
	return s.(*State)
}

func (*Rules) Transition(rs room.State, ev room.EventKind) (room.Patch, error) {
	s := cast(rs)
	if s.Phase != room.PhaseVoting {
		return nil, room.ErrNoOp
	}

	if ev == room.EventTimerExpired || s.Timer <= 0 {
		return room.Patch{"gameState": room.PhaseReveal, "winner": WinnerImpostor, "timer": 0}, nil
	}

	ordered := s.Ordered()
	if len(ordered) == 0 {
		return nil, room.ErrNoOp
	}

	voters := make([]string, 0, len(ordered))
	votes := make(map[string]string, len(ordered))
	for _, p := range ordered {
		if p.VotedFor == "" {
			return nil, room.ErrNoOp
		}
		voters = append(voters, p.ID)
		votes[p.ID] = p.VotedFor
	}

	winner := WinnerImpostor
	mostVoted, _ := room.Tally(voters, votes)
	if impostor, ok := s.Impostor(); ok && impostor == mostVoted {
		winner = WinnerKnowers
	}

	return room.Patch{"gameState": room.PhaseReveal, "winner": winner, "timer": 0}, nil
}

func (*Rules) Settle(room.State) (time.Duration, bool) {
	return 0, false
}

func (*Rules) Timed(rs room.State) bool {
	return cast(rs).Phase == room.PhaseVoting
}

func (*Rules) Submit(rs room.State, playerID string, in room.Intent) (room.Patch, error) {
	s := cast(rs)

	if in.Kind != room.IntentVote {
		return nil, room.ErrInvalidIntent
	}
	if s.Phase != room.PhaseVoting {
		return nil, room.ErrWrongPhase
	}

	p, ok := s.Players[playerID]
	if !ok {
		return nil, room.ErrNotFound
	}
	if p.VotedFor != "" {
		return nil, room.ErrDoubleSubmission
	}
	if _, ok := s.Players[in.Target]; !ok || in.Target == playerID {
		return nil, room.ErrInvalidIntent
	}

	return room.Patch{room.PlayerPath(playerID) + "/votedFor": in.Target}, nil
}

func (r *Rules) Command(ctx context.Context, rs room.State, cmd room.Command, gen content.Generator) (room.Patch, error) {
	s := cast(rs)

	switch cmd.Kind {
	case room.CommandStart:
		if s.Phase != room.PhaseLobby {
			return nil, room.ErrWrongPhase
		}
		if len(s.Players) < MinPlayers {
			return nil, fmt.Errorf("need %d players: %w", MinPlayers, room.ErrInvalidIntent)
		}
		return r.start(ctx, s, gen)
	case room.CommandPlayAgain:
		if s.Phase != room.PhaseReveal {
			return nil, room.ErrWrongPhase
		}
		patch := room.Patch{
			"gameState":  room.PhaseLobby,
			"category":   "",
			"secretWord": "",
			"timer":      0,
			"winner":     nil,
		}
		for id := range s.Players {
			patch[room.PlayerPath(id)+"/isImpostor"] = nil
			patch[room.PlayerPath(id)+"/votedFor"] = nil
		}
		return patch, nil
	case room.CommandSetLanguage:
		if cmd.Language == "" {
			return nil, room.ErrInvalidIntent
		}
		return room.Patch{"language": cmd.Language}, nil
	}

	return nil, room.ErrInvalidIntent
}

func (r *Rules) start(ctx context.Context, s *State, gen content.Generator) (room.Patch, error) {
	resp, err := gen.Riddle(ctx, content.RiddleRequest{
		PreviousWords: s.PreviousWords,
		Language:      s.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("generate riddle: %w", err)
	}

	ordered := s.Ordered()
	impostor := ordered[r.pick(len(ordered))].ID

	patch := room.Patch{
		"gameState":     room.PhaseVoting,
		"category":      resp.Category,
		"secretWord":    resp.SecretWord,
		"timer":         DiscussionTime,
		"winner":        nil,
		"previousWords": append(append([]string{}, s.PreviousWords...), resp.SecretWord),
	}
	for _, p := range ordered {
		patch[room.PlayerPath(p.ID)+"/votedFor"] = nil
		if p.ID == impostor {
			patch[room.PlayerPath(p.ID)+"/isImpostor"] = true
		} else {
			patch[room.PlayerPath(p.ID)+"/isImpostor"] = nil
		}
	}

	return patch, nil
}

func (*Rules) Leave(room.State, string) room.Patch {
	return nil
}
