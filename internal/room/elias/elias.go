// Package elias is the clue giving game played in pairs: one partner explains
// words, the other guesses, and the pair scores correct minus skipped words.
package elias

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/bloops-games/partyroom/internal/content"
	"github.com/bloops-games/partyroom/internal/room"
)

const (
	Root               = "elias"
	MaxPlayers         = 12
	RoundTime          = 60
	WordsPerRound      = 50
	DefaultTargetScore = 30
)

type Pair struct {
	ID          string `json:"id"`
	Player1ID   string `json:"player1Id"`
	Player2ID   string `json:"player2Id"`
	Score       int    `json:"score"`
	ClueGiverID string `json:"clueGiverId,omitempty"`
	GuesserID   string `json:"guesserId,omitempty"`
}

func (p Pair) Has(playerID string) bool {
	return p.Player1ID == playerID || p.Player2ID == playerID
}

type State struct {
	room.Room
	Pairs            map[string]Pair   `json:"pairs,omitempty"`
	TargetScore      int               `json:"targetScore"`
	Words            []string          `json:"words,omitempty"`
	PreviousWords    []string          `json:"previousWords,omitempty"`
	CurrentWordIndex int               `json:"currentWordIndex"`
	RoundSuccesses   int               `json:"roundSuccesses"`
	RoundFails       int               `json:"roundFails"`
	CurrentPairIndex int               `json:"currentPairIndex"`
	CurrentPairID    string            `json:"currentPairId"`
	LastTurnByPair   map[string]string `json:"lastTurnByPair,omitempty"`
}

// OrderedPairs returns pairs in creation order.
func (s *State) OrderedPairs() []Pair {
	out := make([]Pair, 0, len(s.Pairs))
	for _, p := range s.Pairs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return room.Less(out[i].ID, out[j].ID)
	})
	return out
}

// CurrentPair returns the pair playing the current round.
func (s *State) CurrentPair() (Pair, bool) {
	p, ok := s.Pairs[s.CurrentPairID]
	return p, ok
}

type Rules struct{}

var _ room.Rules = Rules{}

func (Rules) Kind() room.Kind {
	return room.KindElias
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
		TargetScore: DefaultTargetScore,
	}
}

func (Rules) Decode(raw interface{}) (room.State, error) {
	var s State
	if err := room.Decode(raw, &s); err != nil {
		return nil, err
	}
	if s.Pairs == nil {
		s.Pairs = map[string]Pair{}
	}
	for id, p := range s.Pairs {
		if p.ID == "" {
			p.ID = id
			s.Pairs[id] = p
		}
	}
	if s.LastTurnByPair == nil {
		s.LastTurnByPair = map[string]string{}
	}
	if s.TargetScore <= 0 {
		s.TargetScore = DefaultTargetScore
	}
	return &s, nil
}

func cast(s room.State) *State {
	return s.(*State)
}

// broken lists pairs with a member who left the room.
func (s *State) broken() []string {
	var out []string
	for _, p := range s.OrderedPairs() {
		_, ok1 := s.Players[p.Player1ID]
		_, ok2 := s.Players[p.Player2ID]
		if !ok1 || !ok2 {
			out = append(out, p.ID)
		}
	}
	return out
}

func (s *State) endRound() room.Patch {
	patch := room.Patch{"timer": 0, "gameState": room.PhaseSummary}

	pair, ok := s.CurrentPair()
	if !ok {
		return patch
	}

	score := pair.Score + s.RoundSuccesses - s.RoundFails
	if score < 0 {
		score = 0
	}
	patch["pairs/"+pair.ID+"/score"] = score
	if score >= s.TargetScore {
		patch["gameState"] = room.PhaseGameOver
	}

	return patch
}

func (Rules) Transition(rs room.State, ev room.EventKind) (room.Patch, error) {
	s := cast(rs)

	switch s.Phase {
	case room.PhasePlaying:
		_, ok := s.CurrentPair()
		if ev == room.EventTimerExpired || s.Timer <= 0 || s.CurrentWordIndex >= len(s.Words) || !ok {
			return s.endRound(), nil
		}
	case room.PhaseLobby, room.PhaseSummary:
		if broken := s.broken(); len(broken) > 0 {
			patch := room.Patch{}
			for _, id := range broken {
				patch["pairs/"+id] = nil
				patch["lastTurnByPair/"+id] = nil
			}
			return patch, nil
		}
	}

	return nil, room.ErrNoOp
}

func (Rules) Settle(room.State) (time.Duration, bool) {
	return 0, false
}

func (Rules) Timed(rs room.State) bool {
	return cast(rs).Phase == room.PhasePlaying
}

func (Rules) Submit(rs room.State, playerID string, in room.Intent) (room.Patch, error) {
	s := cast(rs)

	if in.Kind != room.IntentMark {
		return nil, room.ErrInvalidIntent
	}
	if s.Phase != room.PhasePlaying || s.CurrentWordIndex >= len(s.Words) {
		return nil, room.ErrWrongPhase
	}

	pair, ok := s.CurrentPair()
	if !ok || pair.ClueGiverID != playerID {
		return nil, room.ErrNotYourTurn
	}

	patch := room.Patch{"currentWordIndex": s.CurrentWordIndex + 1}
	if in.Success {
		patch["roundSuccesses"] = s.RoundSuccesses + 1
	} else {
		patch["roundFails"] = s.RoundFails + 1
	}

	return patch, nil
}

func (r Rules) Command(ctx context.Context, rs room.State, cmd room.Command, gen content.Generator) (room.Patch, error) {
	s := cast(rs)

	switch cmd.Kind {
	case room.CommandStart:
		if s.Phase != room.PhaseLobby {
			return nil, room.ErrWrongPhase
		}
		if len(s.Pairs) == 0 {
			return nil, fmt.Errorf("need a pair: %w", room.ErrInvalidIntent)
		}
		return r.round(ctx, s, 0, gen)
	case room.CommandNextRound:
		if s.Phase != room.PhaseSummary {
			return nil, room.ErrWrongPhase
		}
		if len(s.Pairs) == 0 {
			return nil, fmt.Errorf("need a pair: %w", room.ErrInvalidIntent)
		}
		return r.round(ctx, s, (s.CurrentPairIndex+1)%len(s.Pairs), gen)
	case room.CommandPlayAgain:
		if s.Phase != room.PhaseGameOver {
			return nil, room.ErrWrongPhase
		}
		patch := room.Patch{
			"gameState":        room.PhaseLobby,
			"timer":            0,
			"words":            nil,
			"currentWordIndex": 0,
			"roundSuccesses":   0,
			"roundFails":       0,
			"currentPairIndex": 0,
			"currentPairId":    "",
			"lastTurnByPair":   nil,
		}
		for id := range s.Pairs {
			patch["pairs/"+id+"/score"] = 0
		}
		return patch, nil
	case room.CommandSetLanguage:
		if cmd.Language == "" {
			return nil, room.ErrInvalidIntent
		}
		return room.Patch{"language": cmd.Language}, nil
	case room.CommandSetTargetScore:
		if s.Phase != room.PhaseLobby {
			return nil, room.ErrWrongPhase
		}
		if cmd.Number <= 0 {
			return nil, room.ErrInvalidIntent
		}
		return room.Patch{"targetScore": cmd.Number}, nil
	case room.CommandCreatePair:
		return createPair(s, cmd)
	case room.CommandRemovePair:
		if s.Phase != room.PhaseLobby {
			return nil, room.ErrWrongPhase
		}
		if _, ok := s.Pairs[cmd.PairID]; !ok {
			return nil, room.ErrInvalidIntent
		}
		return room.Patch{"pairs/" + cmd.PairID: nil, "lastTurnByPair/" + cmd.PairID: nil}, nil
	}

	return nil, room.ErrInvalidIntent
}

func createPair(s *State, cmd room.Command) (room.Patch, error) {
	if s.Phase != room.PhaseLobby {
		return nil, room.ErrWrongPhase
	}
	if len(cmd.PlayerIDs) != 2 || cmd.PlayerIDs[0] == cmd.PlayerIDs[1] {
		return nil, room.ErrInvalidIntent
	}

	for _, id := range cmd.PlayerIDs {
		if _, ok := s.Players[id]; !ok {
			return nil, fmt.Errorf("player %s: %w", id, room.ErrInvalidIntent)
		}
		for _, p := range s.Pairs {
			if p.Has(id) {
				return nil, fmt.Errorf("player %s already paired: %w", id, room.ErrInvalidIntent)
			}
		}
	}

	id := room.NewID("pair", cmd.Now, func(id string) bool {
		_, ok := s.Pairs[id]
		return ok
	})

	return room.Patch{"pairs/" + id: Pair{
		ID:        id,
		Player1ID: cmd.PlayerIDs[0],
		Player2ID: cmd.PlayerIDs[1],
	}}, nil
}

// round starts the turn of the pair at index. Partners alternate as clue
// giver from one turn of the pair to the next.
func (Rules) round(ctx context.Context, s *State, index int, gen content.Generator) (room.Patch, error) {
	pairs := s.OrderedPairs()
	pair := pairs[index]

	clueGiver, guesser := pair.Player1ID, pair.Player2ID
	if last, ok := s.LastTurnByPair[pair.ID]; ok && last == pair.Player1ID {
		clueGiver, guesser = pair.Player2ID, pair.Player1ID
	}

	resp, err := gen.Words(ctx, content.WordsRequest{
		PreviousWords: s.PreviousWords,
		Language:      s.Language,
		Count:         WordsPerRound,
	})
	if err != nil {
		return nil, fmt.Errorf("generate words: %w", err)
	}

	return room.Patch{
		"gameState":                         room.PhasePlaying,
		"timer":                             RoundTime,
		"words":                             resp.Words,
		"currentWordIndex":                  0,
		"roundSuccesses":                    0,
		"roundFails":                        0,
		"currentPairIndex":                  index,
		"currentPairId":                     pair.ID,
		"previousWords":                     append(append([]string{}, s.PreviousWords...), resp.Words...),
		"lastTurnByPair/" + pair.ID:         clueGiver,
		"pairs/" + pair.ID + "/clueGiverId": clueGiver,
		"pairs/" + pair.ID + "/guesserId":   guesser,
	}, nil
}

func (Rules) Leave(rs room.State, playerID string) room.Patch {
	s := cast(rs)
	patch := room.Patch{}
	for id, p := range s.Pairs {
		if p.Has(playerID) {
			patch["pairs/"+id] = nil
			patch["lastTurnByPair/"+id] = nil
		}
	}
	return patch
}
