// Package wordplay is the collaborative sentence game: players take turns
// filling the blanks of everybody's sentences, then vote for the best one.
package wordplay

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/bloops-games/partyroom/internal/content"
	"github.com/bloops-games/partyroom/internal/room"
)

const (
	Root               = "wordplay"
	MaxPlayers         = 15
	MinPlayers         = 2
	DefaultTotalRounds = 5
)

var blankRe = regexp.MustCompile(`\[(.*?)]`)

type Blank struct {
	Type     string `json:"type"`
	Value    string `json:"value,omitempty"`
	FilledBy string `json:"filledBy,omitempty"`
}

type Sentence struct {
	ID         string  `json:"id"`
	Template   string  `json:"template"`
	Blanks     []Blank `json:"blanks,omitempty"`
	IsComplete bool    `json:"isComplete"`
	AuthorID   string  `json:"authorId"`
}

// Text renders the template with filled blanks.
func (s Sentence) Text() string {
	i := -1
	return blankRe.ReplaceAllStringFunc(s.Template, func(m string) string {
		i++
		if i < len(s.Blanks) && s.Blanks[i].Value != "" {
			return s.Blanks[i].Value
		}
		return m
	})
}

// ParseTemplate builds an unfilled sentence from a template with [type]
// blank markers.
func ParseTemplate(id, authorID, template string) Sentence {
	s := Sentence{ID: id, Template: template, AuthorID: authorID}
	for _, m := range blankRe.FindAllStringSubmatch(template, -1) {
		s.Blanks = append(s.Blanks, Blank{Type: m[1]})
	}
	s.IsComplete = len(s.Blanks) == 0
	return s
}

type State struct {
	room.Room
	Sentences            map[string]Sentence `json:"sentences,omitempty"`
	CurrentRound         int                 `json:"currentRound"`
	TotalRounds          int                 `json:"totalRounds"`
	CurrentTurnPlayerID  string              `json:"currentTurnPlayerId"`
	CurrentSentenceIndex int                 `json:"currentSentenceIndex"`
	CurrentBlankIndex    int                 `json:"currentBlankIndex"`
	Votes                map[string]string   `json:"votes,omitempty"`
	LastRoundWinner      *room.Player        `json:"lastRoundWinner,omitempty"`
	PreviousTemplates    []string            `json:"previousTemplates,omitempty"`
}

// OrderedSentences returns sentences in author join order.
func (s *State) OrderedSentences() []Sentence {
	out := make([]Sentence, 0, len(s.Sentences))
	for _, v := range s.Sentences {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		return room.Less(out[i].ID, out[j].ID)
	})
	return out
}

func (s *State) complete() bool {
	if len(s.Sentences) == 0 {
		return false
	}
	for _, v := range s.Sentences {
		if !v.IsComplete {
			return false
		}
	}
	return true
}

// nextPlayer returns the present player following id in join order. id does
// not have to be present itself.
func (s *State) nextPlayer(id string) string {
	ordered := s.Ordered()
	if len(ordered) == 0 {
		return ""
	}
	for _, p := range ordered {
		if room.Less(id, p.ID) {
			return p.ID
		}
	}
	return ordered[0].ID
}

type Rules struct{}

var _ room.Rules = Rules{}

func (Rules) Kind() room.Kind {
	return room.KindWordplay
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
		TotalRounds: DefaultTotalRounds,
	}
}

func (Rules) Decode(raw interface{}) (room.State, error) {
	var s State
	if err := room.Decode(raw, &s); err != nil {
		return nil, err
	}
	if s.Sentences == nil {
		s.Sentences = map[string]Sentence{}
	}
	for id, v := range s.Sentences {
		if v.ID == "" {
			v.ID = id
			s.Sentences[id] = v
		}
	}
	if s.Votes == nil {
		s.Votes = map[string]string{}
	}
	if s.TotalRounds <= 0 {
		s.TotalRounds = DefaultTotalRounds
	}
	return &s, nil
}

func cast(s room.State) *State {
	return s.(*State)
}

func (Rules) Transition(rs room.State, _ room.EventKind) (room.Patch, error) {
	s := cast(rs)

	switch s.Phase {
	case room.PhaseWriting:
		if s.complete() {
			return room.Patch{"gameState": room.PhaseVoting, "currentTurnPlayerId": ""}, nil
		}
		if _, ok := s.Players[s.CurrentTurnPlayerID]; !ok && len(s.Players) > 0 {
			return room.Patch{"currentTurnPlayerId": s.nextPlayer(s.CurrentTurnPlayerID)}, nil
		}
	case room.PhaseVoting:
		return s.tally()
	}

	return nil, room.ErrNoOp
}

func (s *State) tally() (room.Patch, error) {
	ordered := s.Ordered()
	if len(ordered) == 0 {
		return nil, room.ErrNoOp
	}

	voters := make([]string, 0, len(ordered))
	for _, p := range ordered {
		if _, ok := s.Votes[p.ID]; !ok {
			return nil, room.ErrNoOp
		}
		voters = append(voters, p.ID)
	}

	patch := room.Patch{"gameState": room.PhaseResults, "lastRoundWinner": nil}

	best, _ := room.Tally(voters, s.Votes)
	sentence, ok := s.Sentences[best]
	if !ok {
		return patch, nil
	}
	author, ok := s.Players[sentence.AuthorID]
	if !ok {
		return patch, nil
	}

	author.Score++
	patch[room.PlayerPath(author.ID)+"/score"] = author.Score
	patch["lastRoundWinner"] = author

	return patch, nil
}

func (Rules) Settle(room.State) (time.Duration, bool) {
	return 0, false
}

func (Rules) Timed(room.State) bool {
	return false
}

func (Rules) Submit(rs room.State, playerID string, in room.Intent) (room.Patch, error) {
	s := cast(rs)

	if _, ok := s.Players[playerID]; !ok {
		return nil, room.ErrNotFound
	}

	switch in.Kind {
	case room.IntentWord:
		return s.fill(playerID, strings.TrimSpace(in.Text))
	case room.IntentVote:
		if s.Phase != room.PhaseVoting {
			return nil, room.ErrWrongPhase
		}
		if _, ok := s.Votes[playerID]; ok {
			return nil, room.ErrDoubleSubmission
		}
		if _, ok := s.Sentences[in.Target]; !ok {
			return nil, room.ErrInvalidIntent
		}
		return room.Patch{"votes/" + playerID: in.Target}, nil
	}

	return nil, room.ErrInvalidIntent
}

// fill writes word into the current blank and passes the turn on. Complete
// sentences are skipped; the host moves the room to voting once all are done.
func (s *State) fill(playerID, word string) (room.Patch, error) {
	if s.Phase != room.PhaseWriting {
		return nil, room.ErrWrongPhase
	}
	if s.CurrentTurnPlayerID != playerID {
		return nil, room.ErrNotYourTurn
	}
	if word == "" {
		return nil, room.ErrInvalidIntent
	}

	sentences := s.OrderedSentences()
	si, bi := s.CurrentSentenceIndex, s.CurrentBlankIndex
	if si >= len(sentences) || bi >= len(sentences[si].Blanks) || sentences[si].IsComplete {
		return nil, room.ErrStale
	}

	sentence := sentences[si]
	sentence.Blanks = append([]Blank(nil), sentence.Blanks...)
	sentence.Blanks[bi] = Blank{Type: sentence.Blanks[bi].Type, Value: word, FilledBy: playerID}

	bi++
	if bi >= len(sentence.Blanks) {
		sentence.IsComplete = true
		bi = 0
		si++
		for si < len(sentences) && sentences[si].IsComplete {
			si++
		}
	}

	return room.Patch{
		"sentences/" + sentence.ID: sentence,
		"currentSentenceIndex":     si,
		"currentBlankIndex":        bi,
		"currentTurnPlayerId":      s.nextPlayer(playerID),
	}, nil
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
		return r.round(ctx, s, gen)
	case room.CommandNextRound:
		if s.Phase != room.PhaseResults {
			return nil, room.ErrWrongPhase
		}
		if s.CurrentRound >= s.TotalRounds {
			return room.Patch{"gameState": room.PhaseGameOver}, nil
		}
		return r.round(ctx, s, gen)
	case room.CommandPlayAgain:
		if s.Phase != room.PhaseGameOver {
			return nil, room.ErrWrongPhase
		}
		patch := room.Patch{
			"gameState":            room.PhaseLobby,
			"currentRound":         0,
			"sentences":            nil,
			"votes":                nil,
			"lastRoundWinner":      nil,
			"currentTurnPlayerId":  "",
			"currentSentenceIndex": 0,
			"currentBlankIndex":    0,
		}
		for id := range s.Players {
			patch[room.PlayerPath(id)+"/score"] = 0
		}
		return patch, nil
	case room.CommandSetTotalRounds:
		if s.Phase != room.PhaseLobby {
			return nil, room.ErrWrongPhase
		}
		if cmd.Number <= 0 {
			return nil, room.ErrInvalidIntent
		}
		return room.Patch{"totalRounds": cmd.Number}, nil
	case room.CommandSetLanguage:
		if cmd.Language == "" {
			return nil, room.ErrInvalidIntent
		}
		return room.Patch{"language": cmd.Language}, nil
	}

	return nil, room.ErrInvalidIntent
}

// round deals one fresh sentence per player.
func (Rules) round(ctx context.Context, s *State, gen content.Generator) (room.Patch, error) {
	ordered := s.Ordered()
	previous := append([]string{}, s.PreviousTemplates...)
	sentences := make(map[string]Sentence, len(ordered))
	first := -1

	for i, p := range ordered {
		resp, err := gen.SentenceTemplate(ctx, content.SentenceRequest{
			PreviousTemplates: previous,
			Language:          s.Language,
		})
		if err != nil {
			return nil, fmt.Errorf("generate sentence: %w", err)
		}

		sentence := ParseTemplate(p.ID, p.ID, resp.Template)
		sentences[p.ID] = sentence
		previous = append(previous, resp.Template)
		if first < 0 && !sentence.IsComplete {
			first = i
		}
	}
	if first < 0 {
		first = 0
	}

	return room.Patch{
		"gameState":            room.PhaseWriting,
		"currentRound":         s.CurrentRound + 1,
		"sentences":            sentences,
		"currentTurnPlayerId":  ordered[0].ID,
		"currentSentenceIndex": first,
		"currentBlankIndex":    0,
		"votes":                nil,
		"lastRoundWinner":      nil,
		"previousTemplates":    previous,
	}, nil
}

func (Rules) Leave(_ room.State, playerID string) room.Patch {
	return room.Patch{"votes/" + playerID: nil}
}
