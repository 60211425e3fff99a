// Package room holds the room document model shared by every game variant:
// players, phases, patches, ordering and vote tallies.
package room

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNotFound         = fmt.Errorf("room not found")
	ErrCapacity         = fmt.Errorf("room is full")
	ErrStale            = fmt.Errorf("stale precondition")
	ErrDoubleSubmission = fmt.Errorf("already submitted")
	ErrWrongPhase       = fmt.Errorf("wrong phase")
	ErrNotHost          = fmt.Errorf("not the host")
	ErrNotYourTurn      = fmt.Errorf("not your turn")
	ErrInvalidIntent    = fmt.Errorf("invalid intent")
	ErrNoOp             = fmt.Errorf("nothing to do")
)

type Phase string

const (
	PhaseLobby     Phase = "lobby"
	PhasePlaying   Phase = "playing"
	PhaseRevealing Phase = "revealing"
	PhaseResults   Phase = "results"
	PhaseSummary   Phase = "summary"
	PhaseGameOver  Phase = "gameOver"
	PhaseVoting    Phase = "voting"
	PhaseReveal    Phase = "reveal"
	PhaseWriting   Phase = "writing"
)

type Kind string

const (
	KindConsensus Kind = "consensus"
	KindElias     Kind = "elias"
	KindRiddle    Kind = "riddle"
	KindWordplay  Kind = "wordplay"
)

type Player struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsHost     bool   `json:"isHost"`
	Score      int    `json:"score"`
	IsImpostor bool   `json:"isImpostor,omitempty"`
	VotedFor   string `json:"votedFor,omitempty"`
	Avatar     string `json:"avatar,omitempty"`
}

// Room is the part of the document every variant shares. Variants embed it.
type Room struct {
	Code      string            `json:"roomCode"`
	Phase     Phase             `json:"gameState"`
	Language  string            `json:"language"`
	Timer     int               `json:"timer"`
	CreatedAt int64             `json:"createdAt"`
	Players   map[string]Player `json:"players,omitempty"`
}

// State is a decoded variant document.
type State interface {
	Common() *Room
}

func (r *Room) Common() *Room {
	return r
}

// Ordered returns the players in join order.
func (r *Room) Ordered() []Player {
	out := make([]Player, 0, len(r.Players))
	for _, p := range r.Players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return Less(out[i].ID, out[j].ID)
	})
	return out
}

func (r *Room) Player(id string) (Player, bool) {
	p, ok := r.Players[id]
	return p, ok
}

// Host returns the first player flagged as host.
func (r *Room) Host() (Player, bool) {
	for _, p := range r.Ordered() {
		if p.IsHost {
			return p, true
		}
	}
	return Player{}, false
}

func (r *Room) IsHost(id string) bool {
	p, ok := r.Players[id]
	return ok && p.IsHost
}

// Stamp extracts the creation timestamp embedded in ids like player_<nanos>.
func Stamp(id string) int64 {
	i := strings.LastIndexByte(id, '_')
	n, err := strconv.ParseInt(id[i+1:], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// Less orders ids by embedded timestamp, then lexically.
func Less(a, b string) bool {
	sa, sb := Stamp(a), Stamp(b)
	if sa != sb {
		return sa < sb
	}
	return a < b
}

// NewID returns prefix_<unix nanos>, bumped past any id taken reports as used.
func NewID(prefix string, now time.Time, taken func(string) bool) string {
	n := now.UnixNano()
	for {
		id := prefix + "_" + strconv.FormatInt(n, 10)
		if taken == nil || !taken(id) {
			return id
		}
		n++
	}
}

// Normalize prepares free text answers for comparison.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Decode converts a raw snapshot value into a variant document. Missing
// collections stay nil; callers default them.
func Decode(raw interface{}, out State) error {
	if raw == nil {
		return ErrNotFound
	}

	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("unmarshal snapshot: %w", err)
	}

	r := out.Common()
	if r.Players == nil {
		r.Players = map[string]Player{}
	}
	for id, p := range r.Players {
		if p.ID == "" {
			p.ID = id
			r.Players[id] = p
		}
	}

	return nil
}

// Tally counts votes cast by voters, in voter order. The winner is the first
// target to reach the highest count.
func Tally(voters []string, votes map[string]string) (string, int) {
	counts := make(map[string]int, len(votes))
	var winner string
	var best int
	for _, v := range voters {
		target, ok := votes[v]
		if !ok || target == "" {
			continue
		}
		counts[target]++
		if c := counts[target]; c > best {
			best = c
			winner = target
		}
	}
	return winner, best
}
