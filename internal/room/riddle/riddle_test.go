package riddle

import (
	"context"
	"errors"
	"testing"

	"github.com/bloops-games/partyroom/internal/content"
	"github.com/bloops-games/partyroom/internal/room"
	"github.com/google/go-cmp/cmp"
)

func newState(votes map[string]string) *State {
	players := map[string]room.Player{
		"player_1": {ID: "player_1", IsHost: true},
		"player_2": {ID: "player_2", IsImpostor: true},
		"player_3": {ID: "player_3"},
	}
	for id, target := range votes {
		p := players[id]
		p.VotedFor = target
		players[id] = p
	}

	return &State{
		Room: room.Room{
			Code:    "ABCD",
			Phase:   room.PhaseVoting,
			Timer:   300,
			Players: players,
		},
		Category:   "Fruits",
		SecretWord: "Apple",
	}
}

func TestTransition(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		votes  map[string]string
		timer  int
		winner string
	}{
		{
			name:   "knowers_catch_impostor",
			votes:  map[string]string{"player_1": "player_2", "player_2": "player_3", "player_3": "player_2"},
			timer:  300,
			winner: WinnerKnowers,
		},
		{
			name:   "wrong_player_voted_out",
			votes:  map[string]string{"player_1": "player_3", "player_2": "player_3", "player_3": "player_2"},
			timer:  300,
			winner: WinnerImpostor,
		},
		{
			name:   "three_way_tie_goes_to_first_reached",
			votes:  map[string]string{"player_1": "player_2", "player_2": "player_3", "player_3": "player_1"},
			timer:  300,
			winner: WinnerKnowers,
		},
		{
			name:   "timeout",
			votes:  map[string]string{"player_1": "player_2"},
			timer:  0,
			winner: WinnerImpostor,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := newState(tc.votes)
			s.Timer = tc.timer

			patch, err := New().Transition(s, room.EventSnapshot)
			if err != nil {
				t.Fatal(err)
			}

			want := room.Patch{"gameState": room.PhaseReveal, "winner": tc.winner, "timer": 0}
			if diff := cmp.Diff(want, patch); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTransitionWaitsForVotes(t *testing.T) {
	t.Parallel()

	s := newState(map[string]string{"player_1": "player_2"})
	if _, err := New().Transition(s, room.EventSnapshot); !errors.Is(err, room.ErrNoOp) {
		t.Errorf("expected ErrNoOp, got %v", err)
	}

	patch, err := New().Transition(s, room.EventTimerExpired)
	if err != nil {
		t.Fatal(err)
	}
	if patch["winner"] != WinnerImpostor {
		t.Errorf("expected impostor to win on timeout, got %v", patch["winner"])
	}
}

func TestVote(t *testing.T) {
	t.Parallel()

	s := newState(map[string]string{"player_1": "player_2"})
	r := New()

	patch, err := r.Submit(s, "player_3", room.Intent{Kind: room.IntentVote, Target: "player_1"})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(room.Patch{"players/player_3/votedFor": "player_1"}, patch); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	if _, err := r.Submit(s, "player_1", room.Intent{Kind: room.IntentVote, Target: "player_3"}); !errors.Is(err, room.ErrDoubleSubmission) {
		t.Errorf("expected ErrDoubleSubmission, got %v", err)
	}
	if _, err := r.Submit(s, "player_3", room.Intent{Kind: room.IntentVote, Target: "player_9"}); !errors.Is(err, room.ErrInvalidIntent) {
		t.Errorf("expected ErrInvalidIntent, got %v", err)
	}
}

func TestStart(t *testing.T) {
	t.Parallel()

	s := newState(nil)
	s.Phase = room.PhaseLobby
	s.PreviousWords = []string{"Giraffe"}

	r := &Rules{pick: func(n int) int { return n - 1 }}
	patch, err := r.Command(context.Background(), s, room.Command{Kind: room.CommandStart}, content.Static{})
	if err != nil {
		t.Fatal(err)
	}

	want := room.Patch{
		"gameState":                   room.PhaseVoting,
		"category":                    "Sports",
		"secretWord":                  "Tennis",
		"timer":                       DiscussionTime,
		"winner":                      nil,
		"previousWords":               []string{"Giraffe", "Tennis"},
		"players/player_1/votedFor":   nil,
		"players/player_1/isImpostor": nil,
		"players/player_2/votedFor":   nil,
		"players/player_2/isImpostor": nil,
		"players/player_3/votedFor":   nil,
		"players/player_3/isImpostor": true,
	}
	if diff := cmp.Diff(want, patch); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}
