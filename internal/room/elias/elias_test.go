package elias

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bloops-games/partyroom/internal/content"
	"github.com/bloops-games/partyroom/internal/room"
	"github.com/google/go-cmp/cmp"
)

func newState() *State {
	return &State{
		Room: room.Room{
			Code:  "ABCD",
			Phase: room.PhasePlaying,
			Timer: 40,
			Players: map[string]room.Player{
				"player_1": {ID: "player_1", IsHost: true},
				"player_2": {ID: "player_2"},
				"player_3": {ID: "player_3"},
				"player_4": {ID: "player_4"},
			},
		},
		Pairs: map[string]Pair{
			"pair_1": {ID: "pair_1", Player1ID: "player_1", Player2ID: "player_2", Score: 3, ClueGiverID: "player_1", GuesserID: "player_2"},
			"pair_2": {ID: "pair_2", Player1ID: "player_3", Player2ID: "player_4", Score: 28},
		},
		TargetScore:    DefaultTargetScore,
		Words:          []string{"a", "b", "c"},
		CurrentPairID:  "pair_1",
		LastTurnByPair: map[string]string{"pair_1": "player_1"},
	}
}

func TestEndRoundScore(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		pair      string
		successes int
		fails     int
		score     int
		phase     room.Phase
	}{
		{name: "net_positive", pair: "pair_1", successes: 5, fails: 1, score: 7, phase: room.PhaseSummary},
		{name: "floored_at_zero", pair: "pair_1", successes: 0, fails: 9, score: 0, phase: room.PhaseSummary},
		{name: "reaches_target", pair: "pair_2", successes: 3, fails: 1, score: 30, phase: room.PhaseGameOver},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := newState()
			s.CurrentPairID = tc.pair
			s.RoundSuccesses = tc.successes
			s.RoundFails = tc.fails

			patch, err := Rules{}.Transition(s, room.EventTimerExpired)
			if err != nil {
				t.Fatal(err)
			}

			want := room.Patch{
				"timer":                       0,
				"gameState":                   tc.phase,
				"pairs/" + tc.pair + "/score": tc.score,
			}
			if diff := cmp.Diff(want, patch); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWordsExhaustedEndsRound(t *testing.T) {
	t.Parallel()

	s := newState()
	if _, err := (Rules{}).Transition(s, room.EventSnapshot); !errors.Is(err, room.ErrNoOp) {
		t.Fatalf("expected ErrNoOp mid round, got %v", err)
	}

	s.CurrentWordIndex = len(s.Words)
	patch, err := Rules{}.Transition(s, room.EventSnapshot)
	if err != nil {
		t.Fatal(err)
	}
	if patch["gameState"] != room.PhaseSummary {
		t.Errorf("expected summary, got %v", patch["gameState"])
	}
}

func TestMarkWord(t *testing.T) {
	t.Parallel()

	s := newState()
	s.CurrentWordIndex = 1
	s.RoundSuccesses = 1

	patch, err := Rules{}.Submit(s, "player_1", room.Intent{Kind: room.IntentMark, Success: true})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(room.Patch{"currentWordIndex": 2, "roundSuccesses": 2}, patch); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	patch, err = Rules{}.Submit(s, "player_1", room.Intent{Kind: room.IntentMark})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(room.Patch{"currentWordIndex": 2, "roundFails": 1}, patch); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	if _, err := (Rules{}).Submit(s, "player_2", room.Intent{Kind: room.IntentMark}); !errors.Is(err, room.ErrNotYourTurn) {
		t.Errorf("expected ErrNotYourTurn, got %v", err)
	}
}

func TestClueGiverAlternates(t *testing.T) {
	t.Parallel()

	s := newState()
	s.Phase = room.PhaseSummary
	s.CurrentPairIndex = 1

	patch, err := Rules{}.Command(context.Background(), s, room.Command{Kind: room.CommandNextRound}, content.Static{})
	if err != nil {
		t.Fatal(err)
	}

	if patch["currentPairId"] != "pair_1" || patch["currentPairIndex"] != 0 {
		t.Fatalf("expected pair_1 at index 0, got %v/%v", patch["currentPairId"], patch["currentPairIndex"])
	}
	if patch["pairs/pair_1/clueGiverId"] != "player_2" || patch["pairs/pair_1/guesserId"] != "player_1" {
		t.Errorf("expected player_2 to give clues after player_1, got %v", patch["pairs/pair_1/clueGiverId"])
	}
	if words := patch["words"].([]string); len(words) != WordsPerRound {
		t.Errorf("expected %d words, got %d", WordsPerRound, len(words))
	}
}

func TestPairs(t *testing.T) {
	t.Parallel()

	s := Rules{}.NewRoom("ABCD", "en", time.Now()).(*State)
	s.Players = map[string]room.Player{
		"player_1": {ID: "player_1", IsHost: true},
		"player_2": {ID: "player_2"},
		"player_3": {ID: "player_3"},
	}
	s.Pairs = map[string]Pair{
		"pair_5": {ID: "pair_5", Player1ID: "player_1", Player2ID: "player_2"},
	}

	ctx := context.Background()
	_, err := Rules{}.Command(ctx, s, room.Command{Kind: room.CommandCreatePair, PlayerIDs: []string{"player_2", "player_3"}, Now: time.Unix(0, 7)}, nil)
	if !errors.Is(err, room.ErrInvalidIntent) {
		t.Errorf("expected already paired player rejected, got %v", err)
	}

	delete(s.Pairs, "pair_5")
	patch, err := Rules{}.Command(ctx, s, room.Command{Kind: room.CommandCreatePair, PlayerIDs: []string{"player_2", "player_3"}, Now: time.Unix(0, 7)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := room.Patch{"pairs/pair_7": Pair{ID: "pair_7", Player1ID: "player_2", Player2ID: "player_3"}}
	if diff := cmp.Diff(want, patch); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	s.Pairs["pair_7"] = Pair{ID: "pair_7", Player1ID: "player_2", Player2ID: "player_3"}
	if diff := cmp.Diff(room.Patch{"pairs/pair_7": nil, "lastTurnByPair/pair_7": nil}, Rules{}.Leave(s, "player_3")); diff != "" {
		t.Errorf("leave mismatch (-want +got):\n%s", diff)
	}

	delete(s.Players, "player_3")
	patch, err = Rules{}.Transition(s, room.EventSnapshot)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(room.Patch{"pairs/pair_7": nil, "lastTurnByPair/pair_7": nil}, patch); diff != "" {
		t.Errorf("broken pair mismatch (-want +got):\n%s", diff)
	}
}
