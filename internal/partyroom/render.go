package partyroom

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/bloops-games/partyroom/internal/coordinator"
	"github.com/bloops-games/partyroom/internal/room"
	"github.com/bloops-games/partyroom/internal/room/consensus"
	"github.com/bloops-games/partyroom/internal/room/elias"
	"github.com/bloops-games/partyroom/internal/room/riddle"
	"github.com/bloops-games/partyroom/internal/room/wordplay"
	"github.com/enescakir/emoji"
)

var builders = sync.Pool{
	New: func() interface{} {
		return &strings.Builder{}
	},
}

func getBuilder() *strings.Builder {
	return builders.Get().(*strings.Builder)
}

func putBuilder(b *strings.Builder) {
	b.Reset()
	builders.Put(b)
}

func playerName(r *room.Room, id string) string {
	if p, ok := r.Player(id); ok {
		return p.Name
	}
	return "someone who left"
}

// Render draws the view as plain text and returns the numbering it used.
func Render(v coordinator.View) (string, Listing) {
	var l Listing
	if v.Err != nil {
		return fmt.Sprintf("%s %v\n", emoji.CrossMark, v.Err), l
	}
	if v.State == nil {
		return "", l
	}

	buf := getBuilder()
	defer putBuilder(buf)

	r := v.State.Common()
	fmt.Fprintf(buf, "%s Room %s  %s", emoji.VideoGame, r.Code, r.Phase)
	if r.Timer > 0 {
		fmt.Fprintf(buf, "  %s %d", emoji.Stopwatch, r.Timer)
	}
	buf.WriteString("\n")

	for i, p := range r.Ordered() {
		l.Players = append(l.Players, p.ID)
		fmt.Fprintf(buf, "%d. %s", i+1, p.Name)
		if p.IsHost {
			buf.WriteString(" " + emoji.Star.String())
		}
		if p.ID == v.Self.ID {
			buf.WriteString(" (you)")
		}
		if p.Score > 0 {
			buf.WriteString("  " + strconv.Itoa(p.Score))
		}
		buf.WriteString("\n")
	}

	switch s := v.State.(type) {
	case *consensus.State:
		renderConsensus(buf, s, v.Self)
	case *elias.State:
		l.Pairs = renderElias(buf, s, v.Self)
	case *riddle.State:
		renderRiddle(buf, s, v.Self)
	case *wordplay.State:
		l.Sentences = renderWordplay(buf, s, v.Self)
	}

	if v.IsHost() {
		switch r.Phase {
		case room.PhaseLobby:
			buf.WriteString("host: start, lang <code>\n")
		case room.PhaseResults, room.PhaseSummary:
			buf.WriteString("host: next\n")
		case room.PhaseGameOver, room.PhaseReveal:
			buf.WriteString("host: again\n")
		}
	}

	return buf.String(), l
}

func renderConsensus(buf *strings.Builder, s *consensus.State, self room.Player) {
	switch s.Phase {
	case room.PhasePlaying:
		fmt.Fprintf(buf, "Round %d: %s\n", s.Round, s.Category)
		fmt.Fprintf(buf, "answers %d/%d\n", len(s.Answers), len(s.Players))
		if a, ok := s.Answers[self.ID]; ok {
			fmt.Fprintf(buf, "your answer: %s\n", a)
		} else {
			buf.WriteString("answer <text>\n")
		}
	case room.PhaseRevealing, room.PhaseResults:
		fmt.Fprintf(buf, "Round %d: %s\n", s.Round, s.Category)
		for _, p := range s.Ordered() {
			fmt.Fprintf(buf, "  %s: %s\n", p.Name, s.Answers[p.ID])
		}
		if s.Phase == room.PhaseResults {
			if s.LastRoundSuccess {
				fmt.Fprintf(buf, "%s everyone matched, streak %d\n", emoji.PartyPopper, s.Streak)
			} else {
				fmt.Fprintf(buf, "%s no match\n", emoji.ThumbsDown)
			}
		}
	}
}

func renderElias(buf *strings.Builder, s *elias.State, self room.Player) []string {
	var ids []string
	current, _ := s.CurrentPair()

	fmt.Fprintf(buf, "target %d\n", s.TargetScore)
	for i, p := range s.OrderedPairs() {
		ids = append(ids, p.ID)
		marker := " "
		if p.ID == current.ID && s.Phase == room.PhasePlaying {
			marker = ">"
		}
		fmt.Fprintf(buf, "%s%d. %s + %s  %d\n", marker, i+1, playerName(&s.Room, p.Player1ID), playerName(&s.Room, p.Player2ID), p.Score)
	}

	switch s.Phase {
	case room.PhaseLobby:
		buf.WriteString("host: pair <n> <m>, unpair <n>, target <n>\n")
	case room.PhasePlaying:
		fmt.Fprintf(buf, "%s %d  %s %d\n", emoji.CheckMarkButton, s.RoundSuccesses, emoji.CrossMark, s.RoundFails)
		switch self.ID {
		case current.ClueGiverID:
			if s.CurrentWordIndex < len(s.Words) {
				fmt.Fprintf(buf, "explain: %s\n", s.Words[s.CurrentWordIndex])
			}
			buf.WriteString("mark ok|skip\n")
		case current.GuesserID:
			fmt.Fprintf(buf, "guess what %s explains\n", playerName(&s.Room, current.ClueGiverID))
		}
	case room.PhaseGameOver:
		for _, p := range s.OrderedPairs() {
			if p.Score >= s.TargetScore {
				fmt.Fprintf(buf, "%s %s + %s win\n", emoji.Trophy, playerName(&s.Room, p.Player1ID), playerName(&s.Room, p.Player2ID))
			}
		}
	}

	return ids
}

func renderRiddle(buf *strings.Builder, s *riddle.State, self room.Player) {
	switch s.Phase {
	case room.PhaseVoting:
		fmt.Fprintf(buf, "category: %s\n", s.Category)
		if self.IsImpostor {
			fmt.Fprintf(buf, "%s you are the impostor\n", emoji.Ninja)
		} else {
			fmt.Fprintf(buf, "secret word: %s\n", s.SecretWord)
		}
		var voted int
		for _, p := range s.Players {
			if p.VotedFor != "" {
				voted++
			}
		}
		fmt.Fprintf(buf, "votes %d/%d\n", voted, len(s.Players))
		if self.VotedFor == "" {
			buf.WriteString("vote <n>\n")
		}
	case room.PhaseReveal:
		impostor := "the impostor left"
		if id, ok := s.Impostor(); ok {
			impostor = playerName(&s.Room, id)
		}
		fmt.Fprintf(buf, "impostor: %s, word: %s\n", impostor, s.SecretWord)
		if s.Winner == riddle.WinnerKnowers {
			fmt.Fprintf(buf, "%s the impostor was caught\n", emoji.Trophy)
		} else {
			fmt.Fprintf(buf, "%s the impostor got away\n", emoji.Ninja)
		}
	}
}

func renderWordplay(buf *strings.Builder, s *wordplay.State, self room.Player) []string {
	var ids []string

	switch s.Phase {
	case room.PhaseLobby:
		fmt.Fprintf(buf, "rounds %d\nhost: rounds <n>\n", s.TotalRounds)
	case room.PhaseWriting:
		fmt.Fprintf(buf, "round %d/%d, %s writes\n", s.CurrentRound, s.TotalRounds, playerName(&s.Room, s.CurrentTurnPlayerID))
		for i, sentence := range s.OrderedSentences() {
			marker := " "
			if i == s.CurrentSentenceIndex {
				marker = ">"
			}
			fmt.Fprintf(buf, "%s %s\n", marker, sentence.Text())
		}
		if self.ID == s.CurrentTurnPlayerID {
			sentences := s.OrderedSentences()
			if s.CurrentSentenceIndex < len(sentences) {
				blanks := sentences[s.CurrentSentenceIndex].Blanks
				if s.CurrentBlankIndex < len(blanks) {
					fmt.Fprintf(buf, "%s word <%s>\n", emoji.Pen, blanks[s.CurrentBlankIndex].Type)
				}
			}
		}
	case room.PhaseVoting:
		for i, sentence := range s.OrderedSentences() {
			ids = append(ids, sentence.ID)
			fmt.Fprintf(buf, "%d. %s\n", i+1, sentence.Text())
		}
		fmt.Fprintf(buf, "votes %d/%d\n", len(s.Votes), len(s.Players))
		if _, ok := s.Votes[self.ID]; !ok {
			buf.WriteString("vote <n>\n")
		}
	case room.PhaseResults:
		if s.LastRoundWinner != nil {
			fmt.Fprintf(buf, "%s funniest: %s\n", emoji.Trophy, s.LastRoundWinner.Name)
		}
	case room.PhaseGameOver:
		fmt.Fprintf(buf, "%s game over after %d rounds\n", emoji.ChequeredFlag, s.TotalRounds)
	}

	return ids
}
