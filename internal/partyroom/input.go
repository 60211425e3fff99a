package partyroom

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bloops-games/partyroom/internal/room"
)

var ErrUnknownInput = fmt.Errorf("unknown input")

// Action is one parsed line of player input. Exactly one of Intent, Command
// and Leave is set. Targets given as numbers refer to the rendered listing.
type Action struct {
	Intent  *room.Intent
	Command *room.Command
	Leave   bool
}

// Listing holds ids in the order they were rendered, so players can refer to
// them by number.
type Listing struct {
	Players   []string
	Pairs     []string
	Sentences []string
}

// Parse reads a line such as "answer sun" or "pair 1 2".
func Parse(line string, l Listing) (Action, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Action{}, ErrUnknownInput
	}

	verb, args := strings.ToLower(fields[0]), fields[1:]
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))

	command := func(c room.Command) (Action, error) {
		return Action{Command: &c}, nil
	}
	intent := func(in room.Intent) (Action, error) {
		return Action{Intent: &in}, nil
	}

	switch verb {
	case "start":
		return command(room.Command{Kind: room.CommandStart})
	case "next":
		return command(room.Command{Kind: room.CommandNextRound})
	case "again":
		return command(room.Command{Kind: room.CommandPlayAgain})
	case "leave":
		return Action{Leave: true}, nil
	case "answer", "word":
		if rest == "" {
			return Action{}, fmt.Errorf("%s needs text: %w", verb, ErrUnknownInput)
		}
		kind := room.IntentAnswer
		if verb == "word" {
			kind = room.IntentWord
		}
		return intent(room.Intent{Kind: kind, Text: rest})
	case "vote":
		if len(args) != 1 {
			return Action{}, fmt.Errorf("vote needs a target: %w", ErrUnknownInput)
		}
		targets := l.Players
		if len(l.Sentences) > 0 {
			targets = l.Sentences
		}
		target, err := resolve(args[0], targets)
		if err != nil {
			return Action{}, err
		}
		return intent(room.Intent{Kind: room.IntentVote, Target: target})
	case "mark":
		if len(args) != 1 {
			return Action{}, fmt.Errorf("mark needs ok or skip: %w", ErrUnknownInput)
		}
		switch strings.ToLower(args[0]) {
		case "ok":
			return intent(room.Intent{Kind: room.IntentMark, Success: true})
		case "skip":
			return intent(room.Intent{Kind: room.IntentMark, Success: false})
		}
		return Action{}, fmt.Errorf("mark needs ok or skip: %w", ErrUnknownInput)
	case "pair":
		if len(args) != 2 {
			return Action{}, fmt.Errorf("pair needs two players: %w", ErrUnknownInput)
		}
		ids := make([]string, 0, len(args))
		for _, a := range args {
			id, err := resolve(a, l.Players)
			if err != nil {
				return Action{}, err
			}
			ids = append(ids, id)
		}
		return command(room.Command{Kind: room.CommandCreatePair, PlayerIDs: ids})
	case "unpair":
		if len(args) != 1 {
			return Action{}, fmt.Errorf("unpair needs a pair: %w", ErrUnknownInput)
		}
		id, err := resolve(args[0], l.Pairs)
		if err != nil {
			return Action{}, err
		}
		return command(room.Command{Kind: room.CommandRemovePair, PairID: id})
	case "lang":
		if len(args) != 1 {
			return Action{}, fmt.Errorf("lang needs a code: %w", ErrUnknownInput)
		}
		return command(room.Command{Kind: room.CommandSetLanguage, Language: strings.ToLower(args[0])})
	case "target", "rounds":
		if len(args) != 1 {
			return Action{}, fmt.Errorf("%s needs a number: %w", verb, ErrUnknownInput)
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return Action{}, fmt.Errorf("%s needs a positive number: %w", verb, ErrUnknownInput)
		}
		kind := room.CommandSetTargetScore
		if verb == "rounds" {
			kind = room.CommandSetTotalRounds
		}
		return command(room.Command{Kind: kind, Number: n})
	}

	return Action{}, fmt.Errorf("%q: %w", verb, ErrUnknownInput)
}

func resolve(arg string, targets []string) (string, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return arg, nil
	}
	if n < 1 || n > len(targets) {
		return "", fmt.Errorf("no entry %d: %w", n, ErrUnknownInput)
	}
	return targets[n-1], nil
}
