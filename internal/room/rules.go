package room

import (
	"context"
	"time"

	"github.com/bloops-games/partyroom/internal/content"
)

// Patch is a multi-path write relative to the room document. A nil value
// deletes the path.
type Patch map[string]interface{}

func (p Patch) Merge(other Patch) Patch {
	for k, v := range other {
		p[k] = v
	}
	return p
}

type EventKind uint8

const (
	// EventSnapshot asks whether the current document completes its phase.
	EventSnapshot EventKind = iota + 1
	// EventTimerExpired is raised when a timed phase reaches zero.
	EventTimerExpired
	// EventSettle fires once the settle delay of a phase has passed.
	EventSettle
)

type IntentKind uint8

const (
	IntentAnswer IntentKind = iota + 1
	IntentVote
	IntentWord
	IntentMark
)

// Intent is a player scoped action.
type Intent struct {
	Kind    IntentKind
	Text    string
	Target  string
	Success bool
}

type CommandKind uint8

const (
	CommandStart CommandKind = iota + 1
	CommandNextRound
	CommandPlayAgain
	CommandSetLanguage
	CommandSetTargetScore
	CommandSetTotalRounds
	CommandCreatePair
	CommandRemovePair
)

// Command is a host only action.
type Command struct {
	Kind      CommandKind
	Language  string
	Number    int
	PlayerIDs []string
	PairID    string
	Now       time.Time
}

// Rules is one game variant: its document shape and state machine. All
// methods are pure apart from Command, which may fetch round content.
type Rules interface {
	Kind() Kind
	// Root is the store path holding every room of the variant.
	Root() string
	MaxPlayers() int
	NewRoom(code, language string, now time.Time) State
	Decode(raw interface{}) (State, error)
	// Transition returns the host patch due for the event or ErrNoOp.
	Transition(s State, ev EventKind) (Patch, error)
	// Settle reports a delay after which EventSettle is due in the current phase.
	Settle(s State) (time.Duration, bool)
	// Timed reports whether the current phase counts the timer down.
	Timed(s State) bool
	Submit(s State, playerID string, in Intent) (Patch, error)
	Command(ctx context.Context, s State, cmd Command, gen content.Generator) (Patch, error)
	// Leave returns the variant records to drop along with a player.
	Leave(s State, playerID string) Patch
}

// Path joins a room document path under the variant root.
func Path(rules Rules, code string) string {
	return rules.Root() + "/" + code
}

// PlayerPath is the document relative path of a player record.
func PlayerPath(id string) string {
	return "players/" + id
}
