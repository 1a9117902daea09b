package dialog

import (
	"github.com/demobites/voice-order/internal/menu"
)

// Phase is the guided-ordering step a call is in. Deterministic routing
// runs before the resolver while a guided phase is active.
type Phase string

const (
	PhaseChooseCategory  Phase = "choose_category"
	PhaseChooseItem      Phase = "choose_item"
	PhaseChooseModifiers Phase = "choose_modifiers"
	PhaseCollecting      Phase = "collecting"
	PhaseConfirm         Phase = "confirm"
)

// Turn is one conversation entry kept for resolver context.
type Turn struct {
	Role    string
	Content string
}

// PendingModifiers tracks the modifier groups still to be asked about for
// the item being configured.
type PendingModifiers struct {
	Item       string
	GroupsLeft []string
	Chosen     menu.ChosenModifiers
}

// State is the per-call ordering state.
type State struct {
	Order            menu.Order
	Phase            Phase
	SelectedCategory string
	SelectedItem     string
	Pending          *PendingModifiers
	AppliedDiscounts []string
	LastAction       string
	History          []Turn
}

func NewState() *State {
	return &State{Phase: PhaseChooseCategory}
}

// reset returns the state to a fresh session in place.
func (s *State) reset() {
	*s = State{Phase: PhaseChooseCategory}
}

// recordTurn keeps a short rolling window of conversation history: the
// resolver only ever sees the most recent exchange.
func (s *State) recordTurn(user, assistant string) {
	if n := len(s.History); n > 1 {
		s.History = s.History[n-1:]
	}
	s.History = append(s.History, Turn{Role: "user", Content: user}, Turn{Role: "assistant", Content: assistant})
}

// lastAssistant returns the previous assistant line, if any.
func (s *State) lastAssistant() string {
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].Role == "assistant" {
			return s.History[i].Content
		}
	}
	return ""
}
