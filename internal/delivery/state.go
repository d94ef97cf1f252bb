package delivery

import "fmt"

// State is a step of the delivery state machine. States are ordered; a run
// only ever moves forward, or to Failed.
type State int

const (
	Launching State = iota
	AwaitingLogin
	OpeningConversation
	TypingGreeting
	AwaitingMenuWindow
	SelectingMenuOption
	AwaitingSendWindow
	TypingPayload
	LingerBeforeClose
	Closed
	Failed
)

var stateNames = [...]string{
	Launching:           "launching",
	AwaitingLogin:       "awaiting_login",
	OpeningConversation: "opening_conversation",
	TypingGreeting:      "typing_greeting",
	AwaitingMenuWindow:  "awaiting_menu_window",
	SelectingMenuOption: "selecting_menu_option",
	AwaitingSendWindow:  "awaiting_send_window",
	TypingPayload:       "typing_payload",
	LingerBeforeClose:   "linger_before_close",
	Closed:              "closed",
	Failed:              "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool {
	return s == Closed || s == Failed
}

// CanTransition reports whether a run in state from may move to to.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == Failed {
		return true
	}
	return to > from && to <= Closed
}
