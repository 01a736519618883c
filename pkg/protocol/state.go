package protocol

// State is the per-connection protocol state.
type State int

const (
	StateConnected State = iota
	StateKeyExchanging
	StateKeyAssembled
	StateAuthenticating
	StateRejected
	StateAuthenticated
	StateCommandLoop
	StateClosed
)

var stateNames = map[State]string{
	StateConnected:      "connected",
	StateKeyExchanging:  "key-exchanging",
	StateKeyAssembled:   "key-assembled",
	StateAuthenticating: "authenticating",
	StateRejected:       "rejected",
	StateAuthenticated:  "authenticated",
	StateCommandLoop:    "command-loop",
	StateClosed:         "closed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateRejected || s == StateClosed
}

var transitions = map[State][]State{
	StateConnected:      {StateKeyExchanging},
	StateKeyExchanging:  {StateKeyAssembled},
	StateKeyAssembled:   {StateAuthenticating},
	StateAuthenticating: {StateRejected, StateAuthenticated},
	StateAuthenticated:  {StateCommandLoop},
	StateCommandLoop:    {},
}

// CanTransition reports whether from -> to is allowed. Every non-terminal
// state may fall through to Closed on an error.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateClosed {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
