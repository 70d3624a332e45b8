package peer

// State is the lifecycle of one peer session.
type State int

const (
	StateNew State = iota
	StateNegotiating
	StateConnected
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// transitions lists the states reachable from each state. Closed is reachable
// from everywhere and leads nowhere.
var transitions = map[State][]State{
	StateNew:         {StateNegotiating},
	StateNegotiating: {StateConnected, StateFailed},
	StateConnected:   {StateFailed},
	StateFailed:      {StateNegotiating, StateConnected},
}

func canTransition(from, to State) bool {
	if from == StateClosed {
		return false
	}
	if to == StateClosed {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
