package narrate

// State is the playback state of a narration session.
type State int

const (
	// StateIdle indicates no active session.
	StateIdle State = iota
	// StatePlaying indicates audio is being produced.
	StatePlaying
	// StatePaused indicates playback is suspended mid-utterance.
	StatePaused
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// StateMachine validates playback state transitions against a fixed table.
// It is not safe for concurrent use; the controller serializes access.
type StateMachine struct {
	current     State
	transitions map[State][]State
}

// NewStateMachine creates a state machine starting in StateIdle.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: StateIdle,
		transitions: map[State][]State{
			StateIdle:    {StatePlaying},
			StatePlaying: {StatePaused, StateIdle},
			StatePaused:  {StatePlaying, StateIdle},
		},
	}
}

// Current returns the current state.
func (sm *StateMachine) Current() State {
	return sm.current
}

// CanTransition reports whether moving to the given state is valid. A
// transition to the current state is not a transition at all and reports
// false.
func (sm *StateMachine) CanTransition(to State) bool {
	for _, s := range sm.transitions[sm.current] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves to the given state if the table allows it.
func (sm *StateMachine) Transition(to State) bool {
	if !sm.CanTransition(to) {
		return false
	}
	sm.current = to
	return true
}
