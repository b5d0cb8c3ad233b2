package narrate

import "testing"

// TestStateMachineTransitions tests the transition table.
func TestStateMachineTransitions(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
		want bool
	}{
		{"idle to playing", StateIdle, StatePlaying, true},
		{"idle to paused", StateIdle, StatePaused, false},
		{"playing to paused", StatePlaying, StatePaused, true},
		{"playing to idle", StatePlaying, StateIdle, true},
		{"paused to playing", StatePaused, StatePlaying, true},
		{"paused to idle", StatePaused, StateIdle, true},
		{"playing to playing", StatePlaying, StatePlaying, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := NewStateMachine()
			sm.current = tt.from

			if got := sm.Transition(tt.to); got != tt.want {
				t.Errorf("Transition(%v -> %v) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
			wantState := tt.from
			if tt.want {
				wantState = tt.to
			}
			if sm.Current() != wantState {
				t.Errorf("Current() = %v, want %v", sm.Current(), wantState)
			}
		})
	}
}

// TestStateString tests state names.
func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StatePlaying, "playing"},
		{StatePaused, "paused"},
		{State(42), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

// TestClampRate tests rate bounding.
func TestClampRate(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{1.0, 1.0},
		{0.25, MinRate},
		{5.0, MaxRate},
		{0, DefaultRate},
		{-1, DefaultRate},
		{MinRate, MinRate},
		{MaxRate, MaxRate},
	}

	for _, tt := range tests {
		if got := ClampRate(tt.in); got != tt.want {
			t.Errorf("ClampRate(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
