package playback

import "testing"

func TestStateMachineTransitions(t *testing.T) {
	sm := newStateMachine()

	var changes [][2]State
	sm.onChange = func(from, to State) { changes = append(changes, [2]State{from, to}) }

	steps := []struct {
		to   State
		want bool
	}{
		{StatePlaying, false}, // must start first
		{StateStarting, true},
		{StatePlaying, true},
		{StatePaused, true},
		{StateEnded, false}, // paused audio cannot end
		{StatePlaying, true},
		{StateEnded, true},
		{StatePlaying, false},
		{StateIdle, true},
	}
	for i, step := range steps {
		if got := sm.transition(step.to); got != step.want {
			t.Errorf("step %d: transition(%s) = %v, want %v", i, step.to, got, step.want)
		}
	}
	if len(changes) != 6 {
		t.Errorf("onChange fired %d times, want 6", len(changes))
	}
	if changes[0] != [2]State{StateIdle, StateStarting} {
		t.Errorf("first change = %v", changes[0])
	}
}

func TestStateMachineSettle(t *testing.T) {
	tests := []struct {
		name     string
		from     []State
		terminal State
	}{
		{"stop while starting", []State{StateStarting}, StateStopped},
		{"stop while paused", []State{StateStarting, StatePlaying, StatePaused}, StateStopped},
		{"error while playing", []State{StateStarting, StatePlaying}, StateError},
		{"already idle", nil, StateStopped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := newStateMachine()
			for _, s := range tt.from {
				if !sm.transition(s) {
					t.Fatalf("setup transition to %s failed", s)
				}
			}
			sm.settle(tt.terminal)
			if sm.current != StateIdle {
				t.Errorf("state after settle = %s, want idle", sm.current)
			}
		})
	}
}

func TestStateString(t *testing.T) {
	if StatePaused.String() != "paused" || State(99).String() != "unknown" {
		t.Error("unexpected state names")
	}
	if !StateStarting.Active() || StateEnded.Active() {
		t.Error("unexpected Active() results")
	}
}
