package playback

// State is the lifecycle state of the controller.
type State int

const (
	// StateIdle indicates nothing is resolving or playing.
	StateIdle State = iota
	// StateStarting indicates audio is being resolved for a new session.
	StateStarting
	// StatePlaying indicates audio is being produced.
	StatePlaying
	// StatePaused indicates the active session is paused.
	StatePaused
	// StateStopped indicates the session was stopped or preempted.
	StateStopped
	// StateEnded indicates the session finished naturally.
	StateEnded
	// StateError indicates the session failed.
	StateError
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	case StateEnded:
		return "ended"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Active reports whether a session is resolving or producing audio.
func (s State) Active() bool {
	return s == StateStarting || s == StatePlaying || s == StatePaused
}

// stateMachine enforces the allowed transitions. It is not safe for
// concurrent use; the controller guards it with its own mutex.
type stateMachine struct {
	current     State
	transitions map[State][]State
	onChange    func(from, to State)
}

func newStateMachine() *stateMachine {
	return &stateMachine{
		current: StateIdle,
		transitions: map[State][]State{
			StateIdle:     {StateStarting},
			StateStarting: {StatePlaying, StateError, StateStopped},
			StatePlaying:  {StatePaused, StateEnded, StateError, StateStopped},
			StatePaused:   {StatePlaying, StateError, StateStopped},
			StateStopped:  {StateIdle},
			StateEnded:    {StateIdle},
			StateError:    {StateIdle},
		},
	}
}

// transition moves to the given state and reports whether it was allowed.
func (sm *stateMachine) transition(to State) bool {
	valid := false
	for _, s := range sm.transitions[sm.current] {
		if s == to {
			valid = true
			break
		}
	}
	if !valid {
		return false
	}

	from := sm.current
	sm.current = to
	if sm.onChange != nil {
		sm.onChange(from, to)
	}
	return true
}

// settle walks a finished or interrupted session back to idle through the
// given terminal state.
func (sm *stateMachine) settle(terminal State) {
	if sm.current.Active() {
		sm.transition(terminal)
	}
	sm.transition(StateIdle)
}
