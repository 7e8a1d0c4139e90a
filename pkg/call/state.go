package call

type State string

const (
	StateIdle              State = "idle"
	StateStarting          State = "starting"
	StateActiveHost        State = "active_host"
	StateActiveParticipant State = "active_participant"
	StateEnding            State = "ending"
	StateEnded             State = "ended"
)

func (s State) Active() bool {
	return s == StateActiveHost || s == StateActiveParticipant
}

// startable reports whether a new call may begin from this state.
func (s State) startable() bool {
	return s == StateIdle || s == StateEnded
}
