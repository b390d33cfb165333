package playback

// State is the playback session state.
type State int

const (
	// StateIdle means nothing is active.
	StateIdle State = iota
	// StateLoading means a source is being resolved for the chosen line.
	StateLoading
	// StatePlayingLocal means a local feed is producing sound.
	StatePlayingLocal
	// StatePlayingConference means audio plays remotely into the call and
	// progress is simulated.
	StatePlayingConference
	// StatePaused means local playback is paused mid-line.
	StatePaused
	// StateError marks a failed attempt. It is terminal for the attempt
	// only; the session immediately returns to Idle and is retryable.
	StateError
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlayingLocal:
		return "playing-local"
	case StatePlayingConference:
		return "playing-conference"
	case StatePaused:
		return "paused"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Mode distinguishes the two playback realities behind the uniform state
// machine.
type Mode string

const (
	// ModeLocal plays through the local audio device with real position
	// and duration.
	ModeLocal Mode = "local"

	// ModeConference plays through the conference bridge with estimated
	// progress and no local media events.
	ModeConference Mode = "conference"
)

// Surface is the UI context a session serves. It decides which mode a play
// request resolves to: table and modal views preview locally, the active
// call view relays into the conference.
type Surface int

const (
	// SurfaceLocal previews lines on the local device.
	SurfaceLocal Surface = iota
	// SurfaceConference injects lines into the live call.
	SurfaceConference
)

// validTransitions encodes the session state machine. Transitions outside
// this map indicate a programming error and are rejected.
var validTransitions = map[State][]State{
	StateIdle:              {StateLoading},
	StateLoading:           {StatePlayingLocal, StatePlayingConference, StateError, StateIdle},
	StatePlayingLocal:      {StatePaused, StateIdle, StateError},
	StatePlayingConference: {StateIdle, StateError},
	StatePaused:            {StatePlayingLocal, StateIdle, StateError},
	StateError:             {StateIdle},
}

// canTransition reports whether from -> to is a legal edge.
func canTransition(from, to State) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
