package playback

import "errors"

// Error taxonomy for playback attempts. Recoverable conditions resolve into
// UI affordances; the session always returns to Idle so the user can retry
// without restarting.
var (
	// ErrNoAudioAvailable means the line has no attached asset and
	// generation was never requested. Recoverable: prompts the user to
	// generate.
	ErrNoAudioAvailable = errors.New("no audio available for this line")

	// ErrAudioPending means generation is in flight; the poller will
	// announce readiness.
	ErrAudioPending = errors.New("audio generation still pending")

	// ErrPlaybackBlocked means the audio device refused playback (busy,
	// missing hardware). Surfaced as "no local audio", not logged as a
	// failure.
	ErrPlaybackBlocked = errors.New("local playback unavailable")

	// ErrPlaybackRuntime wraps decode or device failures mid-attempt.
	ErrPlaybackRuntime = errors.New("playback failed")

	// ErrBusyLoading rejects a Play while the previous Play is still
	// resolving its source; the state machine serializes attempts.
	ErrBusyLoading = errors.New("another line is still loading")
)
