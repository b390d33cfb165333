//go:build nocgo
// +build nocgo

package audio

// NewDeviceContext is unavailable in nocgo builds; the registry falls back
// to degraded (silent) operation.
func NewDeviceContext() (Context, error) {
	return nil, ErrAudioUnavailable
}
