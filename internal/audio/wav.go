package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrNotWAV is returned for payloads that are not RIFF/WAVE.
	ErrNotWAV = errors.New("payload is not a WAV file")

	// ErrUnsupportedWAV is returned for WAV encodings other than 16-bit PCM.
	ErrUnsupportedWAV = errors.New("unsupported WAV encoding")
)

// wavInfo describes the fmt chunk of a parsed file.
type wavInfo struct {
	channels   int
	sampleRate int
	bitDepth   int
}

// DecodeWAV parses a RIFF/WAVE payload and returns raw PCM normalized to the
// engine format (s16le, 44.1kHz, mono). Stereo input is downmixed; mismatched
// sample rates are resampled with linear interpolation, which is fine for
// speech. Generated assets from the backend are WAV s16le already, so the
// common path is a straight copy of the data chunk.
func DecodeWAV(payload []byte) ([]byte, error) {
	if len(payload) < 44 || string(payload[0:4]) != "RIFF" || string(payload[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}

	var info wavInfo
	var data []byte

	// Walk chunks; fmt must precede data per spec but be tolerant anyway.
	off := 12
	for off+8 <= len(payload) {
		id := string(payload[off : off+4])
		size := int(binary.LittleEndian.Uint32(payload[off+4 : off+8]))
		body := off + 8
		if body+size > len(payload) {
			size = len(payload) - body
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, ErrUnsupportedWAV
			}
			format := binary.LittleEndian.Uint16(payload[body:])
			if format != 1 { // PCM
				return nil, fmt.Errorf("%w: format tag %d", ErrUnsupportedWAV, format)
			}
			info.channels = int(binary.LittleEndian.Uint16(payload[body+2:]))
			info.sampleRate = int(binary.LittleEndian.Uint32(payload[body+4:]))
			info.bitDepth = int(binary.LittleEndian.Uint16(payload[body+14:]))
		case "data":
			data = payload[body : body+size]
		}
		// Chunks are word-aligned.
		off = body + size + size%2
	}

	if info.sampleRate == 0 || data == nil {
		return nil, ErrNotWAV
	}
	if info.bitDepth != 16 {
		return nil, fmt.Errorf("%w: %d-bit samples", ErrUnsupportedWAV, info.bitDepth)
	}
	if info.channels < 1 || info.channels > 2 {
		return nil, fmt.Errorf("%w: %d channels", ErrUnsupportedWAV, info.channels)
	}

	samples := decodeSamples(data, info.channels)
	if info.sampleRate != SampleRate {
		samples = resample(samples, info.sampleRate, SampleRate)
	}
	return encodeSamples(samples), nil
}

// decodeSamples converts interleaved s16le bytes to mono float samples.
func decodeSamples(data []byte, channels int) []float64 {
	frame := 2 * channels
	n := len(data) / frame
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			v := int16(binary.LittleEndian.Uint16(data[i*frame+c*2:]))
			sum += float64(v)
		}
		out[i] = sum / float64(channels)
	}
	return out
}

// resample performs linear interpolation from one rate to another.
func resample(in []float64, from, to int) []float64 {
	if from == to || len(in) == 0 {
		return in
	}
	n := int(int64(len(in)) * int64(to) / int64(from))
	out := make([]float64, n)
	ratio := float64(from) / float64(to)
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := pos - float64(j)
		out[i] = in[j]*(1-frac) + in[j+1]*frac
	}
	return out
}

// encodeSamples converts mono float samples back to s16le bytes, clamping
// anything the downmix pushed out of range.
func encodeSamples(samples []float64) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 32767 {
			s = 32767
		}
		if s < -32768 {
			s = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s)))
	}
	return out
}
