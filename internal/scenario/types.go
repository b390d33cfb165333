// Package scenario defines the domain model shared by the playback engine:
// scenarios, voice lines, and generation status summaries as reported by the
// OD-Prank backend.
package scenario

import (
	"sort"
	"time"
)

// LineID uniquely identifies a voice line on the backend.
type LineID int64

// VoiceID identifies the synthetic voice a line is generated with.
type VoiceID string

// LineType is the dramatic role of a voice line within a scenario.
type LineType string

const (
	LineTypeOpening  LineType = "OPENING"
	LineTypeQuestion LineType = "QUESTION"
	LineTypeResponse LineType = "RESPONSE"
	LineTypeClosing  LineType = "CLOSING"
	LineTypeFiller   LineType = "FILLER"
)

// typeOrder defines the display order of line type groups.
var typeOrder = map[LineType]int{
	LineTypeOpening:  0,
	LineTypeQuestion: 1,
	LineTypeResponse: 2,
	LineTypeClosing:  3,
	LineTypeFiller:   4,
}

// GenerationStatus reports whether a line's audio asset exists yet.
// It is derived from the backend's generation summary, not stored on the
// line entity itself.
type GenerationStatus string

const (
	StatusPending GenerationStatus = "PENDING"
	StatusReady   GenerationStatus = "READY"
)

// AudioRef points at a generated audio asset for a voice line.
type AudioRef struct {
	// SignedURL is a time-limited, authorization-free link to the asset.
	SignedURL string

	// DurationMs is the asset length in milliseconds as reported by the
	// backend. May be zero when the backend has not probed the asset yet.
	DurationMs int64
}

// VoiceLine is one scripted utterance belonging to a scenario.
// Lines are created server-side during scenario generation and are treated
// as immutable here; audio is attached asynchronously once TTS completes.
type VoiceLine struct {
	ID         LineID
	Text       string
	Type       LineType
	OrderIndex int

	// PreferredAudio is the asset for the scenario's selected voice, when
	// generation has completed. Nil means no audio is attached yet.
	PreferredAudio *AudioRef

	// CreatedAt is informational only, used for display.
	CreatedAt time.Time
}

// HasAudio reports whether a playable asset is attached.
func (v *VoiceLine) HasAudio() bool {
	return v.PreferredAudio != nil && v.PreferredAudio.SignedURL != ""
}

// ScenarioID uniquely identifies a scenario on the backend.
type ScenarioID int64

// Scenario is a prank script: a titled, ordered collection of voice lines
// generated for a single target voice.
type Scenario struct {
	ID             ScenarioID
	Title          string
	Description    string
	Language       string
	PreferredVoice VoiceID
	Lines          []VoiceLine
	CreatedAt      time.Time
}

// SortLines orders lines by type group first (opening, question, response,
// closing, filler) and by order index within each group. This is the order
// the table view presents and the order a caller walks during a call.
func SortLines(lines []VoiceLine) {
	sort.SliceStable(lines, func(i, j int) bool {
		ti, tj := typeOrder[lines[i].Type], typeOrder[lines[j].Type]
		if ti != tj {
			return ti < tj
		}
		return lines[i].OrderIndex < lines[j].OrderIndex
	})
}

// LineByID returns the line with the given ID, or nil.
func (s *Scenario) LineByID(id LineID) *VoiceLine {
	for i := range s.Lines {
		if s.Lines[i].ID == id {
			return &s.Lines[i]
		}
	}
	return nil
}

// SummaryItem is one entry of a generation status summary.
type SummaryItem struct {
	LineID LineID
	Status GenerationStatus
}

// Summary is the backend's report of generation progress for a scenario.
// The CacheToken is an opaque validator (ETag equivalent) used for
// conditional polling.
type Summary struct {
	CacheToken string
	Items      []SummaryItem
}
