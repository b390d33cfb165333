// Package api is the REST client for the OD-Prank backend. It covers only
// the narrow interfaces the playback engine consumes: audio resolution,
// generation triggering, generation status summaries, remote conference
// commands, and scenario reads. Auth is a bearer token minted by the web app.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/OmniDock/od-prank-deck/internal/scenario"
)

var (
	// ErrNotFound is returned when the requested resource does not exist,
	// including audio for a line whose generation was never requested.
	ErrNotFound = errors.New("resource not found")

	// ErrGenerationFailed is returned when the backend reports a failed
	// generation. Surfaced as a dismissible notice, never auto-retried.
	ErrGenerationFailed = errors.New("audio generation failed")

	// ErrUnauthorized is returned for expired or missing tokens.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRemoteCommand is returned when a conference command is rejected.
	ErrRemoteCommand = errors.New("conference command rejected")
)

// Config configures the backend client.
type Config struct {
	// BaseURL of the backend, without trailing slash.
	BaseURL string

	// Token is the bearer token for API calls.
	Token string

	// RequestsPerMinute caps outgoing request rate. Zero means 120.
	RequestsPerMinute int

	// Timeout per request. Zero means 15 seconds.
	Timeout time.Duration
}

// Client talks to the OD-Prank backend.
type Client struct {
	base    string
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

// New creates a backend client.
func New(cfg Config) *Client {
	rpm := cfg.RequestsPerMinute
	if rpm == 0 {
		rpm = 120
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		base:    cfg.BaseURL,
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 10),
	}
}

// do executes an authenticated JSON request against the backend.
func (c *Client) do(ctx context.Context, method, path string, body any, extra http.Header) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range extra {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		resp.Body.Close()
		return nil, ErrUnauthorized
	case http.StatusNotFound:
		resp.Body.Close()
		return nil, ErrNotFound
	}
	if resp.StatusCode >= 500 {
		resp.Body.Close()
		return nil, fmt.Errorf("backend error: status %d", resp.StatusCode)
	}
	return resp, nil
}

// decode drains and unmarshals a response body.
func decode(resp *http.Response, v any) error {
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// ResolveResult is the backend's answer to "is there audio for this line".
type ResolveResult struct {
	Status     scenario.GenerationStatus `json:"status"`
	SignedURL  string                    `json:"signed_url,omitempty"`
	DurationMs int64                     `json:"duration_ms,omitempty"`
}

// ResolveAudio asks for the signed URL of a line's preferred audio. Fails
// with ErrNotFound if generation was never requested for this line+voice.
func (c *Client) ResolveAudio(ctx context.Context, lineID scenario.LineID, voiceID scenario.VoiceID) (ResolveResult, error) {
	path := fmt.Sprintf("/voice-lines/%d/audio?voice_id=%s", lineID, voiceID)
	resp, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return ResolveResult{}, err
	}
	var out ResolveResult
	if err := decode(resp, &out); err != nil {
		return ResolveResult{}, err
	}
	return out, nil
}

// TriggerResult reports whether generation completed immediately (cached on
// the backend) or runs asynchronously.
type TriggerResult struct {
	Success   bool   `json:"success"`
	SignedURL string `json:"signed_url,omitempty"`

	// DurationMs accompanies SignedURL for cached results.
	DurationMs int64 `json:"duration_ms,omitempty"`
}

// TriggerGeneration requests TTS generation for a line. A present SignedURL
// means the asset was already cached backend-side; absent means the caller
// must watch the generation summary for completion.
func (c *Client) TriggerGeneration(ctx context.Context, lineID scenario.LineID, voiceID scenario.VoiceID) (TriggerResult, error) {
	body := map[string]any{"voice_id": voiceID}
	path := fmt.Sprintf("/voice-lines/%d/generate", lineID)
	resp, err := c.do(ctx, http.MethodPost, path, body, nil)
	if err != nil {
		return TriggerResult{}, err
	}
	var out TriggerResult
	if err := decode(resp, &out); err != nil {
		return TriggerResult{}, err
	}
	if !out.Success {
		return out, ErrGenerationFailed
	}
	return out, nil
}

// summaryPayload is the wire form of a generation summary.
type summaryPayload struct {
	Items []struct {
		LineID scenario.LineID           `json:"line_id"`
		Status scenario.GenerationStatus `json:"status"`
	} `json:"items"`
}

// FetchSummary performs a conditional fetch of the generation summary for a
// scenario. A non-empty cacheToken is sent as a validator; a "not modified"
// answer returns (nil, true, nil) and leaves caller state untouched.
func (c *Client) FetchSummary(ctx context.Context, id scenario.ScenarioID, cacheToken string) (*scenario.Summary, bool, error) {
	var extra http.Header
	if cacheToken != "" {
		extra = http.Header{"If-None-Match": []string{cacheToken}}
	}
	path := fmt.Sprintf("/scenarios/%d/generation-summary", id)
	resp, err := c.do(ctx, http.MethodGet, path, nil, extra)
	if err != nil {
		return nil, false, err
	}
	if resp.StatusCode == http.StatusNotModified {
		resp.Body.Close()
		return nil, true, nil
	}

	token := resp.Header.Get("ETag")
	var payload summaryPayload
	if err := decode(resp, &payload); err != nil {
		return nil, false, err
	}
	summary := &scenario.Summary{CacheToken: token}
	for _, item := range payload.Items {
		summary.Items = append(summary.Items, scenario.SummaryItem{
			LineID: item.LineID,
			Status: item.Status,
		})
	}
	return summary, false, nil
}

// RemotePlay asks the backend to inject a line's audio into the live
// conference. The acknowledgment gates the UI's conference-playing state.
func (c *Client) RemotePlay(ctx context.Context, conferenceID string, lineID scenario.LineID) error {
	body := map[string]any{"voice_line_id": lineID}
	path := fmt.Sprintf("/calls/%s/play", conferenceID)
	resp, err := c.do(ctx, http.MethodPost, path, body, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("%w: status %d", ErrRemoteCommand, resp.StatusCode)
	}
	return nil
}

// RemoteStop asks the backend to stop any audio currently playing into the
// conference.
func (c *Client) RemoteStop(ctx context.Context, conferenceID string) error {
	path := fmt.Sprintf("/calls/%s/stop", conferenceID)
	resp, err := c.do(ctx, http.MethodPost, path, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("%w: status %d", ErrRemoteCommand, resp.StatusCode)
	}
	return nil
}

// scenarioPayload is the wire form of a scenario with its lines.
type scenarioPayload struct {
	ID             scenario.ScenarioID `json:"id"`
	Title          string              `json:"title"`
	Description    string              `json:"description"`
	Language       string              `json:"language"`
	PreferredVoice scenario.VoiceID    `json:"preferred_voice_id"`
	CreatedAt      time.Time           `json:"created_at"`
	Lines          []struct {
		ID         scenario.LineID   `json:"id"`
		Text       string            `json:"text"`
		Type       scenario.LineType `json:"type"`
		OrderIndex int               `json:"order_index"`
		CreatedAt  time.Time         `json:"created_at"`
		Audio      *struct {
			SignedURL  string `json:"signed_url"`
			DurationMs int64  `json:"duration_ms"`
		} `json:"preferred_audio"`
	} `json:"voice_lines"`
}

// GetScenario fetches a scenario with its voice lines.
func (c *Client) GetScenario(ctx context.Context, id scenario.ScenarioID) (*scenario.Scenario, error) {
	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/scenarios/%d", id), nil, nil)
	if err != nil {
		return nil, err
	}
	var payload scenarioPayload
	if err := decode(resp, &payload); err != nil {
		return nil, err
	}

	s := &scenario.Scenario{
		ID:             payload.ID,
		Title:          payload.Title,
		Description:    payload.Description,
		Language:       payload.Language,
		PreferredVoice: payload.PreferredVoice,
		CreatedAt:      payload.CreatedAt,
	}
	for _, l := range payload.Lines {
		line := scenario.VoiceLine{
			ID:         l.ID,
			Text:       l.Text,
			Type:       l.Type,
			OrderIndex: l.OrderIndex,
			CreatedAt:  l.CreatedAt,
		}
		if l.Audio != nil {
			line.PreferredAudio = &scenario.AudioRef{
				SignedURL:  l.Audio.SignedURL,
				DurationMs: l.Audio.DurationMs,
			}
		}
		s.Lines = append(s.Lines, line)
	}
	scenario.SortLines(s.Lines)
	log.Debug("fetched scenario", "id", s.ID, "lines", len(s.Lines))
	return s, nil
}

// FetchAsset downloads a signed-URL audio asset. Signed URLs carry their own
// authorization, so no bearer token is attached.
func (c *Client) FetchAsset(ctx context.Context, signedURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, signedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build asset request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("asset download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("asset download failed: status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 64<<20))
}
