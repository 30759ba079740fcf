// Package oracle turns a gear description into amplifier settings via an
// LLM. Callers treat it as fallible and substitute DefaultSettings when
// it is degraded.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/tonoapp/tono-server/models"
)

const (
	maxAttempts = 3
	baseDelay   = 500 * time.Millisecond
)

const systemPrompt = `You are an experienced guitar amp technician. Given an artist reference, a sound description and the player's gear, recommend amplifier settings. Respond with a JSON object with numeric fields "gain", "treble", "mid", "bass", "presence", "reverb" and "volume", each between 0 and 10 in steps of 0.5, plus a short string field "notes" explaining the choices.`

// Request is the gear tuple sent to the oracle.
type Request struct {
	Artist      string
	Description string
	Guitar      string
	Pickups     string
	Strings     string
	Amp         string
}

// Result is a generated settings object plus free-text notes.
type Result struct {
	Settings models.AmpSettings
	Notes    string
}

type Client struct {
	api    *openai.Client
	model  string
	logger *zap.Logger
}

func New(apiKey, model string, logger *zap.Logger) *Client {
	return &Client{
		api:    openai.NewClient(apiKey),
		model:  model,
		logger: logger,
	}
}

// NewWithConfig lets tests point the client at a fake server.
func NewWithConfig(cfg openai.ClientConfig, model string, logger *zap.Logger) *Client {
	return &Client{
		api:    openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger,
	}
}

// GenerateSettings asks the LLM for amp settings. Overload and rate-limit
// responses are retried with doubling delay up to maxAttempts; every
// other failure propagates immediately.
func (c *Client) GenerateSettings(ctx context.Context, req Request) (Result, error) {
	var lastErr error

	delay := baseDelay
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := c.generateOnce(ctx, req)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isTransient(err) {
			return Result{}, err
		}

		c.logger.Warn("oracle call overloaded, retrying",
			zap.Int("attempt", attempt), zap.Error(err))

		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return Result{}, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return Result{}, fmt.Errorf("oracle unavailable after %d attempts: %w", maxAttempts, lastErr)
}

func (c *Client) generateOnce(ctx context.Context, req Request) (Result, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(req)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return Result{}, err
	}
	if len(resp.Choices) == 0 {
		return Result{}, fmt.Errorf("oracle returned no choices")
	}

	var parsed struct {
		models.AmpSettings
		Notes string `json:"notes"`
	}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err != nil {
		return Result{}, fmt.Errorf("failed to parse oracle response: %w", err)
	}

	return Result{
		Settings: clampSettings(parsed.AmpSettings),
		Notes:    parsed.Notes,
	}, nil
}

func buildPrompt(req Request) string {
	var b strings.Builder
	write := func(label, val string) {
		if strings.TrimSpace(val) != "" {
			fmt.Fprintf(&b, "%s: %s\n", label, val)
		}
	}
	write("Artist", req.Artist)
	write("Desired sound", req.Description)
	write("Guitar", req.Guitar)
	write("Pickups", req.Pickups)
	write("Strings", req.Strings)
	write("Amp", req.Amp)
	return b.String()
}

// isTransient classifies retryable overload signals from the provider.
func isTransient(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	return false
}

// clampSettings forces every knob into [0,10] at 0.5 granularity.
func clampSettings(s models.AmpSettings) models.AmpSettings {
	s.Gain = clampKnob(s.Gain)
	s.Treble = clampKnob(s.Treble)
	s.Mid = clampKnob(s.Mid)
	s.Bass = clampKnob(s.Bass)
	s.Presence = clampKnob(s.Presence)
	s.Reverb = clampKnob(s.Reverb)
	s.Volume = clampKnob(s.Volume)
	return s
}

func clampKnob(v float64) float64 {
	v = math.Round(v*2) / 2
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}

// DefaultSettings is the fallback used when the oracle is degraded: a
// neutral, usable starting point rather than a failed request.
func DefaultSettings() Result {
	return Result{
		Settings: models.AmpSettings{
			Gain:     5,
			Treble:   6,
			Mid:      5,
			Bass:     5,
			Presence: 5,
			Reverb:   3,
			Volume:   5,
		},
		Notes: "We couldn't generate a custom recommendation right now, so here is a balanced starting point. Tweak gain and mids to taste and try again later.",
	}
}
