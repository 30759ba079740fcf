package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newFakeOracle(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	return NewWithConfig(cfg, "gpt-4o-mini", zap.NewNop())
}

func completionResponse(content string) string {
	resp := map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func TestGenerateSettings(t *testing.T) {
	client := newFakeOracle(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completionResponse(`{"gain":7.3,"treble":6,"mid":4.5,"bass":5,"presence":6,"reverb":2,"volume":11,"notes":"scooped grunge tone"}`))
	})

	result, err := client.GenerateSettings(context.Background(), Request{Artist: "Nirvana"})
	require.NoError(t, err)
	assert.Equal(t, 7.5, result.Settings.Gain, "knobs snap to 0.5 steps")
	assert.Equal(t, 10.0, result.Settings.Volume, "knobs clamp to 10")
	assert.Equal(t, "scooped grunge tone", result.Notes)
}

func TestGenerateSettingsRetriesOverload(t *testing.T) {
	var calls atomic.Int32
	client := newFakeOracle(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":{"message":"rate limited","type":"rate_limit_exceeded"}}`)
			return
		}
		fmt.Fprint(w, completionResponse(`{"gain":5,"treble":5,"mid":5,"bass":5,"presence":5,"reverb":5,"volume":5,"notes":"ok"}`))
	})

	result, err := client.GenerateSettings(context.Background(), Request{Amp: "Twin Reverb"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 5.0, result.Settings.Gain)
}

func TestGenerateSettingsDoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int32
	client := newFakeOracle(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad request","type":"invalid_request_error"}}`)
	})

	_, err := client.GenerateSettings(context.Background(), Request{})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "client errors must not be retried")
}

func TestGenerateSettingsMalformedContent(t *testing.T) {
	client := newFakeOracle(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completionResponse("sorry, I can only answer in prose"))
	})

	_, err := client.GenerateSettings(context.Background(), Request{})
	require.Error(t, err)
}

func TestClampKnob(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{5, 5},
		{5.25, 5.5},
		{5.2, 5},
		{-3, 0},
		{12, 10},
		{9.75, 10},
		{0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, clampKnob(tt.in), "clampKnob(%v)", tt.in)
	}
}

func TestDefaultSettingsAreValidKnobs(t *testing.T) {
	def := DefaultSettings()
	for name, v := range map[string]float64{
		"gain": def.Settings.Gain, "treble": def.Settings.Treble, "mid": def.Settings.Mid,
		"bass": def.Settings.Bass, "presence": def.Settings.Presence,
		"reverb": def.Settings.Reverb, "volume": def.Settings.Volume,
	} {
		assert.GreaterOrEqual(t, v, 0.0, name)
		assert.LessOrEqual(t, v, 10.0, name)
		assert.Equal(t, v, clampKnob(v), "%s must sit on a 0.5 step", name)
	}
	assert.NotEmpty(t, def.Notes)
}
