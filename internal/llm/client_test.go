package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJudgeScore(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    float64
		wantErr bool
	}{
		{"plain", `{"score": 0.8, "reasoning": "good"}`, 0.8, false},
		{"fenced", "```json\n{\"score\": 0.25, \"reasoning\": \"weak\"}\n```", 0.25, false},
		{"clamped high", `{"score": 3}`, 1, false},
		{"clamped low", `{"score": -1}`, 0, false},
		{"no json", "I think it is fine", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, err := parseJudgeScore(tt.content)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, score.Score, 1e-9)
		})
	}
}

func TestBuildJudgePromptSkipsEmptySections(t *testing.T) {
	prompt := buildJudgePrompt(JudgeRequest{MetricName: "Fluency", Input: "q", Output: "a"})
	assert.Contains(t, prompt, "Metric: Fluency")
	assert.NotContains(t, prompt, "Reference answer")
	assert.NotContains(t, prompt, "Context:")
}

func chatServer(t *testing.T, status int, content string, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"message": "rejected", "type": "invalid_request_error"},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "cmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}))
}

func TestJudgeMetricAgainstServer(t *testing.T) {
	var calls int32
	srv := chatServer(t, http.StatusOK, `{"score": 0.9, "reasoning": "faithful"}`, &calls)
	defer srv.Close()

	c := NewClient(Options{APIKey: "test", BaseURL: srv.URL + "/v1", JudgeModel: "gpt-4", Timeout: 5 * time.Second})

	score, err := c.JudgeMetric(context.Background(), JudgeRequest{
		MetricID:   "faithfulness",
		MetricName: "Faithfulness",
		Input:      "What is 2+2?",
		Output:     "4",
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.9, score.Score, 1e-9)
	assert.Equal(t, "faithful", score.Reasoning)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestCompleteDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := chatServer(t, http.StatusBadRequest, "", &calls)
	defer srv.Close()

	c := NewClient(Options{APIKey: "test", BaseURL: srv.URL + "/v1", JudgeModel: "gpt-4", Timeout: 5 * time.Second})

	_, err := c.Generate(context.Background(), "gpt-4", "hello")
	assert.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}
