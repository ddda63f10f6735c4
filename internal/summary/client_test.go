package summary

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rightsguard/incident-core/internal/model"
)

func testIncident() model.Incident {
	at := time.Date(2026, 4, 2, 18, 30, 0, 0, time.UTC)
	return model.Incident{
		ID:        "inc-1",
		CreatedAt: at,
		Location:  model.Location{Latitude: 37, Longitude: -122, Timestamp: at},
		Status:    model.StatusActive,
	}
}

func TestSummarize_SendsPromptAndBounds(t *testing.T) {
	long := strings.Repeat("word ", 250)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-3.5-turbo", req.Model)
		assert.Equal(t, 300, req.MaxTokens)
		assert.InDelta(t, 0.3, req.Temperature, 1e-9)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, systemPrompt, req.Messages[0].Content)
		assert.Contains(t, req.Messages[1].Content, "37.000000, -122.000000")
		assert.Contains(t, req.Messages[1].Content, "Right to record")

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": long}}},
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "sk-test"})
	out, err := c.Summarize(context.Background(), testIncident(), "Right to record")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(strings.Fields(out)), MaxWords)
}

func TestSummarize_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL, APIKey: "k"}).Summarize(context.Background(), testIncident(), "")
	require.Error(t, err)
}

func TestSummarize_NotConfigured(t *testing.T) {
	_, err := New(Config{}).Summarize(context.Background(), testIncident(), "")
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestPrompt_DefaultsNotes(t *testing.T) {
	p := Prompt(testIncident(), "")
	assert.Contains(t, p, "No additional notes")
	assert.Contains(t, p, "Incident ID: inc-1")
}
