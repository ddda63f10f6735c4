// Package summary asks an OpenAI-compatible chat completion endpoint for a
// short, shareable incident summary.
package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/rightsguard/incident-core/internal/model"
)

// MaxWords bounds the returned summary.
const MaxWords = 200

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("summary not configured")

const systemPrompt = "You are a legal assistant helping citizens document police interactions professionally and factually."

// Config holds the endpoint settings.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client generates incident summaries.
type Client struct {
	client  *resty.Client
	model   string
	enabled bool
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-3.5-turbo"
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(cfg.Timeout)
	return &Client{client: c, model: cfg.Model, enabled: cfg.APIKey != ""}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Summarize returns a summary of inc no longer than MaxWords words. rights is
// the jurisdiction-specific context to weave in.
func (c *Client) Summarize(ctx context.Context, inc model.Incident, rights string) (string, error) {
	if !c.enabled {
		return "", ErrNotConfigured
	}
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: Prompt(inc, rights)},
		},
		MaxTokens:   300,
		Temperature: 0.3,
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(&req).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("summary request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("summary status %d: %s", resp.StatusCode(), resp.String())
	}
	var cr chatResponse
	if err := json.Unmarshal(resp.Body(), &cr); err != nil {
		return "", fmt.Errorf("decode summary response: %w", err)
	}
	if len(cr.Choices) == 0 || strings.TrimSpace(cr.Choices[0].Message.Content) == "" {
		return "", errors.New("summary response empty")
	}
	return Truncate(strings.TrimSpace(cr.Choices[0].Message.Content), MaxWords), nil
}

// Prompt renders the user prompt for inc.
func Prompt(inc model.Incident, rights string) string {
	notes := inc.Notes
	if notes == "" {
		notes = "No additional notes"
	}
	if rights == "" {
		rights = "No jurisdiction-specific rights context available."
	}
	var b strings.Builder
	b.WriteString("Create a concise, shareable summary of a police interaction incident. Include key rights information and incident details.\n\n")
	b.WriteString("Incident Details:\n")
	fmt.Fprintf(&b, "- Date/Time: %s\n", inc.CreatedAt.UTC().Format(time.RFC1123))
	fmt.Fprintf(&b, "- Location: %.6f, %.6f\n", inc.Location.Latitude, inc.Location.Longitude)
	fmt.Fprintf(&b, "- Incident ID: %s\n", inc.ID)
	fmt.Fprintf(&b, "- Status: %s\n", inc.Status)
	fmt.Fprintf(&b, "- Notes: %s\n\n", notes)
	b.WriteString("User Rights Context:\n")
	b.WriteString(rights)
	b.WriteString("\n\nPlease create a professional, factual summary that:\n")
	b.WriteString("1. Summarizes the incident details\n")
	b.WriteString("2. Highlights relevant rights\n")
	b.WriteString("3. Is suitable for sharing with legal counsel or support network\n")
	b.WriteString("4. Maintains a neutral, factual tone\n")
	fmt.Fprintf(&b, "5. Is under %d words\n\n", MaxWords)
	b.WriteString("Format as a clear, structured summary.")
	return b.String()
}

// Truncate keeps at most n words of s.
func Truncate(s string, n int) string {
	words := strings.Fields(s)
	if len(words) <= n {
		return s
	}
	return strings.Join(words[:n], " ") + "…"
}
