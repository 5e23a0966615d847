package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chadiek/call-relay/internal/calllog"
)

type ExtractClient struct {
	HTTPClient *http.Client
	APIKey     string
	Model      string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionsRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason"`
	Message      chatMessage `json:"message"`
}

type chatCompletionsResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

func NewExtractClient(apiKey, model string) *ExtractClient {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &ExtractClient{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		APIKey:     apiKey,
		Model:      model,
	}
}

const extractSystemPrompt = `You extract restaurant booking details from call transcripts.
Respond with a single JSON object and nothing else. Fields:
name, date (YYYY-MM-DD), time (HH:MM, 24h), guests (integer),
phoneNo, allergy, notes. Use an empty string (or 0 for guests) for
anything not stated. Resolve relative dates like "tomorrow" against
the reference date given.`

// ExtractBooking pulls structured booking fields out of a call transcript.
// The reference date anchors relative expressions in the conversation.
func (c *ExtractClient) ExtractBooking(ctx context.Context, transcript string, referenceDate time.Time) (calllog.Booking, error) {
	var booking calllog.Booking
	if c.APIKey == "" {
		return booking, fmt.Errorf("openai api key missing")
	}
	endpoint := "https://api.openai.com/v1/chat/completions"

	messages := []chatMessage{
		{Role: "system", Content: extractSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Reference date: %s\n\nTranscript:\n%s", referenceDate.Format("2006-01-02"), transcript)},
	}

	reqBody, _ := json.Marshal(chatCompletionsRequest{Model: c.Model, Messages: messages})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return booking, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return booking, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return booking, fmt.Errorf("openai error: status=%d body=%s", resp.StatusCode, string(b))
	}
	var cr chatCompletionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return booking, err
	}
	if len(cr.Choices) == 0 {
		return booking, fmt.Errorf("openai: empty choices")
	}
	raw := sanitizeJSON(cr.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(raw), &booking); err != nil {
		return booking, fmt.Errorf("parse booking json: %w", err)
	}
	return booking, nil
}

// sanitizeJSON strips markdown code fences that models sometimes wrap
// around JSON output despite instructions.
func sanitizeJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	}
	return s
}
