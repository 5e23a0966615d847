package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// WhisperClient transcribes recorded call audio through OpenAI's
// audio transcription endpoint.
type WhisperClient struct {
	HTTPClient *http.Client
	APIKey     string
	Model      string
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

func NewWhisperClient(apiKey, model string) *WhisperClient {
	if model == "" {
		model = "whisper-1"
	}
	return &WhisperClient{
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		APIKey:     apiKey,
		Model:      model,
	}
}

// Transcribe sends the audio file and returns the transcript text.
func (c *WhisperClient) Transcribe(ctx context.Context, filename string, audio []byte) (string, error) {
	if c.APIKey == "" {
		return "", fmt.Errorf("openai api key missing")
	}
	endpoint := "https://api.openai.com/v1/audio/transcriptions"

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(audio); err != nil {
		return "", err
	}
	if err := mw.WriteField("model", c.Model); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("transcription error: status=%d body=%s", resp.StatusCode, string(b))
	}
	var tr transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", err
	}
	return tr.Text, nil
}
