// Package caption implements the caption model capability: turning an
// uploaded image into a short human-readable description via an
// OpenAI-compatible vision endpoint.
package caption

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"pictor/internal/config"
)

const captionPrompt = "Describe only what is visually present in this image, in one short sentence."

// Model is the abstraction used by the pipeline executor.
type Model interface {
	Caption(ctx context.Context, data []byte, mimeType string) (string, error)
}

// NewFromConfig constructs a Model based on the caption section of the
// config.
func NewFromConfig(cfg *config.Config) (Model, error) {
	switch cfg.Caption.Provider {
	case "openai", "":
		oc := cfg.Caption.OpenAI
		if oc.APIKey == "" || oc.Model == "" {
			return nil, errors.New("openai caption provider is not fully configured")
		}
		timeout := time.Duration(oc.TimeoutMs) * time.Millisecond
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		return &openAIClient{
			apiKey:  oc.APIKey,
			baseURL: oc.BaseURL,
			model:   oc.Model,
			http:    &http.Client{Timeout: timeout},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported caption provider: %s", cfg.Caption.Provider)
	}
}

// openAIClient implements Model using OpenAI-compatible Chat
// Completions with an inline data-URL image part. Temperature is
// pinned to 0 so captions are deterministic for a given model.
type openAIClient struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
}

// openAIChatRequest is a minimal representation of the Chat Completions API.
type openAIChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openAIChatMessage `json:"messages"`
	Temperature float64             `json:"temperature"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
}

type openAIChatMessage struct {
	Role    string       `json:"role"`
	Content []openAIPart `json:"content"`
}

type openAIPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *openAIClient) Caption(ctx context.Context, data []byte, mimeType string) (string, error) {
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)

	body := openAIChatRequest{
		Model: c.model,
		Messages: []openAIChatMessage{
			{
				Role: "user",
				Content: []openAIPart{
					{Type: "text", Text: captionPrompt},
					{Type: "image_url", ImageURL: &openAIImageURL{URL: dataURL}},
				},
			},
		},
		Temperature: 0.0,
		MaxTokens:   60,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	endpoint := c.baseURL
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1"
	}
	endpoint = endpoint + "/chat/completions"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("caption chat completion failed with status %d", resp.StatusCode)
	}

	var parsed openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("caption chat completion returned no choices")
	}

	text := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("caption chat completion returned empty content")
	}
	return text, nil
}
