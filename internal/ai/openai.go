// Package ai implements the gate's transport against the OpenAI API:
// chat completions for example sentences and the speech endpoint for
// pronunciation audio.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/example/phonicsbot/internal/curriculum"
	"github.com/example/phonicsbot/internal/gate"
	"github.com/example/phonicsbot/pkg/models"
)

const (
	chatURL   = "https://api.openai.com/v1/chat/completions"
	speechURL = "https://api.openai.com/v1/audio/speech"

	defaultTimeout = 30 * time.Second
)

// Client is an OpenAI-backed gate.Transport.
type Client struct {
	apiKey      string
	httpClient  *http.Client
	library     *curriculum.Library
	maxTokens   int
	temperature float64
}

// New creates an OpenAI client. An empty key is allowed: every call then
// fails fast and the gate serves fallback content instead.
func New(apiKey string, library *curriculum.Library) *Client {
	return &Client{
		apiKey:      apiKey,
		httpClient:  &http.Client{Timeout: defaultTimeout},
		library:     library,
		maxTokens:   100,
		temperature: 0.7,
	}
}

// Message represents a message in the chat conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents a request to the chat completions API
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

// ChatResponse represents a response from the chat completions API
type ChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// SpeechRequest represents a request to the speech API
type SpeechRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
	Voice string `json:"voice"`
	Speed float64 `json:"speed,omitempty"`
}

// Generate implements gate.Transport: a single request/response attempt,
// no retries. The gate has already charged the budget at this point.
func (c *Client) Generate(ctx context.Context, spec gate.RequestSpec) (models.GeneratedContent, error) {
	if c.apiKey == "" {
		return models.GeneratedContent{}, fmt.Errorf("OpenAI API key is not set")
	}
	item, ok := c.library.Item(spec.ItemID)
	if !ok {
		return models.GeneratedContent{}, fmt.Errorf("unknown skill item: %s", spec.ItemID)
	}

	switch spec.Modality {
	case gate.ModalityExample:
		text, err := c.generateExample(ctx, item, spec.Params)
		if err != nil {
			return models.GeneratedContent{}, err
		}
		return models.GeneratedContent{Text: text}, nil
	case gate.ModalityAudio:
		text := c.library.FallbackText(item.ID)
		audio, err := c.generateSpeech(ctx, text, spec.Params)
		if err != nil {
			return models.GeneratedContent{}, err
		}
		return models.GeneratedContent{Text: text, Audio: audio}, nil
	}
	return models.GeneratedContent{}, fmt.Errorf("unsupported modality: %s", spec.Modality)
}

// generateExample asks for a short, child-friendly sentence featuring the
// item's sound.
func (c *Client) generateExample(ctx context.Context, item models.SkillItem, params map[string]string) (string, error) {
	prompt := fmt.Sprintf(
		"Write one short, simple sentence for a child learning to read. "+
			"The sentence must contain a word that uses the letters '%s' making the %s sound, such as '%s'. "+
			"Use only common words a 5-year-old knows. Return only the sentence.",
		item.Grapheme, item.Phoneme, item.ExampleWord,
	)
	if theme := params["theme"]; theme != "" {
		prompt += fmt.Sprintf(" Make the sentence about %s.", theme)
	}

	request := ChatRequest{
		Model: "gpt-4o-mini",
		Messages: []Message{
			{Role: "system", Content: "You help young children learn phonics. You write very short, playful, decodable sentences."},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}

	requestData, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", chatURL, bytes.NewBuffer(requestData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %v", err)
	}
	defer resp.Body.Close()

	var response ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode response: %v", err)
	}
	if response.Error != nil {
		return "", fmt.Errorf("API error: %s", response.Error.Message)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response choices returned")
	}

	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}

// generateSpeech synthesizes the given text and returns the audio bytes.
func (c *Client) generateSpeech(ctx context.Context, text string, params map[string]string) ([]byte, error) {
	voice := params["voice"]
	if voice == "" {
		voice = "nova"
	}

	request := SpeechRequest{
		Model: "tts-1",
		Input: text,
		Voice: voice,
		Speed: 0.9, // Slightly slow for young listeners
	}

	requestData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", speechURL, bytes.NewBuffer(requestData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio response: %v", err)
	}
	return audio, nil
}
