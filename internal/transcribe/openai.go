// Package transcribe provides speech-to-text clients for the document
// extractor's transcription boundary.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/fridaylabs/friday-kb/internal/rag"
)

// OpenAITranscriber transcribes audio via the OpenAI-compatible
// /v1/audio/transcriptions endpoint. It is safe for concurrent use.
type OpenAITranscriber struct {
	// baseURL is the API base (e.g. "https://api.openai.com/v1").
	baseURL string
	// apiKey is the Bearer token.
	apiKey string
	// model is the transcription model name (e.g. "whisper-1").
	model string
	// client is the shared HTTP client. Long timeout — audio uploads are slow.
	client *http.Client
}

// Config holds the settings for constructing an OpenAITranscriber.
type Config struct {
	// BaseURL is the API base URL; empty defaults to the OpenAI endpoint.
	BaseURL string
	// APIKey is the authentication key.
	APIKey string
	// Model is the transcription model name; empty defaults to "whisper-1".
	Model string
}

// NewOpenAITranscriber constructs an OpenAITranscriber from the given config.
func NewOpenAITranscriber(cfg *Config) *OpenAITranscriber {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := cfg.Model
	if model == "" {
		model = "whisper-1"
	}
	return &OpenAITranscriber{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		model:   model,
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

// NewFromEnv constructs an OpenAITranscriber from TRANSCRIBE_* environment
// variables, inheriting OPENAI_API_KEY when no dedicated key is set. Returns
// nil when no key is available — the extractor treats a nil transcriber as
// "audio/video not supported".
func NewFromEnv() *OpenAITranscriber {
	apiKey := os.Getenv("TRANSCRIBE_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil
	}
	return NewOpenAITranscriber(&Config{
		BaseURL: os.Getenv("TRANSCRIBE_ENDPOINT"),
		APIKey:  apiKey,
		Model:   os.Getenv("TRANSCRIBE_MODEL"),
	})
}

// transcriptionResponse is the JSON body returned by the endpoint.
type transcriptionResponse struct {
	Text  string `json:"text"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Transcribe uploads the audio file and returns its transcript.
func (t *OpenAITranscriber) Transcribe(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("transcribe: open %s: %w", path, err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("transcribe: create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("transcribe: copy audio: %w", err)
	}
	if err := mw.WriteField("model", t.model); err != nil {
		return "", fmt.Errorf("transcribe: write model field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("transcribe: finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", fmt.Errorf("transcribe: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcribe: request failed: %v: %w", err, rag.ErrProviderUnavailable)
	}
	defer resp.Body.Close()

	var result transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("transcribe: decode response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if result.Error != nil {
			msg = result.Error.Message
		}
		return "", fmt.Errorf("transcribe: %s: %w", msg, rag.ErrProviderUnavailable)
	}
	return result.Text, nil
}
