package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"interview-gateway/internal/media"
)

const (
	DefaultModel   = "gpt-4o-transcribe"
	DefaultBaseURL = "https://api.openai.com/v1"
)

// ErrNotConfigured ключ API не задан
var ErrNotConfigured = errors.New("transcription api key is not configured")

type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

type transcriptionResponse struct {
	Text  string    `json:"text"`
	Error *APIError `json:"error,omitempty"`
}

type errorResponse struct {
	Error *APIError `json:"error"`
}

type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// OpenAIClient распознаёт речь через OpenAI-совместимый /audio/transcriptions
type OpenAIClient struct {
	apiKey string
	model  string
	client *resty.Client
	logger *zap.Logger
}

func NewOpenAIClient(cfg Config, logger *zap.Logger) *OpenAIClient {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second // длинные ответы распознаются долго
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &OpenAIClient{
		apiKey: cfg.APIKey,
		model:  model,
		client: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout),
		logger: logger.Named("transcribe"),
	}
}

// Transcribe возвращает текст ответа кандидата
func (c *OpenAIClient) Transcribe(ctx context.Context, audio *media.Audio, fileName string) (string, error) {
	if c.apiKey == "" {
		return "", ErrNotConfigured
	}
	if audio.Empty() {
		return "", fmt.Errorf("пустое аудио для распознавания")
	}

	var result transcriptionResponse
	var apiErr errorResponse

	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(c.apiKey).
		SetFormData(map[string]string{"model": c.model}).
		SetFileReader("file", fileName, bytes.NewReader(audio.Data)).
		SetResult(&result).
		SetError(&apiErr).
		Post("/audio/transcriptions")
	if err != nil {
		return "", fmt.Errorf("error making request: %w", err)
	}

	if !resp.IsSuccess() {
		if apiErr.Error != nil {
			return "", fmt.Errorf("OpenAI API error: status %d, %s", resp.StatusCode(), apiErr.Error.Message)
		}
		return "", fmt.Errorf("OpenAI API error: status %d, body: %s", resp.StatusCode(), resp.String())
	}

	if result.Error != nil {
		return "", fmt.Errorf("OpenAI API error: %s", result.Error.Message)
	}

	return strings.TrimSpace(result.Text), nil
}

// BestEffort распознаёт речь, а при ошибке пишет warn и возвращает пустой текст.
// Ход продолжается без транскрипта.
func (c *OpenAIClient) BestEffort(ctx context.Context, audio *media.Audio, fileName string) string {
	text, err := c.Transcribe(ctx, audio, fileName)
	if err != nil {
		c.logger.Warn("transcription failed", zap.String("file", fileName), zap.Error(err))
		return ""
	}
	return text
}
