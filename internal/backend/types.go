package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"interview-gateway/internal/media"
)

var (
	// ErrBackendUnavailable сетевая ошибка, таймаут или не-2xx ответ бэкенда
	ErrBackendUnavailable = errors.New("ai backend unavailable")
	// ErrUnsupportedContentType ответ не JSON и не multipart/mixed
	ErrUnsupportedContentType = errors.New("unsupported response content type")
)

// StatusError не-2xx ответ. Оборачивает ErrBackendUnavailable.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	return fmt.Sprintf("ai backend error: status %d, body: %s", e.Code, body)
}

func (e *StatusError) Unwrap() error {
	return ErrBackendUnavailable
}

// Config настройки клиента AI-бэкенда
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	AttachAudio bool
}

// TurnRequest данные одного ответа кандидата
type TurnRequest struct {
	Index          int
	JobDescription string
	Question       string
	ModelAnswer    string
	HumanAnswer    string
	// Audio прикладывается только при Config.AttachAudio
	Audio *media.Audio
	// AudioName имя файла для части audio
	AudioName string
	// Terminal последний ход, отправляется на /end-interview
	Terminal bool
}

// TurnReply нормализованный ответ бэкенда на ход
type TurnReply struct {
	Question    string         `json:"question,omitempty"`
	ModelAnswer string         `json:"model_answer,omitempty"`
	Outro       string         `json:"outro,omitempty"`
	Score       *float64       `json:"score,omitempty"`
	Audio       *media.Audio   `json:"-"`
	Extra       map[string]any `json:"-"`
	// Dropped части multipart, которые не были распознаны
	Dropped []string `json:"-"`
}

// replyFields поля JSON-части. score приходит числом или строкой.
type replyFields struct {
	Question    string          `json:"question"`
	ModelAnswer string          `json:"model_answer"`
	Outro       string          `json:"outro"`
	Score       json.RawMessage `json:"score"`
}

func parseScore(raw json.RawMessage) (*float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var number float64
	if err := json.Unmarshal(raw, &number); err == nil {
		return &number, nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return nil, fmt.Errorf("score is neither number nor string: %s", string(raw))
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	number, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, fmt.Errorf("score %q is not numeric: %w", text, err)
	}
	return &number, nil
}
