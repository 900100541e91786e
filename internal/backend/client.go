package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"interview-gateway/internal/envelope"
	"interview-gateway/internal/media"
)

const (
	pathStartInterview = "/start-interview"
	pathInterview      = "/interview"
	pathEndInterview   = "/end-interview"

	defaultTimeout = 60 * time.Second
)

// Client клиент AI-бэкенда интервью
type Client struct {
	http        *resty.Client
	attachAudio bool
	logger      *zap.Logger
}

// New создает клиент. Повторов нет: каждый вызов ограничен только таймаутом.
func New(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(0)

	return &Client{
		http:        httpClient,
		attachAudio: cfg.AttachAudio,
		logger:      logger.Named("backend"),
	}
}

// StartInterview запрашивает вступительное аудио для описания вакансии
func (c *Client) StartInterview(ctx context.Context, jobDescription string) (*media.Audio, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"job_description": jobDescription}).
		Post(pathStartInterview)
	if err != nil {
		return nil, fmt.Errorf("%w: ошибка запроса %s: %w", ErrBackendUnavailable, pathStartInterview, err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	return audioFrom(resp, "audio/mpeg"), nil
}

// SubmitTurn отправляет ответ кандидата. Последний ход уходит на /end-interview.
func (c *Client) SubmitTurn(ctx context.Context, req TurnRequest) (*TurnReply, error) {
	path := pathInterview
	fields := map[string]string{
		"job_description":   req.JobDescription,
		"human_answer_text": req.HumanAnswer,
		"question":          req.Question,
		"model_answer":      req.ModelAnswer,
	}
	if req.Terminal {
		path = pathEndInterview
		fields = map[string]string{
			"job_description": req.JobDescription,
			"human_answer":    req.HumanAnswer,
			"question":        req.Question,
			"model_answer":    req.ModelAnswer,
		}
	}

	var file *envelope.File
	if c.attachAudio && !req.Audio.Empty() {
		name := req.AudioName
		if name == "" {
			name = fmt.Sprintf("question_%d_response.webm", req.Index)
		}
		file = &envelope.File{
			FieldName:   "audio",
			FileName:    name,
			ContentType: req.Audio.ContentType,
			Data:        req.Audio.Data,
		}
	}

	body, contentType, err := envelope.Encode(fields, file)
	if err != nil {
		return nil, fmt.Errorf("ошибка сборки формы: %w", err)
	}

	started := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentType).
		SetBody(body).
		Post(path)
	if err != nil {
		return nil, fmt.Errorf("%w: ошибка запроса %s: %w", ErrBackendUnavailable, path, err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	c.logger.Debug("turn submitted",
		zap.Int("turn", req.Index),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode()),
		zap.Duration("took", time.Since(started)),
	)

	reply, err := ParseTurnReply(resp.Header().Get("Content-Type"), resp.Body())
	if err != nil {
		return nil, err
	}
	if len(reply.Dropped) > 0 {
		c.logger.Warn("dropped unknown multipart parts",
			zap.Int("turn", req.Index),
			zap.Strings("content_types", reply.Dropped),
		)
	}
	return reply, nil
}

// Outro получает прощальное аудио (GET /end-interview)
func (c *Client) Outro(ctx context.Context) (*media.Audio, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get(pathEndInterview)
	if err != nil {
		return nil, fmt.Errorf("%w: ошибка запроса %s: %w", ErrBackendUnavailable, pathEndInterview, err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	return audioFrom(resp, "audio/mpeg"), nil
}

// ParseTurnReply разбирает тело ответа на ход по Content-Type
func ParseTurnReply(contentType string, body []byte) (*TurnReply, error) {
	switch {
	case envelope.IsJSON(contentType):
		reply := &TurnReply{}
		if err := fillReply(reply, body); err != nil {
			return nil, fmt.Errorf("%w: %v", envelope.ErrDecodeFailure, err)
		}
		return reply, nil

	case envelope.IsMixed(contentType):
		boundary, err := envelope.BoundaryFrom(contentType)
		if err != nil {
			return nil, err
		}
		msg, err := envelope.Decode(body, boundary)
		if err != nil {
			return nil, err
		}

		reply := &TurnReply{}
		if err := fillReply(reply, msg.JSON().Body); err != nil {
			return nil, fmt.Errorf("%w: %v", envelope.ErrDecodeFailure, err)
		}
		if part, ok := msg.Audio(); ok && len(part.Body) > 0 {
			reply.Audio = &media.Audio{Data: part.Body, ContentType: envelope.MediaType(part.ContentType)}
		}
		for _, dropped := range msg.Dropped {
			reply.Dropped = append(reply.Dropped, dropped.ContentType)
		}
		return reply, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedContentType, contentType)
	}
}

func fillReply(reply *TurnReply, body []byte) error {
	var fields replyFields
	if err := json.Unmarshal(body, &fields); err != nil {
		return fmt.Errorf("ошибка разбора JSON ответа: %w", err)
	}

	extra := map[string]any{}
	if err := json.Unmarshal(body, &extra); err != nil {
		return fmt.Errorf("ошибка разбора JSON ответа: %w", err)
	}
	if extra == nil {
		extra = map[string]any{}
	}
	for _, known := range []string{"question", "model_answer", "outro", "score", "audio"} {
		delete(extra, known)
	}

	reply.Question = fields.Question
	reply.ModelAnswer = fields.ModelAnswer
	reply.Outro = fields.Outro

	score, err := parseScore(fields.Score)
	if err != nil {
		// нечисловой score не ломает ход, но сохраняется как есть
		extra["score"] = string(fields.Score)
	} else {
		reply.Score = score
	}

	if len(extra) > 0 {
		reply.Extra = extra
	}
	return nil
}

func checkStatus(resp *resty.Response) error {
	if resp.IsSuccess() {
		return nil
	}
	return &StatusError{Code: resp.StatusCode(), Body: string(resp.Body())}
}

func audioFrom(resp *resty.Response, fallbackType string) *media.Audio {
	data := resp.Body()
	if len(data) == 0 {
		return nil
	}
	contentType := envelope.MediaType(resp.Header().Get("Content-Type"))
	if !envelope.IsAudio(contentType) {
		// бэкенд иногда отдаёт mp3 как octet-stream
		if contentType != "" && contentType != "application/octet-stream" {
			return nil
		}
		contentType = fallbackType
	}
	return &media.Audio{Data: data, ContentType: contentType}
}

// IsUnavailable сообщает, что ошибка вызвана недоступностью бэкенда
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrBackendUnavailable)
}

// StatusCode код ответа из ошибки или 0
func StatusCode(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return 0
}
