package session

import (
	"context"
	"errors"
	"time"

	"interview-gateway/internal/backend"
	"interview-gateway/internal/media"
	"interview-gateway/internal/recording"
	"interview-gateway/internal/store"
	"interview-gateway/internal/storage"
)

var (
	// ErrMediaUnavailable устройство не получено. Нужен возврат к шагу разрешений, повтор не поможет.
	ErrMediaUnavailable = errors.New("media device unavailable")
	// ErrNotAccepting действие недопустимо в текущей фазе. Состояние не меняется.
	ErrNotAccepting = errors.New("session is not accepting this action")
	ErrSessionClosed = errors.New("session closed")
)

// Phase фаза интервью
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseConnecting     Phase = "connecting"
	PhaseAwaitingAnswer Phase = "awaiting_answer"
	PhaseRecording      Phase = "recording"
	PhaseUploading      Phase = "uploading"
	PhaseComplete       Phase = "complete"
	PhaseFailed         Phase = "failed"
)

// Devices захват и освобождение микрофона
type Devices interface {
	Acquire(ctx context.Context) (*media.Stream, error)
	Release(stream *media.Stream)
}

// Capturer запись ответа
type Capturer interface {
	Start(stream recording.Stream) (*recording.Handle, error)
	Stop(h *recording.Handle) (recording.Recording, error)
	Abort() bool
}

// Stager сохранение записи на диск
type Stager interface {
	Persist(data []byte, sessionID string, turn int, mimeType string) (recording.StagedRef, error)
}

// Backend AI-бэкенд интервью
type Backend interface {
	StartInterview(ctx context.Context, jobDescription string) (*media.Audio, error)
	SubmitTurn(ctx context.Context, req backend.TurnRequest) (*backend.TurnReply, error)
	Outro(ctx context.Context) (*media.Audio, error)
}

// Transcriber распознавание ответа. Ошибки остаются внутри: пустая строка.
type Transcriber interface {
	BestEffort(ctx context.Context, audio *media.Audio, fileName string) string
}

// Player очередь воспроизведения на клиенте
type Player interface {
	Play(audio *media.Audio) (string, <-chan error, error)
	RevokeAll() int
}

// StatusSync обновление статуса отклика после интервью
type StatusSync interface {
	MarkResultsPending(ctx context.Context, userID, jobID string) (*store.Application, error)
}

// Archiver сохранение итога интервью
type Archiver interface {
	SaveResult(result *storage.InterviewResult) error
}

// Params идентичность сессии. JobContext вычисляется один раз при создании.
type Params struct {
	ID         string
	JobID      string
	UserID     string
	JobContext string
}

// Snapshot состояние сессии для клиента
type Snapshot struct {
	ID          string    `json:"id"`
	JobID       string    `json:"job_id,omitempty"`
	Phase       Phase     `json:"phase"`
	TurnCount   int       `json:"turn_count"`
	TotalTurns  int       `json:"total_turns"`
	Question    string    `json:"question,omitempty"`
	Notice      string    `json:"notice,omitempty"`
	Playback    string    `json:"playback,omitempty"`
	Outro       string    `json:"outro,omitempty"`
	Score       *float64  `json:"score,omitempty"`
	Error       string    `json:"error,omitempty"`
	Remediation bool      `json:"remediation,omitempty"`
	Retryable   bool      `json:"retryable,omitempty"`
	Answered    int       `json:"answered"`
	Closed      bool      `json:"closed"`
	UpdatedAt   time.Time `json:"updated_at"`
}
