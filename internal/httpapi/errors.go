package httpapi

import (
	"errors"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"interview-gateway/internal/backend"
	"interview-gateway/internal/envelope"
	"interview-gateway/internal/playback"
	"interview-gateway/internal/recording"
	"interview-gateway/internal/session"
	"interview-gateway/internal/storage"
	"interview-gateway/internal/store"
)

// errBadRequest некорректные входные данные клиента
var errBadRequest = errors.New("bad request")

// statusFor сопоставляет ошибку домена с HTTP-статусом
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, storage.ErrNotFound),
		errors.Is(err, playback.ErrUnknownHandle),
		errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, session.ErrNotAccepting),
		errors.Is(err, session.ErrSessionClosed),
		errors.Is(err, recording.ErrConcurrentRecording),
		errors.Is(err, playback.ErrOutboxClosed):
		return http.StatusConflict
	case errors.Is(err, recording.ErrNoAudioCaptured),
		errors.Is(err, recording.ErrNoAudioTrack),
		errors.Is(err, session.ErrMediaUnavailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, backend.ErrBackendUnavailable),
		errors.Is(err, backend.ErrUnsupportedContentType),
		errors.Is(err, envelope.ErrDecodeFailure),
		errors.Is(err, envelope.ErrMalformedEnvelope):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// respondSessionError ошибка действия вместе с состоянием сессии
func respondSessionError(c *gin.Context, s *session.Session, err error) {
	status := statusFor(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{
		"error":   err.Error(),
		"session": s.Snapshot(),
	})
}
