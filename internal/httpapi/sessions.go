package httpapi

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"interview-gateway/internal/media"
	"interview-gateway/internal/playback"
	"interview-gateway/internal/session"
)

type createSessionRequest struct {
	JobID       string   `json:"job_id" binding:"required"`
	UserID      string   `json:"user_id"`
	AudioTracks *int     `json:"audio_tracks"`
	VideoTracks int      `json:"video_tracks"`
	MimeTypes   []string `json:"mime_types"`
}

type playbackErrorRequest struct {
	Message string `json:"message"`
}

// createSession создает сессию и запускает вступление.
// Ошибка устройств не удаляет сессию: клиент видит фазу failed с remediation.
func (s *Server) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	job, err := s.deps.Jobs.GetJob(c.Request.Context(), req.JobID)
	if err != nil {
		respondError(c, err)
		return
	}

	caps := media.Capabilities{AudioTracks: 1, VideoTracks: req.VideoTracks, MimeTypes: req.MimeTypes}
	if req.AudioTracks != nil {
		caps.AudioTracks = *req.AudioTracks
	}

	sess := s.deps.Registry.Create(session.Params{
		JobID:      job.ID,
		UserID:     req.UserID,
		JobContext: job.JobDescription(),
	}, caps)

	if err := sess.Start(c.Request.Context()); err != nil {
		s.logger.Warn("session start failed", zap.String("session_id", sess.ID()), zap.Error(err))
		respondSessionError(c, sess, err)
		return
	}

	c.JSON(http.StatusCreated, sess.Snapshot())
}

func (s *Server) lookup(c *gin.Context) (*session.Session, bool) {
	sess, err := s.deps.Registry.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) getSession(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess.Snapshot())
}

func (s *Server) appendChunk(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}

	body := http.MaxBytesReader(c.Writer, c.Request.Body, maxChunkBytes)
	data, err := io.ReadAll(body)
	if err != nil {
		respondError(c, fmt.Errorf("%w: ошибка чтения чанка: %v", errBadRequest, err))
		return
	}

	if err := sess.AppendChunk(data); err != nil {
		respondSessionError(c, sess, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// answer одна кнопка ответа: старт записи или остановка с отправкой
func (s *Server) answer(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	if err := sess.Toggle(); err != nil {
		respondSessionError(c, sess, err)
		return
	}
	c.JSON(http.StatusOK, sess.Snapshot())
}

func (s *Server) retry(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	if err := sess.Retry(); err != nil {
		respondSessionError(c, sess, err)
		return
	}
	c.JSON(http.StatusOK, sess.Snapshot())
}

func (s *Server) end(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	if err := sess.End(); err != nil {
		respondSessionError(c, sess, err)
		return
	}
	c.JSON(http.StatusOK, sess.Snapshot())
}

func (s *Server) fetchPlayback(c *gin.Context) {
	outbox, err := s.deps.Registry.Outbox(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	audio, err := outbox.Fetch(c.Param("handle"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, audio.ContentType, audio.Data)
}

func (s *Server) playbackEnded(c *gin.Context) {
	s.finishPlayback(c, nil)
}

func (s *Server) playbackError(c *gin.Context) {
	var req playbackErrorRequest
	_ = c.ShouldBindJSON(&req)
	if req.Message == "" {
		req.Message = "playback error"
	}
	s.finishPlayback(c, fmt.Errorf("%w: %s", playback.ErrClientPlayback, req.Message))
}

func (s *Server) finishPlayback(c *gin.Context, result error) {
	outbox, err := s.deps.Registry.Outbox(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if err := outbox.Finish(c.Param("handle"), result); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
