package httpapi

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"interview-gateway/internal/backend"
	"interview-gateway/internal/media"
	"interview-gateway/internal/recording"
)

// sharedSession каталог записей для клиентов без сессии
const sharedSession = "shared"

type startInterviewRequest struct {
	JobID string `json:"jobId"`
}

// saveRecording сохраняет файл ответа: расширение из имени файла, затем из MIME
func (s *Server) saveRecording(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No audio file provided"})
		return
	}
	turn, err := strconv.Atoi(c.PostForm("questionNumber"))
	if err != nil || turn <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "questionNumber must be a positive integer"})
		return
	}
	sessionID := c.DefaultPostForm("sessionId", sharedSession)

	f, err := fh.Open()
	if err != nil {
		s.saveFailed(c, err)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		s.saveFailed(c, err)
		return
	}

	mimeType := fh.Header.Get("Content-Type")
	ext := recording.ExtFor(mimeType, fh.Filename)

	ref, err := s.deps.Stager.PersistFile(data, sessionID, turn, mimeType, ext)
	if err != nil {
		s.saveFailed(c, err)
		return
	}

	s.logger.Info("recording saved",
		zap.String("session_id", sessionID),
		zap.Int("turn", turn),
		zap.String("path", ref.Path),
		zap.Int("size", ref.Size),
	)
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"filePath": "/recordings/" + sessionID + "/" + ref.FileName(),
		"message":  "File saved as " + ref.FileName(),
	})
}

func (s *Server) saveFailed(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "Failed to save audio file",
		"details": err.Error(),
	})
}

// interview отправляет сохранённую запись хода в бэкенд без серверной сессии.
// Контекст прошлого хода передаёт клиент в полях question и model_answer.
func (s *Server) interview(c *gin.Context) {
	jobID := c.PostForm("jobId")
	questionNum := c.PostForm("questionNum")
	if jobID == "" || questionNum == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Both jobId and questionNum are required"})
		return
	}
	turn, err := strconv.Atoi(questionNum)
	if err != nil || turn <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "questionNum must be a positive integer"})
		return
	}

	ctx := c.Request.Context()
	job, err := s.deps.Jobs.GetJob(ctx, jobID)
	if err != nil {
		respondError(c, err)
		return
	}

	sessionID := c.DefaultPostForm("sessionId", sharedSession)
	ref, data, err := s.deps.Stager.Load(sessionID, turn)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Recording file not found: %s", recording.FileName(turn, ".webm"))})
			return
		}
		respondError(c, err)
		return
	}

	audio := &media.Audio{Data: data, ContentType: ref.MimeType}
	if audio.ContentType == "" {
		audio.ContentType = "audio/webm"
	}

	req := backend.TurnRequest{
		Index:          turn,
		JobDescription: job.JobDescription(),
		Question:       c.PostForm("question"),
		ModelAnswer:    c.PostForm("model_answer"),
		Audio:          audio,
		AudioName:      ref.FileName(),
		Terminal:       turn >= s.deps.Config.GetTotalTurns(),
	}
	if s.deps.Transcriber != nil {
		req.HumanAnswer = s.deps.Transcriber.BestEffort(ctx, audio, ref.FileName())
	}

	reply, err := s.deps.Backend.SubmitTurn(ctx, req)
	s.deps.Metrics.IncrementBackendCall(err == nil)
	if err != nil {
		respondError(c, err)
		return
	}
	s.deps.Metrics.IncrementTurnsUploaded()

	c.JSON(http.StatusOK, normalizeReply(reply))
}

// normalizeReply плоский JSON для клиента, аудио в base64
func normalizeReply(reply *backend.TurnReply) gin.H {
	out := gin.H{}
	for k, v := range reply.Extra {
		out[k] = v
	}
	if reply.Question != "" {
		out["question"] = reply.Question
	}
	if reply.ModelAnswer != "" {
		out["model_answer"] = reply.ModelAnswer
	}
	if reply.Outro != "" {
		out["outro"] = reply.Outro
	}
	if reply.Score != nil {
		out["score"] = *reply.Score
	}
	if reply.Audio.Empty() {
		out["audio"] = nil
	} else {
		out["audio"] = base64.StdEncoding.EncodeToString(reply.Audio.Data)
	}
	return out
}

func (s *Server) startInterview(c *gin.Context) {
	var req startInterviewRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.JobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Job ID is required"})
		return
	}

	ctx := c.Request.Context()
	job, err := s.deps.Jobs.GetJob(ctx, req.JobID)
	if err != nil {
		respondError(c, err)
		return
	}

	audio, err := s.deps.Backend.StartInterview(ctx, job.JobDescription())
	s.deps.Metrics.IncrementBackendCall(err == nil)
	if err != nil {
		respondError(c, err)
		return
	}
	s.writeAudio(c, audio, "ai_voice.mp3")
}

func (s *Server) endInterview(c *gin.Context) {
	audio, err := s.deps.Backend.Outro(c.Request.Context())
	s.deps.Metrics.IncrementBackendCall(err == nil)
	if err != nil {
		respondError(c, err)
		return
	}
	s.writeAudio(c, audio, "outro.mp3")
}

func (s *Server) writeAudio(c *gin.Context, audio *media.Audio, fileName string) {
	if audio.Empty() {
		respondError(c, fmt.Errorf("%w: ответ без аудио", backend.ErrBackendUnavailable))
		return
	}
	contentType := audio.ContentType
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", fileName))
	c.Data(http.StatusOK, contentType, audio.Data)
}
