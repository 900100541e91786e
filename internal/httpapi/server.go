package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"interview-gateway/internal/config"
	"interview-gateway/internal/metrics"
	"interview-gateway/internal/recording"
	"interview-gateway/internal/session"
	"interview-gateway/internal/storage"
	"interview-gateway/internal/store"
)

// maxChunkBytes предел одного чанка записи
const maxChunkBytes = 8 << 20

// maxUploadBytes предел файла в /api/save-recording
const maxUploadBytes = 64 << 20

// Jobs источник описаний вакансий
type Jobs interface {
	GetJob(ctx context.Context, id string) (*store.Job, error)
}

// RecordingStager записи ответов для прокси-эндпоинтов без сессии
type RecordingStager interface {
	PersistFile(data []byte, sessionID string, turn int, mimeType, ext string) (recording.StagedRef, error)
	Load(sessionID string, turn int) (recording.StagedRef, []byte, error)
}

// ResultArchive итоги завершённых интервью
type ResultArchive interface {
	ListResults() ([]string, error)
	LoadResult(interviewID string) (*storage.InterviewResult, error)
}

// Deps зависимости HTTP-слоя
type Deps struct {
	Registry    *session.Registry
	Jobs        Jobs
	Backend     session.Backend
	Transcriber session.Transcriber
	Stager      RecordingStager
	Archive     ResultArchive
	Metrics     *metrics.Metrics
	Config      *config.Config
	RateLimiter *RateLimiter
	// Health проверка хранилища для /healthz
	Health func(ctx context.Context) error
}

type Server struct {
	deps   Deps
	logger *zap.Logger
}

func New(deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Config == nil {
		deps.Config = config.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewMetrics()
	}
	return &Server{
		deps:   deps,
		logger: logger.Named("http"),
	}
}

// Router собирает маршруты. Чанки и воспроизведение не ограничиваются по частоте.
func (s *Server) Router() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(s.logger))

	engine.GET("/healthz", s.healthz)
	engine.GET("/metrics", s.metrics)

	stream := engine.Group("/api/sessions/:id")
	{
		stream.POST("/chunks", s.appendChunk)
		stream.GET("/playback/:handle", s.fetchPlayback)
		stream.POST("/playback/:handle/ended", s.playbackEnded)
		stream.POST("/playback/:handle/error", s.playbackError)
	}

	api := engine.Group("/api")
	if s.deps.RateLimiter != nil {
		api.Use(s.deps.RateLimiter.Middleware())
	}
	{
		api.POST("/sessions", s.createSession)
		api.GET("/sessions/:id", s.getSession)
		api.POST("/sessions/:id/answer", s.answer)
		api.POST("/sessions/:id/retry", s.retry)
		api.POST("/sessions/:id/end", s.end)

		api.POST("/save-recording", s.saveRecording)
		api.POST("/interview", s.interview)
		api.POST("/start-interviews", s.startInterview)
		api.GET("/end-interview", s.endInterview)

		api.GET("/results", s.listResults)
		api.GET("/results/:id", s.getResult)
	}

	return engine
}

func (s *Server) healthz(c *gin.Context) {
	if s.deps.Health != nil {
		if err := s.deps.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) metrics(c *gin.Context) {
	active := 0
	if s.deps.Registry != nil {
		active = s.deps.Registry.Len()
	}
	c.JSON(http.StatusOK, gin.H{
		"counters":        s.deps.Metrics.GetSnapshot(),
		"active_sessions": active,
	})
}
