package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"interview-gateway/internal/config"
	"interview-gateway/internal/media"
	"interview-gateway/internal/metrics"
	"interview-gateway/internal/playback"
	"interview-gateway/internal/recording"
)

// ErrNotFound сессии с таким ID нет
var ErrNotFound = errors.New("session not found")

// Shared компоненты, общие для всех сессий
type Shared struct {
	Stager      Stager
	Backend     Backend
	Transcriber Transcriber
	Status      StatusSync
	Archive     Archiver
	Metrics     *metrics.Metrics
}

type entry struct {
	session *Session
	outbox  *playback.Outbox
}

// Registry живые сессии процесса
type Registry struct {
	cfg    *config.Config
	shared Shared
	logger *zap.Logger
	opts   []Option

	sessionsMutex sync.RWMutex
	sessions      map[string]*entry
}

func NewRegistry(cfg *config.Config, shared Shared, logger *zap.Logger, opts ...Option) *Registry {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if shared.Metrics == nil {
		shared.Metrics = metrics.NewMetrics()
	}
	return &Registry{
		cfg:      cfg,
		shared:   shared,
		logger:   logger.Named("sessions"),
		opts:     opts,
		sessions: make(map[string]*entry),
	}
}

// Create создает сессию с устройствами по заявленным возможностям клиента.
// Сессия удаляется из реестра, как только закрывается.
func (r *Registry) Create(params Params, caps media.Capabilities) *Session {
	if params.ID == "" {
		params.ID = uuid.NewString()
	}

	outbox := playback.NewOutbox()
	deps := Deps{
		Devices:     media.NewDevices(caps),
		Capture:     recording.NewCapture(r.cfg.Recording.PreferredTypes),
		Stager:      r.shared.Stager,
		Backend:     r.shared.Backend,
		Transcriber: r.shared.Transcriber,
		Player:      outbox,
		Status:      r.shared.Status,
		Archive:     r.shared.Archive,
		Metrics:     r.shared.Metrics,
	}
	s := New(params, r.cfg, deps, r.logger, r.opts...)

	r.sessionsMutex.Lock()
	r.sessions[params.ID] = &entry{session: s, outbox: outbox}
	r.sessionsMutex.Unlock()

	go func() {
		<-s.Done()
		r.remove(s)
	}()
	return s
}

// Get возвращает сессию
func (r *Registry) Get(id string) (*Session, error) {
	r.sessionsMutex.RLock()
	defer r.sessionsMutex.RUnlock()

	e, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e.session, nil
}

// Outbox очередь воспроизведения сессии
func (r *Registry) Outbox(id string) (*playback.Outbox, error) {
	r.sessionsMutex.RLock()
	defer r.sessionsMutex.RUnlock()

	e, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e.outbox, nil
}

// Len количество живых сессий
func (r *Registry) Len() int {
	r.sessionsMutex.RLock()
	defer r.sessionsMutex.RUnlock()
	return len(r.sessions)
}

// StartCleanup раз в interval закрывает сессии без активности дольше idle_timeout
func (r *Registry) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.CleanupInactive(time.Now())
			}
		}
	}()
}

// CleanupInactive закрывает сессии, неактивные дольше idle_timeout на момент now
func (r *Registry) CleanupInactive(now time.Time) int {
	idle := r.cfg.InterviewConfig.IdleTimeout
	if idle <= 0 {
		idle = 24 * time.Hour
	}
	cutoff := now.Add(-idle)

	r.sessionsMutex.RLock()
	var stale []*Session
	for _, e := range r.sessions {
		if e.session.LastActivity().Before(cutoff) {
			stale = append(stale, e.session)
		}
	}
	r.sessionsMutex.RUnlock()

	for _, s := range stale {
		r.logger.Info("closing inactive session", zap.String("session_id", s.ID()))
		s.Close()
		r.remove(s)
	}
	return len(stale)
}

// CloseAll закрывает все сессии при остановке сервиса
func (r *Registry) CloseAll() {
	r.sessionsMutex.RLock()
	all := make([]*Session, 0, len(r.sessions))
	for _, e := range r.sessions {
		all = append(all, e.session)
	}
	r.sessionsMutex.RUnlock()

	for _, s := range all {
		s.Close()
		r.remove(s)
	}
}

func (r *Registry) remove(s *Session) {
	r.sessionsMutex.Lock()
	defer r.sessionsMutex.Unlock()

	if e, ok := r.sessions[s.ID()]; ok && e.session == s {
		delete(r.sessions, s.ID())
	}
}
