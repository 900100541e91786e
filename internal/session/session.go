package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"interview-gateway/internal/backend"
	"interview-gateway/internal/config"
	"interview-gateway/internal/envelope"
	"interview-gateway/internal/media"
	"interview-gateway/internal/metrics"
	"interview-gateway/internal/playback"
	"interview-gateway/internal/recording"
	"interview-gateway/internal/storage"
)

// Deps внешние компоненты сессии. Transcriber, Status и Archive необязательны.
type Deps struct {
	Devices     Devices
	Capture     Capturer
	Stager      Stager
	Backend     Backend
	Transcriber Transcriber
	Player      Player
	Status      StatusSync
	Archive     Archiver
	Metrics     *metrics.Metrics
}

// Option настройка сессии
type Option func(*Session)

// WithTimer подменяет таймер ожидания воспроизведения и задержки перед закрытием
func WithTimer(after func(time.Duration) <-chan time.Time) Option {
	return func(s *Session) {
		s.after = after
	}
}

// WithClock подменяет текущее время
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// Session оркестратор одного интервью: фазы, ходы, загрузка ответов.
// Мьютекс защищает состояние и никогда не удерживается во время I/O.
type Session struct {
	params Params
	cfg    *config.Config
	deps   Deps
	logger *zap.Logger
	after  func(time.Duration) <-chan time.Time
	now    func() time.Time

	// ctx живёт до закрытия сессии. Загрузки отменяются только им.
	ctx          context.Context
	cancel       context.CancelFunc
	done         chan struct{}
	teardownOnce sync.Once

	mu           sync.Mutex
	phase        Phase
	turnCount    int
	question     string
	lastQuestion string
	lastHint     string
	notice       string
	lastErr      error
	remediation  bool
	ended        bool
	closed       bool
	statusSynced bool
	stream       *media.Stream
	handle       *recording.Handle
	playbackID   string
	turns        []storage.TurnRecord
	outro        string
	score        *float64
	updatedAt    time.Time
}

// New создает сессию в фазе Idle
func New(params Params, cfg *config.Config, deps Deps, logger *zap.Logger, opts ...Option) *Session {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewMetrics()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		params: params,
		cfg:    cfg,
		deps:   deps,
		logger: logger.With(zap.String("session_id", params.ID)),
		after:  time.After,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		phase:  PhaseIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.updatedAt = s.now()
	return s
}

// ID идентификатор сессии
func (s *Session) ID() string {
	return s.params.ID
}

// Done закрывается после завершения сессии
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Snapshot текущее состояние
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:          s.params.ID,
		JobID:       s.params.JobID,
		Phase:       s.phase,
		TurnCount:   s.turnCount,
		TotalTurns:  s.totalTurns(),
		Question:    s.question,
		Notice:      s.notice,
		Playback:    s.playbackID,
		Outro:       s.outro,
		Score:       s.score,
		Remediation: s.remediation,
		Retryable:   s.phase == PhaseFailed && !s.remediation && !s.closed,
		Answered:    len(s.turns),
		Closed:      s.closed,
		UpdatedAt:   s.updatedAt,
	}
	if s.lastErr != nil {
		snap.Error = s.lastErr.Error()
	}
	return snap
}

// LastActivity время последнего изменения состояния
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// Start Idle -> Connecting: захват устройств и вступление.
// Без вступительного аудио сессия сразу переходит к первому вопросу.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.phase != PhaseIdle {
		s.mu.Unlock()
		return ErrNotAccepting
	}
	s.setPhase(PhaseConnecting)
	s.notice = s.cfg.Fallbacks.Introducing
	s.mu.Unlock()

	s.deps.Metrics.IncrementSessionsStarted()

	stream, err := s.deps.Devices.Acquire(ctx)
	if err != nil {
		s.mu.Lock()
		s.setPhase(PhaseFailed)
		s.remediation = true
		s.lastErr = ErrMediaUnavailable
		s.mu.Unlock()

		s.deps.Metrics.IncrementSessionsFailed()
		s.logger.Warn("media device unavailable", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrMediaUnavailable, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.deps.Devices.Release(stream)
		return ErrSessionClosed
	}
	s.stream = stream
	s.mu.Unlock()

	callCtx, cancel := s.callContext()
	intro, err := s.deps.Backend.StartInterview(callCtx, s.params.JobContext)
	cancel()
	s.deps.Metrics.IncrementBackendCall(err == nil)
	if err != nil {
		s.logger.Warn("intro fetch failed, using fallback text", zap.Error(err))
		intro = nil
	}

	if intro.Empty() {
		s.mu.Lock()
		s.notice = s.cfg.Fallbacks.Welcome
		s.enterFirstTurn()
		s.mu.Unlock()
		return nil
	}

	handle, done, err := s.deps.Player.Play(intro)
	if err != nil {
		s.logger.Warn("intro playback not queued", zap.Error(err))
		s.mu.Lock()
		s.enterFirstTurn()
		s.mu.Unlock()
		return nil
	}

	s.mu.Lock()
	s.playbackID = handle
	s.mu.Unlock()

	go func() {
		s.waitPlayback(done, "intro")
		s.mu.Lock()
		s.enterFirstTurn()
		s.mu.Unlock()
	}()
	return nil
}

// Toggle одна кнопка: первое нажатие начинает запись, второе останавливает и отправляет.
// Загрузка выполняется синхронно и не отменяется вызывающим, только закрытием сессии.
func (s *Session) Toggle() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}

	switch s.phase {
	case PhaseAwaitingAnswer:
		defer s.mu.Unlock()
		if s.turnCount < 1 || s.turnCount > s.totalTurns() {
			return ErrNotAccepting
		}
		if s.stream == nil {
			return ErrMediaUnavailable
		}
		handle, err := s.deps.Capture.Start(s.stream)
		if err != nil {
			return err
		}
		s.handle = handle
		s.lastErr = nil
		s.setPhase(PhaseRecording)
		return nil

	case PhaseRecording:
		rec, err := s.deps.Capture.Stop(s.handle)
		s.handle = nil
		if err != nil {
			s.setPhase(PhaseAwaitingAnswer)
			s.mu.Unlock()
			return err
		}
		if rec.Empty() {
			s.lastErr = recording.ErrNoAudioCaptured
			s.setPhase(PhaseAwaitingAnswer)
			s.mu.Unlock()
			return recording.ErrNoAudioCaptured
		}

		req := backend.TurnRequest{
			Index:          s.turnCount,
			JobDescription: s.params.JobContext,
			Question:       s.lastQuestion,
			ModelAnswer:    s.lastHint,
			Terminal:       s.turnCount >= s.totalTurns(),
		}
		question := s.question
		s.setPhase(PhaseUploading)
		s.mu.Unlock()

		return s.upload(req, question, rec)

	default:
		s.mu.Unlock()
		return ErrNotAccepting
	}
}

// AppendChunk добавляет чанк к активной записи
func (s *Session) AppendChunk(p []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.phase != PhaseRecording || s.handle == nil {
		s.mu.Unlock()
		return ErrNotAccepting
	}
	handle := s.handle
	s.updatedAt = s.now()
	s.mu.Unlock()

	_, err := handle.Write(p)
	return err
}

// Retry после ошибки хода возвращает к ожиданию ответа. Ошибку устройств так не исправить.
func (s *Session) Retry() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.phase != PhaseFailed || s.remediation {
		return ErrNotAccepting
	}
	s.lastErr = nil
	s.setPhase(PhaseAwaitingAnswer)
	return nil
}

// End досрочное завершение из любой нетерминальной фазы. Статус отклика не меняется.
func (s *Session) End() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.phase == PhaseComplete {
		s.mu.Unlock()
		return ErrNotAccepting
	}
	if s.phase == PhaseRecording {
		s.deps.Capture.Abort()
	}
	s.handle = nil
	stream := s.stream
	s.stream = nil
	s.ended = true
	s.closed = true
	s.lastErr = nil
	s.setPhase(PhaseIdle)
	s.mu.Unlock()

	s.deps.Metrics.IncrementSessionsEnded()
	if stream != nil {
		s.deps.Devices.Release(stream)
	}

	callCtx, cancel := s.callContext()
	outro, err := s.deps.Backend.Outro(callCtx)
	cancel()
	s.deps.Metrics.IncrementBackendCall(err == nil)
	if err != nil {
		s.logger.Warn("closing audio fetch failed", zap.Error(err))
	}

	go s.finish(s.playClosing(outro))
	return nil
}

// Close немедленно закрывает сессию без ожиданий
func (s *Session) Close() {
	s.teardown()
}

func (s *Session) upload(req backend.TurnRequest, question string, rec recording.Recording) error {
	logger := s.logger.With(zap.Int("turn", req.Index))

	ref, err := s.persist(rec, req.Index)
	if err != nil {
		logger.Error("recording not persisted", zap.Error(err))
		s.mu.Lock()
		if !s.closed {
			s.lastErr = err
			s.setPhase(PhaseAwaitingAnswer)
		}
		s.mu.Unlock()
		return err
	}

	audio := &media.Audio{Data: rec.Data, ContentType: ref.MimeType}
	if audio.ContentType == "" {
		audio.ContentType = "audio/webm"
	}
	req.Audio = audio
	req.AudioName = ref.FileName()

	if s.deps.Transcriber != nil {
		transcribeCtx, cancel := s.callContext()
		req.HumanAnswer = s.deps.Transcriber.BestEffort(transcribeCtx, audio, ref.FileName())
		cancel()
	}

	callCtx, cancel := s.callContext()
	reply, err := s.deps.Backend.SubmitTurn(callCtx, req)
	cancel()
	s.deps.Metrics.IncrementBackendCall(err == nil)

	if err != nil {
		if errors.Is(err, envelope.ErrDecodeFailure) || errors.Is(err, envelope.ErrMalformedEnvelope) {
			s.deps.Metrics.IncrementDecodeFailures()
		}
		logger.Error("turn upload failed", zap.Error(err))

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return ErrSessionClosed
		}
		s.lastErr = err
		s.setPhase(PhaseFailed)
		s.mu.Unlock()
		return err
	}

	s.deps.Metrics.IncrementTurnsUploaded()
	record := storage.TurnRecord{
		Index:       req.Index,
		Question:    question,
		Answer:      req.HumanAnswer,
		AnswerAudio: ref.Path,
		ModelAnswer: reply.ModelAnswer,
	}

	if req.Terminal {
		return s.complete(record, reply)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		logger.Info("reply dropped, session already closed")
		return ErrSessionClosed
	}
	s.turns = append(s.turns, record)
	if reply.Question != "" {
		s.lastQuestion = reply.Question
		s.question = reply.Question
	}
	if reply.ModelAnswer != "" {
		s.lastHint = reply.ModelAnswer
	}
	s.turnCount++
	s.lastErr = nil
	s.setPhase(PhaseAwaitingAnswer)
	s.mu.Unlock()

	// вопросы 2-5 не ждут окончания воспроизведения
	if !reply.Audio.Empty() {
		handle, done, err := s.deps.Player.Play(reply.Audio)
		if err != nil {
			logger.Warn("question audio not queued", zap.Error(err))
			return nil
		}
		s.mu.Lock()
		s.playbackID = handle
		s.mu.Unlock()
		go func() {
			if err := <-done; err != nil && !errors.Is(err, playback.ErrRevoked) {
				logger.Warn("question playback failed", zap.Error(err))
			}
		}()
	}
	return nil
}

func (s *Session) complete(record storage.TurnRecord, reply *backend.TurnReply) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.turns = append(s.turns, record)
	s.outro = reply.Outro
	if s.outro == "" {
		s.outro = s.cfg.Fallbacks.Complete
	}
	s.score = reply.Score
	s.notice = s.outro
	s.lastErr = nil
	s.setPhase(PhaseComplete)
	needSync := !s.statusSynced
	s.statusSynced = true
	stream := s.stream
	s.stream = nil
	s.mu.Unlock()

	s.deps.Metrics.IncrementSessionsCompleted()

	if needSync {
		s.syncStatus()
	}
	if stream != nil {
		s.deps.Devices.Release(stream)
	}

	go s.finish(s.playClosing(reply.Audio))
	return nil
}

func (s *Session) syncStatus() {
	if s.deps.Status == nil {
		return
	}
	callCtx, cancel := s.callContext()
	defer cancel()

	app, err := s.deps.Status.MarkResultsPending(callCtx, s.params.UserID, s.params.JobID)
	if err != nil {
		s.logger.Warn("application status not updated", zap.Error(err))
		return
	}
	s.deps.Metrics.IncrementStatusSyncs()
	s.logger.Info("application status updated",
		zap.String("application_id", app.ID),
		zap.String("status", app.Status),
	)
}

// persist сохраняет запись с ограниченным числом попыток
func (s *Session) persist(rec recording.Recording, turn int) (recording.StagedRef, error) {
	attempts := s.cfg.InterviewConfig.PersistAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		ref, err := s.deps.Stager.Persist(rec.Data, s.params.ID, turn, rec.MimeType)
		if err == nil {
			return ref, nil
		}
		lastErr = err
		s.logger.Warn("persist attempt failed", zap.Int("turn", turn), zap.Int("attempt", attempt), zap.Error(err))
	}
	if !errors.Is(lastErr, recording.ErrPersist) {
		lastErr = fmt.Errorf("%w: %w", recording.ErrPersist, lastErr)
	}
	return recording.StagedRef{}, lastErr
}

// playClosing ставит прощальное аудио. nil означает, что ждать нечего.
func (s *Session) playClosing(audio *media.Audio) <-chan error {
	if audio.Empty() {
		return nil
	}
	handle, done, err := s.deps.Player.Play(audio)
	if err != nil {
		s.logger.Warn("closing audio not queued", zap.Error(err))
		return nil
	}
	s.mu.Lock()
	s.playbackID = handle
	s.mu.Unlock()
	return done
}

// finish ждёт окончания прощального аудио (не дольше окна ожидания), затем задержку перед закрытием
func (s *Session) finish(done <-chan error) {
	if done != nil {
		s.waitPlayback(done, "closing")
	}

	select {
	case <-s.after(s.cfg.InterviewConfig.RedirectDelay):
	case <-s.done:
		return
	}
	s.teardown()
}

func (s *Session) waitPlayback(done <-chan error, what string) {
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, playback.ErrRevoked) {
			s.logger.Warn("playback failed", zap.String("audio", what), zap.Error(err))
		}
	case <-s.after(s.cfg.InterviewConfig.GraceWindow):
		s.logger.Debug("playback grace window elapsed", zap.String("audio", what))
	case <-s.done:
	}
}

func (s *Session) teardown() {
	s.teardownOnce.Do(func() {
		s.cancel()
		revoked := s.deps.Player.RevokeAll()

		s.mu.Lock()
		s.closed = true
		if s.handle != nil {
			s.deps.Capture.Abort()
			s.handle = nil
		}
		stream := s.stream
		s.stream = nil
		s.playbackID = ""
		result := s.resultLocked()
		s.updatedAt = s.now()
		s.mu.Unlock()

		if stream != nil {
			s.deps.Devices.Release(stream)
		}

		if s.deps.Archive != nil {
			if err := s.deps.Archive.SaveResult(result); err != nil {
				s.logger.Error("interview result not archived", zap.Error(err))
			}
		}

		s.logger.Info("session closed",
			zap.String("outcome", result.Outcome),
			zap.Int("answered", len(result.Turns)),
			zap.Int("revoked_playback", revoked),
		)
		close(s.done)
	})
}

func (s *Session) resultLocked() *storage.InterviewResult {
	outcome := storage.OutcomeAbandoned
	switch {
	case s.phase == PhaseComplete:
		outcome = storage.OutcomeCompleted
	case s.ended:
		outcome = storage.OutcomeEnded
	case s.phase == PhaseFailed:
		outcome = storage.OutcomeFailed
	}

	turns := make([]storage.TurnRecord, len(s.turns))
	copy(turns, s.turns)

	return &storage.InterviewResult{
		InterviewID: s.params.ID,
		Timestamp:   s.now().UTC().Format(time.RFC3339),
		JobID:       s.params.JobID,
		UserID:      s.params.UserID,
		Outcome:     outcome,
		Turns:       turns,
		Outro:       s.outro,
		Score:       s.score,
	}
}

// enterFirstTurn Connecting -> AwaitingAnswer. Вызывается под мьютексом.
func (s *Session) enterFirstTurn() {
	if s.closed || s.phase != PhaseConnecting {
		return
	}
	s.turnCount = 1
	s.question = s.cfg.Fallbacks.FirstQuestion
	s.setPhase(PhaseAwaitingAnswer)
}

func (s *Session) setPhase(phase Phase) {
	s.phase = phase
	s.updatedAt = s.now()
}

func (s *Session) totalTurns() int {
	if n := s.cfg.GetTotalTurns(); n > 0 {
		return n
	}
	return 5
}

func (s *Session) callContext() (context.Context, context.CancelFunc) {
	timeout := s.cfg.InterviewConfig.BackendTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	return context.WithTimeout(s.ctx, timeout)
}
