package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interview-gateway/internal/backend"
	"interview-gateway/internal/config"
	"interview-gateway/internal/envelope"
	"interview-gateway/internal/media"
	"interview-gateway/internal/metrics"
	"interview-gateway/internal/playback"
	"interview-gateway/internal/recording"
	"interview-gateway/internal/store"
	"interview-gateway/internal/storage"
)

type fakeBackend struct {
	mu       sync.Mutex
	intro    *media.Audio
	introErr error
	outro    *media.Audio
	reply    func(req backend.TurnRequest) (*backend.TurnReply, error)
	gate     chan struct{}
	requests []backend.TurnRequest
	outros   int
}

func defaultReply(req backend.TurnRequest) (*backend.TurnReply, error) {
	if req.Terminal {
		score := 9.0
		return &backend.TurnReply{Outro: "Thanks!", Score: &score}, nil
	}
	return &backend.TurnReply{
		Question:    fmt.Sprintf("Question %d", req.Index+1),
		ModelAnswer: fmt.Sprintf("hint %d", req.Index+1),
	}, nil
}

func (b *fakeBackend) StartInterview(ctx context.Context, jobDescription string) (*media.Audio, error) {
	return b.intro, b.introErr
}

func (b *fakeBackend) SubmitTurn(ctx context.Context, req backend.TurnRequest) (*backend.TurnReply, error) {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	gate := b.gate
	reply := b.reply
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", backend.ErrBackendUnavailable, ctx.Err())
		}
	}
	if reply == nil {
		reply = defaultReply
	}
	return reply(req)
}

func (b *fakeBackend) Outro(ctx context.Context) (*media.Audio, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outros++
	return b.outro, nil
}

func (b *fakeBackend) sent() []backend.TurnRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]backend.TurnRequest(nil), b.requests...)
}

type fakeStatus struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeStatus) MarkResultsPending(ctx context.Context, userID, jobID string) (*store.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &store.Application{ID: "app-1", UserID: userID, JobID: jobID, Status: store.StatusResultsPending}, nil
}

func (f *fakeStatus) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeTimer срабатывает сразу, кроме удерживаемых длительностей
type fakeTimer struct {
	mu        sync.Mutex
	requested []time.Duration
	hold      map[time.Duration]bool
}

func (f *fakeTimer) after(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested = append(f.requested, d)
	if f.hold[d] {
		return nil
	}
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func (f *fakeTimer) waited(d time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requested {
		if r == d {
			return true
		}
	}
	return false
}

type flakyStager struct {
	inner    *recording.Stager
	failures int
	calls    int
}

func (f *flakyStager) Persist(data []byte, sessionID string, turn int, mimeType string) (recording.StagedRef, error) {
	f.calls++
	if f.calls <= f.failures {
		return recording.StagedRef{}, fmt.Errorf("%w: disk busy", recording.ErrPersist)
	}
	return f.inner.Persist(data, sessionID, turn, mimeType)
}

type harness struct {
	session *Session
	backend *fakeBackend
	status  *fakeStatus
	archive *storage.Archive
	outbox  *playback.Outbox
	timer   *fakeTimer
	dir     string
	cfg     *config.Config
}

type harnessOption func(*harness, *Deps)

func withCaps(caps media.Capabilities) harnessOption {
	return func(h *harness, d *Deps) { d.Devices = media.NewDevices(caps) }
}

func withStager(stager Stager) harnessOption {
	return func(h *harness, d *Deps) { d.Stager = stager }
}

func newHarness(t *testing.T, be *fakeBackend, opts ...harnessOption) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		backend: be,
		status:  &fakeStatus{},
		archive: storage.NewArchive(filepath.Join(dir, "results")),
		outbox:  playback.NewOutbox(),
		timer:   &fakeTimer{hold: map[time.Duration]bool{}},
		dir:     dir,
		cfg:     config.Default(),
	}

	deps := Deps{
		Devices: media.NewDevices(media.Capabilities{AudioTracks: 1, MimeTypes: []string{"audio/webm"}}),
		Capture: recording.NewCapture(nil),
		Stager:  recording.NewStager(filepath.Join(dir, "recordings")),
		Backend: be,
		Player:  h.outbox,
		Status:  h.status,
		Archive: h.archive,
		Metrics: metrics.NewMetrics(),
	}
	for _, opt := range opts {
		opt(h, &deps)
	}

	h.session = New(Params{ID: "sess-1", JobID: "job-1", UserID: "user-1", JobContext: "Title: Go Developer"},
		h.cfg, deps, nil, WithTimer(h.timer.after))
	t.Cleanup(h.session.Close)
	return h
}

func (h *harness) answer(t *testing.T, data string) error {
	t.Helper()
	require.NoError(t, h.session.Toggle())
	require.Equal(t, PhaseRecording, h.session.Snapshot().Phase)
	require.NoError(t, h.session.AppendChunk([]byte(data)))
	return h.session.Toggle()
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session was not torn down")
	}
}

func TestStartWithoutIntroAudioUsesFallback(t *testing.T) {
	h := newHarness(t, &fakeBackend{introErr: backend.ErrBackendUnavailable})

	require.NoError(t, h.session.Start(context.Background()))

	snap := h.session.Snapshot()
	assert.Equal(t, PhaseAwaitingAnswer, snap.Phase)
	assert.Equal(t, 1, snap.TurnCount)
	assert.Equal(t, "Welcome to your AI interview. Let's begin with your introduction.", snap.Notice)
	assert.Equal(t, "Tell me about your background and experience.", snap.Question)
}

func TestStartMediaUnavailable(t *testing.T) {
	h := newHarness(t, &fakeBackend{}, withCaps(media.Capabilities{AudioTracks: 0}))

	err := h.session.Start(context.Background())
	require.ErrorIs(t, err, ErrMediaUnavailable)

	snap := h.session.Snapshot()
	assert.Equal(t, PhaseFailed, snap.Phase)
	assert.True(t, snap.Remediation)
	assert.False(t, snap.Retryable)
	assert.ErrorIs(t, h.session.Retry(), ErrNotAccepting)
	assert.ErrorIs(t, h.session.Toggle(), ErrNotAccepting)
}

func TestStartWaitsForIntroPlayback(t *testing.T) {
	h := newHarness(t, &fakeBackend{intro: &media.Audio{Data: []byte("ID3"), ContentType: "audio/mpeg"}})
	h.timer.hold[h.cfg.InterviewConfig.GraceWindow] = true

	require.NoError(t, h.session.Start(context.Background()))

	snap := h.session.Snapshot()
	assert.Equal(t, PhaseConnecting, snap.Phase)
	assert.Equal(t, 0, snap.TurnCount)
	require.NotEmpty(t, snap.Playback)
	assert.ErrorIs(t, h.session.Toggle(), ErrNotAccepting)

	require.NoError(t, h.outbox.Finish(snap.Playback, nil))
	require.Eventually(t, func() bool {
		return h.session.Snapshot().Phase == PhaseAwaitingAnswer
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, h.session.Snapshot().TurnCount)
}

func TestIntroGraceWindowForcesProgress(t *testing.T) {
	h := newHarness(t, &fakeBackend{intro: &media.Audio{Data: []byte("ID3"), ContentType: "audio/mpeg"}})

	require.NoError(t, h.session.Start(context.Background()))

	require.Eventually(t, func() bool {
		return h.session.Snapshot().Phase == PhaseAwaitingAnswer
	}, time.Second, 5*time.Millisecond)
	assert.True(t, h.timer.waited(h.cfg.InterviewConfig.GraceWindow))
}

func TestFiveTurnsComplete(t *testing.T) {
	be := &fakeBackend{}
	h := newHarness(t, be)
	h.timer.hold[h.cfg.InterviewConfig.RedirectDelay] = true
	require.NoError(t, h.session.Start(context.Background()))

	for turn := 1; turn <= 4; turn++ {
		require.NoError(t, h.answer(t, fmt.Sprintf("answer %d", turn)))
		snap := h.session.Snapshot()
		assert.Equal(t, PhaseAwaitingAnswer, snap.Phase)
		assert.Equal(t, turn+1, snap.TurnCount)
		assert.Equal(t, fmt.Sprintf("Question %d", turn+1), snap.Question)
		assert.Equal(t, 0, h.status.count())
	}

	require.NoError(t, h.answer(t, "answer 5"))
	snap := h.session.Snapshot()
	assert.Equal(t, PhaseComplete, snap.Phase)
	assert.Equal(t, 5, snap.TurnCount)
	assert.Equal(t, "Thanks!", snap.Outro)
	require.NotNil(t, snap.Score)
	assert.Equal(t, 9.0, *snap.Score)
	assert.Equal(t, 1, h.status.count())

	// шестое нажатие после завершения ничего не меняет
	assert.ErrorIs(t, h.session.Toggle(), ErrNotAccepting)
	after := h.session.Snapshot()
	assert.Equal(t, snap.Phase, after.Phase)
	assert.Equal(t, snap.TurnCount, after.TurnCount)
	assert.Equal(t, 1, h.status.count())

	sent := be.sent()
	require.Len(t, sent, 5)
	assert.Empty(t, sent[0].Question)
	for i, req := range sent {
		assert.Equal(t, i+1, req.Index)
		assert.Equal(t, "Title: Go Developer", req.JobDescription)
		assert.Equal(t, i == 4, req.Terminal)
		if i > 0 {
			assert.Equal(t, fmt.Sprintf("Question %d", i+1), req.Question)
			assert.Equal(t, fmt.Sprintf("hint %d", i+1), req.ModelAnswer)
		}
		assert.Equal(t, fmt.Sprintf("question_%d_response.webm", i+1), req.AudioName)
	}
}

func TestCompletionWithoutAudioTearsDownAfterRedirectDelay(t *testing.T) {
	h := newHarness(t, &fakeBackend{})
	require.NoError(t, h.session.Start(context.Background()))

	for turn := 1; turn <= 5; turn++ {
		require.NoError(t, h.answer(t, "ok"))
	}
	waitDone(t, h.session)

	assert.Equal(t, 1, h.status.count())
	assert.True(t, h.timer.waited(h.cfg.InterviewConfig.RedirectDelay))
	assert.False(t, h.timer.waited(h.cfg.InterviewConfig.GraceWindow))
	assert.Empty(t, h.outbox.Pending())

	snap := h.session.Snapshot()
	assert.Equal(t, PhaseComplete, snap.Phase)
	assert.True(t, snap.Closed)

	result, err := h.archive.LoadResult("sess-1")
	require.NoError(t, err)
	assert.Equal(t, storage.OutcomeCompleted, result.Outcome)
	assert.Len(t, result.Turns, 5)
	assert.Equal(t, "Thanks!", result.Outro)
}

func TestClosingAudioBlocksTeardownUntilPlaybackEnds(t *testing.T) {
	be := &fakeBackend{reply: func(req backend.TurnRequest) (*backend.TurnReply, error) {
		if req.Terminal {
			return &backend.TurnReply{Outro: "Bye", Audio: &media.Audio{Data: []byte("ID3bye"), ContentType: "audio/mpeg"}}, nil
		}
		return defaultReply(req)
	}}
	h := newHarness(t, be)
	h.timer.hold[h.cfg.InterviewConfig.GraceWindow] = true
	require.NoError(t, h.session.Start(context.Background()))

	for turn := 1; turn <= 5; turn++ {
		require.NoError(t, h.answer(t, "ok"))
	}

	snap := h.session.Snapshot()
	require.NotEmpty(t, snap.Playback)
	select {
	case <-h.session.Done():
		t.Fatal("teardown before closing audio finished")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, h.outbox.Finish(snap.Playback, playback.ErrClientPlayback))
	waitDone(t, h.session)
	assert.Equal(t, 1, h.status.count())
}

func TestEmptyRecordingKeepsTurn(t *testing.T) {
	be := &fakeBackend{}
	h := newHarness(t, be)
	require.NoError(t, h.session.Start(context.Background()))

	require.NoError(t, h.session.Toggle())
	err := h.session.Toggle()
	require.ErrorIs(t, err, recording.ErrNoAudioCaptured)

	snap := h.session.Snapshot()
	assert.Equal(t, PhaseAwaitingAnswer, snap.Phase)
	assert.Equal(t, 1, snap.TurnCount)
	assert.NotEmpty(t, snap.Error)
	assert.Empty(t, be.sent())
}

func TestNoRecordingWhileUploading(t *testing.T) {
	be := &fakeBackend{gate: make(chan struct{})}
	h := newHarness(t, be)
	require.NoError(t, h.session.Start(context.Background()))

	require.NoError(t, h.session.Toggle())
	require.NoError(t, h.session.AppendChunk([]byte("first answer")))

	uploaded := make(chan error, 1)
	go func() { uploaded <- h.session.Toggle() }()

	require.Eventually(t, func() bool {
		return h.session.Snapshot().Phase == PhaseUploading
	}, time.Second, 5*time.Millisecond)

	before := h.session.Snapshot()
	assert.ErrorIs(t, h.session.Toggle(), ErrNotAccepting)
	assert.ErrorIs(t, h.session.AppendChunk([]byte("x")), ErrNotAccepting)

	during := h.session.Snapshot()
	assert.Equal(t, PhaseUploading, during.Phase)
	assert.Equal(t, before.TurnCount, during.TurnCount)
	assert.Equal(t, before.Question, during.Question)

	close(be.gate)
	require.NoError(t, <-uploaded)
	assert.Equal(t, 2, h.session.Snapshot().TurnCount)
	assert.Len(t, be.sent(), 1)
}

func TestUploadFailureThenRetry(t *testing.T) {
	var mu sync.Mutex
	fail := true
	be := &fakeBackend{reply: func(req backend.TurnRequest) (*backend.TurnReply, error) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			fail = false
			return nil, fmt.Errorf("%w: bad envelope", envelope.ErrDecodeFailure)
		}
		return defaultReply(req)
	}}
	h := newHarness(t, be)
	require.NoError(t, h.session.Start(context.Background()))

	err := h.answer(t, "first take")
	require.ErrorIs(t, err, envelope.ErrDecodeFailure)

	snap := h.session.Snapshot()
	assert.Equal(t, PhaseFailed, snap.Phase)
	assert.True(t, snap.Retryable)
	assert.Equal(t, 1, snap.TurnCount)
	assert.ErrorIs(t, h.session.Toggle(), ErrNotAccepting)

	require.NoError(t, h.session.Retry())
	require.NoError(t, h.answer(t, "second take"))
	assert.Equal(t, 2, h.session.Snapshot().TurnCount)

	data, err := os.ReadFile(filepath.Join(h.dir, "recordings", "sess-1", "question_1_response.webm"))
	require.NoError(t, err)
	assert.Equal(t, "second take", string(data))
}

func TestPersistRetriedBeforeUpload(t *testing.T) {
	dir := t.TempDir()
	stager := &flakyStager{inner: recording.NewStager(dir), failures: 2}
	be := &fakeBackend{}
	h := newHarness(t, be, withStager(stager))
	require.NoError(t, h.session.Start(context.Background()))

	require.NoError(t, h.answer(t, "answer"))
	assert.Equal(t, 3, stager.calls)
	assert.Len(t, be.sent(), 1)
}

func TestPersistFailureNeverUploads(t *testing.T) {
	stager := &flakyStager{inner: recording.NewStager(t.TempDir()), failures: 100}
	be := &fakeBackend{}
	h := newHarness(t, be, withStager(stager))
	require.NoError(t, h.session.Start(context.Background()))

	err := h.answer(t, "answer")
	require.ErrorIs(t, err, recording.ErrPersist)
	assert.Equal(t, h.cfg.InterviewConfig.PersistAttempts, stager.calls)
	assert.Empty(t, be.sent())

	snap := h.session.Snapshot()
	assert.Equal(t, PhaseAwaitingAnswer, snap.Phase)
	assert.Equal(t, 1, snap.TurnCount)
}

func TestStatusSyncFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, &fakeBackend{})
	h.status.err = errors.New("document store offline")
	require.NoError(t, h.session.Start(context.Background()))

	for turn := 1; turn <= 5; turn++ {
		require.NoError(t, h.answer(t, "ok"))
	}
	waitDone(t, h.session)
	assert.Equal(t, PhaseComplete, h.session.Snapshot().Phase)
	assert.Equal(t, 1, h.status.count())
}

func TestEndSkipsStatusSync(t *testing.T) {
	be := &fakeBackend{outro: &media.Audio{Data: []byte("ID3outro"), ContentType: "audio/mpeg"}}
	h := newHarness(t, be)
	h.timer.hold[h.cfg.InterviewConfig.GraceWindow] = true
	require.NoError(t, h.session.Start(context.Background()))
	require.NoError(t, h.answer(t, "one"))

	require.NoError(t, h.session.Toggle())
	require.NoError(t, h.session.End())

	snap := h.session.Snapshot()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.True(t, snap.Closed)
	require.NotEmpty(t, snap.Playback)
	assert.ErrorIs(t, h.session.End(), ErrSessionClosed)
	assert.ErrorIs(t, h.session.Toggle(), ErrSessionClosed)

	audio, err := h.outbox.Fetch(snap.Playback)
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3outro"), audio.Data)

	require.NoError(t, h.outbox.Finish(snap.Playback, nil))
	waitDone(t, h.session)

	assert.Equal(t, 0, h.status.count())
	assert.Equal(t, 1, be.outros)

	result, err := h.archive.LoadResult("sess-1")
	require.NoError(t, err)
	assert.Equal(t, storage.OutcomeEnded, result.Outcome)
	assert.Len(t, result.Turns, 1)
}

func TestEndDuringUploadDropsReply(t *testing.T) {
	be := &fakeBackend{gate: make(chan struct{})}
	h := newHarness(t, be)
	require.NoError(t, h.session.Start(context.Background()))

	require.NoError(t, h.session.Toggle())
	require.NoError(t, h.session.AppendChunk([]byte("answer")))
	uploaded := make(chan error, 1)
	go func() { uploaded <- h.session.Toggle() }()

	require.Eventually(t, func() bool {
		return h.session.Snapshot().Phase == PhaseUploading
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, h.session.End())
	waitDone(t, h.session)

	assert.ErrorIs(t, <-uploaded, ErrSessionClosed)
	snap := h.session.Snapshot()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Equal(t, 0, snap.Answered)
	assert.Equal(t, 0, h.status.count())
}

func TestFollowUpAudioIsFireAndForget(t *testing.T) {
	be := &fakeBackend{reply: func(req backend.TurnRequest) (*backend.TurnReply, error) {
		reply, _ := defaultReply(req)
		reply.Audio = &media.Audio{Data: []byte("ID3q"), ContentType: "audio/mpeg"}
		return reply, nil
	}}
	h := newHarness(t, be)
	require.NoError(t, h.session.Start(context.Background()))

	require.NoError(t, h.answer(t, "one"))
	snap := h.session.Snapshot()
	assert.Equal(t, PhaseAwaitingAnswer, snap.Phase)
	require.NotEmpty(t, snap.Playback)
	require.Len(t, h.outbox.Pending(), 1)

	// следующий ответ можно записывать, не дожидаясь конца воспроизведения
	require.NoError(t, h.answer(t, "two"))
	assert.Equal(t, 3, h.session.Snapshot().TurnCount)

	h.session.Close()
	assert.Empty(t, h.outbox.Pending())
}
