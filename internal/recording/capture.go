package recording

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrConcurrentRecording вторая запись при активной первой. Ошибка вызывающего кода.
	ErrConcurrentRecording = errors.New("recording already in progress")
	// ErrNoAudioTrack у потока нет аудиодорожки
	ErrNoAudioTrack = errors.New("stream has no audio track")
	// ErrUnknownHandle handle не принадлежит этому захвату или уже остановлен
	ErrUnknownHandle = errors.New("unknown recording handle")
	// ErrNoAudioCaptured запись остановлена без единого байта
	ErrNoAudioCaptured = errors.New("no audio captured")
)

// PreferredTypes порядок выбора формата: сначала более совместимые
var PreferredTypes = []string{
	"audio/webm",
	"audio/ogg;codecs=opus",
	"audio/mp4",
}

// Stream источник звука, переданный оркестратором по ссылке
type Stream interface {
	AudioTracks() int
	IsTypeSupported(mimeType string) bool
}

// Recording итог одной записи
type Recording struct {
	Data     []byte
	MimeType string
	Chunks   int
	Duration time.Duration
}

// Empty сообщает, что ничего не записано
func (r Recording) Empty() bool {
	return len(r.Data) == 0
}

// Handle активная запись. Чанки приходят через Write.
type Handle struct {
	mimeType  string
	startedAt time.Time

	mu      sync.Mutex
	chunks  [][]byte
	stopped bool
}

// MimeType выбранный формат записи
func (h *Handle) MimeType() string {
	return h.mimeType
}

// Write добавляет чанк. Пустые чанки игнорируются, вызов не блокируется.
func (h *Handle) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return 0, ErrUnknownHandle
	}
	if len(p) == 0 {
		return 0, nil
	}
	chunk := make([]byte, len(p))
	copy(chunk, p)
	h.chunks = append(h.chunks, chunk)
	return len(p), nil
}

func (h *Handle) finish(now time.Time) Recording {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stopped = true
	rec := Recording{
		MimeType: h.mimeType,
		Chunks:   len(h.chunks),
		Duration: now.Sub(h.startedAt),
	}
	if len(h.chunks) > 0 {
		rec.Data = bytes.Join(h.chunks, nil)
	}
	h.chunks = nil
	return rec
}

// Capture захват звука для одной сессии. Одновременно активна только одна запись.
type Capture struct {
	preferred []string
	now       func() time.Time

	mu     sync.Mutex
	active *Handle
}

// NewCapture создает захват с порядком форматов. Пустой список означает PreferredTypes.
func NewCapture(preferred []string) *Capture {
	if len(preferred) == 0 {
		preferred = PreferredTypes
	}
	return &Capture{
		preferred: preferred,
		now:       time.Now,
	}
}

// Start начинает запись
func (c *Capture) Start(stream Stream) (*Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		return nil, ErrConcurrentRecording
	}
	if stream == nil || stream.AudioTracks() == 0 {
		return nil, ErrNoAudioTrack
	}

	c.active = &Handle{
		mimeType:  c.selectType(stream),
		startedAt: c.now(),
	}
	return c.active, nil
}

// Active возвращает текущую запись, если она есть
func (c *Capture) Active() *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Stop завершает запись и склеивает чанки. Пустой результат означает, что звука не было.
func (c *Capture) Stop(h *Handle) (Recording, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if h == nil || h != c.active {
		return Recording{}, ErrUnknownHandle
	}
	c.active = nil
	return h.finish(c.now()), nil
}

// Abort останавливает активную запись и выбрасывает данные
func (c *Capture) Abort() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return false
	}
	c.active.finish(c.now())
	c.active = nil
	return true
}

// selectType выбирает первый поддерживаемый формат. Пустая строка значит формат рекордера по умолчанию.
func (c *Capture) selectType(stream Stream) string {
	for _, mimeType := range c.preferred {
		if stream.IsTypeSupported(mimeType) {
			return mimeType
		}
	}
	return ""
}

// String для логов
func (r Recording) String() string {
	return fmt.Sprintf("%d bytes, %d chunks, type %q", len(r.Data), r.Chunks, r.MimeType)
}
