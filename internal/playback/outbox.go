package playback

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"interview-gateway/internal/media"
)

var (
	ErrNoAudio       = errors.New("no audio to play")
	ErrUnknownHandle = errors.New("unknown playback handle")
	ErrOutboxClosed  = errors.New("playback outbox closed")
	// ErrRevoked handle отозван до окончания воспроизведения
	ErrRevoked = errors.New("playback revoked")
	// ErrClientPlayback клиент сообщил об ошибке воспроизведения
	ErrClientPlayback = errors.New("client playback error")
)

// Item аудио, ожидающее воспроизведения клиентом
type Item struct {
	Handle      string    `json:"handle"`
	ContentType string    `json:"content_type"`
	Size        int       `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

type entry struct {
	item  Item
	audio *media.Audio
	done  chan error
}

// Outbox очередь аудио одной сессии. Клиент забирает аудио по handle
// и сообщает об окончании или ошибке воспроизведения.
type Outbox struct {
	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
}

func NewOutbox() *Outbox {
	return &Outbox{entries: make(map[string]*entry)}
}

// Play ставит аудио в очередь. done получает результат воспроизведения ровно один раз.
func (o *Outbox) Play(audio *media.Audio) (string, <-chan error, error) {
	if audio.Empty() {
		return "", nil, ErrNoAudio
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return "", nil, ErrOutboxClosed
	}

	handle := uuid.NewString()
	e := &entry{
		item: Item{
			Handle:      handle,
			ContentType: audio.ContentType,
			Size:        len(audio.Data),
			CreatedAt:   time.Now(),
		},
		audio: audio,
		done:  make(chan error, 1),
	}
	o.entries[handle] = e
	return handle, e.done, nil
}

// Fetch отдаёт аудио по handle
func (o *Outbox) Fetch(handle string) (*media.Audio, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	e, ok := o.entries[handle]
	if !ok {
		return nil, ErrUnknownHandle
	}
	return e.audio, nil
}

// Finish завершает воспроизведение: nil при ended, ошибка при error. Handle отзывается.
func (o *Outbox) Finish(handle string, playErr error) error {
	o.mu.Lock()
	e, ok := o.entries[handle]
	if ok {
		delete(o.entries, handle)
	}
	o.mu.Unlock()

	if !ok {
		return ErrUnknownHandle
	}
	e.done <- playErr
	close(e.done)
	return nil
}

// Pending список ещё не доигранных handle в порядке постановки
func (o *Outbox) Pending() []Item {
	o.mu.Lock()
	defer o.mu.Unlock()

	items := make([]Item, 0, len(o.entries))
	for _, e := range o.entries {
		items = append(items, e.item)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items
}

// RevokeAll отзывает все handle и закрывает очередь. Повторный вызов безопасен.
func (o *Outbox) RevokeAll() int {
	o.mu.Lock()
	entries := o.entries
	o.entries = make(map[string]*entry)
	o.closed = true
	o.mu.Unlock()

	for _, e := range entries {
		e.done <- ErrRevoked
		close(e.done)
	}
	return len(entries)
}
