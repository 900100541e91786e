package media

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrDeviceUnavailable клиент не предоставил микрофон
var ErrDeviceUnavailable = errors.New("media device unavailable")

// Audio бинарное аудио с типом (mp3 от бэкенда или запись кандидата)
type Audio struct {
	Data        []byte
	ContentType string
}

// Empty сообщает, что аудио нет
func (a *Audio) Empty() bool {
	return a == nil || len(a.Data) == 0
}

// Capabilities то, что клиент сообщил о своих устройствах при создании сессии
type Capabilities struct {
	AudioTracks int      `json:"audio_tracks"`
	VideoTracks int      `json:"video_tracks"`
	MimeTypes   []string `json:"mime_types"`
}

// Stream захваченный поток устройства
type Stream struct {
	caps Capabilities

	mu       sync.Mutex
	released bool
}

// AudioTracks количество аудиодорожек
func (s *Stream) AudioTracks() int {
	return s.caps.AudioTracks
}

// IsTypeSupported проверяет, умеет ли клиентский рекордер писать в этот тип
func (s *Stream) IsTypeSupported(mimeType string) bool {
	want := normalizeType(mimeType)
	for _, supported := range s.caps.MimeTypes {
		if normalizeType(supported) == want {
			return true
		}
	}
	return false
}

// Released сообщает, освобождён ли поток
func (s *Stream) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// Devices выдаёт поток по заявленным возможностям клиента
type Devices struct {
	caps Capabilities

	mu     sync.Mutex
	stream *Stream
}

// NewDevices создает источник устройств для одной сессии
func NewDevices(caps Capabilities) *Devices {
	return &Devices{caps: caps}
}

// Acquire захватывает камеру и микрофон. Без аудиодорожки интервью невозможно.
func (d *Devices) Acquire(ctx context.Context) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.caps.AudioTracks <= 0 {
		return nil, ErrDeviceUnavailable
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil || d.stream.Released() {
		d.stream = &Stream{caps: d.caps}
	}
	return d.stream, nil
}

// Release останавливает все дорожки потока. Повторный вызов безопасен.
func (d *Devices) Release(stream *Stream) {
	if stream == nil {
		return
	}
	stream.mu.Lock()
	stream.released = true
	stream.mu.Unlock()
}

func normalizeType(mimeType string) string {
	return strings.ToLower(strings.ReplaceAll(mimeType, " ", ""))
}
