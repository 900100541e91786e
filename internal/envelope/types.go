package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/textproto"
	"strings"
)

var (
	// ErrMalformedEnvelope boundary отсутствует или не разбирается
	ErrMalformedEnvelope = errors.New("malformed multipart envelope")
	// ErrDecodeFailure в ответе нет корректной JSON-части
	ErrDecodeFailure = errors.New("multipart decode failure")
	// ErrBoundaryCollision не удалось подобрать boundary, которого нет в данных
	ErrBoundaryCollision = errors.New("multipart boundary collision")
)

// Kind классифицирует часть конверта по её Content-Type
type Kind int

const (
	KindUnknown Kind = iota
	KindJSON
	KindAudio
)

func (k Kind) String() string {
	switch k {
	case KindJSON:
		return "json"
	case KindAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// Part одна часть multipart/mixed ответа
type Part struct {
	ContentType string
	Header      textproto.MIMEHeader
	Body        []byte
	Kind        Kind
}

// Dropped часть, которую декодер пропустил (неизвестный тип или битые заголовки)
type Dropped struct {
	Index       int
	ContentType string
	Reason      string
}

// Message разобранный ответ AI-бэкенда
type Message struct {
	Parts   []Part
	Dropped []Dropped
}

// JSON возвращает единственную JSON-часть. Decode гарантирует, что она есть.
func (m *Message) JSON() Part {
	for _, p := range m.Parts {
		if p.Kind == KindJSON {
			return p
		}
	}
	return Part{}
}

// Audio возвращает аудио-часть, если она была в конверте
func (m *Message) Audio() (Part, bool) {
	for _, p := range m.Parts {
		if p.Kind == KindAudio {
			return p, true
		}
	}
	return Part{}, false
}

// DecodeJSON разбирает JSON-часть в v
func (m *Message) DecodeJSON(v any) error {
	part := m.JSON()
	if len(part.Body) == 0 {
		return fmt.Errorf("%w: json part missing", ErrDecodeFailure)
	}
	if err := json.Unmarshal(part.Body, v); err != nil {
		return fmt.Errorf("%w: invalid json: %v", ErrDecodeFailure, err)
	}
	return nil
}

// MediaType возвращает media type без параметров в нижнем регистре
func MediaType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType, _, _ = strings.Cut(contentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

// IsMixed сообщает, объявлен ли ответ как multipart/mixed
func IsMixed(contentType string) bool {
	return MediaType(contentType) == "multipart/mixed"
}

// IsJSON сообщает, является ли тип JSON (application/json или +json)
func IsJSON(contentType string) bool {
	mediaType := MediaType(contentType)
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// IsAudio сообщает, является ли тип аудио
func IsAudio(contentType string) bool {
	return strings.HasPrefix(MediaType(contentType), "audio/")
}

// BoundaryFrom извлекает boundary из Content-Type ответа
func BoundaryFrom(contentType string) (string, error) {
	_, params, err := mime.ParseMediaType(contentType)
	if err == nil {
		if boundary := params["boundary"]; boundary != "" {
			return boundary, nil
		}
		return "", fmt.Errorf("%w: boundary parameter missing", ErrMalformedEnvelope)
	}

	// бэкенд иногда присылает boundary без кавычек с недопустимыми символами
	_, raw, found := strings.Cut(contentType, "boundary=")
	if !found {
		return "", fmt.Errorf("%w: boundary parameter missing", ErrMalformedEnvelope)
	}
	raw, _, _ = strings.Cut(raw, ";")
	raw = strings.Trim(strings.TrimSpace(raw), `"`)
	if raw == "" {
		return "", fmt.Errorf("%w: empty boundary", ErrMalformedEnvelope)
	}
	return raw, nil
}

func classify(contentType string) Kind {
	switch {
	case IsJSON(contentType):
		return KindJSON
	case IsAudio(contentType):
		return KindAudio
	default:
		return KindUnknown
	}
}
