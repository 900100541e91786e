package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/textproto"
	"strings"
)

var (
	crlf      = []byte("\r\n")
	lf        = []byte("\n")
	blankCRLF = []byte("\r\n\r\n")
	blankLF   = []byte("\n\n")
	closeMark = []byte("--")
)

// Decode разбирает тело multipart/mixed ответа. Работает по байтам, тело
// никогда не перекодируется в строку, чтобы не испортить аудио.
func Decode(raw []byte, boundary string) (*Message, error) {
	if strings.TrimSpace(boundary) == "" {
		return nil, fmt.Errorf("%w: empty boundary", ErrMalformedEnvelope)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrDecodeFailure)
	}

	segments, err := splitOnBoundary(raw, boundary)
	if err != nil {
		return nil, err
	}

	msg := &Message{}
	var (
		candidates       int
		separatorMissing int
		jsonParts        int
		audioParts       int
	)

	for i, segment := range segments {
		candidates++

		headerBlock, body, ok := splitHeaderBody(segment)
		if !ok {
			separatorMissing++
			msg.Dropped = append(msg.Dropped, Dropped{Index: i, Reason: "missing header separator"})
			continue
		}

		header, err := parseHeader(headerBlock)
		if err != nil {
			msg.Dropped = append(msg.Dropped, Dropped{Index: i, Reason: err.Error()})
			continue
		}

		contentType := header.Get("Content-Type")
		part := Part{
			ContentType: contentType,
			Header:      header,
			Body:        body,
			Kind:        classify(contentType),
		}

		switch part.Kind {
		case KindJSON:
			if len(bytes.TrimSpace(body)) == 0 {
				return nil, fmt.Errorf("%w: part %d: empty json body", ErrDecodeFailure, i)
			}
			if !json.Valid(body) {
				return nil, fmt.Errorf("%w: part %d: invalid json", ErrDecodeFailure, i)
			}
			jsonParts++
		case KindAudio:
			audioParts++
		default:
			msg.Dropped = append(msg.Dropped, Dropped{Index: i, ContentType: contentType, Reason: "unknown content type"})
			continue
		}

		msg.Parts = append(msg.Parts, part)
	}

	switch {
	case jsonParts == 0 && candidates == 0:
		return nil, fmt.Errorf("%w: envelope has no parts", ErrDecodeFailure)
	case jsonParts == 0 && separatorMissing == candidates:
		return nil, fmt.Errorf("%w: missing header separator", ErrDecodeFailure)
	case jsonParts == 0:
		return nil, fmt.Errorf("%w: no json part", ErrDecodeFailure)
	case jsonParts > 1:
		return nil, fmt.Errorf("%w: %d json parts, expected one", ErrDecodeFailure, jsonParts)
	case audioParts > 1:
		return nil, fmt.Errorf("%w: %d audio parts, expected at most one", ErrDecodeFailure, audioParts)
	}

	return msg, nil
}

// splitOnBoundary режет тело по "--boundary". Преамбула до первого
// разделителя и всё после закрывающего "--boundary--" отбрасываются.
func splitOnBoundary(raw []byte, boundary string) ([][]byte, error) {
	delimiter := []byte("--" + boundary)
	if !bytes.Contains(raw, delimiter) {
		return nil, fmt.Errorf("%w: boundary %q not found in body", ErrDecodeFailure, boundary)
	}

	pieces := bytes.Split(raw, delimiter)
	segments := make([][]byte, 0, len(pieces)-1)
	for _, piece := range pieces[1:] {
		if bytes.HasPrefix(piece, closeMark) {
			break
		}
		piece = trimLeadingBreak(piece)
		piece = trimTrailingBreak(piece)
		if len(bytes.TrimSpace(piece)) == 0 {
			continue
		}
		segments = append(segments, piece)
	}
	return segments, nil
}

// splitHeaderBody ищет пустую строку между заголовками и телом части
func splitHeaderBody(segment []byte) ([]byte, []byte, bool) {
	// часть без заголовков начинается сразу с пустой строки
	if bytes.HasPrefix(segment, crlf) {
		return nil, segment[len(crlf):], true
	}
	if bytes.HasPrefix(segment, lf) {
		return nil, segment[len(lf):], true
	}

	crlfIdx := bytes.Index(segment, blankCRLF)
	lfIdx := bytes.Index(segment, blankLF)

	switch {
	case crlfIdx >= 0 && (lfIdx < 0 || crlfIdx < lfIdx):
		return segment[:crlfIdx], segment[crlfIdx+len(blankCRLF):], true
	case lfIdx >= 0:
		return segment[:lfIdx], segment[lfIdx+len(blankLF):], true
	default:
		return nil, nil, false
	}
}

func parseHeader(block []byte) (textproto.MIMEHeader, error) {
	header := make(textproto.MIMEHeader)
	if len(block) == 0 {
		return header, nil
	}
	for _, line := range bytes.Split(block, lf) {
		line = bytes.TrimRight(line, "\r")
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		name, value, found := bytes.Cut(line, []byte(":"))
		if !found {
			return nil, fmt.Errorf("malformed header line %q", string(line))
		}
		key := textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(string(name)))
		header.Add(key, strings.TrimSpace(string(value)))
	}
	return header, nil
}

func trimLeadingBreak(b []byte) []byte {
	if bytes.HasPrefix(b, crlf) {
		return b[len(crlf):]
	}
	return bytes.TrimPrefix(b, lf)
}

// trimTrailingBreak снимает ровно один перевод строки перед следующим
// разделителем. Остальные байты тела не трогаются.
func trimTrailingBreak(b []byte) []byte {
	if bytes.HasSuffix(b, crlf) {
		return b[:len(b)-len(crlf)]
	}
	return bytes.TrimSuffix(b, lf)
}
