package envelope

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"sort"
	"strings"

	"github.com/google/uuid"
)

const maxBoundaryAttempts = 8

// File бинарная часть формы (аудио ответа кандидата)
type File struct {
	FieldName   string
	FileName    string
	ContentType string
	Data        []byte
}

// BoundaryFunc генерирует кандидата в boundary. Подменяется в тестах.
type BoundaryFunc func() string

// RandomBoundary строит boundary из двух UUID, вероятность совпадения с данными пренебрежимо мала
func RandomBoundary() string {
	token := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	// multipart допускает не больше 70 символов
	return "gateway-" + token[:48]
}

// Encode собирает тело multipart/form-data для AI-бэкенда
func Encode(fields map[string]string, file *File) ([]byte, string, error) {
	return EncodeWith(RandomBoundary, fields, file)
}

// EncodeWith как Encode, но с явным генератором boundary
func EncodeWith(next BoundaryFunc, fields map[string]string, file *File) ([]byte, string, error) {
	boundary, err := pickBoundary(next, fields, file)
	if err != nil {
		return nil, "", err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.SetBoundary(boundary); err != nil {
		return nil, "", fmt.Errorf("ошибка установки boundary: %w", err)
	}

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := writer.WriteField(key, fields[key]); err != nil {
			return nil, "", fmt.Errorf("ошибка записи поля %s: %w", key, err)
		}
	}

	if file != nil {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			escapeQuotes(file.FieldName), escapeQuotes(file.FileName)))
		contentType := file.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)

		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("ошибка создания файловой части: %w", err)
		}
		if _, err := part.Write(file.Data); err != nil {
			return nil, "", fmt.Errorf("ошибка записи файла: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("ошибка закрытия формы: %w", err)
	}

	return body.Bytes(), writer.FormDataContentType(), nil
}

// pickBoundary перегенерирует boundary, пока он встречается в данных
func pickBoundary(next BoundaryFunc, fields map[string]string, file *File) (string, error) {
	for attempt := 0; attempt < maxBoundaryAttempts; attempt++ {
		candidate := next()
		if candidate == "" || collides(candidate, fields, file) {
			continue
		}
		return candidate, nil
	}
	return "", fmt.Errorf("%w: %d attempts exhausted", ErrBoundaryCollision, maxBoundaryAttempts)
}

func collides(boundary string, fields map[string]string, file *File) bool {
	for key, value := range fields {
		if strings.Contains(key, boundary) || strings.Contains(value, boundary) {
			return true
		}
	}
	if file != nil {
		if strings.Contains(file.FileName, boundary) || bytes.Contains(file.Data, []byte(boundary)) {
			return true
		}
	}
	return false
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
