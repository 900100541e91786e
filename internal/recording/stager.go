package recording

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"interview-gateway/internal/envelope"
)

// ErrPersist запись не удалось сохранить на диск
var ErrPersist = errors.New("persist recording")

const defaultExt = ".webm"

var mimeToExt = map[string]string{
	"audio/webm": ".webm",
	"audio/ogg":  ".ogg",
	"audio/mp3":  ".mp3",
	"audio/mpeg": ".mp3",
	"audio/wav":  ".wav",
	"audio/mp4":  ".mp4",
}

// StagedRef адрес сохранённой записи
type StagedRef struct {
	SessionID string
	Turn      int
	Path      string
	MimeType  string
	Size      int
}

// FileName имя файла без каталога
func (r StagedRef) FileName() string {
	return filepath.Base(r.Path)
}

// Stager хранит записи ответов до отправки в бэкенд
type Stager struct {
	dir string
}

// NewStager создает хранилище записей в каталоге dir
func NewStager(dir string) *Stager {
	return &Stager{dir: dir}
}

// Dir корневой каталог записей
func (s *Stager) Dir() string {
	return s.dir
}

// ExtFor выбирает расширение: сначала по имени файла, затем по MIME
func ExtFor(mimeType, fileName string) string {
	if ext := filepath.Ext(fileName); ext != "" {
		return strings.ToLower(ext)
	}
	if ext, ok := mimeToExt[envelope.MediaType(mimeType)]; ok {
		return ext
	}
	return ""
}

// FileName имя файла записи для хода
func FileName(turn int, ext string) string {
	return fmt.Sprintf("question_%d_response%s", turn, ext)
}

// Persist сохраняет запись хода. Повторный вызов для того же хода перезаписывает файл.
func (s *Stager) Persist(data []byte, sessionID string, turn int, mimeType string) (StagedRef, error) {
	ext := ExtFor(mimeType, "")
	if ext == "" {
		ext = defaultExt
	}
	return s.PersistFile(data, sessionID, turn, mimeType, ext)
}

// PersistFile как Persist, но с явным расширением
func (s *Stager) PersistFile(data []byte, sessionID string, turn int, mimeType, ext string) (StagedRef, error) {
	if turn <= 0 {
		return StagedRef{}, fmt.Errorf("%w: invalid turn %d", ErrPersist, turn)
	}

	dir, err := s.sessionDir(sessionID)
	if err != nil {
		return StagedRef{}, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return StagedRef{}, fmt.Errorf("%w: ошибка создания директории %s: %v", ErrPersist, dir, err)
	}

	target := filepath.Join(dir, FileName(turn, ext))

	tmp, err := os.CreateTemp(dir, ".staging-*")
	if err != nil {
		return StagedRef{}, fmt.Errorf("%w: ошибка создания временного файла: %v", ErrPersist, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return StagedRef{}, fmt.Errorf("%w: ошибка записи %s: %v", ErrPersist, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return StagedRef{}, fmt.Errorf("%w: ошибка закрытия %s: %v", ErrPersist, tmpName, err)
	}

	// перезапись того же хода с другим форматом не должна оставлять старый файл
	if err := s.removeSiblings(dir, turn, target); err != nil {
		return StagedRef{}, err
	}

	if err := os.Rename(tmpName, target); err != nil {
		return StagedRef{}, fmt.Errorf("%w: ошибка переименования в %s: %v", ErrPersist, target, err)
	}

	return StagedRef{
		SessionID: sessionID,
		Turn:      turn,
		Path:      target,
		MimeType:  mimeType,
		Size:      len(data),
	}, nil
}

// Load читает сохранённую запись хода
func (s *Stager) Load(sessionID string, turn int) (StagedRef, []byte, error) {
	dir, err := s.sessionDir(sessionID)
	if err != nil {
		return StagedRef{}, nil, err
	}

	matches, err := filepath.Glob(filepath.Join(dir, FileName(turn, "*")))
	if err != nil {
		return StagedRef{}, nil, fmt.Errorf("ошибка поиска записи: %w", err)
	}
	// без расширения Glob по "*" тоже находит файл
	if len(matches) == 0 {
		return StagedRef{}, nil, fmt.Errorf("запись %s не найдена: %w", FileName(turn, ""), os.ErrNotExist)
	}

	path := matches[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return StagedRef{}, nil, fmt.Errorf("ошибка чтения файла %s: %w", path, err)
	}

	ext := filepath.Ext(path)
	mimeType := ""
	for mt, e := range mimeToExt {
		if e == ext && mt != "audio/mp3" {
			mimeType = mt
			break
		}
	}

	return StagedRef{
		SessionID: sessionID,
		Turn:      turn,
		Path:      path,
		MimeType:  mimeType,
		Size:      len(data),
	}, data, nil
}

// RemoveSession удаляет все записи сессии
func (s *Stager) RemoveSession(sessionID string) error {
	if sessionID == "" {
		return nil
	}
	dir, err := s.sessionDir(sessionID)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}

func (s *Stager) sessionDir(sessionID string) (string, error) {
	if sessionID == "" {
		return s.dir, nil
	}
	if strings.ContainsAny(sessionID, `/\`) || sessionID == "." || sessionID == ".." {
		return "", fmt.Errorf("%w: invalid session id %q", ErrPersist, sessionID)
	}
	return filepath.Join(s.dir, sessionID), nil
}

func (s *Stager) removeSiblings(dir string, turn int, keep string) error {
	matches, err := filepath.Glob(filepath.Join(dir, FileName(turn, "*")))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	for _, match := range matches {
		if match == keep {
			continue
		}
		if err := os.Remove(match); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: ошибка удаления %s: %v", ErrPersist, match, err)
		}
	}
	return nil
}
