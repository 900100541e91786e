package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNotFound результата с таким ID нет
var ErrNotFound = errors.New("interview result not found")

const (
	filePrefix = "interview_"
	fileSuffix = ".json"
)

// Archive хранит итоги интервью в JSON файлах
type Archive struct {
	dir string
}

func NewArchive(dir string) *Archive {
	return &Archive{dir: dir}
}

// SaveResult сохраняет результат интервью в JSON файл
func (a *Archive) SaveResult(result *InterviewResult) error {
	if result == nil || result.InterviewID == "" {
		return errors.New("interview id is required")
	}

	err := os.MkdirAll(a.dir, 0755)
	if err != nil {
		return fmt.Errorf("ошибка создания директории %s: %w", a.dir, err)
	}

	path := a.path(result.InterviewID)

	jsonData, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации результата: %w", err)
	}

	err = os.WriteFile(path, jsonData, 0644)
	if err != nil {
		return fmt.Errorf("ошибка записи файла %s: %w", path, err)
	}

	return nil
}

// LoadResult загружает результат интервью из JSON файла
func (a *Archive) LoadResult(interviewID string) (*InterviewResult, error) {
	if interviewID == "" || strings.ContainsAny(interviewID, `/\.`) {
		return nil, fmt.Errorf("некорректный ID %q: %w", interviewID, ErrNotFound)
	}

	path := a.path(interviewID)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("интервью %s: %w", interviewID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла %s: %w", path, err)
	}

	var result InterviewResult
	err = json.Unmarshal(data, &result)
	if err != nil {
		return nil, fmt.Errorf("ошибка десериализации JSON: %w", err)
	}

	return &result, nil
}

// ListResults возвращает ID всех сохраненных интервью
func (a *Archive) ListResults() ([]string, error) {
	if _, err := os.Stat(a.dir); os.IsNotExist(err) {
		return []string{}, nil
	}

	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения директории %s: %w", a.dir, err)
	}

	results := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
		if id != "" {
			results = append(results, id)
		}
	}
	sort.Strings(results)

	return results, nil
}

func (a *Archive) path(interviewID string) string {
	return filepath.Join(a.dir, filePrefix+interviewID+fileSuffix)
}
