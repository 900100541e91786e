package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load загружает конфигурацию из YAML файла. Незаданные поля берутся из Default.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла %s: %w", filename, err)
	}

	config := Default()
	err = yaml.Unmarshal(data, config)
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга YAML: %w", err)
	}

	err = validateConfig(config)
	if err != nil {
		return nil, fmt.Errorf("ошибка валидации конфигурации: %w", err)
	}

	return config, nil
}

// LoadOrDefault как Load, но отсутствующий файл не ошибка
func LoadOrDefault(filename string) (*Config, error) {
	config, err := Load(filename)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return config, err
}

// validateConfig проверяет корректность конфигурации
func validateConfig(config *Config) error {
	ic := config.InterviewConfig

	if ic.TotalTurns <= 0 {
		return fmt.Errorf("total_turns должно быть больше 0")
	}

	if ic.GraceWindow <= 0 {
		return fmt.Errorf("grace_window должно быть больше 0")
	}

	if ic.RedirectDelay < 0 {
		return fmt.Errorf("redirect_delay не может быть отрицательным")
	}

	if ic.PersistAttempts <= 0 {
		return fmt.Errorf("persist_attempts должно быть больше 0")
	}

	if ic.BackendTimeout <= 0 {
		return fmt.Errorf("backend_timeout должно быть больше 0")
	}

	fb := config.Fallbacks
	if fb.Welcome == "" || fb.FirstQuestion == "" || fb.Complete == "" {
		return fmt.Errorf("fallbacks: welcome, first_question и complete обязательны")
	}

	for i, mimeType := range config.Recording.PreferredTypes {
		if mimeType == "" {
			return fmt.Errorf("recording.preferred_types[%d] пустой", i)
		}
	}

	return nil
}
