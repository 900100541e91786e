package config

import (
	"fmt"
	"time"
)

// OpenAIConfig настройки распознавания речи
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// LoadOpenAIConfig загружает конфигурацию OpenAI из переменных окружения
func LoadOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		APIKey:  getEnv("OPENAI_API_KEY", ""),
		Model:   getEnv("OPENAI_TRANSCRIBE_MODEL", "gpt-4o-transcribe"),
		BaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		Timeout: getEnvAsDuration("OPENAI_TIMEOUT", 120*time.Second),
	}
}

// ValidateConfig проверяет корректность конфигурации
func (c *OpenAIConfig) ValidateConfig() error {
	if c.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}

	if c.Model == "" {
		return fmt.Errorf("OPENAI_TRANSCRIBE_MODEL must not be empty")
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("OPENAI_TIMEOUT must be positive")
	}

	return nil
}

// GetModelInfo возвращает информацию о используемой модели
func (c *OpenAIConfig) GetModelInfo() map[string]interface{} {
	return map[string]interface{}{
		"model":    c.Model,
		"base_url": c.BaseURL,
		"provider": "OpenAI",
	}
}
