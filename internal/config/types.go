package config

import "time"

// Config конфигурация хода интервью
type Config struct {
	InterviewConfig InterviewConfig `yaml:"interview_config"`
	Fallbacks       Fallbacks       `yaml:"fallbacks"`
	Recording       Recording       `yaml:"recording"`
}

// InterviewConfig общие настройки интервью
type InterviewConfig struct {
	TotalTurns int `yaml:"total_turns"`
	// GraceWindow сколько ждать окончания воспроизведения, если клиент молчит
	GraceWindow   time.Duration `yaml:"grace_window"`
	RedirectDelay time.Duration `yaml:"redirect_delay"`
	// PersistAttempts попытки сохранить запись перед ошибкой
	PersistAttempts int           `yaml:"persist_attempts"`
	BackendTimeout  time.Duration `yaml:"backend_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
}

// Fallbacks тексты на случай, когда бэкенд ничего не прислал
type Fallbacks struct {
	Welcome       string `yaml:"welcome"`
	Introducing   string `yaml:"introducing"`
	FirstQuestion string `yaml:"first_question"`
	Complete      string `yaml:"complete"`
}

// Recording настройки записи ответа
type Recording struct {
	PreferredTypes []string `yaml:"preferred_types"`
}

// Default конфигурация без файла
func Default() *Config {
	return &Config{
		InterviewConfig: InterviewConfig{
			TotalTurns:      5,
			GraceWindow:     10 * time.Second,
			RedirectDelay:   3 * time.Second,
			PersistAttempts: 3,
			BackendTimeout:  60 * time.Second,
			IdleTimeout:     24 * time.Hour,
		},
		Fallbacks: Fallbacks{
			Welcome:       "Welcome to your AI interview. Let's begin with your introduction.",
			Introducing:   "AI interviewer is introducing the session...",
			FirstQuestion: "Tell me about your background and experience.",
			Complete:      "Interview complete. Thank you!",
		},
		Recording: Recording{
			PreferredTypes: []string{"audio/webm", "audio/ogg;codecs=opus", "audio/mp4"},
		},
	}
}

func (c *Config) GetTotalTurns() int {
	return c.InterviewConfig.TotalTurns
}
