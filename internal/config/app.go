package config

import (
	"os"
	"strconv"
	"time"
)

type AppConfig struct {
	OpenAI    OpenAIConfig
	Backend   BackendConfig
	Server    ServerConfig
	Storage   StorageConfig
	Log       LogConfig
	RateLimit RateLimitConfig
	// InterviewConfigPath путь к YAML с настройками хода интервью
	InterviewConfigPath string
}

type BackendConfig struct {
	URL         string
	Timeout     time.Duration
	AttachAudio bool
}

type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	Debug           bool
}

type StorageConfig struct {
	RecordingsDir string
	ResultsDir    string
	DatabasePath  string
}

type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

func LoadAppConfig() *AppConfig {
	return &AppConfig{
		OpenAI: LoadOpenAIConfig(),
		Backend: BackendConfig{
			URL:         getEnv("AI_BACKEND_URL", "http://127.0.0.1:5000"),
			Timeout:     getEnvAsDuration("AI_BACKEND_TIMEOUT", 60*time.Second),
			AttachAudio: getEnvAsBool("AI_BACKEND_ATTACH_AUDIO", false),
		},
		Server: ServerConfig{
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			Debug:           getEnvAsBool("SERVER_DEBUG", false),
		},
		Storage: StorageConfig{
			RecordingsDir: getEnv("RECORDINGS_DIR", "public/recordings"),
			ResultsDir:    getEnv("RESULTS_DIR", "results"),
			DatabasePath:  getEnv("DATABASE_PATH", "data/gateway.db"),
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "console"),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvAsInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 3),
		},
		RateLimit: RateLimitConfig{
			Requests: getEnvAsInt("RATE_LIMIT_REQUESTS", 120),
			Window:   getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		InterviewConfigPath: getEnv("INTERVIEW_CONFIG", "config/interview.yaml"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
