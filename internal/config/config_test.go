package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "interview.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadRepositoryConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config", "interview.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadKeepsDefaultsForMissingFields(t *testing.T) {
	cfg, err := Load(writeYAML(t, "interview_config:\n  grace_window: 2s\n"))
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.InterviewConfig.GraceWindow)
	assert.Equal(t, 5, cfg.GetTotalTurns())
	assert.Equal(t, "Interview complete. Thank you!", cfg.Fallbacks.Complete)
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]string{
		"zero turns":       "interview_config:\n  total_turns: 0\n",
		"negative delay":   "interview_config:\n  redirect_delay: -1s\n",
		"no persist tries": "interview_config:\n  persist_attempts: 0\n",
		"empty fallback":   "fallbacks:\n  complete: \"\"\n",
		"empty mime":       "recording:\n  preferred_types: [\"\"]\n",
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeYAML(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = LoadOrDefault(writeYAML(t, "interview_config: ["))
	assert.Error(t, err)
}

func TestLoadAppConfigFromEnv(t *testing.T) {
	t.Setenv("AI_BACKEND_URL", "http://backend:5000")
	t.Setenv("AI_BACKEND_TIMEOUT", "5s")
	t.Setenv("AI_BACKEND_ATTACH_AUDIO", "true")
	t.Setenv("SERVER_PORT", "not-a-number")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg := LoadAppConfig()
	assert.Equal(t, "http://backend:5000", cfg.Backend.URL)
	assert.Equal(t, 5*time.Second, cfg.Backend.Timeout)
	assert.True(t, cfg.Backend.AttachAudio)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "gpt-4o-transcribe", cfg.OpenAI.Model)
	assert.NoError(t, cfg.OpenAI.ValidateConfig())
}
