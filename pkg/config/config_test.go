package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_AppliesDefaultsAndEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Parse([]byte(`
training:
  questions_per_cycle: 4
  max_cycles: 3
`))
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Training.QuestionsPerCycle)
	assert.Equal(t, 3, cfg.Training.MaxCycles)
	assert.Equal(t, 0.9, cfg.Training.MinAccuracyThreshold)
	assert.Equal(t, 5, cfg.Training.MaxPlateauCycles)
	assert.Equal(t, "sk-test", cfg.Teacher.APIKey)
	assert.Equal(t, filepath.Join("data/output", "checkpoints"), cfg.Student.CheckpointDir)
}

func TestParse_GeminiKeyFromEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "g-key")

	cfg, err := Parse([]byte("teacher:\n  provider: Gemini\n  model: gemini-2.5-flash\n"))
	require.NoError(t, err)

	assert.Equal(t, ProviderGemini, cfg.Teacher.Provider)
	assert.Equal(t, "g-key", cfg.Teacher.APIKey)
}

func TestParse_Validation(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	tests := []struct {
		name string
		yaml string
	}{
		{"zero questions", "training:\n  questions_per_cycle: 0\n"},
		{"negative cycles", "training:\n  max_cycles: -1\n"},
		{"threshold above one", "training:\n  min_accuracy_threshold: 1.5\n"},
		{"zero plateau window", "training:\n  max_plateau_cycles: 0\n"},
		{"unknown provider", "teacher:\n  provider: cohere\n"},
		{"unknown memory backend", "memory:\n  backend: memcached\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParse_MissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	_, err := Parse([]byte("teacher:\n  provider: openai\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestManager_LoadConfig(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("training:\n  max_cycles: 7\n"), 0o644))

	m := NewManager(path)
	require.NoError(t, m.LoadConfig())
	assert.Equal(t, 7, m.GetConfig().Training.MaxCycles)
	assert.Equal(t, path, m.Path())
}

func TestManager_LoadConfigMissingFile(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "nope.yaml"))
	err := m.LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestLoadEnvFile(t *testing.T) {
	require.NoError(t, LoadEnvFile(""))
	require.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), "api_keys.env")
	require.NoError(t, os.WriteFile(path, []byte("MENTORLOOP_TEST_KEY=abc\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("MENTORLOOP_TEST_KEY") })

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "abc", os.Getenv("MENTORLOOP_TEST_KEY"))
}
