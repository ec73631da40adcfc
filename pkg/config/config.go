package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var DebugLog func(string, ...interface{})

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

type Config struct {
	Teacher    Teacher    `yaml:"teacher"`
	Student    Student    `yaml:"student"`
	Evaluation Evaluation `yaml:"evaluation"`
	Training   Training   `yaml:"training"`
	Data       Data       `yaml:"data"`
	Database   Database   `yaml:"database"`
	Elastic    Elastic    `yaml:"elastic"`
	Memory     Memory     `yaml:"memory"`
	Metrics    Metrics    `yaml:"metrics"`
}

type Teacher struct {
	Provider    string   `yaml:"provider"`
	Model       string   `yaml:"model"`
	BaseURL     string   `yaml:"base_url"`
	APIKey      string   `yaml:"api_key"`
	Temperature float32  `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
	Timeout     int      `yaml:"timeout"`
	Topics      []string `yaml:"topics"`
	Difficulty  string   `yaml:"difficulty"`
}

type Student struct {
	ModelName          string   `yaml:"model_name"`
	Command            string   `yaml:"command"`
	Args               []string `yaml:"args"`
	Device             string   `yaml:"device"`
	MaxAnswerTokens    int      `yaml:"max_answer_tokens"`
	MaxAnswerChars     int      `yaml:"max_answer_chars"`
	Temperature        float32  `yaml:"temperature"`
	ContextCorrections int      `yaml:"context_corrections"`
	LearningRate       float64  `yaml:"learning_rate"`
	CheckpointDir      string   `yaml:"checkpoint_dir"`
	Download           bool     `yaml:"download"`
	DownloadBaseURL    string   `yaml:"download_base_url"`
}

type Evaluation struct {
	EvalQuestions int    `yaml:"eval_questions"`
	Topic         string `yaml:"topic"`
}

type Training struct {
	QuestionsPerCycle     int     `yaml:"questions_per_cycle"`
	MaxCycles             int     `yaml:"max_cycles"`
	MinAccuracyThreshold  float64 `yaml:"min_accuracy_threshold"`
	MaxPlateauCycles      int     `yaml:"max_plateau_cycles"`
	PersistPartialResults bool    `yaml:"persist_partial_results"`
}

type Data struct {
	OutputPath string `yaml:"output_path"`
	LogsPath   string `yaml:"logs_path"`
}

type Database struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

type Elastic struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Index    string `yaml:"index"`
}

type Memory struct {
	Backend  string `yaml:"backend"`
	Capacity int    `yaml:"capacity"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type Metrics struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Default mirrors the settings shipped in config.yaml.example.
func Default() Config {
	return Config{
		Teacher: Teacher{
			Provider:    ProviderOpenAI,
			Model:       "gpt-4o-mini",
			Temperature: 0.7,
			MaxTokens:   1500,
			Timeout:     60,
			Topics:      []string{"mathematics", "science", "history", "logic"},
			Difficulty:  "medium",
		},
		Student: Student{
			ModelName:          "microsoft/phi-1_5",
			Command:            "python3",
			Args:               []string{"-m", "mentorloop_student"},
			Device:             "auto",
			MaxAnswerTokens:    150,
			MaxAnswerChars:     2000,
			Temperature:        0.7,
			ContextCorrections: 3,
			LearningRate:       5e-5,
			DownloadBaseURL:    "https://huggingface.co",
		},
		Evaluation: Evaluation{
			EvalQuestions: 10,
		},
		Training: Training{
			QuestionsPerCycle:    10,
			MaxCycles:            50,
			MinAccuracyThreshold: 0.9,
			MaxPlateauCycles:     5,
		},
		Data: Data{
			OutputPath: "data/output",
			LogsPath:   "data/logs",
		},
		Database: Database{
			Host: "localhost",
			Port: 5432,
			User: "postgres",
			Name: "mentorloop",
		},
		Elastic: Elastic{
			Index: "mentorloop_cycles",
		},
		Memory: Memory{
			Backend:  "memory",
			Capacity: 200,
			Addr:     "localhost:6379",
			Prefix:   "mentorloop:corrections",
		},
	}
}

type Manager struct {
	config     *Config
	configPath string
}

func NewManager(configPath string) *Manager {
	return &Manager{
		configPath: configPath,
	}
}

// LoadEnvFile loads KEY=VALUE pairs into the process environment. A missing
// file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if DebugLog != nil {
			DebugLog("env file %s not found, skipping", path)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func (m *Manager) LoadConfig() error {
	if m.configPath == "" {
		m.configPath = m.findConfigFile()
	}

	if DebugLog != nil {
		DebugLog("loading config from %s", m.configPath)
	}

	if _, err := os.Stat(m.configPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found at %s. Please create one based on config.yaml.example", m.configPath)
	}

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	config, err := Parse(data)
	if err != nil {
		return err
	}

	m.config = config
	return nil
}

// Parse decodes YAML on top of Default, applies environment overrides and
// validates the result.
func Parse(data []byte) (*Config, error) {
	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &config, nil
}

func applyEnv(config *Config) {
	if config.Teacher.APIKey == "" {
		switch config.Teacher.Provider {
		case ProviderOpenAI:
			config.Teacher.APIKey = os.Getenv("OPENAI_API_KEY")
		case ProviderGemini:
			config.Teacher.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" && config.Teacher.BaseURL == "" {
		config.Teacher.BaseURL = v
	}
	if v := os.Getenv("MENTORLOOP_DB_PASSWORD"); v != "" {
		config.Database.Password = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		config.Memory.Password = v
	}
	if v := os.Getenv("ELASTIC_PASSWORD"); v != "" {
		config.Elastic.Password = v
	}
}

func (m *Manager) GetConfig() *Config {
	return m.config
}

func (m *Manager) Path() string {
	return m.configPath
}

func (m *Manager) findConfigFile() string {
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}

	if _, err := os.Stat("configs/config.yaml"); err == nil {
		return "configs/config.yaml"
	}

	if configPath := GetDefaultConfigPath(); configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
	}

	return "configs/config.yaml"
}

func validateConfig(config *Config) error {
	t := config.Training
	if t.QuestionsPerCycle <= 0 {
		return fmt.Errorf("training.questions_per_cycle must be greater than 0")
	}
	if t.MaxCycles <= 0 {
		return fmt.Errorf("training.max_cycles must be greater than 0")
	}
	if t.MinAccuracyThreshold <= 0 || t.MinAccuracyThreshold > 1 {
		return fmt.Errorf("training.min_accuracy_threshold must be in (0, 1]")
	}
	if t.MaxPlateauCycles <= 0 {
		return fmt.Errorf("training.max_plateau_cycles must be greater than 0")
	}

	switch strings.ToLower(config.Teacher.Provider) {
	case ProviderOpenAI, ProviderGemini:
		config.Teacher.Provider = strings.ToLower(config.Teacher.Provider)
	default:
		return fmt.Errorf("unknown teacher provider: %s", config.Teacher.Provider)
	}
	if strings.TrimSpace(config.Teacher.APIKey) == "" {
		return fmt.Errorf("no API key configured for teacher provider %s", config.Teacher.Provider)
	}

	if config.Evaluation.EvalQuestions <= 0 {
		return fmt.Errorf("evaluation.eval_questions must be greater than 0")
	}

	switch config.Memory.Backend {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("unknown memory backend: %s", config.Memory.Backend)
	}

	if config.Student.CheckpointDir == "" {
		config.Student.CheckpointDir = filepath.Join(config.Data.OutputPath, "checkpoints")
	}

	return nil
}
