package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all service configuration. It is built once in main and
// handed to each component; nothing below cmd/ reads the environment.
type Config struct {
	Environment   string              `yaml:"environment"`
	LogLevel      string              `yaml:"log_level"`
	HTTP          HTTPConfig          `yaml:"http"`
	Storage       StorageConfig       `yaml:"storage"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Completion    CompletionConfig    `yaml:"completion"`
	Summarizer    SummarizerConfig    `yaml:"summarizer"`
	Progress      ProgressConfig      `yaml:"progress"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
}

type HTTPConfig struct {
	Addr           string        `yaml:"addr"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
}

type StorageConfig struct {
	DBPath    string `yaml:"db_path"`
	UploadDir string `yaml:"upload_dir"`
}

// TranscriptionConfig configures the speech-to-text provider.
type TranscriptionConfig struct {
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	Mock              bool          `yaml:"mock"`
	MockText          string        `yaml:"mock_text"`
	HTTPTimeout       time.Duration `yaml:"http_timeout"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	PollAttempts      int           `yaml:"poll_attempts"`
	SpeakerLabels     bool          `yaml:"speaker_labels"`
	AutoHighlights    bool          `yaml:"auto_highlights"`
	LanguageDetection bool          `yaml:"language_detection"`
}

// CompletionConfig configures the language-completion gateway.
type CompletionConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	Mock        bool          `yaml:"mock"`
}

// RetryConfig bounds the completion retry loop.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	MaxElapsed      time.Duration `yaml:"max_elapsed"`
	InitialInterval time.Duration `yaml:"initial_interval"`
}

type SummarizerConfig struct {
	// ChunkThreshold is the transcript length in characters above which
	// chunked summarization is used.
	ChunkThreshold int         `yaml:"chunk_threshold"`
	ChunkWords     int         `yaml:"chunk_words"`
	Retry          RetryConfig `yaml:"retry"`
}

// ProgressConfig sets the cosmetic duration of each step's progress animation.
type ProgressConfig struct {
	Transcription time.Duration `yaml:"transcription"`
	Translation   time.Duration `yaml:"translation"`
	Optimization  time.Duration `yaml:"optimization"`
	AIGeneration  time.Duration `yaml:"ai_generation"`
	// Grace is added to a step's duration to bound the reporter join.
	Grace time.Duration `yaml:"grace"`
}

type SchedulerConfig struct {
	StaleAfter    time.Duration `yaml:"stale_after"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Environment: "local",
		LogLevel:    "info",
		HTTP: HTTPConfig{
			Addr:           ":8080",
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   60 * time.Second,
			IdleTimeout:    120 * time.Second,
			MaxUploadBytes: 100 << 20,
		},
		Storage: StorageConfig{
			DBPath:    "meetings.db",
			UploadDir: "uploads",
		},
		Transcription: TranscriptionConfig{
			BaseURL:           "https://api.assemblyai.com",
			HTTPTimeout:       60 * time.Second,
			PollInterval:      3 * time.Second,
			PollAttempts:      600,
			SpeakerLabels:     true,
			AutoHighlights:    true,
			LanguageDetection: true,
			MockText:          "MOCK TRANSCRIPT: The team reviewed the project timeline and decided to ship on Friday.",
		},
		Completion: CompletionConfig{
			Model:   "gpt-4o-mini",
			Timeout: 60 * time.Second,
		},
		Summarizer: SummarizerConfig{
			ChunkThreshold: 30000,
			ChunkWords:     4000,
			Retry: RetryConfig{
				MaxAttempts:     3,
				MaxElapsed:      2 * time.Minute,
				InitialInterval: time.Second,
			},
		},
		Progress: ProgressConfig{
			Transcription: 15 * time.Second,
			Translation:   10 * time.Second,
			Optimization:  8 * time.Second,
			AIGeneration:  20 * time.Second,
			Grace:         3 * time.Second,
		},
		Scheduler: SchedulerConfig{
			StaleAfter:    30 * time.Minute,
			SweepInterval: 5 * time.Minute,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file named
// by CONFIG_FILE, and environment variables, in that order.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	if port := os.Getenv("PORT"); port != "" {
		c.HTTP.Addr = ":" + port
	}
	if mb := getEnvAsInt("MAX_UPLOAD_MB", 0); mb > 0 {
		c.HTTP.MaxUploadBytes = int64(mb) << 20
	}

	c.Storage.DBPath = getEnv("DB_PATH", c.Storage.DBPath)
	c.Storage.UploadDir = getEnv("UPLOAD_DIR", c.Storage.UploadDir)

	c.Transcription.BaseURL = getEnv("TRANSCRIBE_URL", c.Transcription.BaseURL)
	c.Transcription.APIKey = getEnv("TRANSCRIBE_API_KEY", c.Transcription.APIKey)
	c.Transcription.Mock = getEnvAsBool("USE_MOCK_TRANSCRIBE", c.Transcription.Mock)
	c.Transcription.PollInterval = getEnvAsDuration("TRANSCRIBE_POLL_INTERVAL", c.Transcription.PollInterval)
	c.Transcription.PollAttempts = getEnvAsInt("TRANSCRIBE_POLL_ATTEMPTS", c.Transcription.PollAttempts)

	c.Completion.BaseURL = getEnv("LLM_GATEWAY_URL", c.Completion.BaseURL)
	c.Completion.APIKey = getEnv("LLM_API_KEY", c.Completion.APIKey)
	c.Completion.Model = getEnv("LLM_MODEL", c.Completion.Model)
	c.Completion.Timeout = getEnvAsDuration("LLM_TIMEOUT", c.Completion.Timeout)
	c.Completion.Mock = getEnvAsBool("USE_MOCK_LLM", c.Completion.Mock)

	c.Summarizer.Retry.MaxAttempts = getEnvAsInt("LLM_MAX_ATTEMPTS", c.Summarizer.Retry.MaxAttempts)
	c.Summarizer.Retry.MaxElapsed = getEnvAsDuration("LLM_MAX_RETRY_TIME", c.Summarizer.Retry.MaxElapsed)
	c.Summarizer.ChunkThreshold = getEnvAsInt("CHUNK_THRESHOLD", c.Summarizer.ChunkThreshold)
	c.Summarizer.ChunkWords = getEnvAsInt("CHUNK_WORDS", c.Summarizer.ChunkWords)

	c.Progress.Grace = getEnvAsDuration("PROGRESS_GRACE", c.Progress.Grace)

	c.Scheduler.StaleAfter = getEnvAsDuration("STALE_AFTER", c.Scheduler.StaleAfter)
	c.Scheduler.SweepInterval = getEnvAsDuration("SWEEP_INTERVAL", c.Scheduler.SweepInterval)
}

// Validate checks the fields the service cannot start without.
func (c Config) Validate() error {
	var errs []error
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http addr is required"))
	}
	if c.Storage.DBPath == "" {
		errs = append(errs, errors.New("DB_PATH is required"))
	}
	if c.Storage.UploadDir == "" {
		errs = append(errs, errors.New("UPLOAD_DIR is required"))
	}
	if !c.Transcription.Mock && (c.Transcription.BaseURL == "" || c.Transcription.APIKey == "") {
		errs = append(errs, errors.New("TRANSCRIBE_URL and TRANSCRIBE_API_KEY are required unless USE_MOCK_TRANSCRIBE=true"))
	}
	if !c.Completion.Mock && (c.Completion.BaseURL == "" || c.Completion.APIKey == "") {
		errs = append(errs, errors.New("LLM_GATEWAY_URL and LLM_API_KEY are required unless USE_MOCK_LLM=true"))
	}
	if c.Summarizer.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("LLM_MAX_ATTEMPTS must be at least 1"))
	}
	if c.Summarizer.ChunkWords < 1 {
		errs = append(errs, errors.New("CHUNK_WORDS must be at least 1"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.EqualFold(value, "true") || value == "1"
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
