package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var promptsYAML []byte

type Config struct {
	PatientID  string
	Camera     CameraConfig
	Embedding  EmbeddingConfig
	OpenAI     OpenAIConfig
	Gemini     GeminiConfig
	Ollama     OllamaConfig
	LlamaCpp   LlamaCppConfig
	Enrichment EnrichmentConfig
	Speech     SpeechConfig
	Detection  DetectionConfig
	Reminders  ReminderConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Web        WebConfig
	Log        LogConfig
	Prompts    PromptsConfig
}

type CameraConfig struct {
	URL string // snapshot endpoint of an IP camera (e.g., http://cam.local/snapshot.jpg)
	Dir string // directory of frames to replay instead of a live camera
}

type EmbeddingConfig struct {
	URLs []string // face embedding servers, tried in order; defaults to http://localhost:8000
}

type OpenAIConfig struct {
	Token string
}

type GeminiConfig struct {
	APIKey string
}

type OllamaConfig struct {
	URL   string // defaults to http://localhost:11434 when a model is set
	Model string // defaults to llama3.2-vision:11b
}

type LlamaCppConfig struct {
	URL   string // llama.cpp server with an OpenAI-compatible endpoint
	Model string // defaults to llava
}

type EnrichmentConfig struct {
	Timeout time.Duration // bounded wait for the description service (default 8s)
}

type SpeechConfig struct {
	Binary   string        // speech synthesizer executable (default espeak-ng, "log" for headless)
	Voice    string        // voice hint passed to the synthesizer
	Cooldown time.Duration // identical text within this window is not repeated (default 5s)
}

type DetectionConfig struct {
	Interval time.Duration // detection pass cadence (default 2s)
}

type ReminderConfig struct {
	LeadMinutes  int           // remind this many minutes before a task (default 5)
	PollInterval time.Duration // task list poll cadence (default 30s)
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type RedisConfig struct {
	Addr     string // host:port, settings are kept in Postgres when empty
	Password string
}

type WebConfig struct {
	Port           int      // default 8080
	Host           string   // default 0.0.0.0
	AllowedOrigins []string // CORS whitelist, localhost is always allowed
}

type LogConfig struct {
	Env   string // prod, dev, local (default dev)
	Level string // debug, info, warn, error
}

// PromptsConfig holds the description prompts sent to the enrichment service.
type PromptsConfig struct {
	Known   string `yaml:"known"`
	Unknown string `yaml:"unknown"`
}

// KnownPrompt renders the prompt for a person the patient knows.
func (p PromptsConfig) KnownPrompt(name string) string {
	return strings.ReplaceAll(p.Known, "{name}", name)
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envDuration reads a Go duration (e.g. "2s", "500ms"). Invalid or non-positive values fall back.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

// envList splits a comma-separated env var, dropping empty entries.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func Load() *Config {
	var prompts PromptsConfig
	if err := yaml.Unmarshal(promptsYAML, &prompts); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded prompts.yaml: " + err.Error())
	}

	embeddingURLs := envList("EMBEDDING_URL")
	if len(embeddingURLs) == 0 {
		embeddingURLs = []string{"http://localhost:8000"}
	}

	return &Config{
		PatientID: envString("PATIENT_ID", "default"),
		Camera: CameraConfig{
			URL: os.Getenv("CAMERA_URL"),
			Dir: os.Getenv("CAMERA_DIR"),
		},
		Embedding: EmbeddingConfig{
			URLs: embeddingURLs,
		},
		OpenAI: OpenAIConfig{
			Token: os.Getenv("OPENAI_TOKEN"),
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
		},
		Ollama: OllamaConfig{
			URL:   os.Getenv("OLLAMA_URL"),
			Model: os.Getenv("OLLAMA_MODEL"),
		},
		LlamaCpp: LlamaCppConfig{
			URL:   os.Getenv("LLAMACPP_URL"),
			Model: os.Getenv("LLAMACPP_MODEL"),
		},
		Enrichment: EnrichmentConfig{
			Timeout: envDuration("ENRICHMENT_TIMEOUT", 8*time.Second),
		},
		Speech: SpeechConfig{
			Binary:   envString("SPEECH_BINARY", "espeak-ng"),
			Voice:    envString("SPEECH_VOICE", "en-us+f3"),
			Cooldown: envDuration("SPEECH_COOLDOWN", 5*time.Second),
		},
		Detection: DetectionConfig{
			Interval: envDuration("DETECTION_INTERVAL", 2*time.Second),
		},
		Reminders: ReminderConfig{
			LeadMinutes:  envInt("REMINDER_LEAD_MINUTES", 5),
			PollInterval: envDuration("REMINDER_POLL_INTERVAL", 30*time.Second),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		Web: WebConfig{
			Port:           envInt("WEB_PORT", 8080),
			Host:           envString("WEB_HOST", "0.0.0.0"),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
		Log: LogConfig{
			Env:   envString("LOG_ENV", "dev"),
			Level: os.Getenv("LOG_LEVEL"),
		},
		Prompts: prompts,
	}
}

// EnrichmentProvider returns the name of the configured description provider, or "" if none.
// Hosted providers win over local ones: gemini, openai, llamacpp, ollama.
func (c *Config) EnrichmentProvider() string {
	switch {
	case c.Gemini.APIKey != "":
		return "gemini"
	case c.OpenAI.Token != "":
		return "openai"
	case c.LlamaCpp.URL != "":
		return "llamacpp"
	case c.Ollama.URL != "" || c.Ollama.Model != "":
		return "ollama"
	default:
		return ""
	}
}
