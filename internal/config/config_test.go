package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"PATIENT_ID", "EMBEDDING_URL", "ENRICHMENT_TIMEOUT", "SPEECH_BINARY", "SPEECH_COOLDOWN",
		"DETECTION_INTERVAL", "REMINDER_LEAD_MINUTES", "REMINDER_POLL_INTERVAL", "LOG_ENV",
		"WEB_PORT", "WEB_HOST", "WEB_ALLOWED_ORIGINS",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.PatientID != "default" {
		t.Errorf("expected default patient ID, got '%s'", cfg.PatientID)
	}
	if len(cfg.Embedding.URLs) != 1 || cfg.Embedding.URLs[0] != "http://localhost:8000" {
		t.Errorf("expected default embedding URL, got %v", cfg.Embedding.URLs)
	}
	if cfg.Enrichment.Timeout != 8*time.Second {
		t.Errorf("expected 8s enrichment timeout, got %v", cfg.Enrichment.Timeout)
	}
	if cfg.Speech.Binary != "espeak-ng" {
		t.Errorf("expected espeak-ng, got '%s'", cfg.Speech.Binary)
	}
	if cfg.Speech.Cooldown != 5*time.Second {
		t.Errorf("expected 5s cooldown, got %v", cfg.Speech.Cooldown)
	}
	if cfg.Detection.Interval != 2*time.Second {
		t.Errorf("expected 2s detection interval, got %v", cfg.Detection.Interval)
	}
	if cfg.Reminders.LeadMinutes != 5 {
		t.Errorf("expected 5 lead minutes, got %d", cfg.Reminders.LeadMinutes)
	}
	if cfg.Reminders.PollInterval != 30*time.Second {
		t.Errorf("expected 30s poll interval, got %v", cfg.Reminders.PollInterval)
	}
	if cfg.Web.Port != 8080 || cfg.Web.Host != "0.0.0.0" {
		t.Errorf("expected 0.0.0.0:8080, got %s:%d", cfg.Web.Host, cfg.Web.Port)
	}
	if len(cfg.Web.AllowedOrigins) != 0 {
		t.Errorf("expected no extra origins, got %v", cfg.Web.AllowedOrigins)
	}
	if cfg.Log.Env != "dev" {
		t.Errorf("expected dev log env, got '%s'", cfg.Log.Env)
	}
}

func TestLoad_EmbeddingURLList(t *testing.T) {
	t.Setenv("EMBEDDING_URL", "http://a:8000, ,http://b:8000")

	cfg := Load()

	if len(cfg.Embedding.URLs) != 2 {
		t.Fatalf("expected 2 URLs, got %v", cfg.Embedding.URLs)
	}
	if cfg.Embedding.URLs[1] != "http://b:8000" {
		t.Errorf("expected trimmed second URL, got '%s'", cfg.Embedding.URLs[1])
	}
}

func TestLoad_Durations(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected time.Duration
	}{
		{name: "valid", value: "500ms", expected: 500 * time.Millisecond},
		{name: "invalid", value: "soon", expected: 2 * time.Second},
		{name: "negative", value: "-1s", expected: 2 * time.Second},
		{name: "zero", value: "0s", expected: 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DETECTION_INTERVAL", tt.value)
			cfg := Load()
			if cfg.Detection.Interval != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, cfg.Detection.Interval)
			}
		})
	}
}

func TestLoad_InvalidLeadMinutes(t *testing.T) {
	t.Setenv("REMINDER_LEAD_MINUTES", "-3")

	cfg := Load()

	if cfg.Reminders.LeadMinutes != 5 {
		t.Errorf("expected fallback to 5, got %d", cfg.Reminders.LeadMinutes)
	}
}

func TestLoad_PromptsLoaded(t *testing.T) {
	cfg := Load()

	if cfg.Prompts.Known == "" || cfg.Prompts.Unknown == "" {
		t.Fatal("expected embedded prompts to be loaded")
	}
	if !strings.Contains(cfg.Prompts.Known, "{name}") {
		t.Error("expected known prompt to contain the {name} placeholder")
	}
}

func TestPromptsConfig_KnownPrompt(t *testing.T) {
	p := PromptsConfig{Known: "This is {name}. Describe {name}."}

	got := p.KnownPrompt("Alice")

	if got != "This is Alice. Describe Alice." {
		t.Errorf("unexpected prompt: %s", got)
	}
}

func TestEnrichmentProvider(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		expected string
	}{
		{name: "none", cfg: Config{}, expected: ""},
		{name: "gemini wins", cfg: Config{Gemini: GeminiConfig{APIKey: "g"}, OpenAI: OpenAIConfig{Token: "o"}}, expected: "gemini"},
		{name: "openai", cfg: Config{OpenAI: OpenAIConfig{Token: "o"}}, expected: "openai"},
		{name: "llamacpp before ollama", cfg: Config{LlamaCpp: LlamaCppConfig{URL: "http://gpu:8080"}, Ollama: OllamaConfig{Model: "llava"}}, expected: "llamacpp"},
		{name: "ollama by model", cfg: Config{Ollama: OllamaConfig{Model: "llava"}}, expected: "ollama"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.EnrichmentProvider(); got != tt.expected {
				t.Errorf("expected '%s', got '%s'", tt.expected, got)
			}
		})
	}
}

func TestLoad_Web(t *testing.T) {
	t.Setenv("WEB_PORT", "9090")
	t.Setenv("WEB_HOST", "127.0.0.1")
	t.Setenv("WEB_ALLOWED_ORIGINS", "https://family.example, https://care.example")

	cfg := Load()

	if cfg.Web.Port != 9090 || cfg.Web.Host != "127.0.0.1" {
		t.Errorf("unexpected listen address %s:%d", cfg.Web.Host, cfg.Web.Port)
	}
	if len(cfg.Web.AllowedOrigins) != 2 || cfg.Web.AllowedOrigins[1] != "https://care.example" {
		t.Errorf("unexpected origins %v", cfg.Web.AllowedOrigins)
	}
}
