// Package assistant – config.go defines all configuration structures for the
// Valet assistant backend.
package assistant

// Config holds all assistant configuration.
type Config struct {
	// Name is the assistant name used in reply prompts.
	Name string `yaml:"name"`

	// Model is the LLM model to use (e.g. "gpt-4o-mini").
	Model string `yaml:"model"`

	// Timezone is the user's reference timezone for resolving relative
	// times in utterances (e.g. "America/New_York").
	Timezone string `yaml:"timezone"`

	// API configures the completion-service endpoint.
	API APIConfig `yaml:"api"`

	// Database configures the central SQLite database.
	Database DatabaseConfig `yaml:"database"`

	// Context configures the conversation accumulator.
	Context ContextConfig `yaml:"context"`

	// Worker configures the assignment background processor.
	Worker WorkerConfig `yaml:"worker"`

	// Meetings configures meeting-request defaults.
	Meetings MeetingsConfig `yaml:"meetings"`

	// Security configures the guardrail engine.
	Security SecurityConfig `yaml:"security"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig holds completion-service connection settings.
type APIConfig struct {
	// BaseURL is the OpenAI-compatible endpoint base URL.
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates against the endpoint. Resolved through the
	// vault → keyring → env → config chain; avoid putting it here.
	APIKey string `yaml:"api_key"`

	// TimeoutSeconds bounds each completion call.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// DatabaseConfig holds persistence settings.
type DatabaseConfig struct {
	// Path is the valet.db file path.
	Path string `yaml:"path"`
}

// ContextConfig configures the conversation context accumulator.
type ContextConfig struct {
	// WindowSize is the number of recent messages injected per completion.
	WindowSize int `yaml:"window_size"`

	// CacheSize is the max conversations kept in the in-memory LRU cache.
	CacheSize int `yaml:"cache_size"`
}

// WorkerConfig configures the assignment background processor.
type WorkerConfig struct {
	// Concurrency is the number of consumer goroutines.
	Concurrency int `yaml:"concurrency"`

	// QueueSize is the in-process queue buffer.
	QueueSize int `yaml:"queue_size"`

	// TimeoutSeconds bounds the research completion call per assignment.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// StaleAfterMinutes is how old an unclaimed in_progress assignment must
	// be before the sweep re-enqueues it.
	StaleAfterMinutes int `yaml:"stale_after_minutes"`

	// SweepSchedule is the cron expression for the stale-assignment sweep.
	SweepSchedule string `yaml:"sweep_schedule"`
}

// MeetingsConfig holds meeting-request defaults.
type MeetingsConfig struct {
	// DefaultProvider is used when the classifier names none.
	DefaultProvider string `yaml:"default_provider"`
}

// SecurityConfig configures the guardrail engine.
type SecurityConfig struct {
	// RateWindowMinutes is the rate-limit window length.
	RateWindowMinutes int `yaml:"rate_window_minutes"`

	// RateCeilings overrides per-action-type limits per window.
	RateCeilings map[string]int `yaml:"rate_ceilings"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is "debug", "info", "warn", or "error".
	Level string `yaml:"level"`

	// Format is "json" or "text".
	Format string `yaml:"format"`
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:     "Valet",
		Model:    "gpt-4o-mini",
		Timezone: "UTC",
		API: APIConfig{
			BaseURL:        "https://api.openai.com/v1",
			TimeoutSeconds: 60,
		},
		Database: DatabaseConfig{
			Path: "./data/valet.db",
		},
		Context: ContextConfig{
			WindowSize: 10,
			CacheSize:  256,
		},
		Worker: WorkerConfig{
			Concurrency:       2,
			QueueSize:         64,
			TimeoutSeconds:    120,
			StaleAfterMinutes: 15,
			SweepSchedule:     "@every 5m",
		},
		Meetings: MeetingsConfig{
			DefaultProvider: "meet",
		},
		Security: SecurityConfig{
			RateWindowMinutes: 60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
