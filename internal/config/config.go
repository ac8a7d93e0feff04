// Package config loads and validates all environment variables at startup.
// Every other package receives typed values and nothing reads os.Getenv directly.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the fully-parsed application configuration.
type Config struct {
	// ── Server ────────────────────────────────────────────────────────────────
	Port           string   // default "8080"
	Env            string   // "development" | "staging" | "production"
	AllowedOrigins []string // CORS origins, default ["*"]

	// ── Groq ──────────────────────────────────────────────────────────────────
	GroqAPIKey      string
	GroqBaseURL     string        // default "https://api.groq.com/openai/v1"
	GroqModel       string        // default "llama3-70b-8192"
	GroqTemperature float64       // default 0.5, must be within (0, 2]
	GroqTimeout     time.Duration // default 90s

	// ── Rules ─────────────────────────────────────────────────────────────────
	// Optional. When set, the rule set is read from this YAML file instead of
	// the built-in defaults.
	RulesFile string
}

// Load reads all environment variables and returns a validated Config.
// It automatically loads a .env file from the working directory when present,
// so plain `go run ./cmd/api` works in development without any wrapper.
// Real environment variables always take precedence over .env values.
func Load() (*Config, error) {
	loadDotEnv(".env")

	c := &Config{
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("ENV", "development"),
		AllowedOrigins:  getEnvAsList("ALLOWED_ORIGINS", []string{"*"}),
		GroqAPIKey:      os.Getenv("GROQ_API_KEY"),
		GroqBaseURL:     getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
		GroqModel:       getEnv("GROQ_MODEL", "llama3-70b-8192"),
		GroqTemperature: getEnvAsFloat("GROQ_TEMPERATURE", 0.5),
		GroqTimeout:     getEnvAsDuration("GROQ_TIMEOUT", 90*time.Second),
		RulesFile:       os.Getenv("RULES_FILE"),
	}

	return c, c.validate()
}

func (c *Config) validate() error {
	var errs []error

	if c.GroqAPIKey == "" {
		errs = append(errs, errors.New("missing required env var: GROQ_API_KEY"))
	}
	// The chat request omits a zero temperature, so 0 could never be sent.
	if c.GroqTemperature <= 0 || c.GroqTemperature > 2 {
		errs = append(errs, fmt.Errorf("GROQ_TEMPERATURE must be within (0, 2], got %g", c.GroqTemperature))
	}
	if c.GroqTimeout <= 0 {
		errs = append(errs, fmt.Errorf("GROQ_TIMEOUT must be positive, got %s", c.GroqTimeout))
	}

	return errors.Join(errs...)
}

// ─── DOT-ENV LOADER ──────────────────────────────────────────────────────────

// loadDotEnv reads key=value pairs from path and sets them in the environment,
// but only for keys that are not already set. Real env vars (from Docker or
// your shell) always win over the file.
// Missing file, blank lines and #-comments are silently ignored.
func loadDotEnv(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
		value = strings.TrimSpace(value)
		// Strip optional surrounding quotes: KEY="value" or KEY='value'
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}
		if os.Getenv(key) == "" {
			_ = os.Setenv(key, value)
		}
	}
}

// ─── HELPERS ─────────────────────────────────────────────────────────────────

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsFloat returns defaultValue when the variable is unset. A value that
// does not parse yields -1, which every float setting here rejects.
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return -1
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if duration, err := ParseDuration(valueStr); err == nil {
		return duration
	}
	return defaultValue
}

// ParseDuration accepts either a plain integer, read as seconds, or Go
// duration syntax such as "30s", "5m" or "1h". labctl uses it so GROQ_TIMEOUT
// means the same thing to both binaries.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if value, err := strconv.Atoi(s); err == nil {
		return time.Duration(value) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: want seconds or a value like 90s", s)
	}
	return d, nil
}

// getEnvAsList splits a comma-separated variable, dropping empty entries.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
