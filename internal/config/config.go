package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	DefaultEnvFile     = ".env"
	DefaultSecretsPath = ".streamlit/secrets.toml"
	DefaultModel       = "claude-3-5-haiku-20241022"

	apiKeyVar = "ANTHROPIC_API_KEY"
	appName   = "summarybot"
)

// ConfigurationError is fatal at startup: the process cannot summarize
// anything without the value it names.
type ConfigurationError struct {
	Var     string
	Sources []string
	Err     error
}

func (e *ConfigurationError) Error() string {
	sources := strings.Join(e.Sources, " nor in ")
	if e.Err != nil {
		return fmt.Sprintf("%s could not be loaded from %s: %v", e.Var, sources, e.Err)
	}
	return fmt.Sprintf("%s is not found in %s", e.Var, sources)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Credentials are resolved once at startup and never change afterwards.
type Credentials struct {
	APIKey  string `env:"ANTHROPIC_API_KEY"`
	Model   string `env:"ANTHROPIC_MODEL"    envDefault:"claude-3-5-haiku-20241022"`
	BaseURL string `env:"ANTHROPIC_BASE_URL" envDefault:"https://api.anthropic.com"`
}

type sourceConfig struct {
	Credentials

	SecretsPath string `env:"SECRETS_PATH" envDefault:".streamlit/secrets.toml"`
}

type secretsFile struct {
	AnthropicAPIKey string `toml:"ANTHROPIC_API_KEY"`
}

// Options point the loader at non-default files.
type Options struct {
	// EnvFile is the local env file. Empty means DefaultEnvFile.
	EnvFile string
	// SecretsPath overrides SECRETS_PATH.
	SecretsPath string
}

// BotConfig is the Telegram side of the process.
type BotConfig struct {
	Token        string  `env:"TOKEN,required,notEmpty"`
	AllowedUsers []int64 `env:"ALLOWED_USERS"`
	DBPath       string  `env:"DB_PATH"                 envDefault:"db.sqlite"`
}

// LoadEnvFile loads the local env file without overriding variables that
// are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = DefaultEnvFile
	}

	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file (path = %s): %w", path, err)
	}

	return nil
}

// LoadCredentials resolves the API key from the env file and process
// environment first, then from the secrets file.
func LoadCredentials(opts Options) (Credentials, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = DefaultEnvFile
	}

	if err := LoadEnvFile(envFile); err != nil {
		return Credentials{}, &ConfigurationError{
			Var:     apiKeyVar,
			Sources: []string{envFile},
			Err:     err,
		}
	}

	var cfg sourceConfig
	if err := env.Parse(&cfg); err != nil {
		return Credentials{}, fmt.Errorf("parse environment: %w", err)
	}

	secretsPath := strings.TrimSpace(opts.SecretsPath)
	if secretsPath == "" {
		secretsPath = strings.TrimSpace(cfg.SecretsPath)
	}

	creds := cfg.Credentials
	creds.APIKey = strings.TrimSpace(creds.APIKey)
	creds.Model = strings.TrimSpace(creds.Model)
	if creds.Model == "" {
		creds.Model = DefaultModel
	}

	if creds.APIKey != "" {
		return creds, nil
	}

	sources := []string{envFile, "the environment"}

	for _, path := range secretsCandidates(secretsPath) {
		sources = append(sources, path)

		key, err := readSecretsFile(path)
		if err != nil {
			return Credentials{}, &ConfigurationError{Var: apiKeyVar, Sources: sources, Err: err}
		}

		if key != "" {
			creds.APIKey = key
			return creds, nil
		}
	}

	return Credentials{}, &ConfigurationError{Var: apiKeyVar, Sources: sources}
}

// LoadBotConfig parses the bot settings from the environment.
func LoadBotConfig() (BotConfig, error) {
	var cfg BotConfig
	if err := env.Parse(&cfg); err != nil {
		return BotConfig{}, &ConfigurationError{Var: "bot settings", Sources: []string{"the environment"}, Err: err}
	}

	cfg.Token = strings.TrimSpace(cfg.Token)
	cfg.DBPath = strings.TrimSpace(cfg.DBPath)

	return cfg, nil
}

func secretsCandidates(primary string) []string {
	candidates := []string{primary}

	if fallback, err := xdg.SearchConfigFile(filepath.Join(appName, "secrets.toml")); err == nil &&
		fallback != primary {
		candidates = append(candidates, fallback)
	}

	return candidates
}

func readSecretsFile(path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("stat secrets file: %w", err)
	}

	var secrets secretsFile
	if _, err := toml.DecodeFile(path, &secrets); err != nil {
		return "", fmt.Errorf("decode secrets file (path = %s): %w", path, err)
	}

	return strings.TrimSpace(secrets.AnthropicAPIKey), nil
}
