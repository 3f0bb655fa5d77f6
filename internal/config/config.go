package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// KeychainService is the service name under which secrets are stored.
const KeychainService = "kingdom"

// Keychain accounts.
const (
	accountGeminiKey = "gemini_api_key"
	accountFormsKey  = "forms_access_key"
	accountAPIToken  = "api_token"
)

// ErrMissingAPIKey is returned by Load when no Gemini key is configured.
var ErrMissingAPIKey = errors.New("missing required config: Gemini API key")

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Log     LogConfig
	Gemini  GeminiConfig
	Video   VideoConfig
	Forms   FormsConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

type GeminiConfig struct {
	APIKey             string
	BaseURL            string
	TextModel          string
	MapsModel          string
	SpeechModel        string
	Voice              string
	ImageModel         string
	FallbackImageModel string
	VideoModel         string
}

type VideoConfig struct {
	PollInterval time.Duration
	MaxPolls     int
}

type FormsConfig struct {
	Endpoint  string
	AccessKey string
}

// SlogLevel maps Level onto a slog level. Unknown values mean info.
func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		Gemini: GeminiConfig{
			TextModel:          "gemini-3-flash-preview",
			MapsModel:          "gemini-2.5-flash",
			SpeechModel:        "gemini-2.5-flash-preview-tts",
			Voice:              "Kore",
			ImageModel:         "gemini-3-pro-image-preview",
			FallbackImageModel: "gemini-2.5-flash-image",
			VideoModel:         "veo-3.1-fast-generate-preview",
		},
		Video: VideoConfig{
			PollInterval: 10 * time.Second,
			MaxPolls:     60,
		},
		Forms: FormsConfig{
			Endpoint: "https://api.web3forms.com/submit",
		},
	}
}

// Load reads configuration from the platform backend, environment variables,
// and the platform secret store, in increasing order of precedence for
// non-secret keys. Secrets come from the environment first, then the
// keychain.
//
// On macOS the backend is UserDefaults (domain com.kingdom.app) and secrets
// live in the login Keychain. Elsewhere the backend is
// $XDG_CONFIG_HOME/kingdom/config.json and secrets live in
// $XDG_DATA_HOME/kingdom/secrets.json.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), NewKeychain())
}

// LoadOptional is Load without the API key requirement, for commands that
// only talk to a running server.
func LoadOptional() Config {
	cfg, err := loadWith(newPlatformBackend(), NewKeychain())
	if err != nil && !errors.Is(err, ErrMissingAPIKey) {
		slog.Warn("loading config", "error", err)
	}
	return cfg
}

// Keychain abstracts the platform secret store.
type Keychain interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

func loadWith(b ConfigBackend, kc Keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return cfg, err
	}
	applyEnvOverrides(&cfg)

	// The bare variable names are what Google's SDKs and tooling export.
	for _, env := range []string{"GEMINI_API_KEY", "API_KEY"} {
		if cfg.Gemini.APIKey != "" {
			break
		}
		cfg.Gemini.APIKey = os.Getenv(env)
	}
	if cfg.Gemini.APIKey == "" {
		if key, err := kc.Get(KeychainService, accountGeminiKey); err == nil {
			cfg.Gemini.APIKey = strings.TrimSpace(key)
		}
	}
	if cfg.Forms.AccessKey == "" {
		if key, err := kc.Get(KeychainService, accountFormsKey); err == nil {
			cfg.Forms.AccessKey = strings.TrimSpace(key)
		}
	}

	if cfg.Gemini.APIKey == "" {
		return cfg, fmt.Errorf("%w. Set KINGDOM_GEMINI_API_KEY, run `kingdom config set-secret gemini.api_key <key>`%s",
			ErrMissingAPIKey, apiKeyHint())
	}
	return cfg, nil
}

// platformKeychain dispatches to the build-specific keychainGet/keychainSet.
type platformKeychain struct{}

// NewKeychain returns the platform secret store.
func NewKeychain() Keychain {
	return platformKeychain{}
}

func (platformKeychain) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (platformKeychain) Set(service, account, value string) error {
	return keychainSet(service, account, value)
}
