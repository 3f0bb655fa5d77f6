// Package orchestrator turns application-level requests (devotionals, prayer
// responses, speech, images, video, grounded study answers) into Gemini calls
// and normalises the heterogeneous responses into stable result types.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/kingdom/internal/gemini"
)

const (
	defaultPollInterval = 10 * time.Second
	defaultMaxPolls     = 60
)

var (
	// ErrKeyResetRequired is returned before any network call when no API
	// credential has been selected for video generation. Callers should
	// prompt the user to pick a key and retry.
	ErrKeyResetRequired = errors.New("KEY_RESET_REQUIRED")

	// ErrVideoTimeout is returned when a video operation is still pending
	// after the configured number of polls.
	ErrVideoTimeout = errors.New("video generation timed out")

	ErrInvalidResolution  = errors.New("invalid resolution")
	ErrInvalidAspectRatio = errors.New("invalid aspect ratio")
	ErrEmptyInput         = errors.New("empty input")
)

// GenerationError wraps a failed remote call.
type GenerationError struct {
	Op    string
	Model string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Op, e.Model, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// KeyChecker reports whether an API credential is selected for the calling
// environment. Video generation requires one.
type KeyChecker interface {
	HasSelectedKey(ctx context.Context) (bool, error)
}

// KeyCheckerFunc adapts a function to KeyChecker.
type KeyCheckerFunc func(ctx context.Context) (bool, error)

func (f KeyCheckerFunc) HasSelectedKey(ctx context.Context) (bool, error) {
	return f(ctx)
}

// StaticKey is a KeyChecker that reports whether key is non-empty.
func StaticKey(key string) KeyChecker {
	return KeyCheckerFunc(func(context.Context) (bool, error) {
		return key != "", nil
	})
}

// Config holds the credential and model identifiers used by the Orchestrator.
type Config struct {
	APIKey             string
	TextModel          string
	MapsModel          string
	SpeechModel        string
	Voice              string
	ImageModel         string
	FallbackImageModel string
	VideoModel         string
	PollInterval       time.Duration
	MaxPolls           int
}

// DefaultConfig returns the production model line-up for apiKey.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:             apiKey,
		TextModel:          "gemini-3-flash-preview",
		MapsModel:          "gemini-2.5-flash",
		SpeechModel:        "gemini-2.5-flash-preview-tts",
		Voice:              "Kore",
		ImageModel:         "gemini-3-pro-image-preview",
		FallbackImageModel: "gemini-2.5-flash-image",
		VideoModel:         "veo-3.1-fast-generate-preview",
		PollInterval:       defaultPollInterval,
		MaxPolls:           defaultMaxPolls,
	}
}

// Orchestrator issues generation requests against a gemini.Backend. It holds
// no per-call state and is safe for concurrent use.
type Orchestrator struct {
	backend gemini.Backend
	cfg     Config
	keys    KeyChecker
	logger  *slog.Logger
	wait    func(ctx context.Context, d time.Duration) error
}

// New creates an Orchestrator. Zero-valued fields in cfg fall back to
// DefaultConfig. A nil keys checks that cfg.APIKey is set; a nil logger
// means slog.Default().
func New(backend gemini.Backend, cfg Config, keys KeyChecker, logger *slog.Logger) *Orchestrator {
	def := DefaultConfig(cfg.APIKey)
	if cfg.TextModel == "" {
		cfg.TextModel = def.TextModel
	}
	if cfg.MapsModel == "" {
		cfg.MapsModel = def.MapsModel
	}
	if cfg.SpeechModel == "" {
		cfg.SpeechModel = def.SpeechModel
	}
	if cfg.Voice == "" {
		cfg.Voice = def.Voice
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = def.ImageModel
	}
	if cfg.FallbackImageModel == "" {
		cfg.FallbackImageModel = def.FallbackImageModel
	}
	if cfg.VideoModel == "" {
		cfg.VideoModel = def.VideoModel
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = def.MaxPolls
	}

	if keys == nil {
		keys = StaticKey(cfg.APIKey)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		backend: backend,
		cfg:     cfg,
		keys:    keys,
		logger:  logger,
		wait:    sleepContext,
	}
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

func (o *Orchestrator) generate(ctx context.Context, op, model string, req gemini.Request) (*gemini.Response, error) {
	resp, err := o.backend.GenerateContent(ctx, model, req)
	if err != nil {
		return nil, &GenerationError{Op: op, Model: model, Err: err}
	}
	return resp, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
