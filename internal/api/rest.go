// Package api exposes the orchestrator over a local REST API and an MCP
// server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/kingdom/internal/document"
	"github.com/kalambet/kingdom/internal/forms"
	"github.com/kalambet/kingdom/internal/orchestrator"
	"github.com/kalambet/kingdom/internal/storage"
)

const (
	maxRequestBodySize = 1 << 20  // 1MB
	maxUploadBodySize  = 20 << 20 // 20MB, images and PDFs arrive base64-encoded
)

// Generator is the orchestrator surface the API calls.
type Generator interface {
	GenerateDevotional(ctx context.Context, lang orchestrator.Language) (orchestrator.Devotional, error)
	GeneratePrayerResponse(ctx context.Context, request string, lang orchestrator.Language) (orchestrator.PrayerResponse, error)
	TextToSpeech(ctx context.Context, text string) ([]byte, error)
	GenerateHighQualityImage(ctx context.Context, prompt, aspectRatio, resolution string) (*orchestrator.VisualAsset, error)
	CheckVideoKey(ctx context.Context) error
	VideoLink(uri string) string
	AskWisdomAssistant(ctx context.Context, query string, useSearch bool) (orchestrator.GroundedAnswer, error)
	SearchMapGrounding(ctx context.Context, location string, lat, lng *float64) (orchestrator.GroundedAnswer, error)
	AnalyzeVisual(ctx context.Context, prompt, fileData, mimeType string) (string, error)
	StudyDocument(ctx context.Context, prompt string, pdf []byte) (orchestrator.GroundedAnswer, error)
}

// JobQueue is the subset of storage.Store used for video jobs.
type JobQueue interface {
	EnqueueJob(job storage.Job) error
	GetJob(id string) (storage.Job, error)
	ListJobs(jobType string, limit, offset int) ([]storage.Job, error)
}

// ContactSender relays contact form submissions.
type ContactSender interface {
	Submit(ctx context.Context, fields map[string]string) error
}

// Deps holds everything the REST handlers need. Contact may be nil.
type Deps struct {
	Gen     Generator
	Jobs    JobQueue
	Contact ContactSender
	Token   string
	Logger  *slog.Logger
}

// NewHandler returns the REST API. /health is public; every /v1 route
// requires the bearer token.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/languages", handleLanguages)
		r.Post("/devotionals", handleDevotional(deps))
		r.Post("/prayers", handlePrayer(deps))
		r.Post("/speech", handleSpeech(deps))
		r.Post("/images", handleImage(deps))
		r.Post("/wisdom", handleWisdom(deps))
		r.Post("/maps", handleMaps(deps))
		r.Post("/analyze", handleAnalyze(deps))
		r.Post("/contact", handleContact(deps))

		r.Post("/videos", handleSubmitVideo(deps))
		r.Get("/videos", handleListVideos(deps))
		r.Get("/videos/{id}", handleGetVideo(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// decodeBody reads a JSON request body of at most limit bytes into v and
// writes a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, v any) bool {
	return decodeRequest(w, r, limit, v, false)
}

// decodeOptionalBody is decodeBody for routes where every field has a
// default. An empty body, chunked or not, leaves v untouched.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, limit int64, v any) bool {
	return decodeRequest(w, r, limit, v, true)
}

func decodeRequest(w http.ResponseWriter, r *http.Request, limit int64, v any, allowEmpty bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			httpError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "request body exceeds %d bytes", tooBig.Limit)
			return false
		}
		if errors.Is(err, io.EOF) {
			if allowEmpty {
				return true
			}
			httpError(w, http.StatusBadRequest, "invalid_request_error", "request body is empty")
			return false
		}
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// writeGenerationError maps orchestrator and document errors onto HTTP
// statuses. Anything unrecognised is treated as an upstream failure.
func writeGenerationError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrKeyResetRequired):
		httpError(w, http.StatusPreconditionRequired, "key_reset_required", "%s: select an API key with video access and retry", op)
	case errors.Is(err, orchestrator.ErrInvalidResolution),
		errors.Is(err, orchestrator.ErrInvalidAspectRatio),
		errors.Is(err, orchestrator.ErrEmptyInput),
		errors.Is(err, document.ErrNotPDF):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%s: %v", op, err)
	case errors.Is(err, forms.ErrMissingAccessKey):
		httpError(w, http.StatusServiceUnavailable, "configuration_error", "%s: %v", op, err)
	case errors.Is(err, context.Canceled):
		// Client went away; nobody is listening for the body.
		w.WriteHeader(499)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, orchestrator.ErrVideoTimeout):
		httpError(w, http.StatusGatewayTimeout, "api_error", "%s: %v", op, err)
	default:
		logger.Error("generation failed", "op", op, "error", err)
		httpError(w, http.StatusBadGateway, "api_error", "%s: %v", op, err)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
