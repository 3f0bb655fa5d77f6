// Package jobs runs queued video generation in the background so HTTP
// callers do not hold a connection open for minutes.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/kingdom/internal/orchestrator"
	"github.com/kalambet/kingdom/internal/storage"
)

// TypeVideoGenerate is the job type for GenerateVeoVideo requests.
const TypeVideoGenerate = "video_generate"

const videoMaxAttempts = 2

var errBadPayload = errors.New("invalid job payload")

// JobStore is the subset of storage.Store the worker needs.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id, resultJSON string) error
	FailJob(id, errMsg string) error
	AbandonJob(id, errMsg string) error
}

// VideoGenerator produces a video from a prompt and a source image.
type VideoGenerator interface {
	GenerateVeoVideo(ctx context.Context, prompt, sourceImage string) (*orchestrator.VisualAsset, error)
}

// VideoPayload is the queued request.
type VideoPayload struct {
	Prompt      string `json:"prompt"`
	SourceImage string `json:"source_image"`
}

// VideoResult is stored on completion. VideoURI carries no credential.
// NoVideo marks an operation that finished without producing a video.
type VideoResult struct {
	VideoURI    string `json:"video_uri"`
	NoVideo     bool   `json:"no_video,omitempty"`
	Model       string `json:"model,omitempty"`
	Resolution  string `json:"resolution,omitempty"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
}

// NewVideoJob builds a pending video job with a fresh ID.
func NewVideoJob(prompt, sourceImage string) (storage.Job, error) {
	payload, err := json.Marshal(VideoPayload{Prompt: prompt, SourceImage: sourceImage})
	if err != nil {
		return storage.Job{}, fmt.Errorf("encoding video payload: %w", err)
	}
	return storage.Job{
		ID:          uuid.NewString(),
		Type:        TypeVideoGenerate,
		PayloadJSON: string(payload),
		MaxAttempts: videoMaxAttempts,
	}, nil
}

// Worker processes video_generate jobs from the SQLite queue.
type Worker struct {
	store  JobStore
	videos VideoGenerator
	poll   time.Duration
	logger *slog.Logger
}

// NewWorker creates a Worker. A pollInterval <= 0 means 500ms; a nil logger
// means slog.Default().
func NewWorker(store JobStore, videos VideoGenerator, pollInterval time.Duration, logger *slog.Logger) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		store:  store,
		videos: videos,
		poll:   pollInterval,
		logger: logger,
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	t := time.NewTimer(0)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			t.Reset(0)
		} else {
			t.Reset(w.poll)
		}
	}
}

// RunOnce claims and processes a single job. It reports whether a job was
// claimed, regardless of outcome.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{TypeVideoGenerate})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	log := w.logger.With("job_id", job.ID, "attempt", job.Attempts+1)
	log.Info("processing video job")

	result, err := w.process(ctx, job)
	switch {
	case err == nil:
		if err := w.store.CompleteJob(job.ID, result); err != nil {
			return true, fmt.Errorf("completing job %s: %w", job.ID, err)
		}
		log.Info("video job completed")
	case ctx.Err() != nil:
		// Left running; RequeueRunning picks it up on the next start.
		log.Warn("video job interrupted by shutdown", "error", err)
	case permanent(err):
		log.Warn("video job abandoned", "error", err)
		if err := w.store.AbandonJob(job.ID, err.Error()); err != nil {
			log.Error("failed to abandon job", "error", err)
		}
	default:
		log.Warn("video job failed", "error", err)
		if err := w.store.FailJob(job.ID, err.Error()); err != nil {
			log.Error("failed to mark job as failed", "error", err)
		}
	}
	return true, nil
}

func (w *Worker) process(ctx context.Context, job *storage.Job) (string, error) {
	var p VideoPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &p); err != nil {
		return "", fmt.Errorf("%w: %v", errBadPayload, err)
	}
	if _, _, err := orchestrator.SplitDataURI(p.SourceImage); err != nil {
		return "", fmt.Errorf("%w: source image: %v", errBadPayload, err)
	}

	asset, err := w.videos.GenerateVeoVideo(ctx, p.Prompt, p.SourceImage)
	if err != nil {
		return "", err
	}
	res := VideoResult{NoVideo: true}
	if asset != nil {
		res = VideoResult{
			VideoURI:    orchestrator.WithoutKey(asset.VideoURI),
			NoVideo:     asset.VideoURI == "",
			Model:       asset.Model,
			Resolution:  asset.Resolution,
			AspectRatio: asset.AspectRatio,
		}
	}
	if res.NoVideo {
		w.logger.Warn("video operation finished without a video", "job_id", job.ID)
	}

	b, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("encoding result: %w", err)
	}
	return string(b), nil
}

// permanent reports errors that a retry cannot fix.
func permanent(err error) bool {
	for _, target := range []error{
		orchestrator.ErrKeyResetRequired,
		orchestrator.ErrInvalidResolution,
		orchestrator.ErrInvalidAspectRatio,
		orchestrator.ErrEmptyInput,
		errBadPayload,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
