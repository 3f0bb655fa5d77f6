package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/kingdom/internal/jobs"
	"github.com/kalambet/kingdom/internal/orchestrator"
	"github.com/kalambet/kingdom/internal/storage"
)

type videoRequest struct {
	Prompt      string `json:"prompt"`
	SourceImage string `json:"source_image"`
}

// VideoJob is the client view of a queued video generation.
type VideoJob struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Prompt    string    `json:"prompt,omitempty"`
	VideoURI  string    `json:"video_uri,omitempty"`
	NoVideo   bool      `json:"no_video,omitempty"`
	Model     string    `json:"model,omitempty"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// videoJobView builds the client view. Stored URIs carry no credential;
// link attaches it.
func videoJobView(j storage.Job, link func(string) string) VideoJob {
	v := VideoJob{
		ID:        j.ID,
		Status:    j.Status,
		Attempts:  j.Attempts,
		Error:     j.LastError,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
	var p jobs.VideoPayload
	if json.Unmarshal([]byte(j.PayloadJSON), &p) == nil {
		v.Prompt = p.Prompt
	}
	if j.ResultJSON != "" {
		var res jobs.VideoResult
		if json.Unmarshal([]byte(j.ResultJSON), &res) == nil {
			v.VideoURI = link(res.VideoURI)
			v.NoVideo = res.NoVideo
			v.Model = res.Model
		}
	}
	return v
}

// handleSubmitVideo checks the key selection synchronously so the client
// can prompt for a key before anything is queued, then enqueues the job.
func handleSubmitVideo(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req videoRequest
		if !decodeBody(w, r, maxUploadBodySize, &req) {
			return
		}
		if strings.TrimSpace(req.SourceImage) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "source_image is required")
			return
		}
		if _, _, err := orchestrator.SplitDataURI(req.SourceImage); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "source_image: %v", err)
			return
		}

		if err := deps.Gen.CheckVideoKey(r.Context()); err != nil {
			writeGenerationError(w, deps.Logger, "video", err)
			return
		}

		job, err := jobs.NewVideoJob(req.Prompt, req.SourceImage)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create job: %v", err)
			return
		}
		if err := deps.Jobs.EnqueueJob(job); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue job: %v", err)
			return
		}
		deps.Logger.Info("video job queued", "job_id", job.ID)

		writeJSON(w, http.StatusAccepted, map[string]string{
			"id":     job.ID,
			"status": storage.JobPending,
		})
	}
}

func handleGetVideo(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		job, err := deps.Jobs.GetJob(id)
		if errors.Is(err, storage.ErrNotFound) || (err == nil && job.Type != jobs.TypeVideoGenerate) {
			httpError(w, http.StatusNotFound, "not_found", "video job not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get job: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, videoJobView(job, deps.Gen.VideoLink))
	}
}

func handleListVideos(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		list, err := deps.Jobs.ListJobs(jobs.TypeVideoGenerate, limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list jobs: %v", err)
			return
		}

		views := make([]VideoJob, len(list))
		for i, j := range list {
			views[i] = videoJobView(j, deps.Gen.VideoLink)
		}
		writeJSON(w, http.StatusOK, views)
	}
}
