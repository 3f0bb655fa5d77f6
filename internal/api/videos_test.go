package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/kalambet/kingdom/internal/jobs"
	"github.com/kalambet/kingdom/internal/orchestrator"
	"github.com/kalambet/kingdom/internal/storage"
)

const tinyPNG = "data:image/png;base64,iVBORw0KGgo="

func TestSubmitVideo_Queues(t *testing.T) {
	h, store := newTestHandler(t, &fakeGenerator{})

	rr := do(h, http.MethodPost, "/v1/videos", `{"prompt":"the waters part","source_image":"`+tinyPNG+`"}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}
	var resp map[string]string
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp["status"] != storage.JobPending || resp["id"] == "" {
		t.Fatalf("response = %v", resp)
	}

	job, err := store.GetJob(resp["id"])
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Type != jobs.TypeVideoGenerate {
		t.Errorf("job type = %q", job.Type)
	}
	var p jobs.VideoPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &p); err != nil {
		t.Fatal(err)
	}
	if p.Prompt != "the waters part" || p.SourceImage != tinyPNG {
		t.Errorf("payload = %+v", p)
	}
}

func TestSubmitVideo_KeyResetRequired(t *testing.T) {
	h, store := newTestHandler(t, &fakeGenerator{keyErr: orchestrator.ErrKeyResetRequired})

	rr := do(h, http.MethodPost, "/v1/videos", `{"prompt":"p","source_image":"`+tinyPNG+`"}`)
	if rr.Code != http.StatusPreconditionRequired {
		t.Fatalf("status = %d, want 428", rr.Code)
	}
	if got := errorType(t, rr); got != "key_reset_required" {
		t.Errorf("error type = %q", got)
	}

	list, err := store.ListJobs(jobs.TypeVideoGenerate, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("%d jobs queued despite missing key", len(list))
	}
}

func TestSubmitVideo_Validation(t *testing.T) {
	h, _ := newTestHandler(t, &fakeGenerator{})

	for _, body := range []string{
		`{"prompt":"p"}`,
		`{"prompt":"p","source_image":"data:image/png;base64,***"}`,
	} {
		rr := do(h, http.MethodPost, "/v1/videos", body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, rr.Code)
		}
	}
}

func TestGetVideo(t *testing.T) {
	h, store := newTestHandler(t, &fakeGenerator{})

	job, err := jobs.NewVideoJob("a dove descends", tinyPNG)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.EnqueueJob(job); err != nil {
		t.Fatal(err)
	}
	claimed, err := store.ClaimNextJob([]string{jobs.TypeVideoGenerate})
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNextJob = (%v, %v)", claimed, err)
	}
	result, _ := json.Marshal(jobs.VideoResult{VideoURI: "https://example.com/v.mp4", Model: "veo"})
	if err := store.CompleteJob(job.ID, string(result)); err != nil {
		t.Fatal(err)
	}

	rr := do(h, http.MethodGet, "/v1/videos/"+job.ID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var got VideoJob
	json.NewDecoder(rr.Body).Decode(&got)
	if got.Status != storage.JobCompleted || got.VideoURI != "https://example.com/v.mp4?key=test-key" || got.Prompt != "a dove descends" || got.NoVideo {
		t.Errorf("job view = %+v", got)
	}
}

func TestGetVideo_NoVideo(t *testing.T) {
	h, store := newTestHandler(t, &fakeGenerator{})

	job, err := jobs.NewVideoJob("an empty tomb", tinyPNG)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.EnqueueJob(job); err != nil {
		t.Fatal(err)
	}
	if claimed, err := store.ClaimNextJob([]string{jobs.TypeVideoGenerate}); err != nil || claimed == nil {
		t.Fatalf("ClaimNextJob = (%v, %v)", claimed, err)
	}
	result, _ := json.Marshal(jobs.VideoResult{NoVideo: true})
	if err := store.CompleteJob(job.ID, string(result)); err != nil {
		t.Fatal(err)
	}

	rr := do(h, http.MethodGet, "/v1/videos/"+job.ID, "")
	var got VideoJob
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Status != storage.JobCompleted || !got.NoVideo || got.VideoURI != "" || got.Error != "" {
		t.Errorf("job view = %+v, want completed with no_video", got)
	}
}

func TestGetVideo_NotFound(t *testing.T) {
	h, store := newTestHandler(t, &fakeGenerator{})

	rr := do(h, http.MethodGet, "/v1/videos/nope", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}

	other := storage.Job{ID: "other-job", Type: "something_else"}
	if err := store.EnqueueJob(other); err != nil {
		t.Fatal(err)
	}
	rr = do(h, http.MethodGet, "/v1/videos/other-job", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("non-video job: status = %d, want 404", rr.Code)
	}
}

func TestListVideos(t *testing.T) {
	h, store := newTestHandler(t, &fakeGenerator{})

	rr := do(h, http.MethodGet, "/v1/videos", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := rr.Body.String(); body != "[]\n" {
		t.Errorf("empty list body = %q", body)
	}

	for range 3 {
		job, _ := jobs.NewVideoJob("p", tinyPNG)
		if err := store.EnqueueJob(job); err != nil {
			t.Fatal(err)
		}
	}
	rr = do(h, http.MethodGet, "/v1/videos?limit=2", "")
	var got []VideoJob
	json.NewDecoder(rr.Body).Decode(&got)
	if len(got) != 2 {
		t.Errorf("got %d jobs, want 2", len(got))
	}
}
