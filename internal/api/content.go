package api

import (
	"net/http"
	"strings"

	"github.com/kalambet/kingdom/internal/audio"
	"github.com/kalambet/kingdom/internal/document"
	"github.com/kalambet/kingdom/internal/gemini"
	"github.com/kalambet/kingdom/internal/orchestrator"
)

// LanguageInfo is one entry of the language selector.
type LanguageInfo struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

func languageList() []LanguageInfo {
	langs := orchestrator.Languages()
	out := make([]LanguageInfo, len(langs))
	for i, l := range langs {
		out[i] = LanguageInfo{Code: string(l), Name: l.Name()}
	}
	return out
}

func handleLanguages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, languageList())
}

type devotionalRequest struct {
	Language string `json:"language"`
}

func handleDevotional(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req devotionalRequest
		// An empty body means English.
		if !decodeOptionalBody(w, r, maxRequestBodySize, &req) {
			return
		}

		d, err := deps.Gen.GenerateDevotional(r.Context(), orchestrator.ParseLanguage(req.Language))
		if err != nil {
			writeGenerationError(w, deps.Logger, "devotional", err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

type prayerRequest struct {
	Request  string `json:"request"`
	Language string `json:"language"`
}

func handlePrayer(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req prayerRequest
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}
		if strings.TrimSpace(req.Request) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "request is required")
			return
		}

		p, err := deps.Gen.GeneratePrayerResponse(r.Context(), req.Request, orchestrator.ParseLanguage(req.Language))
		if err != nil {
			writeGenerationError(w, deps.Logger, "prayer", err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

type speechRequest struct {
	Text string `json:"text"`
}

// handleSpeech returns the narration as a mono 24kHz WAV file, or 204 when
// the model produced no audio.
func handleSpeech(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req speechRequest
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "text is required")
			return
		}

		pcm, err := deps.Gen.TextToSpeech(r.Context(), req.Text)
		if err != nil {
			writeGenerationError(w, deps.Logger, "speech", err)
			return
		}
		if len(pcm) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		w.Header().Set("Content-Type", "audio/wav")
		w.WriteHeader(http.StatusOK)
		w.Write(audio.WAV(pcm, audio.SpeechSampleRate, 1))
	}
}

type imageRequest struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio"`
	Resolution  string `json:"resolution"`
}

func handleImage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req imageRequest
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}
		if strings.TrimSpace(req.Prompt) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "prompt is required")
			return
		}

		asset, err := deps.Gen.GenerateHighQualityImage(r.Context(), req.Prompt, req.AspectRatio, req.Resolution)
		if err != nil {
			writeGenerationError(w, deps.Logger, "image", err)
			return
		}
		if asset == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, asset)
	}
}

// answerResponse is the JSON shape of every grounded answer.
type answerResponse struct {
	Text    string          `json:"text"`
	Sources []gemini.Source `json:"sources"`
}

func answerJSON(a orchestrator.GroundedAnswer) answerResponse {
	sources := a.Sources
	if sources == nil {
		sources = []gemini.Source{}
	}
	return answerResponse{Text: a.Text, Sources: sources}
}

type wisdomRequest struct {
	Query  string `json:"query"`
	Search *bool  `json:"search"`
}

func handleWisdom(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req wisdomRequest
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}
		useSearch := req.Search == nil || *req.Search

		a, err := deps.Gen.AskWisdomAssistant(r.Context(), req.Query, useSearch)
		if err != nil {
			writeGenerationError(w, deps.Logger, "wisdom", err)
			return
		}
		writeJSON(w, http.StatusOK, answerJSON(a))
	}
}

type mapsRequest struct {
	Location  string   `json:"location"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func handleMaps(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req mapsRequest
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}
		if strings.TrimSpace(req.Location) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "location is required")
			return
		}

		a, err := deps.Gen.SearchMapGrounding(r.Context(), req.Location, req.Latitude, req.Longitude)
		if err != nil {
			writeGenerationError(w, deps.Logger, "maps", err)
			return
		}
		writeJSON(w, http.StatusOK, answerJSON(a))
	}
}

type analyzeRequest struct {
	Prompt   string `json:"prompt"`
	File     string `json:"file"`
	MIMEType string `json:"mime_type"`
}

// handleAnalyze sends images to AnalyzeVisual and PDFs to StudyDocument.
// The file is base64, with or without a data URI prefix.
func handleAnalyze(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req analyzeRequest
		if !decodeBody(w, r, maxUploadBodySize, &req) {
			return
		}
		if strings.TrimSpace(req.File) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "file is required")
			return
		}

		data, mimeType, err := orchestrator.SplitDataURI(req.File)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "file: %v", err)
			return
		}
		if req.MIMEType != "" {
			mimeType = req.MIMEType
		}

		if mimeType == "application/pdf" || document.IsPDF(data) {
			a, err := deps.Gen.StudyDocument(r.Context(), req.Prompt, data)
			if err != nil {
				writeGenerationError(w, deps.Logger, "study document", err)
				return
			}
			writeJSON(w, http.StatusOK, answerJSON(a))
			return
		}

		if strings.TrimSpace(req.Prompt) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "prompt is required for images")
			return
		}
		text, err := deps.Gen.AnalyzeVisual(r.Context(), req.Prompt, req.File, mimeType)
		if err != nil {
			writeGenerationError(w, deps.Logger, "analyze", err)
			return
		}
		writeJSON(w, http.StatusOK, answerResponse{Text: text, Sources: []gemini.Source{}})
	}
}

type contactRequest struct {
	Fields map[string]string `json:"fields"`
}

func handleContact(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Contact == nil {
			httpError(w, http.StatusServiceUnavailable, "configuration_error", "contact form relay is not configured")
			return
		}

		var req contactRequest
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}
		if len(req.Fields) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "fields is required")
			return
		}

		if err := deps.Contact.Submit(r.Context(), req.Fields); err != nil {
			writeGenerationError(w, deps.Logger, "contact", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
	}
}
