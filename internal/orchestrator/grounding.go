package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/kalambet/kingdom/internal/document"
	"github.com/kalambet/kingdom/internal/gemini"
)

// GroundedAnswer is model text plus the citations the provider attached,
// in provider order.
type GroundedAnswer struct {
	Text    string          `json:"text"`
	Sources []gemini.Source `json:"sources"`
}

// AskWisdomAssistant answers a biblical or spiritual question under the
// wisdom-assistant system instruction, optionally grounded in web search.
func (o *Orchestrator) AskWisdomAssistant(ctx context.Context, query string, useSearch bool) (GroundedAnswer, error) {
	if strings.TrimSpace(query) == "" {
		return GroundedAnswer{}, fmt.Errorf("wisdom query: %w", ErrEmptyInput)
	}

	resp, err := o.generate(ctx, "ask wisdom assistant", o.cfg.TextModel, gemini.Request{
		System: wisdomInstruction,
		Parts:  []gemini.Part{gemini.TextPart(query)},
		Tools:  gemini.Tools{Search: useSearch},
	})
	if err != nil {
		return GroundedAnswer{}, err
	}
	return GroundedAnswer{Text: resp.Text(), Sources: resp.Sources()}, nil
}

// SearchMapGrounding describes the biblical and geographic significance of
// location using maps and search grounding. When both lat and lng are set,
// retrieval is biased toward that point; values are passed through unchecked.
func (o *Orchestrator) SearchMapGrounding(ctx context.Context, location string, lat, lng *float64) (GroundedAnswer, error) {
	if strings.TrimSpace(location) == "" {
		return GroundedAnswer{}, fmt.Errorf("location: %w", ErrEmptyInput)
	}

	req := gemini.Request{
		Parts: []gemini.Part{gemini.TextPart(fmt.Sprintf(mapPrompt, location))},
		Tools: gemini.Tools{Search: true, Maps: true},
	}
	if lat != nil && lng != nil {
		req.Location = &gemini.LatLng{Latitude: *lat, Longitude: *lng}
	}

	resp, err := o.generate(ctx, "search map grounding", o.cfg.MapsModel, req)
	if err != nil {
		return GroundedAnswer{}, err
	}
	return GroundedAnswer{Text: resp.Text(), Sources: resp.Sources()}, nil
}

// AnalyzeVisual sends fileData (raw base64 or a data URI) with prompt and
// returns the model's text answer unparsed.
func (o *Orchestrator) AnalyzeVisual(ctx context.Context, prompt, fileData, mimeType string) (string, error) {
	data, detected, err := SplitDataURI(fileData)
	if err != nil {
		return "", fmt.Errorf("file data: %w", err)
	}
	if mimeType == "" {
		mimeType = detected
	}

	resp, err := o.generate(ctx, "analyze visual", o.cfg.TextModel, gemini.Request{
		Parts: []gemini.Part{
			gemini.BlobPart(data, mimeType),
			gemini.TextPart(prompt),
		},
	})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// StudyDocument extracts the text of a PDF and asks the wisdom assistant
// prompt about it, without web search.
func (o *Orchestrator) StudyDocument(ctx context.Context, prompt string, pdf []byte) (GroundedAnswer, error) {
	text, err := document.ExtractText(pdf)
	if err != nil {
		return GroundedAnswer{}, fmt.Errorf("reading document: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return GroundedAnswer{}, fmt.Errorf("document text: %w", ErrEmptyInput)
	}
	if strings.TrimSpace(prompt) == "" {
		prompt = "Summarize the key teachings of this document with supporting scripture."
	}
	return o.AskWisdomAssistant(ctx, fmt.Sprintf(documentPrompt, document.Truncate(text, document.MaxPromptRunes), prompt), false)
}
