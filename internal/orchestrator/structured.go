package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kalambet/kingdom/internal/gemini"
)

// Completeness tags a structured result. The provider marks every field as
// required, but a garbled or truncated payload still produces a value rather
// than an error; PartialOrEmpty lets callers tell the two apart.
type Completeness int

const (
	Complete Completeness = iota
	PartialOrEmpty
)

func (c Completeness) String() string {
	if c == Complete {
		return "complete"
	}
	return "partial_or_empty"
}

func (c Completeness) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Completeness) UnmarshalText(b []byte) error {
	switch string(b) {
	case "complete":
		*c = Complete
	case "partial_or_empty":
		*c = PartialOrEmpty
	default:
		return fmt.Errorf("unknown completeness %q", b)
	}
	return nil
}

// Devotional is a daily devotional.
type Devotional struct {
	Title        string       `json:"title"`
	Scripture    string       `json:"scripture"`
	Content      string       `json:"content"`
	Application  string       `json:"application"`
	Prayer       string       `json:"prayer"`
	Completeness Completeness `json:"completeness"`
}

// Scripture is a verse reference with its text.
type Scripture struct {
	Reference string `json:"reference"`
	Text      string `json:"text"`
}

// PrayerResponse answers a prayer request.
type PrayerResponse struct {
	Message      string       `json:"message"`
	Scripture    Scripture    `json:"scripture"`
	Prayer       string       `json:"prayer"`
	Completeness Completeness `json:"completeness"`
}

func devotionalSchema() *gemini.Schema {
	return &gemini.Schema{
		Type: gemini.TypeObject,
		Properties: map[string]*gemini.Schema{
			"title":       {Type: gemini.TypeString},
			"scripture":   {Type: gemini.TypeString},
			"content":     {Type: gemini.TypeString},
			"application": {Type: gemini.TypeString},
			"prayer":      {Type: gemini.TypeString},
		},
		Required: []string{"title", "scripture", "content", "application", "prayer"},
	}
}

func prayerSchema() *gemini.Schema {
	return &gemini.Schema{
		Type: gemini.TypeObject,
		Properties: map[string]*gemini.Schema{
			"message": {Type: gemini.TypeString},
			"scripture": {
				Type: gemini.TypeObject,
				Properties: map[string]*gemini.Schema{
					"reference": {Type: gemini.TypeString},
					"text":      {Type: gemini.TypeString},
				},
				Required: []string{"reference", "text"},
			},
			"prayer": {Type: gemini.TypeString},
		},
		Required: []string{"message", "scripture", "prayer"},
	}
}

// GenerateDevotional asks for a daily devotional in lang. A remote failure is
// returned as a *GenerationError; a payload that does not decode yields the
// fields that did (possibly none) tagged PartialOrEmpty.
func (o *Orchestrator) GenerateDevotional(ctx context.Context, lang Language) (Devotional, error) {
	model := o.cfg.TextModel
	resp, err := o.generate(ctx, "generate devotional", model, gemini.Request{
		Parts:            []gemini.Part{gemini.TextPart(fmt.Sprintf(devotionalPrompt, lang.Name()))},
		ResponseMIMEType: "application/json",
		Schema:           devotionalSchema(),
	})
	if err != nil {
		return Devotional{}, err
	}

	var d Devotional
	ok, partial := o.decodeStructured("devotional", model, resp.Text(), &d)
	if !ok {
		return Devotional{Completeness: PartialOrEmpty}, nil
	}
	d.Completeness = Complete
	if partial || d.Title == "" || d.Scripture == "" || d.Content == "" || d.Application == "" || d.Prayer == "" {
		d.Completeness = PartialOrEmpty
	}
	return d, nil
}

// GeneratePrayerResponse answers a prayer request in lang with the same
// degrade-to-empty contract as GenerateDevotional.
func (o *Orchestrator) GeneratePrayerResponse(ctx context.Context, request string, lang Language) (PrayerResponse, error) {
	if strings.TrimSpace(request) == "" {
		return PrayerResponse{}, fmt.Errorf("prayer request: %w", ErrEmptyInput)
	}

	model := o.cfg.TextModel
	resp, err := o.generate(ctx, "generate prayer response", model, gemini.Request{
		Parts:            []gemini.Part{gemini.TextPart(fmt.Sprintf(prayerPrompt, request, lang.Name()))},
		ResponseMIMEType: "application/json",
		Schema:           prayerSchema(),
	})
	if err != nil {
		return PrayerResponse{}, err
	}

	var p PrayerResponse
	ok, partial := o.decodeStructured("prayer response", model, resp.Text(), &p)
	if !ok {
		return PrayerResponse{Completeness: PartialOrEmpty}, nil
	}
	p.Completeness = Complete
	if partial || p.Message == "" || p.Scripture.Reference == "" || p.Scripture.Text == "" || p.Prayer == "" {
		p.Completeness = PartialOrEmpty
	}
	return p, nil
}

// decodeStructured unmarshals raw into v. An empty payload decodes as "{}".
// Fields of the wrong type are left zero while the rest are kept, and
// partial is set. ok is false, after logging, when raw is not JSON at all.
func (o *Orchestrator) decodeStructured(kind, model, raw string, v any) (ok, partial bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		o.logger.Warn("empty structured response", "kind", kind, "model", model)
		raw = "{}"
	}
	err := json.Unmarshal([]byte(raw), v)
	if err == nil {
		return true, false
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		o.logger.Warn("structured response field has the wrong type", "kind", kind, "model", model, "field", typeErr.Field, "error", err)
		return true, true
	}
	o.logger.Warn("malformed structured response", "kind", kind, "model", model, "error", err)
	return false, false
}
