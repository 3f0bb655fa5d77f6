package gemini

import (
	"context"
	"strings"
)

// Backend is the subset of the Gemini API the orchestrator drives. Client
// is the production implementation; tests substitute fakes.
type Backend interface {
	// GenerateContent runs a single generateContent call against model.
	GenerateContent(ctx context.Context, model string, req Request) (*Response, error)

	// GenerateVideos submits a long-running video generation job.
	GenerateVideos(ctx context.Context, model string, req VideoRequest) (*VideoOperation, error)

	// VideoOperation fetches the current state of a previously submitted job.
	VideoOperation(ctx context.Context, op *VideoOperation) (*VideoOperation, error)
}

// Modality names a response media type.
type Modality string

const (
	ModalityText  Modality = "TEXT"
	ModalityImage Modality = "IMAGE"
	ModalityAudio Modality = "AUDIO"
)

// SchemaType is the primitive type of a Schema node.
type SchemaType string

const (
	TypeObject SchemaType = "object"
	TypeString SchemaType = "string"
)

// Schema describes the JSON layout requested from a structured-output call.
type Schema struct {
	Type       SchemaType
	Properties map[string]*Schema
	Required   []string
}

// Part is one piece of request or response content: either text or an
// inline binary payload.
type Part struct {
	Text     string
	Data     []byte
	MIMEType string
}

// TextPart returns a text part.
func TextPart(text string) Part {
	return Part{Text: text}
}

// BlobPart returns an inline data part.
func BlobPart(data []byte, mimeType string) Part {
	return Part{Data: data, MIMEType: mimeType}
}

// IsBlob reports whether the part carries inline data.
func (p Part) IsBlob() bool {
	return len(p.Data) > 0
}

// ImageConfig controls image generation output.
type ImageConfig struct {
	AspectRatio string
	ImageSize   string
}

// Tools selects the grounding tools attached to a request.
type Tools struct {
	Search bool
	Maps   bool
}

// LatLng biases maps retrieval toward a coordinate.
type LatLng struct {
	Latitude  float64
	Longitude float64
}

// Request is a generateContent call in provider-neutral form.
type Request struct {
	System           string
	Parts            []Part
	ResponseMIMEType string
	Schema           *Schema
	Modalities       []Modality
	Voice            string
	Image            *ImageConfig
	Tools            Tools
	Location         *LatLng
}

// SourceKind identifies which grounding tool produced a Source.
type SourceKind string

const (
	SourceWeb     SourceKind = "web"
	SourceMaps    SourceKind = "maps"
	SourceContext SourceKind = "context"
)

// Source is a grounding citation attached to a candidate.
type Source struct {
	Kind    SourceKind `json:"kind"`
	URI     string     `json:"uri,omitempty"`
	Title   string     `json:"title,omitempty"`
	Domain  string     `json:"domain,omitempty"`
	PlaceID string     `json:"place_id,omitempty"`
	Text    string     `json:"text,omitempty"`
}

// Candidate is one generated alternative.
type Candidate struct {
	Parts   []Part
	Sources []Source
}

// Response is a normalised generateContent response.
type Response struct {
	Candidates []Candidate
}

// First returns the first candidate, if any.
func (r *Response) First() (Candidate, bool) {
	if r == nil || len(r.Candidates) == 0 {
		return Candidate{}, false
	}
	return r.Candidates[0], true
}

// Text concatenates the text parts of the first candidate.
func (r *Response) Text() string {
	c, ok := r.First()
	if !ok {
		return ""
	}
	var sb strings.Builder
	for _, p := range c.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// FirstBlob returns the first inline data part of the first candidate.
func (r *Response) FirstBlob() (Part, bool) {
	c, ok := r.First()
	if !ok {
		return Part{}, false
	}
	for _, p := range c.Parts {
		if p.IsBlob() {
			return p, true
		}
	}
	return Part{}, false
}

// Sources returns the grounding citations of the first candidate. The
// result is never nil.
func (r *Response) Sources() []Source {
	c, ok := r.First()
	if !ok || c.Sources == nil {
		return []Source{}
	}
	return c.Sources
}

// VideoRequest is a video generation submission.
type VideoRequest struct {
	Prompt         string
	Image          []byte
	MIMEType       string
	NumberOfVideos int
	Resolution     string
	AspectRatio    string
}

// VideoOperation is the handle of a long-running video job. It is replaced,
// not mutated, on every poll.
type VideoOperation struct {
	Name      string
	Done      bool
	VideoURIs []string
	Error     string

	raw any
}
