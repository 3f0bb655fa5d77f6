package gemini

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
	"google.golang.org/genai"
)

const defaultTimeout = 120 * time.Second

// Client talks to the Gemini API through the official SDK.
type Client struct {
	genai *genai.Client
}

// NewClient creates a Gemini API client authenticated with apiKey.
func NewClient(ctx context.Context, apiKey string) (*Client, error) {
	return newClient(ctx, apiKey, "")
}

// NewClientWithBaseURL creates a client pointing at a custom base URL (for testing).
func NewClientWithBaseURL(ctx context.Context, apiKey, baseURL string) (*Client, error) {
	return newClient(ctx, apiKey, strings.TrimRight(baseURL, "/"))
}

func newClient(ctx context.Context, apiKey, baseURL string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	c, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &Client{genai: c}, nil
}

// GenerateContent implements Backend.
func (c *Client) GenerateContent(ctx context.Context, model string, req Request) (*Response, error) {
	contents := []*genai.Content{toGenAIContent(req.Parts)}
	resp, err := c.genai.Models.GenerateContent(ctx, model, contents, toGenAIConfig(req))
	if err != nil {
		return nil, err
	}
	return fromGenAIResponse(resp), nil
}

// GenerateVideos implements Backend.
func (c *Client) GenerateVideos(ctx context.Context, model string, req VideoRequest) (*VideoOperation, error) {
	var image *genai.Image
	if len(req.Image) > 0 {
		image = &genai.Image{ImageBytes: req.Image, MIMEType: req.MIMEType}
	}
	cfg := &genai.GenerateVideosConfig{
		NumberOfVideos: int32(req.NumberOfVideos),
		Resolution:     req.Resolution,
		AspectRatio:    req.AspectRatio,
	}
	op, err := c.genai.Models.GenerateVideos(ctx, model, req.Prompt, image, cfg)
	if err != nil {
		return nil, err
	}
	return fromGenAIOperation(op), nil
}

// VideoOperation implements Backend.
func (c *Client) VideoOperation(ctx context.Context, op *VideoOperation) (*VideoOperation, error) {
	raw, ok := op.raw.(*genai.GenerateVideosOperation)
	if !ok || raw == nil {
		raw = &genai.GenerateVideosOperation{Name: op.Name}
	}
	next, err := c.genai.Operations.GetVideosOperation(ctx, raw, nil)
	if err != nil {
		return nil, err
	}
	return fromGenAIOperation(next), nil
}

// Ping reports whether model is reachable with the configured credential.
func (c *Client) Ping(ctx context.Context, model string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := c.genai.Models.Get(ctx, model, nil); err != nil {
		return fmt.Errorf("fetching model %s: %w", model, err)
	}
	return nil
}

func toGenAIContent(parts []Part) *genai.Content {
	out := make([]*genai.Part, 0, len(parts))
	for _, p := range parts {
		if p.IsBlob() {
			out = append(out, genai.NewPartFromBytes(p.Data, p.MIMEType))
			continue
		}
		out = append(out, genai.NewPartFromText(p.Text))
	}
	return genai.NewContentFromParts(out, genai.RoleUser)
}

func toGenAIConfig(req Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: req.ResponseMIMEType,
		ResponseSchema:   toGenAISchema(req.Schema),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	for _, m := range req.Modalities {
		cfg.ResponseModalities = append(cfg.ResponseModalities, string(m))
	}
	if req.Voice != "" {
		cfg.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: req.Voice},
			},
		}
	}
	if req.Image != nil {
		cfg.ImageConfig = &genai.ImageConfig{
			AspectRatio: req.Image.AspectRatio,
			ImageSize:   req.Image.ImageSize,
		}
	}
	if req.Tools.Maps {
		cfg.Tools = append(cfg.Tools, &genai.Tool{GoogleMaps: &genai.GoogleMaps{}})
	}
	if req.Tools.Search {
		cfg.Tools = append(cfg.Tools, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
	}
	if req.Location != nil {
		cfg.ToolConfig = &genai.ToolConfig{
			RetrievalConfig: &genai.RetrievalConfig{
				LatLng: &genai.LatLng{
					Latitude:  genai.Ptr(req.Location.Latitude),
					Longitude: genai.Ptr(req.Location.Longitude),
				},
			},
		}
	}
	return cfg
}

func toGenAISchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{Required: s.Required}
	switch s.Type {
	case TypeObject:
		out.Type = genai.TypeObject
	default:
		out.Type = genai.TypeString
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGenAISchema(prop)
		}
	}
	return out
}

func fromGenAIResponse(resp *genai.GenerateContentResponse) *Response {
	out := &Response{}
	if resp == nil {
		return out
	}
	for _, cand := range resp.Candidates {
		if cand == nil {
			continue
		}
		var c Candidate
		if cand.Content != nil {
			for _, p := range cand.Content.Parts {
				if p == nil {
					continue
				}
				if p.InlineData != nil && len(p.InlineData.Data) > 0 {
					c.Parts = append(c.Parts, BlobPart(p.InlineData.Data, p.InlineData.MIMEType))
					continue
				}
				if p.Thought || p.Text == "" {
					continue
				}
				c.Parts = append(c.Parts, TextPart(p.Text))
			}
		}
		if gm := cand.GroundingMetadata; gm != nil {
			for _, chunk := range gm.GroundingChunks {
				if src, ok := fromGenAIChunk(chunk); ok {
					c.Sources = append(c.Sources, src)
				}
			}
		}
		out.Candidates = append(out.Candidates, c)
	}
	return out
}

func fromGenAIChunk(chunk *genai.GroundingChunk) (Source, bool) {
	switch {
	case chunk == nil:
		return Source{}, false
	case chunk.Web != nil:
		return Source{
			Kind:   SourceWeb,
			URI:    chunk.Web.URI,
			Title:  chunk.Web.Title,
			Domain: domainOf(chunk.Web.Domain, chunk.Web.URI),
		}, true
	case chunk.Maps != nil:
		return Source{
			Kind:    SourceMaps,
			URI:     chunk.Maps.URI,
			Title:   chunk.Maps.Title,
			PlaceID: chunk.Maps.PlaceID,
			Text:    chunk.Maps.Text,
			Domain:  domainOf("", chunk.Maps.URI),
		}, true
	case chunk.RetrievedContext != nil:
		return Source{
			Kind:   SourceContext,
			URI:    chunk.RetrievedContext.URI,
			Title:  chunk.RetrievedContext.Title,
			Text:   chunk.RetrievedContext.Text,
			Domain: domainOf("", chunk.RetrievedContext.URI),
		}, true
	}
	return Source{}, false
}

// domainOf returns the registrable domain (eTLD+1) of rawURI unless the
// provider already supplied one.
func domainOf(given, rawURI string) string {
	if given != "" {
		return given
	}
	u, err := url.Parse(rawURI)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(u.Hostname())
	if err != nil {
		return u.Hostname()
	}
	return d
}

func fromGenAIOperation(op *genai.GenerateVideosOperation) *VideoOperation {
	if op == nil {
		return &VideoOperation{}
	}
	out := &VideoOperation{Name: op.Name, Done: op.Done, raw: op}
	if len(op.Error) > 0 {
		if msg, ok := op.Error["message"].(string); ok {
			out.Error = msg
		} else {
			out.Error = fmt.Sprintf("%v", op.Error)
		}
	}
	if op.Response != nil {
		for _, v := range op.Response.GeneratedVideos {
			if v != nil && v.Video != nil && v.Video.URI != "" {
				out.VideoURIs = append(out.VideoURIs, v.Video.URI)
			}
		}
	}
	return out
}
