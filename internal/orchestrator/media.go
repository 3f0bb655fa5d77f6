package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/kalambet/kingdom/internal/gemini"
)

// Resolution tiers accepted by GenerateHighQualityImage.
const (
	Res1K = "1K"
	Res2K = "2K"
	Res4K = "4K"
	Res6K = "6K"
	Res8K = "8K"
)

// AspectRatios lists the ratios accepted by GenerateHighQualityImage.
var AspectRatios = []string{"1:1", "4:3", "3:4", "16:9", "9:16"}

const (
	videoResolution  = "720p"
	videoAspectRatio = "16:9"
)

// VisualAsset is a generated image or video. Exactly one of DataURI and
// VideoURI is set.
type VisualAsset struct {
	DataURI     string `json:"data_uri,omitempty"`
	VideoURI    string `json:"video_uri,omitempty"`
	Resolution  string `json:"resolution"`
	SentTier    string `json:"sent_tier,omitempty"`
	AspectRatio string `json:"aspect_ratio"`
	Model       string `json:"model"`
	Fallback    bool   `json:"fallback,omitempty"`
}

// ClampResolution maps a requested tier onto the tiers the primary image
// model accepts. 6K and 8K are clamped to 4K; empty means 1K.
func ClampResolution(tier string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(tier)) {
	case "":
		return Res1K, nil
	case Res1K:
		return Res1K, nil
	case Res2K:
		return Res2K, nil
	case Res4K, Res6K, Res8K:
		return Res4K, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidResolution, tier)
}

func validAspectRatio(ratio string) (string, error) {
	if ratio == "" {
		return AspectRatios[0], nil
	}
	for _, r := range AspectRatios {
		if r == ratio {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAspectRatio, ratio)
}

// TextToSpeech synthesises text with the configured voice and returns raw
// 16-bit PCM. A response without audio yields nil, nil.
func (o *Orchestrator) TextToSpeech(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("speech text: %w", ErrEmptyInput)
	}

	model := o.cfg.SpeechModel
	resp, err := o.generate(ctx, "text to speech", model, gemini.Request{
		Parts:      []gemini.Part{gemini.TextPart(speechPrefix + text)},
		Modalities: []gemini.Modality{gemini.ModalityAudio},
		Voice:      o.cfg.Voice,
	})
	if err != nil {
		return nil, err
	}

	c, ok := resp.First()
	if !ok || len(c.Parts) == 0 || !c.Parts[0].IsBlob() {
		return nil, nil
	}
	return c.Parts[0].Data, nil
}

// GenerateHighQualityImage renders prompt with the primary image model. If
// the primary call fails, a single attempt is made with the fallback model;
// when that also fails (or returns no image) the primary error is returned.
// A successful primary call without an image part yields nil, nil.
func (o *Orchestrator) GenerateHighQualityImage(ctx context.Context, prompt, aspectRatio, resolution string) (*VisualAsset, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("image prompt: %w", ErrEmptyInput)
	}
	tier, err := ClampResolution(resolution)
	if err != nil {
		return nil, err
	}
	ratio, err := validAspectRatio(aspectRatio)
	if err != nil {
		return nil, err
	}
	if resolution == "" {
		resolution = Res1K
	}

	primary := o.cfg.ImageModel
	resp, primaryErr := o.generate(ctx, "generate image", primary, gemini.Request{
		Parts: []gemini.Part{gemini.TextPart(prompt + qualityBoost)},
		Image: &gemini.ImageConfig{AspectRatio: ratio, ImageSize: tier},
		Tools: gemini.Tools{Search: true},
	})
	if primaryErr == nil {
		blob, ok := resp.FirstBlob()
		if !ok {
			return nil, nil
		}
		return &VisualAsset{
			DataURI:     DataURI(blob.MIMEType, blob.Data),
			Resolution:  resolution,
			SentTier:    tier,
			AspectRatio: ratio,
			Model:       primary,
		}, nil
	}

	fallback := o.cfg.FallbackImageModel
	o.logger.Warn("primary image model failed, falling back", "model", primary, "fallback", fallback, "error", primaryErr)

	fresp, err := o.generate(ctx, "generate fallback image", fallback, gemini.Request{
		Parts: []gemini.Part{gemini.TextPart(prompt + fallbackSuffix)},
	})
	if err != nil {
		o.logger.Error("fallback image model failed", "model", fallback, "error", err)
		return nil, primaryErr
	}
	blob, ok := fresp.FirstBlob()
	if !ok {
		o.logger.Error("fallback image model returned no image", "model", fallback)
		return nil, primaryErr
	}
	return &VisualAsset{
		DataURI:     DataURI(blob.MIMEType, blob.Data),
		Resolution:  resolution,
		AspectRatio: ratio,
		Model:       fallback,
		Fallback:    true,
	}, nil
}

// CheckVideoKey returns ErrKeyResetRequired unless a credential is selected.
func (o *Orchestrator) CheckVideoKey(ctx context.Context) error {
	ok, err := o.keys.HasSelectedKey(ctx)
	if err != nil {
		return fmt.Errorf("checking key selection: %w", err)
	}
	if !ok {
		return ErrKeyResetRequired
	}
	return nil
}

// GenerateVeoVideo animates sourceImage (raw base64 or a data URI) according
// to prompt. It polls the operation every PollInterval, at most MaxPolls
// times, and stops early when ctx is done. A finished operation without a
// video yields nil, nil.
func (o *Orchestrator) GenerateVeoVideo(ctx context.Context, prompt, sourceImage string) (*VisualAsset, error) {
	if err := o.CheckVideoKey(ctx); err != nil {
		return nil, err
	}

	image, mimeType, err := SplitDataURI(sourceImage)
	if err != nil {
		return nil, fmt.Errorf("source image: %w", err)
	}

	model := o.cfg.VideoModel
	op, err := o.backend.GenerateVideos(ctx, model, gemini.VideoRequest{
		Prompt:         prompt,
		Image:          image,
		MIMEType:       mimeType,
		NumberOfVideos: 1,
		Resolution:     videoResolution,
		AspectRatio:    videoAspectRatio,
	})
	if err != nil {
		return nil, &GenerationError{Op: "submit video", Model: model, Err: err}
	}
	if op == nil {
		return nil, &GenerationError{Op: "submit video", Model: model, Err: errors.New("no operation returned")}
	}
	o.logger.Debug("video operation submitted", "operation", op.Name)

	for polls := 0; !op.Done; polls++ {
		if polls >= o.cfg.MaxPolls {
			return nil, fmt.Errorf("%w: operation %s still pending after %d polls", ErrVideoTimeout, op.Name, polls)
		}
		if err := o.wait(ctx, o.cfg.PollInterval); err != nil {
			return nil, err
		}
		next, err := o.backend.VideoOperation(ctx, op)
		if err != nil {
			return nil, &GenerationError{Op: "poll video", Model: model, Err: err}
		}
		if next == nil {
			return nil, &GenerationError{Op: "poll video", Model: model, Err: errors.New("no operation returned")}
		}
		op = next
	}

	if op.Error != "" {
		return nil, &GenerationError{Op: "generate video", Model: model, Err: errors.New(op.Error)}
	}
	if len(op.VideoURIs) == 0 {
		return nil, nil
	}
	return &VisualAsset{
		VideoURI:    withKey(op.VideoURIs[0], o.cfg.APIKey),
		Resolution:  videoResolution,
		AspectRatio: videoAspectRatio,
		Model:       model,
	}, nil
}

// withKey appends the credential as a "key" query parameter so the link can
// be fetched without further headers.
func withKey(uri, key string) string {
	if key == "" {
		return uri
	}
	u, err := url.Parse(uri)
	if err != nil {
		sep := "?"
		if strings.Contains(uri, "?") {
			sep = "&"
		}
		return uri + sep + "key=" + url.QueryEscape(key)
	}
	q := u.Query()
	q.Set("key", key)
	u.RawQuery = q.Encode()
	return u.String()
}

// WithoutKey removes the "key" query parameter so a video link can be
// stored without the credential.
func WithoutKey(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || !u.Query().Has("key") {
		return uri
	}
	q := u.Query()
	q.Del("key")
	u.RawQuery = q.Encode()
	return u.String()
}

// VideoLink attaches the configured credential to a stored video URI.
func (o *Orchestrator) VideoLink(uri string) string {
	if uri == "" {
		return ""
	}
	return withKey(uri, o.cfg.APIKey)
}
