package orchestrator

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kalambet/kingdom/internal/gemini"
)

func TestAskWisdomAssistant_WithSearch(t *testing.T) {
	sources := []gemini.Source{
		{Kind: gemini.SourceWeb, URI: "https://www.biblegateway.com/passage/?search=Heb+11", Title: "Hebrews 11", Domain: "biblegateway.com"},
		{Kind: gemini.SourceWeb, URI: "https://en.wikipedia.org/wiki/Epistle_to_the_Hebrews", Title: "Epistle to the Hebrews", Domain: "wikipedia.org"},
	}
	b := &mockBackend{contentFn: func(string, gemini.Request) (*gemini.Response, error) {
		return &gemini.Response{Candidates: []gemini.Candidate{{
			Parts:   []gemini.Part{gemini.TextPart("Faith is "), gemini.TextPart("the assurance of things hoped for.")},
			Sources: sources,
		}}}, nil
	}}
	o := newTestOrchestrator(b)

	got, err := o.AskWisdomAssistant(t.Context(), "Explain Hebrews 11", true)
	if err != nil {
		t.Fatalf("AskWisdomAssistant: %v", err)
	}
	want := GroundedAnswer{Text: "Faith is the assurance of things hoped for.", Sources: sources}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("answer mismatch (-want +got):\n%s", diff)
	}

	req := b.contentCalls[0].req
	if req.System != wisdomInstruction {
		t.Error("system instruction not set")
	}
	if !req.Tools.Search || req.Tools.Maps {
		t.Errorf("tools = %+v, want search only", req.Tools)
	}
}

func TestAskWisdomAssistant_NoSearchEmptySources(t *testing.T) {
	b := &mockBackend{contentFn: func(string, gemini.Request) (*gemini.Response, error) {
		return textResponse("Grace is unmerited favour."), nil
	}}
	o := newTestOrchestrator(b)

	got, err := o.AskWisdomAssistant(t.Context(), "What is grace?", false)
	if err != nil {
		t.Fatalf("AskWisdomAssistant: %v", err)
	}
	if got.Sources == nil || len(got.Sources) != 0 {
		t.Errorf("Sources = %#v, want empty non-nil slice", got.Sources)
	}
	if b.contentCalls[0].req.Tools.Search {
		t.Error("search tool attached when useSearch is false")
	}
}

func TestAskWisdomAssistant_EmptyQuery(t *testing.T) {
	o := newTestOrchestrator(&mockBackend{})
	if _, err := o.AskWisdomAssistant(t.Context(), "", true); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("err = %v, want ErrEmptyInput", err)
	}
}

func TestSearchMapGrounding_WithLocation(t *testing.T) {
	b := &mockBackend{contentFn: func(string, gemini.Request) (*gemini.Response, error) {
		return &gemini.Response{Candidates: []gemini.Candidate{{
			Parts:   []gemini.Part{gemini.TextPart("Capernaum lies on the northern shore.")},
			Sources: []gemini.Source{{Kind: gemini.SourceMaps, URI: "https://maps.google.com/?cid=1", Title: "Capernaum", PlaceID: "places/abc"}},
		}}}, nil
	}}
	o := newTestOrchestrator(b)

	lat, lng := 32.8803, 35.5733
	got, err := o.SearchMapGrounding(t.Context(), "Capernaum", &lat, &lng)
	if err != nil {
		t.Fatalf("SearchMapGrounding: %v", err)
	}
	if len(got.Sources) != 1 || got.Sources[0].Kind != gemini.SourceMaps {
		t.Errorf("Sources = %+v", got.Sources)
	}

	call := b.contentCalls[0]
	if call.model != "gemini-2.5-flash" {
		t.Errorf("model = %q, want maps model", call.model)
	}
	if !call.req.Tools.Maps || !call.req.Tools.Search {
		t.Errorf("tools = %+v, want maps and search", call.req.Tools)
	}
	if diff := cmp.Diff(&gemini.LatLng{Latitude: lat, Longitude: lng}, call.req.Location); diff != "" {
		t.Errorf("location (-want +got):\n%s", diff)
	}
	if !strings.Contains(call.req.Parts[0].Text, "Capernaum") {
		t.Errorf("prompt = %q", call.req.Parts[0].Text)
	}
}

func TestSearchMapGrounding_PartialLocationIgnored(t *testing.T) {
	b := &mockBackend{contentFn: func(string, gemini.Request) (*gemini.Response, error) {
		return textResponse("Jerusalem."), nil
	}}
	o := newTestOrchestrator(b)

	lat := 31.77
	if _, err := o.SearchMapGrounding(t.Context(), "Jerusalem", &lat, nil); err != nil {
		t.Fatalf("SearchMapGrounding: %v", err)
	}
	if b.contentCalls[0].req.Location != nil {
		t.Errorf("Location = %+v, want nil when only latitude is set", b.contentCalls[0].req.Location)
	}
}

func TestAnalyzeVisual(t *testing.T) {
	b := &mockBackend{contentFn: func(string, gemini.Request) (*gemini.Response, error) {
		return textResponse("A first-century oil lamp."), nil
	}}
	o := newTestOrchestrator(b)

	got, err := o.AnalyzeVisual(t.Context(), "What is this?", "data:image/jpeg;base64,aGVsbG8=", "")
	if err != nil {
		t.Fatalf("AnalyzeVisual: %v", err)
	}
	if got != "A first-century oil lamp." {
		t.Errorf("text = %q", got)
	}

	parts := b.contentCalls[0].req.Parts
	want := []gemini.Part{gemini.BlobPart([]byte("hello"), "image/jpeg"), gemini.TextPart("What is this?")}
	if diff := cmp.Diff(want, parts); diff != "" {
		t.Errorf("parts (-want +got):\n%s", diff)
	}
}

func TestAnalyzeVisual_ExplicitMIME(t *testing.T) {
	b := &mockBackend{contentFn: func(string, gemini.Request) (*gemini.Response, error) {
		return textResponse("ok"), nil
	}}
	o := newTestOrchestrator(b)

	if _, err := o.AnalyzeVisual(t.Context(), "Summarise", "aGVsbG8=", "application/pdf"); err != nil {
		t.Fatalf("AnalyzeVisual: %v", err)
	}
	if got := b.contentCalls[0].req.Parts[0].MIMEType; got != "application/pdf" {
		t.Errorf("mime = %q, want application/pdf", got)
	}
}

func TestStudyDocument(t *testing.T) {
	pdf, err := os.ReadFile("../document/testdata/sermon.pdf")
	if err != nil {
		t.Fatalf("reading fixture: %v", err)
	}
	b := &mockBackend{contentFn: func(string, gemini.Request) (*gemini.Response, error) {
		return textResponse("Matthew 5:9 teaches..."), nil
	}}
	o := newTestOrchestrator(b)

	got, err := o.StudyDocument(t.Context(), "Which beatitude is this?", pdf)
	if err != nil {
		t.Fatalf("StudyDocument: %v", err)
	}
	if got.Text != "Matthew 5:9 teaches..." {
		t.Errorf("text = %q", got.Text)
	}

	req := b.contentCalls[0].req
	if req.Tools.Search {
		t.Error("document study must not use web search")
	}
	prompt := req.Parts[0].Text
	if !strings.Contains(prompt, "Blessed are the peacemakers") || !strings.Contains(prompt, "Which beatitude is this?") {
		t.Errorf("prompt = %q", prompt)
	}
}

func TestStudyDocument_NotPDF(t *testing.T) {
	b := &mockBackend{}
	o := newTestOrchestrator(b)

	if _, err := o.StudyDocument(t.Context(), "p", []byte("plain text")); err == nil {
		t.Error("expected error for non-PDF input")
	}
	if b.networkCalls() != 0 {
		t.Errorf("network calls = %d, want 0", b.networkCalls())
	}
}
