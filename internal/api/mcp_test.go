package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/kingdom/internal/gemini"
	"github.com/kalambet/kingdom/internal/orchestrator"
)

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestNewMCPServer(t *testing.T) {
	if s := NewMCPServer(&fakeGenerator{}, "test"); s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}

func TestMCPTool_Devotional(t *testing.T) {
	gen := &fakeGenerator{devotional: orchestrator.Devotional{Title: "Hope", Scripture: "Jeremiah 29:11"}}
	handler := mcpDevotional(gen)

	result, err := handler(context.Background(), makeCallToolRequest("daily_devotional", map[string]any{"language": "ko"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if gen.gotLang != orchestrator.Korean {
		t.Errorf("language = %q, want ko", gen.gotLang)
	}

	var d orchestrator.Devotional
	if err := json.Unmarshal([]byte(toolText(t, result)), &d); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if d.Title != "Hope" {
		t.Errorf("title = %q", d.Title)
	}
}

func TestMCPTool_Prayer_RequiresRequest(t *testing.T) {
	handler := mcpPrayer(&fakeGenerator{})

	result, err := handler(context.Background(), makeCallToolRequest("prayer_response", map[string]any{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result")
	}
}

func TestMCPTool_Wisdom_FormatsSources(t *testing.T) {
	gen := &fakeGenerator{answer: orchestrator.GroundedAnswer{
		Text: "Faith is the substance of things hoped for.",
		Sources: []gemini.Source{
			{Kind: gemini.SourceWeb, URI: "https://www.biblegateway.com/passage/?search=Hebrews+11", Title: "Hebrews 11"},
			{Kind: gemini.SourceWeb, URI: "https://example.org/faith", Domain: "example.org"},
		},
	}}
	handler := mcpWisdom(gen)

	result, err := handler(context.Background(), makeCallToolRequest("ask_wisdom", map[string]any{
		"query":  "What is faith?",
		"search": false,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gen.gotSearch {
		t.Error("search=false not forwarded")
	}

	text := toolText(t, result)
	for _, want := range []string{
		"Faith is the substance",
		"1. [Hebrews 11](https://www.biblegateway.com/passage/?search=Hebrews+11)",
		"2. [example.org](https://example.org/faith)",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("result missing %q:\n%s", want, text)
		}
	}
}

func TestMCPTool_StudyLocation_OptionalCoordinates(t *testing.T) {
	gen := &fakeGenerator{answer: orchestrator.GroundedAnswer{Text: "Jericho"}}
	handler := mcpStudyLocation(gen)

	_, err := handler(context.Background(), makeCallToolRequest("study_location", map[string]any{
		"location":  "Jericho",
		"latitude":  31.87,
		"longitude": 35.44,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gen.gotLat == nil || *gen.gotLat != 31.87 || gen.gotLng == nil || *gen.gotLng != 35.44 {
		t.Errorf("coordinates = %v, %v", gen.gotLat, gen.gotLng)
	}

	_, err = handler(context.Background(), makeCallToolRequest("study_location", map[string]any{"location": "Jericho"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gen.gotLat != nil || gen.gotLng != nil {
		t.Error("coordinates should be nil when omitted")
	}
}

func TestMCPTool_GenerateImage(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	gen := &fakeGenerator{image: &orchestrator.VisualAsset{
		DataURI:     orchestrator.DataURI("image/png", png),
		Resolution:  "1K",
		AspectRatio: "1:1",
		Model:       "gemini-2.5-flash-image",
		Fallback:    true,
	}}
	handler := mcpGenerateImage(gen)

	result, err := handler(context.Background(), makeCallToolRequest("generate_image", map[string]any{"prompt": "Noah's ark"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatal("unexpected error result")
	}
	img, ok := result.Content[0].(mcp.ImageContent)
	if !ok {
		t.Fatalf("expected ImageContent, got %T", result.Content[0])
	}
	if img.MIMEType != "image/png" || img.Data != base64.StdEncoding.EncodeToString(png) {
		t.Errorf("image content = %+v", img)
	}
	note, ok := result.Content[1].(mcp.TextContent)
	if !ok || !strings.Contains(note.Text, "fallback") {
		t.Errorf("note = %+v", result.Content[1])
	}
}

func TestMCPTool_GenerateImage_Error(t *testing.T) {
	handler := mcpGenerateImage(&fakeGenerator{err: errors.New("quota")})

	result, err := handler(context.Background(), makeCallToolRequest("generate_image", map[string]any{"prompt": "ark"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError || !strings.Contains(toolText(t, result), "quota") {
		t.Errorf("result = %+v", result)
	}
}

func TestMCPTool_Speak(t *testing.T) {
	pcm := []byte{0x10, 0x00, 0x20, 0x00}
	handler := mcpSpeak(&fakeGenerator{speech: pcm})

	result, err := handler(context.Background(), makeCallToolRequest("speak", map[string]any{"text": "Be still"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a, ok := result.Content[0].(mcp.AudioContent)
	if !ok {
		t.Fatalf("expected AudioContent, got %T", result.Content[0])
	}
	wav, err := base64.StdEncoding.DecodeString(a.Data)
	if err != nil {
		t.Fatal(err)
	}
	if a.MIMEType != "audio/wav" || len(wav) != 44+len(pcm) {
		t.Errorf("audio = %s, %d bytes", a.MIMEType, len(wav))
	}
}

func TestMCPTool_Speak_NoAudio(t *testing.T) {
	handler := mcpSpeak(&fakeGenerator{})

	result, err := handler(context.Background(), makeCallToolRequest("speak", map[string]any{"text": "Be still"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("expected error result when no audio was produced")
	}
}

func TestMCPResource_Languages(t *testing.T) {
	contents, err := mcpResourceLanguages(context.Background(), mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: "kingdom://languages"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	var langs []LanguageInfo
	if err := json.Unmarshal([]byte(tc.Text), &langs); err != nil {
		t.Fatal(err)
	}
	if len(langs) != 11 || langs[10].Code != "ee" {
		t.Errorf("languages = %+v", langs)
	}
}
