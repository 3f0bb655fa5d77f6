package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/kingdom/internal/audio"
	"github.com/kalambet/kingdom/internal/gemini"
	"github.com/kalambet/kingdom/internal/orchestrator"
)

// NewMCPServer creates an MCP server exposing the orchestrator as tools.
// Version is reported to clients during initialization.
func NewMCPServer(gen Generator, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"kingdom",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("Kingdom: devotionals, prayer, biblical wisdom, places of scripture, sacred art and narration."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("daily_devotional",
			mcp.WithDescription("Generate today's devotional with a title, scripture, message, application and prayer."),
			mcp.WithString("language", mcp.Description("Language code or name (default en)")),
		),
		mcpDevotional(gen),
	)

	s.AddTool(
		mcp.NewTool("prayer_response",
			mcp.WithDescription("Respond to a prayer request with encouragement, a scripture and a prayer."),
			mcp.WithString("request", mcp.Description("What the person is asking prayer for"), mcp.Required()),
			mcp.WithString("language", mcp.Description("Language code or name (default en)")),
		),
		mcpPrayer(gen),
	)

	s.AddTool(
		mcp.NewTool("ask_wisdom",
			mcp.WithDescription("Ask a biblical or theological question. Answers cite their web sources."),
			mcp.WithString("query", mcp.Description("The question"), mcp.Required()),
			mcp.WithBoolean("search", mcp.Description("Ground the answer with web search (default true)")),
		),
		mcpWisdom(gen),
	)

	s.AddTool(
		mcp.NewTool("study_location",
			mcp.WithDescription("Describe the biblical, archaeological and geographical significance of a place."),
			mcp.WithString("location", mcp.Description("Place name, e.g. Capernaum"), mcp.Required()),
			mcp.WithNumber("latitude", mcp.Description("Optional latitude of the user")),
			mcp.WithNumber("longitude", mcp.Description("Optional longitude of the user")),
		),
		mcpStudyLocation(gen),
	)

	s.AddTool(
		mcp.NewTool("generate_image",
			mcp.WithDescription("Generate sacred art from a prompt."),
			mcp.WithString("prompt", mcp.Description("What to depict"), mcp.Required()),
			mcp.WithString("aspect_ratio", mcp.Description("One of "+strings.Join(orchestrator.AspectRatios, ", ")), mcp.Enum(orchestrator.AspectRatios...)),
			mcp.WithString("resolution", mcp.Description("1K, 2K, 4K, 6K or 8K (6K and 8K render at 4K)")),
		),
		mcpGenerateImage(gen),
	)

	s.AddTool(
		mcp.NewTool("speak",
			mcp.WithDescription("Read text aloud in a calm voice. Returns WAV audio."),
			mcp.WithString("text", mcp.Description("Text to narrate"), mcp.Required()),
		),
		mcpSpeak(gen),
	)

	s.AddResource(
		mcp.NewResource(
			"kingdom://languages",
			"Supported Languages",
			mcp.WithResourceDescription("Language codes accepted by daily_devotional and prayer_response"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceLanguages,
	)

	return s
}

func mcpDevotional(gen Generator) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		lang := orchestrator.ParseLanguage(req.GetString("language", ""))
		d, err := gen.GenerateDevotional(ctx, lang)
		if err != nil {
			return mcpError(fmt.Sprintf("devotional failed: %v", err)), nil
		}
		return mcpJSON(d)
	}
}

func mcpPrayer(gen Generator) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		request, err := req.RequireString("request")
		if err != nil || strings.TrimSpace(request) == "" {
			return mcpError("request is required"), nil
		}
		lang := orchestrator.ParseLanguage(req.GetString("language", ""))

		p, err := gen.GeneratePrayerResponse(ctx, request, lang)
		if err != nil {
			return mcpError(fmt.Sprintf("prayer response failed: %v", err)), nil
		}
		return mcpJSON(p)
	}
}

func mcpWisdom(gen Generator) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil || strings.TrimSpace(query) == "" {
			return mcpError("query is required"), nil
		}

		a, err := gen.AskWisdomAssistant(ctx, query, req.GetBool("search", true))
		if err != nil {
			return mcpError(fmt.Sprintf("wisdom failed: %v", err)), nil
		}
		return mcpText(formatAnswer(a)), nil
	}
}

func mcpStudyLocation(gen Generator) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		location, err := req.RequireString("location")
		if err != nil || strings.TrimSpace(location) == "" {
			return mcpError("location is required"), nil
		}

		var lat, lng *float64
		args := req.GetArguments()
		if _, ok := args["latitude"]; ok {
			v := req.GetFloat("latitude", 0)
			lat = &v
		}
		if _, ok := args["longitude"]; ok {
			v := req.GetFloat("longitude", 0)
			lng = &v
		}

		a, err := gen.SearchMapGrounding(ctx, location, lat, lng)
		if err != nil {
			return mcpError(fmt.Sprintf("location study failed: %v", err)), nil
		}
		return mcpText(formatAnswer(a)), nil
	}
}

func mcpGenerateImage(gen Generator) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		prompt, err := req.RequireString("prompt")
		if err != nil || strings.TrimSpace(prompt) == "" {
			return mcpError("prompt is required"), nil
		}

		asset, err := gen.GenerateHighQualityImage(ctx, prompt, req.GetString("aspect_ratio", ""), req.GetString("resolution", ""))
		if err != nil {
			return mcpError(fmt.Sprintf("image generation failed: %v", err)), nil
		}
		if asset == nil {
			return mcpError("the model returned no image"), nil
		}

		data, mimeType, err := orchestrator.SplitDataURI(asset.DataURI)
		if err != nil {
			return mcpError(fmt.Sprintf("decoding image: %v", err)), nil
		}
		note := fmt.Sprintf("%s image from %s at %s", asset.AspectRatio, asset.Model, asset.Resolution)
		if asset.Fallback {
			note += " (fallback model)"
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewImageContent(base64.StdEncoding.EncodeToString(data), mimeType),
				mcp.NewTextContent(note),
			},
		}, nil
	}
}

func mcpSpeak(gen Generator) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil || strings.TrimSpace(text) == "" {
			return mcpError("text is required"), nil
		}

		pcm, err := gen.TextToSpeech(ctx, text)
		if err != nil {
			return mcpError(fmt.Sprintf("speech failed: %v", err)), nil
		}
		if len(pcm) == 0 {
			return mcpError("the model returned no audio"), nil
		}

		wav := audio.WAV(pcm, audio.SpeechSampleRate, 1)
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewAudioContent(base64.StdEncoding.EncodeToString(wav), "audio/wav"),
			},
		}, nil
	}
}

func mcpResourceLanguages(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	b, err := json.Marshal(languageList())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal languages: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}

// formatAnswer renders a grounded answer as markdown with a numbered source
// list.
func formatAnswer(a orchestrator.GroundedAnswer) string {
	var b strings.Builder
	b.WriteString(a.Text)
	if len(a.Sources) == 0 {
		return b.String()
	}
	b.WriteString("\n\nSources:\n")
	for i, s := range a.Sources {
		fmt.Fprintf(&b, "%d. %s\n", i+1, sourceLabel(s))
	}
	return strings.TrimRight(b.String(), "\n")
}

func sourceLabel(s gemini.Source) string {
	title := s.Title
	if title == "" {
		title = s.Domain
	}
	switch {
	case title != "" && s.URI != "":
		return fmt.Sprintf("[%s](%s)", title, s.URI)
	case s.URI != "":
		return s.URI
	case title != "":
		return title
	}
	return string(s.Kind)
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
