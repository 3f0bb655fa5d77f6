package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/kingdom/internal/api"
	"github.com/kalambet/kingdom/internal/config"
	"github.com/kalambet/kingdom/internal/orchestrator"
	"github.com/kalambet/kingdom/internal/storage"
)

// --- languages ---

var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "List the languages devotionals and prayers can be written in",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/v1/languages")
		if err != nil {
			return err
		}
		var raw json.RawMessage
		if err := decodeJSON(resp, &raw); err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), raw, func(w io.Writer) error {
			var langs []api.LanguageInfo
			if err := json.Unmarshal(raw, &langs); err != nil {
				return err
			}
			for _, l := range langs {
				fmt.Fprintf(w, "%s  %s\n", colorize(colorCyan, l.Code), l.Name)
			}
			return nil
		})
	},
}

// --- devotional ---

var devotionalCmd = &cobra.Command{
	Use:   "devotional",
	Short: "Generate today's devotional",
	RunE: func(cmd *cobra.Command, args []string) error {
		lang, _ := cmd.Flags().GetString("lang")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/v1/devotionals", map[string]string{"language": lang})
		if err != nil {
			return err
		}
		var raw json.RawMessage
		if err := decodeJSON(resp, &raw); err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), raw, func(w io.Writer) error {
			var d orchestrator.Devotional
			if err := json.Unmarshal(raw, &d); err != nil {
				return err
			}
			printDevotional(w, d)
			return nil
		})
	},
}

func printDevotional(w io.Writer, d orchestrator.Devotional) {
	if d.Completeness == orchestrator.PartialOrEmpty {
		printWarning("the model returned an incomplete devotional")
	}
	fmt.Fprintln(w, colorize(colorBold, d.Title))
	fmt.Fprintln(w, colorize(colorCyan, d.Scripture))
	fmt.Fprintln(w)
	fmt.Fprintln(w, d.Content)
	if d.Application != "" {
		fmt.Fprintf(w, "\n%s %s\n", colorize(colorBold, "Application:"), d.Application)
	}
	if d.Prayer != "" {
		fmt.Fprintf(w, "\n%s %s\n", colorize(colorBold, "Prayer:"), d.Prayer)
	}
}

// --- pray ---

var prayCmd = &cobra.Command{
	Use:   "pray <request>",
	Short: "Receive a response to a prayer request",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lang, _ := cmd.Flags().GetString("lang")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/v1/prayers", map[string]string{
			"request":  strings.Join(args, " "),
			"language": lang,
		})
		if err != nil {
			return err
		}
		var raw json.RawMessage
		if err := decodeJSON(resp, &raw); err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), raw, func(w io.Writer) error {
			var p orchestrator.PrayerResponse
			if err := json.Unmarshal(raw, &p); err != nil {
				return err
			}
			if p.Completeness == orchestrator.PartialOrEmpty {
				printWarning("the model returned an incomplete response")
			}
			fmt.Fprintln(w, p.Message)
			if p.Scripture.Reference != "" {
				fmt.Fprintf(w, "\n%s\n%s\n", colorize(colorCyan, p.Scripture.Reference), p.Scripture.Text)
			}
			if p.Prayer != "" {
				fmt.Fprintf(w, "\n%s %s\n", colorize(colorBold, "Prayer:"), p.Prayer)
			}
			return nil
		})
	},
}

func init() {
	devotionalCmd.Flags().String("lang", "en", "language code or name")
	prayCmd.Flags().String("lang", "en", "language code or name")
}

// --- ask / map ---

type answer struct {
	Text    string `json:"text"`
	Sources []struct {
		Kind   string `json:"kind"`
		URI    string `json:"uri"`
		Title  string `json:"title"`
		Domain string `json:"domain"`
	} `json:"sources"`
}

// printAnswer renders the answer as markdown followed by its sources.
func printAnswer(w io.Writer, raw json.RawMessage) error {
	var a answer
	if err := json.Unmarshal(raw, &a); err != nil {
		return err
	}
	fmt.Fprint(w, renderMarkdown(a.Text))
	if len(a.Sources) == 0 {
		fmt.Fprintln(w)
		return nil
	}
	fmt.Fprintf(w, "\n%s\n", colorize(colorBold, "Sources"))
	for i, s := range a.Sources {
		label := s.Title
		if label == "" {
			label = s.Domain
		}
		fmt.Fprintf(w, "  %d. %s %s\n", i+1, label, colorize(colorCyan, s.URI))
	}
	return nil
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the wisdom assistant a biblical or theological question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		noSearch, _ := cmd.Flags().GetBool("no-search")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/v1/wisdom", map[string]any{
			"query":  strings.Join(args, " "),
			"search": !noSearch,
		})
		if err != nil {
			return err
		}
		var raw json.RawMessage
		if err := decodeJSON(resp, &raw); err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), raw, func(w io.Writer) error {
			return printAnswer(w, raw)
		})
	},
}

var mapCmd = &cobra.Command{
	Use:   "map <location>",
	Short: "Explore the biblical significance of a place",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]any{"location": strings.Join(args, " ")}
		// Coordinates are only sent as a pair.
		if cmd.Flags().Changed("lat") && cmd.Flags().Changed("lng") {
			lat, _ := cmd.Flags().GetFloat64("lat")
			lng, _ := cmd.Flags().GetFloat64("lng")
			body["latitude"] = lat
			body["longitude"] = lng
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/v1/maps", body)
		if err != nil {
			return err
		}
		var raw json.RawMessage
		if err := decodeJSON(resp, &raw); err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), raw, func(w io.Writer) error {
			return printAnswer(w, raw)
		})
	},
}

func init() {
	askCmd.Flags().Bool("no-search", false, "answer without web search grounding")
	mapCmd.Flags().Float64("lat", 0, "your latitude")
	mapCmd.Flags().Float64("lng", 0, "your longitude")
}

// --- image ---

var imageCmd = &cobra.Command{
	Use:   "image <prompt>",
	Short: "Generate sacred art",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ratio, _ := cmd.Flags().GetString("ratio")
		resolution, _ := cmd.Flags().GetString("resolution")
		out, _ := cmd.Flags().GetString("out")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/v1/images", map[string]string{
			"prompt":       strings.Join(args, " "),
			"aspect_ratio": ratio,
			"resolution":   resolution,
		})
		if err != nil {
			return err
		}
		raw, err := readBody(resp)
		if err != nil {
			return err
		}

		var asset orchestrator.VisualAsset
		if err := json.Unmarshal(raw, &asset); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		if asset.Fallback {
			printWarning("primary model failed; rendered with %s", asset.Model)
		}
		if out != "" {
			data, _, err := orchestrator.SplitDataURI(asset.DataURI)
			if err != nil {
				return fmt.Errorf("decoding image: %w", err)
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("writing image: %w", err)
			}
			printSuccess("Saved %s (%s, %s) to %s", asset.Resolution, asset.AspectRatio, asset.Model, out)
			return nil
		}
		return emit(cmd.OutOrStdout(), raw, func(w io.Writer) error {
			fmt.Fprintln(w, asset.DataURI)
			return nil
		})
	},
}

func init() {
	imageCmd.Flags().String("ratio", "1:1", "aspect ratio: "+strings.Join(orchestrator.AspectRatios, ", "))
	imageCmd.Flags().String("resolution", "1K", "1K, 2K, 4K, 6K or 8K")
	imageCmd.Flags().StringP("out", "o", "", "write the image to this file instead of printing a data URI")
}

// --- video ---

var videoCmd = &cobra.Command{
	Use:   "video",
	Short: "Animate an image into a short video",
}

// fileDataURI reads path and returns it as a data URI, sniffing the MIME
// type from the content.
func fileDataURI(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	mimeType := http.DetectContentType(data)
	if mimeType == "application/octet-stream" && strings.EqualFold(filepath.Ext(path), ".pdf") {
		mimeType = "application/pdf"
	}
	mimeType, _, _ = strings.Cut(mimeType, ";")
	return orchestrator.DataURI(mimeType, data), nil
}

var videoSubmitCmd = &cobra.Command{
	Use:   "submit <prompt>",
	Short: "Queue a video generation from a source image",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		imagePath, _ := cmd.Flags().GetString("image")
		if imagePath == "" {
			return errors.New("--image is required")
		}
		image, err := fileDataURI(imagePath)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/v1/videos", map[string]string{
			"prompt":       strings.Join(args, " "),
			"source_image": image,
		})
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			var ae *apiError
			if errors.As(err, &ae) && ae.Type == "key_reset_required" {
				return fmt.Errorf("video generation needs an API key with Veo access: run `kingdom config set-secret gemini.api_key <key>` and restart the server")
			}
			return err
		}

		printSuccess("Queued video %s", result["id"])
		fmt.Fprintln(cmd.OutOrStdout(), result["id"])
		return nil
	},
}

func getVideo(ctx context.Context, client *apiClient, id string) (api.VideoJob, json.RawMessage, error) {
	resp, err := client.get(ctx, "/v1/videos/"+url.PathEscape(id))
	if err != nil {
		return api.VideoJob{}, nil, err
	}
	var raw json.RawMessage
	if err := decodeJSON(resp, &raw); err != nil {
		return api.VideoJob{}, nil, err
	}
	var job api.VideoJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return api.VideoJob{}, nil, fmt.Errorf("decoding job: %w", err)
	}
	return job, raw, nil
}

func printVideoJob(w io.Writer, job api.VideoJob) {
	status := job.Status
	switch job.Status {
	case storage.JobCompleted:
		status = colorize(colorGreen, status)
	case storage.JobFailed:
		status = colorize(colorRed, status)
	default:
		status = colorize(colorYellow, status)
	}
	fmt.Fprintf(w, "%s  %s  %s\n", colorize(colorCyan, job.ID), status, job.CreatedAt.Format(time.RFC3339))
	if job.Prompt != "" {
		fmt.Fprintf(w, "  %s\n", job.Prompt)
	}
	if job.VideoURI != "" {
		fmt.Fprintf(w, "  %s\n", job.VideoURI)
	}
	if job.NoVideo {
		fmt.Fprintf(w, "  %s\n", colorize(colorYellow, "finished without a video"))
	}
	if job.Error != "" {
		fmt.Fprintf(w, "  %s %s\n", colorize(colorRed, "error:"), job.Error)
	}
}

var videoStatusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Show a video job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		job, raw, err := getVideo(cmd.Context(), client, args[0])
		if err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), raw, func(w io.Writer) error {
			printVideoJob(w, job)
			return nil
		})
	},
}

var videoWaitCmd = &cobra.Command{
	Use:   "wait <id>",
	Short: "Wait for a video job to finish and print its URI",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, _ := cmd.Flags().GetDuration("interval")
		if interval <= 0 {
			interval = 5 * time.Second
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		printStep("Waiting for video %s", args[0])
		for {
			job, raw, err := getVideo(ctx, client, args[0])
			if err != nil {
				return err
			}
			switch job.Status {
			case storage.JobCompleted:
				if job.VideoURI == "" {
					return errNoContent
				}
				return emit(cmd.OutOrStdout(), raw, func(w io.Writer) error {
					fmt.Fprintln(w, job.VideoURI)
					return nil
				})
			case storage.JobFailed:
				return fmt.Errorf("video %s failed: %s", job.ID, job.Error)
			}

			t := time.NewTimer(interval)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
	},
}

var videoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent video jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), fmt.Sprintf("/v1/videos?limit=%d", limit))
		if err != nil {
			return err
		}
		var raw json.RawMessage
		if err := decodeJSON(resp, &raw); err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), raw, func(w io.Writer) error {
			var list []api.VideoJob
			if err := json.Unmarshal(raw, &list); err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(w, "No video jobs found.")
				return nil
			}
			for _, job := range list {
				printVideoJob(w, job)
			}
			return nil
		})
	},
}

func init() {
	videoSubmitCmd.Flags().String("image", "", "source image file")
	videoWaitCmd.Flags().Duration("interval", 5*time.Second, "how often to check the job")
	videoListCmd.Flags().Int("limit", 20, "maximum number of jobs to list")
	videoCmd.AddCommand(videoSubmitCmd, videoStatusCmd, videoWaitCmd, videoListCmd)
}

// --- speak ---

var speakCmd = &cobra.Command{
	Use:   "speak <text>",
	Short: "Narrate text to a WAV file",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			return errors.New("--out is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/v1/speech", map[string]string{"text": strings.Join(args, " ")})
		if err != nil {
			return err
		}
		wav, err := readBody(resp)
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, wav, 0o644); err != nil {
			return fmt.Errorf("writing audio: %w", err)
		}
		printSuccess("Saved narration to %s", out)
		return nil
	},
}

func init() {
	speakCmd.Flags().StringP("out", "o", "", "output WAV file")
}

// --- analyze ---

var analyzeCmd = &cobra.Command{
	Use:   "analyze [prompt]",
	Short: "Ask about an image or study a PDF document",
	Long: `Ask about an image or study a PDF document.

Examples:
  kingdom analyze --file ./fresco.jpg "Which scene is depicted?"
  kingdom analyze --file ./sermon.pdf`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		mimeType, _ := cmd.Flags().GetString("mime")
		if file == "" {
			return errors.New("--file is required")
		}
		data, err := fileDataURI(file)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/v1/analyze", map[string]string{
			"prompt":    strings.Join(args, " "),
			"file":      data,
			"mime_type": mimeType,
		})
		if err != nil {
			return err
		}
		var raw json.RawMessage
		if err := decodeJSON(resp, &raw); err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), raw, func(w io.Writer) error {
			return printAnswer(w, raw)
		})
	},
}

func init() {
	analyzeCmd.Flags().String("file", "", "image or PDF to analyze")
	analyzeCmd.Flags().String("mime", "", "override the detected MIME type")
}

// --- contact ---

var contactCmd = &cobra.Command{
	Use:   "contact",
	Short: "Send a message through the contact form relay",
	Long: `Send a message through the contact form relay.

Examples:
  kingdom contact --field name=Ruth --field email=ruth@example.com --field message="Thank you"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fields, _ := cmd.Flags().GetStringToString("field")
		if len(fields) == 0 {
			return errors.New("at least one --field is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/v1/contact", map[string]any{"fields": fields})
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Message sent")
		return nil
	},
}

func init() {
	contactCmd.Flags().StringToString("field", nil, "form field as key=value (repeatable)")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadOptional()
		keys := config.ShowAll(cfg)

		raw, err := json.Marshal(keys)
		if err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), raw, func(w io.Writer) error {
			for _, k := range keys {
				fmt.Fprintf(w, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
			}
			return nil
		})
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configSetSecretCmd = &cobra.Command{
	Use:   "set-secret <key> [value]",
	Short: "Store a secret in the platform keychain",
	Long: `Store a secret in the platform keychain.

Secrets: ` + strings.Join(config.SecretKeys(), ", ") + `

When value is omitted it is read from stdin, which keeps it out of shell
history.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		var value string
		if len(args) == 2 {
			value = args[1]
		} else {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("reading secret from stdin: %w", err)
			}
			value = string(data)
		}

		if err := config.SetSecret(key, value); err != nil {
			return err
		}
		printSuccess("Stored %s", key)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configSetSecretCmd)
}
