package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/kingdom/internal/api"
	"github.com/kalambet/kingdom/internal/config"
	"github.com/kalambet/kingdom/internal/forms"
	"github.com/kalambet/kingdom/internal/gemini"
	"github.com/kalambet/kingdom/internal/jobs"
	"github.com/kalambet/kingdom/internal/orchestrator"
	"github.com/kalambet/kingdom/internal/storage"
)

const shutdownTimeout = 5 * time.Second

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the kingdom server (foreground)",
	Long: `Start the kingdom server in the foreground.

The REST API listens on 127.0.0.1. Unless --no-mcp is given, an MCP server is
also served over stdin/stdout so the binary can be registered directly as an
MCP tool provider.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		noMCP, _ := cmd.Flags().GetBool("no-mcp")
		return runServer(!noMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running kingdom server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show kingdom system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	startCmd.Flags().Bool("no-mcp", false, "do not serve MCP over stdio")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "kingdom.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer(serveMCP bool) error {
	fmt.Fprintln(os.Stderr, versionString())

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()})))

	apiToken, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Refuse to start twice on the same port.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("kingdom is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("kingdom is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()

	// Jobs left running by a previous process were interrupted mid-poll.
	if n, err := store.RequeueRunning(); err != nil {
		return fmt.Errorf("requeueing interrupted jobs: %w", err)
	} else if n > 0 {
		slog.Info("requeued interrupted video jobs", "count", n)
	}

	var backend *gemini.Client
	if cfg.Gemini.BaseURL != "" {
		backend, err = gemini.NewClientWithBaseURL(ctx, cfg.Gemini.APIKey, cfg.Gemini.BaseURL)
	} else {
		backend, err = gemini.NewClient(ctx, cfg.Gemini.APIKey)
	}
	if err != nil {
		return fmt.Errorf("creating Gemini client: %w", err)
	}

	pingCtx, cancelPing := context.WithTimeout(ctx, 15*time.Second)
	if err := backend.Ping(pingCtx, cfg.Gemini.TextModel); err != nil {
		printWarning("Gemini is not reachable with the configured key: %v", err)
	} else {
		slog.Info("Gemini reachable", "model", cfg.Gemini.TextModel)
	}
	cancelPing()

	orch := orchestrator.New(backend, orchestrator.Config{
		APIKey:             cfg.Gemini.APIKey,
		TextModel:          cfg.Gemini.TextModel,
		MapsModel:          cfg.Gemini.MapsModel,
		SpeechModel:        cfg.Gemini.SpeechModel,
		Voice:              cfg.Gemini.Voice,
		ImageModel:         cfg.Gemini.ImageModel,
		FallbackImageModel: cfg.Gemini.FallbackImageModel,
		VideoModel:         cfg.Gemini.VideoModel,
		PollInterval:       cfg.Video.PollInterval,
		MaxPolls:           cfg.Video.MaxPolls,
	}, nil, slog.Default())

	deps := api.Deps{
		Gen:    orch,
		Jobs:   store,
		Token:  apiToken,
		Logger: slog.Default(),
	}
	if fc := forms.New(cfg.Forms.Endpoint, cfg.Forms.AccessKey); fc.Configured() {
		deps.Contact = fc
	} else {
		slog.Info("contact form relay disabled: forms.access_key not set")
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewHandler(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	worker := jobs.NewWorker(store, orch, 500*time.Millisecond, slog.Default())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})

	if serveMCP {
		stdioSrv := server.NewStdioServer(api.NewMCPServer(orch, version))
		g.Go(func() error {
			// A closed stdin ends MCP but leaves the HTTP API up.
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
		slog.Info("MCP server started (stdio transport)")
	}

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "kingdom listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func stopServer() error {
	cfg := config.LoadOptional()

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("kingdom is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop kingdom (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to kingdom (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if the key is missing.
		printError("config error: %v", err)
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Text model", "%s", cfg.Gemini.TextModel)
	printStatus("Image model", "%s (fallback %s)", cfg.Gemini.ImageModel, cfg.Gemini.FallbackImageModel)
	printStatus("Video model", "%s", cfg.Gemini.VideoModel)
	printStatus("Voice", "%s via %s", cfg.Gemini.Voice, cfg.Gemini.SpeechModel)
	if cfg.Forms.AccessKey != "" {
		printStatus("Contact relay", "%s", cfg.Forms.Endpoint)
	} else {
		printStatus("Contact relay", "disabled")
	}

	apiToken, tokenErr := config.GetAPIToken(config.NewKeychain())
	if tokenErr == nil && running {
		videosResp, err := apiGet(client, serverURL+"/v1/videos?limit=100", apiToken)
		if err == nil {
			var videos []api.VideoJob
			if json.NewDecoder(videosResp.Body).Decode(&videos) == nil {
				printStatus("Video jobs", "%s (%d pending)", countLabel(len(videos), 100), countPending(videos))
			}
			videosResp.Body.Close()
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countPending(videos []api.VideoJob) int {
	n := 0
	for _, v := range videos {
		if v.Status == storage.JobPending || v.Status == storage.JobRunning {
			n++
		}
	}
	return n
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}

func apiGet(client *http.Client, url, token string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return client.Do(req)
}
