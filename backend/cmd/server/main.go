package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/instructify/liveclass/backend/internal/assistant"
	"github.com/instructify/liveclass/backend/internal/classroom"
	"github.com/instructify/liveclass/backend/internal/config"
	"github.com/instructify/liveclass/backend/internal/server"
	"github.com/instructify/liveclass/backend/internal/signaling"
	"github.com/instructify/liveclass/backend/internal/turnrelay"
	"github.com/instructify/liveclass/internal/logging"
	"github.com/instructify/liveclass/internal/version"
)

var (
	listenAddr string
	envFile    string
	aiBaseURL  string
	enableTURN bool
)

var rootCmd = &cobra.Command{
	Use:     "liveclass-server",
	Short:   "Signaling relay for live classrooms",
	Long:    `liveclass-server hosts classrooms: it relays WebRTC negotiation between a teacher and their students, moderates chat, answers private AI questions and turns the class transcript into notes.`,
	Version: version.Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVar(&listenAddr, "addr", "", "Listen address (env: LISTEN_ADDR)")
	rootCmd.Flags().StringVar(&envFile, "env-file", config.DefaultEnvFile, "Optional .env file to load")
	rootCmd.Flags().StringVar(&aiBaseURL, "ai-url", "", "Ollama base URL, empty disables the language model (env: AI_BASE_URL)")
	rootCmd.Flags().BoolVar(&enableTURN, "turn", false, "Run the embedded TURN relay (env: TURN_ENABLED)")
}

func run(ctx context.Context) error {
	cfg, err := config.Load(config.Options{
		ListenAddr: listenAddr,
		EnvFile:    envFile,
		AIBaseURL:  aiBaseURL,
		TURN:       enableTURN,
	})
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	// After Load so LOG_LEVEL may come from the .env file.
	logging.Init(slog.LevelInfo)

	// 1. The AI gateway: keyword moderation always, the model when configured.
	var model assistant.Model
	if cfg.AIBaseURL != "" {
		ollama := assistant.NewOllama(cfg.AIBaseURL, cfg.AIModel, cfg.AITimeout)
		probe, cancel := context.WithTimeout(ctx, 3*time.Second)
		if !ollama.Available(probe) {
			slog.Warn("ai backend not reachable yet, chat will fail open until it is", "url", cfg.AIBaseURL)
		}
		cancel()
		model = ollama
	} else {
		slog.Info("no AI_BASE_URL set, running with keyword moderation only")
	}

	// 2. Create the hub around a fresh registry.
	hub := signaling.NewHub(classroom.NewRegistry(), assistant.New(model), signaling.Options{
		ReadLimit:      cfg.ReadLimit,
		SendBuffer:     cfg.SendBuffer,
		ContextSize:    cfg.ChatContext,
		GatewayTimeout: cfg.AITimeout,
	})

	// 3. Optional TURN relay.
	if cfg.TURN.Enabled {
		relay, err := turnrelay.Start(turnrelay.Config{
			PublicIP: cfg.TURN.PublicIP,
			Port:     cfg.TURN.Port,
			Realm:    cfg.TURN.Realm,
			Username: cfg.TURN.Username,
			Password: cfg.TURN.Password,
		})
		if err != nil {
			return err
		}
		defer relay.Close()
	}

	// 4. Serve until interrupted.
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.NewRouter(hub, server.Options{AllowedOrigin: cfg.AllowedOrigin}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting signaling server", "addr", cfg.ListenAddr, "version", version.Version)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.DefaultShutdownPeriod)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func main() {
	rootCmd.SilenceUsage = true
	if err := rootCmd.Execute(); err != nil {
		slog.Error("server failed", "err", err)
		os.Exit(1)
	}
}
