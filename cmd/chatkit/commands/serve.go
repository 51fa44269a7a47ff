package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chatkit-ai/chatkit/internal/agent"
	"github.com/chatkit-ai/chatkit/internal/chat"
	"github.com/chatkit-ai/chatkit/internal/config"
	"github.com/chatkit-ai/chatkit/internal/logging"
	"github.com/chatkit-ai/chatkit/internal/server"
	"github.com/chatkit-ai/chatkit/internal/storage"
	"github.com/chatkit-ai/chatkit/internal/store"
)

var (
	servePort  int
	serveDir   string
	serveScope string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chatkit HTTP server",
	Long: `Start chatkit as a server that exposes the session orchestrator
over an HTTP API with SSE event streaming.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Working directory")
	serveCmd.Flags().StringVar(&serveScope, "scope", "default", "Storage scope (workspace identifier)")
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(serveDir)
	if err != nil {
		return err
	}

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return err
	}

	appConfig, err := config.Load(workDir)
	if err != nil {
		return err
	}
	if servePort > 0 {
		appConfig.Server.Port = servePort
	}

	storagePath := appConfig.StoragePath
	if storagePath == "" {
		storagePath = paths.StoragePath()
	}
	st := storage.New(storagePath)

	registry := agent.NewRegistry()
	registry.Register(&agent.Agent{
		ID:        "assistant",
		Name:      "Assistant",
		IsDefault: true,
		Handler:   &agent.EchoHandler{},
	})
	for _, manifest := range appConfig.AgentManifests {
		if err := agent.RegisterManifest(registry, manifest, &agent.EchoHandler{}); err != nil {
			logging.Warn().Err(err).Str("manifest", manifest).Msg("failed to load agent manifest")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := chat.Options{
		Storage:  st,
		Registry: registry,
		Detector: agent.NewLexicalDetector(registry),
		Config:   appConfig,
		Scope:    serveScope,
	}
	if appConfig.UseFileStorage {
		opts.FileStore = store.New(st, serveScope)
	}
	orchestrator, err := chat.NewOrchestrator(ctx, opts)
	if err != nil {
		return err
	}
	if err := orchestrator.WatchStorage(ctx); err != nil {
		logging.Warn().Err(err).Msg("storage watcher unavailable")
	}

	serverConfig := server.DefaultConfig()
	serverConfig.Port = appConfig.Server.Port
	serverConfig.EnableCORS = appConfig.Server.EnableCORS

	srv := server.New(serverConfig, appConfig, orchestrator, registry)

	go func() {
		logging.Info().Int("port", serverConfig.Port).Str("scope", serveScope).
			Str("version", Version).Msg("chatkit server listening")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logging.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := orchestrator.SaveState(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("failed to persist sessions on shutdown")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("server shutdown error")
	}

	logging.Info().Msg("server stopped")
	return nil
}
