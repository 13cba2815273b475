package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"omnigate/internal/api"
	"omnigate/internal/archive"
	"omnigate/internal/bridge"
	"omnigate/internal/collab"
	"omnigate/internal/config"
	"omnigate/internal/upstream"
	"omnigate/internal/userctx"
	"omnigate/internal/websocket"
	"omnigate/pkg/interfaces"
)

// Application wires the gateway's components in dependency order:
// archive, collaborator clients, resolver, registry, WebSocket handler,
// API server, HTTP server.
type Application struct {
	config       *config.Config
	archiveStore *archive.Store
	flusher      *archive.Flusher
	registry     *websocket.Registry
	apiServer    *api.Server
	httpServer   *http.Server
}

func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	archiveStore, err := archive.NewStore(cfg.Archive.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize archive store: %w", err)
	}

	timeout := cfg.Collaborators.Timeout
	profileClient := collab.NewProfileClient(cfg.Collaborators.ProfileURL, timeout)
	historyClient := collab.NewHistoryClient(cfg.Collaborators.HistoryURL, timeout)
	mediaClient := collab.NewMediaClient(cfg.Collaborators.MediaURL, timeout)
	ttsClient := collab.NewTTSClient(cfg.Collaborators.TTSURL, cfg.Upstream.APIKey, timeout)

	flusher := archive.NewFlusher(archiveStore, historyClient, cfg.Archive.FlushInterval)

	resolver := userctx.NewResolver(profileClient)
	registry := websocket.NewRegistry()

	upstreamCfg := upstream.Config{
		URL:         cfg.Upstream.URL,
		APIKey:      cfg.Upstream.APIKey,
		Model:       cfg.Upstream.Model,
		Voice:       cfg.Upstream.Voice,
		DialTimeout: cfg.Upstream.DialTimeout,
	}
	dial := func(ctx context.Context) (interfaces.Upstream, error) {
		return upstream.Dial(ctx, upstreamCfg)
	}

	wsHandler := websocket.NewHandler(websocket.HandlerOptions{
		Registry: registry,
		Resolver: resolver,
		History:  historyClient,
		Dial:     dial,
		BridgeConfig: bridge.Config{
			HeartbeatInterval: cfg.WebSocket.HeartbeatInterval,
			SettleDelay:       cfg.Upstream.SettleDelay,
			CancelDelay:       cfg.Upstream.CancelDelay,
			Voice:             cfg.Upstream.Voice,
		},
		Collaborators: bridge.Collaborators{
			History: historyClient,
			Media:   mediaClient,
			Scorer:  profileClient,
			Archive: archiveStore,
		},
		HandshakeTimeout: cfg.WebSocket.HandshakeTimeout,
		WriteTimeout:     cfg.WebSocket.WriteTimeout,
		SendBuffer:       cfg.WebSocket.SendBuffer,
	})

	apiServer := api.NewServer(registry, ttsClient, http.HandlerFunc(wsHandler.HandleStream))

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      apiServer,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:       cfg,
		archiveStore: archiveStore,
		flusher:      flusher,
		registry:     registry,
		apiServer:    apiServer,
		httpServer:   httpServer,
	}, nil
}

// Start launches the flusher and the HTTP server, verifying the listener
// came up before returning.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting omnigate on %s", app.httpServer.Addr)

	app.flusher.Start()

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		app.flusher.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("omnigate started successfully")
		return nil
	case <-ctx.Done():
		app.flusher.Stop()
		return ctx.Err()
	}
}

// Stop shuts components down in reverse order: HTTP server, live
// connections, flusher, archive store.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down omnigate")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	app.registry.CloseAll()
	app.flusher.Stop()

	if err := app.archiveStore.Close(); err != nil {
		log.Printf("Archive store shutdown error: %v", err)
	}

	log.Printf("omnigate shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	configPath := os.Getenv("OMNIGATE_CONFIG_FILE")
	cfg := config.LoadWithPrecedence(configPath)

	app, err := NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	appErrCh := make(chan error, 1)
	go func() {
		if err := app.Start(ctx); err != nil {
			appErrCh <- err
		}
	}()

	select {
	case err := <-appErrCh:
		return fmt.Errorf("application error: %w", err)
	case sig := <-signalCh:
		log.Printf("Received signal %v, shutting down gracefully", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := app.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	}
}
