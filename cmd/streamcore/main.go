// Command streamcore runs the live-translation streaming core: the
// WebSocket transport, translation connection pool, TTS orchestrator,
// and onCommittedSegment ingress endpoint described in SPEC_FULL.md.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jkang1643/exbabel/internal/config"
	"github.com/jkang1643/exbabel/internal/ingress"
	"github.com/jkang1643/exbabel/internal/orchestrator"
	"github.com/jkang1643/exbabel/internal/route"
	"github.com/jkang1643/exbabel/internal/session"
	"github.com/jkang1643/exbabel/internal/transport"
	"github.com/jkang1643/exbabel/internal/translation"
	"github.com/jkang1643/exbabel/internal/tts"
	"github.com/jkang1643/exbabel/internal/usage"
	"github.com/jkang1643/exbabel/internal/wsproto"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	cfg := config.Load()
	logger.Info("starting streamcore", "version", version, "commit", commit, "date", date, "listenAddr", cfg.ListenAddr)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("streamcore exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	registry := session.NewRegistry()
	gate := session.NewEntitlementGate()
	resolver := route.NewResolver(gate)

	pool, err := translation.NewPool(translation.Config{
		APIURL:           cfg.TranslationAPIURL,
		APIKey:           cfg.TranslationAPIKey,
		ConnectTimeout:   cfg.PoolSessionConnectTimeout,
		PartialTimeout:   cfg.PartialTranslationTimeout,
		FinalTimeout:     cfg.FinalTranslationTimeout,
		HeartbeatEvery:   cfg.HeartbeatInterval,
		MaxConcurrent:    cfg.MaxConcurrentPoolSessions,
		PartialCacheSize: cfg.PartialCacheSize,
		PartialCacheTTL:  cfg.PartialCacheTTL,
		FinalCacheSize:   cfg.FinalCacheSize,
		FinalCacheTTL:    cfg.FinalCacheTTL,
		Logger:           logger,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	providers := buildProviderRegistry(cfg)

	ledger, err := usage.New()
	if err != nil {
		return err
	}
	defer ledger.Close()

	broadcaster := transport.NewBroadcaster(registry, cfg.FrameMagic, logger)

	orch := orchestrator.New(orchestrator.Config{
		MaxQueued:     cfg.MaxQueuedSegments,
		MaxConcurrent: cfg.MaxConcurrentSynthesis,
		FrameMagic:    cfg.FrameMagic,
		Registry:      registry,
		Resolver:      resolver,
		Pool:          pool,
		Providers:     providers,
		Broadcaster:   broadcaster,
		Control:       broadcaster,
		Ledger:        ledger,
		Logger:        logger,
	})

	wsHandler := transport.NewHandler(transport.Config{
		Registry:     registry,
		FrameMagic:   cfg.FrameMagic,
		WriteTimeout: 5 * time.Second,
		Logger:       logger,
		OnCancel: func(ctx context.Context, sessionID, clientID string, cancel wsproto.AudioCancel) {
			if cancel.SegmentID != "" {
				orch.CancelSegment(sessionID, cancel.SegmentID)
			} else {
				orch.CancelSession(sessionID)
			}
		},
	})

	ingressHandler := ingress.NewHandler(orch, logger)

	mux := http.NewServeMux()
	mux.Handle("/v1/stream", wsHandler)
	mux.Handle("/v1/segments", ingressHandler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

// buildProviderRegistry wires the configured TTS backends. With no
// environment set, no provider is registered. TTS_HTTP_BASE_URL
// registers the HTTP-streaming adapter under every provider name;
// TTS_GRPC_TARGET then replaces the "gemini" entry with a gRPC-bidi
// provider.
func buildProviderRegistry(cfg *config.Config) *tts.Registry {
	registry := tts.NewRegistry()

	httpBase := os.Getenv("TTS_HTTP_BASE_URL")
	if httpBase != "" {
		registry.Register("google", tts.NewHTTPProvider(tts.HTTPProviderConfig{
			BaseURL: httpBase,
			APIKey:  os.Getenv("TTS_HTTP_API_KEY"),
		}))
		registry.Register("elevenlabs", tts.NewHTTPProvider(tts.HTTPProviderConfig{
			BaseURL: httpBase,
			APIKey:  os.Getenv("TTS_HTTP_API_KEY"),
		}))
		registry.Register("minimax", tts.NewHTTPProvider(tts.HTTPProviderConfig{
			BaseURL: httpBase,
			APIKey:  os.Getenv("TTS_HTTP_API_KEY"),
		}))
		registry.Register("gemini", tts.NewHTTPProvider(tts.HTTPProviderConfig{
			BaseURL: httpBase,
			APIKey:  os.Getenv("TTS_HTTP_API_KEY"),
		}))
	}

	if grpcTarget := os.Getenv("TTS_GRPC_TARGET"); grpcTarget != "" {
		if provider, err := tts.NewGRPCProvider(tts.GRPCProviderConfig{
			Target:     grpcTarget,
			FullMethod: os.Getenv("TTS_GRPC_METHOD"),
			Insecure:   os.Getenv("TTS_GRPC_INSECURE") == "true",
		}); err == nil {
			var backend tts.Provider = provider
			if os.Getenv("TTS_GRPC_NATIVE_PCM") == "true" {
				// This backend only emits linear PCM; rewrap to Opus
				// before it reaches the listener.
				backend = tts.NewOpusRewrapProvider(provider)
			}
			registry.Register("gemini", backend)
		}
	}

	return registry
}
