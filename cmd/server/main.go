package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/regdocs/ragcore"
	"github.com/regdocs/ragcore/embedclient"
	"github.com/regdocs/ragcore/kb"
	"github.com/regdocs/ragcore/llm"
	"github.com/regdocs/ragcore/rag"
	"github.com/regdocs/ragcore/regulatory"
	"github.com/regdocs/ragcore/session"
	"github.com/regdocs/ragcore/uploadcache"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (JSON)")
	addr := flag.String("addr", "", "Listen address, overrides config")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg := ragcore.DefaultConfig()
	cfg, err := ragcore.LoadConfigFile(cfg, *configPath)
	if err != nil {
		slog.Error("loading config file", "error", err)
		os.Exit(1)
	}
	cfg = ragcore.ApplyEnv(cfg)
	if *addr != "" {
		cfg.Addr = *addr
	}
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = cfg.FallbackAPIKey
	}
	if cfg.Chat.APIKey == "" {
		cfg.Chat.APIKey = cfg.FallbackAPIKey
	}

	embedProvider, err := llm.NewProvider(llm.Config{
		Model:   cfg.Embedding.Model,
		BaseURL: cfg.Embedding.BaseURL,
		APIKey:  cfg.Embedding.APIKey,
	})
	if err != nil {
		slog.Error("creating embedding provider", "error", err)
		os.Exit(1)
	}
	chatProvider, err := llm.NewProvider(llm.Config{
		Model:   cfg.Chat.Model,
		BaseURL: cfg.Chat.BaseURL,
		APIKey:  cfg.Chat.APIKey,
	})
	if err != nil {
		slog.Error("creating chat provider", "error", err)
		os.Exit(1)
	}

	embedder := embedclient.New(embedProvider, cfg.EmbedConcurrency)

	knowledgeBase, err := kb.NewFromEmbeddedSnapshot()
	if err != nil {
		slog.Error("seeding knowledge base", "error", err)
		os.Exit(1)
	}

	if cfg.FallbackAPIKey != "" {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			if err := knowledgeBase.Bind(ctx, embedder, cfg.FallbackAPIKey); err != nil {
				slog.Error("binding knowledge base at startup", "error", err)
				return
			}
			slog.Info("knowledge base ready", "documents", knowledgeBase.DocumentCount(), "chunks", knowledgeBase.ChunkCount())
		}()
	} else {
		slog.Info("no fallback API key configured; knowledge base will bind on first request carrying one")
	}

	sessions := session.New()

	orchestrator := rag.New(embedProvider, chatProvider, knowledgeBase, cfg.Chat.Model)
	enhancer := regulatory.New(orchestrator, knowledgeBase)

	var cache *uploadcache.Cache
	if cfg.UploadCachePath != "" {
		cache, err = uploadcache.Open(cfg.UploadCachePath)
		if err != nil {
			slog.Error("opening upload cache", "error", err)
			os.Exit(1)
		}
		defer cache.Close()
	}

	h := &handler{
		cfg:      cfg,
		kb:       knowledgeBase,
		sessions: sessions,
		embedder: embedder,
		embed:    embedProvider,
		chat:     chatProvider,
		rag:      orchestrator,
		enhancer: enhancer,
		uploads:  cache,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", h.handleChat)
	mux.HandleFunc("POST /api/rag-chat", h.handleRAGChat)
	mux.HandleFunc("POST /api/regulatory-rag-chat", h.handleRegulatoryRAGChat)
	mux.HandleFunc("POST /api/upload-document", h.handleUploadDocument)
	mux.HandleFunc("GET /api/global-knowledge-base", h.handleGlobalKnowledgeBase)
	mux.HandleFunc("GET /api/sessions", h.handleListSessions)
	mux.HandleFunc("GET /api/session/{id}", h.handleGetSession)
	mux.HandleFunc("DELETE /api/session/{id}", h.handleDeleteSession)
	mux.HandleFunc("DELETE /api/document/{filename}", h.handleDeleteDocument)
	mux.HandleFunc("GET /health", h.handleHealth)

	var handlerChain http.Handler = mux
	handlerChain = logMiddleware(handlerChain)
	handlerChain = authMiddleware(cfg.OperatorAPIKey, handlerChain)
	handlerChain = corsMiddleware(joinOrigins(cfg.CORSOrigins), handlerChain)
	handlerChain = recoveryMiddleware(handlerChain)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handlerChain,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming chat responses can run long
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	slog.Info("server stopped")
}

// joinOrigins collapses the configured origin list into the single value
// the CORS middleware echoes back; multi-origin reflection per request
// Origin header is left as a documented gap (§DESIGN.md).
func joinOrigins(origins []string) string {
	if len(origins) == 0 {
		return ""
	}
	return origins[0]
}
