package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"forgeline/internal/artifact"
	"forgeline/internal/config"
	"forgeline/internal/contextindex"
	"forgeline/internal/gatewayapi"
	"forgeline/internal/llm"
	"forgeline/internal/llmclient"
	"forgeline/internal/sandbox"
	"forgeline/internal/server"
	"forgeline/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()

	gemini, err := llmclient.NewGeminiClient(ctx, os.Getenv("GEMINI_API_KEY"), cfg.Gemini.Model)
	if err != nil {
		log.Fatalf("gemini client: %v", err)
	}
	client := llm.NewGenerator(llm.Chain(gemini,
		llm.Deadline(2*time.Minute),
		llm.Retry(3, time.Second),
		llm.Logged(),
	))
	defer client.Close()

	embedder, err := llmclient.NewGeminiEmbedder(ctx, cfg.Gemini.EmbedModel)
	if err != nil {
		log.Fatalf("gemini embedder: %v", err)
	}

	var st *store.Store
	if cfg.PostgresDSN != "" {
		st, err = store.NewPostgres(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("postgres store: %v", err)
		}
	} else {
		log.Printf("FORGELINE_PG_DSN not set; using in-memory store")
		st = store.New()
	}

	var artifacts artifact.Store
	if cfg.Artifact.Enabled {
		s3, err := artifact.NewS3Store(cfg.Artifact.S3)
		if err != nil {
			log.Fatalf("artifact store: %v", err)
		}
		artifacts = s3
	} else {
		log.Printf("artifact S3 not configured; using in-memory artifact store")
		artifacts = artifact.NewMemory()
	}

	index := &contextindex.Index{Store: st, Embedder: embedder}

	svc := &gatewayapi.Service{
		Client:    client,
		Store:     st,
		Index:     index,
		Artifacts: artifacts,
		Hub:       gatewayapi.NewHub(),
		NewSandbox: func() (sandbox.Sandbox, error) {
			dir, err := os.MkdirTemp(cfg.Sandbox.Root, "forgeline-run-")
			if err != nil {
				return nil, err
			}
			return sandbox.NewLocal(filepath.Clean(dir), 10*time.Minute)
		},
		Workers:     cfg.Workers,
		TaskRetries: cfg.TaskRetries,
		CompileCmd:  cfg.Sandbox.CompileCmd,
		BuildCmd:    cfg.Sandbox.BuildCmd,
	}

	srv := server.New(cfg.Port, gatewayapi.NewMux(svc))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server: %v", err)
		}
	case sig := <-sigCh:
		log.Printf("received %s, shutting down", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}
}
