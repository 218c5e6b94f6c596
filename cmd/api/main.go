package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.temporal.io/sdk/client"

	"credverify/internal/api"
	"credverify/internal/appstate"
	"credverify/internal/authority"
	"credverify/internal/config"
	"credverify/internal/llm"
	"credverify/internal/registry"
	"credverify/internal/steps"
	"credverify/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	store, err := storage.NewPostgresStore(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer store.Close()

	blob, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL, cfg.MinioBucket)
	if err != nil {
		log.Fatalf("connect minio: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		log.Fatalf("postgres ping: %v", err)
	}

	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
	})
	if err != nil {
		log.Fatalf("connect temporal: %v", err)
	}
	defer temporalClient.Close()

	state := appstate.NewManager(store, store)
	executors := &steps.Executors{
		Authorities: authority.NewGatewayDirectory(cfg.AuthorityGatewayURL, time.Duration(cfg.AuthorityTimeoutSec)*time.Second),
		LLM:         llm.NewHTTPClient(cfg.OpenAIAPIKey, cfg.OpenAIModel),
		Model:       cfg.OpenAIModel,
		LLMTimeout:  time.Duration(cfg.OpenAITimeoutSec) * time.Second,
	}
	catalog := registry.New(executors)

	h := api.NewHandler(cfg, store, blob, state, catalog, temporalClient)
	router := api.NewRouter(h)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("api listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
