package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"credverify/internal/config"
	"credverify/internal/events"
	"credverify/internal/storage"
)

// The event-handler registers supporting documents dropped straight into
// the bucket, so verification steps can read them even when the upload
// bypassed the API.
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

	minioClient, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		log.Fatalf("connect minio: %v", err)
	}
	blob := storage.NewMinioStoreFromClient(minioClient, cfg.MinioBucket)

	source := events.NewMinioUploadEventSource(minioClient, cfg.MinioBucket, "", "")
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("event-handler listening for object-created events on bucket=%s", cfg.MinioBucket)
	err = source.Run(ctx, func(parent context.Context, event events.UploadEvent) error {
		handleCtx, cancel := context.WithTimeout(parent, 15*time.Second)
		defer cancel()

		content, err := blob.GetSupportingDocument(handleCtx, event.ObjectKey)
		if err != nil {
			return fmt.Errorf("fetch object %s: %w", event.ObjectKey, err)
		}

		documentID := uuid.NewString()
		if err := store.SaveSupportingDocument(handleCtx, documentID, event.ApplicationID, event.Filename, event.ObjectKey, string(content)); err != nil {
			return fmt.Errorf("record object %s: %w", event.ObjectKey, err)
		}

		log.Printf("registered supporting document application_id=%d object=%s", event.ApplicationID, event.ObjectKey)
		return nil
	})
	if err != nil {
		log.Fatalf("event-handler stopped with error: %v", err)
	}
}
