package events

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/minio/minio-go/v7"
)

const objectCreatedEvent = "s3:ObjectCreated:*"

// UploadEvent is one supporting document landing in the bucket. Object
// keys follow applicationID/filename, written by the API upload path.
type UploadEvent struct {
	ApplicationID int64
	Filename      string
	ObjectKey     string
	EventName     string
}

type UploadEventSource interface {
	Run(ctx context.Context, handler func(context.Context, UploadEvent) error) error
}

type MinioUploadEventSource struct {
	client *minio.Client
	bucket string
	prefix string
	suffix string
}

func NewMinioUploadEventSource(client *minio.Client, bucket string, prefix string, suffix string) *MinioUploadEventSource {
	return &MinioUploadEventSource{
		client: client,
		bucket: bucket,
		prefix: prefix,
		suffix: suffix,
	}
}

func (s *MinioUploadEventSource) Run(ctx context.Context, handler func(context.Context, UploadEvent) error) error {
	notificationCh := s.client.ListenBucketNotification(ctx, s.bucket, s.prefix, s.suffix, []string{objectCreatedEvent})
	for {
		select {
		case <-ctx.Done():
			return nil
		case info, ok := <-notificationCh:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("minio notification stream closed")
			}
			if info.Err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("minio notification stream error: %w", info.Err)
			}
			for _, record := range info.Records {
				objectKey, err := decodeObjectKey(record.S3.Object.Key)
				if err != nil {
					continue
				}
				applicationID, filename, err := parseObjectKey(objectKey)
				if err != nil {
					continue
				}
				event := UploadEvent{
					ApplicationID: applicationID,
					Filename:      filename,
					ObjectKey:     objectKey,
					EventName:     record.EventName,
				}
				if err := handler(ctx, event); err != nil {
					return err
				}
			}
		}
	}
}

func decodeObjectKey(encoded string) (string, error) {
	decoded, err := url.QueryUnescape(encoded)
	if err != nil {
		return "", err
	}
	decoded = strings.TrimSpace(decoded)
	if decoded == "" {
		return "", fmt.Errorf("object key is empty")
	}
	return decoded, nil
}

func parseObjectKey(objectKey string) (int64, string, error) {
	cleaned := strings.Trim(strings.ReplaceAll(objectKey, "\\", "/"), "/")
	parts := strings.SplitN(cleaned, "/", 2)
	if len(parts) != 2 {
		return 0, "", fmt.Errorf("object key %q does not match application_id/filename", objectKey)
	}
	applicationID, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil || applicationID <= 0 {
		return 0, "", fmt.Errorf("object key %q has no numeric application id", objectKey)
	}
	filename := strings.TrimSpace(parts[1])
	if filename == "" {
		return 0, "", fmt.Errorf("object key %q missing filename", objectKey)
	}
	return applicationID, filename, nil
}
