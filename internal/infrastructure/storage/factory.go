package storage

import (
	"context"
	"fmt"

	"lexmeet/internal/core/ports"
	"lexmeet/pkg/config"

	"go.uber.org/zap"
)

// NewFileStore builds the attachment store selected by storage.driver.
func NewFileStore(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (ports.FileStore, error) {
	switch cfg.Storage.Driver {
	case "", "memory":
		return NewMemoryFileStore(cfg.Call.FileUploadDelay), nil
	case "minio":
		m := cfg.Storage.MinIO
		client, err := NewMinIOClient(MinIOConfig{
			Endpoint:  m.Endpoint,
			AccessKey: m.AccessKey,
			SecretKey: m.SecretKey,
			Bucket:    m.Bucket,
			UseSSL:    m.UseSSL,
			URLExpiry: m.URLExpiry,
		})
		if err != nil {
			return nil, fmt.Errorf("minio client: %w", err)
		}
		if err := EnsureBucket(ctx, client, m.Bucket); err != nil {
			return nil, fmt.Errorf("minio bucket %s: %w", m.Bucket, err)
		}
		logger.Infow("using minio attachment store", "endpoint", m.Endpoint, "bucket", m.Bucket)
		return NewMinIOFileStore(client, m.Bucket, m.URLExpiry, logger), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
