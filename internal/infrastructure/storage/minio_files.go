package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"lexmeet/internal/core/domain"
	"lexmeet/internal/core/ports"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	URLExpiry time.Duration
}

func NewMinIOClient(cfg MinIOConfig) (*minio.Client, error) {
	return minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
}

func EnsureBucket(ctx context.Context, client *minio.Client, bucket string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
}

// MinIOFileStore uploads attachments to a bucket and returns presigned GET URLs.
type MinIOFileStore struct {
	client *minio.Client
	bucket string
	expiry time.Duration

	mu   sync.Mutex
	keys map[string]string
	log  *zap.SugaredLogger
}

func NewMinIOFileStore(client *minio.Client, bucket string, expiry time.Duration, logger *zap.SugaredLogger) *MinIOFileStore {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &MinIOFileStore{
		client: client,
		bucket: bucket,
		expiry: expiry,
		keys:   make(map[string]string),
		log:    logger,
	}
}

// objectKey places each upload under its own prefix, keeping only the base
// name the participant chose.
func objectKey(id, name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "file"
	}
	return "chat/" + id + "/" + base
}

func (s *MinIOFileStore) Put(ctx context.Context, name, contentType string, size int64, body io.Reader) (ports.StoredFile, error) {
	key := objectKey(uuid.NewString(), name)
	if size <= 0 {
		size = -1
	}

	info, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return ports.StoredFile{}, fmt.Errorf("upload %s: %w", name, err)
	}

	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.expiry, url.Values{})
	if err != nil {
		return ports.StoredFile{}, fmt.Errorf("presign %s: %w", name, err)
	}

	file := ports.StoredFile{Name: name, Size: info.Size, Type: contentType, URL: u.String()}
	s.mu.Lock()
	s.keys[file.URL] = key
	s.mu.Unlock()

	s.log.Debugw("attachment uploaded", "bucket", s.bucket, "key", key, "size", info.Size)
	return file, nil
}

func (s *MinIOFileStore) Release(ctx context.Context, fileURL string) error {
	s.mu.Lock()
	key, ok := s.keys[fileURL]
	delete(s.keys, fileURL)
	s.mu.Unlock()
	if !ok {
		return domain.ErrFileNotFound
	}
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}
