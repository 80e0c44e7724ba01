// Package storage holds the paper PDFs. Objects are addressed by their
// past-paper filename; backends decide where the bytes live.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/pastpapers-ai/explainer-api/config"
)

var (
	ErrObjectNotFound = errors.New("paper object not found")
	ErrInvalidName    = errors.New("invalid paper object name")
)

// PaperStore stores paper PDFs by filename
type PaperStore interface {
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
	Delete(ctx context.Context, name string) error
	Exists(ctx context.Context, name string) (bool, error)
	List(ctx context.Context) ([]string, error)
}

// New builds the backend selected by STORAGE_BACKEND, with every call
// bounded by STORAGE_TIMEOUT.
func New(cfg *config.Config) (PaperStore, error) {
	var (
		store PaperStore
		err   error
	)

	switch cfg.STORAGE_BACKEND {
	case config.StorageS3:
		store, err = NewS3Store(S3Config{
			AccessKey: cfg.S3_ACCESS_KEY,
			SecretKey: cfg.S3_SECRET_KEY,
			Bucket:    cfg.S3_BUCKET,
			Region:    cfg.S3_REGION,
			Endpoint:  cfg.S3_ENDPOINT,
			Prefix:    cfg.S3_PREFIX,
		})
	case config.StorageLocal:
		store, err = NewDirStore(cfg.DATA_DIR)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.STORAGE_BACKEND)
	}
	if err != nil {
		return nil, err
	}

	return WithTimeout(store, cfg.STORAGE_TIMEOUT), nil
}

// ValidateName rejects names that could escape the store's namespace
func ValidateName(name string) error {
	if name == "" || name != path.Base(name) || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// ContentType returns the MIME type stored with an object
func ContentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".pdf":
		return "application/pdf"
	case ".txt":
		return "text/plain"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

type timeoutStore struct {
	next    PaperStore
	timeout time.Duration
}

// WithTimeout bounds every call to next by timeout; zero disables it
func WithTimeout(next PaperStore, timeout time.Duration) PaperStore {
	if timeout <= 0 {
		return next
	}
	return &timeoutStore{next: next, timeout: timeout}
}

func (t *timeoutStore) Put(ctx context.Context, name string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Put(ctx, name, data)
}

func (t *timeoutStore) Get(ctx context.Context, name string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Get(ctx, name)
}

func (t *timeoutStore) Delete(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Delete(ctx, name)
}

func (t *timeoutStore) Exists(ctx context.Context, name string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Exists(ctx, name)
}

func (t *timeoutStore) List(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.List(ctx)
}
