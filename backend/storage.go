// Package backend adapts object-storage providers (S3, OCI, MinIO) to the
// narrow multipart/get/head capability the benchmark engine drives.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrNotFound is returned by HeadObject when the object does not exist.
var ErrNotFound = errors.New("object not found")

// CompletedPart is one acknowledged part of a multipart upload.
type CompletedPart struct {
	PartNumber int
	ETag       string
}

// PendingUpload describes a multipart upload that was opened but never
// completed or aborted.
type PendingUpload struct {
	Key       string
	UploadID  string
	Initiated time.Time
}

// ObjectInfo is a listed object.
type ObjectInfo struct {
	Key  string
	Size int64
}

// Storage is the capability consumed by the uploader and downloader.
// Retries and per-call timeouts belong to the provider SDK behind it.
type Storage interface {
	CreateMultipartUpload(ctx context.Context, bucket, key string) (string, error)
	UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int, body io.ReadSeeker, size int64) (string, error)
	CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []CompletedPart) error
	AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error
	HeadObject(ctx context.Context, bucket, key string) (int64, error)
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// Janitor is implemented by backends that can enumerate and remove leftovers
// of previous benchmark runs.
type Janitor interface {
	ListMultipartUploads(ctx context.Context, bucket, prefix string) ([]PendingUpload, error)
	ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
	DeleteObject(ctx context.Context, bucket, key string) error
}

// StorageJanitor is what every bundled provider implements.
type StorageJanitor interface {
	Storage
	Janitor
}

// Provider names accepted by New.
const (
	ProviderS3    = "s3"
	ProviderOCI   = "oci"
	ProviderMinIO = "minio"
)

// Config selects and configures one provider.
type Config struct {
	Provider string

	// S3 and MinIO
	Endpoint        string
	Region          string
	AddressingStyle string
	AccessKey       string
	SecretKey       string
	SessionToken    string
	Profile         string
	Secure          bool

	// OCI
	OCIConfigFile string
	OCIProfile    string
	Namespace     string
	Host          string
}

// New builds the provider named by cfg.Provider.
func New(ctx context.Context, cfg Config) (StorageJanitor, error) {
	switch cfg.Provider {
	case ProviderS3, "":
		return NewS3WithConfig(ctx, cfg)
	case ProviderOCI:
		return NewOCIWithConfig(ctx, cfg)
	case ProviderMinIO:
		return NewMinIOWithConfig(cfg)
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Provider)
	}
}
