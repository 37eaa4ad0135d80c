package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOBackend talks to MinIO (or any S3-compatible gateway) through the
// low-level minio.Core API, which exposes the individual multipart calls.
type MinIOBackend struct {
	core *minio.Core
}

func NewMinIOBackend(core *minio.Core) *MinIOBackend {
	return &MinIOBackend{core: core}
}

func NewMinIOWithConfig(cfg Config) (*MinIOBackend, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint required")
	}
	httpClient, err := newHTTPClient()
	if err != nil {
		return nil, err
	}

	// minio-go wants host[:port]; the scheme decides Secure
	endpoint, secure := cfg.Endpoint, cfg.Secure
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		endpoint, secure = strings.TrimPrefix(endpoint, "https://"), true
	case strings.HasPrefix(endpoint, "http://"):
		endpoint, secure = strings.TrimPrefix(endpoint, "http://"), false
	}

	core, err := minio.NewCore(strings.TrimSuffix(endpoint, "/"), &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken),
		Secure:    secure,
		Region:    cfg.Region,
		Transport: httpClient.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return NewMinIOBackend(core), nil
}

// ===================================================================================================

func (m *MinIOBackend) CreateMultipartUpload(ctx context.Context, bucket, key string) (string, error) {
	id, err := m.core.NewMultipartUpload(ctx, bucket, key, minio.PutObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("create multipart upload: %w", err)
	}
	return id, nil
}

func (m *MinIOBackend) UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int, body io.ReadSeeker, size int64) (string, error) {
	part, err := m.core.PutObjectPart(ctx, bucket, key, uploadID, partNumber, body, size, minio.PutObjectPartOptions{})
	if err != nil {
		return "", fmt.Errorf("upload part %d: %w", partNumber, err)
	}
	return part.ETag, nil
}

func (m *MinIOBackend) CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []CompletedPart) error {
	complete := make([]minio.CompletePart, len(parts))
	for i, part := range parts {
		complete[i] = minio.CompletePart{PartNumber: part.PartNumber, ETag: part.ETag}
	}
	if _, err := m.core.CompleteMultipartUpload(ctx, bucket, key, uploadID, complete, minio.PutObjectOptions{}); err != nil {
		return fmt.Errorf("complete multipart upload: %w", err)
	}
	return nil
}

func (m *MinIOBackend) AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error {
	if err := m.core.AbortMultipartUpload(ctx, bucket, key, uploadID); err != nil {
		return fmt.Errorf("abort multipart upload: %w", err)
	}
	return nil
}

// ===================================================================================================

func (m *MinIOBackend) HeadObject(ctx context.Context, bucket, key string) (int64, error) {
	info, err := m.core.Client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isMinIONotFound(err) {
			return 0, fmt.Errorf("head %s: %w", key, ErrNotFound)
		}
		return 0, fmt.Errorf("stat object: %w", err)
	}
	return info.Size, nil
}

func (m *MinIOBackend) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	// Core.GetObject performs the request eagerly, so open failures surface
	// here rather than on the first Read.
	body, _, _, err := m.core.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		if isMinIONotFound(err) {
			return nil, fmt.Errorf("get %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("get object: %w", err)
	}
	return body, nil
}

// ===================================================================================================

func (m *MinIOBackend) ListMultipartUploads(ctx context.Context, bucket, prefix string) ([]PendingUpload, error) {
	var uploads []PendingUpload
	for info := range m.core.Client.ListIncompleteUploads(ctx, bucket, prefix, true) {
		if info.Err != nil {
			return nil, fmt.Errorf("list multipart uploads: %w", info.Err)
		}
		uploads = append(uploads, PendingUpload{
			Key:       info.Key,
			UploadID:  info.UploadID,
			Initiated: info.Initiated,
		})
	}
	return uploads, nil
}

func (m *MinIOBackend) ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	for obj := range m.core.Client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects: %w", obj.Err)
		}
		objects = append(objects, ObjectInfo{Key: obj.Key, Size: obj.Size})
	}
	return objects, nil
}

func (m *MinIOBackend) DeleteObject(ctx context.Context, bucket, key string) error {
	if err := m.core.Client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func isMinIONotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.StatusCode == http.StatusNotFound || resp.Code == "NoSuchKey"
}

var _ StorageJanitor = (*MinIOBackend)(nil)
