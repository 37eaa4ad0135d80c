package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/objectstorage"

	"github.com/quickshadows/scripts/config"
)

// OCIAPI is the subset of objectstorage.ObjectStorageClient used by OCIBackend.
type OCIAPI interface {
	CreateMultipartUpload(ctx context.Context, request objectstorage.CreateMultipartUploadRequest) (objectstorage.CreateMultipartUploadResponse, error)
	UploadPart(ctx context.Context, request objectstorage.UploadPartRequest) (objectstorage.UploadPartResponse, error)
	CommitMultipartUpload(ctx context.Context, request objectstorage.CommitMultipartUploadRequest) (objectstorage.CommitMultipartUploadResponse, error)
	AbortMultipartUpload(ctx context.Context, request objectstorage.AbortMultipartUploadRequest) (objectstorage.AbortMultipartUploadResponse, error)
	HeadObject(ctx context.Context, request objectstorage.HeadObjectRequest) (objectstorage.HeadObjectResponse, error)
	GetObject(ctx context.Context, request objectstorage.GetObjectRequest) (objectstorage.GetObjectResponse, error)
	ListMultipartUploads(ctx context.Context, request objectstorage.ListMultipartUploadsRequest) (objectstorage.ListMultipartUploadsResponse, error)
	ListObjects(ctx context.Context, request objectstorage.ListObjectsRequest) (objectstorage.ListObjectsResponse, error)
	DeleteObject(ctx context.Context, request objectstorage.DeleteObjectRequest) (objectstorage.DeleteObjectResponse, error)
}

// OCIBackend drives OCI Object Storage through its native multipart API.
// Buckets live inside a tenancy namespace resolved once at construction.
type OCIBackend struct {
	client    OCIAPI
	namespace string
}

func NewOCIBackend(client OCIAPI, namespace string) *OCIBackend {
	return &OCIBackend{client: client, namespace: namespace}
}

// NewOCIWithConfig loads the OCI config file, installs the tuned HTTP client,
// applies the host override and resolves the namespace when none is given.
func NewOCIWithConfig(ctx context.Context, cfg Config) (*OCIBackend, error) {
	provider, err := config.LoadOCIConfig(cfg.OCIConfigFile, cfg.OCIProfile)
	if err != nil {
		return nil, err
	}

	client, err := objectstorage.NewObjectStorageClientWithConfigurationProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}
	httpClient, err := newHTTPClient()
	if err != nil {
		return nil, err
	}
	client.HTTPClient = httpClient

	// Use the host override if provided, otherwise use the SDK default
	if cfg.Host != "" {
		client.Host = cfg.Host
	}

	namespace := cfg.Namespace
	if namespace == "" {
		resp, err := client.GetNamespace(ctx, objectstorage.GetNamespaceRequest{})
		if err != nil {
			return nil, fmt.Errorf("get namespace: %w", err)
		}
		namespace = *resp.Value
	}

	return NewOCIBackend(client, namespace), nil
}

// ===================================================================================================

func (o *OCIBackend) CreateMultipartUpload(ctx context.Context, bucket, key string) (string, error) {
	resp, err := o.client.CreateMultipartUpload(ctx, objectstorage.CreateMultipartUploadRequest{
		NamespaceName: common.String(o.namespace),
		BucketName:    common.String(bucket),
		CreateMultipartUploadDetails: objectstorage.CreateMultipartUploadDetails{
			Object: common.String(key),
		},
	})
	if err != nil {
		return "", fmt.Errorf("create multipart upload: %w", err)
	}
	if resp.UploadId == nil {
		return "", fmt.Errorf("create multipart upload: empty upload id")
	}
	return *resp.UploadId, nil
}

func (o *OCIBackend) UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int, body io.ReadSeeker, size int64) (string, error) {
	resp, err := o.client.UploadPart(ctx, objectstorage.UploadPartRequest{
		NamespaceName:  common.String(o.namespace),
		BucketName:     common.String(bucket),
		ObjectName:     common.String(key),
		UploadId:       common.String(uploadID),
		UploadPartNum:  common.Int(partNumber),
		ContentLength:  common.Int64(size),
		UploadPartBody: io.NopCloser(body),
	})
	if err != nil {
		return "", fmt.Errorf("upload part %d: %w", partNumber, err)
	}
	return derefString(resp.ETag), nil
}

func (o *OCIBackend) CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []CompletedPart) error {
	commit := make([]objectstorage.CommitMultipartUploadPartDetails, len(parts))
	for i, part := range parts {
		commit[i] = objectstorage.CommitMultipartUploadPartDetails{
			PartNum: common.Int(part.PartNumber),
			Etag:    common.String(part.ETag),
		}
	}

	_, err := o.client.CommitMultipartUpload(ctx, objectstorage.CommitMultipartUploadRequest{
		NamespaceName: common.String(o.namespace),
		BucketName:    common.String(bucket),
		ObjectName:    common.String(key),
		UploadId:      common.String(uploadID),
		CommitMultipartUploadDetails: objectstorage.CommitMultipartUploadDetails{
			PartsToCommit: commit,
		},
	})
	if err != nil {
		return fmt.Errorf("commit multipart upload: %w", err)
	}
	return nil
}

func (o *OCIBackend) AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error {
	_, err := o.client.AbortMultipartUpload(ctx, objectstorage.AbortMultipartUploadRequest{
		NamespaceName: common.String(o.namespace),
		BucketName:    common.String(bucket),
		ObjectName:    common.String(key),
		UploadId:      common.String(uploadID),
	})
	if err != nil {
		return fmt.Errorf("abort multipart upload: %w", err)
	}
	return nil
}

// ===================================================================================================

func (o *OCIBackend) HeadObject(ctx context.Context, bucket, key string) (int64, error) {
	resp, err := o.client.HeadObject(ctx, objectstorage.HeadObjectRequest{
		NamespaceName: common.String(o.namespace),
		BucketName:    common.String(bucket),
		ObjectName:    common.String(key),
	})
	if err != nil {
		if isOCINotFound(err) {
			return 0, fmt.Errorf("head %s: %w", key, ErrNotFound)
		}
		return 0, fmt.Errorf("head object: %w", err)
	}
	if resp.ContentLength == nil {
		return 0, nil
	}
	return *resp.ContentLength, nil
}

func (o *OCIBackend) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	resp, err := o.client.GetObject(ctx, objectstorage.GetObjectRequest{
		NamespaceName: common.String(o.namespace),
		BucketName:    common.String(bucket),
		ObjectName:    common.String(key),
	})
	if err != nil {
		if isOCINotFound(err) {
			return nil, fmt.Errorf("get %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("get object: %w", err)
	}
	return resp.Content, nil
}

// ===================================================================================================

// ListMultipartUploads pages through every in-progress upload of the bucket;
// the OCI API has no prefix filter so it is applied here.
func (o *OCIBackend) ListMultipartUploads(ctx context.Context, bucket, prefix string) ([]PendingUpload, error) {
	var (
		uploads []PendingUpload
		page    *string
	)
	for {
		resp, err := o.client.ListMultipartUploads(ctx, objectstorage.ListMultipartUploadsRequest{
			NamespaceName: common.String(o.namespace),
			BucketName:    common.String(bucket),
			Limit:         common.Int(1000),
			Page:          page,
		})
		if err != nil {
			return nil, fmt.Errorf("list multipart uploads: %w", err)
		}
		for _, item := range resp.Items {
			name := derefString(item.Object)
			if !strings.HasPrefix(name, prefix) {
				continue
			}
			u := PendingUpload{Key: name, UploadID: derefString(item.UploadId)}
			if item.TimeCreated != nil {
				u.Initiated = item.TimeCreated.Time
			}
			uploads = append(uploads, u)
		}
		if resp.OpcNextPage == nil {
			return uploads, nil
		}
		page = resp.OpcNextPage
	}
}

func (o *OCIBackend) ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	var (
		objects []ObjectInfo
		start   *string
	)
	for {
		resp, err := o.client.ListObjects(ctx, objectstorage.ListObjectsRequest{
			NamespaceName: common.String(o.namespace),
			BucketName:    common.String(bucket),
			Prefix:        common.String(prefix),
			Start:         start,
			Limit:         common.Int(1000),
			Fields:        common.String("name,size"),
		})
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range resp.Objects {
			info := ObjectInfo{Key: derefString(obj.Name)}
			if obj.Size != nil {
				info.Size = *obj.Size
			}
			objects = append(objects, info)
		}
		if resp.NextStartWith == nil {
			return objects, nil
		}
		start = resp.NextStartWith
	}
}

func (o *OCIBackend) DeleteObject(ctx context.Context, bucket, key string) error {
	_, err := o.client.DeleteObject(ctx, objectstorage.DeleteObjectRequest{
		NamespaceName: common.String(o.namespace),
		BucketName:    common.String(bucket),
		ObjectName:    common.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func isOCINotFound(err error) bool {
	var serviceErr common.ServiceError
	return errors.As(err, &serviceErr) && serviceErr.GetHTTPStatusCode() == http.StatusNotFound
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ StorageJanitor = (*OCIBackend)(nil)
