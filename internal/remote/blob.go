package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrBlobNotConfigured is returned when no blob storage bucket is configured.
var ErrBlobNotConfigured = errors.New("blob storage not configured")

// BlobStore uploads binary attachments and returns their public URL.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
}

// BlobOptions configures an S3-compatible blob store.
type BlobOptions struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	// PublicBaseURL prefixes object keys in returned URLs. Empty means
	// <scheme>://<endpoint>/<bucket>.
	PublicBaseURL string
}

// objectPutter is the part of *minio.Client the blob store needs.
type objectPutter interface {
	PutObject(ctx context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// MinioBlobStore stores objects in an S3-compatible bucket.
type MinioBlobStore struct {
	client     objectPutter
	bucket     string
	publicBase string
}

// Put uploads r under key. size may be -1 when unknown.
func (s *MinioBlobStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", &NetworkError{Op: "put object " + key, Err: err}
	}
	return s.publicBase + "/" + escapeKey(key), nil
}

// NoopBlobStore is used when blob storage is not configured.
type NoopBlobStore struct{}

func (NoopBlobStore) Put(context.Context, string, io.Reader, int64, string) (string, error) {
	return "", ErrBlobNotConfigured
}

// NewBlobStore returns NoopBlobStore when opts has no bucket and a
// MinioBlobStore otherwise.
func NewBlobStore(opts BlobOptions) (BlobStore, error) {
	if opts.Bucket == "" {
		return NoopBlobStore{}, nil
	}
	if opts.Endpoint == "" {
		return nil, errors.New("blob storage: endpoint is required when a bucket is set")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create blob client: %w", err)
	}
	return newMinioBlobStore(client, opts), nil
}

func newMinioBlobStore(client objectPutter, opts BlobOptions) *MinioBlobStore {
	base := strings.TrimRight(opts.PublicBaseURL, "/")
	if base == "" {
		scheme := "http"
		if opts.UseSSL {
			scheme = "https"
		}
		base = scheme + "://" + opts.Endpoint + "/" + opts.Bucket
	}
	return &MinioBlobStore{client: client, bucket: opts.Bucket, publicBase: base}
}

// PhotoKey is the object key for a job photo: jobs/<job>/<id>-<file>.
func PhotoKey(jobID, id, fileName string) string {
	return path.Join("jobs", jobID, id+"-"+path.Base(fileName))
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
