package remote

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
)

type recordingPutter struct {
	bucket, key, contentType string
	data                     string
	err                      error
}

func (p *recordingPutter) PutObject(_ context.Context, bucket, object string, r io.Reader, _ int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if p.err != nil {
		return minio.UploadInfo{}, p.err
	}
	b, _ := io.ReadAll(r)
	p.bucket, p.key, p.contentType, p.data = bucket, object, opts.ContentType, string(b)
	return minio.UploadInfo{Bucket: bucket, Key: object, Size: int64(len(b))}, nil
}

func TestMinioBlobStorePut(t *testing.T) {
	p := &recordingPutter{}
	s := newMinioBlobStore(p, BlobOptions{Endpoint: "s3.local:9000", Bucket: "photos"})

	key := PhotoKey("job 1", "abc", "/tmp/IMG 01.jpg")
	if key != "jobs/job 1/abc-IMG 01.jpg" {
		t.Fatalf("PhotoKey = %q", key)
	}
	url, err := s.Put(context.Background(), key, strings.NewReader("jpeg"), 4, "image/jpeg")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if p.bucket != "photos" || p.key != key || p.contentType != "image/jpeg" || p.data != "jpeg" {
		t.Fatalf("PutObject got %+v", p)
	}
	if want := "http://s3.local:9000/photos/jobs/job%201/abc-IMG%2001.jpg"; url != want {
		t.Fatalf("url = %q, want %q", url, want)
	}
}

func TestMinioBlobStorePublicBaseAndFailure(t *testing.T) {
	p := &recordingPutter{}
	s := newMinioBlobStore(p, BlobOptions{Endpoint: "x", Bucket: "b", PublicBaseURL: "https://cdn.example.com/media/"})
	url, err := s.Put(context.Background(), "k.bin", strings.NewReader(""), 0, "")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if url != "https://cdn.example.com/media/k.bin" || p.contentType != "application/octet-stream" {
		t.Fatalf("url=%q contentType=%q", url, p.contentType)
	}

	p.err = errors.New("connection reset")
	if _, err := s.Put(context.Background(), "k.bin", strings.NewReader(""), 0, ""); !IsNetwork(err) {
		t.Fatalf("failed upload: err = %v, want NetworkError", err)
	}
}

func TestNewBlobStoreWithoutBucketIsNoop(t *testing.T) {
	s, err := NewBlobStore(BlobOptions{})
	if err != nil {
		t.Fatalf("NewBlobStore: %v", err)
	}
	if _, err := s.Put(context.Background(), "k", strings.NewReader("x"), 1, ""); !errors.Is(err, ErrBlobNotConfigured) {
		t.Fatalf("noop Put: err = %v", err)
	}
	if _, err := NewBlobStore(BlobOptions{Bucket: "b"}); err == nil {
		t.Fatal("expected error for bucket without endpoint")
	}
}
