package store

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ArtifactStore keeps rendered report artifacts (HTML) in a MinIO bucket.
type ArtifactStore struct {
	client *minio.Client
	bucket string
}

func NewArtifactStore(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*ArtifactStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("minio bucket check: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("minio make bucket: %w", err)
		}
	}

	return &ArtifactStore{client: client, bucket: bucket}, nil
}

// UploadHTML stores a rendered report under the given object key.
func (s *ArtifactStore) UploadHTML(ctx context.Context, key string, html []byte) error {
	reader := bytes.NewReader(html)
	_, err := s.client.PutObject(ctx, s.bucket, key, reader, int64(len(html)), minio.PutObjectOptions{
		ContentType: "text/html; charset=utf-8",
	})
	return err
}

// Download retrieves the object bytes and content type.
func (s *ArtifactStore) Download(ctx context.Context, key string) ([]byte, string, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", err
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return nil, "", err
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, "", err
	}
	return data, info.ContentType, nil
}

// Remove deletes an object.
func (s *ArtifactStore) Remove(ctx context.Context, key string) error {
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}
