package resultstore

import (
	"bytes"
	"context"
	"io"

	"github.com/minio/minio-go/v7"
)

// MinioBlobStore implements BlobStore on a MinIO bucket.
type MinioBlobStore struct {
	client *minio.Client
	bucket string
}

// NewMinioBlobStore creates a MinioBlobStore writing to the given bucket.
func NewMinioBlobStore(client *minio.Client, bucket string) *MinioBlobStore {
	return &MinioBlobStore{client: client, bucket: bucket}
}

// PutResultPayload stores a benchmark result payload under key.
func (s *MinioBlobStore) PutResultPayload(ctx context.Context, key string, payload []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, key,
		bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/json"})
	return err
}

// GetResultPayload retrieves a benchmark result payload by key.
func (s *MinioBlobStore) GetResultPayload(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}
