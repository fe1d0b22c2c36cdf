package storage

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Store keeps run artifacts (CSV snapshots) in an S3-compatible bucket.
type Store struct {
	client     *minio.Client
	bucketName string
	region     string
}

func New(ctx context.Context, endpoint, region, bucket, accessKey, secretKey string, useSSL bool) (*Store, error) {
	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, err
	}

	exists, err := cli.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := cli.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return nil, err
		}
	}

	return &Store{client: cli, bucketName: bucket, region: region}, nil
}

// Upload stores one local file under the given object key and returns the
// object URL. Private buckets need a presigned URL instead.
func (s *Store) Upload(ctx context.Context, localPath, key string) (string, error) {
	contentType := "application/octet-stream"
	switch filepath.Ext(localPath) {
	case ".csv":
		contentType = "text/csv"
	case ".json":
		contentType = "application/json"
	case ".log", ".txt":
		contentType = "text/plain"
	}

	_, err := s.client.FPutObject(ctx, s.bucketName, key, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("http://%s/%s/%s", s.client.EndpointURL().Host, s.bucketName, key)
	return url, nil
}

// UploadAndCleanup uploads the file, then removes the local copy. A failed
// removal is only logged; the upload already succeeded.
func (s *Store) UploadAndCleanup(ctx context.Context, localPath, key string) (string, error) {
	url, err := s.Upload(ctx, localPath, key)
	if err != nil {
		return "", err
	}
	if removeErr := os.Remove(localPath); removeErr != nil {
		log.Printf("phase=artifact msg=\"failed to remove local file\" path=%s err=%v", localPath, removeErr)
	}
	return url, nil
}
