package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
)

// ObjectWriter opens a writer for an object. It lets tests replace the bucket.
type ObjectWriter func(ctx context.Context, bucket, objectPath string) io.WriteCloser

type GCSClient struct {
	client     *storage.Client
	bucketName string
	newWriter  ObjectWriter
}

func NewGCSClient(ctx context.Context, bucketName string) (*GCSClient, error) {
	if bucketName == "" {
		return nil, errors.New("gcs bucket name is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcs client: %w", err)
	}

	g := &GCSClient{client: client, bucketName: bucketName}
	g.newWriter = func(ctx context.Context, bucket, objectPath string) io.WriteCloser {
		return g.client.Bucket(bucket).Object(objectPath).NewWriter(ctx)
	}
	return g, nil
}

// NewGCSClientWithWriter builds a client that writes through w instead of a real bucket.
func NewGCSClientWithWriter(bucketName string, w ObjectWriter) *GCSClient {
	return &GCSClient{bucketName: bucketName, newWriter: w}
}

// Upload streams content to objectPath and returns the gs:// URI of the object.
func (g *GCSClient) Upload(ctx context.Context, objectPath string, content io.Reader) (string, error) {
	writer := g.newWriter(ctx, g.bucketName, objectPath)
	if _, err := io.Copy(writer, content); err != nil {
		writer.Close()
		return "", fmt.Errorf("failed to copy content: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close writer: %w", err)
	}

	return fmt.Sprintf("gs://%s/%s", g.bucketName, objectPath), nil
}

// ArchiveFile uploads the local file at localPath to objectPath.
func (g *GCSClient) ArchiveFile(ctx context.Context, objectPath, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	return g.Upload(ctx, strings.TrimPrefix(objectPath, "/"), f)
}

func (g *GCSClient) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}
