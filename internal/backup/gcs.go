// Package backup copies archived export files to Google Cloud Storage so the
// on-disk archive directory is not the only copy.
package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"
)

// Uploader writes archived files into one GCS bucket under the archives/
// prefix.
type Uploader struct {
	bucket string
}

// NewUploader returns an Uploader targeting the given bucket. Credentials
// come from the environment, same as the rest of the GCP tooling.
func NewUploader(bucket string) *Uploader {
	return &Uploader{bucket: bucket}
}

// Upload copies one local file to gs://<bucket>/archives/<basename>.
func (u *Uploader) Upload(ctx context.Context, path string) error {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("Upload: create storage client: %w", err)
	}
	defer client.Close()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("Upload: %w", err)
	}
	defer f.Close()

	object := "archives/" + filepath.Base(path)
	wc := client.Bucket(u.bucket).Object(object).NewWriter(ctx)
	wc.ContentType = "text/csv"

	if _, err := io.Copy(wc, f); err != nil {
		wc.Close()
		return fmt.Errorf("Upload: writing gs://%s/%s: %w", u.bucket, object, err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("Upload: closing gs://%s/%s: %w", u.bucket, object, err)
	}
	return nil
}
