package s3blob

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/alanyoungcy/tradexec/internal/domain"
)

// Payloads at or above this size go through the multipart upload manager.
// S3 requires parts of at least 5 MiB.
const multipartThreshold = 8 * 1024 * 1024

// Writer implements domain.BlobWriter against the archive bucket. Small
// objects upload in a single PutObject; anything at or above
// multipartThreshold goes through the concurrent multipart uploader.
type Writer struct {
	client   *Client
	uploader *manager.Uploader
}

func NewWriter(c *Client) *Writer {
	return &Writer{
		client: c,
		uploader: manager.NewUploader(c.api, func(u *manager.Uploader) {
			u.PartSize = multipartThreshold
		}),
	}
}

func (w *Writer) Put(ctx context.Context, key string, data []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(w.client.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}

	if int64(len(data)) >= multipartThreshold {
		if _, err := w.uploader.Upload(ctx, input); err != nil {
			return fmt.Errorf("s3blob: multipart upload %s: %w", key, err)
		}
		return nil
	}

	if _, err := w.client.api.PutObject(ctx, input); err != nil {
		return fmt.Errorf("s3blob: put object %s: %w", key, err)
	}
	return nil
}

var _ domain.BlobWriter = (*Writer)(nil)
