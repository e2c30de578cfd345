// Package s3 archives rendered invoices in an S3-compatible bucket.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"carrental/internal/app/policies"
)

const invoicePrefix = "invoices/"

type Options struct {
	Endpoint  string
	UseSSL    bool
	AccessKey string
	SecretKey string
	Bucket    string
	// Region skips the bucket location lookup when set.
	Region string
}

// InvoiceArchive keeps one private object per booking and returns its s3:// location.
type InvoiceArchive struct {
	bucket         string
	client         *minio.Client
	logger         *slog.Logger
	bucketInitOnce sync.Once
	bucketInitErr  error
}

func NewInvoiceArchive(opts Options, logger *slog.Logger) (*InvoiceArchive, error) {
	cleanEndpoint := strings.TrimSpace(opts.Endpoint)
	if cleanEndpoint == "" {
		return nil, errors.New("s3: endpoint is required")
	}
	bucket := strings.TrimSpace(opts.Bucket)
	if bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	minioClient, err := minio.New(parseEndpoint(cleanEndpoint), &minio.Options{
		Creds:  credentials.NewStaticV4(strings.TrimSpace(opts.AccessKey), strings.TrimSpace(opts.SecretKey), ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3: create client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &InvoiceArchive{bucket: bucket, client: minioClient, logger: logger}, nil
}

func (a *InvoiceArchive) Store(ctx context.Context, bookingID string, body []byte) (string, error) {
	key := objectKey(bookingID)
	if key == "" {
		return "", errors.New("s3: booking id is required")
	}
	if err := a.ensureBucket(ctx); err != nil {
		return "", err
	}
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType:  "text/plain; charset=utf-8",
		UserMetadata: map[string]string{"booking-id": bookingID},
	})
	if err != nil {
		return "", fmt.Errorf("s3: put invoice %s: %w", bookingID, err)
	}
	location := fmt.Sprintf("s3://%s/%s", a.bucket, key)
	a.logger.Info("invoice archived", "bucket", a.bucket, "key", key)
	return location, nil
}

func (a *InvoiceArchive) ensureBucket(ctx context.Context) error {
	a.bucketInitOnce.Do(func() {
		exists, err := a.client.BucketExists(ctx, a.bucket)
		if err != nil {
			a.bucketInitErr = fmt.Errorf("s3: check bucket: %w", err)
			return
		}
		if exists {
			return
		}
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
			a.bucketInitErr = fmt.Errorf("s3: create bucket: %w", err)
		}
	})
	return a.bucketInitErr
}

func objectKey(bookingID string) string {
	id := strings.Trim(strings.TrimSpace(bookingID), "/")
	if id == "" {
		return ""
	}
	return invoicePrefix + id + ".txt"
}

func parseEndpoint(endpoint string) string {
	if parsed, err := url.Parse(endpoint); err == nil && parsed.Host != "" {
		return parsed.Host
	}
	return endpoint
}

var _ policies.InvoiceArchive = (*InvoiceArchive)(nil)
