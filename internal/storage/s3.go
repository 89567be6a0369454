package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/onnwee/vidwrk/internal/config"
)

// S3Backend treats a logical path's segments after the first as the object
// key (a single-segment path is used whole); uploads are prefixed with the
// configured key prefix. A custom endpoint supports S3-compatible stores
// with path-style addressing.
type S3Backend struct {
	client    *s3.S3
	uploader  *s3manager.Uploader
	bucket    string
	keyPrefix string
}

func NewS3Backend(cfg config.S3Config) (*S3Backend, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 backend: bucket is required")
	}

	awsCfg := aws.NewConfig().WithRegion(cfg.Region)
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsCfg = awsCfg.WithCredentials(credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""))
	}
	if cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint).WithS3ForcePathStyle(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("s3 backend: create session: %w", err)
	}

	client := s3.New(sess)
	return &S3Backend{
		client:    client,
		uploader:  s3manager.NewUploaderWithClient(client),
		bucket:    cfg.Bucket,
		keyPrefix: strings.Trim(cfg.KeyPrefix, "/"),
	}, nil
}

func objectKey(path string) string {
	trimmed := strings.TrimLeft(path, "/")
	if i := strings.Index(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

func (b *S3Backend) key(path string) string {
	k := objectKey(path)
	if b.keyPrefix == "" {
		return k
	}
	return b.keyPrefix + "/" + k
}

func (b *S3Backend) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	out, err := b.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectKey(path)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("s3 backend: download %s: %w", path, err)
	}
	return out.Body, nil
}

func (b *S3Backend) Upload(ctx context.Context, path string, body io.Reader) error {
	_, err := b.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(path)),
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("s3 backend: upload %s: %w", path, err)
	}
	return nil
}

func isNotFound(err error) bool {
	type awsErr interface{ Code() string }
	ae, ok := err.(awsErr)
	if !ok {
		return false
	}
	return ae.Code() == s3.ErrCodeNoSuchKey || ae.Code() == "NotFound"
}
