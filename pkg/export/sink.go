package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"go.uber.org/zap"

	"github.com/invoicing-editor/pkg/logging"
)

// Sink stores an exported document and reports where it went.
type Sink interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
}

// DirSink writes exports into a local directory.
type DirSink struct {
	Dir string
}

func (s DirSink) Save(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if name == "" || filepath.Base(name) != name {
		return "", fmt.Errorf("export: invalid file name %q", name)
	}
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("export: %w", err)
	}
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("export: %w", err)
	}
	return p, nil
}

// Uploader is the part of s3manager.Uploader used by S3Sink.
type Uploader interface {
	UploadWithContext(ctx aws.Context, input *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error)
}

// S3Sink uploads exports to an S3 bucket.
type S3Sink struct {
	Bucket   string
	Prefix   string
	uploader Uploader
	logger   *zap.Logger
}

// NewS3Sink creates a sink using a new AWS session for region. The
// usual AWS environment variables and shared config supply credentials.
func NewS3Sink(region, bucket, prefix string, logger *zap.Logger) (*S3Sink, error) {
	if bucket == "" {
		return nil, errors.New("export: empty S3 bucket")
	}
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("export: aws session: %w", err)
	}
	return NewS3SinkWithUploader(s3manager.NewUploader(sess), bucket, prefix, logger), nil
}

// NewS3SinkWithUploader creates a sink around an existing uploader.
func NewS3SinkWithUploader(u Uploader, bucket, prefix string, logger *zap.Logger) *S3Sink {
	return &S3Sink{Bucket: bucket, Prefix: prefix, uploader: u, logger: logging.OrNop(logger)}
}

func (s *S3Sink) Save(ctx context.Context, name string, data []byte) (string, error) {
	key := path.Join(s.Prefix, name)
	out, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType(name)),
	})
	if err != nil {
		return "", fmt.Errorf("export: upload s3://%s/%s: %w", s.Bucket, key, err)
	}
	s.logger.Info("export uploaded", zap.String("bucket", s.Bucket), zap.String("key", key))
	if out != nil && out.Location != "" {
		return out.Location, nil
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.Bucket, key), nil
}

func contentType(name string) string {
	switch filepath.Ext(name) {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	}
	return "application/octet-stream"
}
