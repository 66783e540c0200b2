package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

var ErrInvalidName = errors.New("invalid report name")

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Sink uploads reports to a bucket, below an optional key prefix.
type S3Sink struct {
	uploader uploader
	bucket   string
	prefix   string
	logger   *zap.Logger
}

// NewS3Sink loads AWS credentials and region from the environment.
func NewS3Sink(ctx context.Context, bucket, prefix string, logger *zap.Logger) (*S3Sink, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket must not be empty")
	}
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &S3Sink{
		uploader: manager.NewUploader(s3.NewFromConfig(cfg)),
		bucket:   bucket,
		prefix:   prefix,
		logger:   logger,
	}, nil
}

func (s *S3Sink) Write(ctx context.Context, name string, data []byte) error {
	if err := checkName(name); err != nil {
		return err
	}
	key := s.prefix + name
	out, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType(name)),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	s.logger.Info("report uploaded", zap.String("bucket", s.bucket), zap.String("location", out.Location))
	return nil
}

// FileSink writes reports into a local directory.
type FileSink struct {
	dir string
}

func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

func (s *FileSink) Write(_ context.Context, name string, data []byte) error {
	if err := checkName(name); err != nil {
		return err
	}
	path := filepath.Join(s.dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func checkName(name string) error {
	if name == "" || filepath.IsAbs(name) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func contentType(name string) string {
	switch filepath.Ext(name) {
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	}
	return "application/octet-stream"
}
