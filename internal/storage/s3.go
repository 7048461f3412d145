package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"verax/internal/logger"
)

// S3Config configures an S3-compatible bucket.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	// PublicBaseURL prefixes object keys in returned URLs; derived from bucket and region when empty.
	PublicBaseURL string
}

// S3Uploader stores objects in an S3-compatible bucket.
type S3Uploader struct {
	client *s3.Client
	cfg    S3Config
	log    zerolog.Logger
}

// NewS3Uploader creates an uploader. Static credentials are used when both keys are set,
// otherwise the default AWS credential chain applies.
func NewS3Uploader(ctx context.Context, cfg S3Config) (*S3Uploader, error) {
	const op = "NewS3Uploader"

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to load AWS config: %w", op, err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Uploader{client: client, cfg: cfg, log: logger.WithComponent("storage")}, nil
}

func (u *S3Uploader) Upload(ctx context.Context, objectPath, contentType string, r io.Reader) (Object, error) {
	const op = "S3Uploader.Upload"

	body, size, err := sizedBody(r)
	if err != nil {
		return Object{}, fmt.Errorf("%s: failed to read %s: %w", op, objectPath, err)
	}
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.cfg.Bucket),
		Key:           aws.String(objectPath),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return Object{}, fmt.Errorf("%s: failed to upload %s: %w", op, objectPath, err)
	}

	u.log.Info().
		Str("bucket", u.cfg.Bucket).
		Str("key", objectPath).
		Int64("size", size).
		Msg("Uploaded object")

	return Object{
		Path:        objectPath,
		URL:         u.publicURL(objectPath),
		ContentType: contentType,
		Size:        size,
	}, nil
}

func (u *S3Uploader) Delete(ctx context.Context, objectPath string) error {
	_, err := u.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(u.cfg.Bucket),
		Key:    aws.String(objectPath),
	})
	if err != nil {
		return fmt.Errorf("S3Uploader.Delete: %s: %w", objectPath, err)
	}
	return nil
}

func (u *S3Uploader) publicURL(objectPath string) string {
	base := strings.TrimRight(u.cfg.PublicBaseURL, "/")
	if base == "" {
		base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", u.cfg.Bucket, u.cfg.Region)
	}
	return base + "/" + objectPath
}

// sizedBody returns a seekable body and its remaining length. PutObject needs both to sign
// requests to plain-HTTP endpoints such as MinIO.
func sizedBody(r io.Reader) (io.ReadSeeker, int64, error) {
	if rs, ok := r.(io.ReadSeeker); ok {
		start, err := rs.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, 0, err
		}
		end, err := rs.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, err
		}
		if _, err := rs.Seek(start, io.SeekStart); err != nil {
			return nil, 0, err
		}
		return rs, end - start, nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, err
	}
	return bytes.NewReader(data), int64(len(data)), nil
}
