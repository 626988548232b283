// Package archive uploads sample run payloads to S3-compatible object
// storage and fetches them back.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

const contentType = "application/msgpack"

// Uploader is the subset of manager.Uploader used by Archive.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Downloader is the subset of manager.Downloader used by Archive.
type Downloader interface {
	Download(ctx context.Context, w io.WriterAt, input *s3.GetObjectInput, opts ...func(*manager.Downloader)) (int64, error)
}

// Config holds the bucket location and optional static credentials. An
// empty Endpoint means AWS S3; any other endpoint is addressed path-style.
type Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// Archive stores run payloads as objects named Prefix + id + ".msgpack".
type Archive struct {
	uploader   Uploader
	downloader Downloader
	bucket     string
	prefix     string
	log        zerolog.Logger
}

// New creates an archive backed by an S3 client built from cfg and the
// default AWS credential chain.
func New(ctx context.Context, cfg Config, log zerolog.Logger) (*Archive, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewWithClients(manager.NewUploader(client), manager.NewDownloader(client), cfg.Bucket, cfg.Prefix, log), nil
}

// NewWithClients creates an archive on existing transfer clients.
func NewWithClients(up Uploader, down Downloader, bucket, prefix string, log zerolog.Logger) *Archive {
	return &Archive{
		uploader:   up,
		downloader: down,
		bucket:     bucket,
		prefix:     prefix,
		log:        log.With().Str("component", "archive").Str("bucket", bucket).Logger(),
	}
}

// Key returns the object key of a run.
func (a *Archive) Key(id string) string {
	prefix := a.prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + id + ".msgpack"
}

// Put uploads a payload and returns its object key.
func (a *Archive) Put(ctx context.Context, id string, payload []byte) (string, error) {
	key := a.Key(id)
	_, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	a.log.Info().Str("key", key).Int("bytes", len(payload)).Msg("Archived run")
	return key, nil
}

// Get downloads the payload of a run.
func (a *Archive) Get(ctx context.Context, id string) ([]byte, error) {
	key := a.Key(id)
	buf := manager.NewWriteAtBuffer(nil)
	n, err := a.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", key, err)
	}
	a.log.Debug().Str("key", key).Int64("bytes", n).Msg("Fetched archived run")
	return buf.Bytes(), nil
}
