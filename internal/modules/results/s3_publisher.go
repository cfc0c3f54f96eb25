package results

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// S3Config configures result archival. An empty Bucket disables it.
type S3Config struct {
	Bucket string
	Prefix string
	Region string
	// Endpoint points at an S3 compatible store (R2, MinIO). Empty uses AWS.
	Endpoint  string
	AccessKey string
	SecretKey string
}

// Enabled reports whether a bucket is configured.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// Uploader is the subset of the S3 upload manager used by the publisher.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Publisher uploads written result files to a bucket
type S3Publisher struct {
	bucket   string
	prefix   string
	uploader Uploader
	log      zerolog.Logger
}

// NewS3Publisher creates a publisher backed by the S3 upload manager.
// Credentials come from AccessKey/SecretKey when set, otherwise from the
// default AWS chain.
func NewS3Publisher(ctx context.Context, cfg S3Config, log zerolog.Logger) (*S3Publisher, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
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

	return NewS3PublisherWithUploader(cfg, manager.NewUploader(client), log), nil
}

// NewS3PublisherWithUploader creates a publisher around an existing uploader
func NewS3PublisherWithUploader(cfg S3Config, uploader Uploader, log zerolog.Logger) *S3Publisher {
	return &S3Publisher{
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		uploader: uploader,
		log:      log.With().Str("component", "s3_publisher").Logger(),
	}
}

// Key returns the object key of a local file for a run.
func (p *S3Publisher) Key(runID, file string) string {
	return path.Join(p.prefix, runID, filepath.Base(file))
}

// Publish uploads files under <prefix>/<runID>/ and returns their keys.
func (p *S3Publisher) Publish(ctx context.Context, runID string, files []string) ([]string, error) {
	keys := make([]string, 0, len(files))
	for _, file := range files {
		key := p.Key(runID, file)
		if err := p.upload(ctx, file, key); err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}

	p.log.Info().
		Str("bucket", p.bucket).
		Str("run_id", runID).
		Int("objects", len(keys)).
		Msg("Results published")

	return keys, nil
}

func (p *S3Publisher) upload(ctx context.Context, file, key string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", file, err)
	}
	defer f.Close()

	_, err = p.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType(file)),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to s3://%s/%s: %w", file, p.bucket, key, err)
	}
	return nil
}

func contentType(file string) string {
	switch filepath.Ext(file) {
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	case ".msgpack":
		return "application/msgpack"
	default:
		return "application/octet-stream"
	}
}
