package store

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config contains S3 publishing settings.
type S3Config struct {
	Enabled      bool          `yaml:"enabled"`
	Bucket       string        `yaml:"bucket"`
	Region       string        `yaml:"region"`
	Prefix       string        `yaml:"prefix"`
	Endpoint     string        `yaml:"endpoint"`       // S3-compatible endpoint, empty for AWS
	UsePathStyle bool          `yaml:"use_path_style"` // Required by most S3-compatible stores
	PresignTTL   time.Duration `yaml:"presign_ttl"`
}

// Publisher uploads a result and returns a URL clients can fetch it from.
type Publisher interface {
	Publish(ctx context.Context, d *Download) (string, error)
}

// S3Publisher publishes results to an S3 bucket as presigned GET URLs.
type S3Publisher struct {
	client  *s3.Client
	presign *s3.PresignClient
	cfg     S3Config
}

// NewS3Publisher loads credentials from the standard AWS chain.
func NewS3Publisher(ctx context.Context, cfg S3Config) (*S3Publisher, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = DefaultTTL
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Publisher{
		client:  client,
		presign: s3.NewPresignClient(client),
		cfg:     cfg,
	}, nil
}

// Key returns the object key of a download.
func (p *S3Publisher) Key(d *Download) string {
	return path.Join(p.cfg.Prefix, d.RunID, d.Filename)
}

// Publish uploads the artifact and presigns a GET for it.
func (p *S3Publisher) Publish(ctx context.Context, d *Download) (string, error) {
	if d.Artifact == nil {
		return "", fmt.Errorf("download has no artifact")
	}

	f, err := d.Artifact.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()

	size, err := d.Artifact.Size()
	if err != nil {
		return "", err
	}

	key := p.Key(d)
	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.cfg.Bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String("application/pdf"),
	})
	if err != nil {
		return "", fmt.Errorf("upload s3://%s/%s: %w", p.cfg.Bucket, key, err)
	}

	req, err := p.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(p.cfg.Bucket),
		Key:                        aws.String(key),
		ResponseContentDisposition: aws.String(fmt.Sprintf("attachment; filename=%q", d.Filename)),
	}, s3.WithPresignExpires(p.cfg.PresignTTL))
	if err != nil {
		return "", fmt.Errorf("presign s3://%s/%s: %w", p.cfg.Bucket, key, err)
	}
	return req.URL, nil
}

var _ Publisher = (*S3Publisher)(nil)
