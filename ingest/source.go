package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/warp/trialdb/trial"
)

// S3Options configures access to s3:// input sources.
type S3Options struct {
	Region          string
	Endpoint        string // optional; custom endpoint such as MinIO
	PathStyle       bool
	AccessKeyID     string // optional (falls back to default credentials chain)
	SecretAccessKey string
	SessionToken    string
}

// ObjectGetter is the part of the S3 client used to fetch input objects.
type ObjectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Source opens input by location: a local path or s3://bucket/key.
type Source struct {
	S3 S3Options

	// newS3 builds the client lazily so local-only runs never load AWS config.
	newS3 func(ctx context.Context, opts S3Options) (ObjectGetter, error)
}

// NewSource creates a Source using the real S3 client for s3:// locations.
func NewSource(opts S3Options) *Source {
	return &Source{S3: opts, newS3: newS3Client}
}

// NewSourceWithClient creates a Source that fetches s3:// locations through c.
func NewSourceWithClient(c ObjectGetter) *Source {
	return &Source{newS3: func(context.Context, S3Options) (ObjectGetter, error) { return c, nil }}
}

// Open returns a reader for location. Missing input is a ConfigurationError.
func (s *Source) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	if strings.HasPrefix(location, "s3://") {
		return s.openS3(ctx, location)
	}
	f, err := os.Open(location)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &trial.ConfigurationError{Op: "open input", Err: err}
		}
		return nil, fmt.Errorf("opening %s: %w", location, err)
	}
	return f, nil
}

// Read opens location and parses it.
func (s *Source) Read(ctx context.Context, location string) ([]trial.Row, error) {
	rc, err := s.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return Parse(rc)
}

func (s *Source) openS3(ctx context.Context, location string) (io.ReadCloser, error) {
	bucket, key, err := splitS3(location)
	if err != nil {
		return nil, &trial.ConfigurationError{Op: "parse input location", Err: err}
	}
	client, err := s.newS3(ctx, s.S3)
	if err != nil {
		return nil, &trial.ConfigurationError{Op: "configure s3", Err: err}
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		var nsk *types.NoSuchKey
		var nsb *types.NoSuchBucket
		if errors.As(err, &nsk) || errors.As(err, &nsb) {
			return nil, &trial.ConfigurationError{Op: "open input", Err: err}
		}
		return nil, fmt.Errorf("get %s: %w", location, err)
	}
	return out.Body, nil
}

func splitS3(location string) (bucket, key string, err error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", err
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid s3 location %q: want s3://bucket/key", location)
	}
	return bucket, key, nil
}

func newS3Client(ctx context.Context, opts S3Options) (ObjectGetter, error) {
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, opts.SessionToken)))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.PathStyle {
			o.UsePathStyle = true
		}
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	}), nil
}
