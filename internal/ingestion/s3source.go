package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const maxObjectBytes = 64 * 1024 * 1024

type getObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Options locates the bucket holding raw ingestion files.
type S3Options struct {
	Bucket    string
	Region    string
	Endpoint  string // optional, for MinIO or LocalStack
	PathStyle bool
	Retries   int
}

// S3Source reads raw files from an S3 bucket, retrying transient failures.
type S3Source struct {
	client      getObjectAPI
	bucket      string
	attempts    int
	backoffBase time.Duration
	backoffMax  time.Duration
}

// NewS3Source loads AWS credentials from the default chain and builds the client.
func NewS3Source(ctx context.Context, opts S3Options) (*S3Source, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3 source: bucket is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})
	return newS3Source(client, opts.Bucket, opts.Retries), nil
}

func newS3Source(client getObjectAPI, bucket string, attempts int) *S3Source {
	if attempts < 1 {
		attempts = 1
	}
	return &S3Source{
		client:      client,
		bucket:      bucket,
		attempts:    attempts,
		backoffBase: 500 * time.Millisecond,
		backoffMax:  10 * time.Second,
	}
}

// Fetch downloads key from the bucket. Missing keys fail immediately without retrying.
func (s *S3Source) Fetch(ctx context.Context, key string) ([]byte, error) {
	var body []byte
	err := retry(ctx, s.attempts, s.backoffBase, s.backoffMax, retryableS3Error, func() error {
		b, err := s.get(ctx, key)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch s3://%s/%s: %w", s.bucket, key, err)
	}
	return body, nil
}

func (s *S3Source) get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %v", ErrObjectNotFound, err)
		}
		return nil, err
	}
	defer out.Body.Close()

	body, err := io.ReadAll(io.LimitReader(out.Body, maxObjectBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	if len(body) > maxObjectBytes {
		return nil, fmt.Errorf("object too large (>%d bytes)", maxObjectBytes)
	}
	return body, nil
}

func retryableS3Error(err error) bool {
	return !errors.Is(err, ErrObjectNotFound) && !errors.Is(err, context.Canceled)
}
