package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds connection settings for S3-compatible object storage
type S3Config struct {
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// s3API is the subset of the S3 client used by S3Source
type s3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads a snapshot object from S3 or any S3-compatible store.
// Freshness is tracked by the object's ETag.
type S3Source struct {
	client s3API
	bucket string
	key    string
}

var _ Source = (*S3Source)(nil)

// IsS3URI reports whether location is an s3:// URI
func IsS3URI(location string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(location)), "s3://")
}

// ParseS3URI splits s3://bucket/key
func ParseS3URI(location string) (bucket, key string, err error) {
	u, err := url.Parse(strings.TrimSpace(location))
	if err != nil {
		return "", "", fmt.Errorf("catalog: invalid snapshot URI: %w", err)
	}
	if !strings.EqualFold(u.Scheme, "s3") || u.Host == "" {
		return "", "", fmt.Errorf("catalog: snapshot URI must look like s3://bucket/key, got %q", location)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("catalog: snapshot URI %q has no object key", location)
	}
	return u.Host, key, nil
}

// NewS3Source creates an S3Source for an s3://bucket/key location
func NewS3Source(ctx context.Context, location string, cfg S3Config) (*S3Source, error) {
	bucket, key, err := ParseS3URI(location)
	if err != nil {
		return nil, err
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("catalog: load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newS3Source(client, bucket, key), nil
}

func newS3Source(client s3API, bucket, key string) *S3Source {
	return &S3Source{client: client, bucket: bucket, key: key}
}

// Stat implements Source
func (s *S3Source) Stat(ctx context.Context) (Stamp, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return Stamp{}, fmt.Errorf("catalog: snapshot is not readable: s3://%s/%s: %w", s.bucket, s.key, err)
	}

	version := aws.ToString(out.ETag)
	if version == "" && out.LastModified != nil {
		version = out.LastModified.UTC().String()
	}
	if version == "" {
		return Stamp{}, errors.New("catalog: snapshot object has neither ETag nor LastModified")
	}
	return Stamp{Location: "s3://" + s.bucket + "/" + s.key, Version: version}, nil
}

// Open implements Source
func (s *S3Source) Open(ctx context.Context) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: get snapshot object: %w", err)
	}
	return out.Body, nil
}

// Format implements Source
func (s *S3Source) Format() string {
	return formatOf(s.key)
}
