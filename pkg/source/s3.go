package source

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	perrors "github.com/logflow/processlens/pkg/errors"
)

// S3Config holds S3 client settings.
type S3Config struct {
	// Region is the AWS region (e.g., "us-east-1")
	Region string `yaml:"region"`

	// Endpoint overrides the default S3 endpoint (for S3-compatible services)
	Endpoint string `yaml:"endpoint"`

	// UsePathStyle forces path-style addressing (for MinIO, LocalStack)
	UsePathStyle bool `yaml:"use_path_style"`

	// Credentials (optional - uses default chain if not provided)
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`

	DownloadTimeout time.Duration `yaml:"download_timeout"`
}

// DefaultS3Config returns defaults.
func DefaultS3Config() S3Config {
	return S3Config{DownloadTimeout: 5 * time.Minute}
}

// ObjectClient is the part of the S3 API the resolver needs.
type ObjectClient interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type s3Opener struct {
	cfg    S3Config
	once   sync.Once
	client ObjectClient
	err    error
}

func (o *s3Opener) getClient(ctx context.Context) (ObjectClient, error) {
	if o.client != nil {
		return o.client, nil
	}
	o.once.Do(func() {
		o.client, o.err = newS3Client(ctx, o.cfg)
	})
	return o.client, o.err
}

func newS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, perrors.Wrap(err, perrors.CodeSourceFailed, "failed to load AWS config")
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

func (o *s3Opener) open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	client, err := o.getClient(ctx)
	if err != nil {
		return nil, err
	}

	timeout := o.cfg.DownloadTimeout
	if timeout <= 0 {
		timeout = DefaultS3Config().DownloadTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		cancel()
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, perrors.FileNotFound("s3://" + bucket + "/" + key)
		}
		return nil, perrors.Wrap(err, perrors.CodeSourceFailed, "failed to get object").
			WithContext("bucket", bucket).
			WithContext("key", key)
	}

	return &cancelOnCloseReader{ReadCloser: out.Body, cancel: cancel}, nil
}

// cancelOnCloseReader releases the download context when the body is closed.
type cancelOnCloseReader struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *cancelOnCloseReader) Close() error {
	err := r.ReadCloser.Close()
	r.cancel()
	return err
}
