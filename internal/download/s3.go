package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
)

// ObjectPutter is the subset of the S3 API the saver uses.
type ObjectPutter interface {
	PutObject(
		ctx context.Context,
		params *s3.PutObjectInput,
		optFns ...func(*s3.Options),
	) (*s3.PutObjectOutput, error)
}

// S3Options configures an S3Saver.
type S3Options struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string

	// Static credentials; when empty the default AWS chain is used.
	AccessKeyID     string
	SecretAccessKey string
}

// S3Saver uploads attachments to a bucket. Each upload gets its own key
// prefix so equal filenames never collide.
type S3Saver struct {
	client ObjectPutter
	bucket string
	prefix string
}

// NewS3Saver builds an S3 client from the default AWS configuration chain,
// overridden by opts.
func NewS3Saver(ctx context.Context, opts S3Options) (*S3Saver, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3 saver: bucket is required")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				opts.AccessKeyID, opts.SecretAccessKey, "",
			),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3SaverWithClient(client, opts.Bucket, opts.Prefix), nil
}

// NewS3SaverWithClient wraps an existing client.
func NewS3SaverWithClient(client ObjectPutter, bucket, prefix string) *S3Saver {
	return &S3Saver{client: client, bucket: bucket, prefix: prefix}
}

// Save uploads data and returns its s3:// location.
func (s *S3Saver) Save(ctx context.Context, filename string, data []byte) (string, error) {
	key := path.Join(s.prefix, uuid.NewString(), SafeName(filename))

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:             aws.String(s.bucket),
		Key:                aws.String(key),
		Body:               bytes.NewReader(data),
		ContentLength:      aws.Int64(int64(len(data))),
		ContentDisposition: aws.String(fmt.Sprintf("attachment; filename=%q", SafeName(filename))),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf(
				"uploading %s to s3://%s: %s: %s",
				filename, s.bucket, apiErr.ErrorCode(), apiErr.ErrorMessage(),
			)
		}
		return "", fmt.Errorf("uploading %s to s3://%s: %w", filename, s.bucket, err)
	}

	return "s3://" + s.bucket + "/" + key, nil
}
