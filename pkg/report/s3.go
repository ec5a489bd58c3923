package report

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/bouncestorage/bounce-stats/internal/logctx"
	"github.com/bouncestorage/bounce-stats/pkg/usagestats"
)

// PutObjectAPI is the part of the S3 client the uploader needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader stores Parquet reports under s3://<bucket>/<prefix>/YYYY/MM/DD/<run>.parquet.
type Uploader struct {
	client PutObjectAPI
	bucket string
	prefix string
}

// NewUploader creates an uploader using the default AWS configuration chain.
// An empty region keeps whatever the environment resolves.
func NewUploader(ctx context.Context, bucket, prefix, region string) (*Uploader, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewUploaderWithClient(s3.NewFromConfig(cfg), bucket, prefix), nil
}

// NewUploaderWithClient creates an uploader around an existing client.
func NewUploaderWithClient(client PutObjectAPI, bucket, prefix string) *Uploader {
	return &Uploader{client: client, bucket: bucket, prefix: prefix}
}

// Key returns the object key a run's report is stored under.
func (u *Uploader) Key(c usagestats.Completion) string {
	day := c.CompletedAt.UTC().Format("2006/01/02")
	return path.Join(u.prefix, day, c.RunID+".parquet")
}

// Upload writes the run's Parquet report to S3 and returns its s3:// URI.
func (u *Uploader) Upload(ctx context.Context, c usagestats.Completion) (string, error) {
	var buf bytes.Buffer
	if err := WriteParquet(&buf, c); err != nil {
		return "", err
	}

	key := u.Key(c)
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentLength: aws.Int64(int64(buf.Len())),
		ContentType:   aws.String("application/vnd.apache.parquet"),
		Metadata: map[string]string{
			"run-id": c.RunID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("put report s3://%s/%s: %w", u.bucket, key, err)
	}

	uri := fmt.Sprintf("s3://%s/%s", u.bucket, key)
	log := logctx.FromContext(ctx)
	log.Info().
		Str("uri", uri).
		Int("bytes", buf.Len()).
		Msg("uploaded usage report")
	return uri, nil
}

// NotifyComplete uploads every finished run, making Uploader a
// usagestats.Notifier.
func (u *Uploader) NotifyComplete(ctx context.Context, c usagestats.Completion) error {
	_, err := u.Upload(ctx, c)
	return err
}
