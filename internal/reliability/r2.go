package reliability

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// R2Config configures access to an S3/R2-compatible bucket (spec's ambient
// snapshot-backup addition; Cloudflare R2 speaks the S3 API against a custom
// endpoint).
type R2Config struct {
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// R2Client wraps the S3 client and transfer manager used to upload, list, and
// delete backup archives.
type R2Client struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
}

// NewR2Client builds an R2Client against an S3-compatible endpoint, authenticating
// with static credentials when provided and falling back to the default AWS
// credential chain otherwise (e.g. when running against real S3).
func NewR2Client(ctx context.Context, cfg R2Config) (*R2Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})

	return &R2Client{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
	}, nil
}

// Upload streams body (sized n bytes) to key via a multipart-aware uploader.
func (c *R2Client) Upload(ctx context.Context, key string, body io.Reader, _ int64) error {
	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	return err
}

// ObjectInfo describes one listed backup object.
type ObjectInfo struct {
	Key  *string
	Size *int64
}

// List returns every object under the bucket whose key starts with prefix.
func (c *R2Client) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			out = append(out, ObjectInfo{Key: obj.Key, Size: obj.Size})
		}
	}
	return out, nil
}

// Delete removes key from the bucket.
func (c *R2Client) Delete(ctx context.Context, key string) error {
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	return err
}
