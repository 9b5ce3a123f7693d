// Package s3 stores avatars in an S3 compatible bucket (AWS or MinIO).
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/pharmacare-storefront/pkg/config"
	"github.com/angelmondragon/pharmacare-storefront/pkg/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
)

const pingTimeout = 5 * time.Second

type objectAPI interface {
	PutObject(ctx context.Context, in *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, in *awss3.HeadBucketInput, optFns ...func(*awss3.Options)) (*awss3.HeadBucketOutput, error)
}

type Client struct {
	api           objectAPI
	defaultBucket string
	publicBase    string
}

// NewClient builds the S3 client and checks that the avatar bucket is reachable.
// Static keys are used when configured; otherwise the default AWS chain applies.
func NewClient(ctx context.Context, cfg config.S3Config, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.AvatarBucket) == "" {
		return nil, errors.New("s3 avatar bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	api := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	client := &Client{
		api:           api,
		defaultBucket: cfg.AvatarBucket,
		publicBase:    publicBase(cfg),
	}
	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("s3 health check failed: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "bucket", cfg.AvatarBucket), "s3 client initialized")
	}
	return client, nil
}

// publicBase is the prefix objects are served from, without the object key.
func publicBase(cfg config.S3Config) string {
	switch {
	case cfg.PublicBaseURL != "":
		return strings.TrimRight(cfg.PublicBaseURL, "/")
	case cfg.Endpoint != "":
		return strings.TrimRight(cfg.Endpoint, "/") + "/" + url.PathEscape(cfg.AvatarBucket)
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.AvatarBucket, cfg.Region)
	}
}

func (c *Client) DefaultBucket() string {
	if c == nil {
		return ""
	}
	return c.defaultBucket
}

// Put writes body under object, replacing any existing object of that name.
func (c *Client) Put(ctx context.Context, bucket, object, contentType string, body io.Reader) error {
	if c == nil || c.api == nil {
		return errors.New("s3 client not initialized")
	}
	if bucket == "" {
		bucket = c.defaultBucket
	}
	if strings.TrimSpace(object) == "" {
		return errors.New("object name is required")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := c.api.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(object),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s/%s: %w", bucket, object, err)
	}
	return nil
}

// PublicURL assumes the bucket (or the CDN in front of it) allows anonymous reads.
// Objects outside the default bucket are addressed path style from the base.
func (c *Client) PublicURL(bucket, object string) string {
	segments := strings.Split(object, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	key := strings.Join(segments, "/")
	if bucket == "" || bucket == c.defaultBucket {
		return c.publicBase + "/" + key
	}
	return c.publicBase + "/" + url.PathEscape(bucket) + "/" + key
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.api == nil {
		return errors.New("s3 client not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	_, err := c.api.HeadBucket(ctx, &awss3.HeadBucketInput{Bucket: aws.String(c.defaultBucket)})
	return err
}

func (c *Client) Close() error {
	return nil
}
