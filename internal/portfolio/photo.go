package portfolio

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// PhotoStore turns uploaded bytes into the value kept in Portfolio.Photo.
type PhotoStore interface {
	Store(ctx context.Context, owner string, p Photo) (string, error)
}

// InlinePhotoStore keeps the image in the row as standard base64.
type InlinePhotoStore struct{}

func (InlinePhotoStore) Store(_ context.Context, _ string, p Photo) (string, error) {
	return base64.StdEncoding.EncodeToString(p.Data), nil
}

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3PhotoStore uploads images to a bucket and stores their public URL.
type S3PhotoStore struct {
	client    objectPutter
	bucket    string
	publicURL string
	now       func() time.Time
}

type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string // MinIO or another S3 compatible endpoint
	AccessKey string
	SecretKey string
	PublicURL string // defaults to <endpoint>/<bucket>
}

func NewS3PhotoStore(ctx context.Context, cfg S3Config) (*S3PhotoStore, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	publicURL := cfg.PublicURL
	if publicURL == "" {
		if cfg.Endpoint != "" {
			publicURL = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
		} else {
			publicURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
		}
	}
	return newS3PhotoStore(client, cfg.Bucket, publicURL), nil
}

func newS3PhotoStore(client objectPutter, bucket, publicURL string) *S3PhotoStore {
	return &S3PhotoStore{client: client, bucket: bucket, publicURL: strings.TrimRight(publicURL, "/"), now: time.Now}
}

func (s *S3PhotoStore) Store(ctx context.Context, owner string, p Photo) (string, error) {
	d := s.now().UTC()
	key := path.Join("portfolios", owner, fmt.Sprintf("%d/%02d", d.Year(), d.Month()), uuid.NewString()+extension(p.ContentType))
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(p.Data),
		ContentType:   aws.String(p.ContentType),
		ContentLength: aws.Int64(int64(len(p.Data))),
	})
	if err != nil {
		return "", fmt.Errorf("upload photo: %w", err)
	}
	return s.publicURL + "/" + key, nil
}

func extension(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	return ""
}
