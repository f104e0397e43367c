package images

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store uploads to an S3 bucket whose objects are served from publicBaseURL.
type S3Store struct {
	client        putObjectAPI
	bucket        string
	publicBaseURL string
	now           func() time.Time
}

// NewS3Store loads the default AWS credential chain for region.
func NewS3Store(ctx context.Context, region, bucket, publicBaseURL string) (*S3Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if publicBaseURL == "" {
		publicBaseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, cfg.Region)
	}
	return newS3Store(s3.NewFromConfig(cfg), bucket, publicBaseURL), nil
}

func newS3Store(client putObjectAPI, bucket, publicBaseURL string) *S3Store {
	return &S3Store{
		client:        client,
		bucket:        bucket,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
		now:           time.Now,
	}
}

func (s *S3Store) Upload(ctx context.Context, file File) (string, error) {
	key := ObjectKey(s.now(), file.Name)

	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(file.Data),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String(fmt.Sprintf("max-age=%d", CacheControlSeconds)),
		IfNoneMatch:  aws.String("*"),
	})
	if err != nil {
		msg := err.Error()
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			msg = apiErr.ErrorMessage()
		}
		return "", &UploadError{Key: key, Message: msg, Err: err}
	}

	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.publicBaseURL + "/" + strings.Join(segments, "/"), nil
}
