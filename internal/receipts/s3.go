package receipts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/charmbracelet/log"
	"github.com/receiptdesk/receiptdesk/internal/config"
)

var _ Storage = (*S3Storage)(nil)

// S3Storage keeps receipts as objects in an S3 compatible bucket.
type S3Storage struct {
	api      s3iface.S3API
	uploader *s3manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Storage creates an S3 client from cfg.
func NewS3Storage(cfg *config.S3Config) (*S3Storage, error) {
	awsCfg := &aws.Config{
		Region:           aws.String(cfg.Region),
		S3ForcePathStyle: aws.Bool(cfg.ForcePathStyle),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.AccessKeyID != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 session: %w", err)
	}
	return NewS3StorageWithClient(s3.New(sess), cfg.Bucket, cfg.Prefix), nil
}

// NewS3StorageWithClient wraps an existing S3 client.
func NewS3StorageWithClient(api s3iface.S3API, bucket, prefix string) *S3Storage {
	return &S3Storage{
		api:      api,
		uploader: s3manager.NewUploaderWithClient(api),
		bucket:   bucket,
		prefix:   prefix,
	}
}

func (s *S3Storage) key(name string) (string, error) {
	if !ValidFilename(name) {
		return "", fmt.Errorf("invalid receipt name %q", name)
	}
	return s.prefix + name, nil
}

func (s *S3Storage) Put(ctx context.Context, name string, r io.Reader, _ int64, contentType string) error {
	key, err := s.key(name)
	if err != nil {
		return err
	}
	input := &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   r,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.uploader.UploadWithContext(ctx, input); err != nil {
		return fmt.Errorf("failed to upload receipt: %w", err)
	}
	log.Debug("Stored receipt", "name", name, "bucket", s.bucket)
	return nil
}

func (s *S3Storage) Open(ctx context.Context, name string) (io.ReadCloser, *ObjectInfo, error) {
	key, err := s.key(name)
	if err != nil {
		return nil, nil, err
	}
	out, err := s.api.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil, ErrNotExist
		}
		return nil, nil, err
	}
	return out.Body, &ObjectInfo{
		Name:        name,
		Size:        aws.Int64Value(out.ContentLength),
		ContentType: aws.StringValue(out.ContentType),
		ModTime:     aws.TimeValue(out.LastModified),
	}, nil
}

func (s *S3Storage) Stat(ctx context.Context, name string) (*ObjectInfo, error) {
	key, err := s.key(name)
	if err != nil {
		return nil, err
	}
	out, err := s.api.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotExist
		}
		return nil, err
	}
	return &ObjectInfo{
		Name:        name,
		Size:        aws.Int64Value(out.ContentLength),
		ContentType: aws.StringValue(out.ContentType),
		ModTime:     aws.TimeValue(out.LastModified),
	}, nil
}

func (s *S3Storage) Delete(ctx context.Context, name string) error {
	key, err := s.key(name)
	if err != nil {
		return err
	}
	_, err = s.api.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

func (s *S3Storage) List(ctx context.Context) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	}
	err := s.api.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, item := range page.Contents {
			name := strings.TrimPrefix(aws.StringValue(item.Key), s.prefix)
			// objects in nested "directories" are not ours
			if !ValidFilename(name) {
				continue
			}
			objects = append(objects, ObjectInfo{
				Name:    name,
				Size:    aws.Int64Value(item.Size),
				ModTime: aws.TimeValue(item.LastModified),
			})
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	return objects, nil
}

func isNotFound(err error) bool {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound {
		return true
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}
