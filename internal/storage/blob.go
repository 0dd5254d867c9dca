// Package storage uploads and removes todo attachments in an S3-compatible bucket.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/Tomlord1122/todo-files-backend/internal/config"
)

const (
	// KeyPrefix is the bucket folder holding every attachment.
	KeyPrefix = "uploads/"
	// MaxNameLength bounds the sanitized name inside a key so keys and URLs
	// fit the file_key and file_url columns.
	MaxNameLength = 200

	maxExtLength = 16
)

var (
	// ErrNotConfigured is returned by NewS3Store when bucket or credentials are missing.
	ErrNotConfigured = errors.New("storage not configured")
	// ErrUpload wraps every failure of Upload.
	ErrUpload = errors.New("blob upload failed")
	// ErrDelete wraps every failure of Delete other than a missing object.
	ErrDelete = errors.New("blob delete failed")
)

// UploadResult describes a stored attachment. DisplayName is the name shown
// to users; Key is the object path inside the bucket.
type UploadResult struct {
	URL         string
	Key         string
	DisplayName string
}

// BlobStore stores attachment bytes and hands out public URLs.
type BlobStore interface {
	Upload(ctx context.Context, data []byte, originalName, contentType string) (*UploadResult, error)
	// Delete removes the object named by a key or by its public URL. A missing
	// object is not an error.
	Delete(ctx context.Context, keyOrURL string) error
	Ping(ctx context.Context) error
}

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

var loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

// S3Store is a BlobStore backed by an S3 bucket.
type S3Store struct {
	client     s3API
	bucket     string
	baseURL    string
	publicRead bool
	now        func() time.Time
}

// NewS3Store builds an S3 client from the S3_* settings. A custom endpoint
// (MinIO, R2, ...) switches to path-style addressing.
func NewS3Store(ctx context.Context, cfg *config.Config) (*S3Store, error) {
	if !cfg.StorageConfigured() {
		return nil, ErrNotConfigured
	}

	awsCfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3AccessKeyID,
			cfg.S3SecretAccessKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Store(client, cfg), nil
}

func newS3Store(client s3API, cfg *config.Config) *S3Store {
	return &S3Store{
		client:     client,
		bucket:     cfg.S3Bucket,
		baseURL:    publicBaseURL(cfg),
		publicRead: cfg.S3PublicRead,
		now:        time.Now,
	}
}

func publicBaseURL(cfg *config.Config) string {
	switch {
	case cfg.S3PublicURL != "":
		return strings.TrimRight(cfg.S3PublicURL, "/")
	case cfg.S3Endpoint != "":
		return strings.TrimRight(cfg.S3Endpoint, "/") + "/" + cfg.S3Bucket
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.S3Bucket, cfg.S3Region)
	}
}

func (s *S3Store) Upload(ctx context.Context, data []byte, originalName, contentType string) (*UploadResult, error) {
	key := ObjectKey(s.now(), originalName)

	in := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if s.publicRead {
		in.ACL = types.ObjectCannedACLPublicRead
	}

	if _, err := s.client.PutObject(ctx, in); err != nil {
		return nil, fmt.Errorf("%w: put %s: %w", ErrUpload, key, err)
	}

	return &UploadResult{
		URL:         s.URL(key),
		Key:         key,
		DisplayName: originalName,
	}, nil
}

func (s *S3Store) Delete(ctx context.Context, keyOrURL string) error {
	key := s.KeyFromRef(keyOrURL)
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrDelete)
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "NoSuchKey", "NotFound":
				return nil
			}
		}
		return fmt.Errorf("%w: delete %s: %w", ErrDelete, key, err)
	}
	return nil
}

// Ping checks that the bucket is reachable with the configured credentials.
func (s *S3Store) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err
}

// URL returns the public URL of key.
func (s *S3Store) URL(key string) string {
	return s.baseURL + "/" + key
}

// KeyFromRef reduces a public URL to its object key. Anything that is not a
// URL is taken as a key already.
func (s *S3Store) KeyFromRef(ref string) string {
	if rest, ok := strings.CutPrefix(ref, s.baseURL+"/"); ok {
		return rest
	}

	u, err := url.Parse(ref)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return strings.TrimPrefix(ref, "/")
	}

	path := strings.TrimPrefix(u.Path, "/")
	if rest, ok := strings.CutPrefix(path, s.bucket+"/"); ok {
		return rest
	}
	return path
}

// ObjectKey derives uploads/<unix-nanos>-<sanitized name>. Two uploads in the
// same nanosecond share a key, and the later one wins, when their names are
// equal or sanitize to the same string ("a b.txt" and "a_b.txt"), or when
// they differ only past MaxNameLength.
func ObjectKey(t time.Time, originalName string) string {
	return fmt.Sprintf("%s%d-%s", KeyPrefix, t.UnixNano(), SanitizeName(originalName))
}

// SanitizeName keeps the base name of a client-supplied file name and
// replaces anything outside [A-Za-z0-9._-] with an underscore. Results longer
// than MaxNameLength are cut, keeping a short extension.
func SanitizeName(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)), r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "file"
	}
	if len(out) > MaxNameLength {
		// out is ASCII here, so byte offsets are safe
		ext := path.Ext(out)
		if len(ext) > maxExtLength {
			ext = ""
		}
		out = out[:MaxNameLength-len(ext)] + ext
	}
	return out
}
