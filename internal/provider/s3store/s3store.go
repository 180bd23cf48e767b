// Package s3store implements the provider.ObjectStorage capability against
// Amazon S3 or any S3-compatible object store (MinIO, R2, etc.). The SDK
// client sits behind a narrow interface so tests can inject a fake, and all
// failures are classified into the typed taxonomy via the smithy error
// surface.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/opencamphq/campd/internal/provider"
)

// Config holds the object-storage connection settings.
type Config struct {
	// Region is the bucket's region. Mandatory.
	Region string
	// Bucket is the bucket all keys live in. Mandatory.
	Bucket string
	// AccessKeyID and SecretAccessKey are the static credentials.
	// Both mandatory; the SDK default credential chain is deliberately not
	// used so availability is decidable from configuration alone.
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint overrides the vendor's default endpoint (S3-compatible stores).
	Endpoint string
	// UsePathStyle forces path-style addressing, required by MinIO.
	UsePathStyle bool
	// PublicBaseURL, when set, marks the bucket public and is used to build
	// browsable links (e.g. a CDN domain in front of the bucket).
	PublicBaseURL string
	// MaxRetries bounds the retry executor's attempts per operation.
	MaxRetries int
}

// validate checks mandatory fields and returns a copy with defaults applied.
func (c Config) validate() (Config, error) {
	if c.Bucket == "" {
		return Config{}, provider.NewError(provider.KindConfiguration, "storage bucket is not set")
	}
	if c.Region == "" {
		return Config{}, provider.NewError(provider.KindConfiguration, "storage region is not set")
	}
	if c.AccessKeyID == "" || c.SecretAccessKey == "" {
		return Config{}, provider.NewError(provider.KindConfiguration, "storage credentials are not set")
	}
	out := c
	if out.MaxRetries <= 0 {
		out.MaxRetries = provider.DefaultMaxRetries
	}
	return out, nil
}

// objectAPI abstracts the S3 object operations the store uses.
// The [s3.Client] type satisfies this interface; tests inject a fake.
type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// Store implements provider.ObjectStorage. Safe for concurrent use.
type Store struct {
	// api is the S3 object client.
	api objectAPI
	// presignPut and presignGet generate time-limited URLs. Split into two
	// funcs so fakes stay trivial.
	presignPut func(ctx context.Context, in *s3.PutObjectInput, ttl time.Duration) (string, error)
	presignGet func(ctx context.Context, in *s3.GetObjectInput, ttl time.Duration) (string, error)
	// cfg is the validated, immutable configuration.
	cfg Config
	// log is the structured logger, tagged with the provider name.
	log *slog.Logger
}

// New validates cfg, constructs the S3 client with static credentials, and
// returns a ready Store. SDK-level retries are disabled in favor of the
// shared retry executor.
func New(cfg Config, log *slog.Logger) (*Store, error) {
	validated, err := cfg.validate()
	if err != nil {
		return nil, err
	}

	opts := s3.Options{
		Region:           validated.Region,
		UsePathStyle:     validated.UsePathStyle,
		RetryMaxAttempts: 1,
		Credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     validated.AccessKeyID,
				SecretAccessKey: validated.SecretAccessKey,
				Source:          "campd static config",
			}, nil
		}),
	}
	if validated.Endpoint != "" {
		opts.BaseEndpoint = aws.String(validated.Endpoint)
	}

	client := s3.New(opts)
	presigner := s3.NewPresignClient(client)

	return &Store{
		api: client,
		presignPut: func(ctx context.Context, in *s3.PutObjectInput, ttl time.Duration) (string, error) {
			req, err := presigner.PresignPutObject(ctx, in, s3.WithPresignExpires(ttl))
			if err != nil {
				return "", err
			}
			return req.URL, nil
		},
		presignGet: func(ctx context.Context, in *s3.GetObjectInput, ttl time.Duration) (string, error) {
			req, err := presigner.PresignGetObject(ctx, in, s3.WithPresignExpires(ttl))
			if err != nil {
				return "", err
			}
			return req.URL, nil
		},
		cfg: validated,
		log: log.With(slog.String("provider", "s3")),
	}, nil
}

// Name returns the vendor label.
func (s *Store) Name() string { return "s3" }

// Ping checks bucket reachability and credential validity via HeadBucket.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.api.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.cfg.Bucket),
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

// Put uploads content under the given key.
func (s *Store) Put(ctx context.Context, key string, content []byte, contentType string, metadata map[string]string) (*provider.ObjectRef, error) {
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(content),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if len(metadata) > 0 {
		in.Metadata = metadata
	}

	out, err := provider.Retry(ctx, s.log, s.cfg.MaxRetries, provider.DefaultRetryDelay,
		func(ctx context.Context) (*s3.PutObjectOutput, error) {
			out, err := s.api.PutObject(ctx, in)
			if err != nil {
				return nil, classify(err)
			}
			return out, nil
		})
	if err != nil {
		return nil, err
	}

	s.log.Info("object uploaded",
		slog.String("key", key),
		slog.Int("bytes", len(content)),
	)
	return &provider.ObjectRef{
		Bucket:    s.cfg.Bucket,
		Key:       key,
		ETag:      strings.Trim(aws.ToString(out.ETag), `"`),
		PublicURL: s.publicURL(key),
	}, nil
}

// Delete removes the object at key. S3 DeleteObject is idempotent — deleting
// a missing key succeeds.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := provider.Retry(ctx, s.log, s.cfg.MaxRetries, provider.DefaultRetryDelay,
		func(ctx context.Context) (*s3.DeleteObjectOutput, error) {
			out, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(s.cfg.Bucket),
				Key:    aws.String(key),
			})
			if err != nil {
				return nil, classify(err)
			}
			return out, nil
		})
	if err != nil {
		return err
	}

	s.log.Info("object deleted", slog.String("key", key))
	return nil
}

// PresignPut returns a time-limited URL permitting a single upload to key.
func (s *Store) PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (*provider.PresignedURL, error) {
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}

	url, err := s.presignPut(ctx, in, ttl)
	if err != nil {
		return nil, classify(err)
	}
	return &provider.PresignedURL{
		URL:        url,
		PublicURL:  s.publicURL(key),
		Key:        key,
		TTLSeconds: int(ttl.Seconds()),
	}, nil
}

// PresignGet returns a time-limited URL permitting a single download of key.
func (s *Store) PresignGet(ctx context.Context, key string, ttl time.Duration) (*provider.PresignedURL, error) {
	url, err := s.presignGet(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}, ttl)
	if err != nil {
		return nil, classify(err)
	}
	return &provider.PresignedURL{
		URL:        url,
		Key:        key,
		TTLSeconds: int(ttl.Seconds()),
	}, nil
}

// publicURL builds a browsable link for key when the bucket is public.
// Returns empty string for private buckets.
func (s *Store) publicURL(key string) string {
	if s.cfg.PublicBaseURL == "" {
		return ""
	}
	return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + key
}

// classify maps an AWS SDK failure onto the typed taxonomy. The smithy error
// code is the vendor tag; the HTTP status comes from the response error when
// present.
func classify(err error) error {
	if err == nil {
		return nil
	}

	status := 0
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		status = respErr.HTTPStatusCode()
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.ErrorMessage()
		if msg == "" {
			msg = fmt.Sprintf("s3 request failed (%s)", apiErr.ErrorCode())
		}
		return provider.ClassifyResponse(status, apiErr.ErrorCode(), msg, err)
	}
	if status != 0 {
		return provider.ClassifyResponse(status, "", err.Error(), err)
	}
	return provider.Classify(err)
}

// Compile-time capability check.
var _ provider.ObjectStorage = (*Store)(nil)

// Compile-time check that the real SDK client satisfies the narrowed API.
var _ objectAPI = (*s3.Client)(nil)
