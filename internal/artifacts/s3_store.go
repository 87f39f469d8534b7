package artifacts

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"git.home.luguber.info/inful/releasekeeper/internal/config"
	"git.home.luguber.info/inful/releasekeeper/internal/foundation/errors"
	"git.home.luguber.info/inful/releasekeeper/internal/logfields"
)

// s3API is the subset of the S3 client used here.
type s3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store reads objects from one S3 bucket.
type S3Store struct {
	client s3API
	bucket string
}

// NewS3Store creates an S3 client with the static credentials and region of cfg.
// A custom endpoint (e.g. MinIO) switches to path-style addressing.
func NewS3Store(ctx context.Context, cfg config.AssetsConfig) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.ConfigError("failed to load S3 client configuration").WithCause(err).Build()
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3StoreWithClient(client, cfg.Bucket), nil
}

func newS3StoreWithClient(client s3API, bucket string) *S3Store {
	return &S3Store{client: client, bucket: bucket}
}

// ListByPrefix pages through ListObjectsV2 for prefix.
func (s *S3Store) ListByPrefix(ctx context.Context, prefix string) ([]Object, error) {
	var objects []Object
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, errors.ArtifactError("failed to list objects").
				WithCause(err).WithContext("bucket", s.bucket).WithContext("prefix", prefix).Build()
		}
		for _, obj := range page.Contents {
			objects = append(objects, Object{Key: aws.ToString(obj.Key), Size: aws.ToInt64(obj.Size)})
		}
	}
	return objects, nil
}

// Fetch streams the object body to a temporary file next to dest and renames it.
func (s *S3Store) Fetch(ctx context.Context, key, dest string) error {
	slog.Info("Downloading object", logfields.ObjectKey(key), logfields.Path(dest))
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if stderrors.As(err, &missing) {
			return errors.NotFoundError("object not found").
				WithCause(err).WithContext("bucket", s.bucket).WithContext("key", key).Build()
		}
		return errors.ArtifactError("failed to fetch object").
			WithCause(err).WithContext("bucket", s.bucket).WithContext("key", key).Build()
	}
	defer func() { _ = out.Body.Close() }()

	if err := writeAtomic(dest, out.Body); err != nil {
		return errors.ArtifactError("failed to store fetched object").
			WithCause(err).WithContext("key", key).WithContext("path", dest).Build()
	}
	return nil
}

// writeAtomic copies r into dest through a temporary sibling file.
func writeAtomic(dest string, r io.Reader) (err error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".part-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err = io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil { // #nosec G302 -- served as public assets
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
