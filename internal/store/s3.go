package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"meetscribe/pkg/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

// S3Backend stores artifacts as objects under "jobs/<id>/<artifact>".
// Object PUTs are atomic, which gives the fully-written-then-visible
// guarantee for free.
type S3Backend struct {
	client *s3.Client
	bucket string
}

// NewS3Backend creates an S3-compatible artifact backend.
func NewS3Backend(endpoint, region, accessKey, secretKey, bucket string) (*S3Backend, error) {
	customResolver := aws.EndpointResolverWithOptionsFunc(
		func(service, reg string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:           endpoint,
				SigningRegion: region,
			}, nil
		})

	cfg, err := config.LoadDefaultConfig(
		context.TODO(),
		config.WithEndpointResolverWithOptions(customResolver),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	logger.Info("S3 artifact store initialized", zap.String("bucket", bucket))

	return &S3Backend{client: client, bucket: bucket}, nil
}

func (b *S3Backend) key(jobID string, kind Kind) string {
	return path.Join("jobs", jobID, kind.filename())
}

func (b *S3Backend) prefix(jobID string) string {
	return path.Join("jobs", jobID) + "/"
}

func (b *S3Backend) Init(ctx context.Context, jobID string) error {
	out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(b.bucket),
		Prefix:  aws.String(b.prefix(jobID)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return fmt.Errorf("failed to probe job namespace: %w", err)
	}
	if len(out.Contents) > 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (b *S3Backend) Write(ctx context.Context, jobID string, kind Kind, payload []byte) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(jobID, kind)),
		Body:   bytes.NewReader(payload),
	})
	if err != nil {
		return fmt.Errorf("failed to upload artifact: %w", err)
	}

	logger.Debug("Artifact uploaded",
		zap.String("job_id", jobID),
		zap.String("kind", string(kind)),
		zap.Int("size", len(payload)))

	return nil
}

func (b *S3Backend) Read(ctx context.Context, jobID string, kind Kind) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(jobID, kind)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to download artifact: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact body: %w", err)
	}
	return data, nil
}

func (b *S3Backend) Exists(ctx context.Context, jobID string, kind Kind) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(jobID, kind)),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to head artifact: %w", err)
	}
	return true, nil
}

func (b *S3Backend) Remove(ctx context.Context, jobID string) error {
	out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(b.prefix(jobID)),
	})
	if err != nil {
		return fmt.Errorf("failed to list job objects: %w", err)
	}
	if len(out.Contents) == 0 {
		return ErrNotFound
	}

	for _, obj := range out.Contents {
		_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    obj.Key,
		})
		if err != nil {
			return fmt.Errorf("failed to delete artifact %s: %w", aws.ToString(obj.Key), err)
		}
	}

	logger.Debug("Job namespace removed", zap.String("job_id", jobID))
	return nil
}

func (b *S3Backend) Jobs(ctx context.Context) ([]string, error) {
	out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:    aws.String(b.bucket),
		Prefix:    aws.String("jobs/"),
		Delimiter: aws.String("/"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list job namespaces: %w", err)
	}

	ids := make([]string, 0, len(out.CommonPrefixes))
	for _, cp := range out.CommonPrefixes {
		id := path.Base(aws.ToString(cp.Prefix))
		if id != "" && id != "." {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
