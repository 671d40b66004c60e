package s3

import (
	"bufio"
	"context"
	"io"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	awss3 "github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"go.uber.org/zap"
)

type Option func(*Repository)

func WithRegion(region string) Option {
	return func(r *Repository) {
		r.Region = region
	}
}

func WithBucket(bucket string) Option {
	return func(r *Repository) {
		r.Bucket = bucket
	}
}

func WithPrefix(prefix string) Option {
	return func(r *Repository) {
		r.Prefix = prefix
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Repository) {
		r.logger = l
	}
}

func WithForcePathStyle(forcePathStyle bool) Option {
	return func(r *Repository) {
		r.ForcePathStyle = forcePathStyle
	}
}

func WithEndpoint(endpoint string) Option {
	return func(r *Repository) {
		r.Endpoint = endpoint
	}
}

// Repository uploads report artifacts to an S3 bucket and answers object
// existence checks against it.
type Repository struct {
	logger   *zap.Logger
	uploader *s3manager.Uploader
	svc      *awss3.S3

	Endpoint       string
	Region         string
	Bucket         string
	Prefix         string
	ForcePathStyle bool
}

func New(opts ...Option) *Repository {
	r := &Repository{
		logger: zap.NewNop(),
	}

	for _, o := range opts {
		o(r)
	}

	awsConfig := &aws.Config{
		Region:           aws.String(r.Region),
		S3ForcePathStyle: aws.Bool(r.ForcePathStyle),
	}

	if r.Endpoint != "" {
		awsConfig.Endpoint = aws.String(r.Endpoint)
	}

	sess, _ := session.NewSession(awsConfig)
	r.uploader = s3manager.NewUploader(sess)
	r.svc = awss3.New(sess)

	return r
}

func (r *Repository) Write(ctx context.Context, key string, reader io.Reader) error {
	objPath := path.Join(r.Prefix, key)

	r.logger.Debug("uploading object",
		zap.String("key", key),
		zap.String("object_path", objPath),
		zap.String("bucket", r.Bucket),
	)

	_, err := r.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(r.Bucket),
		Key:    aws.String(objPath),
		Body:   bufio.NewReader(reader),
	})
	return err
}

// Exists reports whether an object is present under the repository prefix.
func (r *Repository) Exists(ctx context.Context, key string) (bool, error) {
	objPath := path.Join(r.Prefix, key)

	_, err := r.svc.HeadObjectWithContext(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(r.Bucket),
		Key:    aws.String(objPath),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ExistsPrefix reports whether any object is stored under the given key
// prefix, for products laid out as a directory of files.
func (r *Repository) ExistsPrefix(ctx context.Context, keyPrefix string) (bool, error) {
	objPrefix := path.Join(r.Prefix, keyPrefix)

	out, err := r.svc.ListObjectsV2WithContext(ctx, &awss3.ListObjectsV2Input{
		Bucket:  aws.String(r.Bucket),
		Prefix:  aws.String(objPrefix),
		MaxKeys: aws.Int64(1),
	})
	if err != nil {
		return false, err
	}
	return len(out.Contents) > 0, nil
}

func isNotFound(err error) bool {
	if reqErr, ok := err.(awserr.RequestFailure); ok {
		return reqErr.StatusCode() == 404
	}
	if awsErr, ok := err.(awserr.Error); ok {
		// HeadObject reports a bare "NotFound" code rather than NoSuchKey.
		return awsErr.Code() == "NotFound" || awsErr.Code() == awss3.ErrCodeNoSuchKey
	}
	return false
}
