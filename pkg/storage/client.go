package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"io"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"

	"github.com/Fato07/runway-music-video-generator/pkg/errors"
)

// Options configures the artifact mirror.
type Options struct {
	Bucket string
	Region string
	// Prefix is prepended to every object key.
	Prefix string
	// Endpoint overrides the S3 endpoint (MinIO, localstack). Path-style
	// addressing is used when set.
	Endpoint string
}

// Client provides S3 storage operations
type Client struct {
	s3Client *s3.Client
	bucket   string
	prefix   string
}

// NewClient creates a new S3 client using the default credential chain
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	log.Info().Str("bucket", opts.Bucket).Str("region", opts.Region).Str("endpoint", opts.Endpoint).Msg("s3_client_init")

	if opts.Bucket == "" {
		return nil, stderrors.New("storage: bucket is required")
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(opts.Region))
	if err != nil {
		log.Error().Err(err).Msg("aws_config_load_failed")
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	s3Client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})

	log.Info().Str("bucket", opts.Bucket).Msg("s3_client_created")

	return &Client{
		s3Client: s3Client,
		bucket:   opts.Bucket,
		prefix:   strings.Trim(opts.Prefix, "/"),
	}, nil
}

// Bucket returns the target bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}

// Key builds the object key for a stored artifact.
func (c *Client) Key(analysisID, filename string) string {
	return ObjectKey(c.prefix, analysisID, filename)
}

// ObjectKey joins prefix, analysis ID and file name with '/'.
func ObjectKey(prefix, analysisID, filename string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return path.Join(analysisID, filename)
	}
	return path.Join(prefix, analysisID, filename)
}

// UploadResult contains upload metadata
type UploadResult struct {
	Key    string
	SHA256 string
	Size   int64
}

// Upload uploads a local file and records its SHA256
func (c *Client) Upload(ctx context.Context, localPath, key, contentType string) (*UploadResult, error) {
	log.Info().Str("bucket", c.bucket).Str("s3_key", key).Str("local_path", localPath).Msg("s3_upload_start")

	checksum, size, err := FileChecksum(localPath)
	if err != nil {
		log.Error().Err(err).Str("path", localPath).Msg("local_file_checksum_failed")
		return nil, err
	}

	f, err := os.Open(localPath)
	if err != nil {
		log.Error().Err(err).Str("path", localPath).Msg("local_file_open_failed")
		return nil, errors.Wrap(err, "failed to open local file")
	}
	defer f.Close()

	input := &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(size),
		Metadata:      map[string]string{"sha256": checksum},
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := c.s3Client.PutObject(ctx, input); err != nil {
		log.Error().Err(err).Str("s3_key", key).Msg("s3_put_object_failed")
		return nil, errors.Wrap(err, "failed to upload object to S3")
	}

	log.Info().
		Str("s3_key", key).
		Int64("size_mb", size/1024/1024).
		Str("sha256", checksum[:16]+"...").
		Msg("s3_upload_complete")

	return &UploadResult{Key: key, SHA256: checksum, Size: size}, nil
}

// Exists checks if an object exists in S3
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	_, err := c.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})

	if err != nil {
		if isNotFound(err) {
			log.Info().Str("s3_key", key).Msg("s3_object_not_found")
			return false, nil
		}
		log.Error().Err(err).Str("s3_key", key).Msg("s3_head_object_failed")
		return false, errors.Wrap(err, "failed to check object existence")
	}

	log.Info().Str("s3_key", key).Msg("s3_object_exists")
	return true, nil
}

// Delete removes an object. Deleting a missing key is not an error.
func (c *Client) Delete(ctx context.Context, key string) error {
	_, err := c.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		log.Error().Err(err).Str("s3_key", key).Msg("s3_delete_object_failed")
		return errors.Wrap(err, "failed to delete object")
	}
	log.Info().Str("s3_key", key).Msg("s3_object_deleted")
	return nil
}

// FileChecksum returns the hex SHA256 and size of a local file.
func FileChecksum(localPath string) (string, int64, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", 0, errors.Wrap(err, "failed to open local file")
	}
	defer f.Close()

	hash := sha256.New()
	size, err := io.Copy(hash, f)
	if err != nil {
		return "", 0, errors.Wrap(err, "failed to hash local file")
	}
	return hex.EncodeToString(hash.Sum(nil)), size, nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if stderrors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if stderrors.As(err, &nsk) {
		return true
	}
	var re *awshttp.ResponseError
	return stderrors.As(err, &re) && re.HTTPStatusCode() == 404
}
