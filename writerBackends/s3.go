package writerbackends

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"roundify/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// newS3Client builds a client from registered credentials. An "endpoint"
// entry targets an S3-compatible service and switches to path-style
// addressing.
func newS3Client(accessInfo map[string]string) *s3.Client {
	opts := s3.Options{
		Region:      accessInfo["region"],
		Credentials: credentials.NewStaticCredentialsProvider(accessInfo["accessKey"], accessInfo["secretKey"], ""),
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}
	if endpoint := accessInfo["endpoint"]; endpoint != "" {
		opts.BaseEndpoint = aws.String(endpoint)
		opts.UsePathStyle = true
	}
	return s3.New(opts)
}

// UploadToS3WithCreds mirrors a clip to an S3 bucket. accessInfo needs
// bucket and filename (or key); region, endpoint and folder are optional.
func UploadToS3WithCreds(ctx context.Context, accessInfo map[string]string, reader io.Reader) error {
	bucket := accessInfo["bucket"]
	key := objectKey(accessInfo, "key")
	if bucket == "" || key == "" {
		return errors.New("missing required accessInfo keys: bucket, filename")
	}

	uploader := manager.NewUploader(newS3Client(accessInfo), func(u *manager.Uploader) {
		u.PartSize = 8 << 20
	})
	out, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:             aws.String(bucket),
		Key:                aws.String(key),
		Body:               reader,
		ContentType:        aws.String("video/mp4"),
		ContentDisposition: aws.String(fmt.Sprintf("attachment; filename=%q", path.Base(key))),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %s to bucket %s: %w", key, bucket, err)
	}

	logger.Infof("Mirrored clip to s3://%s/%s (%s)", bucket, key, out.Location)
	return nil
}
