package writerbackends

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"roundify/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// UploadToMinio streams reader to an S3-compatible MinIO bucket.
// accessInfo needs endpoint, accessKey, secretKey and bucket; region and
// useSSL are optional.
func UploadToMinio(ctx context.Context, accessInfo map[string]string, reader io.Reader) error {
	endpoint := accessInfo["endpoint"]
	bucket := accessInfo["bucket"]
	object := objectKey(accessInfo, "object")
	if endpoint == "" || bucket == "" || object == "" {
		return fmt.Errorf("missing required accessInfo keys: endpoint, bucket, filename")
	}
	useSSL, _ := strconv.ParseBool(accessInfo["useSSL"])

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessInfo["accessKey"], accessInfo["secretKey"], ""),
		Secure: useSSL,
		Region: accessInfo["region"],
	})
	if err != nil {
		return fmt.Errorf("minio connection: %w", err)
	}

	info, err := client.PutObject(ctx, bucket, object, reader, -1, minio.PutObjectOptions{
		ContentType: "video/mp4",
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %s to bucket %s: %w", object, bucket, err)
	}

	logger.Infof("Successfully uploaded object '%s' (%d bytes) to bucket '%s'", object, info.Size, bucket)
	return nil
}
