package writerbackends

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"

	"roundify/logger"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// UploadToGCSWithJSON uploads content from an io.Reader to a Google Cloud Storage object,
// using a service account key given as base64 or raw JSON in "credentialsJSON".
func UploadToGCSWithJSON(ctx context.Context, accessInfo map[string]string, reader io.Reader) error {
	raw := accessInfo["credentialsJSON"]
	credentialsJSON, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		credentialsJSON = []byte(raw)
	}
	bucketName := accessInfo["bucket"]
	objectName := objectKey(accessInfo, "object")
	if bucketName == "" || objectName == "" {
		return fmt.Errorf("missing required accessInfo keys: bucket, filename")
	}

	client, err := storage.NewClient(ctx, option.WithCredentialsJSON(credentialsJSON))
	if err != nil {
		return fmt.Errorf("storage.NewClient: %w", err)
	}
	defer client.Close()

	wc := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	wc.ContentType = "video/mp4"

	if _, err = io.Copy(wc, reader); err != nil {
		wc.Close()
		return fmt.Errorf("io.Copy: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("Writer.Close: %w", err)
	}

	logger.Infof("Successfully uploaded object '%s' to bucket '%s'", objectName, bucketName)
	return nil
}
