package writerbackends

import (
	"context"
	"fmt"
	"io"
)

// Backend types accepted by WriteArtifact.
const (
	BackendDirectServe = "directServe"
	BackendS3          = "s3"
	BackendGCS         = "gcs"
	BackendSFTP        = "sftp"
	BackendMinio       = "minio"
)

// WriteArtifact streams reader to the backend named by backendType.
// accessInfo carries the backend credentials plus "filename" and an
// optional "folder".
func WriteArtifact(ctx context.Context, accessInfo map[string]string, reader io.Reader, backendType string) error {
	switch backendType {
	case BackendDirectServe:
		if _, err := UploadToDirectServe(ctx, accessInfo, reader); err != nil {
			return fmt.Errorf("failed to upload to direct serve: %w", err)
		}
	case BackendS3:
		if err := UploadToS3WithCreds(ctx, accessInfo, reader); err != nil {
			return fmt.Errorf("failed to upload to S3: %w", err)
		}
	case BackendGCS:
		if err := UploadToGCSWithJSON(ctx, accessInfo, reader); err != nil {
			return fmt.Errorf("failed to upload to GCS: %w", err)
		}
	case BackendSFTP:
		if err := UploadToSFTPWithCreds(ctx, accessInfo, reader); err != nil {
			return fmt.Errorf("failed to upload to SFTP: %w", err)
		}
	case BackendMinio:
		if err := UploadToMinio(ctx, accessInfo, reader); err != nil {
			return fmt.Errorf("failed to upload to MinIO: %w", err)
		}
	default:
		return fmt.Errorf("unknown backend type: %s", backendType)
	}
	return nil
}

// IsKnownBackend reports whether WriteArtifact accepts backendType.
func IsKnownBackend(backendType string) bool {
	switch backendType {
	case BackendDirectServe, BackendS3, BackendGCS, BackendSFTP, BackendMinio:
		return true
	}
	return false
}

// objectKey joins folder and filename with a forward slash, or returns an
// explicit override when set.
func objectKey(accessInfo map[string]string, override string) string {
	if key := accessInfo[override]; key != "" {
		return key
	}
	if folder := accessInfo["folder"]; folder != "" {
		return folder + "/" + accessInfo["filename"]
	}
	return accessInfo["filename"]
}
