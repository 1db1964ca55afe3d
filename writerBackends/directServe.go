package writerbackends

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"roundify/logger"
)

// DirectServePath resolves filename inside baseDir/folder and refuses
// anything that would escape baseDir.
func DirectServePath(baseDir, folder, filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) || filename == "." || filename == ".." {
		return "", fmt.Errorf("invalid filename %q", filename)
	}
	root, err := filepath.Abs(baseDir)
	if err != nil {
		return "", err
	}
	full := filepath.Join(root, folder, filename)
	if !strings.HasPrefix(full, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("path %q escapes serve directory", full)
	}
	return full, nil
}

// UploadToDirectServe writes reader into the local serve directory and
// returns the written path. The file only becomes visible under its final
// name once fully written.
func UploadToDirectServe(ctx context.Context, accessInfo map[string]string, reader io.Reader) (string, error) {
	fullPath, err := DirectServePath(accessInfo["baseDir"], accessInfo["folder"], accessInfo["filename"])
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directories: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".partial-*")
	if err != nil {
		return "", fmt.Errorf("failed to create file for %s: %w", fullPath, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: reader}); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write to file %s: %w", fullPath, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close file %s: %w", fullPath, err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return "", fmt.Errorf("failed to publish file %s: %w", fullPath, err)
	}

	logger.Infof("Successfully saved file '%s' to '%s'", accessInfo["filename"], fullPath)
	return fullPath, nil
}

// DeleteFromDirectServe removes a served file. A missing file is not an error.
func DeleteFromDirectServe(baseDir, folder, filename string) error {
	fullPath, err := DirectServePath(baseDir, folder, filename)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
