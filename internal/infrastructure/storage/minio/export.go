package minio

import (
	"bytes"
	"context"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

const defaultPresignExpiry = time.Hour

// ExportArchive copies "save as" files into the export bucket under
// <workspace>/<name>.
type ExportArchive struct {
	client *MinIOClient
	logger logging.Logger
}

// NewExportArchive stores exports in the bucket of client.
func NewExportArchive(client *MinIOClient, log logging.Logger) *ExportArchive {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &ExportArchive{client: client, logger: log.Named("export_archive")}
}

// ObjectKey builds the key for name in workspace. Names that would escape
// the workspace prefix are rejected.
func ObjectKey(workspace, name string) (string, error) {
	ws := strings.ToUpper(strings.Trim(strings.TrimSpace(workspace), "/"))
	clean := path.Clean(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if ws == "" || clean == "." || clean == "" {
		return "", errors.New(errors.ErrCodeValidation, "export needs a workspace and a file name")
	}
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", errors.Newf(errors.ErrCodeValidation, "export name %q must stay inside the workspace", name)
	}
	return ws + "/" + clean, nil
}

func contentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	case ".yaml", ".yml":
		return "application/yaml"
	}
	return "application/octet-stream"
}

// Upload stores data and returns its object key.
func (a *ExportArchive) Upload(ctx context.Context, workspace, name string, data []byte) (string, error) {
	key, err := ObjectKey(workspace, name)
	if err != nil {
		return "", err
	}
	api, err := a.client.api()
	if err != nil {
		return "", err
	}

	info, err := api.PutObject(ctx, a.client.Bucket(), key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType(name),
		UserMetadata: map[string]string{"workspace": strings.ToUpper(strings.TrimSpace(workspace))},
	})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeExternalService, "failed to upload export").WithDetail(key)
	}
	a.logger.Info("export archived",
		logging.String("bucket", info.Bucket),
		logging.String("key", key),
		logging.Int64("size", info.Size))
	return key, nil
}

// PresignedURL returns a download link for a previously uploaded export.
func (a *ExportArchive) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	api, err := a.client.api()
	if err != nil {
		return "", err
	}
	if expiry <= 0 {
		expiry = defaultPresignExpiry
	}
	if _, err := api.StatObject(ctx, a.client.Bucket(), key, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return "", errors.Wrap(err, errors.ErrCodeNotFound, "export not found").WithDetail(key)
		}
		return "", errors.Wrap(err, errors.ErrCodeExternalService, "failed to stat export").WithDetail(key)
	}
	u, err := api.PresignedGetObject(ctx, a.client.Bucket(), key, expiry, nil)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeExternalService, "failed to presign export").WithDetail(key)
	}
	return u.String(), nil
}
