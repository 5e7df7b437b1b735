package app

import (
	"context"

	"github.com/odyssey-erp/issuedesk/internal/filestore"
	"github.com/odyssey-erp/issuedesk/internal/platform/cache"
)

// NewFileStore builds the attachment store selected by STORAGE_DRIVER. The returned
// directory is non-empty when files live on local disk and must be served by the API.
func NewFileStore(ctx context.Context, cfg *Config) (filestore.Store, string, error) {
	if cfg.StorageDriver == "minio" {
		store, err := filestore.NewMinIO(ctx, filestore.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
			URLTTL:    cfg.MinIOURLTTL,
		})
		if err != nil {
			return nil, "", err
		}
		return store, "", nil
	}
	disk, err := filestore.NewDisk(cfg.UploadDir, "/uploads")
	if err != nil {
		return nil, "", err
	}
	return disk, disk.Dir(), nil
}

// RedisOptions returns the redis connection settings from cfg.
func (c *Config) RedisOptions() cache.Options {
	return cache.Options{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}
