package remote

import (
	"context"
	"fmt"

	"mediadex/internal/config"
	"mediadex/internal/index"
)

// NewFromConfig creates a RemoteSource implementation based on the remote
// config type.
func NewFromConfig(ctx context.Context, cfg config.RemoteConfig) (index.RemoteSource, error) {
	switch cfg.Type {
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 remote requires s3_bucket to be set")
		}
		return NewS3Remote(ctx, cfg)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown remote type: %s", cfg.Type)
	}
}
