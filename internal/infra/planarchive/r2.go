package planarchive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/yanqian/mealplanner/internal/domain/mealplan"
)

// R2Archive stores delivered plans in Cloudflare R2 via the S3-compatible API.
type R2Archive struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// NewR2Archive constructs the archive adapter.
func NewR2Archive(endpoint, accessKey, secretKey, bucket, region string, logger *slog.Logger) (*R2Archive, error) {
	if logger == nil {
		logger = slog.Default()
	}
	useSSL := !strings.HasPrefix(strings.ToLower(strings.TrimSpace(endpoint)), "http://")
	client, err := minio.New(sanitizeEndpoint(endpoint), &minio.Options{
		Creds:        credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure:       useSSL,
		Region:       region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("init r2 client: %w", err)
	}
	return &R2Archive{client: client, bucket: bucket, logger: logger.With("component", "planarchive.r2")}, nil
}

func (a *R2Archive) ensureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err == nil && exists {
		return nil
	}
	err = a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{})
	if err != nil && minio.ToErrorResponse(err).Code != "BucketAlreadyOwnedByYou" {
		return err
	}
	return nil
}

// Archive uploads plan as JSON and returns its object key.
func (a *R2Archive) Archive(ctx context.Context, userID int64, plan mealplan.MealPlan) (string, error) {
	payload, err := json.Marshal(plan)
	if err != nil {
		return "", err
	}
	if err := a.ensureBucket(ctx); err != nil {
		return "", err
	}
	key := ObjectKey(userID, plan.ID)
	info, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType:      "application/json",
		DisableMultipart: true,
	})
	if err != nil {
		return "", err
	}
	a.logger.Debug("plan archived", "key", key, "etag", info.ETag, "size", info.Size)
	return key, nil
}

// sanitizeEndpoint removes schemes and paths to satisfy minio.New expectations.
func sanitizeEndpoint(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
	if idx := strings.Index(raw, "/"); idx >= 0 {
		raw = raw[:idx]
	}
	return raw
}

var _ mealplan.Archiver = (*R2Archive)(nil)
