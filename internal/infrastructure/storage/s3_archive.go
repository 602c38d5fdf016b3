// Package storage archives listing snapshots in S3 compatible object storage.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/application/ports"
	"github.com/Inventorum/ebay-sub000/internal/domain/listing"
	"github.com/Inventorum/ebay-sub000/internal/domain/shared"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var _ ports.SnapshotArchive = (*S3SnapshotArchive)(nil)

// ArchivedSnapshot is the object written for every published item
type ArchivedSnapshot struct {
	ItemID                uuid.UUID               `json:"item_id"`
	AccountID             uuid.UUID               `json:"account_id"`
	ProductID             uuid.UUID               `json:"product_id"`
	Status                listing.PublishStatus   `json:"status"`
	ExternalMarketplaceID *string                 `json:"external_marketplace_id,omitempty"`
	PublishedAt           *time.Time              `json:"published_at,omitempty"`
	ArchivedAt            time.Time               `json:"archived_at"`
	Snapshot              listing.ListingSnapshot `json:"snapshot"`
}

// S3SnapshotArchive implements ports.SnapshotArchive on the AWS S3 SDK v2.
// Works against AWS S3, MinIO and other S3 compatible stores.
type S3SnapshotArchive struct {
	client *s3.Client
	bucket string
	prefix string
	logger *zap.Logger
	now    func() time.Time
}

// Option configures S3SnapshotArchive
type Option func(*S3SnapshotArchive)

// WithLogger sets a custom logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *S3SnapshotArchive) {
		s.logger = logger
	}
}

// WithClock overrides the archive timestamp source
func WithClock(now func() time.Time) Option {
	return func(s *S3SnapshotArchive) {
		s.now = now
	}
}

// NewS3SnapshotArchive builds the archive from configuration
func NewS3SnapshotArchive(cfg Config, opts ...Option) (*S3SnapshotArchive, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "http://localhost:9000"
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if cfg.UseSSL {
			endpoint = "https://" + endpoint
		} else {
			endpoint = "http://" + endpoint
		}
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("invalid storage endpoint: %w", err)
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		o.BaseEndpoint = aws.String(endpoint)
	})

	archive := &S3SnapshotArchive{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(archive)
	}
	return archive, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (s *S3SnapshotArchive) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	s.logger.Info("Creating snapshot bucket", zap.String("bucket", s.bucket))
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		var alreadyOwned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &alreadyOwned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Key returns the object key of an item snapshot:
// <prefix>/<account_id>/<product_id>/<item_id>.json
func (s *S3SnapshotArchive) Key(accountID, productID, itemID uuid.UUID) string {
	return path.Join(s.prefix, accountID.String(), productID.String(), itemID.String()+".json")
}

// ArchiveSnapshot implements ports.SnapshotArchive
func (s *S3SnapshotArchive) ArchiveSnapshot(ctx context.Context, item *listing.PublishableItem) error {
	if item == nil {
		return errors.New("storage: item is required")
	}
	doc := ArchivedSnapshot{
		ItemID:                item.ID,
		AccountID:             item.AccountID,
		ProductID:             item.ProductID,
		Status:                item.Status,
		ExternalMarketplaceID: item.ExternalMarketplaceID,
		PublishedAt:           item.PublishedAt,
		ArchivedAt:            s.now().UTC(),
		Snapshot:              item.Snapshot,
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("storage: failed to encode snapshot: %w", err)
	}

	key := s.Key(item.AccountID, item.ProductID, item.ID)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(payload),
		ContentLength: aws.Int64(int64(len(payload))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload snapshot %s: %w", key, err)
	}

	s.logger.Debug("Archived listing snapshot",
		zap.String("bucket", s.bucket),
		zap.String("key", key),
	)
	return nil
}

// LoadSnapshot reads an archived snapshot back. A missing object wraps
// shared.ErrNotFound.
func (s *S3SnapshotArchive) LoadSnapshot(ctx context.Context, accountID, productID, itemID uuid.UUID) (*ArchivedSnapshot, error) {
	key := s.Key(accountID, productID, itemID)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		var notFound *types.NotFound
		if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: snapshot %s", shared.ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to download snapshot %s: %w", key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", key, err)
	}
	var doc ArchivedSnapshot
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("storage: failed to decode snapshot %s: %w", key, err)
	}
	return &doc, nil
}

// Bucket returns the bucket name
func (s *S3SnapshotArchive) Bucket() string {
	return s.bucket
}
