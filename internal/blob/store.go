// Package blob translates attachment bytes to and from the S3-compatible
// blob backend, generating account-scoped storage keys and time-limited
// download URLs.
package blob

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/mailhaven/mailstore/internal/config"
	"github.com/mailhaven/mailstore/internal/mailerr"
	"github.com/mailhaven/mailstore/internal/metrics"
	"github.com/mailhaven/mailstore/internal/quota"
	"github.com/mailhaven/mailstore/internal/repository"
)

// keyPrefix scopes every attachment object in the bucket.
const keyPrefix = "attachments/"

// deleteBatchSize is the S3 DeleteObjects request cap.
const deleteBatchSize = 1000

// File is an attachment to be uploaded.
type File struct {
	Filename    string
	ContentType string
	Data        []byte
	ContentID   *string
	Inline      bool
}

// Store wraps the S3 client for attachment storage.
type Store struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucket        string
	presignExpiry time.Duration
	tiers         quota.TierLookup
	logger        *slog.Logger
}

// NewStore creates a blob store against an S3/MinIO endpoint.
func NewStore(cfg *config.BlobConfig, tiers quota.TierLookup, logger *slog.Logger) *Store {
	endpointURL := cfg.Endpoint
	if !strings.HasPrefix(endpointURL, "http://") && !strings.HasPrefix(endpointURL, "https://") {
		protocol := "http"
		if cfg.UseSSL {
			protocol = "https"
		}
		endpointURL = protocol + "://" + endpointURL
	}

	client := s3.New(s3.Options{
		Region: cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		),
		BaseEndpoint: aws.String(endpointURL),
		UsePathStyle: true, // required for MinIO
	})

	presignExpiry := cfg.PresignExpiry
	if presignExpiry == 0 {
		presignExpiry = time.Hour
	}
	if tiers == nil {
		tiers = quota.NewStaticTierLookup()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		bucket:        cfg.Bucket,
		presignExpiry: presignExpiry,
		tiers:         tiers,
		logger:        logger,
	}
}

// GenerateKey builds the storage key for an attachment. Keys are scoped
// under the owning account so distinct accounts can never collide.
func GenerateKey(accountID uuid.UUID, filename string) string {
	name := SanitizeFilename(filename)
	if name == "" {
		name = "attachment"
	}
	return fmt.Sprintf("%s%s/%s_%s", keyPrefix, accountID, uuid.New(), name)
}

// SanitizeFilename strips path components and characters unsafe in a
// storage key.
func SanitizeFilename(filename string) string {
	name := filepath.Base(filename)
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	if name == "." || name == ".." {
		return ""
	}
	return name
}

// Checksum returns the hex SHA-256 of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Upload stores the file under an account-scoped key and returns the
// attachment descriptor. Files over the account tier's per-attachment
// ceiling are rejected with mailerr.ErrAttachmentTooLarge before any bytes
// leave the process.
func (s *Store) Upload(ctx context.Context, accountID uuid.UUID, file File) (*repository.Attachment, error) {
	tier, err := s.tiers.TierOf(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("resolve tier: %w", err)
	}
	size := int64(len(file.Data))
	if tier.MaxAttachmentBytes > 0 && size > tier.MaxAttachmentBytes {
		return nil, mailerr.ErrAttachmentTooLarge
	}

	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := GenerateKey(accountID, file.Filename)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(file.Data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		metrics.BlobOpsTotal.WithLabelValues("upload", "error").Inc()
		return nil, fmt.Errorf("put attachment object: %w", err)
	}
	metrics.BlobOpsTotal.WithLabelValues("upload", "success").Inc()

	return &repository.Attachment{
		ID:          uuid.New(),
		Filename:    file.Filename,
		ContentType: contentType,
		SizeBytes:   size,
		StorageKey:  key,
		Checksum:    Checksum(file.Data),
		ContentID:   file.ContentID,
		Inline:      file.Inline,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// PresignDownload returns a time-bounded URL for client-side retrieval of
// the object. Ownership of the referencing message must be verified by the
// caller before the URL is exposed.
func (s *Store) PresignDownload(ctx context.Context, key string) (string, time.Duration, error) {
	req, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.presignExpiry))
	if err != nil {
		metrics.BlobOpsTotal.WithLabelValues("presign", "error").Inc()
		return "", 0, fmt.Errorf("presign download: %w", err)
	}
	metrics.BlobOpsTotal.WithLabelValues("presign", "success").Inc()
	return req.URL, s.presignExpiry, nil
}

// DeleteBatch deletes objects by key, batched to the S3 request cap.
// Failures are logged and swallowed: a failed blob cleanup must never block
// the logical delete that triggered it; the reconciliation sweep picks up
// the leftovers.
func (s *Store) DeleteBatch(ctx context.Context, keys []string) {
	for i := 0; i < len(keys); i += deleteBatchSize {
		end := min(i+deleteBatchSize, len(keys))
		batch := keys[i:end]

		identifiers := make([]types.ObjectIdentifier, len(batch))
		for j, key := range batch {
			identifiers[j] = types.ObjectIdentifier{Key: aws.String(key)}
		}

		output, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: identifiers, Quiet: aws.Bool(true)},
		})
		if err != nil {
			metrics.BlobOpsTotal.WithLabelValues("delete", "error").Inc()
			s.logger.Warn("attachment blob cleanup failed",
				slog.Int("keys", len(batch)), slog.String("error", err.Error()))
			continue
		}
		metrics.BlobOpsTotal.WithLabelValues("delete", "success").Inc()
		for _, e := range output.Errors {
			s.logger.Warn("attachment blob delete failed",
				slog.String("key", aws.ToString(e.Key)),
				slog.String("error", aws.ToString(e.Message)))
		}
	}
}
