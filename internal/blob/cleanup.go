package blob

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/mailhaven/mailstore/internal/config"
	"github.com/mailhaven/mailstore/internal/metrics"
)

// KeyChecker reports which storage keys are still referenced by attachment
// rows.
type KeyChecker interface {
	AttachmentKeysExist(ctx context.Context, keys []string) (map[string]bool, error)
}

// CleanupJob periodically sweeps the bucket for orphaned attachment blobs:
// objects whose key no longer appears in the attachments table. Orphans
// arise from the documented ingestion trade-off (attachments are uploaded
// before the message record commits) and from swallowed delete failures.
type CleanupJob struct {
	store      *Store
	keyChecker KeyChecker
	cfg        config.CleanupConfig
	logger     *slog.Logger

	mu         sync.Mutex
	running    bool
	stopCh     chan struct{}
	wg         sync.WaitGroup
	lastResult *CleanupResult
}

// CleanupResult holds the outcome of one sweep.
type CleanupResult struct {
	StartTime      time.Time
	EndTime        time.Time
	ObjectsScanned int
	OrphansFound   int
	OrphansDeleted int
	BytesFreed     int64
}

// NewCleanupJob creates the reconciliation sweep.
func NewCleanupJob(store *Store, keyChecker KeyChecker, cfg config.CleanupConfig, logger *slog.Logger) *CleanupJob {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupJob{store: store, keyChecker: keyChecker, cfg: cfg, logger: logger}
}

// Start begins the periodic sweep. It is a no-op when cleanup is disabled.
func (j *CleanupJob) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running || !j.cfg.Enabled {
		return
	}
	j.running = true
	j.stopCh = make(chan struct{})
	j.wg.Add(1)
	go j.run()
	j.logger.Info("orphan cleanup sweep started",
		slog.Duration("interval", j.cfg.Interval),
		slog.Duration("age_threshold", j.cfg.AgeThreshold))
}

// Stop stops the sweep and waits for an in-flight run to finish.
func (j *CleanupJob) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	j.running = false
	close(j.stopCh)
	j.mu.Unlock()
	j.wg.Wait()
}

// LastResult returns the outcome of the most recent sweep, if any.
func (j *CleanupJob) LastResult() *CleanupResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastResult
}

func (j *CleanupJob) run() {
	defer j.wg.Done()
	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			if _, err := j.RunOnce(ctx); err != nil {
				j.logger.Error("orphan cleanup sweep failed", slog.String("error", err.Error()))
			}
			cancel()
		case <-j.stopCh:
			return
		}
	}
}

type candidate struct {
	key  string
	size int64
}

// RunOnce performs a single sweep: list the bucket, batch-check keys
// against the attachments table, delete objects old enough to be certainly
// orphaned rather than mid-ingestion.
func (j *CleanupJob) RunOnce(ctx context.Context) (*CleanupResult, error) {
	result := &CleanupResult{StartTime: time.Now()}
	cutoff := result.StartTime.Add(-j.cfg.AgeThreshold)

	paginator := s3.NewListObjectsV2Paginator(j.store.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(j.store.bucket),
		Prefix: aws.String(keyPrefix),
	})

	var batch []candidate
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		orphans, err := j.filterOrphans(ctx, batch)
		if err != nil {
			return err
		}
		result.OrphansFound += len(orphans)
		deleted, freed := j.deleteOrphans(ctx, orphans)
		result.OrphansDeleted += deleted
		result.BytesFreed += freed
		batch = batch[:0]
		return nil
	}

	for paginator.HasMorePages() {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return result, fmt.Errorf("list attachment objects: %w", err)
		}
		for _, obj := range page.Contents {
			result.ObjectsScanned++
			if obj.Key == nil {
				continue
			}
			if obj.LastModified != nil && obj.LastModified.After(cutoff) {
				continue
			}
			batch = append(batch, candidate{key: *obj.Key, size: aws.ToInt64(obj.Size)})
			if len(batch) >= j.cfg.BatchSize {
				if err := flush(); err != nil {
					return result, err
				}
			}
		}
	}
	if err := flush(); err != nil {
		return result, err
	}

	result.EndTime = time.Now()
	j.mu.Lock()
	j.lastResult = result
	j.mu.Unlock()

	metrics.CleanupRunsTotal.Inc()
	metrics.CleanupOrphansDeleted.Add(float64(result.OrphansDeleted))
	j.logger.Info("orphan cleanup sweep completed",
		slog.Int("scanned", result.ObjectsScanned),
		slog.Int("orphans_found", result.OrphansFound),
		slog.Int("orphans_deleted", result.OrphansDeleted),
		slog.Int64("bytes_freed", result.BytesFreed),
		slog.Duration("duration", result.EndTime.Sub(result.StartTime)))
	return result, nil
}

func (j *CleanupJob) filterOrphans(ctx context.Context, batch []candidate) ([]candidate, error) {
	keys := make([]string, len(batch))
	for i, c := range batch {
		keys[i] = c.key
	}
	exists, err := j.keyChecker.AttachmentKeysExist(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("check attachment keys: %w", err)
	}
	var orphans []candidate
	for _, c := range batch {
		if !exists[c.key] {
			orphans = append(orphans, c)
		}
	}
	return orphans, nil
}

func (j *CleanupJob) deleteOrphans(ctx context.Context, orphans []candidate) (int, int64) {
	if len(orphans) == 0 {
		return 0, 0
	}
	identifiers := make([]types.ObjectIdentifier, len(orphans))
	sizeByKey := make(map[string]int64, len(orphans))
	for i, o := range orphans {
		identifiers[i] = types.ObjectIdentifier{Key: aws.String(o.key)}
		sizeByKey[o.key] = o.size
	}

	output, err := j.store.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(j.store.bucket),
		Delete: &types.Delete{Objects: identifiers, Quiet: aws.Bool(false)},
	})
	if err != nil {
		j.logger.Warn("orphan batch delete failed", slog.String("error", err.Error()))
		return 0, 0
	}

	var freed int64
	for _, d := range output.Deleted {
		freed += sizeByKey[aws.ToString(d.Key)]
	}
	for _, e := range output.Errors {
		j.logger.Warn("orphan delete failed",
			slog.String("key", aws.ToString(e.Key)),
			slog.String("error", aws.ToString(e.Message)))
	}
	return len(output.Deleted), freed
}
