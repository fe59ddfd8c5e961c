package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/printforge/preflight/internal/convert"
	"github.com/printforge/preflight/internal/detect"
	"github.com/printforge/preflight/internal/model"
	"github.com/printforge/preflight/internal/preflight"
	"github.com/printforge/preflight/internal/repository/upload"
	"github.com/printforge/preflight/internal/storage"
)

// repository defines the persistence operations the service needs.
type repository interface {
	GetShop(ctx context.Context, id uuid.UUID) (model.Shop, error)
	GetUpload(ctx context.Context, id uuid.UUID) (model.Upload, error)
	GetItem(ctx context.Context, id uuid.UUID) (model.UploadItem, error)
	CreateUpload(ctx context.Context, shopID uuid.UUID) (uuid.UUID, error)
	CreateItem(ctx context.Context, uploadID uuid.UUID, storageKey string) (uuid.UUID, error)
	SetItemProgress(ctx context.Context, id uuid.UUID, progress int) error
	SetItemThumbnail(ctx context.Context, id uuid.UUID, key string) error
	FinishItem(ctx context.Context, id uuid.UUID, status model.ItemStatus, result model.PreflightResult) error
	RecomputeUpload(ctx context.Context, uploadID uuid.UUID) error
}

// producer defines the interface for republishing jobs whose transient
// failures exhausted in-process retries.
type producer interface {
	Produce(ctx context.Context, job model.Job) error
}

// converter rasterizes non-raster formats into PNG.
type converter interface {
	Supports(detected string) bool
	Rasterize(ctx context.Context, detected, src, dst string) error
}

// thumbnailer renders preview thumbnails.
type thumbnailer interface {
	FromRaster(src, dst string) error
	Placeholder(label, dst string) error
}

// checkEngine evaluates the plan-configured checks.
type checkEngine interface {
	Run(in preflight.Input, cfg preflight.Config) []model.CheckResult
}

// Config carries the service tunables.
type Config struct {
	// MaxAttempts bounds queue-level redeliveries of a job whose
	// transient failures keep exhausting in-process retries.
	MaxAttempts int
	// MinDownloadBytes is the smallest plausible design file; anything
	// shorter is treated as a truncated transfer.
	MinDownloadBytes int64
	// DefaultPlan names the check config used when a shop's plan has
	// no entry in Plans.
	DefaultPlan string
	Plans       map[string]preflight.Config
}

// Service runs the preflight pipeline for one job: fetch the original,
// identify and rasterize it, run the checks, generate a thumbnail and
// persist the item result plus the order-level aggregate.
type Service struct {
	repo        repository
	producer    producer
	converter   converter
	thumbnailer thumbnailer
	engine      checkEngine
	backends    map[string]storage.Backend
	strategy    retry.Strategy
	cfg         Config
}

// New creates a new Service. backends maps a shop's storage provider
// name to the backend serving it.
func New(
	repo repository,
	p producer,
	conv converter,
	thumb thumbnailer,
	engine checkEngine,
	backends map[string]storage.Backend,
	strategy retry.Strategy,
	cfg Config,
) *Service {
	return &Service{
		repo:        repo,
		producer:    p,
		converter:   conv,
		thumbnailer: thumb,
		engine:      engine,
		backends:    backends,
		strategy:    strategy,
		cfg:         cfg,
	}
}

// EnqueueUpload registers a new upload with one item per storage key
// and publishes a preflight job for each. The returned slice holds the
// created item IDs in input order.
func (s *Service) EnqueueUpload(ctx context.Context, shopID uuid.UUID, storageKeys []string) (uuid.UUID, []uuid.UUID, error) {
	if _, err := s.repo.GetShop(ctx, shopID); err != nil {
		return uuid.Nil, nil, fmt.Errorf("get shop: %w", err)
	}

	uploadID, err := s.repo.CreateUpload(ctx, shopID)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("create upload: %w", err)
	}

	itemIDs := make([]uuid.UUID, 0, len(storageKeys))
	for _, key := range storageKeys {
		itemID, err := s.repo.CreateItem(ctx, uploadID, key)
		if err != nil {
			return uuid.Nil, nil, fmt.Errorf("create item: %w", err)
		}

		job := model.Job{
			UploadID:   uploadID,
			ShopID:     shopID,
			ItemID:     itemID,
			StorageKey: key,
		}
		if err := s.producer.Produce(ctx, job); err != nil {
			return uuid.Nil, nil, fmt.Errorf("enqueue job: %w", err)
		}

		itemIDs = append(itemIDs, itemID)
	}

	return uploadID, itemIDs, nil
}

// Upload returns the order-level state for the dashboard.
func (s *Service) Upload(ctx context.Context, id uuid.UUID) (model.Upload, error) {
	return s.repo.GetUpload(ctx, id)
}

// Item returns the per-item state including the persisted check results.
func (s *Service) Item(ctx context.Context, id uuid.UUID) (model.UploadItem, error) {
	return s.repo.GetItem(ctx, id)
}

// Process executes the pipeline for one job. A nil return commits the
// message: permanent failures are recorded on the item rather than
// returned, and transient failures are republished with an incremented
// attempt counter.
func (s *Service) Process(ctx context.Context, job model.Job) error {
	log := zlog.Logger.With().
		Str("itemId", job.ItemID.String()).
		Str("uploadId", job.UploadID.String()).
		Int("attempt", job.Attempt).
		Logger()

	shop, err := s.repo.GetShop(ctx, job.ShopID)
	if err != nil {
		if errors.Is(err, upload.ErrShopNotFound) {
			log.Warn().Str("shopId", job.ShopID.String()).Msg("shop not found, failing item")
			return s.failItem(ctx, job, "shop", "shop configuration is missing")
		}
		return fmt.Errorf("get shop: %w", err)
	}

	item, err := s.repo.GetItem(ctx, job.ItemID)
	if err != nil {
		if errors.Is(err, upload.ErrItemNotFound) {
			// The item row is gone; nothing to record a result on.
			log.Warn().Msg("item not found, dropping job")
			return nil
		}
		return fmt.Errorf("get item: %w", err)
	}
	if item.PreflightStatus != model.ItemPending {
		// Redelivery of an already finished item. The first result stands.
		log.Info().Str("status", string(item.PreflightStatus)).Msg("item already finished, skipping")
		return nil
	}

	backend, ok := s.backends[shop.StorageProvider]
	if !ok {
		log.Warn().Str("provider", shop.StorageProvider).Msg("unknown storage provider, failing item")
		return s.failItem(ctx, job, "storage", fmt.Sprintf("storage provider %q is not configured", shop.StorageProvider))
	}

	workDir, err := os.MkdirTemp("", "preflight-*")
	if err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	original := filepath.Join(workDir, "original")
	if err := s.download(ctx, backend, job.StorageKey, original); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Warn().Str("key", job.StorageKey).Msg("original object missing, failing item")
			return s.failItem(ctx, job, "download", "uploaded file is missing from storage")
		}
		if !storage.Retryable(err) {
			log.Err(err).Str("key", job.StorageKey).Msg("download failed permanently, failing item")
			return s.failItem(ctx, job, "download", "uploaded file could not be retrieved from storage")
		}
		return s.retryOrFail(ctx, job, log, err, "download", "uploaded file could not be retrieved from storage")
	}

	if err := s.repo.SetItemProgress(ctx, job.ItemID, 25); err != nil {
		log.Err(err).Msg("failed to update progress")
	}

	info, err := os.Stat(original)
	if err != nil {
		return fmt.Errorf("stat download: %w", err)
	}

	detected, err := detect.DetectFile(original)
	if err != nil {
		return fmt.Errorf("detect type: %w", err)
	}
	log.Info().Str("type", detected).Int64("bytes", info.Size()).Msg("identified upload")

	// Rasterize if needed. Conversion failure degrades to a warning:
	// the original upload is untouched and the checks that need pixels
	// report themselves unmeasurable.
	rasterPath := ""
	var conversionErr error
	switch {
	case detect.IsRaster(detected):
		rasterPath = original
	case s.converter.Supports(detected):
		converted := filepath.Join(workDir, "converted.png")
		if conversionErr = s.converter.Rasterize(ctx, detected, original, converted); conversionErr != nil {
			// A timed-out tool may succeed on a less loaded worker;
			// everything else degrades to the warning path.
			if errors.Is(conversionErr, context.DeadlineExceeded) {
				return s.retryOrFail(ctx, job, log, conversionErr, "conversion", "file conversion kept timing out")
			}
			log.Warn().Err(conversionErr).Msg("conversion failed, continuing without raster")
		} else {
			rasterPath = converted
			s.storeArtifact(ctx, backend, storage.DerivedKey(job.StorageKey, "_converted.png"), converted, log)
		}
	}

	if err := s.repo.SetItemProgress(ctx, job.ItemID, 50); err != nil {
		log.Err(err).Msg("failed to update progress")
	}

	var probe *convert.Probe
	if rasterPath != "" {
		probe, err = convert.ProbeFile(rasterPath)
		if err != nil {
			log.Warn().Err(err).Msg("raster could not be decoded")
			probe = nil
		}
	}

	checks := s.engine.Run(preflight.Input{
		DetectedType: detected,
		FileSize:     info.Size(),
		Probe:        probe,
	}, s.plan(shop.Plan))

	if s.converter.Supports(detected) && conversionErr != nil {
		checks = append(checks, model.CheckResult{
			Name:    "conversion",
			Status:  model.CheckWarning,
			Message: fmt.Sprintf("%s could not be converted for preview; the original file is preserved and remains downloadable", detect.Tag(detected)),
			Details: map[string]any{"error": conversionErr.Error()},
		})
	}

	if err := s.repo.SetItemProgress(ctx, job.ItemID, 75); err != nil {
		log.Err(err).Msg("failed to update progress")
	}

	s.generateThumbnail(ctx, backend, job, detected, rasterPath, workDir, log)

	result := model.PreflightResult{
		Overall: model.Overall(checks),
		Checks:  checks,
	}
	return s.finish(ctx, job, result, log)
}

// download fetches the original with in-process retries for transient
// failures, then sanity checks the transfer. Not-found is never retried:
// it is surfaced as a success to stop the retry loop and returned as is.
func (s *Service) download(ctx context.Context, backend storage.Backend, key, dest string) error {
	var permanent error
	err := retry.Do(func() error {
		if err := backend.Fetch(ctx, key, dest); err != nil {
			if !storage.Retryable(err) {
				permanent = err
				return nil
			}
			return err
		}
		return storage.VerifyDownload(dest, key, s.cfg.MinDownloadBytes)
	}, s.strategy)
	if err == nil {
		return permanent
	}
	return err
}

// retryOrFail republishes a transiently failed job, or records a final
// error on the item when the attempt budget is spent. The caller has
// already classified err as transient.
func (s *Service) retryOrFail(ctx context.Context, job model.Job, log zerolog.Logger, err error, check, message string) error {
	if job.Attempt+1 < s.cfg.MaxAttempts {
		next := job
		next.Attempt++
		log.Warn().Err(err).Int("nextAttempt", next.Attempt).Msg("transient failure, republishing job")
		if perr := s.producer.Produce(ctx, next); perr != nil {
			return fmt.Errorf("republish job: %w", perr)
		}
		return nil
	}

	log.Err(err).Str("check", check).Msg("transient failure exhausted attempts, failing item")
	return s.failItem(ctx, job, check, message)
}

// failItem records a terminal error with a single diagnostic check and
// recomputes the order aggregate.
func (s *Service) failItem(ctx context.Context, job model.Job, check, message string) error {
	result := model.PreflightResult{
		Overall: model.CheckError,
		Checks: []model.CheckResult{
			{Name: check, Status: model.CheckError, Message: message},
		},
	}
	return s.finish(ctx, job, result, zlog.Logger)
}

// finish persists the item result and recomputes the upload status.
func (s *Service) finish(ctx context.Context, job model.Job, result model.PreflightResult, log zerolog.Logger) error {
	status := model.ItemOK
	switch result.Overall {
	case model.CheckError:
		status = model.ItemError
	case model.CheckWarning:
		status = model.ItemWarning
	}

	if err := s.repo.FinishItem(ctx, job.ItemID, status, result); err != nil {
		return fmt.Errorf("finish item: %w", err)
	}
	if err := s.repo.RecomputeUpload(ctx, job.UploadID); err != nil {
		return fmt.Errorf("recompute upload: %w", err)
	}

	log.Info().Str("status", string(status)).Msg("item finished")
	return nil
}

// generateThumbnail renders and uploads the thumbnail. Every failure
// here is logged and swallowed: a missing thumbnail never affects the
// preflight verdict.
func (s *Service) generateThumbnail(ctx context.Context, backend storage.Backend, job model.Job, detected, rasterPath, workDir string, log zerolog.Logger) {
	thumbPath := filepath.Join(workDir, "thumb.png")

	// A failed render still gets the labeled placeholder; only a failed
	// placeholder leaves the item without a preview.
	var err error
	if rasterPath != "" {
		if err = s.thumbnailer.FromRaster(rasterPath, thumbPath); err != nil {
			log.Warn().Err(err).Msg("thumbnail render failed, falling back to placeholder")
			err = s.thumbnailer.Placeholder(detect.Tag(detected), thumbPath)
		}
	} else {
		err = s.thumbnailer.Placeholder(detect.Tag(detected), thumbPath)
	}
	if err != nil {
		log.Warn().Err(err).Msg("thumbnail generation failed")
		return
	}

	key := storage.DerivedKey(job.StorageKey, "_thumb.png")
	if err := backend.Store(ctx, key, thumbPath, "image/png"); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("thumbnail upload failed")
		return
	}
	if err := s.repo.SetItemThumbnail(ctx, job.ItemID, key); err != nil {
		log.Warn().Err(err).Msg("failed to record thumbnail key")
	}
}

// storeArtifact uploads a derived artifact best effort.
func (s *Service) storeArtifact(ctx context.Context, backend storage.Backend, key, src string, log zerolog.Logger) {
	if err := backend.Store(ctx, key, src, "image/png"); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to store converted raster")
	}
}

// plan resolves the shop's plan to a check config, falling back to the
// default plan for unknown names.
func (s *Service) plan(name string) preflight.Config {
	if cfg, ok := s.cfg.Plans[name]; ok {
		return cfg
	}
	return s.cfg.Plans[s.cfg.DefaultPlan]
}
