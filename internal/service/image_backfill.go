package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/basel-ax/watchimage/internal/domain"
	"github.com/basel-ax/watchimage/internal/repository"
	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"
)

// BackfillStats summarizes one backfill pass
type BackfillStats struct {
	Checked int
	Updated int
	Missing int
	Failed  int
}

// ImageBackfillService resolves images for stored criteria and listings that have none
// Records that resolve to nothing are marked as checked and skipped until
// retryAfter has passed.
type ImageBackfillService struct {
	repo       repository.WatchImageRepository
	resolver   domain.ImageResolver
	batch      int
	retryAfter time.Duration
	now        func() time.Time
	logger     *log.Logger

	mu sync.Mutex // keeps scheduled runs from overlapping
}

// NewImageBackfillService creates a new image backfill service
func NewImageBackfillService(repo repository.WatchImageRepository, resolver domain.ImageResolver, batch int, retryAfter time.Duration, logger *log.Logger) *ImageBackfillService {
	if logger == nil {
		logger = log.Default()
	}
	return &ImageBackfillService{
		repo:       repo,
		resolver:   resolver,
		batch:      batch,
		retryAfter: retryAfter,
		now:        time.Now,
		logger:     logger,
	}
}

// RunOnce processes one batch of criteria and one batch of listings
func (s *ImageBackfillService) RunOnce(ctx context.Context) (BackfillStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats BackfillStats
	checkedBefore := s.now().Add(-s.retryAfter)

	criteria, err := s.repo.GetCriteriaMissingImage(ctx, s.batch, checkedBefore)
	if err != nil {
		return stats, fmt.Errorf("failed to get criteria missing image: %w", err)
	}
	s.process(ctx, criteria, &stats)

	listings, err := s.repo.GetListingsMissingImage(ctx, s.batch, checkedBefore)
	if err != nil {
		return stats, fmt.Errorf("failed to get listings missing image: %w", err)
	}
	s.process(ctx, listings, &stats)

	s.logger.Info("image backfill finished",
		"checked", stats.Checked, "updated", stats.Updated,
		"missing", stats.Missing, "failed", stats.Failed)
	return stats, nil
}

func (s *ImageBackfillService) process(ctx context.Context, records []domain.WatchRecord, stats *BackfillStats) {
	for _, rec := range records {
		if ctx.Err() != nil {
			return
		}
		stats.Checked++

		imageURL, ok := s.resolver.Resolve(ctx, rec.ImageRequest())
		if !ok {
			stats.Missing++
			if err := s.repo.MarkImageChecked(ctx, rec); err != nil {
				s.logger.Warn("failed to mark record as checked", "kind", string(rec.Kind), "id", rec.ID, "error", err)
			}
			continue
		}

		if err := s.repo.UpdateImageURL(ctx, rec, imageURL); err != nil {
			s.logger.Error("failed to save image URL", "kind", string(rec.Kind), "id", rec.ID, "error", err)
			stats.Failed++
			continue
		}
		stats.Updated++
	}
}

// Schedule registers RunOnce on a cron scheduler. expr uses the
// six-field format with seconds.
func (s *ImageBackfillService) Schedule(ctx context.Context, expr string) (*cron.Cron, error) {
	c := cron.New(cron.WithSeconds())

	_, err := c.AddFunc(expr, func() {
		s.logger.Info("[CRON] running image backfill")
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error("[CRON] image backfill failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule image backfill: %w", err)
	}

	return c, nil
}
