// Package shuffler rotates the lead photo of active listings that nobody
// has looked at.
package shuffler

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jonesrussell/north-cloud/relister/internal/domain"
	"github.com/jonesrussell/north-cloud/relister/internal/lifecycle"
	"github.com/jonesrussell/north-cloud/relister/internal/listing"
	"github.com/jonesrussell/north-cloud/relister/internal/logger"
	"github.com/jonesrussell/north-cloud/relister/internal/marketplace"
	"github.com/jonesrussell/north-cloud/relister/internal/orchestrator"
)

// JobName is the orchestrator name of the shuffle.
const JobName = "shuffle_photos"

// ActionShuffled is the detail action for a rotated listing.
const ActionShuffled = "shuffled"

// DefaultMinDaysActive is how long an unseen listing keeps its lead photo.
const DefaultMinDaysActive = 14

// Config configures the shuffler.
type Config struct {
	MinDaysActive int `yaml:"min_days_active" env:"SHUFFLER_MIN_DAYS_ACTIVE"`
}

// Shuffler is the photo shuffle job.
type Shuffler struct {
	config   Config
	listings *listing.Store
	gateway  marketplace.Gateway
	executor *orchestrator.Executor
	logger   logger.Logger
	now      func() time.Time
}

var _ orchestrator.Job = (*Shuffler)(nil)

// New creates a shuffler.
func New(
	cfg Config,
	listings *listing.Store,
	gateway marketplace.Gateway,
	executor *orchestrator.Executor,
	log logger.Logger,
) *Shuffler {
	if cfg.MinDaysActive == 0 {
		cfg.MinDaysActive = DefaultMinDaysActive
	}
	return &Shuffler{
		config:   cfg,
		listings: listings,
		gateway:  gateway,
		executor: executor,
		logger:   log.With(logger.Job(JobName)),
		now:      time.Now,
	}
}

// WithClock overrides time.Now.
func (s *Shuffler) WithClock(now func() time.Time) *Shuffler {
	s.now = now
	return s
}

// Name implements orchestrator.Job.
func (s *Shuffler) Name() string {
	return JobName
}

// Run rotates photos of every eligible listing.
func (s *Shuffler) Run(ctx context.Context, opts orchestrator.RunOptions) (*orchestrator.Result, error) {
	result := orchestrator.NewResult(JobName, opts)

	ids, err := s.listings.IDs(ctx, domain.StatusActive)
	if err != nil {
		return result, err
	}

	outcomes := orchestrator.Each(ctx, s.executor, ids, func(ctx context.Context, id string) (orchestrator.Detail, error) {
		return s.shuffle(ctx, id, opts.DryRun)
	})
	if err = s.executor.Collect(result, outcomes); err != nil {
		return result, err
	}

	s.logger.Info("Photo shuffle complete",
		logger.Int("scanned", result.Scanned),
		logger.Int("shuffled", result.Actions[ActionShuffled]),
	)
	return result, nil
}

// Eligible reports whether l is due a shuffle: unseen after the threshold
// and not yet shuffled since it was last listed.
func (s *Shuffler) Eligible(l *domain.Listing) (bool, string) {
	switch {
	case l.Status != domain.StatusActive:
		return false, "status_changed"
	case l.ExternalID == "":
		return false, "not_published"
	case len(l.PhotoURLs) < 2:
		return false, "single_photo"
	case l.TotalViews > 0:
		return false, "has_views"
	case l.DaysActive < s.config.MinDaysActive:
		return false, "too_new"
	case l.PhotosShuffledAt != nil && (l.ListedAt == nil || !l.PhotosShuffledAt.Before(*l.ListedAt)):
		return false, "already_shuffled"
	}
	return true, ""
}

func (s *Shuffler) shuffle(ctx context.Context, id string, dryRun bool) (orchestrator.Detail, error) {
	l, err := s.listings.Get(ctx, id)
	if err != nil {
		return orchestrator.Detail{}, err
	}
	if ok, reason := s.Eligible(l); !ok {
		return orchestrator.Detail{Outcome: orchestrator.OutcomeSkipped, Reason: reason}, nil
	}

	detail := orchestrator.Detail{
		Outcome: orchestrator.OutcomeSucceeded,
		Action:  ActionShuffled,
		Fields: map[string]string{
			"days_active": strconv.Itoa(l.DaysActive),
			"lead_photo":  l.RotatedPhotos()[0],
		},
	}
	if dryRun {
		return detail, nil
	}

	if err = s.gateway.RotatePhotos(ctx, l.ExternalID); err != nil {
		s.listings.RecordFailure(ctx, l, err)
		return orchestrator.Detail{}, fmt.Errorf("rotate photos: %w", err)
	}
	if err = s.listings.Commit(ctx, l, lifecycle.EventNone,
		lifecycle.WithPhotos(l.RotatedPhotos()),
		lifecycle.WithPhotosShuffled(s.now().UTC()),
		lifecycle.ClearError(),
	); err != nil {
		return orchestrator.Detail{}, err
	}

	s.logger.Info("Photos shuffled", logger.ListingID(l.ID), logger.String("external_id", l.ExternalID))
	return detail, nil
}
