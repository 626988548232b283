package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// RunPruner deletes stored runs older than a cutoff.
type RunPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionJob removes sample runs older than MaxAge.
type RetentionJob struct {
	store  RunPruner
	maxAge time.Duration
	now    func() time.Time
	log    zerolog.Logger
}

// NewRetentionJob creates a retention job
func NewRetentionJob(store RunPruner, maxAge time.Duration, log zerolog.Logger) *RetentionJob {
	return &RetentionJob{
		store:  store,
		maxAge: maxAge,
		now:    time.Now,
		log:    log.With().Str("job", "run_retention").Logger(),
	}
}

// Name returns the job name
func (j *RetentionJob) Name() string {
	return "run_retention"
}

// Run executes the job
func (j *RetentionJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := j.now().Add(-j.maxAge)
	n, err := j.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}
	j.log.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("Run retention completed")
	return nil
}
