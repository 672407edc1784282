package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/zapponejosh/panchaanga-api/internal/metrics"
)

// Precomputer computes and stores calendar years.
type Precomputer interface {
	Precompute(ctx context.Context, cityKeys []string, years []int) error
}

// PrecomputeJob keeps the current and next year of each configured city
// in the store, so the first request of a new year does not pay for the
// build.
type PrecomputeJob struct {
	svc     Precomputer
	cities  []string
	timeout time.Duration
	metrics *metrics.Metrics
	log     zerolog.Logger

	// now is replaced in tests.
	now func() time.Time
}

// NewPrecomputeJob creates the job. A zero timeout means no limit.
func NewPrecomputeJob(svc Precomputer, cities []string, timeout time.Duration, m *metrics.Metrics, log zerolog.Logger) *PrecomputeJob {
	return &PrecomputeJob{
		svc:     svc,
		cities:  cities,
		timeout: timeout,
		metrics: m,
		log:     log.With().Str("job", "precompute").Logger(),
		now:     time.Now,
	}
}

// Name implements Job.
func (j *PrecomputeJob) Name() string { return "precompute" }

// Years returns the years the next run will compute.
func (j *PrecomputeJob) Years() []int {
	y := j.now().Year()
	return []int{y, y + 1}
}

// Run implements Job.
func (j *PrecomputeJob) Run() error {
	ctx := context.Background()
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	started := time.Now()
	years := j.Years()
	err := j.svc.Precompute(ctx, j.cities, years)

	result := "ok"
	if err != nil {
		result = "error"
	}
	if j.metrics != nil {
		j.metrics.PrecomputeRuns.WithLabelValues(result).Inc()
	}
	if err != nil {
		return err
	}

	j.log.Info().
		Strs("cities", j.cities).
		Ints("years", years).
		Dur("elapsed", time.Since(started)).
		Msg("Precomputed calendar years")
	return nil
}
