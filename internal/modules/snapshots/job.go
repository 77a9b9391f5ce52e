package snapshots

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/dkastanis/bondflow/internal/domain"
)

// HoldingSource supplies the holdings to snapshot.
type HoldingSource interface {
	Customers() ([]string, error)
	GetByCustomer(customerID string) ([]domain.HoldingPosition, error)
}

// MetricsComputer recomputes portfolio metrics from holdings.
type MetricsComputer interface {
	Aggregate(holdings []domain.HoldingPosition) domain.PortfolioMetrics
}

// Job recomputes and stores every customer's portfolio metrics. Registered
// with the scheduler on a daily cadence.
type Job struct {
	holdings   HoldingSource
	aggregator MetricsComputer
	repo       *Repository
	log        zerolog.Logger
}

// NewJob creates the snapshot job.
func NewJob(holdings HoldingSource, aggregator MetricsComputer, repo *Repository, log zerolog.Logger) *Job {
	return &Job{
		holdings:   holdings,
		aggregator: aggregator,
		repo:       repo,
		log:        log.With().Str("job", "portfolio_snapshots").Logger(),
	}
}

// Name implements scheduler.Job.
func (j *Job) Name() string {
	return "portfolio_snapshots"
}

// Run implements scheduler.Job. A failing customer is logged and skipped so
// one bad portfolio never blocks the rest of the batch.
func (j *Job) Run() error {
	customers, err := j.holdings.Customers()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	stored := 0
	for _, customerID := range customers {
		holdings, err := j.holdings.GetByCustomer(customerID)
		if err != nil {
			j.log.Warn().Err(err).Str("customer", customerID).Msg("failed to load holdings for snapshot")
			continue
		}

		metrics := j.aggregator.Aggregate(holdings)
		if err := j.repo.Store(customerID, metrics, now); err != nil {
			j.log.Warn().Err(err).Str("customer", customerID).Msg("failed to store snapshot")
			continue
		}
		stored++
	}

	j.log.Info().Int("customers", len(customers)).Int("stored", stored).Msg("snapshot run completed")
	return nil
}
