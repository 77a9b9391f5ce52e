// Package portfolio aggregates per-holding cashflows and valuations into
// portfolio-level metrics.
package portfolio

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/dkastanis/bondflow/internal/domain"
	"github.com/dkastanis/bondflow/internal/modules/cashflows"
)

// DatedFlows is the portfolio-wide interest and principal total for a single
// calendar date.
type DatedFlows struct {
	Date      time.Time       `json:"date"`
	Interest  decimal.Decimal `json:"interest"`
	Principal decimal.Decimal `json:"principal"`
}

// Aggregator computes portfolio metrics and date-merged cashflows. Metrics
// are recomputed from scratch on every request; nothing is cached between
// calls.
type Aggregator struct {
	projector *cashflows.Projector
	log       zerolog.Logger
	workers   int
}

// NewAggregator creates a portfolio aggregator. Per-holding projections are
// independent and CPU-bound, so batch work fans out across NumCPU workers.
func NewAggregator(projector *cashflows.Projector, log zerolog.Logger) *Aggregator {
	return &Aggregator{
		projector: projector,
		log:       log.With().Str("service", "aggregator").Logger(),
		workers:   runtime.NumCPU(),
	}
}

// Aggregate computes par, market and book value, gain/loss and
// concentration-by-type across the holdings. A holding that fails per-holding
// validation is skipped and logged, never fatal to the batch. Market and book
// value accumulate only holdings carrying the respective quote; gain/loss
// accumulates only holdings carrying both.
func (a *Aggregator) Aggregate(holdings []domain.HoldingPosition) domain.PortfolioMetrics {
	metrics := domain.PortfolioMetrics{
		Concentration: make(map[domain.SecurityType]decimal.Decimal),
	}
	parByType := make(map[domain.SecurityType]decimal.Decimal)

	for _, h := range holdings {
		if err := h.Validate(); err != nil {
			a.log.Warn().Err(err).Str("holding", h.ID).Msg("skipping holding in aggregation")
			continue
		}

		par := h.ParValue()
		metrics.TotalPar = metrics.TotalPar.Add(par)
		metrics.HoldingCount++

		secType := h.Security.Type
		if secType == "" {
			secType = domain.SecurityTypeUnknown
		}
		parByType[secType] = parByType[secType].Add(par)

		mv := h.MarketValue()
		bv := h.BookValue()
		if mv != nil {
			metrics.TotalMarket = metrics.TotalMarket.Add(*mv)
		}
		if bv != nil {
			metrics.TotalBook = metrics.TotalBook.Add(*bv)
		}
		if mv != nil && bv != nil {
			metrics.GainLoss = metrics.GainLoss.Add(mv.Sub(*bv))
		}
	}

	if metrics.TotalPar.IsPositive() {
		hundred := decimal.NewFromInt(100)
		for secType, par := range parByType {
			metrics.Concentration[secType] = par.Mul(hundred).Div(metrics.TotalPar).Round(2)
		}
	}

	return metrics
}

// CashflowsByDate projects every holding as of evalDate and merges the flows
// into an ordered per-date series of interest and principal totals. The
// per-holding projections fan out across workers; the merge is an
// associative, order-independent summation keyed by date. Holdings that fail
// projection are skipped and logged.
func (a *Aggregator) CashflowsByDate(ctx context.Context, holdings []domain.HoldingPosition, evalDate time.Time) ([]DatedFlows, error) {
	type bucket struct {
		interest  decimal.Decimal
		principal decimal.Decimal
	}

	var mu sync.Mutex
	buckets := make(map[time.Time]*bucket)

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)

	for _, h := range holdings {
		h := h
		g.Go(func() error {
			proj, err := a.projector.Project(h, evalDate)
			if err != nil {
				// One bad holding never aborts the batch.
				a.log.Warn().Err(err).Str("holding", h.ID).Msg("skipping holding in cashflow aggregation")
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			for _, ev := range proj.Detailed {
				b, ok := buckets[ev.Date]
				if !ok {
					b = &bucket{}
					buckets[ev.Date] = b
				}
				switch ev.Kind {
				case domain.FlowInterest:
					b.interest = b.interest.Add(ev.Amount)
				case domain.FlowPrincipal:
					b.principal = b.principal.Add(ev.Amount)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	flows := make([]DatedFlows, 0, len(buckets))
	for d, b := range buckets {
		flows = append(flows, DatedFlows{Date: d, Interest: b.interest, Principal: b.principal})
	}
	sort.Slice(flows, func(i, j int) bool { return flows[i].Date.Before(flows[j].Date) })
	return flows, nil
}
