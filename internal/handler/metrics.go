package handler

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics counts the outcomes of checkout operations.
type Metrics struct {
	offers     metric.Int64Counter
	changesets metric.Int64Counter
	statistics metric.Int64Counter
}

// NewMetrics registers the checkout counters with mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter("github.com/wonderwork/funnel-upsell/internal/handler")

	var (
		m   Metrics
		err error
	)
	if m.offers, err = meter.Int64Counter("funnel.offers",
		metric.WithDescription("Offer lookups by result"),
	); err != nil {
		return nil, errors.Wrap(err, "offers counter")
	}
	if m.changesets, err = meter.Int64Counter("funnel.changesets",
		metric.WithDescription("Changeset signing attempts by result"),
	); err != nil {
		return nil, errors.Wrap(err, "changesets counter")
	}
	if m.statistics, err = meter.Int64Counter("funnel.statistics",
		metric.WithDescription("Statistic updates by result"),
	); err != nil {
		return nil, errors.Wrap(err, "statistics counter")
	}
	return &m, nil
}

func result(v string) metric.AddOption {
	return metric.WithAttributes(attribute.String("result", v))
}

func (m *Metrics) offer(ctx context.Context, res string) {
	if m != nil {
		m.offers.Add(ctx, 1, result(res))
	}
}

func (m *Metrics) changeset(ctx context.Context, res string) {
	if m != nil {
		m.changesets.Add(ctx, 1, result(res))
	}
}

func (m *Metrics) statistic(ctx context.Context, res string) {
	if m != nil {
		m.statistics.Add(ctx, 1, result(res))
	}
}
