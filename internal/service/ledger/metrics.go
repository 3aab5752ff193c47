package ledger

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/echohealth/echo_backend/internal/service/ledger"

type metrics struct {
	withdrawals metric.Int64Counter
	credits     metric.Int64Counter
}

// newMetrics registers the ledger counters on the global meter provider,
// which is a no-op until observability is initialised.
func newMetrics() *metrics {
	meter := otel.Meter(meterName)
	withdrawals, _ := meter.Int64Counter(
		"ledger_withdrawals_total",
		metric.WithDescription("Withdrawal attempts by outcome"),
		metric.WithUnit("{withdrawal}"),
	)
	credits, _ := meter.Int64Counter(
		"ledger_credits_total",
		metric.WithDescription("Completed wallet credits"),
		metric.WithUnit("{credit}"),
	)
	return &metrics{withdrawals: withdrawals, credits: credits}
}

func (m *metrics) withdrawal(ctx context.Context, outcome string) {
	m.withdrawals.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *metrics) credit(ctx context.Context, kind string) {
	m.credits.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
