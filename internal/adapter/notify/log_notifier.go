// Package notify holds notification sinks. Delivery channels (SMS and the
// like) are external; the log sink is the default wired in.
package notify

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/patrimo/valuation-backend/internal/domain"
)

// LogNotifier writes the end-of-run valuation to the log. It never fails.
type LogNotifier struct {
	Log zerolog.Logger
}

// NewLogNotifier creates a new LogNotifier instance
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{Log: log}
}

// NotifyValuation implements domain.Notifier.
func (n *LogNotifier) NotifyValuation(_ context.Context, total decimal.Decimal, oneDayChange *domain.ValuationChange, currency string) error {
	event := n.Log.Info().
		Str("total_valuation", total.String()).
		Str("currency", currency)
	if oneDayChange != nil {
		event = event.Str("one_day_change", oneDayChange.Amount.String())
	}
	event.Msg("valuation notification")
	return nil
}
