package notification

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// KindDeposit indicates money credited to an account.
	KindDeposit = "deposit"
	// KindWithdrawal indicates money debited from an account.
	KindWithdrawal = "withdrawal"
	// KindTransfer indicates a movement between two accounts.
	KindTransfer = "transfer"
	// KindMonthlyCycle indicates a fee or interest posting.
	KindMonthlyCycle = "monthly_cycle"
)

// Message describes a notification payload.
type Message struct {
	Kind          string          `json:"kind"`
	Destination   string          `json:"destination"`
	Body          string          `json:"body"`
	AccountNumber string          `json:"account_number"`
	Reference     string          `json:"reference_account,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		"kind", message.Kind,
		"destination", message.Destination,
		"account", message.AccountNumber,
		"amount", message.Amount.StringFixed(2),
		"body", message.Body)
	return nil
}
