package notification

import (
	"context"
	"log/slog"
	"time"
)

// LogNotifier logs instead of sending, used when no Postmark token is
// configured (local development).
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendRenewalSuccess(_ context.Context, email, name string, amountIDR int64, nextBillingDate time.Time) error {
	n.logger.Info("would send renewal success email",
		"to", email, "name", name, "amount_idr", amountIDR, "next_billing_date", nextBillingDate)
	return nil
}

func (n *LogNotifier) SendRenewalFailed(_ context.Context, email, name string, amountIDR int64, reason string, nextRetryAt time.Time, suspendWarning bool) error {
	n.logger.Info("would send renewal failed email",
		"to", email, "name", name, "amount_idr", amountIDR, "reason", reason,
		"next_retry_at", nextRetryAt, "suspend_warning", suspendWarning)
	return nil
}

func (n *LogNotifier) SendSuspended(_ context.Context, email, name string) error {
	n.logger.Info("would send suspension email", "to", email, "name", name)
	return nil
}

func (n *LogNotifier) SendReactivated(_ context.Context, email, name string) error {
	n.logger.Info("would send reactivation email", "to", email, "name", name)
	return nil
}

func (n *LogNotifier) SendRenewalReminder(_ context.Context, email, name string, dueDate time.Time, daysLeft int, amountIDR int64) error {
	n.logger.Info("would send renewal reminder email",
		"to", email, "name", name, "due_date", dueDate, "days_left", daysLeft, "amount_idr", amountIDR)
	return nil
}

func (n *LogNotifier) SendTrialEnding(_ context.Context, email, name string, endsAt time.Time, daysLeft int) error {
	n.logger.Info("would send trial ending email",
		"to", email, "name", name, "ends_at", endsAt, "days_left", daysLeft)
	return nil
}
