package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ReminderSummary aggregates one reminder sweep.
type ReminderSummary struct {
	Sent   int
	Failed int
}

// ReminderDispatcher sends upcoming-renewal and trial-ending reminders.
// Reminders are best effort: a send failure is counted and logged but never
// aborts the sweep, and nothing records which reminders were already sent,
// so running the sweep twice on the same day sends duplicates.
type ReminderDispatcher struct {
	subs     RepositoryAPI
	plans    PlanRepositoryAPI
	clients  ClientRepositoryAPI
	notifier Notifier
	logger   *slog.Logger

	now func() time.Time
}

func NewReminderDispatcher(
	subs RepositoryAPI,
	plans PlanRepositoryAPI,
	clients ClientRepositoryAPI,
	notifier Notifier,
	logger *slog.Logger,
) *ReminderDispatcher {
	return &ReminderDispatcher{
		subs:     subs,
		plans:    plans,
		clients:  clients,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the dispatcher clock, for tests.
func (d *ReminderDispatcher) WithClock(now func() time.Time) *ReminderDispatcher {
	d.now = now
	return d
}

// SendReminders dispatches reminders for subscriptions whose billing date
// (or trial end, in trial mode) falls exactly `days` calendar days from
// today. A client without an email address counts as failed.
func (d *ReminderDispatcher) SendReminders(ctx context.Context, days int, trialMode, dryRun bool) (ReminderSummary, error) {
	summary := ReminderSummary{}

	if days < 0 {
		return summary, fmt.Errorf("days must be non-negative, got %d", days)
	}

	target := d.now().AddDate(0, 0, days)
	subs, err := d.subs.FindByBillingDateOn(target, trialMode)
	if err != nil {
		return summary, fmt.Errorf("failed to select subscriptions for reminders: %w", err)
	}

	d.logger.Info("reminder sweep started",
		"target_date", target.Format("2006-01-02"),
		"days_ahead", days,
		"trial_mode", trialMode,
		"dry_run", dryRun,
		"candidates", len(subs))

	for _, sub := range subs {
		cl, err := d.clients.GetByID(sub.ClientID)
		if err != nil {
			summary.Failed++
			d.logger.Error("failed to load client for reminder",
				"subscription_id", sub.ID,
				"client_id", sub.ClientID,
				"error", err)
			continue
		}

		if cl.Email == nil || *cl.Email == "" {
			summary.Failed++
			d.logger.Warn("client has no email address, skipping reminder",
				"subscription_id", sub.ID,
				"client_id", sub.ClientID)
			continue
		}

		plan, err := d.plans.GetByID(sub.PlanID)
		if err != nil {
			summary.Failed++
			d.logger.Error("failed to load plan for reminder",
				"subscription_id", sub.ID,
				"plan_id", sub.PlanID,
				"error", err)
			continue
		}

		if dryRun {
			d.logger.Info("[dry-run] would send reminder",
				"subscription_id", sub.ID,
				"client_id", sub.ClientID,
				"email", *cl.Email,
				"plan", plan.Code,
				"trial_mode", trialMode)
			summary.Sent++
			continue
		}

		if trialMode {
			endsAt := target
			if sub.TrialEndsAt != nil {
				endsAt = *sub.TrialEndsAt
			}
			err = d.notifier.SendTrialEnding(ctx, *cl.Email, cl.Name, endsAt, days)
		} else {
			dueDate := target
			if sub.NextBillingDate != nil {
				dueDate = *sub.NextBillingDate
			}
			err = d.notifier.SendRenewalReminder(ctx, *cl.Email, cl.Name, dueDate, days, sub.PriceIDR)
		}
		if err != nil {
			summary.Failed++
			d.logger.Error("failed to send reminder",
				"subscription_id", sub.ID,
				"client_id", sub.ClientID,
				"error", err)
			continue
		}

		summary.Sent++
		d.logger.Info("reminder sent",
			"subscription_id", sub.ID,
			"client_id", sub.ClientID,
			"days_ahead", days,
			"trial_mode", trialMode)
	}

	d.logger.Info("reminder sweep finished",
		"sent", summary.Sent,
		"failed", summary.Failed,
		"dry_run", dryRun)

	return summary, nil
}
