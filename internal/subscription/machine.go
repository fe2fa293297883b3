package subscription

import (
	"time"

	errors "github.com/frahmantamala/pos-billing/internal"
	"github.com/frahmantamala/pos-billing/internal/core/datamodel/subscription"
)

// Machine holds the transition rules of the subscription lifecycle. It
// mutates entities in memory only; persistence is the caller's problem, so
// every rule stays unit-testable without a database.
type Machine struct {
	SuspendThreshold int
	WarnThreshold    int
	RetryInterval    time.Duration
}

func NewMachine(suspendThreshold, warnThreshold int, retryInterval time.Duration) Machine {
	if suspendThreshold <= 0 {
		suspendThreshold = errors.DefaultSuspendThreshold
	}
	if warnThreshold <= 0 {
		warnThreshold = errors.DefaultWarnThreshold
	}
	if retryInterval <= 0 {
		retryInterval = errors.DefaultRetryInterval
	}
	return Machine{
		SuspendThreshold: suspendThreshold,
		WarnThreshold:    warnThreshold,
		RetryInterval:    retryInterval,
	}
}

// RenewalFailureOutcome describes what a failed attempt did to the
// subscription, for notifications and events.
type RenewalFailureOutcome struct {
	Suspended      bool
	SuspendWarning bool
	FailureCount   int
	NextRetryAt    time.Time
}

// ApplyRenewalSuccess moves the subscription to active, clears the failure
// count and advances the billing period by one plan interval. The period is
// anchored on the previous period end so late sweeps do not drift billing
// dates.
func (m Machine) ApplyRenewalSuccess(sub *subscription.ClientSubscription, plan *subscription.Plan, now time.Time) error {
	if sub.IsTerminal() {
		return errors.ErrSubscriptionCancelled
	}

	anchor := sub.CurrentPeriodEnd
	if anchor.IsZero() {
		anchor = now
	}
	periodEnd := plan.AdvancePeriod(anchor)
	// A long-overdue subscription (recovered after suspension) would get a
	// period end already in the past; re-anchor on now in that case.
	if !periodEnd.After(now) {
		anchor = now
		periodEnd = plan.AdvancePeriod(now)
	}

	sub.Status = subscription.StatusActive
	sub.BillingFailureCount = 0
	sub.SuspendedAt = nil
	sub.CurrentPeriodStart = anchor
	sub.CurrentPeriodEnd = periodEnd
	sub.NextBillingDate = &periodEnd
	sub.UpdatedAt = now
	return nil
}

// ApplyRenewalFailure increments the failure count and moves the
// subscription to past_due, or to suspended once the count reaches the
// threshold. The billing date is left in place so the next sweep retries.
func (m Machine) ApplyRenewalFailure(sub *subscription.ClientSubscription, now time.Time) (RenewalFailureOutcome, error) {
	if sub.IsTerminal() {
		return RenewalFailureOutcome{}, errors.ErrSubscriptionCancelled
	}

	sub.BillingFailureCount++
	sub.UpdatedAt = now

	outcome := RenewalFailureOutcome{
		FailureCount: sub.BillingFailureCount,
		NextRetryAt:  now.Add(m.RetryInterval),
	}

	if sub.BillingFailureCount >= m.SuspendThreshold {
		suspendedAt := now
		sub.Status = subscription.StatusSuspended
		sub.SuspendedAt = &suspendedAt
		outcome.Suspended = true
		return outcome, nil
	}

	sub.Status = subscription.StatusPastDue
	outcome.SuspendWarning = sub.BillingFailureCount >= m.WarnThreshold
	return outcome, nil
}

// Cancel marks the subscription cancelled. Cancelled is terminal, so
// cancelling twice is rejected.
func (m Machine) Cancel(sub *subscription.ClientSubscription, now time.Time) error {
	if sub.IsTerminal() {
		return errors.ErrSubscriptionCancelled
	}

	cancelledAt := now
	sub.Status = subscription.StatusCancelled
	sub.CancelledAt = &cancelledAt
	sub.NextBillingDate = nil
	sub.UpdatedAt = now
	return nil
}

// ExpireTrial moves a trialing subscription whose trial has run out to
// past_due, leaving the billing date at the trial end so the renewal sweep
// picks it up immediately.
func (m Machine) ExpireTrial(sub *subscription.ClientSubscription, now time.Time) error {
	if !sub.TrialExpired(now) {
		return nil
	}

	sub.Status = subscription.StatusPastDue
	if sub.NextBillingDate == nil {
		sub.NextBillingDate = sub.TrialEndsAt
	}
	sub.UpdatedAt = now
	return nil
}

// Reactivate recovers a suspended or past_due subscription after a
// successful out-of-band payment (webhook driven). Semantics match a
// renewal success.
func (m Machine) Reactivate(sub *subscription.ClientSubscription, plan *subscription.Plan, now time.Time) error {
	return m.ApplyRenewalSuccess(sub, plan, now)
}
