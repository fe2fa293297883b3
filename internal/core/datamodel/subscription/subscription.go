package subscription

import (
	"time"
)

// Subscription lifecycle statuses. Cancelled is terminal: no automated
// transition ever leaves it.
const (
	StatusTrialing  = "trialing"
	StatusActive    = "active"
	StatusPastDue   = "past_due"
	StatusSuspended = "suspended"
	StatusCancelled = "cancelled"
)

// Billing intervals, mirrored from Plan.Interval.
const (
	IntervalMonthly = "monthly"
	IntervalYearly  = "yearly"
)

type ClientSubscription struct {
	ID                  int64      `gorm:"primaryKey"`
	ClientID            int64      `gorm:"column:client_id;not null;index"`
	PlanID              int64      `gorm:"column:plan_id;not null"`
	Status              string     `gorm:"column:status;default:trialing"`
	PriceIDR            int64      `gorm:"column:price_idr;not null"`
	CurrentPeriodStart  time.Time  `gorm:"column:current_period_start"`
	CurrentPeriodEnd    time.Time  `gorm:"column:current_period_end"`
	NextBillingDate     *time.Time `gorm:"column:next_billing_date;index"`
	TrialEndsAt         *time.Time `gorm:"column:trial_ends_at"`
	BillingFailureCount int        `gorm:"column:billing_failure_count;default:0"`
	SuspendedAt         *time.Time `gorm:"column:suspended_at"`
	CancelledAt         *time.Time `gorm:"column:cancelled_at"`
	Gateway             string     `gorm:"column:gateway"`
	PaymentToken        *string    `gorm:"column:payment_token"`
	CreatedAt           time.Time  `gorm:"column:created_at;default:now()"`
	UpdatedAt           time.Time  `gorm:"column:updated_at;default:now()"`
}

func (ClientSubscription) TableName() string {
	return "client_subscriptions"
}

// IsDue reports whether the subscription is eligible for a renewal attempt
// at the given instant. Eligibility requires a billable status and a billing
// date that has arrived; a successful renewal advances NextBillingDate past
// "now", which is what makes the sweep idempotent within a day.
func (s *ClientSubscription) IsDue(now time.Time) bool {
	if s.Status != StatusActive && s.Status != StatusPastDue {
		return false
	}
	if s.NextBillingDate == nil {
		return false
	}
	return !s.NextBillingDate.After(now)
}

func (s *ClientSubscription) IsTerminal() bool {
	return s.Status == StatusCancelled
}

// TrialExpired reports whether a trialing subscription has run past its
// trial end.
func (s *ClientSubscription) TrialExpired(now time.Time) bool {
	return s.Status == StatusTrialing && s.TrialEndsAt != nil && s.TrialEndsAt.Before(now)
}
