package subscription

import (
	"time"

	"github.com/frahmantamala/pos-billing/internal/core/datamodel/subscription"
)

type SubscriptionDTO struct {
	ID                  int64      `json:"id"`
	ClientID            int64      `json:"client_id"`
	PlanID              int64      `json:"plan_id"`
	Status              string     `json:"status"`
	PriceIDR            int64      `json:"price_idr"`
	CurrentPeriodStart  time.Time  `json:"current_period_start"`
	CurrentPeriodEnd    time.Time  `json:"current_period_end"`
	NextBillingDate     *time.Time `json:"next_billing_date,omitempty"`
	TrialEndsAt         *time.Time `json:"trial_ends_at,omitempty"`
	BillingFailureCount int        `json:"billing_failure_count"`
	SuspendedAt         *time.Time `json:"suspended_at,omitempty"`
	CancelledAt         *time.Time `json:"cancelled_at,omitempty"`
	Gateway             string     `json:"gateway"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

type PaymentDTO struct {
	ID            int64      `json:"id"`
	OrderID       string     `json:"order_id"`
	Status        string     `json:"status"`
	AmountIDR     int64      `json:"amount_idr"`
	Currency      string     `json:"currency"`
	Gateway       string     `json:"gateway"`
	PaymentMethod *string    `json:"payment_method,omitempty"`
	TransactionID *string    `json:"transaction_id,omitempty"`
	FailureReason *string    `json:"failure_reason,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type CancelSubscriptionDTO struct {
	Reason string `json:"reason"`
}

func toSubscriptionDTO(sub *subscription.ClientSubscription) *SubscriptionDTO {
	return &SubscriptionDTO{
		ID:                  sub.ID,
		ClientID:            sub.ClientID,
		PlanID:              sub.PlanID,
		Status:              sub.Status,
		PriceIDR:            sub.PriceIDR,
		CurrentPeriodStart:  sub.CurrentPeriodStart,
		CurrentPeriodEnd:    sub.CurrentPeriodEnd,
		NextBillingDate:     sub.NextBillingDate,
		TrialEndsAt:         sub.TrialEndsAt,
		BillingFailureCount: sub.BillingFailureCount,
		SuspendedAt:         sub.SuspendedAt,
		CancelledAt:         sub.CancelledAt,
		Gateway:             sub.Gateway,
		CreatedAt:           sub.CreatedAt,
		UpdatedAt:           sub.UpdatedAt,
	}
}

func toPaymentDTOs(payments []*subscription.SubscriptionPayment) []*PaymentDTO {
	out := make([]*PaymentDTO, 0, len(payments))
	for _, p := range payments {
		out = append(out, &PaymentDTO{
			ID:            p.ID,
			OrderID:       p.OrderID,
			Status:        p.Status,
			AmountIDR:     p.AmountIDR,
			Currency:      p.Currency,
			Gateway:       p.Gateway,
			PaymentMethod: p.PaymentMethod,
			TransactionID: p.TransactionID,
			FailureReason: p.FailureReason,
			PaidAt:        p.PaidAt,
			CreatedAt:     p.CreatedAt,
		})
	}
	return out
}
