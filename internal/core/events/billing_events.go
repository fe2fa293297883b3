package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeRenewalSucceeded        = "billing.renewal.succeeded"
	EventTypeRenewalFailed           = "billing.renewal.failed"
	EventTypeSubscriptionSuspended   = "billing.subscription.suspended"
	EventTypeSubscriptionReactivated = "billing.subscription.reactivated"
)

type RenewalSucceededEvent struct {
	BaseEvent
	SubscriptionID  int64     `json:"subscription_id"`
	ClientID        int64     `json:"client_id"`
	OrderID         string    `json:"order_id"`
	AmountIDR       int64     `json:"amount_idr"`
	NextBillingDate time.Time `json:"next_billing_date"`
}

func NewRenewalSucceededEvent(subscriptionID, clientID int64, orderID string, amountIDR int64, nextBillingDate time.Time) *RenewalSucceededEvent {
	return &RenewalSucceededEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeRenewalSucceeded,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"subscription_id":   subscriptionID,
				"client_id":         clientID,
				"order_id":          orderID,
				"amount_idr":        amountIDR,
				"next_billing_date": nextBillingDate,
			},
		},
		SubscriptionID:  subscriptionID,
		ClientID:        clientID,
		OrderID:         orderID,
		AmountIDR:       amountIDR,
		NextBillingDate: nextBillingDate,
	}
}

type RenewalFailedEvent struct {
	BaseEvent
	SubscriptionID int64     `json:"subscription_id"`
	ClientID       int64     `json:"client_id"`
	OrderID        string    `json:"order_id"`
	AmountIDR      int64     `json:"amount_idr"`
	FailureReason  string    `json:"failure_reason"`
	FailureCount   int       `json:"failure_count"`
	NextRetryAt    time.Time `json:"next_retry_at"`
	SuspendWarning bool      `json:"suspend_warning"`
}

func NewRenewalFailedEvent(subscriptionID, clientID int64, orderID string, amountIDR int64, failureReason string, failureCount int, nextRetryAt time.Time, suspendWarning bool) *RenewalFailedEvent {
	return &RenewalFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeRenewalFailed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"subscription_id": subscriptionID,
				"client_id":       clientID,
				"order_id":        orderID,
				"amount_idr":      amountIDR,
				"failure_reason":  failureReason,
				"failure_count":   failureCount,
				"next_retry_at":   nextRetryAt,
				"suspend_warning": suspendWarning,
			},
		},
		SubscriptionID: subscriptionID,
		ClientID:       clientID,
		OrderID:        orderID,
		AmountIDR:      amountIDR,
		FailureReason:  failureReason,
		FailureCount:   failureCount,
		NextRetryAt:    nextRetryAt,
		SuspendWarning: suspendWarning,
	}
}

type SubscriptionSuspendedEvent struct {
	BaseEvent
	SubscriptionID int64     `json:"subscription_id"`
	ClientID       int64     `json:"client_id"`
	FailureCount   int       `json:"failure_count"`
	SuspendedAt    time.Time `json:"suspended_at"`
}

func NewSubscriptionSuspendedEvent(subscriptionID, clientID int64, failureCount int, suspendedAt time.Time) *SubscriptionSuspendedEvent {
	return &SubscriptionSuspendedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeSubscriptionSuspended,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"subscription_id": subscriptionID,
				"client_id":       clientID,
				"failure_count":   failureCount,
				"suspended_at":    suspendedAt,
			},
		},
		SubscriptionID: subscriptionID,
		ClientID:       clientID,
		FailureCount:   failureCount,
		SuspendedAt:    suspendedAt,
	}
}

type SubscriptionReactivatedEvent struct {
	BaseEvent
	SubscriptionID int64  `json:"subscription_id"`
	ClientID       int64  `json:"client_id"`
	OrderID        string `json:"order_id"`
}

func NewSubscriptionReactivatedEvent(subscriptionID, clientID int64, orderID string) *SubscriptionReactivatedEvent {
	return &SubscriptionReactivatedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeSubscriptionReactivated,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"subscription_id": subscriptionID,
				"client_id":       clientID,
				"order_id":        orderID,
			},
		},
		SubscriptionID: subscriptionID,
		ClientID:       clientID,
		OrderID:        orderID,
	}
}
