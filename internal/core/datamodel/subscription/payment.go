package subscription

import (
	"encoding/json"
	"time"
)

// Payment outcome statuses. Rows are append-only: one row per attempted
// charge, success or failure, never updated after the gateway result lands.
const (
	PaymentStatusPending = "pending"
	PaymentStatusSuccess = "success"
	PaymentStatusFailed  = "failed"
)

type SubscriptionPayment struct {
	ID              int64           `gorm:"primaryKey"`
	SubscriptionID  int64           `gorm:"column:subscription_id;not null;index"`
	OrderID         string          `gorm:"column:order_id;not null;uniqueIndex"`
	AmountIDR       int64           `gorm:"column:amount_idr;not null"`
	Currency        string          `gorm:"column:currency;default:IDR"`
	Status          string          `gorm:"column:status;default:pending"`
	Gateway         string          `gorm:"column:gateway"`
	PaymentMethod   *string         `gorm:"column:payment_method"`
	TransactionID   *string         `gorm:"column:transaction_id"`
	FailureReason   *string         `gorm:"column:failure_reason"`
	GatewayResponse json.RawMessage `gorm:"column:gateway_response;type:jsonb"`
	PaidAt          *time.Time      `gorm:"column:paid_at"`
	CreatedAt       time.Time       `gorm:"column:created_at;default:now()"`
}

func (SubscriptionPayment) TableName() string {
	return "subscription_payments"
}

func (p *SubscriptionPayment) IsPaid() bool {
	return p.Status == PaymentStatusSuccess
}
