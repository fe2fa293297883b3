package postgres

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/frahmantamala/pos-billing/internal"
	datamodel "github.com/frahmantamala/pos-billing/internal/core/datamodel/subscription"
	"github.com/frahmantamala/pos-billing/internal/subscription"
)

// PaymentRepository implements subscription.PaymentRepositoryAPI using GORM
type PaymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *gorm.DB) subscription.PaymentRepositoryAPI {
	return &PaymentRepository{db: db}
}

// Create saves a new payment attempt row
func (r *PaymentRepository) Create(p *datamodel.SubscriptionPayment) error {
	return r.db.Create(p).Error
}

func (r *PaymentRepository) GetByOrderID(orderID string) (*datamodel.SubscriptionPayment, error) {
	var p datamodel.SubscriptionPayment
	err := r.db.Where("order_id = ?", orderID).First(&p).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) ListBySubscriptionID(subscriptionID int64) ([]*datamodel.SubscriptionPayment, error) {
	var payments []*datamodel.SubscriptionPayment
	err := r.db.Where("subscription_id = ?", subscriptionID).
		Order("created_at DESC").
		Find(&payments).Error
	return payments, err
}

// UpdateStatus settles a payment row once the gateway outcome is known.
func (r *PaymentRepository) UpdateStatus(id int64, status string, paymentMethod *string, gatewayResponse json.RawMessage, failureReason *string, paidAt *time.Time) error {
	updates := map[string]interface{}{
		"status": status,
	}
	if paymentMethod != nil {
		updates["payment_method"] = *paymentMethod
	}
	if gatewayResponse != nil {
		updates["gateway_response"] = gatewayResponse
	}
	if failureReason != nil {
		updates["failure_reason"] = *failureReason
	}
	if paidAt != nil {
		updates["paid_at"] = *paidAt
	}
	return r.db.Model(&datamodel.SubscriptionPayment{}).
		Where("id = ?", id).
		Updates(updates).Error
}
