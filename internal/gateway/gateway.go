package gateway

import (
	"context"
	"encoding/json"
	"time"

	errors "github.com/frahmantamala/pos-billing/internal"
	"github.com/frahmantamala/pos-billing/internal/core/common/validation"
	"github.com/frahmantamala/pos-billing/internal/core/datamodel/merchant"
)

// Customer carries the payer details providers want on a charge.
type Customer struct {
	Name  string
	Email string
	Phone string
}

// ChargeRequest is the checkout-style charge creation request: the result
// is a hosted payment page the customer completes themselves.
type ChargeRequest struct {
	OrderID     string
	AmountIDR   int64
	Description string
	Customer    Customer
	CallbackURL string
	FinishURL   string
}

func (r *ChargeRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("order_id", r.OrderID).Required()
	validator.Field("amount_idr", r.AmountIDR).Required().MinInt(1, errors.ErrCodeInvalidAmount)

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// DepositChargeRequest is the appointment-deposit charge path. The charged
// amount is whichever of deposit and total price is larger.
type DepositChargeRequest struct {
	OrderID       string
	DepositIDR    int64
	TotalPriceIDR int64
	Description   string
	Customer      Customer
	CallbackURL   string
	FinishURL     string
}

func (r *DepositChargeRequest) ChargeAmount() int64 {
	if r.DepositIDR > r.TotalPriceIDR {
		return r.DepositIDR
	}
	return r.TotalPriceIDR
}

func (r *DepositChargeRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("order_id", r.OrderID).Required()
	validator.Field("amount_idr", r.ChargeAmount()).Required().MinInt(1, errors.ErrCodeInvalidAmount)

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// RecurringChargeRequest is the card-on-file autocharge used by the renewal
// pipeline: the provider settles it synchronously against a saved token.
type RecurringChargeRequest struct {
	OrderID   string
	AmountIDR int64
	Token     string
	Customer  Customer
}

func (r *RecurringChargeRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("order_id", r.OrderID).Required()
	validator.Field("token", r.Token).Required()
	validator.Field("amount_idr", r.AmountIDR).Required().MinInt(1, errors.ErrCodeInvalidAmount)

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// ChargeResult is the normalized result of charge creation.
type ChargeResult struct {
	Reference  string
	PaymentURL string
	Token      string
	Raw        json.RawMessage
}

// StatusResult is the normalized result of a status lookup or a settled
// recurring charge. IsPaid comes from an explicit per-provider allow-list;
// every unknown vocabulary value maps to false without error.
type StatusResult struct {
	Status      string
	IsPaid      bool
	AmountIDR   int64
	Reference   string
	PaymentType string
	PaidAt      *time.Time
	Raw         json.RawMessage
}

// Adapter is the provider boundary. The set of implementations is closed:
// Midtrans and Xendit.
type Adapter interface {
	Name() string
	CreateCharge(ctx context.Context, req *ChargeRequest, cfg merchant.GatewayConfig) (*ChargeResult, error)
	CreateDepositCharge(ctx context.Context, req *DepositChargeRequest, cfg merchant.GatewayConfig) (*ChargeResult, error)
	ChargeRecurring(ctx context.Context, req *RecurringChargeRequest, cfg merchant.GatewayConfig) (*StatusResult, error)
	CheckStatus(ctx context.Context, orderID string, cfg merchant.GatewayConfig) (*StatusResult, error)
}
