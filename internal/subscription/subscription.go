package subscription

import (
	"context"
	"encoding/json"
	"time"

	"github.com/frahmantamala/pos-billing/internal/core/datamodel/client"
	"github.com/frahmantamala/pos-billing/internal/core/datamodel/merchant"
	"github.com/frahmantamala/pos-billing/internal/core/datamodel/subscription"
	"github.com/frahmantamala/pos-billing/internal/gateway"
)

// RepositoryAPI is the subscription persistence boundary. Transact runs fn
// inside one database transaction; the repositories passed to fn operate on
// that transaction, and GetByIDForUpdate takes a row lock so a renewal and
// a manual cancellation against the same subscription serialize.
type RepositoryAPI interface {
	Transact(ctx context.Context, fn func(subs RepositoryAPI, payments PaymentRepositoryAPI) error) error
	GetByID(id int64) (*subscription.ClientSubscription, error)
	GetByIDForUpdate(id int64) (*subscription.ClientSubscription, error)
	GetByClientID(clientID int64) (*subscription.ClientSubscription, error)
	FindDueIDs(now time.Time) ([]int64, error)
	FindByBillingDateOn(day time.Time, trialMode bool) ([]*subscription.ClientSubscription, error)
	FindExpiredTrialIDs(now time.Time) ([]int64, error)
	Update(sub *subscription.ClientSubscription) error
}

// PaymentRepositoryAPI persists the append-only charge audit trail. Rows
// are created per attempt; UpdateStatus only ever settles a pending row.
type PaymentRepositoryAPI interface {
	Create(p *subscription.SubscriptionPayment) error
	GetByOrderID(orderID string) (*subscription.SubscriptionPayment, error)
	ListBySubscriptionID(subscriptionID int64) ([]*subscription.SubscriptionPayment, error)
	UpdateStatus(id int64, status string, paymentMethod *string, gatewayResponse json.RawMessage, failureReason *string, paidAt *time.Time) error
}

type PlanRepositoryAPI interface {
	GetByID(id int64) (*subscription.Plan, error)
	GetByCode(code string) (*subscription.Plan, error)
}

type ClientRepositoryAPI interface {
	GetByID(id int64) (*client.Client, error)
}

// LicenseRepositoryAPI toggles every store license of a client at once,
// used on suspension and reactivation.
type LicenseRepositoryAPI interface {
	SetActiveForClient(clientID int64, active bool) error
}

type MerchantRepositoryAPI interface {
	GetDefaultForClient(clientID int64) (*merchant.PaymentMerchant, error)
}

// Charger is the slice of the gateway manager the billing pipeline needs.
type Charger interface {
	ChargeRecurring(ctx context.Context, src gateway.CredentialSource, req *gateway.RecurringChargeRequest) (*gateway.StatusResult, error)
	CheckPaymentStatus(ctx context.Context, src gateway.CredentialSource, orderID string) (*gateway.StatusResult, error)
}

// Notifier sends the billing emails. Implementations must be safe to call
// from sweeps; errors are reported, never retried here.
type Notifier interface {
	SendRenewalSuccess(ctx context.Context, email, name string, amountIDR int64, nextBillingDate time.Time) error
	SendRenewalFailed(ctx context.Context, email, name string, amountIDR int64, reason string, nextRetryAt time.Time, suspendWarning bool) error
	SendSuspended(ctx context.Context, email, name string) error
	SendReactivated(ctx context.Context, email, name string) error
	SendRenewalReminder(ctx context.Context, email, name string, dueDate time.Time, daysLeft int, amountIDR int64) error
	SendTrialEnding(ctx context.Context, email, name string, endsAt time.Time, daysLeft int) error
}

// ServiceAPI is the handler-facing surface of the subscription service.
type ServiceAPI interface {
	GetSubscription(id int64) (*subscription.ClientSubscription, error)
	ListPayments(subscriptionID int64) ([]*subscription.SubscriptionPayment, error)
	Cancel(ctx context.Context, id int64, reason string) error
	ReactivateFromPayment(ctx context.Context, subscriptionID int64, orderID string) error
}
