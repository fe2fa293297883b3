package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	errors "github.com/frahmantamala/pos-billing/internal"
	"github.com/frahmantamala/pos-billing/internal/core/datamodel/client"
	"github.com/frahmantamala/pos-billing/internal/core/datamodel/subscription"
	"github.com/frahmantamala/pos-billing/internal/core/events"
	"github.com/frahmantamala/pos-billing/internal/gateway"
)

// Summary aggregates one renewal sweep. Processed counts every due
// subscription the sweep attempted (or, in dry-run, would have attempted).
type Summary struct {
	Processed int
	Succeeded int
	Failed    int
}

// Renewer runs the due-renewal sweep: find due subscriptions, charge each
// through the gateway manager, record the attempt and apply the state
// machine transition. Items are processed sequentially and each one is
// isolated: any failure is logged and counted, never fatal to the batch.
type Renewer struct {
	machine   Machine
	subs      RepositoryAPI
	plans     PlanRepositoryAPI
	clients   ClientRepositoryAPI
	merchants MerchantRepositoryAPI
	licenses  LicenseRepositoryAPI
	charger   Charger
	settings  errors.GatewaysConfig
	eventBus  *events.EventBus
	logger    *slog.Logger

	now func() time.Time
}

func NewRenewer(
	machine Machine,
	subs RepositoryAPI,
	plans PlanRepositoryAPI,
	clients ClientRepositoryAPI,
	merchants MerchantRepositoryAPI,
	licenses LicenseRepositoryAPI,
	charger Charger,
	settings errors.GatewaysConfig,
	eventBus *events.EventBus,
	logger *slog.Logger,
) *Renewer {
	return &Renewer{
		machine:   machine,
		subs:      subs,
		plans:     plans,
		clients:   clients,
		merchants: merchants,
		licenses:  licenses,
		charger:   charger,
		settings:  settings,
		eventBus:  eventBus,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock overrides the sweep clock, for tests.
func (r *Renewer) WithClock(now func() time.Time) *Renewer {
	r.now = now
	return r
}

type renewOutcome struct {
	skipped   bool
	dryRun    bool
	succeeded bool

	successEvent   *events.RenewalSucceededEvent
	failureEvent   *events.RenewalFailedEvent
	suspendedEvent *events.SubscriptionSuspendedEvent
	suspendedFor   int64 // client id whose licenses must be disabled
}

// RunDueRenewals executes one sweep. Ordering across subscriptions is
// arbitrary; no cross-item guarantee is provided.
func (r *Renewer) RunDueRenewals(ctx context.Context, dryRun bool) (Summary, error) {
	now := r.now()
	summary := Summary{}

	ids, err := r.subs.FindDueIDs(now)
	if err != nil {
		return summary, fmt.Errorf("failed to select due subscriptions: %w", err)
	}

	r.logger.Info("renewal sweep started",
		"due_count", len(ids),
		"dry_run", dryRun)

	for _, id := range ids {
		outcome, err := r.renewOne(ctx, id, now, dryRun)
		if err != nil {
			summary.Processed++
			summary.Failed++
			r.logger.Error("renewal attempt errored",
				"subscription_id", id,
				"error", err)
			continue
		}
		if outcome.skipped {
			continue
		}

		summary.Processed++
		if outcome.dryRun {
			continue
		}

		r.settle(ctx, outcome)
		if outcome.succeeded {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}

	r.logger.Info("renewal sweep finished",
		"processed", summary.Processed,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"dry_run", dryRun)

	return summary, nil
}

// renewOne processes a single subscription inside a row-locked
// transaction. After locking, dueness is re-checked: another sweep or a
// concurrent cancellation may already have moved the subscription on.
func (r *Renewer) renewOne(ctx context.Context, id int64, now time.Time, dryRun bool) (renewOutcome, error) {
	var outcome renewOutcome

	err := r.subs.Transact(ctx, func(subs RepositoryAPI, payments PaymentRepositoryAPI) error {
		sub, err := subs.GetByIDForUpdate(id)
		if err != nil {
			return fmt.Errorf("failed to load subscription: %w", err)
		}

		if !sub.IsDue(now) {
			outcome.skipped = true
			r.logger.Debug("subscription no longer due, skipping",
				"subscription_id", sub.ID,
				"status", sub.Status)
			return nil
		}

		plan, err := r.plans.GetByID(sub.PlanID)
		if err != nil {
			return errors.ErrPlanNotFound.WithCause(err)
		}

		cl, err := r.clients.GetByID(sub.ClientID)
		if err != nil {
			return fmt.Errorf("failed to load client %d: %w", sub.ClientID, err)
		}

		src := r.credentials(sub.ClientID)

		if dryRun {
			outcome.dryRun = true
			r.logger.Info("[dry-run] would renew subscription",
				"subscription_id", sub.ID,
				"client_id", sub.ClientID,
				"amount_idr", sub.PriceIDR,
				"gateway", src.Gateway)
			return nil
		}

		orderID := fmt.Sprintf("renewal-%d-%s-%s", sub.ID, now.Format("20060102"), uuid.NewString()[:8])

		var result *gateway.StatusResult
		var chargeErr error
		if sub.PaymentToken == nil || *sub.PaymentToken == "" {
			chargeErr = errors.ErrMissingPaymentToken
		} else {
			req := &gateway.RecurringChargeRequest{
				OrderID:   orderID,
				AmountIDR: sub.PriceIDR,
				Token:     *sub.PaymentToken,
				Customer:  customerFromClient(cl),
			}
			result, chargeErr = r.charger.ChargeRecurring(ctx, src, req)
		}

		success := chargeErr == nil && result != nil && result.IsPaid

		payment := &subscription.SubscriptionPayment{
			SubscriptionID: sub.ID,
			OrderID:        orderID,
			AmountIDR:      sub.PriceIDR,
			Currency:       "IDR",
			Gateway:        src.Gateway,
		}

		if success {
			payment.Status = subscription.PaymentStatusSuccess
			payment.TransactionID = &result.Reference
			if result.PaymentType != "" {
				payment.PaymentMethod = &result.PaymentType
			}
			paidAt := now
			if result.PaidAt != nil {
				paidAt = *result.PaidAt
			}
			payment.PaidAt = &paidAt
			payment.GatewayResponse = result.Raw
		} else {
			reason := renewalFailureReason(chargeErr, result)
			payment.Status = subscription.PaymentStatusFailed
			payment.FailureReason = &reason
			if result != nil {
				payment.GatewayResponse = result.Raw
			}
		}

		if err := payments.Create(payment); err != nil {
			return fmt.Errorf("failed to record payment attempt: %w", err)
		}

		if success {
			if err := r.machine.ApplyRenewalSuccess(sub, plan, now); err != nil {
				return err
			}
			outcome.succeeded = true
			outcome.successEvent = events.NewRenewalSucceededEvent(
				sub.ID, sub.ClientID, orderID, payment.AmountIDR, *sub.NextBillingDate)

			r.logger.Info("subscription renewed",
				"subscription_id", sub.ID,
				"client_id", sub.ClientID,
				"order_id", orderID,
				"amount_idr", payment.AmountIDR,
				"next_billing_date", sub.NextBillingDate)
		} else {
			failure, err := r.machine.ApplyRenewalFailure(sub, now)
			if err != nil {
				return err
			}

			reason := *payment.FailureReason
			outcome.failureEvent = events.NewRenewalFailedEvent(
				sub.ID, sub.ClientID, orderID, payment.AmountIDR,
				reason, failure.FailureCount, failure.NextRetryAt, failure.SuspendWarning)

			if failure.Suspended {
				outcome.suspendedFor = sub.ClientID
				outcome.suspendedEvent = events.NewSubscriptionSuspendedEvent(
					sub.ID, sub.ClientID, failure.FailureCount, *sub.SuspendedAt)
			}

			r.logger.Error("subscription renewal failed",
				"subscription_id", sub.ID,
				"client_id", sub.ClientID,
				"order_id", orderID,
				"failure_count", failure.FailureCount,
				"suspended", failure.Suspended,
				"reason", reason)
		}

		return subs.Update(sub)
	})
	if err != nil {
		return renewOutcome{}, err
	}

	return outcome, nil
}

// settle runs the side effects that must not sit inside the row lock:
// license disabling and event publication.
func (r *Renewer) settle(ctx context.Context, outcome renewOutcome) {
	if outcome.suspendedFor != 0 {
		if err := r.licenses.SetActiveForClient(outcome.suspendedFor, false); err != nil {
			r.logger.Error("failed to disable store licenses for suspended client",
				"client_id", outcome.suspendedFor,
				"error", err)
		}
	}

	if outcome.successEvent != nil {
		r.eventBus.Publish(ctx, outcome.successEvent)
	}
	if outcome.failureEvent != nil {
		r.eventBus.Publish(ctx, outcome.failureEvent)
	}
	if outcome.suspendedEvent != nil {
		r.eventBus.Publish(ctx, outcome.suspendedEvent)
	}
}

// credentials resolves the charge credentials for a client: their default
// merchant when one exists, otherwise the legacy global gateway settings.
func (r *Renewer) credentials(clientID int64) gateway.CredentialSource {
	m, err := r.merchants.GetDefaultForClient(clientID)
	if err != nil || m == nil {
		return gateway.CredentialsFromSettings(r.settings)
	}
	return gateway.CredentialsFromMerchant(m)
}

func customerFromClient(cl *client.Client) gateway.Customer {
	c := gateway.Customer{Name: cl.Name}
	if cl.Email != nil {
		c.Email = *cl.Email
	}
	if cl.Phone != nil {
		c.Phone = *cl.Phone
	}
	return c
}

func renewalFailureReason(chargeErr error, result *gateway.StatusResult) string {
	if chargeErr != nil {
		return chargeErr.Error()
	}
	if result != nil {
		return fmt.Sprintf("charge not settled, gateway status: %s", result.Status)
	}
	return "charge produced no result"
}
