package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	errors "github.com/frahmantamala/pos-billing/internal"
	"github.com/frahmantamala/pos-billing/internal/core/datamodel/subscription"
	"github.com/frahmantamala/pos-billing/internal/core/events"
)

// Service orchestrates lifecycle transitions around the Machine: it owns
// persistence, license toggling and event publication. The renewal and
// reminder sweeps build on it.
type Service struct {
	machine  Machine
	subs     RepositoryAPI
	payments PaymentRepositoryAPI
	plans    PlanRepositoryAPI
	licenses LicenseRepositoryAPI
	eventBus *events.EventBus
	logger   *slog.Logger

	now func() time.Time
}

func NewService(
	machine Machine,
	subs RepositoryAPI,
	payments PaymentRepositoryAPI,
	plans PlanRepositoryAPI,
	licenses LicenseRepositoryAPI,
	eventBus *events.EventBus,
	logger *slog.Logger,
) *Service {
	return &Service{
		machine:  machine,
		subs:     subs,
		payments: payments,
		plans:    plans,
		licenses: licenses,
		eventBus: eventBus,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the service clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Machine() Machine {
	return s.machine
}

func (s *Service) GetSubscription(id int64) (*subscription.ClientSubscription, error) {
	sub, err := s.subs.GetByID(id)
	if err != nil {
		return nil, errors.ErrSubscriptionNotFound.WithCause(err)
	}
	return sub, nil
}

func (s *Service) ListPayments(subscriptionID int64) ([]*subscription.SubscriptionPayment, error) {
	return s.payments.ListBySubscriptionID(subscriptionID)
}

// Cancel transitions the subscription to cancelled inside a row-locked
// transaction so a concurrently running renewal cannot charge a
// subscription the tenant just cancelled.
func (s *Service) Cancel(ctx context.Context, id int64, reason string) error {
	now := s.now()

	err := s.subs.Transact(ctx, func(subs RepositoryAPI, _ PaymentRepositoryAPI) error {
		sub, err := subs.GetByIDForUpdate(id)
		if err != nil {
			return errors.ErrSubscriptionNotFound.WithCause(err)
		}

		if err := s.machine.Cancel(sub, now); err != nil {
			return err
		}

		return subs.Update(sub)
	})
	if err != nil {
		return err
	}

	s.logger.Info("subscription cancelled",
		"subscription_id", id,
		"reason", reason)
	return nil
}

// ReactivateFromPayment recovers a past_due or suspended subscription after
// a paid webhook lands for one of its payments. Licenses are re-enabled
// after the transaction commits.
func (s *Service) ReactivateFromPayment(ctx context.Context, subscriptionID int64, orderID string) error {
	now := s.now()
	var clientID int64

	err := s.subs.Transact(ctx, func(subs RepositoryAPI, _ PaymentRepositoryAPI) error {
		sub, err := subs.GetByIDForUpdate(subscriptionID)
		if err != nil {
			return errors.ErrSubscriptionNotFound.WithCause(err)
		}

		if sub.Status != subscription.StatusSuspended && sub.Status != subscription.StatusPastDue {
			s.logger.Debug("reactivation skipped, subscription not recoverable",
				"subscription_id", subscriptionID,
				"status", sub.Status)
			return nil
		}

		plan, err := s.plans.GetByID(sub.PlanID)
		if err != nil {
			return errors.ErrPlanNotFound.WithCause(err)
		}

		if err := s.machine.Reactivate(sub, plan, now); err != nil {
			return err
		}
		clientID = sub.ClientID

		return subs.Update(sub)
	})
	if err != nil {
		return err
	}

	if clientID == 0 {
		return nil
	}

	if err := s.licenses.SetActiveForClient(clientID, true); err != nil {
		s.logger.Error("failed to re-enable store licenses after reactivation",
			"subscription_id", subscriptionID,
			"client_id", clientID,
			"error", err)
	}

	s.eventBus.Publish(ctx, events.NewSubscriptionReactivatedEvent(subscriptionID, clientID, orderID))

	s.logger.Info("subscription reactivated from payment",
		"subscription_id", subscriptionID,
		"client_id", clientID,
		"order_id", orderID)
	return nil
}

// ExpireTrials moves every trialing subscription whose trial has run out to
// past_due. With dryRun set it only reports the candidates; nothing is
// written. Returns how many were (or would be) transitioned; per-item
// failures are logged and do not abort the batch.
func (s *Service) ExpireTrials(ctx context.Context, dryRun bool) (int, error) {
	now := s.now()

	ids, err := s.subs.FindExpiredTrialIDs(now)
	if err != nil {
		return 0, fmt.Errorf("failed to find expired trials: %w", err)
	}

	if dryRun {
		for _, id := range ids {
			s.logger.Info("[dry-run] would expire trial", "subscription_id", id)
		}
		return len(ids), nil
	}

	expired := 0
	for _, id := range ids {
		err := s.subs.Transact(ctx, func(subs RepositoryAPI, _ PaymentRepositoryAPI) error {
			sub, err := subs.GetByIDForUpdate(id)
			if err != nil {
				return err
			}
			if err := s.machine.ExpireTrial(sub, now); err != nil {
				return err
			}
			return subs.Update(sub)
		})
		if err != nil {
			s.logger.Error("failed to expire trial", "subscription_id", id, "error", err)
			continue
		}
		expired++
	}

	if expired > 0 {
		s.logger.Info("expired trials moved to past_due", "count", expired)
	}
	return expired, nil
}
