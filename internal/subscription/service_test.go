package subscription_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/frahmantamala/pos-billing/internal"
	datamodel "github.com/frahmantamala/pos-billing/internal/core/datamodel/subscription"
	"github.com/frahmantamala/pos-billing/internal/core/events"
	"github.com/frahmantamala/pos-billing/internal/subscription"
)

var _ = Describe("Service", func() {
	var (
		repo     *MockRepository
		plans    *MockPlanRepository
		licenses *MockLicenseRepository
		bus      *events.EventBus
		recorder *eventRecorder
		service  *subscription.Service
		now      time.Time
	)

	const (
		subID    = int64(1)
		clientID = int64(10)
		planID   = int64(100)
	)

	newSub := func(status string) *datamodel.ClientSubscription {
		billing := now.AddDate(0, 0, 3)
		return &datamodel.ClientSubscription{
			ID:                 subID,
			ClientID:           clientID,
			PlanID:             planID,
			Status:             status,
			PriceIDR:           149000,
			CurrentPeriodStart: now.AddDate(0, -1, 3),
			CurrentPeriodEnd:   billing,
			NextBillingDate:    &billing,
		}
	}

	BeforeEach(func() {
		now = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

		repo = NewMockRepository()
		plans = NewMockPlanRepository(&datamodel.Plan{
			ID: planID, Code: "pro-monthly", PriceIDR: 149000, Interval: datamodel.IntervalMonthly,
		})
		licenses = NewMockLicenseRepository()
		bus = events.NewEventBus(testLogger())
		recorder = &eventRecorder{}
		bus.Subscribe(events.EventTypeSubscriptionReactivated, recorder.handler)

		service = subscription.NewService(
			subscription.NewMachine(0, 0, 0),
			repo, repo.payments, plans, licenses, bus, testLogger(),
		).WithClock(func() time.Time { return now })
	})

	Describe("GetSubscription", func() {
		It("should return the subscription", func() {
			repo.Add(newSub(datamodel.StatusActive))

			sub, err := service.GetSubscription(subID)
			Expect(err).NotTo(HaveOccurred())
			Expect(sub.ID).To(Equal(subID))
		})

		It("should map a missing subscription to not found", func() {
			_, err := service.GetSubscription(999)
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(apperrors.ErrCodeSubscriptionNotFound))
		})
	})

	Describe("Cancel", func() {
		It("should cancel an active subscription and clear the billing date", func() {
			repo.Add(newSub(datamodel.StatusActive))

			err := service.Cancel(context.Background(), subID, "switching providers")
			Expect(err).NotTo(HaveOccurred())

			sub, _ := repo.GetByID(subID)
			Expect(sub.Status).To(Equal(datamodel.StatusCancelled))
			Expect(sub.NextBillingDate).To(BeNil())
			Expect(sub.CancelledAt).NotTo(BeNil())
		})

		It("should reject cancelling a cancelled subscription", func() {
			sub := newSub(datamodel.StatusCancelled)
			repo.Add(sub)

			err := service.Cancel(context.Background(), subID, "")
			Expect(err).To(Equal(apperrors.ErrSubscriptionCancelled))
		})
	})

	Describe("ReactivateFromPayment", func() {
		It("should recover a suspended subscription and re-enable licenses", func() {
			sub := newSub(datamodel.StatusSuspended)
			sub.BillingFailureCount = 5
			suspendedAt := now.AddDate(0, 0, -3)
			sub.SuspendedAt = &suspendedAt
			repo.Add(sub)

			err := service.ReactivateFromPayment(context.Background(), subID, "renewal-1-x")
			Expect(err).NotTo(HaveOccurred())

			reloaded, _ := repo.GetByID(subID)
			Expect(reloaded.Status).To(Equal(datamodel.StatusActive))
			Expect(reloaded.BillingFailureCount).To(BeZero())
			Expect(reloaded.SuspendedAt).To(BeNil())

			Expect(licenses.calls).To(HaveLen(1))
			Expect(licenses.calls[0].Active).To(BeTrue())

			Eventually(recorder.typesSeen).Should(ContainElement(events.EventTypeSubscriptionReactivated))
		})

		It("should recover a past_due subscription", func() {
			sub := newSub(datamodel.StatusPastDue)
			sub.BillingFailureCount = 2
			repo.Add(sub)

			err := service.ReactivateFromPayment(context.Background(), subID, "renewal-1-y")
			Expect(err).NotTo(HaveOccurred())

			reloaded, _ := repo.GetByID(subID)
			Expect(reloaded.Status).To(Equal(datamodel.StatusActive))
		})

		It("should be a no-op for an already active subscription", func() {
			repo.Add(newSub(datamodel.StatusActive))

			err := service.ReactivateFromPayment(context.Background(), subID, "renewal-1-z")
			Expect(err).NotTo(HaveOccurred())

			Expect(licenses.calls).To(BeEmpty())
		})
	})

	Describe("ExpireTrials", func() {
		It("should move expired trials to past_due and leave running trials alone", func() {
			past := now.AddDate(0, 0, -1)
			future := now.AddDate(0, 0, 7)

			expired := newSub(datamodel.StatusTrialing)
			expired.NextBillingDate = nil
			expired.TrialEndsAt = &past
			repo.Add(expired)

			running := newSub(datamodel.StatusTrialing)
			running.ID = 2
			running.NextBillingDate = nil
			running.TrialEndsAt = &future
			repo.Add(running)

			count, err := service.ExpireTrials(context.Background(), false)
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(1))

			first, _ := repo.GetByID(subID)
			Expect(first.Status).To(Equal(datamodel.StatusPastDue))
			Expect(first.NextBillingDate).To(Equal(&past))

			second, _ := repo.GetByID(2)
			Expect(second.Status).To(Equal(datamodel.StatusTrialing))
		})

		It("should only report expired trials in dry-run mode", func() {
			past := now.AddDate(0, 0, -1)

			sub := newSub(datamodel.StatusTrialing)
			sub.NextBillingDate = nil
			sub.TrialEndsAt = &past
			repo.Add(sub)

			count, err := service.ExpireTrials(context.Background(), true)
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(1))

			reloaded, _ := repo.GetByID(subID)
			Expect(reloaded.Status).To(Equal(datamodel.StatusTrialing))
			Expect(reloaded.NextBillingDate).To(BeNil())
			Expect(repo.updates).To(BeZero())
		})
	})
})
