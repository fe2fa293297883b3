package subscription_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/pos-billing/internal/core/datamodel/client"
	datamodel "github.com/frahmantamala/pos-billing/internal/core/datamodel/subscription"
	"github.com/frahmantamala/pos-billing/internal/subscription"
)

var _ = Describe("ReminderDispatcher", func() {
	var (
		repo       *MockRepository
		plans      *MockPlanRepository
		clients    *MockClientRepository
		notifier   *MockNotifier
		dispatcher *subscription.ReminderDispatcher
		now        time.Time
	)

	const planID = int64(100)

	addSub := func(id, clientID int64, status string, billing time.Time) *datamodel.ClientSubscription {
		sub := &datamodel.ClientSubscription{
			ID:              id,
			ClientID:        clientID,
			PlanID:          planID,
			Status:          status,
			PriceIDR:        149000,
			NextBillingDate: &billing,
		}
		repo.Add(sub)
		return sub
	}

	BeforeEach(func() {
		now = time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC)

		repo = NewMockRepository()
		plans = NewMockPlanRepository(&datamodel.Plan{
			ID: planID, Code: "pro-monthly", Name: "Pro", PriceIDR: 149000, Interval: datamodel.IntervalMonthly,
		})
		email := "owner@toko.example"
		clients = NewMockClientRepository(
			&client.Client{ID: 10, Name: "Toko Maju", Email: &email},
			&client.Client{ID: 11, Name: "Toko Tanpa Email"},
		)
		notifier = NewMockNotifier()
		dispatcher = subscription.NewReminderDispatcher(repo, plans, clients, notifier, testLogger()).
			WithClock(func() time.Time { return now })
	})

	Describe("SendReminders", func() {
		It("should remind subscriptions billing exactly N days ahead", func() {
			addSub(1, 10, datamodel.StatusActive, now.AddDate(0, 0, 3))
			addSub(2, 10, datamodel.StatusActive, now.AddDate(0, 0, 5))

			summary, err := dispatcher.SendReminders(context.Background(), 3, false, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Sent).To(Equal(1))
			Expect(summary.Failed).To(BeZero())
			Expect(notifier.renewalReminders).To(ConsistOf("owner@toko.example"))
		})

		It("should count a client without an email as failed", func() {
			addSub(1, 11, datamodel.StatusActive, now.AddDate(0, 0, 3))

			summary, err := dispatcher.SendReminders(context.Background(), 3, false, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Sent).To(BeZero())
			Expect(summary.Failed).To(Equal(1))
			Expect(notifier.renewalReminders).To(BeEmpty())
		})

		It("should count notifier failures without aborting the sweep", func() {
			addSub(1, 10, datamodel.StatusActive, now.AddDate(0, 0, 3))
			notifier.err = errors.New("postmark unavailable")

			summary, err := dispatcher.SendReminders(context.Background(), 3, false, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Failed).To(Equal(1))
		})

		It("should send trial-ending reminders in trial mode", func() {
			endsAt := now.AddDate(0, 0, 2)
			trialing := &datamodel.ClientSubscription{
				ID: 3, ClientID: 10, PlanID: planID,
				Status:      datamodel.StatusTrialing,
				TrialEndsAt: &endsAt,
			}
			repo.Add(trialing)
			addSub(4, 10, datamodel.StatusActive, endsAt)

			summary, err := dispatcher.SendReminders(context.Background(), 2, true, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Sent).To(Equal(1))
			Expect(notifier.trialEndings).To(ConsistOf("owner@toko.example"))
			Expect(notifier.renewalReminders).To(BeEmpty())
		})

		It("should not send anything in dry-run mode", func() {
			addSub(1, 10, datamodel.StatusActive, now.AddDate(0, 0, 3))

			summary, err := dispatcher.SendReminders(context.Background(), 3, false, true)
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Sent).To(Equal(1))
			Expect(notifier.renewalReminders).To(BeEmpty())
		})

		It("should reject negative day offsets", func() {
			_, err := dispatcher.SendReminders(context.Background(), -1, false, false)
			Expect(err).To(HaveOccurred())
		})
	})
})
