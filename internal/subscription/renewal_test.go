package subscription_test

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/frahmantamala/pos-billing/internal"
	"github.com/frahmantamala/pos-billing/internal/core/datamodel/client"
	"github.com/frahmantamala/pos-billing/internal/core/datamodel/merchant"
	datamodel "github.com/frahmantamala/pos-billing/internal/core/datamodel/subscription"
	"github.com/frahmantamala/pos-billing/internal/core/events"
	"github.com/frahmantamala/pos-billing/internal/gateway"
	"github.com/frahmantamala/pos-billing/internal/subscription"
)

// eventRecorder collects published events so async publication can be
// asserted with Eventually.
type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) handler(ctx context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *eventRecorder) typesSeen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.EventType())
	}
	return out
}

var _ = Describe("Renewer", func() {
	var (
		repo      *MockRepository
		plans     *MockPlanRepository
		clients   *MockClientRepository
		merchants *MockMerchantRepository
		licenses  *MockLicenseRepository
		charger   *MockCharger
		bus       *events.EventBus
		recorder  *eventRecorder
		renewer   *subscription.Renewer
		now       time.Time
		settings  apperrors.GatewaysConfig
	)

	const (
		subID    = int64(1)
		clientID = int64(10)
		planID   = int64(100)
	)

	serverKey := "SB-Mid-server-abc"
	token := "card-token-1"

	newDueSub := func(status string) *datamodel.ClientSubscription {
		billing := now.AddDate(0, 0, -1)
		return &datamodel.ClientSubscription{
			ID:                 subID,
			ClientID:           clientID,
			PlanID:             planID,
			Status:             status,
			PriceIDR:           149000,
			CurrentPeriodStart: now.AddDate(0, -1, -1),
			CurrentPeriodEnd:   billing,
			NextBillingDate:    &billing,
			Gateway:            merchant.GatewayMidtrans,
			PaymentToken:       &token,
		}
	}

	BeforeEach(func() {
		now = time.Date(2025, 6, 15, 3, 0, 0, 0, time.UTC)

		repo = NewMockRepository()
		plans = NewMockPlanRepository(&datamodel.Plan{
			ID: planID, Code: "pro-monthly", PriceIDR: 149000, Interval: datamodel.IntervalMonthly,
		})
		email := "owner@toko.example"
		clients = NewMockClientRepository(&client.Client{ID: clientID, Name: "Toko Maju", Email: &email})
		merchants = NewMockMerchantRepository(&merchant.PaymentMerchant{
			ClientID: clientID, Gateway: merchant.GatewayMidtrans,
			IsDefault: true, IsEnabled: true, ServerKey: &serverKey,
		})
		licenses = NewMockLicenseRepository()
		charger = NewMockCharger()
		bus = events.NewEventBus(testLogger())
		recorder = &eventRecorder{}
		bus.Subscribe(events.EventTypeRenewalSucceeded, recorder.handler)
		bus.Subscribe(events.EventTypeRenewalFailed, recorder.handler)
		bus.Subscribe(events.EventTypeSubscriptionSuspended, recorder.handler)

		settings = apperrors.GatewaysConfig{
			Default: merchant.GatewayMidtrans,
			Midtrans: apperrors.MidtransConfig{
				Enabled:   true,
				ServerKey: "SB-Mid-server-global",
			},
		}

		machine := subscription.NewMachine(0, 0, 0)
		renewer = subscription.NewRenewer(
			machine, repo, plans, clients, merchants, licenses,
			charger, settings, bus, testLogger(),
		).WithClock(func() time.Time { return now })
	})

	Describe("RunDueRenewals", func() {
		Context("when the charge settles", func() {
			BeforeEach(func() {
				repo.Add(newDueSub(datamodel.StatusActive))
				charger.result = &gateway.StatusResult{
					Status:      "capture",
					IsPaid:      true,
					AmountIDR:   149000,
					Reference:   "txn-123",
					PaymentType: "credit_card",
					Raw:         json.RawMessage(`{"transaction_status":"capture"}`),
				}
			})

			It("should renew, record a success payment and advance the billing date", func() {
				summary, err := renewer.RunDueRenewals(context.Background(), false)
				Expect(err).NotTo(HaveOccurred())
				Expect(summary).To(Equal(subscription.Summary{Processed: 1, Succeeded: 1, Failed: 0}))

				sub, err := repo.GetByID(subID)
				Expect(err).NotTo(HaveOccurred())
				Expect(sub.Status).To(Equal(datamodel.StatusActive))
				Expect(sub.BillingFailureCount).To(Equal(0))
				Expect(sub.NextBillingDate.After(now)).To(BeTrue())

				payments, err := repo.payments.ListBySubscriptionID(subID)
				Expect(err).NotTo(HaveOccurred())
				Expect(payments).To(HaveLen(1))
				Expect(payments[0].Status).To(Equal(datamodel.PaymentStatusSuccess))
				Expect(payments[0].AmountIDR).To(Equal(int64(149000)))
				Expect(strings.HasPrefix(payments[0].OrderID, "renewal-1-20250615-")).To(BeTrue())
				Expect(*payments[0].TransactionID).To(Equal("txn-123"))
			})

			It("should charge with the stored token and the merchant's credentials", func() {
				_, err := renewer.RunDueRenewals(context.Background(), false)
				Expect(err).NotTo(HaveOccurred())

				Expect(charger.requests).To(HaveLen(1))
				Expect(charger.requests[0].Token).To(Equal(token))
				Expect(charger.requests[0].AmountIDR).To(Equal(int64(149000)))
				Expect(charger.sources[0].Gateway).To(Equal(merchant.GatewayMidtrans))
				Expect(charger.sources[0].Config.ServerKey).To(Equal(serverKey))
			})

			It("should publish a renewal succeeded event", func() {
				_, err := renewer.RunDueRenewals(context.Background(), false)
				Expect(err).NotTo(HaveOccurred())

				Eventually(recorder.typesSeen).Should(ContainElement(events.EventTypeRenewalSucceeded))
			})

			It("should not charge the same subscription again once renewed", func() {
				_, err := renewer.RunDueRenewals(context.Background(), false)
				Expect(err).NotTo(HaveOccurred())

				summary, err := renewer.RunDueRenewals(context.Background(), false)
				Expect(err).NotTo(HaveOccurred())
				Expect(summary.Processed).To(BeZero())
				Expect(charger.requests).To(HaveLen(1))
			})
		})

		Context("when the charge fails", func() {
			BeforeEach(func() {
				repo.Add(newDueSub(datamodel.StatusActive))
				charger.err = gateway.NewGatewayError(merchant.GatewayMidtrans, "card declined", nil)
			})

			It("should record a failed payment and move the subscription to past_due", func() {
				summary, err := renewer.RunDueRenewals(context.Background(), false)
				Expect(err).NotTo(HaveOccurred())
				Expect(summary).To(Equal(subscription.Summary{Processed: 1, Succeeded: 0, Failed: 1}))

				sub, err := repo.GetByID(subID)
				Expect(err).NotTo(HaveOccurred())
				Expect(sub.Status).To(Equal(datamodel.StatusPastDue))
				Expect(sub.BillingFailureCount).To(Equal(1))

				payments, err := repo.payments.ListBySubscriptionID(subID)
				Expect(err).NotTo(HaveOccurred())
				Expect(payments).To(HaveLen(1))
				Expect(payments[0].Status).To(Equal(datamodel.PaymentStatusFailed))
				Expect(*payments[0].FailureReason).To(ContainSubstring("card declined"))
			})

			It("should leave the billing date alone so the next sweep retries", func() {
				before := *repo.subs[subID].NextBillingDate

				_, err := renewer.RunDueRenewals(context.Background(), false)
				Expect(err).NotTo(HaveOccurred())

				sub, _ := repo.GetByID(subID)
				Expect(*sub.NextBillingDate).To(Equal(before))
			})

			It("should publish a renewal failed event", func() {
				_, err := renewer.RunDueRenewals(context.Background(), false)
				Expect(err).NotTo(HaveOccurred())

				Eventually(recorder.typesSeen).Should(ContainElement(events.EventTypeRenewalFailed))
			})
		})

		Context("when the failure count reaches the suspend threshold", func() {
			BeforeEach(func() {
				sub := newDueSub(datamodel.StatusPastDue)
				sub.BillingFailureCount = 4
				repo.Add(sub)
				charger.err = gateway.NewGatewayError(merchant.GatewayMidtrans, "card declined", nil)
			})

			It("should suspend the subscription and disable the client's store licenses", func() {
				_, err := renewer.RunDueRenewals(context.Background(), false)
				Expect(err).NotTo(HaveOccurred())

				sub, _ := repo.GetByID(subID)
				Expect(sub.Status).To(Equal(datamodel.StatusSuspended))
				Expect(sub.BillingFailureCount).To(Equal(5))
				Expect(sub.SuspendedAt).NotTo(BeNil())

				Expect(licenses.calls).To(HaveLen(1))
				Expect(licenses.calls[0].ClientID).To(Equal(clientID))
				Expect(licenses.calls[0].Active).To(BeFalse())
			})

			It("should publish a suspension event", func() {
				_, err := renewer.RunDueRenewals(context.Background(), false)
				Expect(err).NotTo(HaveOccurred())

				Eventually(recorder.typesSeen).Should(ContainElement(events.EventTypeSubscriptionSuspended))
			})
		})

		Context("when the subscription has no stored payment token", func() {
			BeforeEach(func() {
				sub := newDueSub(datamodel.StatusActive)
				sub.PaymentToken = nil
				repo.Add(sub)
			})

			It("should count a failure without calling the gateway", func() {
				summary, err := renewer.RunDueRenewals(context.Background(), false)
				Expect(err).NotTo(HaveOccurred())
				Expect(summary.Failed).To(Equal(1))

				Expect(charger.requests).To(BeEmpty())

				payments, _ := repo.payments.ListBySubscriptionID(subID)
				Expect(payments).To(HaveLen(1))
				Expect(*payments[0].FailureReason).To(ContainSubstring("payment token"))
			})
		})

		Context("when the client has no merchant row", func() {
			BeforeEach(func() {
				merchants = NewMockMerchantRepository()
				machine := subscription.NewMachine(0, 0, 0)
				renewer = subscription.NewRenewer(
					machine, repo, plans, clients, merchants, licenses,
					charger, settings, bus, testLogger(),
				).WithClock(func() time.Time { return now })

				repo.Add(newDueSub(datamodel.StatusActive))
				charger.result = &gateway.StatusResult{Status: "capture", IsPaid: true, Reference: "txn-9"}
			})

			It("should fall back to the legacy global gateway settings", func() {
				_, err := renewer.RunDueRenewals(context.Background(), false)
				Expect(err).NotTo(HaveOccurred())

				Expect(charger.sources).To(HaveLen(1))
				Expect(charger.sources[0].Config.ServerKey).To(Equal("SB-Mid-server-global"))
			})
		})

		Context("in dry-run mode", func() {
			BeforeEach(func() {
				repo.Add(newDueSub(datamodel.StatusActive))
			})

			It("should report without charging or changing state", func() {
				summary, err := renewer.RunDueRenewals(context.Background(), true)
				Expect(err).NotTo(HaveOccurred())
				Expect(summary.Processed).To(Equal(1))
				Expect(summary.Succeeded).To(BeZero())
				Expect(summary.Failed).To(BeZero())

				Expect(charger.requests).To(BeEmpty())

				sub, _ := repo.GetByID(subID)
				Expect(sub.Status).To(Equal(datamodel.StatusActive))

				payments, _ := repo.payments.ListBySubscriptionID(subID)
				Expect(payments).To(BeEmpty())
			})
		})

		Context("when one item errors", func() {
			BeforeEach(func() {
				broken := newDueSub(datamodel.StatusActive)
				broken.PlanID = 999 // no such plan
				repo.Add(broken)

				healthy := newDueSub(datamodel.StatusActive)
				healthy.ID = 2
				repo.Add(healthy)

				charger.result = &gateway.StatusResult{Status: "capture", IsPaid: true, Reference: "txn-2"}
			})

			It("should isolate the error and keep processing the batch", func() {
				summary, err := renewer.RunDueRenewals(context.Background(), false)
				Expect(err).NotTo(HaveOccurred())
				Expect(summary.Processed).To(Equal(2))
				Expect(summary.Succeeded).To(Equal(1))
				Expect(summary.Failed).To(Equal(1))

				healthy, _ := repo.GetByID(2)
				Expect(healthy.Status).To(Equal(datamodel.StatusActive))
				Expect(healthy.NextBillingDate.After(now)).To(BeTrue())
			})
		})
	})
})
