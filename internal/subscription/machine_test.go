package subscription_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/frahmantamala/pos-billing/internal"
	datamodel "github.com/frahmantamala/pos-billing/internal/core/datamodel/subscription"
	"github.com/frahmantamala/pos-billing/internal/subscription"
)

var _ = Describe("Machine", func() {
	var (
		machine subscription.Machine
		plan    *datamodel.Plan
		now     time.Time
	)

	BeforeEach(func() {
		machine = subscription.NewMachine(0, 0, 0)
		plan = &datamodel.Plan{ID: 1, Code: "pro-monthly", PriceIDR: 149000, Interval: datamodel.IntervalMonthly}
		now = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	})

	activeSub := func() *datamodel.ClientSubscription {
		billing := now
		return &datamodel.ClientSubscription{
			ID:                 1,
			ClientID:           1,
			PlanID:             1,
			Status:             datamodel.StatusActive,
			PriceIDR:           149000,
			CurrentPeriodStart: now.AddDate(0, -1, 0),
			CurrentPeriodEnd:   now,
			NextBillingDate:    &billing,
		}
	}

	Describe("ApplyRenewalSuccess", func() {
		It("should advance the period one interval from the previous period end", func() {
			sub := activeSub()

			err := machine.ApplyRenewalSuccess(sub, plan, now)
			Expect(err).NotTo(HaveOccurred())

			Expect(sub.Status).To(Equal(datamodel.StatusActive))
			Expect(sub.BillingFailureCount).To(Equal(0))
			Expect(sub.CurrentPeriodStart).To(Equal(now))
			Expect(sub.CurrentPeriodEnd).To(Equal(now.AddDate(0, 1, 0)))
			Expect(*sub.NextBillingDate).To(Equal(now.AddDate(0, 1, 0)))
		})

		It("should reset the failure count and clear the suspension timestamp", func() {
			sub := activeSub()
			sub.Status = datamodel.StatusPastDue
			sub.BillingFailureCount = 3
			suspendedAt := now.AddDate(0, 0, -2)
			sub.SuspendedAt = &suspendedAt

			err := machine.ApplyRenewalSuccess(sub, plan, now)
			Expect(err).NotTo(HaveOccurred())

			Expect(sub.Status).To(Equal(datamodel.StatusActive))
			Expect(sub.BillingFailureCount).To(Equal(0))
			Expect(sub.SuspendedAt).To(BeNil())
		})

		It("should re-anchor on now when the subscription is more than a period overdue", func() {
			sub := activeSub()
			sub.CurrentPeriodEnd = now.AddDate(0, -3, 0)

			err := machine.ApplyRenewalSuccess(sub, plan, now)
			Expect(err).NotTo(HaveOccurred())

			Expect(sub.CurrentPeriodStart).To(Equal(now))
			Expect(sub.CurrentPeriodEnd).To(Equal(now.AddDate(0, 1, 0)))
		})

		It("should advance a yearly plan by one year", func() {
			sub := activeSub()
			yearly := &datamodel.Plan{ID: 2, Code: "pro-yearly", Interval: datamodel.IntervalYearly}

			err := machine.ApplyRenewalSuccess(sub, yearly, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(sub.CurrentPeriodEnd).To(Equal(now.AddDate(1, 0, 0)))
		})

		It("should reject a cancelled subscription", func() {
			sub := activeSub()
			sub.Status = datamodel.StatusCancelled

			err := machine.ApplyRenewalSuccess(sub, plan, now)
			Expect(err).To(Equal(apperrors.ErrSubscriptionCancelled))
		})
	})

	Describe("ApplyRenewalFailure", func() {
		It("should move an active subscription to past_due and count the failure", func() {
			sub := activeSub()

			outcome, err := machine.ApplyRenewalFailure(sub, now)
			Expect(err).NotTo(HaveOccurred())

			Expect(sub.Status).To(Equal(datamodel.StatusPastDue))
			Expect(sub.BillingFailureCount).To(Equal(1))
			Expect(outcome.Suspended).To(BeFalse())
			Expect(outcome.SuspendWarning).To(BeFalse())
			Expect(outcome.NextRetryAt).To(Equal(now.Add(machine.RetryInterval)))
		})

		It("should keep the billing date in place so the next sweep retries", func() {
			sub := activeSub()
			before := *sub.NextBillingDate

			_, err := machine.ApplyRenewalFailure(sub, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(*sub.NextBillingDate).To(Equal(before))
		})

		It("should warn about suspension from the warn threshold on", func() {
			sub := activeSub()
			sub.Status = datamodel.StatusPastDue
			sub.BillingFailureCount = machine.WarnThreshold - 1

			outcome, err := machine.ApplyRenewalFailure(sub, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.SuspendWarning).To(BeTrue())
			Expect(sub.Status).To(Equal(datamodel.StatusPastDue))
		})

		It("should suspend at the suspend threshold and stamp suspended_at", func() {
			sub := activeSub()
			sub.Status = datamodel.StatusPastDue
			sub.BillingFailureCount = machine.SuspendThreshold - 1

			outcome, err := machine.ApplyRenewalFailure(sub, now)
			Expect(err).NotTo(HaveOccurred())

			Expect(outcome.Suspended).To(BeTrue())
			Expect(sub.Status).To(Equal(datamodel.StatusSuspended))
			Expect(sub.BillingFailureCount).To(Equal(machine.SuspendThreshold))
			Expect(sub.SuspendedAt).NotTo(BeNil())
			Expect(*sub.SuspendedAt).To(Equal(now))
		})

		It("should reject a cancelled subscription", func() {
			sub := activeSub()
			sub.Status = datamodel.StatusCancelled

			_, err := machine.ApplyRenewalFailure(sub, now)
			Expect(err).To(Equal(apperrors.ErrSubscriptionCancelled))
		})
	})

	Describe("Cancel", func() {
		It("should cancel from any non-terminal status and stop billing", func() {
			for _, status := range []string{
				datamodel.StatusTrialing,
				datamodel.StatusActive,
				datamodel.StatusPastDue,
				datamodel.StatusSuspended,
			} {
				sub := activeSub()
				sub.Status = status

				err := machine.Cancel(sub, now)
				Expect(err).NotTo(HaveOccurred(), "status %s", status)
				Expect(sub.Status).To(Equal(datamodel.StatusCancelled))
				Expect(sub.NextBillingDate).To(BeNil())
				Expect(sub.CancelledAt).NotTo(BeNil())
			}
		})

		It("should reject cancelling twice", func() {
			sub := activeSub()
			Expect(machine.Cancel(sub, now)).To(Succeed())
			Expect(machine.Cancel(sub, now)).To(Equal(apperrors.ErrSubscriptionCancelled))
		})
	})

	Describe("ExpireTrial", func() {
		It("should move an expired trial to past_due with the trial end as billing date", func() {
			endsAt := now.AddDate(0, 0, -1)
			sub := &datamodel.ClientSubscription{
				ID:          2,
				Status:      datamodel.StatusTrialing,
				TrialEndsAt: &endsAt,
			}

			err := machine.ExpireTrial(sub, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(sub.Status).To(Equal(datamodel.StatusPastDue))
			Expect(sub.NextBillingDate).To(Equal(&endsAt))
		})

		It("should leave a running trial alone", func() {
			endsAt := now.AddDate(0, 0, 7)
			sub := &datamodel.ClientSubscription{
				ID:          3,
				Status:      datamodel.StatusTrialing,
				TrialEndsAt: &endsAt,
			}

			err := machine.ExpireTrial(sub, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(sub.Status).To(Equal(datamodel.StatusTrialing))
		})
	})

	Describe("Reactivate", func() {
		It("should recover a suspended subscription like a renewal success", func() {
			sub := activeSub()
			sub.Status = datamodel.StatusSuspended
			sub.BillingFailureCount = 5
			suspendedAt := now.AddDate(0, 0, -10)
			sub.SuspendedAt = &suspendedAt
			sub.CurrentPeriodEnd = now.AddDate(0, -2, 0)

			err := machine.Reactivate(sub, plan, now)
			Expect(err).NotTo(HaveOccurred())

			Expect(sub.Status).To(Equal(datamodel.StatusActive))
			Expect(sub.BillingFailureCount).To(Equal(0))
			Expect(sub.SuspendedAt).To(BeNil())
			Expect(sub.CurrentPeriodEnd).To(Equal(now.AddDate(0, 1, 0)))
		})
	})

	Describe("NewMachine", func() {
		It("should fall back to defaults for non-positive thresholds", func() {
			m := subscription.NewMachine(0, 0, 0)
			Expect(m.SuspendThreshold).To(Equal(apperrors.DefaultSuspendThreshold))
			Expect(m.WarnThreshold).To(Equal(apperrors.DefaultWarnThreshold))
			Expect(m.RetryInterval).To(Equal(apperrors.DefaultRetryInterval))
		})
	})
})
