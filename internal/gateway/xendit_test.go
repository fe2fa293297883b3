package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/pos-billing/internal/core/datamodel/merchant"
	"github.com/frahmantamala/pos-billing/internal/gateway"
)

var _ = Describe("Xendit", func() {
	var (
		cfg merchant.GatewayConfig
		ctx context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		cfg = merchant.GatewayConfig{
			Enabled:       true,
			SecretKey:     "xnd_dev_secret",
			CallbackToken: "cb-token-1",
		}
	})

	Describe("CreateCharge", func() {
		It("should create an invoice and return its URL", func() {
			var gotPath string
			var gotPayload map[string]interface{}
			var gotUser string

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				gotUser = basicAuthUser(r)
				Expect(json.NewDecoder(r.Body).Decode(&gotPayload)).To(Succeed())

				json.NewEncoder(w).Encode(map[string]interface{}{
					"id":          "inv-1",
					"external_id": "order-1",
					"status":      "PENDING",
					"amount":      149000,
					"invoice_url": "https://checkout.xendit.co/web/inv-1",
				})
			}))
			defer server.Close()

			adapter := gateway.NewXenditWithBaseURL(testLogger(), server.URL)

			result, err := adapter.CreateCharge(ctx, &gateway.ChargeRequest{
				OrderID:   "order-1",
				AmountIDR: 149000,
				Customer:  gateway.Customer{Email: "owner@toko.example"},
				FinishURL: "https://pos.example/finish",
			}, cfg)
			Expect(err).NotTo(HaveOccurred())

			Expect(gotPath).To(Equal("/v2/invoices"))
			Expect(gotUser).To(Equal(cfg.SecretKey))
			Expect(gotPayload["external_id"]).To(Equal("order-1"))
			Expect(gotPayload["amount"]).To(BeNumerically("==", 149000))
			Expect(gotPayload["currency"]).To(Equal("IDR"))
			Expect(gotPayload["payer_email"]).To(Equal("owner@toko.example"))
			Expect(gotPayload["success_redirect_url"]).To(Equal("https://pos.example/finish"))

			Expect(result.Reference).To(Equal("inv-1"))
			Expect(result.PaymentURL).To(Equal("https://checkout.xendit.co/web/inv-1"))
		})

		It("should surface the provider error code and message", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]string{
					"error_code": "DUPLICATE_EXTERNAL_ID",
					"message":    "external id already used",
				})
			}))
			defer server.Close()

			adapter := gateway.NewXenditWithBaseURL(testLogger(), server.URL)

			_, err := adapter.CreateCharge(ctx, &gateway.ChargeRequest{
				OrderID: "order-1", AmountIDR: 149000,
			}, cfg)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("DUPLICATE_EXTERNAL_ID"))
			Expect(err.Error()).To(ContainSubstring("external id already used"))
		})

		It("should refuse when the gateway is disabled", func() {
			adapter := gateway.NewXenditWithBaseURL(testLogger(), "http://unused")
			cfg.Enabled = false

			_, err := adapter.CreateCharge(ctx, &gateway.ChargeRequest{
				OrderID: "order-1", AmountIDR: 149000,
			}, cfg)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("disabled"))
		})
	})

	Describe("ChargeRecurring", func() {
		It("should charge the saved card token and report a capture as paid", func() {
			var gotPath string
			var gotPayload map[string]interface{}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				Expect(json.NewDecoder(r.Body).Decode(&gotPayload)).To(Succeed())

				json.NewEncoder(w).Encode(map[string]interface{}{
					"id":             "chg-1",
					"external_id":    "renewal-1",
					"status":         "CAPTURED",
					"capture_amount": 149000,
				})
			}))
			defer server.Close()

			adapter := gateway.NewXenditWithBaseURL(testLogger(), server.URL)

			result, err := adapter.ChargeRecurring(ctx, &gateway.RecurringChargeRequest{
				OrderID:   "renewal-1",
				AmountIDR: 149000,
				Token:     "card-token-1",
			}, cfg)
			Expect(err).NotTo(HaveOccurred())

			Expect(gotPath).To(Equal("/credit_card_charges"))
			Expect(gotPayload["token_id"]).To(Equal("card-token-1"))
			Expect(gotPayload["external_id"]).To(Equal("renewal-1"))

			Expect(result.IsPaid).To(BeTrue())
			Expect(result.Status).To(Equal("CAPTURED"))
			Expect(result.AmountIDR).To(Equal(int64(149000)))
			Expect(result.Reference).To(Equal("chg-1"))
			Expect(result.PaidAt).NotTo(BeNil())
		})

		It("should report a failed charge as unpaid without error", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]interface{}{
					"id":     "chg-2",
					"status": "FAILED",
				})
			}))
			defer server.Close()

			adapter := gateway.NewXenditWithBaseURL(testLogger(), server.URL)

			result, err := adapter.ChargeRecurring(ctx, &gateway.RecurringChargeRequest{
				OrderID: "renewal-2", AmountIDR: 149000, Token: "card-token-1",
			}, cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.IsPaid).To(BeFalse())
			Expect(result.PaidAt).To(BeNil())
		})
	})

	Describe("CheckStatus", func() {
		It("should look up the invoice by external id", func() {
			var gotQuery string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotQuery = r.URL.Query().Get("external_id")
				json.NewEncoder(w).Encode([]map[string]interface{}{{
					"id":          "inv-1",
					"external_id": "order-1",
					"status":      "PAID",
					"amount":      149000,
					"paid_at":     "2025-06-15T11:00:00Z",
				}})
			}))
			defer server.Close()

			adapter := gateway.NewXenditWithBaseURL(testLogger(), server.URL)

			result, err := adapter.CheckStatus(ctx, "order-1", cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(gotQuery).To(Equal("order-1"))
			Expect(result.IsPaid).To(BeTrue())
			Expect(result.AmountIDR).To(Equal(int64(149000)))
			Expect(result.PaidAt).NotTo(BeNil())
			Expect(result.PaidAt.Hour()).To(Equal(11))
		})

		It("should error when no invoice carries the external id", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode([]map[string]interface{}{})
			}))
			defer server.Close()

			adapter := gateway.NewXenditWithBaseURL(testLogger(), server.URL)

			_, err := adapter.CheckStatus(ctx, "order-x", cfg)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("no invoice found"))
		})
	})

	Describe("XenditStatusIsPaid", func() {
		It("should accept only settling statuses", func() {
			Expect(gateway.XenditStatusIsPaid("PAID")).To(BeTrue())
			Expect(gateway.XenditStatusIsPaid("SETTLED")).To(BeTrue())
			Expect(gateway.XenditStatusIsPaid("CAPTURED")).To(BeTrue())
			Expect(gateway.XenditStatusIsPaid("PENDING")).To(BeFalse())
			Expect(gateway.XenditStatusIsPaid("EXPIRED")).To(BeFalse())
		})
	})
})
