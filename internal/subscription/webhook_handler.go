package subscription

import (
	"crypto/subtle"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"
	"time"

	errors "github.com/frahmantamala/pos-billing/internal"
	"github.com/frahmantamala/pos-billing/internal/core/datamodel/merchant"
	"github.com/frahmantamala/pos-billing/internal/core/datamodel/subscription"
	"github.com/frahmantamala/pos-billing/internal/gateway"
	"github.com/frahmantamala/pos-billing/internal/transport"
)

// midtransFailedStatuses are terminal failure notifications: the charge
// will never settle under the same order id.
var midtransFailedStatuses = map[string]bool{
	"deny":    true,
	"cancel":  true,
	"expire":  true,
	"failure": true,
}

var xenditFailedStatuses = map[string]bool{
	"EXPIRED": true,
	"FAILED":  true,
}

// WebhookHandler receives payment gateway callbacks. Signature and amount
// checks run before any state is touched; a duplicate paid delivery is a
// no-op so providers can retry freely.
type WebhookHandler struct {
	*transport.BaseHandler
	payments  PaymentRepositoryAPI
	subs      RepositoryAPI
	merchants MerchantRepositoryAPI
	service   ServiceAPI
	charger   Charger
	settings  errors.GatewaysConfig

	now func() time.Time
}

func NewWebhookHandler(
	payments PaymentRepositoryAPI,
	subs RepositoryAPI,
	merchants MerchantRepositoryAPI,
	service ServiceAPI,
	charger Charger,
	settings errors.GatewaysConfig,
) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler: transport.NewBaseHandler(nil),
		payments:    payments,
		subs:        subs,
		merchants:   merchants,
		service:     service,
		charger:     charger,
		settings:    settings,
		now:         time.Now,
	}
}

// WithClock overrides the handler clock, for tests.
func (h *WebhookHandler) WithClock(now func() time.Time) *WebhookHandler {
	h.now = now
	return h
}

type midtransNotification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionStatus string `json:"transaction_status"`
	TransactionID     string `json:"transaction_id"`
	PaymentType       string `json:"payment_type"`
	SettlementTime    string `json:"settlement_time"`
	FraudStatus       string `json:"fraud_status"`
}

// HandleMidtransNotification processes POST notifications from Midtrans.
// The signature is verified against the server key of the client's default
// merchant (legacy global settings when none exists) before the payload is
// trusted.
func (h *WebhookHandler) HandleMidtransNotification(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var notif midtransNotification
	if err := json.Unmarshal(body, &notif); err != nil {
		h.Logger.Error("midtrans notification: invalid JSON", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if notif.OrderID == "" {
		h.WriteError(w, http.StatusBadRequest, "order_id is required")
		return
	}

	payment, err := h.payments.GetByOrderID(notif.OrderID)
	if err != nil {
		// No stored payment means no merchant key to resolve. Verify against
		// the legacy global key before admitting the order is unknown, so an
		// unsigned caller cannot probe which order ids exist.
		legacy := gateway.CredentialsForGateway(h.settings, merchant.GatewayMidtrans)
		expected := gateway.MidtransSignature(notif.OrderID, notif.StatusCode, notif.GrossAmount, legacy.Config.ServerKey)
		if subtle.ConstantTimeCompare([]byte(expected), []byte(notif.SignatureKey)) != 1 {
			h.rejectWebhook(w, &gateway.SignatureError{Gateway: merchant.GatewayMidtrans, OrderID: notif.OrderID})
			return
		}
		h.Logger.Warn("midtrans notification for unknown order",
			"order_id", notif.OrderID)
		h.WriteError(w, http.StatusNotFound, "unknown order")
		return
	}

	sub, err := h.subs.GetByID(payment.SubscriptionID)
	if err != nil {
		h.Logger.Error("midtrans notification: subscription missing for payment",
			"order_id", notif.OrderID,
			"subscription_id", payment.SubscriptionID,
			"error", err)
		h.WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	src := h.credentialsFor(sub.ClientID, merchant.GatewayMidtrans)
	expected := gateway.MidtransSignature(notif.OrderID, notif.StatusCode, notif.GrossAmount, src.Config.ServerKey)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(notif.SignatureKey)) != 1 {
		h.rejectWebhook(w, &gateway.SignatureError{Gateway: merchant.GatewayMidtrans, OrderID: notif.OrderID})
		return
	}

	grossAmount, err := strconv.ParseFloat(notif.GrossAmount, 64)
	if err != nil || int64(grossAmount) != payment.AmountIDR {
		h.rejectWebhook(w, &gateway.AmountMismatchError{
			OrderID:  notif.OrderID,
			Expected: payment.AmountIDR,
			Got:      int64(grossAmount),
		})
		return
	}

	paid := gateway.MidtransStatusIsPaid(notif.TransactionStatus)

	if payment.Status == subscription.PaymentStatusSuccess {
		// Provider retry of an already-applied notification.
		h.Logger.Info("midtrans notification: duplicate delivery, ignoring",
			"order_id", notif.OrderID,
			"transaction_status", notif.TransactionStatus)
		h.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	switch {
	case paid:
		paidAt := h.now()
		if notif.SettlementTime != "" {
			if t, perr := time.Parse("2006-01-02 15:04:05", notif.SettlementTime); perr == nil {
				paidAt = t
			}
		}
		var method *string
		if notif.PaymentType != "" {
			method = &notif.PaymentType
		}
		if err := h.payments.UpdateStatus(payment.ID, subscription.PaymentStatusSuccess, method, body, nil, &paidAt); err != nil {
			h.Logger.Error("midtrans notification: failed to apply payment",
				"order_id", notif.OrderID,
				"error", err)
			h.WriteError(w, http.StatusInternalServerError, "failed to apply payment")
			return
		}

		if err := h.service.ReactivateFromPayment(r.Context(), payment.SubscriptionID, notif.OrderID); err != nil {
			h.Logger.Error("midtrans notification: reactivation failed",
				"order_id", notif.OrderID,
				"subscription_id", payment.SubscriptionID,
				"error", err)
			h.WriteError(w, http.StatusInternalServerError, "failed to apply payment")
			return
		}

		h.Logger.Info("midtrans payment settled",
			"order_id", notif.OrderID,
			"subscription_id", payment.SubscriptionID,
			"payment_type", notif.PaymentType)

	case midtransFailedStatuses[notif.TransactionStatus]:
		reason := "midtrans status: " + notif.TransactionStatus
		if err := h.payments.UpdateStatus(payment.ID, subscription.PaymentStatusFailed, nil, body, &reason, nil); err != nil {
			h.Logger.Error("midtrans notification: failed to record failure",
				"order_id", notif.OrderID,
				"error", err)
			h.WriteError(w, http.StatusInternalServerError, "failed to record failure")
			return
		}
		h.Logger.Info("midtrans payment failed",
			"order_id", notif.OrderID,
			"transaction_status", notif.TransactionStatus)

	default:
		// Pending or other intermediate status: acknowledge, change nothing.
		h.Logger.Debug("midtrans notification: intermediate status",
			"order_id", notif.OrderID,
			"transaction_status", notif.TransactionStatus)
	}

	h.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleMidtransFinish serves the redirect landing lookup: the frontend
// lands here after Snap and asks for the authoritative status.
func (h *WebhookHandler) HandleMidtransFinish(w http.ResponseWriter, r *http.Request) {
	orderID := r.URL.Query().Get("order_id")
	if orderID == "" {
		h.WriteError(w, http.StatusBadRequest, "order_id is required")
		return
	}

	payment, err := h.payments.GetByOrderID(orderID)
	if err != nil {
		h.WriteError(w, http.StatusNotFound, "unknown order")
		return
	}

	sub, err := h.subs.GetByID(payment.SubscriptionID)
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	src := h.credentialsFor(sub.ClientID, payment.Gateway)
	status, err := h.charger.CheckPaymentStatus(r.Context(), src, orderID)
	if err != nil {
		h.Logger.Error("finish lookup: status check failed",
			"order_id", orderID,
			"error", err)
		h.WriteError(w, http.StatusBadGateway, "gateway status check failed")
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"order_id":   orderID,
		"status":     status.Status,
		"is_paid":    status.IsPaid,
		"amount_idr": status.AmountIDR,
	})
}

type xenditInvoiceCallback struct {
	ID            string  `json:"id"`
	ExternalID    string  `json:"external_id"`
	Status        string  `json:"status"`
	PaidAmount    int64   `json:"paid_amount"`
	Amount        int64   `json:"amount"`
	PaymentMethod string  `json:"payment_method"`
	PaidAt        *string `json:"paid_at"`
}

// HandleXenditInvoiceCallback processes Xendit invoice callbacks. Xendit
// authenticates with a shared callback token header instead of a payload
// signature.
func (h *WebhookHandler) HandleXenditInvoiceCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var cb xenditInvoiceCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		h.Logger.Error("xendit callback: invalid JSON", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if cb.ExternalID == "" {
		h.WriteError(w, http.StatusBadRequest, "external_id is required")
		return
	}

	payment, err := h.payments.GetByOrderID(cb.ExternalID)
	if err != nil {
		// Same probing guard as the Midtrans path: only a caller holding the
		// legacy callback token learns that an external id is unknown.
		legacy := gateway.CredentialsForGateway(h.settings, merchant.GatewayXendit)
		token := r.Header.Get("x-callback-token")
		if legacy.Config.CallbackToken == "" ||
			subtle.ConstantTimeCompare([]byte(legacy.Config.CallbackToken), []byte(token)) != 1 {
			h.rejectWebhook(w, &gateway.SignatureError{Gateway: merchant.GatewayXendit, OrderID: cb.ExternalID})
			return
		}
		h.Logger.Warn("xendit callback for unknown order", "external_id", cb.ExternalID)
		h.WriteError(w, http.StatusNotFound, "unknown order")
		return
	}

	sub, err := h.subs.GetByID(payment.SubscriptionID)
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	src := h.credentialsFor(sub.ClientID, merchant.GatewayXendit)
	token := r.Header.Get("x-callback-token")
	if src.Config.CallbackToken == "" ||
		subtle.ConstantTimeCompare([]byte(src.Config.CallbackToken), []byte(token)) != 1 {
		h.rejectWebhook(w, &gateway.SignatureError{Gateway: merchant.GatewayXendit, OrderID: cb.ExternalID})
		return
	}

	amount := cb.PaidAmount
	if amount == 0 {
		amount = cb.Amount
	}
	if amount != payment.AmountIDR {
		h.rejectWebhook(w, &gateway.AmountMismatchError{
			OrderID:  cb.ExternalID,
			Expected: payment.AmountIDR,
			Got:      amount,
		})
		return
	}

	if payment.Status == subscription.PaymentStatusSuccess {
		h.Logger.Info("xendit callback: duplicate delivery, ignoring",
			"external_id", cb.ExternalID,
			"status", cb.Status)
		h.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	switch {
	case gateway.XenditStatusIsPaid(cb.Status):
		paidAt := h.now()
		if cb.PaidAt != nil {
			if t, perr := time.Parse(time.RFC3339, *cb.PaidAt); perr == nil {
				paidAt = t
			}
		}
		var method *string
		if cb.PaymentMethod != "" {
			method = &cb.PaymentMethod
		}
		if err := h.payments.UpdateStatus(payment.ID, subscription.PaymentStatusSuccess, method, body, nil, &paidAt); err != nil {
			h.Logger.Error("xendit callback: failed to apply payment",
				"external_id", cb.ExternalID,
				"error", err)
			h.WriteError(w, http.StatusInternalServerError, "failed to apply payment")
			return
		}

		if err := h.service.ReactivateFromPayment(r.Context(), payment.SubscriptionID, cb.ExternalID); err != nil {
			h.Logger.Error("xendit callback: reactivation failed",
				"external_id", cb.ExternalID,
				"subscription_id", payment.SubscriptionID,
				"error", err)
			h.WriteError(w, http.StatusInternalServerError, "failed to apply payment")
			return
		}

		h.Logger.Info("xendit payment settled",
			"external_id", cb.ExternalID,
			"subscription_id", payment.SubscriptionID,
			"payment_method", cb.PaymentMethod)

	case xenditFailedStatuses[cb.Status]:
		reason := "xendit status: " + cb.Status
		if err := h.payments.UpdateStatus(payment.ID, subscription.PaymentStatusFailed, nil, body, &reason, nil); err != nil {
			h.Logger.Error("xendit callback: failed to record failure",
				"external_id", cb.ExternalID,
				"error", err)
			h.WriteError(w, http.StatusInternalServerError, "failed to record failure")
			return
		}
		h.Logger.Info("xendit payment failed",
			"external_id", cb.ExternalID,
			"status", cb.Status)

	default:
		h.Logger.Debug("xendit callback: intermediate status",
			"external_id", cb.ExternalID,
			"status", cb.Status)
	}

	h.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// rejectWebhook maps a rejection error onto its response: a signature or
// callback-token failure is an authentication failure, an amount mismatch
// a bad request. No state has been mutated on either path.
func (h *WebhookHandler) rejectWebhook(w http.ResponseWriter, err error) {
	var sigErr *gateway.SignatureError
	var amountErr *gateway.AmountMismatchError
	switch {
	case stderrors.As(err, &sigErr):
		h.Logger.Warn("webhook rejected", "error", err)
		msg := "invalid signature"
		if sigErr.Gateway == merchant.GatewayXendit {
			msg = "invalid callback token"
		}
		h.WriteError(w, http.StatusUnauthorized, msg)
	case stderrors.As(err, &amountErr):
		h.Logger.Warn("webhook rejected", "error", err)
		h.WriteError(w, http.StatusBadRequest, "amount mismatch")
	default:
		h.HandleError(w, err)
	}
}

// credentialsFor resolves credentials for a known gateway: the client's
// default merchant when it is configured for that gateway, otherwise the
// legacy global settings for it.
func (h *WebhookHandler) credentialsFor(clientID int64, gatewayName string) gateway.CredentialSource {
	m, err := h.merchants.GetDefaultForClient(clientID)
	if err == nil && m != nil && m.Gateway == gatewayName {
		return gateway.CredentialsFromMerchant(m)
	}
	return gateway.CredentialsForGateway(h.settings, gatewayName)
}
