package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/frahmantamala/pos-billing/internal/core/datamodel/merchant"
)

// Xendit serves sandbox and production from one host; the mode is decided
// by the secret key, not the URL.
const xenditDefaultBaseURL = "https://api.xendit.co"

// xenditPaidStatuses is the allow-list for treating an invoice or card
// charge as paid.
var xenditPaidStatuses = map[string]bool{
	"PAID":     true,
	"SETTLED":  true,
	"CAPTURED": true,
}

// XenditStatusIsPaid reports whether an invoice or charge status settles
// the payment.
func XenditStatusIsPaid(status string) bool {
	return xenditPaidStatuses[status]
}

type Xendit struct {
	client  *http.Client
	logger  *slog.Logger
	baseURL string
}

func NewXendit(logger *slog.Logger) *Xendit {
	return &Xendit{
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
		baseURL: xenditDefaultBaseURL,
	}
}

func NewXenditWithBaseURL(logger *slog.Logger, baseURL string) *Xendit {
	x := NewXendit(logger)
	x.baseURL = baseURL
	return x
}

func (x *Xendit) Name() string {
	return merchant.GatewayXendit
}

type xenditInvoiceResponse struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
	Amount     int64  `json:"amount"`
	InvoiceURL string `json:"invoice_url"`
	PaidAt     string `json:"paid_at"`
	PaidAmount int64  `json:"paid_amount"`
	ErrorCode  string `json:"error_code"`
	Message    string `json:"message"`
}

type xenditCardChargeResponse struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
	Amount     int64  `json:"capture_amount"`
	ErrorCode  string `json:"error_code"`
	Message    string `json:"message"`
}

func (x *Xendit) CreateCharge(ctx context.Context, req *ChargeRequest, cfg merchant.GatewayConfig) (*ChargeResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return nil, NewGatewayError(x.Name(), "gateway is disabled in configuration", nil)
	}

	payload := map[string]interface{}{
		"external_id": req.OrderID,
		"amount":      req.AmountIDR,
		"description": req.Description,
		"currency":    "IDR",
	}
	if req.Customer.Email != "" {
		payload["payer_email"] = req.Customer.Email
	}
	if req.FinishURL != "" {
		payload["success_redirect_url"] = req.FinishURL
	}

	raw, err := x.post(ctx, "/v2/invoices", cfg.SecretKey, payload)
	if err != nil {
		return nil, err
	}

	var invoice xenditInvoiceResponse
	if err := json.Unmarshal(raw, &invoice); err != nil {
		return nil, NewGatewayError(x.Name(), "failed to decode invoice response", err)
	}
	if invoice.ErrorCode != "" {
		return nil, NewGatewayError(x.Name(), fmt.Sprintf("%s: %s", invoice.ErrorCode, invoice.Message), nil)
	}

	x.logger.Info("xendit invoice created",
		"order_id", req.OrderID,
		"invoice_id", invoice.ID,
		"amount_idr", req.AmountIDR)

	return &ChargeResult{
		Reference:  invoice.ID,
		PaymentURL: invoice.InvoiceURL,
		Raw:        raw,
	}, nil
}

func (x *Xendit) CreateDepositCharge(ctx context.Context, req *DepositChargeRequest, cfg merchant.GatewayConfig) (*ChargeResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	charge := &ChargeRequest{
		OrderID:     req.OrderID,
		AmountIDR:   req.ChargeAmount(),
		Description: req.Description,
		Customer:    req.Customer,
		CallbackURL: req.CallbackURL,
		FinishURL:   req.FinishURL,
	}
	return x.CreateCharge(ctx, charge, cfg)
}

func (x *Xendit) ChargeRecurring(ctx context.Context, req *RecurringChargeRequest, cfg merchant.GatewayConfig) (*StatusResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return nil, NewGatewayError(x.Name(), "gateway is disabled in configuration", nil)
	}

	payload := map[string]interface{}{
		"token_id":    req.Token,
		"external_id": req.OrderID,
		"amount":      req.AmountIDR,
	}

	raw, err := x.post(ctx, "/credit_card_charges", cfg.SecretKey, payload)
	if err != nil {
		return nil, err
	}

	var charge xenditCardChargeResponse
	if err := json.Unmarshal(raw, &charge); err != nil {
		return nil, NewGatewayError(x.Name(), "failed to decode charge response", err)
	}
	if charge.ErrorCode != "" {
		return nil, NewGatewayError(x.Name(), fmt.Sprintf("%s: %s", charge.ErrorCode, charge.Message), nil)
	}

	result := &StatusResult{
		Status:      charge.Status,
		IsPaid:      xenditPaidStatuses[charge.Status],
		AmountIDR:   charge.Amount,
		Reference:   charge.ID,
		PaymentType: "credit_card",
		Raw:         raw,
	}
	if result.IsPaid {
		now := time.Now().UTC()
		result.PaidAt = &now
	}

	x.logger.Info("xendit recurring charge completed",
		"order_id", req.OrderID,
		"status", result.Status,
		"is_paid", result.IsPaid)

	return result, nil
}

func (x *Xendit) CheckStatus(ctx context.Context, orderID string, cfg merchant.GatewayConfig) (*StatusResult, error) {
	if !cfg.Enabled {
		return nil, NewGatewayError(x.Name(), "gateway is disabled in configuration", nil)
	}

	endpoint := fmt.Sprintf("%s/v2/invoices?external_id=%s", x.baseURL, url.QueryEscape(orderID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, NewGatewayError(x.Name(), "failed to create status request", err)
	}
	httpReq.SetBasicAuth(cfg.SecretKey, "")

	resp, err := x.client.Do(httpReq)
	if err != nil {
		x.logger.Error("xendit status request failed", "order_id", orderID, "error", err)
		return nil, NewGatewayError(x.Name(), "status request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewGatewayError(x.Name(), "failed to read status response", err)
	}

	if resp.StatusCode != http.StatusOK {
		x.logger.Error("xendit status API returned error",
			"order_id", orderID,
			"status", resp.StatusCode,
			"response", string(raw))
		return nil, NewGatewayError(x.Name(), providerErrorText(raw, resp.StatusCode), nil)
	}

	var invoices []xenditInvoiceResponse
	if err := json.Unmarshal(raw, &invoices); err != nil {
		return nil, NewGatewayError(x.Name(), "failed to decode status response", err)
	}
	if len(invoices) == 0 {
		return nil, NewGatewayError(x.Name(), fmt.Sprintf("no invoice found for external id %s", orderID), nil)
	}

	invoice := invoices[0]
	result := &StatusResult{
		Status:    invoice.Status,
		IsPaid:    xenditPaidStatuses[invoice.Status],
		AmountIDR: invoice.Amount,
		Reference: invoice.ID,
		Raw:       raw,
	}
	if invoice.PaidAt != "" {
		if paidAt, err := time.Parse(time.RFC3339, invoice.PaidAt); err == nil {
			result.PaidAt = &paidAt
		}
	}

	return result, nil
}

func (x *Xendit) post(ctx context.Context, path, secretKey string, payload interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, NewGatewayError(x.Name(), "failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, x.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return nil, NewGatewayError(x.Name(), "failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(secretKey, "")

	resp, err := x.client.Do(httpReq)
	if err != nil {
		x.logger.Error("xendit request failed", "path", path, "error", err)
		return nil, NewGatewayError(x.Name(), "request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewGatewayError(x.Name(), "failed to read response", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		x.logger.Error("xendit API returned error",
			"path", path,
			"status", resp.StatusCode,
			"response", string(raw))
		return nil, NewGatewayError(x.Name(), providerErrorText(raw, resp.StatusCode), nil)
	}

	return raw, nil
}
