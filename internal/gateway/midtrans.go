package gateway

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/frahmantamala/pos-billing/internal/core/datamodel/merchant"
)

const (
	midtransSnapSandboxURL    = "https://app.sandbox.midtrans.com"
	midtransSnapProductionURL = "https://app.midtrans.com"
	midtransAPISandboxURL     = "https://api.sandbox.midtrans.com"
	midtransAPIProductionURL  = "https://api.midtrans.com"

	midtransTimeLayout = "2006-01-02 15:04:05"
)

// midtransPaidStatuses is the allow-list for treating a transaction as
// paid. Everything else (pending, deny, cancel, expire, refund) is unpaid.
var midtransPaidStatuses = map[string]bool{
	"capture":    true,
	"settlement": true,
}

type Midtrans struct {
	client      *http.Client
	logger      *slog.Logger
	snapBaseURL string
	apiBaseURL  string
}

func NewMidtrans(logger *slog.Logger) *Midtrans {
	return &Midtrans{
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

// NewMidtransWithBaseURLs overrides both provider hosts, used by tests to
// point the adapter at an httptest server.
func NewMidtransWithBaseURLs(logger *slog.Logger, snapBaseURL, apiBaseURL string) *Midtrans {
	m := NewMidtrans(logger)
	m.snapBaseURL = snapBaseURL
	m.apiBaseURL = apiBaseURL
	return m
}

func (m *Midtrans) Name() string {
	return merchant.GatewayMidtrans
}

func (m *Midtrans) snapBase(cfg merchant.GatewayConfig) string {
	if m.snapBaseURL != "" {
		return m.snapBaseURL
	}
	if cfg.IsProduction {
		return midtransSnapProductionURL
	}
	return midtransSnapSandboxURL
}

func (m *Midtrans) apiBase(cfg merchant.GatewayConfig) string {
	if m.apiBaseURL != "" {
		return m.apiBaseURL
	}
	if cfg.IsProduction {
		return midtransAPIProductionURL
	}
	return midtransAPISandboxURL
}

type midtransTransactionDetails struct {
	OrderID     string `json:"order_id"`
	GrossAmount int64  `json:"gross_amount"`
}

type midtransCustomerDetails struct {
	FirstName string `json:"first_name,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

type midtransSnapResponse struct {
	Token         string   `json:"token"`
	RedirectURL   string   `json:"redirect_url"`
	ErrorMessages []string `json:"error_messages"`
}

type midtransTransactionResponse struct {
	StatusCode        string `json:"status_code"`
	StatusMessage     string `json:"status_message"`
	TransactionID     string `json:"transaction_id"`
	OrderID           string `json:"order_id"`
	GrossAmount       string `json:"gross_amount"`
	PaymentType       string `json:"payment_type"`
	TransactionStatus string `json:"transaction_status"`
	SettlementTime    string `json:"settlement_time"`
	SignatureKey      string `json:"signature_key"`
}

func (m *Midtrans) CreateCharge(ctx context.Context, req *ChargeRequest, cfg merchant.GatewayConfig) (*ChargeResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return nil, NewGatewayError(m.Name(), "gateway is disabled in configuration", nil)
	}

	payload := map[string]interface{}{
		"transaction_details": midtransTransactionDetails{
			OrderID:     req.OrderID,
			GrossAmount: req.AmountIDR,
		},
		"customer_details": midtransCustomerDetails{
			FirstName: req.Customer.Name,
			Email:     req.Customer.Email,
			Phone:     req.Customer.Phone,
		},
	}
	if req.FinishURL != "" {
		payload["callbacks"] = map[string]string{"finish": req.FinishURL}
	}

	raw, err := m.post(ctx, m.snapBase(cfg)+"/snap/v1/transactions", cfg.ServerKey, payload)
	if err != nil {
		return nil, err
	}

	var snapResp midtransSnapResponse
	if err := json.Unmarshal(raw, &snapResp); err != nil {
		return nil, NewGatewayError(m.Name(), "failed to decode snap response", err)
	}
	if len(snapResp.ErrorMessages) > 0 {
		return nil, NewGatewayError(m.Name(), snapResp.ErrorMessages[0], nil)
	}

	m.logger.Info("midtrans snap transaction created",
		"order_id", req.OrderID,
		"amount_idr", req.AmountIDR)

	return &ChargeResult{
		Reference:  req.OrderID,
		PaymentURL: snapResp.RedirectURL,
		Token:      snapResp.Token,
		Raw:        raw,
	}, nil
}

func (m *Midtrans) CreateDepositCharge(ctx context.Context, req *DepositChargeRequest, cfg merchant.GatewayConfig) (*ChargeResult, error) {
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
	return m.CreateCharge(ctx, charge, cfg)
}

func (m *Midtrans) ChargeRecurring(ctx context.Context, req *RecurringChargeRequest, cfg merchant.GatewayConfig) (*StatusResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return nil, NewGatewayError(m.Name(), "gateway is disabled in configuration", nil)
	}

	payload := map[string]interface{}{
		"payment_type": "credit_card",
		"transaction_details": midtransTransactionDetails{
			OrderID:     req.OrderID,
			GrossAmount: req.AmountIDR,
		},
		"credit_card": map[string]string{
			"token_id": req.Token,
		},
		"customer_details": midtransCustomerDetails{
			FirstName: req.Customer.Name,
			Email:     req.Customer.Email,
			Phone:     req.Customer.Phone,
		},
	}

	raw, err := m.post(ctx, m.apiBase(cfg)+"/v2/charge", cfg.ServerKey, payload)
	if err != nil {
		return nil, err
	}

	result, err := m.parseTransaction(raw)
	if err != nil {
		return nil, err
	}

	m.logger.Info("midtrans recurring charge completed",
		"order_id", req.OrderID,
		"status", result.Status,
		"is_paid", result.IsPaid)

	return result, nil
}

func (m *Midtrans) CheckStatus(ctx context.Context, orderID string, cfg merchant.GatewayConfig) (*StatusResult, error) {
	if !cfg.Enabled {
		return nil, NewGatewayError(m.Name(), "gateway is disabled in configuration", nil)
	}

	url := fmt.Sprintf("%s/v2/%s/status", m.apiBase(cfg), orderID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, NewGatewayError(m.Name(), "failed to create status request", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.SetBasicAuth(cfg.ServerKey, "")

	resp, err := m.client.Do(httpReq)
	if err != nil {
		m.logger.Error("midtrans status request failed", "order_id", orderID, "error", err)
		return nil, NewGatewayError(m.Name(), "status request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewGatewayError(m.Name(), "failed to read status response", err)
	}

	if resp.StatusCode != http.StatusOK {
		m.logger.Error("midtrans status API returned error",
			"order_id", orderID,
			"status", resp.StatusCode,
			"response", string(raw))
		return nil, NewGatewayError(m.Name(), providerErrorText(raw, resp.StatusCode), nil)
	}

	return m.parseTransaction(raw)
}

func (m *Midtrans) post(ctx context.Context, url, serverKey string, payload interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, NewGatewayError(m.Name(), "failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, NewGatewayError(m.Name(), "failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.SetBasicAuth(serverKey, "")

	resp, err := m.client.Do(httpReq)
	if err != nil {
		m.logger.Error("midtrans request failed", "url", url, "error", err)
		return nil, NewGatewayError(m.Name(), "request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewGatewayError(m.Name(), "failed to read response", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		m.logger.Error("midtrans API returned error",
			"url", url,
			"status", resp.StatusCode,
			"response", string(raw))
		return nil, NewGatewayError(m.Name(), providerErrorText(raw, resp.StatusCode), nil)
	}

	return raw, nil
}

func (m *Midtrans) parseTransaction(raw json.RawMessage) (*StatusResult, error) {
	var tx midtransTransactionResponse
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, NewGatewayError(m.Name(), "failed to decode transaction response", err)
	}

	result := &StatusResult{
		Status:      tx.TransactionStatus,
		IsPaid:      midtransPaidStatuses[tx.TransactionStatus],
		Reference:   tx.TransactionID,
		PaymentType: tx.PaymentType,
		Raw:         raw,
	}

	if tx.GrossAmount != "" {
		if amount, err := strconv.ParseFloat(tx.GrossAmount, 64); err == nil {
			result.AmountIDR = int64(amount)
		}
	}
	if tx.SettlementTime != "" {
		if paidAt, err := time.Parse(midtransTimeLayout, tx.SettlementTime); err == nil {
			result.PaidAt = &paidAt
		}
	}

	return result, nil
}

// MidtransSignature computes the notification signature the way the
// provider does: sha512(order_id + status_code + gross_amount + server_key).
func MidtransSignature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// MidtransStatusIsPaid reports whether a transaction_status value settles
// the payment.
func MidtransStatusIsPaid(status string) bool {
	return midtransPaidStatuses[status]
}

// providerErrorText pulls the provider's own error text out of an error
// body so GatewayError messages stay meaningful.
func providerErrorText(raw []byte, httpStatus int) string {
	var body struct {
		StatusMessage string   `json:"status_message"`
		Message       string   `json:"message"`
		ErrorMessages []string `json:"error_messages"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if len(body.ErrorMessages) > 0 {
			return body.ErrorMessages[0]
		}
		if body.StatusMessage != "" {
			return body.StatusMessage
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return fmt.Sprintf("HTTP %d: %s", httpStatus, string(raw))
}
