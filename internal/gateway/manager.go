package gateway

import (
	"context"
	"log/slog"

	internal "github.com/frahmantamala/pos-billing/internal"
	"github.com/frahmantamala/pos-billing/internal/core/datamodel/merchant"
)

// CredentialSource names a gateway and carries the credentials to use with
// it. It is built exactly once at the call boundary, either from a
// per-client merchant row or from the legacy global gateway settings, so
// the two credential paths share every operation below.
type CredentialSource struct {
	Gateway string
	Config  merchant.GatewayConfig
}

func CredentialsFromMerchant(m *merchant.PaymentMerchant) CredentialSource {
	return CredentialSource{
		Gateway: m.Gateway,
		Config:  m.Config(),
	}
}

func CredentialsFromSettings(cfg internal.GatewaysConfig) CredentialSource {
	name := cfg.Default
	if name == "" {
		name = merchant.GatewayMidtrans
	}
	return CredentialsForGateway(cfg, name)
}

// CredentialsForGateway picks the legacy settings for a specific gateway,
// regardless of which one is configured as default. Webhook handlers use
// this: the incoming provider is fixed by the endpoint, not by config.
func CredentialsForGateway(cfg internal.GatewaysConfig, name string) CredentialSource {
	switch name {
	case merchant.GatewayXendit:
		return CredentialSource{
			Gateway: name,
			Config: merchant.GatewayConfig{
				Enabled:       cfg.Xendit.Enabled,
				IsProduction:  cfg.Xendit.IsProduction,
				SecretKey:     cfg.Xendit.SecretKey,
				CallbackToken: cfg.Xendit.CallbackToken,
			},
		}
	default:
		return CredentialSource{
			Gateway: merchant.GatewayMidtrans,
			Config: merchant.GatewayConfig{
				Enabled:      cfg.Midtrans.Enabled,
				IsProduction: cfg.Midtrans.IsProduction,
				ServerKey:    cfg.Midtrans.ServerKey,
				ClientKey:    cfg.Midtrans.ClientKey,
			},
		}
	}
}

// Manager dispatches gateway operations to the adapter registered under the
// credential source's gateway name.
type Manager struct {
	adapters map[string]Adapter
	logger   *slog.Logger
}

func NewManager(logger *slog.Logger) *Manager {
	m := &Manager{
		adapters: make(map[string]Adapter),
		logger:   logger,
	}
	m.register(NewMidtrans(logger))
	m.register(NewXendit(logger))
	return m
}

// NewManagerWithAdapters builds a manager from an explicit adapter set,
// used by tests to swap in adapters pointed at httptest servers.
func NewManagerWithAdapters(logger *slog.Logger, adapters ...Adapter) *Manager {
	m := &Manager{
		adapters: make(map[string]Adapter),
		logger:   logger,
	}
	for _, a := range adapters {
		m.register(a)
	}
	return m
}

func (m *Manager) register(a Adapter) {
	m.adapters[a.Name()] = a
}

func (m *Manager) adapter(name string) (Adapter, error) {
	a, ok := m.adapters[name]
	if !ok {
		m.logger.Error("unsupported gateway requested", "gateway", name)
		return nil, &UnsupportedGatewayError{Gateway: name}
	}
	return a, nil
}

func (m *Manager) CreatePayment(ctx context.Context, src CredentialSource, req *ChargeRequest) (*ChargeResult, error) {
	a, err := m.adapter(src.Gateway)
	if err != nil {
		return nil, err
	}
	return a.CreateCharge(ctx, req, src.Config)
}

func (m *Manager) CreateDepositPayment(ctx context.Context, src CredentialSource, req *DepositChargeRequest) (*ChargeResult, error) {
	a, err := m.adapter(src.Gateway)
	if err != nil {
		return nil, err
	}
	return a.CreateDepositCharge(ctx, req, src.Config)
}

func (m *Manager) ChargeRecurring(ctx context.Context, src CredentialSource, req *RecurringChargeRequest) (*StatusResult, error) {
	a, err := m.adapter(src.Gateway)
	if err != nil {
		return nil, err
	}
	return a.ChargeRecurring(ctx, req, src.Config)
}

func (m *Manager) CheckPaymentStatus(ctx context.Context, src CredentialSource, orderID string) (*StatusResult, error) {
	a, err := m.adapter(src.Gateway)
	if err != nil {
		return nil, err
	}
	return a.CheckStatus(ctx, orderID, src.Config)
}
