package merchant

import "time"

// Gateway names. The adapter set is closed; these are the only two values
// that ever appear in PaymentMerchant.Gateway.
const (
	GatewayMidtrans = "midtrans"
	GatewayXendit   = "xendit"
)

// PaymentMerchant is a named credential set for a gateway, scoped to a
// client. At most one merchant per client is the default (enforced by a
// partial unique index in the migration).
type PaymentMerchant struct {
	ID            int64     `gorm:"primaryKey"`
	ClientID      int64     `gorm:"column:client_id;not null;index"`
	Name          string    `gorm:"column:name;not null"`
	Gateway       string    `gorm:"column:gateway;not null"`
	IsDefault     bool      `gorm:"column:is_default;default:false"`
	IsEnabled     bool      `gorm:"column:is_enabled;default:true"`
	IsProduction  bool      `gorm:"column:is_production;default:false"`
	ServerKey     *string   `gorm:"column:server_key"`
	ClientKey     *string   `gorm:"column:client_key"`
	SecretKey     *string   `gorm:"column:secret_key"`
	CallbackToken *string   `gorm:"column:callback_token"`
	CreatedAt     time.Time `gorm:"column:created_at;default:now()"`
	UpdatedAt     time.Time `gorm:"column:updated_at;default:now()"`
}

func (PaymentMerchant) TableName() string {
	return "payment_merchants"
}

// GatewayConfig is the credential shape adapters consume. It is built once
// at the call boundary, either from a PaymentMerchant row or from the
// legacy global gateway settings in config.
type GatewayConfig struct {
	Enabled       bool
	IsProduction  bool
	ServerKey     string
	ClientKey     string
	SecretKey     string
	CallbackToken string
}

// Config flattens the merchant row into the adapter credential shape.
func (m *PaymentMerchant) Config() GatewayConfig {
	cfg := GatewayConfig{
		Enabled:      m.IsEnabled,
		IsProduction: m.IsProduction,
	}
	if m.ServerKey != nil {
		cfg.ServerKey = *m.ServerKey
	}
	if m.ClientKey != nil {
		cfg.ClientKey = *m.ClientKey
	}
	if m.SecretKey != nil {
		cfg.SecretKey = *m.SecretKey
	}
	if m.CallbackToken != nil {
		cfg.CallbackToken = *m.CallbackToken
	}
	return cfg
}
