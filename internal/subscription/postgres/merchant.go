package postgres

import (
	"gorm.io/gorm"

	apperrors "github.com/frahmantamala/pos-billing/internal"
	"github.com/frahmantamala/pos-billing/internal/core/datamodel/merchant"
	"github.com/frahmantamala/pos-billing/internal/subscription"
)

// MerchantRepository implements subscription.MerchantRepositoryAPI using GORM
type MerchantRepository struct {
	db *gorm.DB
}

// NewMerchantRepository creates a new payment merchant repository
func NewMerchantRepository(db *gorm.DB) subscription.MerchantRepositoryAPI {
	return &MerchantRepository{db: db}
}

func (r *MerchantRepository) GetDefaultForClient(clientID int64) (*merchant.PaymentMerchant, error) {
	var m merchant.PaymentMerchant
	err := r.db.Where("client_id = ? AND is_default = ? AND is_enabled = ?", clientID, true, true).
		First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.ErrMerchantNotFound
		}
		return nil, err
	}
	return &m, nil
}
