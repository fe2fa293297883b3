package postgres

import (
	"time"

	"gorm.io/gorm"

	apperrors "github.com/frahmantamala/pos-billing/internal"
	"github.com/frahmantamala/pos-billing/internal/core/datamodel/client"
	"github.com/frahmantamala/pos-billing/internal/subscription"
)

// ClientRepository implements subscription.ClientRepositoryAPI using GORM
type ClientRepository struct {
	db *gorm.DB
}

// NewClientRepository creates a new client repository
func NewClientRepository(db *gorm.DB) subscription.ClientRepositoryAPI {
	return &ClientRepository{db: db}
}

func (r *ClientRepository) GetByID(id int64) (*client.Client, error) {
	var cl client.Client
	err := r.db.Where("id = ?", id).First(&cl).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.ErrClientNotFound
		}
		return nil, err
	}
	return &cl, nil
}

// LicenseRepository implements subscription.LicenseRepositoryAPI using GORM
type LicenseRepository struct {
	db *gorm.DB
}

// NewLicenseRepository creates a new store license repository
func NewLicenseRepository(db *gorm.DB) subscription.LicenseRepositoryAPI {
	return &LicenseRepository{db: db}
}

// SetActiveForClient flips every store license of a client in one statement.
func (r *LicenseRepository) SetActiveForClient(clientID int64, active bool) error {
	return r.db.Model(&client.StoreLicense{}).
		Where("client_id = ?", clientID).
		Updates(map[string]interface{}{
			"is_active":  active,
			"updated_at": time.Now(),
		}).Error
}
