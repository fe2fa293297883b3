package postgres

import (
	"gorm.io/gorm"

	apperrors "github.com/frahmantamala/pos-billing/internal"
	datamodel "github.com/frahmantamala/pos-billing/internal/core/datamodel/subscription"
	"github.com/frahmantamala/pos-billing/internal/subscription"
)

// PlanRepository implements subscription.PlanRepositoryAPI using GORM
type PlanRepository struct {
	db *gorm.DB
}

// NewPlanRepository creates a new plan repository
func NewPlanRepository(db *gorm.DB) subscription.PlanRepositoryAPI {
	return &PlanRepository{db: db}
}

func (r *PlanRepository) GetByID(id int64) (*datamodel.Plan, error) {
	var plan datamodel.Plan
	err := r.db.Where("id = ?", id).First(&plan).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.ErrPlanNotFound
		}
		return nil, err
	}
	return &plan, nil
}

func (r *PlanRepository) GetByCode(code string) (*datamodel.Plan, error) {
	var plan datamodel.Plan
	err := r.db.Where("code = ?", code).First(&plan).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.ErrPlanNotFound
		}
		return nil, err
	}
	return &plan, nil
}
