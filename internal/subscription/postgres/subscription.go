package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "github.com/frahmantamala/pos-billing/internal"
	datamodel "github.com/frahmantamala/pos-billing/internal/core/datamodel/subscription"
	"github.com/frahmantamala/pos-billing/internal/subscription"
)

// SubscriptionRepository implements subscription.RepositoryAPI using GORM
type SubscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db *gorm.DB) subscription.RepositoryAPI {
	return &SubscriptionRepository{db: db}
}

// Transact runs fn inside one transaction. The repositories handed to fn
// are bound to that transaction, so row locks taken through them hold
// until fn returns.
func (r *SubscriptionRepository) Transact(ctx context.Context, fn func(subs subscription.RepositoryAPI, payments subscription.PaymentRepositoryAPI) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&SubscriptionRepository{db: tx}, &PaymentRepository{db: tx})
	})
}

func (r *SubscriptionRepository) GetByID(id int64) (*datamodel.ClientSubscription, error) {
	var sub datamodel.ClientSubscription
	err := r.db.Where("id = ?", id).First(&sub).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

// GetByIDForUpdate loads the subscription under SELECT ... FOR UPDATE. Only
// meaningful inside Transact; outside a transaction the lock is released
// immediately.
func (r *SubscriptionRepository) GetByIDForUpdate(id int64) (*datamodel.ClientSubscription, error) {
	var sub datamodel.ClientSubscription
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&sub).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (r *SubscriptionRepository) GetByClientID(clientID int64) (*datamodel.ClientSubscription, error) {
	var sub datamodel.ClientSubscription
	err := r.db.Where("client_id = ?", clientID).
		Order("created_at DESC").
		First(&sub).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

// FindDueIDs selects subscriptions eligible for a renewal attempt. IDs
// only: each one is re-loaded under a row lock before it is charged.
func (r *SubscriptionRepository) FindDueIDs(now time.Time) ([]int64, error) {
	var ids []int64
	err := r.db.Model(&datamodel.ClientSubscription{}).
		Where("status IN ?", []string{datamodel.StatusActive, datamodel.StatusPastDue}).
		Where("next_billing_date IS NOT NULL AND next_billing_date <= ?", now).
		Order("next_billing_date ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// FindByBillingDateOn selects subscriptions whose billing date (or trial
// end, in trial mode) falls on the given calendar day.
func (r *SubscriptionRepository) FindByBillingDateOn(day time.Time, trialMode bool) ([]*datamodel.ClientSubscription, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	var subs []*datamodel.ClientSubscription
	q := r.db.Model(&datamodel.ClientSubscription{})
	if trialMode {
		q = q.Where("status = ?", datamodel.StatusTrialing).
			Where("trial_ends_at >= ? AND trial_ends_at < ?", start, end)
	} else {
		q = q.Where("status IN ?", []string{datamodel.StatusActive, datamodel.StatusPastDue}).
			Where("next_billing_date >= ? AND next_billing_date < ?", start, end)
	}
	err := q.Order("id ASC").Find(&subs).Error
	return subs, err
}

func (r *SubscriptionRepository) FindExpiredTrialIDs(now time.Time) ([]int64, error) {
	var ids []int64
	err := r.db.Model(&datamodel.ClientSubscription{}).
		Where("status = ?", datamodel.StatusTrialing).
		Where("trial_ends_at IS NOT NULL AND trial_ends_at < ?", now).
		Pluck("id", &ids).Error
	return ids, err
}

// Update persists the full row
func (r *SubscriptionRepository) Update(sub *datamodel.ClientSubscription) error {
	sub.UpdatedAt = time.Now()
	return r.db.Save(sub).Error
}
