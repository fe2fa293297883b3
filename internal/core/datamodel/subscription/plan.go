package subscription

import "time"

type Plan struct {
	ID        int64     `gorm:"primaryKey"`
	Code      string    `gorm:"column:code;not null;uniqueIndex"`
	Name      string    `gorm:"column:name;not null"`
	PriceIDR  int64     `gorm:"column:price_idr;not null"`
	Interval  string    `gorm:"column:interval;default:monthly"`
	TrialDays int       `gorm:"column:trial_days;default:14"`
	IsActive  bool      `gorm:"column:is_active;default:true"`
	CreatedAt time.Time `gorm:"column:created_at;default:now()"`
	UpdatedAt time.Time `gorm:"column:updated_at;default:now()"`
}

func (Plan) TableName() string {
	return "plans"
}

// AdvancePeriod returns the period end one billing interval after from.
// Anchoring on the previous period end instead of time.Now keeps billing
// dates from drifting when a sweep runs late.
func (p *Plan) AdvancePeriod(from time.Time) time.Time {
	if p.Interval == IntervalYearly {
		return from.AddDate(1, 0, 0)
	}
	return from.AddDate(0, 1, 0)
}
