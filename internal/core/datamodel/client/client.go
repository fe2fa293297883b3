package client

import "time"

// Client is a paying tenant of the platform, owning one or more stores.
type Client struct {
	ID        int64     `gorm:"primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	Email     *string   `gorm:"column:email"`
	Phone     *string   `gorm:"column:phone"`
	IsActive  bool      `gorm:"column:is_active;default:true"`
	CreatedAt time.Time `gorm:"column:created_at;default:now()"`
	UpdatedAt time.Time `gorm:"column:updated_at;default:now()"`
}

func (Client) TableName() string {
	return "clients"
}

// StoreLicense gates a single store of a client. Suspension disables every
// license of the tenant; reactivation re-enables them.
type StoreLicense struct {
	ID        int64     `gorm:"primaryKey"`
	ClientID  int64     `gorm:"column:client_id;not null;index"`
	StoreName string    `gorm:"column:store_name;not null"`
	IsActive  bool      `gorm:"column:is_active;default:true"`
	CreatedAt time.Time `gorm:"column:created_at;default:now()"`
	UpdatedAt time.Time `gorm:"column:updated_at;default:now()"`
}

func (StoreLicense) TableName() string {
	return "store_licenses"
}
