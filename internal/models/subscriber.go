package models

import (
	"time"

	"gorm.io/gorm"
)

// SubscriberStatus represents the status of a subscriber
type SubscriberStatus string

const (
	SubscriberStatusActive    SubscriberStatus = "ACTIVE"
	SubscriberStatusSuspended SubscriberStatus = "SUSPENDED"
	SubscriberStatusDisabled  SubscriberStatus = "DISABLED"
	SubscriberStatusExpired   SubscriberStatus = "EXPIRED"
)

// ConnectionType represents how the subscriber attaches to the network
type ConnectionType string

const (
	ConnectionTypePPPoE   ConnectionType = "PPPOE"
	ConnectionTypeHotspot ConnectionType = "HOTSPOT"
	ConnectionTypeDHCP    ConnectionType = "DHCP"
	ConnectionTypeStatic  ConnectionType = "STATIC"
)

// Subscriber represents a PPPoE/Hotspot subscriber
type Subscriber struct {
	ID       uint   `gorm:"column:id;primaryKey" json:"id"`
	TenantID uint   `gorm:"column:tenant_id;not null;uniqueIndex:idx_subscribers_tenant_username;index" json:"tenant_id"`
	Username string `gorm:"column:username;size:100;not null;uniqueIndex:idx_subscribers_tenant_username" json:"username"`

	// RADIUS requires a recoverable credential (PAP obscuring, CHAP hashing)
	Password string `gorm:"column:password;size:255;not null" json:"-"`

	FullName string `gorm:"column:full_name;size:255" json:"full_name"`
	Email    string `gorm:"column:email;size:255" json:"email"`
	Phone    string `gorm:"column:phone;size:50" json:"phone"`

	// Service
	ConnectionType ConnectionType   `gorm:"column:connection_type;size:20;default:PPPOE" json:"connection_type"`
	Status         SubscriberStatus `gorm:"column:status;size:20;default:ACTIVE;index" json:"status"`
	ExpiryDate     time.Time        `gorm:"column:expiry_date" json:"expiry_date"`
	PackageID      *uint            `gorm:"column:package_id" json:"package_id"`
	Package        *Package         `gorm:"foreignKey:PackageID;references:ID" json:"package,omitempty"`
	NasID          *uint            `gorm:"column:nas_id" json:"nas_id"`

	// Network
	LockedMAC     string     `gorm:"column:locked_mac;size:50" json:"locked_mac"` // hotspot voucher binding
	LastIPAddress string     `gorm:"column:last_ip_address;size:50" json:"last_ip_address"`
	LastMAC       string     `gorm:"column:last_mac;size:50;index" json:"last_mac"`
	LastSeen      *time.Time `gorm:"column:last_seen" json:"last_seen"`

	// Timestamps
	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (Subscriber) TableName() string {
	return "subscribers"
}

// IsExpired returns true if the subscription has lapsed, regardless of the
// stored status value
func (s *Subscriber) IsExpired() bool {
	return !s.ExpiryDate.IsZero() && time.Now().After(s.ExpiryDate)
}
