package models

import (
	"time"

	"gorm.io/gorm"
)

// NasStatus represents the reachability state of a NAS device
type NasStatus string

const (
	NasStatusOnline  NasStatus = "ONLINE"
	NasStatusOffline NasStatus = "OFFLINE"
	NasStatusPending NasStatus = "PENDING"
)

// Nas represents a NAS/Router device (typically a MikroTik PPPoE/Hotspot gateway)
type Nas struct {
	ID       uint   `gorm:"column:id;primaryKey" json:"id"`
	TenantID uint   `gorm:"column:tenant_id;not null;index" json:"tenant_id"`
	Name     string `gorm:"column:name;size:100;not null" json:"name"`

	// Packet routing identity: a datagram belongs to this NAS when its source
	// address equals either the primary or the VPN address.
	IPAddress    string `gorm:"column:ip_address;size:50;not null;uniqueIndex:idx_nas_tenant_ip" json:"ip_address"`
	VPNIPAddress string `gorm:"column:vpn_ip_address;size:50" json:"vpn_ip_address"`

	// RADIUS
	Secret  string `gorm:"column:secret;size:100;not null" json:"-"` // Hidden from API responses for security
	CoAPort int    `gorm:"column:coa_port;default:3799" json:"coa_port"`

	// Status
	Status   NasStatus  `gorm:"column:status;size:20;default:PENDING" json:"status"`
	LastSeen *time.Time `gorm:"column:last_seen" json:"last_seen"`

	// Timestamps
	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (Nas) TableName() string {
	return "nas_devices"
}

// SecretBytes returns the RADIUS shared secret
func (n *Nas) SecretBytes() []byte {
	return []byte(n.Secret)
}

// MatchesAddress reports whether host is one of the NAS's known source addresses
func (n *Nas) MatchesAddress(host string) bool {
	return host == n.IPAddress || (n.VPNIPAddress != "" && host == n.VPNIPAddress)
}

// CoAAddr returns the destination the CoA client should dial
func (n *Nas) CoAAddr() (string, int) {
	port := n.CoAPort
	if port <= 0 || port > 65535 {
		port = 3799
	}
	return n.IPAddress, port
}
