package models

import (
	"time"
)

// Session represents a live or historical subscriber session as reported by
// the NAS through accounting. A row with a null stop time is active.
type Session struct {
	ID        uint   `gorm:"column:id;primaryKey" json:"id"`
	SessionID string `gorm:"column:session_id;size:64;not null;uniqueIndex" json:"session_id"`
	UniqueID  string `gorm:"column:unique_id;size:36;uniqueIndex" json:"unique_id"`
	TenantID  uint   `gorm:"column:tenant_id;not null;index" json:"tenant_id"`

	// SubscriberID may be null: hotspot voucher sessions can precede linkage
	SubscriberID *uint  `gorm:"column:subscriber_id;index" json:"subscriber_id"`
	NasID        uint   `gorm:"column:nas_id;not null;index" json:"nas_id"`
	Username     string `gorm:"column:username;size:100;not null;index" json:"username"`

	FramedIPAddress  string `gorm:"column:framed_ip_address;size:50" json:"framed_ip_address"`
	CallingStationID string `gorm:"column:calling_station_id;size:50" json:"calling_station_id"` // MAC Address

	StartTime   time.Time  `gorm:"column:start_time;index" json:"start_time"`
	StopTime    *time.Time `gorm:"column:stop_time;index" json:"stop_time"`
	SessionTime int64      `gorm:"column:session_time;default:0" json:"session_time"` // seconds

	// Reconstructed 64-bit counters: low 32 bits + gigawords * 2^32
	InputOctets  int64 `gorm:"column:input_octets;default:0" json:"input_octets"`
	OutputOctets int64 `gorm:"column:output_octets;default:0" json:"output_octets"`

	TerminateCause string `gorm:"column:terminate_cause;size:32" json:"terminate_cause"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Session) TableName() string {
	return "sessions"
}

// IsActive reports whether the session has not yet been closed
func (s *Session) IsActive() bool {
	return s.StopTime == nil
}
