package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditLog is one row per completed DIMSE C-STORE exchange, independent of
// the in-memory event bus.
type AuditLog struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Action         string    `gorm:"type:varchar(100);not null;index" json:"action"`
	StudyUID       string    `gorm:"type:varchar(255);index" json:"study_uid"`
	SOPInstanceUID string    `gorm:"type:varchar(255);index" json:"sop_instance_uid"`
	Status         string    `gorm:"type:varchar(20);index" json:"status"` // success, failure
	DimseStatus    uint16    `json:"dimse_status"`
	ErrorMessage   string    `gorm:"type:text" json:"error_message,omitempty"`
	Duration       int64     `json:"duration_ms"`
	CreatedAt      time.Time `gorm:"index" json:"timestamp"`
}

// TableName overrides the table name
func (AuditLog) TableName() string {
	return "audit_logs"
}

// BeforeCreate hook
func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// CacheMetrics tracks front-cache performance for stored instance lookups.
type CacheMetrics struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	CacheKey  string    `gorm:"type:varchar(500);not null" json:"cache_key"`
	CacheHit  bool      `gorm:"not null;index" json:"cache_hit"`
	CacheTier string    `gorm:"type:varchar(20)" json:"cache_tier"` // redis, filesystem, objectstore
	Size      int64     `json:"size_bytes"`
	Duration  int64     `json:"duration_ms"`
	CreatedAt time.Time `gorm:"index" json:"timestamp"`
}

// TableName overrides the table name
func (CacheMetrics) TableName() string {
	return "cache_metrics"
}

// BeforeCreate hook
func (c *CacheMetrics) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
