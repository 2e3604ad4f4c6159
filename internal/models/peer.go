package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PeerConfig is a known DIMSE peer: either a destination this gateway's
// SCU can send to, or an entry describing which calling AE titles/
// credentials the SCP accepts. Adapted from the teacher's PACSConfig,
// repointed at DIMSE association parameters instead of PACS query
// endpoints.
type PeerConfig struct {
	ID                     uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Name                   string    `gorm:"type:varchar(200);not null;uniqueIndex" json:"name"`
	AETitle                string    `gorm:"type:varchar(16);not null;index" json:"ae_title"`
	Host                   string    `gorm:"type:varchar(255);not null" json:"host"`
	Port                   int       `gorm:"not null" json:"port"`
	MaxPDULength           uint32    `gorm:"default:16384" json:"max_pdu_length"`
	PreferredTransferSyntaxes StringSlice `gorm:"type:text" json:"preferred_transfer_syntaxes"`
	IdentityUsername       string    `gorm:"type:varchar(100)" json:"identity_username,omitempty"`
	IdentityPasswordHash   string    `gorm:"type:varchar(255)" json:"-"`
	IsActive               bool      `gorm:"default:true" json:"is_active"`
	LastAssociationAt      *time.Time `json:"last_association_at,omitempty"`
	LastAssociationStatus  string    `gorm:"type:varchar(20)" json:"last_association_status,omitempty"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
	DeletedAt              gorm.DeletedAt `gorm:"index" json:"-"`
}

func (PeerConfig) TableName() string { return "peer_configs" }

func (p *PeerConfig) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// StringSlice is a comma-joined string list stored as a single TEXT column.
type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	return strings.Join(s, ","), nil
}

func (s *StringSlice) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	str, ok := value.(string)
	if !ok {
		if b, ok := value.([]byte); ok {
			str = string(b)
		} else {
			return fmt.Errorf("unsupported type for StringSlice: %T", value)
		}
	}
	if str == "" {
		*s = nil
		return nil
	}
	*s = strings.Split(str, ",")
	return nil
}

// PeerConfigRequest is the create/update payload for the ops HTTP API.
type PeerConfigRequest struct {
	Name                      string   `json:"name"`
	AETitle                   string   `json:"ae_title"`
	Host                      string   `json:"host"`
	Port                      int      `json:"port"`
	MaxPDULength              uint32   `json:"max_pdu_length"`
	PreferredTransferSyntaxes []string `json:"preferred_transfer_syntaxes"`
}
