package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/corvuslabs/credit-oracle-backend/pkg/enums"
)

// Engagement records one flat-rate credit-earning action. Settled rows are
// immutable except for the settlement stamp.
type Engagement struct {
	ID          uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	UserAddress string                 `gorm:"column:user_address;size:42;not null;index"`
	Action      string                 `gorm:"column:action;not null"`
	Credits     int64                  `gorm:"column:credits;not null"`
	Metadata    json.RawMessage        `gorm:"column:metadata;type:jsonb"`
	Status      enums.SettlementStatus `gorm:"column:status;not null;default:pending;index"`
	TxHash      *string                `gorm:"column:tx_hash"`
	SettledAt   *time.Time             `gorm:"column:settled_at"`
	CreatedAt   time.Time              `gorm:"column:created_at;autoCreateTime"`

	User *User `gorm:"foreignKey:UserAddress;references:Address"`
}

func (Engagement) TableName() string { return "engagements" }
