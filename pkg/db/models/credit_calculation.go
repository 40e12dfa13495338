package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/corvuslabs/credit-oracle-backend/pkg/enums"
)

// CreditCalculation records one formula-derived credit-earning entry
// (quest, streak, referral). Its credits also accumulate into the user's
// lifetime calculated_credits total.
type CreditCalculation struct {
	ID          uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	UserAddress string                 `gorm:"column:user_address;size:42;not null;index"`
	Reason      string                 `gorm:"column:reason;not null"`
	Parameter   float64                `gorm:"column:parameter;not null"`
	Credits     int64                  `gorm:"column:credits;not null"`
	Metadata    json.RawMessage        `gorm:"column:metadata;type:jsonb"`
	Status      enums.SettlementStatus `gorm:"column:status;not null;default:pending;index"`
	TxHash      *string                `gorm:"column:tx_hash"`
	SettledAt   *time.Time             `gorm:"column:settled_at"`
	CreatedAt   time.Time              `gorm:"column:created_at;autoCreateTime"`

	User *User `gorm:"foreignKey:UserAddress;references:Address"`
}

func (CreditCalculation) TableName() string { return "credit_calculations" }
