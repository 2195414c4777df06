package models

import (
	"time"

	"gorm.io/gorm"
)

// Adventure lifecycle status values.
const (
	StatusActive    = "active"
	StatusAbandoned = "abandoned"
	StatusComplete  = "complete"
)

// AdventureRecord is the durable row behind one adventure. The full
// AdventureState travels as a JSON blob in StateJSON; the extracted columns
// exist for the conflict surface and for observability queries.
type AdventureRecord struct {
	ID          string `gorm:"primaryKey;size:64" json:"id"`
	UserID      string `gorm:"index;size:64" json:"user_id"`
	Category    string `gorm:"size:128" json:"category"`
	Topic       string `gorm:"size:128" json:"topic"`
	Status      string `gorm:"index;size:32" json:"status"`
	Environment string `gorm:"size:32" json:"environment"`
	StateJSON   string `gorm:"type:longtext" json:"-"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
