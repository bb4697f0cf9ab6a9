package models

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// ScreeningState is the persisted screening session of one user. Version is
// bumped on every save and used for compare-and-swap updates.
type ScreeningState struct {
	ID         uint            `gorm:"primaryKey"`
	UserID     uint            `gorm:"uniqueIndex;not null"`
	User       User            `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	RunID      string          `gorm:"type:uuid;not null"`
	Version    int             `gorm:"not null"`
	IsComplete bool            `gorm:"index"`
	State      json.RawMessage `gorm:"type:jsonb;not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time `gorm:"index"`
}

// AudiogramResult is the summary of one finished screening run. Threshold
// arrays are parallel to Frequencies.
type AudiogramResult struct {
	ID               uint            `gorm:"primaryKey"`
	UserID           uint            `gorm:"index;not null"`
	User             User            `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	RunID            string          `gorm:"type:uuid;uniqueIndex;not null"`
	Frequencies      pq.Int64Array   `gorm:"type:integer[]"`
	LeftThresholds   pq.Float64Array `gorm:"type:double precision[]"`
	RightThresholds  pq.Float64Array `gorm:"type:double precision[]"`
	LeftAvg          float64
	RightAvg         float64
	Dissimilarity    float64
	MaxDiff          float64
	MaxDiffFrequency int
	Abandoned        bool
	CreatedAt        time.Time
}
