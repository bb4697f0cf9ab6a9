package models

import "time"

// User is a screening participant. The averages are filled in when a
// screening run completes.
type User struct {
	ID            uint `gorm:"primaryKey"`
	Name          string
	Surname       string
	AgeGroup      string
	Gender        string
	LeftAvg       *float64
	RightAvg      *float64
	Dissimilarity *float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasResults reports whether a completed screening has been recorded.
func (u *User) HasResults() bool {
	return u.LeftAvg != nil && u.RightAvg != nil && u.Dissimilarity != nil
}
