package models

import "time"

// ViewEvent is one retrieval of the tracking pixel.
type ViewEvent struct {
	ID        uint64     `json:"id" db:"id" gorm:"primaryKey"`
	Email     string     `json:"email" db:"email" gorm:"index;not null"`
	ViewedAt  time.Time  `json:"viewed_at" db:"viewed_at" gorm:"index;not null"`
	SendTime  *time.Time `json:"send_time,omitempty" db:"send_time"`
	ClientIP  string     `json:"client_ip" db:"client_ip" gorm:"size:64"`
	UserAgent string     `json:"user_agent" db:"user_agent" gorm:"type:text"`
}

func (ViewEvent) TableName() string {
	return "email_logs"
}

// SendEvent records when an email was dispatched to an address.
type SendEvent struct {
	ID        uint64    `json:"id" db:"id" gorm:"primaryKey"`
	Email     string    `json:"email" db:"email" gorm:"index;not null"`
	SendTime  time.Time `json:"send_time" db:"send_time" gorm:"not null"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

func (SendEvent) TableName() string {
	return "send_logs"
}
