package domain

import "time"

// Idempotency records a completed turn append keyed by (user_id, session_id,
// key). A retry carrying the same Idempotency-Key is answered from the stored
// session instead of calling the model a second time.
type Idempotency struct {
	ID        string    `gorm:"type:text;not null;primaryKey"`
	UserID    string    `gorm:"type:text;not null;uniqueIndex:ux_user_session_key,priority:1"`
	SessionID string    `gorm:"type:text;not null;uniqueIndex:ux_user_session_key,priority:2"`
	Key       string    `gorm:"type:text;not null;uniqueIndex:ux_user_session_key,priority:3"`
	TurnID    string    `gorm:"type:text;not null"`
	Status    int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
