// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Feedback
// model. Feedback is append-only: there is no update or delete path.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-empatalk-backend/internal/domain"
)

// CreateFeedback inserts fb as a new row. ID and CreatedAt are assigned
// here; the referenced session and turn index are stored as given.
func CreateFeedback(ctx context.Context, db *gorm.DB, fb *domain.Feedback) error {
	fb.ID = uuid.NewString()
	fb.CreatedAt = time.Now().UTC()
	return db.WithContext(ctx).Create(fb).Error
}

// ListFeedback returns the feedback recorded for a session, oldest first.
func ListFeedback(ctx context.Context, db *gorm.DB, sessionID string) ([]domain.Feedback, error) {
	var out []domain.Feedback
	err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}
