// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the aggregate query behind the weak
// ETag of the session list.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-empatalk-backend/internal/domain"
)

// SessionsStats returns how many sessions userID owns and the latest
// UpdatedAt among them (nil when there are none).
func SessionsStats(ctx context.Context, db *gorm.DB, userID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.ChatSession{}).Where("user_id = ?", userID)
	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Avoid MAX() which comes back as TEXT in SQLite.
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
