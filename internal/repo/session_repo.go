// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for chat sessions
// and their turns.
//
// All functions are context-aware and accept a *gorm.DB handle, so they can
// run inside a caller's transaction. They hold no business rules: welcome
// turns, identity interception and inference live in the services package.
//
// Error semantics:
//   - A missing session (or one owned by another user) yields ErrNotFound.
//   - Other DB errors are propagated unchanged.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-empatalk-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound so callers can use either sentinel.
var ErrNotFound = gorm.ErrRecordNotFound

// orderTurns preloads turns in session order.
func orderTurns(tx *gorm.DB) *gorm.DB {
	return tx.Order("position ASC, at ASC, id ASC")
}

// CreateSession inserts a new session owned by userID together with its
// initial turns. Turn IDs and positions are assigned here (0..n-1) and zero
// timestamps are set to now, so the caller only supplies content.
func CreateSession(ctx context.Context, db *gorm.DB, userID string, turns []domain.Turn) (*domain.ChatSession, error) {
	now := time.Now().UTC()
	s := &domain.ChatSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.Turns = make([]domain.Turn, len(turns))
	for i, t := range turns {
		t.ID = uuid.NewString()
		t.SessionID = s.ID
		t.Position = i
		if t.At.IsZero() {
			t.At = now
		}
		s.Turns[i] = t
	}

	// Session and turns are written in one transaction.
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// GetSession loads a session and its ordered turns, scoped to the owner.
func GetSession(ctx context.Context, db *gorm.DB, id, userID string) (*domain.ChatSession, error) {
	var s domain.ChatSession
	err := db.WithContext(ctx).
		Preload("Turns", orderTurns).
		Where("id = ? AND user_id = ?", id, userID).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSessions returns every session owned by userID with its turns, in
// insertion order. It returns an empty slice when the user has none.
func ListSessions(ctx context.Context, db *gorm.DB, userID string) ([]domain.ChatSession, error) {
	out := []domain.ChatSession{}
	err := db.WithContext(ctx).
		Preload("Turns", orderTurns).
		Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// DeleteSession permanently removes a session and its turns. It returns
// ErrNotFound, and writes nothing, when the session does not resolve for
// userID.
func DeleteSession(ctx context.Context, db *gorm.DB, id, userID string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&domain.ChatSession{}).
			Where("id = ? AND user_id = ?", id, userID).
			Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		if err := tx.Where("session_id = ?", id).Delete(&domain.Turn{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ? AND user_id = ?", id, userID).Delete(&domain.ChatSession{}).Error
	})
}

// AppendTurn adds t at the end of the session's turn sequence. The position
// is derived from the current turn count inside the transaction, so each
// append is an independent insert; concurrent appends may share a position
// and are then ordered by timestamp.
func AppendTurn(ctx context.Context, db *gorm.DB, sessionID string, t *domain.Turn) error {
	now := time.Now().UTC()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&domain.Turn{}).Where("session_id = ?", sessionID).Count(&n).Error; err != nil {
			return err
		}
		t.ID = uuid.NewString()
		t.SessionID = sessionID
		t.Position = int(n)
		if t.At.IsZero() {
			t.At = now
		}
		if err := tx.Create(t).Error; err != nil {
			return err
		}
		res := tx.Model(&domain.ChatSession{}).Where("id = ?", sessionID).Update("updated_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
