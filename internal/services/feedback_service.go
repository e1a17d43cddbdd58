// Package services – FeedbackService
//
// FeedbackService records user ratings of chat turns. Records are
// append-only: submitting again for the same turn adds another record.
// The session and turn index are stored as given and not checked against
// existing sessions.
package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-empatalk-backend/internal/domain"
	"github.com/tbourn/go-empatalk-backend/internal/repo"
)

// Rating bounds.
const (
	MinRating = 1
	MaxRating = 5
)

// FeedbackInput is a feedback submission. Nil pointers mark absent fields.
type FeedbackInput struct {
	SessionID string
	TurnIndex *int
	Rating    *int
	Comment   *string
}

// FeedbackService implements the feedback use-case.
type FeedbackService struct {
	// DB is the database handle used for all feedback operations.
	DB *gorm.DB
}

// Submit validates in and stores a new feedback record for userID.
//
// A blank SessionID or absent Rating yields ErrMissingFields; a rating
// outside MinRating..MaxRating yields ErrInvalidRating. TurnIndex defaults
// to 0 and Comment to "".
func (s *FeedbackService) Submit(ctx context.Context, userID string, in FeedbackInput) (*domain.Feedback, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" || in.Rating == nil {
		return nil, ErrMissingFields
	}
	if *in.Rating < MinRating || *in.Rating > MaxRating {
		return nil, ErrInvalidRating
	}

	fb := &domain.Feedback{
		UserID:    userID,
		SessionID: sessionID,
		Rating:    *in.Rating,
	}
	if in.TurnIndex != nil {
		fb.TurnIndex = *in.TurnIndex
	}
	if in.Comment != nil {
		fb.Comment = *in.Comment
	}
	if err := repo.CreateFeedback(ctx, s.DB, fb); err != nil {
		return nil, err
	}
	return fb, nil
}

// isNotFound treats repo-level not found sentinels as "not found".
func isNotFound(err error) bool {
	return errors.Is(err, repo.ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}
