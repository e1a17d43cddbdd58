// Package services defines the business logic for accounts, chat sessions,
// feedback, and the stateless model proxy.
//
// This file centralizes the service-level error values so that handlers can
// translate them into HTTP status codes and envelopes consistently.
package services

import (
	"errors"
	"fmt"
)

// Validation errors.
var (
	// ErrMissingFields is returned when a required input is empty.
	ErrMissingFields = errors.New("please add all fields")

	// ErrEmptyQuestion is returned when an appended question is blank.
	ErrEmptyQuestion = errors.New("question is empty")

	// ErrTooLong is returned when a question exceeds the configured rune cap.
	ErrTooLong = errors.New("question too long")

	// ErrInvalidRating is returned when a rating is outside 1..5.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
)

// Account errors.
var (
	// ErrEmailTaken indicates the email belongs to an existing account.
	ErrEmailTaken = errors.New("email already registered")

	// ErrUserNotFound indicates no account matches the given id or identifier.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidCredential indicates a password did not match the stored hash.
	ErrInvalidCredential = errors.New("invalid password")

	// ErrUnauthorized indicates a missing, malformed or expired token, or a
	// token whose user no longer exists.
	ErrUnauthorized = errors.New("not authorized")
)

// Session errors.
var (
	// ErrSessionNotFound indicates that the session does not exist or is not
	// owned by the caller.
	ErrSessionNotFound = errors.New("chat not found")
)

// NameTakenError reports a username clash. Suggestion holds a free
// alternative when one was found, otherwise it is empty.
type NameTakenError struct {
	Name       string
	Suggestion string
}

func (e *NameTakenError) Error() string {
	if e.Suggestion == "" {
		return fmt.Sprintf("username %q already taken", e.Name)
	}
	return fmt.Sprintf("username already taken. Try '%s' or another name.", e.Suggestion)
}
