// Package domain defines the persistence models for users, chat sessions,
// turns, and feedback. These types are mapped with GORM and form the core data
// layer of the EmpaTalk backend.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// SystemQuestion marks the synthetic welcome turn that opens every session
// created without initial turns.
const SystemQuestion = "__system__"

// Metadata keys recorded on Turn.Meta.
const (
	MetaSystem            = "system"
	MetaIdentityIntercept = "identityIntercept"
	MetaRule              = "rule"
	MetaModel             = "model"
	MetaDegraded          = "degraded"
	MetaIntent            = "intent"
	MetaEmotion           = "emotion"
)

// User is an account able to own chat sessions. Name and Email are each
// globally unique; the password hash never leaves the server.
type User struct {
	ID           string    `json:"id"         gorm:"type:char(36);primaryKey"`
	Name         string    `json:"name"       gorm:"type:varchar(64);not null;uniqueIndex:ux_users_name"`
	Email        string    `json:"email"      gorm:"type:varchar(255);not null;uniqueIndex:ux_users_email"`
	PasswordHash string    `json:"-"          gorm:"type:varchar(100);not null"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// ChatSession is an ordered collection of turns owned by exactly one user.
//
// Sessions are hard-deleted: there is no soft-delete marker, and removing a
// session cascades to its turns.
type ChatSession struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:varchar(64);not null;index:idx_user_sessions"`
	Turns     []Turn    `json:"turns"      gorm:"foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for ChatSession.
func (ChatSession) TableName() string { return "chat_sessions" }

// Turn is one question/answer exchange inside a session.
//
// Question is SystemQuestion only for the welcome turn. Answer is always set.
// Position is the 0-based index of the turn within its session; At is the
// immutable creation time.
type Turn struct {
	ID        string            `json:"id"       gorm:"type:char(36);primaryKey"`
	SessionID string            `json:"-"        gorm:"type:char(36);not null;index:idx_session_turns,priority:1"`
	Position  int               `json:"position" gorm:"not null;index:idx_session_turns,priority:2"`
	Question  string            `json:"question" gorm:"type:text"`
	Answer    string            `json:"answer"   gorm:"type:text;not null"`
	Meta      datatypes.JSONMap `json:"meta,omitempty"`
	At        time.Time         `json:"at"       gorm:"not null"`
}

// TableName returns the database table name for Turn.
func (Turn) TableName() string { return "turns" }

// IsSystem reports whether t is the synthetic welcome turn.
func (t Turn) IsSystem() bool { return t.Question == SystemQuestion }

// Complete reports whether both sides of the exchange are present.
func (t Turn) Complete() bool { return t.Question != "" && t.Answer != "" }

// Feedback is an append-only rating of a turn. TurnIndex is not checked
// against the referenced session.
type Feedback struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:varchar(64);not null;index"`
	SessionID string    `json:"session_id" gorm:"type:char(36);not null;index"`
	TurnIndex int       `json:"turn_index" gorm:"not null;default:0"`
	Rating    int       `json:"rating"     gorm:"not null;check:rating BETWEEN 1 AND 5"`
	Comment   string    `json:"comment"    gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for Feedback.
func (Feedback) TableName() string { return "feedback" }
