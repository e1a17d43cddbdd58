// Package inference talks to the external language-model service.
//
// The service exposes two endpoints:
//
//	POST /generate {message, history:[{role,content}]} -> {text, model?}
//	GET  /health                                        -> JSON object
//
// Failures are reported as *UpstreamError so callers can decide on a
// fallback without inspecting transport details.
package inference

import (
	"context"
	"errors"
	"fmt"
)

// Conversation roles used in history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of the conversation history sent upstream.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateRequest is the body of POST /generate.
type GenerateRequest struct {
	Message string    `json:"message"`
	History []Message `json:"history"`
}

// Reply is a decoded /generate response. Text may be empty.
type Reply struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
}

// Model is the contract the chat services depend on.
type Model interface {
	Generate(ctx context.Context, req GenerateRequest) (*Reply, error)
	Health(ctx context.Context) (map[string]any, error)
}

// Kind classifies an upstream failure.
type Kind string

const (
	KindTimeout   Kind = "timeout"
	KindTransport Kind = "transport"
	KindStatus    Kind = "status"
	KindMalformed Kind = "malformed"
)

// UpstreamError describes why a call to the model service failed.
type UpstreamError struct {
	Kind       Kind
	StatusCode int    // set for KindStatus
	Body       string // response body for KindStatus, truncated
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Kind == KindStatus:
		return fmt.Sprintf("model service: status %d", e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("model service: %s: %v", e.Kind, e.Err)
	default:
		return "model service: " + string(e.Kind)
	}
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// AsUpstream extracts an *UpstreamError from err.
func AsUpstream(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}
