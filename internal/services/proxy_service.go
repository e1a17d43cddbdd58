// Package services – ProxyService
//
// ProxyService forwards one-shot prompts to the model service without
// touching any session, and reports the model service's health.
package services

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-empatalk-backend/internal/inference"
	"github.com/tbourn/go-empatalk-backend/internal/sysutil"
)

// ProxyModelDefault is reported when the model service omits its id.
const ProxyModelDefault = "local"

// ProxyService is a thin pass-through to inference.Model.
type ProxyService struct {
	Model   inference.Model
	Timeout time.Duration
}

// Chat sends message (with optional caller-supplied history) upstream.
// Upstream failures are returned as *inference.UpstreamError, except an
// undecodable body which yields an empty reply.
func (p *ProxyService) Chat(ctx context.Context, message string, history []inference.Message) (*inference.Reply, error) {
	ctx, span := otel.Tracer("services/ProxyService").Start(ctx, "Chat",
		trace.WithAttributes(attribute.Int("history.len", len(history))),
	)
	defer span.End()

	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyQuestion
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	msgs := make([]inference.Message, 0, len(history))
	for _, m := range history {
		msgs = append(msgs, inference.Message{Role: m.Role, Content: m.Content})
	}

	reply, err := p.Model.Generate(ctx, inference.GenerateRequest{Message: message, History: msgs})
	if err != nil {
		if ue, ok := inference.AsUpstream(err); ok && ue.Kind == inference.KindMalformed {
			return &inference.Reply{Model: ProxyModelDefault}, nil
		}
		span.RecordError(err)
		return nil, err
	}
	return &inference.Reply{Text: reply.Text, Model: sysutil.FirstNonEmpty(reply.Model, ProxyModelDefault)}, nil
}

// Ping returns the model service's health document.
func (p *ProxyService) Ping(ctx context.Context) (map[string]any, error) {
	ctx, span := otel.Tracer("services/ProxyService").Start(ctx, "Ping")
	defer span.End()

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	out, err := p.Model.Health(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return out, nil
}
