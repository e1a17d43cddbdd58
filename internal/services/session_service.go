// Package services – SessionService
//
// SessionService owns the lifecycle of chat sessions and the turn-append
// protocol: questions about the assistant itself are answered locally from
// an ordered rule set, everything else goes to the model service with the
// prior conversation as history. Model failures never surface as errors;
// they become an apology turn flagged as degraded.
//
// Observability: public methods are OpenTelemetry-instrumented; spans carry
// session/user identifiers and the answer source.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-empatalk-backend/internal/domain"
	"github.com/tbourn/go-empatalk-backend/internal/inference"
	"github.com/tbourn/go-empatalk-backend/internal/rules"
	"github.com/tbourn/go-empatalk-backend/internal/sysutil"
)

// Fixed answers used when the model cannot provide one.
const (
	AnswerNoResponse  = "Sorry, I could not generate a response."
	AnswerUnavailable = "Sorry, the model service is unavailable."
)

// Answer sources, recorded as metric labels and span attributes.
const (
	SourceWelcome  = "welcome"
	SourceIdentity = "identity"
	SourceModel    = "model"
	SourceEmpty    = "empty"
	SourceDegraded = "degraded"
)

// ErrInvalidTurn is returned when a supplied initial turn has no answer.
var ErrInvalidTurn = errors.New("every turn needs an answer")

// SessionRepo defines the repository contract required by SessionService.
type SessionRepo interface {
	CreateSession(ctx context.Context, db *gorm.DB, userID string, turns []domain.Turn) (*domain.ChatSession, error)
	GetSession(ctx context.Context, db *gorm.DB, id, userID string) (*domain.ChatSession, error)
	ListSessions(ctx context.Context, db *gorm.DB, userID string) ([]domain.ChatSession, error)
	DeleteSession(ctx context.Context, db *gorm.DB, id, userID string) error
	AppendTurn(ctx context.Context, db *gorm.DB, sessionID string, t *domain.Turn) error
}

// SessionService manages chat sessions for their owners.
type SessionService struct {
	DB    *gorm.DB
	Repo  SessionRepo
	Model inference.Model

	// Identity answers questions about the assistant without the model.
	Identity rules.Set

	AssistantName string
	// DefaultModel is recorded when the model service omits its id.
	DefaultModel string
	// Timeout bounds one model call; zero means no extra bound.
	Timeout time.Duration
	// MaxQuestionRunes caps question length; zero disables the cap.
	MaxQuestionRunes int

	now func() time.Time
}

// NewSessionService constructs a SessionService with the stock identity
// rules answering identityAnswer.
func NewSessionService(db *gorm.DB, r SessionRepo, m inference.Model, assistantName, identityAnswer string) *SessionService {
	return &SessionService{
		DB:            db,
		Repo:          r,
		Model:         m,
		Identity:      rules.Identity(identityAnswer),
		AssistantName: assistantName,
		DefaultModel:  "Qwen",
		Timeout:       90 * time.Second,
		now:           time.Now,
	}
}

// WelcomeText is the answer of the synthetic first turn.
func (s *SessionService) WelcomeText(userName string) string {
	return fmt.Sprintf("Hello %s, I am %s. How can I help you today?",
		sysutil.FirstNonEmpty(userName, "friend"),
		sysutil.FirstNonEmpty(s.AssistantName, "EmpaTalk"))
}

// Create starts a session for userID. Non-empty initial turns are stored as
// given (positions renumbered); otherwise a single welcome turn greeting
// userName is inserted.
func (s *SessionService) Create(ctx context.Context, userID, userName string, initial []domain.Turn) (*domain.ChatSession, error) {
	ctx, span := otel.Tracer("services/SessionService").Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("initial_turns", len(initial)),
		),
	)
	defer span.End()

	turns := initial
	if len(turns) == 0 {
		turns = []domain.Turn{{
			Question: domain.SystemQuestion,
			Answer:   s.WelcomeText(userName),
			Meta:     datatypes.JSONMap{domain.MetaSystem: true},
			At:       s.clock(),
		}}
	}
	for _, t := range turns {
		if strings.TrimSpace(t.Answer) == "" {
			return nil, ErrInvalidTurn
		}
	}
	sess, err := s.Repo.CreateSession(ctx, s.DB, userID, turns)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(initial) == 0 {
		turnsAppended.WithLabelValues(SourceWelcome).Inc()
	}
	span.SetAttributes(attribute.String("session.id", sess.ID))
	return sess, nil
}

// Get returns one of the caller's sessions with its turns in order.
func (s *SessionService) Get(ctx context.Context, userID, sessionID string) (*domain.ChatSession, error) {
	ctx, span := otel.Tracer("services/SessionService").Start(ctx, "Get",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	sess, err := s.Repo.GetSession(ctx, s.DB, sessionID, userID)
	if err != nil {
		return nil, mapSessionErr(err)
	}
	return sess, nil
}

// List returns all of the caller's sessions.
func (s *SessionService) List(ctx context.Context, userID string) ([]domain.ChatSession, error) {
	ctx, span := otel.Tracer("services/SessionService").Start(ctx, "List",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()
	return s.Repo.ListSessions(ctx, s.DB, userID)
}

// Delete removes a session and all of its turns.
func (s *SessionService) Delete(ctx context.Context, userID, sessionID string) error {
	ctx, span := otel.Tracer("services/SessionService").Start(ctx, "Delete",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()
	return mapSessionErr(s.Repo.DeleteSession(ctx, s.DB, sessionID, userID))
}

// Append answers question inside the session and returns the updated
// session. Only validation and lookup failures are returned as errors.
func (s *SessionService) Append(ctx context.Context, userID, sessionID, question string) (*domain.ChatSession, error) {
	ctx, span := otel.Tracer("services/SessionService").Start(ctx, "Append",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	if s.MaxQuestionRunes > 0 && utf8.RuneCountInString(question) > s.MaxQuestionRunes {
		return nil, ErrTooLong
	}

	sess, err := s.Repo.GetSession(ctx, s.DB, sessionID, userID)
	if err != nil {
		return nil, mapSessionErr(err)
	}

	var (
		turn   domain.Turn
		source string
	)
	if r, ok := s.Identity.Match(question); ok {
		source = SourceIdentity
		turn = domain.Turn{
			Question: question,
			Answer:   r.Response,
			Meta: datatypes.JSONMap{
				domain.MetaIdentityIntercept: true,
				domain.MetaRule:              r.Name,
			},
		}
	} else {
		res := s.generate(ctx, question, BuildHistory(sess.Turns))
		source = res.Source
		emotion := rules.Emotion(question)
		res.Meta[domain.MetaEmotion] = emotion
		res.Meta[domain.MetaIntent] = rules.Intent(question, emotion)
		turn = domain.Turn{Question: question, Answer: res.Answer, Meta: res.Meta}
	}
	turn.At = s.clock()
	span.SetAttributes(attribute.String("answer.source", source))

	if err := s.Repo.AppendTurn(ctx, s.DB, sessionID, &turn); err != nil {
		span.RecordError(err)
		return nil, mapSessionErr(err)
	}
	turnsAppended.WithLabelValues(source).Inc()

	updated, err := s.Repo.GetSession(ctx, s.DB, sessionID, userID)
	if err != nil {
		return nil, mapSessionErr(err)
	}
	return updated, nil
}

// Generation is the resolved outcome of one model call.
type Generation struct {
	Answer string
	Meta   datatypes.JSONMap
	Source string
}

// generate calls the model and applies the fallback policy:
// text on success, AnswerNoResponse for an empty or undecodable reply, and
// AnswerUnavailable (flagged degraded) for timeouts, transport errors and
// non-2xx statuses.
func (s *SessionService) generate(ctx context.Context, question string, history []inference.Message) Generation {
	ctx, span := otel.Tracer("services/SessionService").Start(ctx, "generate",
		trace.WithAttributes(attribute.Int("history.len", len(history))),
	)
	defer span.End()

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	model := sysutil.FirstNonEmpty(s.DefaultModel, "Qwen")
	if s.Model == nil {
		return Generation{Answer: AnswerUnavailable, Source: SourceDegraded,
			Meta: datatypes.JSONMap{domain.MetaModel: model, domain.MetaDegraded: true}}
	}

	reply, err := s.Model.Generate(ctx, inference.GenerateRequest{Message: question, History: history})
	if err != nil {
		span.RecordError(err)
		if ue, ok := inference.AsUpstream(err); ok && ue.Kind == inference.KindMalformed {
			return Generation{Answer: AnswerNoResponse, Source: SourceEmpty,
				Meta: datatypes.JSONMap{domain.MetaModel: model}}
		}
		span.SetStatus(codes.Error, "model unavailable")
		return Generation{Answer: AnswerUnavailable, Source: SourceDegraded,
			Meta: datatypes.JSONMap{domain.MetaModel: model, domain.MetaDegraded: true}}
	}

	model = sysutil.FirstNonEmpty(reply.Model, model)
	if strings.TrimSpace(reply.Text) == "" {
		return Generation{Answer: AnswerNoResponse, Source: SourceEmpty,
			Meta: datatypes.JSONMap{domain.MetaModel: model}}
	}
	return Generation{Answer: reply.Text, Source: SourceModel,
		Meta: datatypes.JSONMap{domain.MetaModel: model}}
}

// BuildHistory flattens completed turns into alternating user/assistant
// messages. The welcome turn and turns missing either side are skipped.
func BuildHistory(turns []domain.Turn) []inference.Message {
	out := make([]inference.Message, 0, 2*len(turns))
	for _, t := range turns {
		if t.IsSystem() || !t.Complete() {
			continue
		}
		out = append(out,
			inference.Message{Role: inference.RoleUser, Content: t.Question},
			inference.Message{Role: inference.RoleAssistant, Content: t.Answer},
		)
	}
	return out
}

func (s *SessionService) clock() time.Time {
	if s.now == nil {
		return time.Now().UTC()
	}
	return s.now().UTC()
}

func mapSessionErr(err error) error {
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return ErrSessionNotFound
	}
	return err
}
