// Package httpapi wires the HTTP transport (Gin) to the EmpaTalk services,
// middleware and route handlers. Cross-cutting concerns live here: tracing,
// correlation IDs, redacted access logs, panic recovery, metrics, CORS,
// security headers, bearer authentication, idempotency and rate limiting.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/go-empatalk-backend/docs"
	"github.com/tbourn/go-empatalk-backend/internal/auth"
	"github.com/tbourn/go-empatalk-backend/internal/config"
	"github.com/tbourn/go-empatalk-backend/internal/domain"
	"github.com/tbourn/go-empatalk-backend/internal/http/handlers"
	"github.com/tbourn/go-empatalk-backend/internal/http/middleware"
	"github.com/tbourn/go-empatalk-backend/internal/inference"
	"github.com/tbourn/go-empatalk-backend/internal/repo"
	"github.com/tbourn/go-empatalk-backend/internal/services"
)

// maxBodyBytes caps every request body.
const maxBodyBytes = 1 << 20

// sessionRepoShim adapts the repository free functions to
// services.SessionRepo.
type sessionRepoShim struct{}

func (sessionRepoShim) CreateSession(ctx context.Context, db *gorm.DB, userID string, turns []domain.Turn) (*domain.ChatSession, error) {
	return repo.CreateSession(ctx, db, userID, turns)
}

func (sessionRepoShim) GetSession(ctx context.Context, db *gorm.DB, id, userID string) (*domain.ChatSession, error) {
	return repo.GetSession(ctx, db, id, userID)
}

func (sessionRepoShim) ListSessions(ctx context.Context, db *gorm.DB, userID string) ([]domain.ChatSession, error) {
	return repo.ListSessions(ctx, db, userID)
}

func (sessionRepoShim) DeleteSession(ctx context.Context, db *gorm.DB, id, userID string) error {
	return repo.DeleteSession(ctx, db, id, userID)
}

func (sessionRepoShim) AppendTurn(ctx context.Context, db *gorm.DB, sessionID string, t *domain.Turn) error {
	return repo.AppendTurn(ctx, db, sessionID, t)
}

// sessionStats backs the list ETag with repo.SessionsStats.
type sessionStats struct{ db *gorm.DB }

func (s sessionStats) SessionsStats(ctx context.Context, userID string) (int64, *time.Time, error) {
	return repo.SessionsStats(ctx, s.db, userID)
}

// replayStore keeps completed appends in the idempotency table.
type replayStore struct {
	db  *gorm.DB
	ttl time.Duration
}

func (s replayStore) Lookup(ctx context.Context, userID, sessionID, key string, now time.Time) (bool, error) {
	rec, err := repo.GetIdempotency(ctx, s.db, userID, sessionID, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

func (s replayStore) Save(ctx context.Context, userID, sessionID, key, turnID string, status int) error {
	_, err := repo.CreateIdempotency(ctx, s.db, userID, sessionID, key, turnID, status, s.ttl)
	// A concurrent retry already stored the same key.
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}

// RegisterRoutes attaches all middleware and endpoints to r.
//
// Middleware order matters:
//  1. OpenTelemetry
//  2. RequestID
//  3. RedactingLogger
//  4. Recovery
//  5. Body size limiter
//  6. Metrics
//  7. Gzip, CORS and security headers
//
// Per group: public routes are rate limited by IP; account and chat routes
// run RequireAuth first and are limited per user. The idempotency validator
// sits in front of the limiter on POST /chat/:id so replays bypass it.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, model inference.Model, cfg config.Config) error {
	issuer, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{middleware.HeaderIdempotencyKey},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(gzip.Gzip(gzip.DefaultCompression))
	r.Use(corsMiddleware(cfg.CORS))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// services <- repo/db/model
	authSvc := services.NewAuthService(db, issuer, cfg.Auth.BcryptCost)

	sessionSvc := services.NewSessionService(db, sessionRepoShim{}, model, cfg.Assistant.Name, cfg.Assistant.IdentityAnswer)
	sessionSvc.DefaultModel = cfg.Model.DefaultName
	sessionSvc.Timeout = cfg.Model.Timeout
	sessionSvc.MaxQuestionRunes = cfg.Assistant.MaxQuestionRunes

	fbSvc := &services.FeedbackService{DB: db}
	proxySvc := &services.ProxyService{Model: model, Timeout: cfg.Model.Timeout}

	replays := replayStore{db: db, ttl: cfg.IdempotencyTTL}
	h := handlers.New(authSvc, sessionSvc, fbSvc, proxySvc)
	h.Stats = sessionStats{db: db}
	h.Replays = replays

	publicRL := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP())
	userRL := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	requireAuth := middleware.RequireAuth(authSvc)

	base := groupWithPrefix(r, cfg.APIBasePath)

	public := base.Group("", publicRL.Handler())
	{
		public.GET("/", h.Root)
		public.POST("/api/chat", h.ProxyChat)
		public.GET("/api/ping", h.Ping)
		public.POST("/user/register", h.Register)
		public.POST("/user/login", h.Login)
	}

	account := base.Group("/user", requireAuth, userRL.Handler())
	{
		account.GET("/me", h.Me)
		account.PUT("/update-username", h.UpdateUsername)
		account.PUT("/change-password", h.ChangePassword)
	}

	chats := base.Group("/chat", requireAuth)
	{
		limited := userRL.Handler()
		chats.GET("", limited, h.ListSessions)
		chats.POST("/new", limited, h.CreateSession)
		chats.GET("/:id", limited, h.GetSession)
		chats.POST("/:id",
			middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, replays.Lookup),
			limited,
			h.AppendTurn,
		)
		chats.DELETE("/:id", limited, h.DeleteSession)
	}

	base.POST("/feedback", requireAuth, userRL.Handler(), h.SubmitFeedback)
	return nil
}

// corsMiddleware allows any origin when none are configured. Credentials
// are never allowed: auth rides in the Authorization header.
func corsMiddleware(cc config.CORSConfig) gin.HandlerFunc {
	conf := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match", middleware.HeaderIdempotencyKey},
		ExposeHeaders:    []string{"X-Request-ID", "ETag", "Retry-After", handlers.HeaderIdempotencyReplayed},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(cc.AllowedOrigins) == 0 {
		conf.AllowAllOrigins = true
	} else {
		conf.AllowOrigins = cc.AllowedOrigins
	}
	return cors.New(conf)
}

// limitBody caps the request body at maxBytes; reads past the cap fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
