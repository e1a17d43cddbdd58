// Stateless model proxy and service banner.
//
//   - POST /api/chat  (one-shot prompt, nothing persisted)
//   - GET  /api/ping  (model service health)
//   - GET  /
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-empatalk-backend/internal/http/middleware"
	"github.com/tbourn/go-empatalk-backend/internal/inference"
	"github.com/tbourn/go-empatalk-backend/internal/services"
)

// ProxyChatRequest is a one-shot prompt with optional caller-held history.
type ProxyChatRequest struct {
	Message string              `json:"message" example:"I feel anxious about tomorrow"`
	History []inference.Message `json:"history,omitempty"`
}

// ProxyChatResponse is the model's reply.
type ProxyChatResponse struct {
	Reply string `json:"reply" example:"That sounds stressful. What is worrying you most?"`
	Model string `json:"model" example:"Qwen"`
}

// PingResponse reports model reachability. Model holds the service's own
// health document.
type PingResponse struct {
	OK    bool           `json:"ok"`
	Model map[string]any `json:"model,omitempty"`
}

// ProxyChat godoc
// @ID          proxyChat
// @Summary     One-shot model prompt
// @Description Forwards a message (and optional history) to the model service without touching any session. Upstream HTTP errors keep their status; other failures map to 502.
// @Tags        Model
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.ProxyChatRequest  true  "Prompt"
// @Success     200   {object}  handlers.ProxyChatResponse
// @Failure     400   {object}  handlers.ErrorResponse          "Message is required"
// @Failure     502   {object}  handlers.UpstreamErrorResponse  "Model service unavailable"
// @Router      /api/chat [post]
func (h *Handlers) ProxyChat(c *gin.Context) {
	var req ProxyChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message (string) is required")
		return
	}

	reply, err := h.proxy.Chat(c.Request.Context(), req.Message, req.History)
	if err != nil {
		if errors.Is(err, services.ErrEmptyQuestion) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message (string) is required")
			return
		}
		status, detail := http.StatusBadGateway, err.Error()
		if ue, ok := inference.AsUpstream(err); ok && ue.Kind == inference.KindStatus {
			status = ue.StatusCode
			if ue.Body != "" {
				detail = ue.Body
			}
		}
		const msg = "model service unavailable"
		failWith(c, status, ErrCodeUpstreamUnavailable, msg, UpstreamErrorResponse{
			ErrorResponse: envelope(c, ErrCodeUpstreamUnavailable, msg),
			Detail:        detail,
		})
		return
	}
	ok(c, http.StatusOK, ProxyChatResponse{Reply: reply.Text, Model: reply.Model})
}

// Ping godoc
// @ID          pingModel
// @Summary     Model service health
// @Tags        Model
// @Produce     json
// @Success     200  {object}  handlers.PingResponse
// @Failure     503  {object}  handlers.PingResponse
// @Router      /api/ping [get]
func (h *Handlers) Ping(c *gin.Context) {
	doc, err := h.proxy.Ping(c.Request.Context())
	if err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("model health check failed")
		c.JSON(http.StatusServiceUnavailable, PingResponse{OK: false})
		return
	}
	ok(c, http.StatusOK, PingResponse{OK: true, Model: doc})
}

// Root serves the plain-text banner.
//
// @ID          root
// @Summary     Service banner
// @Tags        Meta
// @Produce     plain
// @Success     200  {string}  string
// @Router      / [get]
func (h *Handlers) Root(c *gin.Context) {
	c.String(http.StatusOK, h.Banner)
}
