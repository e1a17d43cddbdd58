// Feedback HTTP handler.
//
//   - POST /feedback
//
// Feedback is append-only. The turn index is stored as sent and is not
// checked against the session.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-empatalk-backend/internal/services"
)

// FeedbackRequest rates one turn of a session. The web client's original
// field names (chat, turnIndex, stars) are accepted as aliases.
type FeedbackRequest struct {
	SessionID string  `json:"session_id" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	TurnIndex *int    `json:"turn_index,omitempty" example:"2"`
	Rating    *int    `json:"rating" example:"5"`
	Comment   *string `json:"comment,omitempty" example:"That helped, thanks"`

	Chat         string `json:"chat,omitempty" swaggerignore:"true"`
	TurnIndexAlt *int   `json:"turnIndex,omitempty" swaggerignore:"true"`
	Stars        *int   `json:"stars,omitempty" swaggerignore:"true"`
}

func (r FeedbackRequest) input() services.FeedbackInput {
	in := services.FeedbackInput{
		SessionID: r.SessionID,
		TurnIndex: r.TurnIndex,
		Rating:    r.Rating,
		Comment:   r.Comment,
	}
	if in.SessionID == "" {
		in.SessionID = r.Chat
	}
	if in.TurnIndex == nil {
		in.TurnIndex = r.TurnIndexAlt
	}
	if in.Rating == nil {
		in.Rating = r.Stars
	}
	return in
}

// SubmitFeedback godoc
// @ID          submitFeedback
// @Summary     Rate a turn
// @Description Stores a 1..5 rating for a turn of a session. turn_index defaults to 0.
// @Tags        Feedback
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.FeedbackRequest  true  "Feedback payload"
// @Success     201   {object}  domain.Feedback
// @Failure     400   {object}  handlers.ErrorResponse  "Missing session or rating, or rating out of range"
// @Failure     401   {object}  handlers.ErrorResponse  "Not authorized"
// @Failure     500   {object}  handlers.ErrorResponse  "Internal error"
// @Router      /feedback [post]
func (h *Handlers) SubmitFeedback(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	fb, err := h.feedback.Submit(c.Request.Context(), userID(c), req.input())
	if err != nil {
		switch {
		case errors.Is(err, services.ErrMissingFields):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "chat and stars required")
		case errors.Is(err, services.ErrInvalidRating):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not store feedback")
		}
		return
	}
	ok(c, http.StatusCreated, fb)
}
