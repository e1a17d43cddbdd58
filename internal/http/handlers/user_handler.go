// Account HTTP handlers.
//
//   - POST /user/register
//   - POST /user/login
//   - GET  /user/me
//   - PUT  /user/update-username
//   - PUT  /user/change-password
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-empatalk-backend/internal/auth"
	"github.com/tbourn/go-empatalk-backend/internal/domain"
	"github.com/tbourn/go-empatalk-backend/internal/services"
)

// RegisterRequest is the registration payload.
type RegisterRequest struct {
	Name     string `json:"name" example:"alice"`
	Email    string `json:"email" example:"alice@example.com"`
	Password string `json:"password" example:"correct horse battery staple"`
}

// LoginRequest accepts an email or a username as identifier. "email" is
// kept as an alias for older clients.
type LoginRequest struct {
	Identifier string `json:"identifier" example:"alice"`
	Email      string `json:"email,omitempty" example:"alice@example.com"`
	Password   string `json:"password" example:"correct horse battery staple"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	ID    string `json:"id" example:"0f8fad5b-d9cb-469f-a165-70867728950e"`
	Name  string `json:"name" example:"alice"`
	Email string `json:"email" example:"alice@example.com"`
	Token string `json:"token"`
}

// ProfileResponse is the public view of an account.
type ProfileResponse struct {
	ID    string `json:"id,omitempty" example:"0f8fad5b-d9cb-469f-a165-70867728950e"`
	Name  string `json:"name" example:"alice"`
	Email string `json:"email" example:"alice@example.com"`
}

// UpdateUsernameRequest renames the caller.
type UpdateUsernameRequest struct {
	Name string `json:"name" example:"alice_b"`
}

// ChangePasswordRequest rotates the caller's password.
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func authResponse(r *services.AuthResult) AuthResponse {
	return AuthResponse{ID: r.User.ID, Name: r.User.Name, Email: r.User.Email, Token: r.Token}
}

func profile(u *domain.User) ProfileResponse {
	return ProfileResponse{ID: u.ID, Name: u.Name, Email: u.Email}
}

// Register godoc
// @ID          registerUser
// @Summary     Register an account
// @Description Creates an account and returns it with a bearer token. A taken username yields 409 with a suggested free alternative; the account is not created under it.
// @Tags        Users
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.RegisterRequest  true  "Registration payload"
// @Success     201   {object}  handlers.AuthResponse
// @Failure     400   {object}  handlers.ErrorResponse     "Missing fields"
// @Failure     409   {object}  handlers.ConflictResponse  "Email or username taken"
// @Failure     500   {object}  handlers.ErrorResponse     "Internal error"
// @Router      /user/register [post]
func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	res, err := h.accounts.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		h.accountError(c, err)
		return
	}
	ok(c, http.StatusCreated, authResponse(res))
}

// Login godoc
// @ID          loginUser
// @Summary     Log in
// @Description Verifies the password of the account whose email or username equals identifier and issues a bearer token.
// @Tags        Users
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.LoginRequest  true  "Credentials"
// @Success     200   {object}  handlers.AuthResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Missing fields, unknown user or wrong password"
// @Failure     500   {object}  handlers.ErrorResponse  "Internal error"
// @Router      /user/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	ident := req.Identifier
	if ident == "" {
		ident = req.Email
	}

	res, err := h.accounts.Login(c.Request.Context(), ident, req.Password)
	if err != nil {
		// An unknown login is a bad request, not a missing resource.
		if errors.Is(err, services.ErrUserNotFound) {
			fail(c, http.StatusBadRequest, ErrCodeNotFound, err.Error())
			return
		}
		h.accountError(c, err)
		return
	}
	ok(c, http.StatusOK, authResponse(res))
}

// Me godoc
// @ID          currentUser
// @Summary     Current user
// @Tags        Users
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.ProfileResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Not authorized"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Router      /user/me [get]
func (h *Handlers) Me(c *gin.Context) {
	u, err := h.accounts.Me(c.Request.Context(), userID(c))
	if err != nil {
		h.accountError(c, err)
		return
	}
	ok(c, http.StatusOK, profile(u))
}

// UpdateUsername godoc
// @ID          updateUsername
// @Summary     Change username
// @Tags        Users
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.UpdateUsernameRequest  true  "New name"
// @Success     200   {object}  handlers.ProfileResponse
// @Failure     400   {object}  handlers.ErrorResponse     "Name is required"
// @Failure     401   {object}  handlers.ErrorResponse     "Not authorized"
// @Failure     404   {object}  handlers.ErrorResponse     "User not found"
// @Failure     409   {object}  handlers.ConflictResponse  "Username already taken"
// @Router      /user/update-username [put]
func (h *Handlers) UpdateUsername(c *gin.Context) {
	var req UpdateUsernameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	u, err := h.accounts.UpdateUsername(c.Request.Context(), userID(c), req.Name)
	if err != nil {
		if errors.Is(err, services.ErrMissingFields) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name is required")
			return
		}
		h.accountError(c, err)
		return
	}
	ok(c, http.StatusOK, ProfileResponse{Name: u.Name, Email: u.Email})
}

// ChangePassword godoc
// @ID          changePassword
// @Summary     Change password
// @Tags        Users
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.ChangePasswordRequest  true  "Old and new password"
// @Success     200   {object}  handlers.MessageResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Missing fields or wrong old password"
// @Failure     401   {object}  handlers.ErrorResponse  "Not authorized"
// @Failure     404   {object}  handlers.ErrorResponse  "User not found"
// @Router      /user/change-password [put]
func (h *Handlers) ChangePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	err := h.accounts.ChangePassword(c.Request.Context(), userID(c), req.OldPassword, req.NewPassword)
	switch {
	case errors.Is(err, services.ErrMissingFields):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "both old and new passwords are required")
	case errors.Is(err, services.ErrInvalidCredential):
		fail(c, http.StatusBadRequest, ErrCodeInvalidCredentials, "old password is incorrect")
	case err != nil:
		h.accountError(c, err)
	default:
		ok(c, http.StatusOK, MessageResponse{Message: "Password changed successfully"})
	}
}

// accountError maps AccountService errors to statuses.
func (h *Handlers) accountError(c *gin.Context, err error) {
	var taken *services.NameTakenError
	switch {
	case errors.As(err, &taken):
		failWith(c, http.StatusConflict, ErrCodeConflict, err.Error(), ConflictResponse{
			ErrorResponse: envelope(c, ErrCodeConflict, err.Error()),
			Suggestion:    taken.Suggestion,
		})
	case errors.Is(err, services.ErrEmailTaken):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, services.ErrMissingFields),
		errors.Is(err, auth.ErrPasswordTooLong):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrInvalidCredential):
		fail(c, http.StatusBadRequest, ErrCodeInvalidCredentials, err.Error())
	case errors.Is(err, services.ErrUserNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrUnauthorized):
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}
