package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/geocoder89/devicewatch/internal/auth"
	"github.com/geocoder89/devicewatch/internal/domain/user"
	"github.com/geocoder89/devicewatch/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

type AuthService interface {
	Login(ctx context.Context, email, password string) (auth.Session, error)
	Register(ctx context.Context, in auth.RegisterInput) (user.User, auth.Session, error)
	Logout(ctx context.Context, claims *auth.Claims) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, raw, newPassword string) error
	Me(ctx context.Context, claims *auth.Claims) (user.User, error)
}

type AuthMetrics interface {
	AuthResult(op, result string)
}

type AuthHandler struct {
	svc     AuthService
	cookie  SessionCookie
	metrics AuthMetrics
	log     *slog.Logger
}

func NewAuthHandler(svc AuthService, cookie SessionCookie, metrics AuthMetrics, log *slog.Logger) *AuthHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AuthHandler{svc: svc, cookie: cookie, metrics: metrics, log: log}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email,max=254"`
	Password string `json:"password" binding:"required,min=8,max=72"`
	Name     string `json:"name" binding:"required,max=100"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token" binding:"required,max=128"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

// Identity is the public view of a signed-in user.
type Identity struct {
	ID    string    `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name"`
	Role  user.Role `json:"role"`
}

type sessionResponse struct {
	User      Identity  `json:"user"`
	ExpiresAt time.Time `json:"expiresAt"`
}

const forgotPasswordMessage = "If an account exists for that email, a reset link has been sent."

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	// short timeout for the lookup plus bcrypt
	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	sess, err := h.svc.Login(cctx, strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.record("login", "invalid")
			RespondUnauthorized(ctx, "invalid_credentials", "Email or password is incorrect.")
			return
		}

		h.record("login", "error")
		h.log.ErrorContext(ctx.Request.Context(), "login failed", "err", err)
		RespondInternal(ctx, "Could not sign in")
		return
	}

	h.record("login", "ok")
	h.cookie.Set(ctx, sess.Token)
	ctx.JSON(http.StatusOK, newSessionResponse(sess.Claims))
}

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	_, sess, err := h.svc.Register(cctx, auth.RegisterInput{
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
		Name:     strings.TrimSpace(req.Name),
	})

	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			h.record("register", "conflict")
			RespondConflict(ctx, "email_taken", "Email is already in use.")
			return
		}

		h.record("register", "error")
		h.log.ErrorContext(ctx.Request.Context(), "register failed", "err", err)
		RespondInternal(ctx, "Could not create user")
		return
	}

	h.record("register", "ok")
	h.cookie.Set(ctx, sess.Token)
	ctx.JSON(http.StatusCreated, newSessionResponse(sess.Claims))
}

// Logout always clears the cookie; revocation failures are only logged.
func (h *AuthHandler) Logout(ctx *gin.Context) {
	if claims, ok := middlewares.ClaimsFromContext(ctx); ok {
		if err := h.svc.Logout(ctx.Request.Context(), claims); err != nil {
			h.record("logout", "error")
			h.log.ErrorContext(ctx.Request.Context(), "session revoke failed", "user_id", claims.UserID, "err", err)
		} else {
			h.record("logout", "ok")
		}
	}

	h.cookie.Clear(ctx)
	ctx.Status(http.StatusNoContent)
}

// ForgotPassword answers the same way whether or not the account exists.
func (h *AuthHandler) ForgotPassword(ctx *gin.Context) {
	var req ForgotPasswordRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.svc.RequestPasswordReset(cctx, strings.TrimSpace(req.Email)); err != nil {
		h.record("forgot", "error")
		h.log.ErrorContext(ctx.Request.Context(), "password reset request failed", "err", err)
	} else {
		h.record("forgot", "ok")
	}

	ctx.JSON(http.StatusOK, gin.H{"message": forgotPasswordMessage})
}

func (h *AuthHandler) ResetPassword(ctx *gin.Context) {
	var req ResetPasswordRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	err := h.svc.ResetPassword(cctx, req.Token, req.Password)

	switch {
	case err == nil:
		h.record("reset", "ok")
		ctx.JSON(http.StatusOK, gin.H{"message": "Password has been reset."})
	case errors.Is(err, auth.ErrTokenExpired):
		h.record("reset", "expired")
		RespondError(ctx, http.StatusBadRequest, "token_expired", "Reset link has expired.", nil)
	case errors.Is(err, auth.ErrTokenInvalid):
		h.record("reset", "invalid")
		RespondError(ctx, http.StatusBadRequest, "invalid_token", "Reset link is invalid.", nil)
	default:
		h.record("reset", "error")
		h.log.ErrorContext(ctx.Request.Context(), "password reset failed", "err", err)
		RespondInternal(ctx, "Could not reset password")
	}
}

// Me returns the identity from the verified session. ?fresh=true reloads it
// from the store.
func (h *AuthHandler) Me(ctx *gin.Context) {
	claims, ok := middlewares.ClaimsFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx, "unauthorized", "Missing session")
		return
	}

	if ctx.Query("fresh") != "true" {
		ctx.JSON(http.StatusOK, gin.H{"user": identityFromClaims(claims)})
		return
	}

	u, err := h.svc.Me(ctx.Request.Context(), claims)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			h.cookie.Clear(ctx)
			RespondUnauthorized(ctx, "unauthorized", "Account no longer exists")
			return
		}
		h.log.ErrorContext(ctx.Request.Context(), "load current user failed", "user_id", claims.UserID, "err", err)
		RespondInternal(ctx, "Could not load user")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"user": u})
}

func (h *AuthHandler) record(op, result string) {
	if h.metrics != nil {
		h.metrics.AuthResult(op, result)
	}
}

func identityFromClaims(c *auth.Claims) Identity {
	return Identity{ID: c.UserID, Email: c.Email, Name: c.Name, Role: c.Role}
}

func newSessionResponse(c *auth.Claims) sessionResponse {
	resp := sessionResponse{User: identityFromClaims(c)}
	if c.ExpiresAt != nil {
		resp.ExpiresAt = c.ExpiresAt.Time
	}
	return resp
}
