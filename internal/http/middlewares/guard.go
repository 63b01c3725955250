package middlewares

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/geocoder89/devicewatch/internal/actorctx"
	"github.com/geocoder89/devicewatch/internal/auth"
	"github.com/geocoder89/devicewatch/internal/domain/user"
	"github.com/gin-gonic/gin"
)

// SessionVerifier is satisfied by *auth.Manager.
type SessionVerifier interface {
	Verify(ctx context.Context, token string) (*auth.Claims, error)
}

type GuardMetrics interface {
	GuardDecision(decision string)
}

// RoleRule restricts every path under Prefix to Roles.
type RoleRule struct {
	Prefix string
	Roles  []user.Role
}

type GuardConfig struct {
	// SecureCookie must match the flag the session cookie was set with so
	// the browser accepts the clearing Set-Cookie.
	CookieName   string
	SecureCookie bool

	LoginPath string
	// ForbiddenPath is where page requests lacking the role are sent.
	ForbiddenPath string

	PublicPages []string
	PublicAPI   []string
	PublicInfra []string

	// APIPrefixes get JSON errors instead of redirects.
	APIPrefixes []string
	Rules       []RoleRule
}

func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		CookieName:    auth.CookieName,
		LoginPath:     "/login",
		ForbiddenPath: "/",
		PublicPages:   []string{"/login", "/register", "/forgot-password", "/reset-password"},
		PublicAPI: []string{
			"/api/auth/login",
			"/api/auth/register",
			"/api/auth/forgot-password",
			"/api/auth/reset-password",
		},
		PublicInfra: []string{"/healthz", "/readyz", "/metrics", "/static", "/assets", "/favicon.ico"},
		APIPrefixes: []string{"/api", "/socket"},
		Rules: []RoleRule{
			{Prefix: "/api/admin", Roles: []user.Role{user.RoleAdmin}},
			{Prefix: "/api/users", Roles: []user.Role{user.RoleAdmin}},
			{Prefix: "/api/managers", Roles: []user.Role{user.RoleManager, user.RoleAdmin}},
		},
	}
}

const (
	decisionPublic     = "public"
	decisionAllowed    = "allowed"
	decisionRejected   = "rejected"
	decisionRedirected = "redirected"
	decisionForbidden  = "forbidden"
	decisionError      = "error"
)

// Guard decides allow, redirect or reject for every request before routing.
type Guard struct {
	verifier SessionVerifier
	cfg      GuardConfig
	metrics  GuardMetrics
	log      *slog.Logger
}

func NewGuard(verifier SessionVerifier, cfg GuardConfig, metrics GuardMetrics, log *slog.Logger) *Guard {
	if log == nil {
		log = slog.Default()
	}
	return &Guard{verifier: verifier, cfg: cfg, metrics: metrics, log: log}
}

// IsPublic reports whether path skips session checks.
func (g *Guard) IsPublic(path string) bool {
	return matchAny(path, g.cfg.PublicInfra) ||
		matchAny(path, g.cfg.PublicAPI) ||
		matchAny(path, g.cfg.PublicPages)
}

func (g *Guard) IsAPI(path string) bool {
	return matchAny(path, g.cfg.APIPrefixes)
}

// RequiredRoles returns the roles a path needs; nil means any signed-in user.
func (g *Guard) RequiredRoles(path string) []user.Role {
	for _, rule := range g.cfg.Rules {
		if hasPathPrefix(path, rule.Prefix) {
			return rule.Roles
		}
	}
	return nil
}

func (g *Guard) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path

		if g.IsPublic(path) {
			g.record(decisionPublic)
			c.Next()
			return
		}

		raw, err := c.Cookie(g.cfg.CookieName)
		if err != nil || raw == "" {
			g.unauthenticated(c, path, "Missing session")
			return
		}

		claims, err := g.verifier.Verify(c.Request.Context(), raw)
		if err != nil {
			if errors.Is(err, auth.ErrTokenInvalid) || errors.Is(err, auth.ErrTokenExpired) {
				g.clearSession(c)
				g.unauthenticated(c, path, "Invalid or expired session")
				return
			}

			g.record(decisionError)
			g.log.ErrorContext(c.Request.Context(), "session verification failed", "path", path, "err", err)
			if g.IsAPI(path) {
				abortJSON(c, http.StatusInternalServerError, "internal_error", "Could not verify session")
				return
			}
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		if !auth.Allow(claims.Role, g.RequiredRoles(path)...) {
			g.record(decisionForbidden)
			if g.IsAPI(path) {
				abortJSON(c, http.StatusForbidden, "forbidden", "Insufficient role")
				return
			}
			c.Redirect(http.StatusFound, g.cfg.ForbiddenPath)
			c.Abort()
			return
		}

		setIdentity(c, claims)
		g.record(decisionAllowed)
		c.Next()
	}
}

// clearSession drops a cookie that can never verify again.
func (g *Guard) clearSession(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(g.cfg.CookieName, "", -1, "/", "", g.cfg.SecureCookie, true)
}

func (g *Guard) unauthenticated(c *gin.Context, path, message string) {
	if g.IsAPI(path) {
		g.record(decisionRejected)
		abortJSON(c, http.StatusUnauthorized, "unauthorized", message)
		return
	}

	g.record(decisionRedirected)
	c.Redirect(http.StatusFound, g.cfg.LoginPath)
	c.Abort()
}

func (g *Guard) record(decision string) {
	if g.metrics != nil {
		g.metrics.GuardDecision(decision)
	}
}

// setIdentity stashes the verified claims on both the gin and request contexts.
func setIdentity(c *gin.Context, claims *auth.Claims) {
	c.Set(CtxClaims, claims)
	c.Set(CtxUserID, claims.UserID)
	c.Set(CtxEmail, claims.Email)
	c.Set(CtxRole, claims.Role)

	c.Request = c.Request.WithContext(actorctx.WithClaims(c.Request.Context(), claims))
}

func ClaimsFromContext(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(CtxClaims)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok && claims != nil
}

func UserIDFromContext(c *gin.Context) (string, bool) {
	id := c.GetString(CtxUserID)
	return id, id != ""
}

func RoleFromContext(c *gin.Context) (user.Role, bool) {
	v, ok := c.Get(CtxRole)
	if !ok {
		return "", false
	}
	role, ok := v.(user.Role)
	return role, ok
}

// hasPathPrefix matches whole segments, so /login covers /login/x but not /loginx.
func hasPathPrefix(path, prefix string) bool {
	if prefix == "" {
		return false
	}
	if path == prefix {
		return true
	}
	if strings.HasSuffix(prefix, "/") {
		return strings.HasPrefix(path, prefix)
	}
	return strings.HasPrefix(path, prefix+"/")
}

func matchAny(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if hasPathPrefix(path, p) {
			return true
		}
	}
	return false
}
