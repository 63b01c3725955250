package handlers

import (
	"net/http"

	"github.com/geocoder89/devicewatch/internal/auth"
	"github.com/gin-gonic/gin"
)

// SessionCookie writes the auth-token cookie.
type SessionCookie struct {
	Name   string
	Secure bool
	MaxAge int
}

func NewSessionCookie(secure bool) SessionCookie {
	return SessionCookie{
		Name:   auth.CookieName,
		Secure: secure,
		MaxAge: int(auth.SessionTTL.Seconds()),
	}
}

func (sc SessionCookie) Set(ctx *gin.Context, token string) {
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(sc.Name, token, sc.MaxAge, "/", "", sc.Secure, true)
}

func (sc SessionCookie) Clear(ctx *gin.Context) {
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(sc.Name, "", -1, "/", "", sc.Secure, true)
}
