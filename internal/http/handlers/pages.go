package handlers

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// PagesHandler serves built pages from dir with a fallback to index.html.
// Unknown /api paths get a JSON 404 instead.
type PagesHandler struct {
	dir string
}

func NewPagesHandler(dir string) *PagesHandler {
	return &PagesHandler{dir: dir}
}

func (h *PagesHandler) NoRoute(ctx *gin.Context) {
	p := ctx.Request.URL.Path

	if strings.HasPrefix(p, "/api/") || p == "/api" || h.dir == "" {
		RespondNotFound(ctx, "Route not found")
		return
	}

	if ctx.Request.Method != http.MethodGet && ctx.Request.Method != http.MethodHead {
		RespondNotFound(ctx, "Route not found")
		return
	}

	clean := path.Clean("/" + p)
	file := filepath.Join(h.dir, filepath.FromSlash(clean))

	if info, err := os.Stat(file); err == nil && !info.IsDir() {
		ctx.File(file)
		return
	}

	index := filepath.Join(h.dir, "index.html")
	if _, err := os.Stat(index); err != nil {
		RespondNotFound(ctx, "Page not found")
		return
	}

	ctx.File(index)
}
