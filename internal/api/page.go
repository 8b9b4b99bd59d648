package api

import (
	_ "embed"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"relevancy/internal/session"
)

//go:embed templates/index.tmpl
var indexTemplate string

var pageTemplate = template.Must(template.New("index.tmpl").Parse(indexTemplate))

func (h *Handler) index(c *gin.Context) {
	sess, ok := session.FromContext(c)
	if !ok {
		c.String(http.StatusUnauthorized, "session required")
		return
	}
	view, err := h.flow.Render(c.Request.Context(), sess.ID)
	if err != nil {
		log.Error().Err(err).Str("session", sess.ID).Msg("render page failed")
		c.String(http.StatusInternalServerError, "could not render page")
		return
	}
	c.HTML(http.StatusOK, "index.tmpl", gin.H{
		"View":      view,
		"CSRFField": "csrf_token",
		"CSRFToken": session.CSRFTokenFromContext(c),
		"Endpoint":  h.endpoint,
	})
}
