package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"relevancy/internal/flow"
	"relevancy/internal/models"
	"relevancy/internal/service/workspace"
	"relevancy/internal/session"
)

const (
	maxUploadBytes  = 10 << 20
	uploadExtension = ".xlsx"
	awaitTimeout    = 60 * time.Second
)

// Handler wires HTTP routes to the presentation flow.
type Handler struct {
	flow      *flow.Flow
	sessions  *session.Service
	workspace *workspace.Service
	endpoint  string
}

// NewHandler constructs a Handler instance. endpoint is only displayed on the page.
func NewHandler(f *flow.Flow, sessions *session.Service, ws *workspace.Service, endpoint string) *Handler {
	return &Handler{
		flow:      f,
		sessions:  sessions,
		workspace: ws,
		endpoint:  endpoint,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.SetHTMLTemplate(pageTemplate)
	router.GET("/healthz", h.healthz)

	sessionMW := h.sessions.Middleware()
	csrfMW := h.sessions.CSRFMiddleware()
	router.GET("/", sessionMW, h.index)

	api := router.Group("/api")
	api.Use(sessionMW)
	api.POST("/upload", limitBody(maxUploadBytes), csrfMW, h.upload)
	api.POST("/predict", csrfMW, h.predict)
	api.GET("/view", h.view)
	api.GET("/download/:kind", h.download)
	api.GET("/predictions", h.predictions)
	api.POST("/session/end", csrfMW, h.endSession)
}

func (h *Handler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) currentSession(c *gin.Context) (*models.Session, bool) {
	sess, ok := session.FromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session required"})
		return nil, false
	}
	return sess, true
}

func (h *Handler) upload(c *gin.Context) {
	sess, ok := h.currentSession(c)
	if !ok {
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if file.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	if !strings.EqualFold(filepath.Ext(file.Filename), uploadExtension) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only .xlsx files are accepted"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "open file failed"})
		return
	}
	data, err := io.ReadAll(f)
	_ = f.Close()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read file failed"})
		return
	}

	view, err := h.flow.Upload(c.Request.Context(), sess.ID, file.Filename, data)
	if err != nil {
		log.Error().Err(err).Str("session", sess.ID).Msg("upload failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "record upload failed"})
		return
	}
	h.respondView(c, http.StatusCreated, view)
}

type predictRequest struct {
	Query string `json:"query" form:"query"`
}

func (h *Handler) predict(c *gin.Context) {
	sess, ok := h.currentSession(c)
	if !ok {
		return
	}
	var req predictRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	view, err := h.flow.Trigger(c.Request.Context(), sess.ID, req.Query)
	if err != nil {
		log.Error().Err(err).Str("session", sess.ID).Msg("trigger prediction failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "start prediction failed"})
		return
	}
	status := http.StatusOK
	if view.Predicting() && view.Notice == "" {
		status = http.StatusAccepted
	}
	h.respondView(c, status, view)
}

func (h *Handler) view(c *gin.Context) {
	sess, ok := h.currentSession(c)
	if !ok {
		return
	}
	var (
		view *flow.View
		err  error
	)
	if c.Query("wait") == "1" || c.Query("wait") == "true" {
		ctx, cancel := context.WithTimeout(c.Request.Context(), awaitTimeout)
		view, err = h.flow.Await(ctx, sess.ID)
		cancel()
		if errors.Is(err, context.DeadlineExceeded) {
			view, err = h.flow.Render(c.Request.Context(), sess.ID)
		}
	} else {
		view, err = h.flow.Render(c.Request.Context(), sess.ID)
	}
	if err != nil {
		log.Error().Err(err).Str("session", sess.ID).Msg("render failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "render failed"})
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) download(c *gin.Context) {
	sess, ok := h.currentSession(c)
	if !ok {
		return
	}
	kind, err := flow.ParseDownloadKind(c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown download"})
		return
	}
	att, err := h.flow.Download(c.Request.Context(), sess.ID, kind)
	if err != nil {
		if errors.Is(err, flow.ErrNoResult) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no prediction result"})
			return
		}
		log.Warn().Err(err).Str("session", sess.ID).Str("kind", string(kind)).Msg("download unavailable")
		c.JSON(http.StatusNotFound, gin.H{"error": "file unavailable"})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, att.FileName))
	c.Data(http.StatusOK, att.MIMEType, att.Data)
}

func (h *Handler) predictions(c *gin.Context) {
	sess, ok := h.currentSession(c)
	if !ok {
		return
	}
	list, err := h.workspace.ListPredictions(c.Request.Context(), sess.ID, 50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(list) == 0 {
		list = make([]models.Prediction, 0)
	}
	c.JSON(http.StatusOK, gin.H{"predictions": list})
}

func (h *Handler) endSession(c *gin.Context) {
	sess, ok := h.currentSession(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := h.flow.End(ctx, sess.ID); err != nil {
		log.Warn().Err(err).Str("session", sess.ID).Msg("discard session result failed")
	}
	if err := h.sessions.Revoke(ctx, sess.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "end session failed"})
		return
	}
	h.sessions.ClearCookies(c)
	if wantsHTML(c) {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	c.Status(http.StatusNoContent)
}

// respondView answers browsers with a redirect back to the page and API
// clients with the view as JSON.
func (h *Handler) respondView(c *gin.Context, status int, view *flow.View) {
	if wantsHTML(c) {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	c.JSON(status, view)
}

func wantsHTML(c *gin.Context) bool {
	return c.NegotiateFormat(gin.MIMEJSON, gin.MIMEHTML) == gin.MIMEHTML
}

func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n+1<<20)
		c.Next()
	}
}
