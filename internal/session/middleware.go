package session

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"relevancy/internal/models"
)

const (
	sessionContextKey = "relevancy_session"
	csrfContextKey    = "relevancy_csrf"
)

// Middleware attaches a session to every request, issuing a fresh one (and its
// cookies) when the caller has none or it has expired.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if id := s.extractSessionID(c); id != "" {
			sess, err := s.Validate(ctx, id)
			if err == nil {
				c.Set(sessionContextKey, sess)
				if token, err := c.Cookie(s.csrfCookieName); err == nil {
					c.Set(csrfContextKey, token)
				}
				c.Next()
				return
			}
			log.Debug().Err(err).Msg("session rejected, issuing a new one")
		}

		sess, err := s.Issue(ctx)
		if err != nil {
			log.Error().Err(err).Msg("issue session failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "could not start session"})
			return
		}
		csrfToken, err := generateToken()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "could not start session"})
			return
		}
		s.setCookies(c, sess.ID, csrfToken)
		c.Set(sessionContextKey, sess)
		c.Set(csrfContextKey, csrfToken)
		c.Next()
	}
}

// FromContext retrieves the session attached by the middleware.
func FromContext(c *gin.Context) (*models.Session, bool) {
	val, ok := c.Get(sessionContextKey)
	if !ok {
		return nil, false
	}
	sess, ok := val.(*models.Session)
	return sess, ok && sess != nil
}

// CSRFTokenFromContext returns the CSRF token to embed in rendered forms.
func CSRFTokenFromContext(c *gin.Context) string {
	val, ok := c.Get(csrfContextKey)
	if !ok {
		return ""
	}
	token, _ := val.(string)
	return token
}

// ClearCookies expires both session cookies.
func (s *Service) ClearCookies(c *gin.Context) {
	for _, name := range []string{s.cookieName, s.csrfCookieName} {
		http.SetCookie(c.Writer, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   gin.Mode() == gin.ReleaseMode,
			HttpOnly: name == s.cookieName,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func (s *Service) setCookies(c *gin.Context, sessionID, csrfToken string) {
	ttl := int(s.ttl.Seconds())
	if ttl <= 0 {
		ttl = 3600
	}
	secure := gin.Mode() == gin.ReleaseMode
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     s.cookieName,
		Value:    sessionID,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     s.csrfCookieName,
		Value:    csrfToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Service) extractSessionID(c *gin.Context) string {
	authHeader := c.GetHeader(s.headerName)
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	if id, err := c.Cookie(s.cookieName); err == nil && id != "" {
		return id
	}
	return ""
}
