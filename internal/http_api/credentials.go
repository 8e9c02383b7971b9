package http_api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wishliste/donum/internal/models"
)

const guestTokenHeader = "X-Guest-Token"

// bearerToken returns the access token of an "Authorization: Bearer" header.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// guestToken reads the guest credential from its header, falling back to
// the cookie.
func (s *HTTPServer) guestToken(c *gin.Context) string {
	if token := strings.TrimSpace(c.GetHeader(guestTokenHeader)); token != "" {
		return token
	}
	if token, err := c.Cookie(s.config.GuestCookieName); err == nil {
		return token
	}
	return ""
}

func (s *HTTPServer) viewer(c *gin.Context) models.ViewerInput {
	return models.ViewerInput{
		BearerToken: bearerToken(c),
		GuestToken:  s.guestToken(c),
	}
}

// setGuestToken hands a freshly issued guest token back to the client, both
// as a header and as a cookie living as long as the session.
func (s *HTTPServer) setGuestToken(c *gin.Context, token string, expiresAt time.Time) {
	c.Header(guestTokenHeader, token)

	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge <= 0 {
		maxAge = int(s.config.GuestTTL.Seconds())
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.config.GuestCookieName, token, maxAge, "/", "", !s.config.Development, true)
}

func (s *HTTPServer) clearGuestToken(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.config.GuestCookieName, "", -1, "/", "", !s.config.Development, true)
}
