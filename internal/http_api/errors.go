package http_api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wishliste/donum/internal/apperrors"
)

// statusOf maps an error kind to the HTTP status returned for it.
func statusOf(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindUnauthenticated, apperrors.KindExpiredIdentity, apperrors.KindRevoked:
		return http.StatusUnauthorized
	case apperrors.KindAuthorization:
		return http.StatusForbidden
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as the JSON error body. Internal failures are logged and
// their message is not exposed.
func (s *HTTPServer) fail(c *gin.Context, err error) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || appErr.Kind == apperrors.KindInternal {
		s.logger.Error("Request failed", "path", c.FullPath(), "error", err)
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Internal server error",
			"code":    apperrors.CodeInternal,
		})
		return
	}

	body := gin.H{
		"success": false,
		"error":   appErr.Message,
		"code":    appErr.Code,
	}
	if len(appErr.Metadata) > 0 {
		body["metadata"] = appErr.Metadata
	}
	c.JSON(statusOf(appErr.Kind), body)
}

func badRequest(message string) error {
	return apperrors.New(apperrors.KindValidation, apperrors.CodeBadRequest, message)
}
