package handler

import (
	"log/slog"
	"net/http"

	"adcert/internal/apperr"
	"adcert/internal/logging"
	"adcert/pkg/response"

	"github.com/gin-gonic/gin"
)

// statusFor maps an error kind to the HTTP status the API answers with.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindUnauthorized:
		return http.StatusForbidden
	case apperr.KindInvalidTransition, apperr.KindDuplicateCertificate:
		return http.StatusConflict
	case apperr.KindCertificateIssuanceFailed:
		return http.StatusServiceUnavailable
	case apperr.KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with the status and code of its kind. data is
// included for partial successes and may be nil.
func respondError(c *gin.Context, err error, data interface{}) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)

	msg := err.Error()
	if kind == apperr.KindInternal {
		logging.Error(c.Request.Context(), "internal error", slog.Any("err", err))
		msg = "Internal server error"
	}
	_ = c.Error(err)
	c.JSON(status, response.Failure(status, string(kind), msg, data))
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, response.Failure(http.StatusBadRequest, string(apperr.KindInvalidInput), msg, nil))
}

// actorID returns the authenticated subject set by middleware.RequireRole.
func actorID(c *gin.Context) (string, bool) {
	v, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "User ID not found in context"))
		return "", false
	}
	id, ok := v.(string)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid User ID format"))
		return "", false
	}
	return id, true
}
