package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vending-panel-backend/internal/access"
	"vending-panel-backend/internal/blob"
	"vending-panel-backend/internal/identity"
	"vending-panel-backend/internal/parse"
	"vending-panel-backend/internal/session"
	"vending-panel-backend/internal/store"
)

// statusFor maps domain errors onto HTTP status codes. Anything unknown is
// a failed call to a backing service.
func statusFor(err error) int {
	switch {
	case errors.Is(err, access.ErrInvalidCredentials), errors.Is(err, session.ErrNoSession):
		return http.StatusUnauthorized
	case errors.Is(err, access.ErrPendingApproval), errors.Is(err, access.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, access.ErrUnknownMachine),
		errors.Is(err, parse.ErrInvalidKey),
		errors.Is(err, identity.ErrRejected),
		errors.Is(err, blob.ErrUnsupportedImage):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusBadGateway
}

// fail writes err as a JSON error body and aborts the request.
func (h *Handler) fail(c *gin.Context, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.Error(err)
	c.AbortWithStatusJSON(code, gin.H{"error": err.Error()})
}
