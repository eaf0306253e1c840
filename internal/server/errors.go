package server

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/codem/internal/apperr"
)

// statusFor maps an error kind to its HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidArgument:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError responds with {kind, error} plus the upstream status and body
// when err carries them.
func writeError(c *gin.Context, err error) {
	body := gin.H{"kind": string(apperr.KindInternal), "error": "internal error"}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		body["kind"] = string(ae.Kind)
		body["error"] = ae.Message
		if ae.Status != 0 {
			body["status"] = ae.Status
		}
		if ae.Details != "" {
			body["details"] = ae.Details
		}
	}
	status := statusFor(apperr.KindOf(err))
	if status == http.StatusInternalServerError {
		log.Printf("server: %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.AbortWithStatusJSON(status, body)
}
