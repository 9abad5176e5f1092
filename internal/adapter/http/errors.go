package httpx

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"log-inspection/internal/shared"
)

// errorResponse is the JSON body of every error reply.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusOf maps an error kind to an HTTP status.
func statusOf(err error) int {
	switch shared.KindOf(err) {
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindValidation, shared.KindConfig:
		return http.StatusBadRequest
	case shared.KindInvalidState:
		return http.StatusConflict
	case shared.KindDependencyFailure:
		return http.StatusServiceUnavailable
	case shared.KindTimeout:
		return http.StatusGatewayTimeout
	case shared.KindCanceled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError writes the JSON error reply and records err for the access log.
func abortWithError(c *gin.Context, err error) {
	status := statusOf(err)
	_ = c.Error(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	c.AbortWithStatusJSON(status, errorResponse{
		Error:   shared.KindOf(err).String(),
		Message: msg,
	})
}
