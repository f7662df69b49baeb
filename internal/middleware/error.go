package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// errorBody matches the handler response envelope so clients see one error
// shape regardless of where the failure was rendered.
type errorBody struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func internalErrorBody(requestID string) errorBody {
	return errorBody{
		Status:    "error",
		Message:   "internal server error",
		RequestID: requestID,
	}
}

// ErrorHandler logs every error recorded on the context and renders a
// sanitized 500 when no handler has written a response yet. Internal error
// detail goes to the log only, never into the body.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		requestID := c.GetString(ContextRequestID)
		for _, e := range c.Errors {
			log.Error().
				Err(e.Err).
				Str("request_id", requestID).
				Str("method", c.Request.Method).
				Str("path", c.Request.URL.Path).
				Str("client_ip", c.ClientIP()).
				Msg("request failed")
		}

		if c.Writer.Written() {
			return
		}
		c.JSON(http.StatusInternalServerError, internalErrorBody(requestID))
	}
}
