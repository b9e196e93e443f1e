package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/lawgraph-backend/internal/domain"
	"github.com/yungbote/lawgraph-backend/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondMapped translates domain sentinels into the API error codes.
func RespondMapped(c *gin.Context, err error) {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		RespondError(c, ae.Status, ae.Code, ae.Err)
		return
	}
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		RespondError(c, http.StatusBadRequest, "invalid_query", err)
	case errors.Is(err, domain.ErrNotReady):
		RespondError(c, http.StatusServiceUnavailable, "not_ready", err)
	case errors.Is(err, domain.ErrDeadlineExceeded),
		errors.Is(err, domain.ErrPartialResultsUnavailable):
		RespondError(c, http.StatusGatewayTimeout, "deadline_exceeded", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal_error", err)
	}
}
