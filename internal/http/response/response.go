package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/coursebuilder-backend/internal/credits"
	apperr "github.com/yungbote/coursebuilder-backend/internal/pkg/errors"
	"github.com/yungbote/coursebuilder-backend/internal/platform/apierr"
)

// HeaderErrorType tells clients which domain error produced a non-2xx response.
const HeaderErrorType = "X-Error-Type"

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
	c.AbortWithStatusJSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondServiceError maps an error from a service into the error envelope.
// Anything without a known mapping becomes an opaque 500.
func RespondServiceError(c *gin.Context, err error) {
	_ = c.Error(err)
	status, code, msg := Classify(err)
	if status == http.StatusPaymentRequired {
		c.Header(HeaderErrorType, "InsufficientCredits")
	}
	RespondError(c, status, code, errors.New(msg))
}

// Classify returns the status, code and client-safe message for err.
func Classify(err error) (int, string, string) {
	if errors.Is(err, credits.ErrInsufficientCredits) {
		return http.StatusPaymentRequired, "insufficient_credits", err.Error()
	}
	if ae, ok := apierr.From(err); ok {
		status := ae.Status
		if status == 0 {
			status = http.StatusInternalServerError
		}
		if status >= http.StatusInternalServerError {
			return status, orDefault(ae.Code, "internal_error"), http.StatusText(status)
		}
		return status, ae.Code, ae.Error()
	}
	switch {
	case errors.Is(err, apperr.ErrNotFound), errors.Is(err, apperr.ErrUnknownKind):
		return http.StatusNotFound, "not_found", err.Error()
	case errors.Is(err, apperr.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_argument", err.Error()
	case errors.Is(err, apperr.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized", err.Error()
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden, "forbidden", err.Error()
	}
	return http.StatusInternalServerError, "internal_error", "internal server error"
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
