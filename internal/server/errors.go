package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/smallbiznis/creditline/internal/account/domain"
	apikeydomain "github.com/smallbiznis/creditline/internal/apikey/domain"
	profiledomain "github.com/smallbiznis/creditline/internal/profile/domain"
	usagedomain "github.com/smallbiznis/creditline/internal/usage/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

const (
	errorTypeInvalidRequest     = "invalid_request"
	errorTypeUsageLimitExceeded = "usage_limit_exceeded"
	errorTypeRateLimited        = "rate_limited"
	errorTypeUnauthorized       = "unauthorized"
	errorTypeNotFound           = "not_found"
	errorTypeServiceUnavailable = "service_unavailable"
	errorTypeInternal           = "internal_error"
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    errorTypeInternal,
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    errorTypeInvalidRequest,
			Message: "invalid request",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    errorTypeInvalidRequest,
			Message: "invalid request",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, usagedomain.ErrUsageLimitExceeded):
		return http.StatusForbidden, errorPayload{
			Type:    errorTypeUsageLimitExceeded,
			Message: "usage limit exceeded for the current period",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    errorTypeRateLimited,
			Message: "too many requests",
		}
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, apikeydomain.ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    errorTypeUnauthorized,
			Message: "unauthorized",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    errorTypeNotFound,
			Message: "not found",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    errorTypeServiceUnavailable,
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    errorTypeInternal,
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog reports the response type and the most specific code for err.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	if payload.Type == errorTypeInternal {
		code = string(usagedomain.KindOf(err))
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, usagedomain.ErrInvalidRequest):
		return true
	case errors.Is(err, apikeydomain.ErrInvalidName),
		errors.Is(err, apikeydomain.ErrInvalidKeyID),
		errors.Is(err, apikeydomain.ErrInvalidUser),
		errors.Is(err, profiledomain.ErrInvalidPlan),
		errors.Is(err, profiledomain.ErrInvalidPlanStatus),
		errors.Is(err, accountdomain.ErrInvalidUser):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, apikeydomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

// validationErrorCode prefers the specific reason over the generic invalid_request.
func validationErrorCode(err error) string {
	for _, reason := range []error{
		usagedomain.ErrInvalidUsageAmount,
		usagedomain.ErrInvalidUsageTotal,
		usagedomain.ErrInvalidFeature,
		usagedomain.ErrInvalidUser,
		usagedomain.ErrInvalidPageToken,
		usagedomain.ErrInvalidPeriodFilter,
	} {
		if errors.Is(err, reason) {
			return reason.Error()
		}
	}
	if errors.Is(err, ErrInvalidRequest) || errors.Is(err, usagedomain.ErrInvalidRequest) {
		return "invalid_request"
	}
	return err.Error()
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "invalid_usage_amount", "invalid_usage_total":
		return "amount"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "invalid_usage_amount":
		return "amount must be a positive whole number"
	case "invalid_feature":
		return "feature is required"
	default:
		return "invalid value"
	}
}
