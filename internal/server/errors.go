package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hay-kot/wasend/internal/core/session"
)

// Code is the machine-readable error code in the response envelope.
type Code string

const (
	CodeBadRequest          Code = "BAD_REQUEST"
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeNotFound            Code = "NOT_FOUND"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeInternal            Code = "INTERNAL_ERROR"
	CodeServiceUnavailable  Code = "SERVICE_UNAVAILABLE"
	CodeNotReady            Code = "WHATSAPP_NOT_READY"
	CodeClientError         Code = "WHATSAPP_CLIENT_ERROR"
	CodeNumberNotRegistered Code = "NUMBER_NOT_REGISTERED"
	CodeInvalidNumberFormat Code = "INVALID_NUMBER_FORMAT"
	CodeSendFailed          Code = "MESSAGE_SEND_FAILED"
)

// ErrorBody is the payload of every error response.
type ErrorBody struct {
	Code      Code      `json:"code"`
	Message   string    `json:"message"`
	Details   any       `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorResponse is the envelope written for every failed request.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

func abortError(c *gin.Context, status int, code Code, message string, details any) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorBody{
			Code:      code,
			Message:   message,
			Details:   details,
			Timestamp: time.Now().UTC(),
		},
	})
}

// statusFor maps a failure kind to its HTTP status and envelope code.
func statusFor(kind session.Kind) (int, Code) {
	switch kind {
	case session.KindNotReady, session.KindAuthFailure:
		return http.StatusServiceUnavailable, CodeNotReady
	case session.KindRuntimeNotFound:
		return http.StatusServiceUnavailable, CodeClientError
	case session.KindRecipientNotRegistered:
		return http.StatusBadRequest, CodeNumberNotRegistered
	case session.KindInvalidAddressFormat:
		return http.StatusBadRequest, CodeInvalidNumberFormat
	case session.KindRecipientResolutionFailed, session.KindSendFailed:
		return http.StatusInternalServerError, CodeSendFailed
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// details merges the cause into base when debug output is enabled.
func (s *Server) details(base gin.H, cause error) any {
	if s.cfg.Debug && cause != nil {
		if base == nil {
			base = gin.H{}
		}
		base["cause"] = cause.Error()
	}
	if len(base) == 0 {
		return nil
	}
	return base
}

// abortKind writes the envelope for a session error. Errors without a kind
// are reported as internal errors.
func (s *Server) abortKind(c *gin.Context, err error, details gin.H) {
	kind := session.KindOf(err)
	status, code := statusFor(kind)

	var serr *session.Error
	if errors.As(err, &serr) && serr.Detail != "" && serr.Detail != kind.Message() {
		if details == nil {
			details = gin.H{}
		}
		details["reason"] = serr.Detail
	}

	abortError(c, status, code, kind.Message(), s.details(details, err))
}
