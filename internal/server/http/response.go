package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/and161185/econtract/internal/errs"
)

// Envelope codes. Zero means success.
const (
	CodeOK           = 0
	CodeBadRequest   = 40001
	CodeBadStatus    = 40002
	CodeUnknownParty = 40003
	CodeUnauthorized = 40100
	CodeForbidden    = 40300
	CodeNotFound     = 40400
	CodeConflict     = 40900
	CodeDuplicate    = 40901
	CodeDenied       = 40902
	CodeTooLarge     = 41300
	CodeRateLimited  = 42900
	CodeInternal     = 50000
	CodeUnavailable  = 50300
)

// Envelope is the body of every API response. Errors carry "data": null.
type Envelope struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data"`
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, Envelope{Code: CodeOK, Msg: "ok", Data: data})
}

func fail(c *gin.Context, status, code int, msg string) {
	c.AbortWithStatusJSON(status, Envelope{Code: code, Msg: msg})
}

// classify maps a service error to HTTP status and envelope code.
func classify(err error) (int, int) {
	switch {
	case errors.Is(err, errs.ErrInvalidStatus):
		return http.StatusBadRequest, CodeBadStatus
	case errors.Is(err, errs.ErrPartyNotFound):
		return http.StatusBadRequest, CodeUnknownParty
	case errors.Is(err, errs.ErrInvalidInput):
		return http.StatusBadRequest, CodeBadRequest
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized, CodeUnauthorized
	case errors.Is(err, errs.ErrForbidden):
		return http.StatusForbidden, CodeForbidden
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, errs.ErrAlreadyExists):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, errs.ErrDuplicateParty):
		return http.StatusConflict, CodeDuplicate
	case errors.Is(err, errs.ErrTransitionDenied):
		return http.StatusConflict, CodeDenied
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests, CodeRateLimited
	case errors.Is(err, errs.ErrUnavailable):
		return http.StatusServiceUnavailable, CodeUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeInternal
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// respondError writes the error envelope. Internal errors are logged and
// their text is not exposed.
func (h *Handler) respondError(c *gin.Context, op string, err error) {
	status, code := classify(err)
	msg := err.Error()
	if code == CodeInternal {
		h.log.Error("internal error",
			zap.String("op", op), zap.String("request_id", GetRequestID(c)), zap.Error(err))
		msg = "internal error"
	}
	fail(c, status, code, msg)
}
