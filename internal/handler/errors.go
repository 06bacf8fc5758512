package handler

import (
	"errors"
	"net/http"

	"procurement/internal/middleware"
	"procurement/internal/workflow"
	"procurement/pkg/response"

	"github.com/gin-gonic/gin"
)

// Error codes returned in response.Response.Code
const (
	CodeInvalidTransition     = "invalid_transition"
	CodeUnauthorized          = "unauthorized"
	CodeMissingReason         = "missing_reason"
	CodeValidation            = "validation_error"
	CodeOverReceipt           = "over_receipt"
	CodeNoSelectableQuotation = "no_selectable_quotation"
	CodeConcurrentUpdate      = "concurrent_modification"
	CodeNotFound              = "not_found"
	CodeInternal              = "internal_error"
)

var errorStatus = []struct {
	target error
	status int
	code   string
}{
	{workflow.ErrInvalidTransition, http.StatusConflict, CodeInvalidTransition},
	{workflow.ErrUnauthorized, http.StatusForbidden, CodeUnauthorized},
	{workflow.ErrMissingReason, http.StatusBadRequest, CodeMissingReason},
	{workflow.ErrValidation, http.StatusBadRequest, CodeValidation},
	{workflow.ErrOverReceipt, http.StatusUnprocessableEntity, CodeOverReceipt},
	{workflow.ErrNoSelectableQuotation, http.StatusUnprocessableEntity, CodeNoSelectableQuotation},
	{workflow.ErrConcurrentModification, http.StatusConflict, CodeConcurrentUpdate},
	{workflow.ErrNotFound, http.StatusNotFound, CodeNotFound},
}

// classify maps a service error to its HTTP status and error code.
func classify(err error) (int, string) {
	for _, e := range errorStatus {
		if errors.Is(err, e.target) {
			return e.status, e.code
		}
	}
	return http.StatusInternalServerError, CodeInternal
}

// respondError writes err with the status its kind maps to. Internal errors are
// attached to the context for the request logger and hidden from the client.
func respondError(c *gin.Context, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		msg = "Internal server error"
	}
	c.JSON(status, response.ErrorWithCode(status, code, msg))
}

func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, response.ErrorWithCode(http.StatusBadRequest, CodeValidation, "Invalid request payload: "+err.Error()))
}

// bindOptionalJSON binds a body that may be absent.
func bindOptionalJSON(c *gin.Context, out interface{}) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(out)
}

func currentUserID(c *gin.Context) string {
	return c.GetString(middleware.ContextUserID)
}
