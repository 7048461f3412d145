package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"verax/internal/collection"
	"verax/internal/payout"
	"verax/internal/storage"
	"verax/internal/store"
)

// errorResponse is the body of every non-2xx answer.
type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var validation *payout.ValidationError
	switch {
	case errors.As(err, &validation),
		errors.Is(err, collection.ErrIssuerRequired),
		errors.Is(err, collection.ErrDateRequired),
		errors.Is(err, collection.ErrInvalidDate):
		return http.StatusBadRequest
	case errors.Is(err, payout.ErrNotRequestOwner):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound), errors.Is(err, storage.ErrObjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, payout.ErrInvalidTransition),
		errors.Is(err, payout.ErrReceiptRequired),
		errors.Is(err, payout.ErrNothingEligible),
		errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as JSON. Server errors get a generic message; the detail
// only goes to the log through c.Error.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		c.AbortWithStatusJSON(status, errorResponse{Error: "internal error, the operation was not applied"})
		return
	}

	resp := errorResponse{Error: err.Error()}
	var validation *payout.ValidationError
	if errors.As(err, &validation) {
		resp.Error = validation.Message
		resp.Field = validation.Field
	}
	c.AbortWithStatusJSON(status, resp)
}

func badRequest(c *gin.Context, field, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: message, Field: field})
}
