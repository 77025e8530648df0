package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/justapithecus/deltaview/deltaview"
)

// statusFor maps a preview or listing error to an HTTP status.
// A DecodeError is checked first: a Delta table whose data file is missing
// is a broken table, not a missing object.
func statusFor(err error) int {
	var decodeErr *deltaview.DecodeError
	switch {
	case errors.As(err, &decodeErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, deltaview.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, deltaview.ErrInvalidKey),
		errors.Is(err, deltaview.ErrUnknownFormat),
		errors.Is(err, deltaview.ErrInvalidLimits):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

// abortJSON writes {"error": ...} with the mapped status.
func abortJSON(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
