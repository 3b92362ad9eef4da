// Package handlers provides the HTTP handlers of the local API.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pandeptwidyaop/app-chooser/internal/catalog"
	"github.com/pandeptwidyaop/app-chooser/internal/robot"
	"github.com/pandeptwidyaop/app-chooser/internal/services"
	"github.com/pandeptwidyaop/app-chooser/internal/session"
)

// statusFor maps an engine error onto an HTTP status code.
func statusFor(err error) int {
	var ambiguous *session.AmbiguousClientError
	switch {
	case errors.Is(err, session.ErrAppNotFound),
		errors.Is(err, catalog.ErrAppNotFound),
		errors.Is(err, catalog.ErrDetailsUnavailable),
		errors.Is(err, services.ErrClientNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrSessionClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, session.ErrExchangeUnavailable):
		return http.StatusNotImplemented
	case errors.Is(err, session.ErrInvalidMode), errors.Is(err, catalog.ErrInvalidView):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrBusy),
		errors.Is(err, session.ErrNoPendingConfirm),
		errors.Is(err, session.ErrStaleCompletion),
		errors.Is(err, session.ErrMultiAppNotSupported),
		errors.Is(err, catalog.ErrNoSelection),
		errors.Is(err, catalog.ErrSelectionSuperseded),
		errors.Is(err, services.ErrClientExists):
		return http.StatusConflict
	case errors.As(err, &ambiguous):
		return http.StatusUnprocessableEntity
	case robot.IsTransport(err):
		return http.StatusBadGateway
	}
	if _, ok := robot.AsRejection(err); ok {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// respondError writes err with the status line text the UI shows.
func respondError(c *gin.Context, err error) {
	body := gin.H{
		"error": session.StatusText(err),
		"class": session.Classify(err),
	}
	if r, ok := robot.AsRejection(err); ok {
		body["code"] = r.Code
	}
	c.JSON(statusFor(err), body)
}
