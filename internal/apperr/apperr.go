// Package apperr holds the error taxonomy shared by the order, payment and
// delivery services, and the mapping of those errors onto client-facing codes.
package apperr

import (
	"errors"
	"net/http"
)

var (
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrIllegalCancellation = errors.New("order can no longer be cancelled")
	ErrGatewayUnavailable  = errors.New("payment gateway unavailable")
	ErrOrderNotFound       = errors.New("order not found")
	ErrSignatureInvalid    = errors.New("payment signature invalid")
	ErrAlreadyAssigned     = errors.New("order already assigned to another driver")
	ErrInvalidCoordinates  = errors.New("invalid coordinates")
	ErrForbidden           = errors.New("forbidden")
	ErrDuplicatePayment    = errors.New("duplicate payment")

	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("not found")
	ErrAddressLimit        = errors.New("saved address limit reached")
	ErrSessionNotFound     = errors.New("session not found or expired")
	ErrSessionBusy         = errors.New("session checkout already in progress")
	ErrMenuItemUnavailable = errors.New("menu item unavailable")
)

type entry struct {
	err    error
	code   string
	status int
}

// ordered so that the most specific sentinel wins when errors are joined.
var table = []entry{
	{ErrSignatureInvalid, "signature_invalid", http.StatusBadRequest},
	{ErrDuplicatePayment, "duplicate_payment", http.StatusConflict},
	{ErrAlreadyAssigned, "already_assigned", http.StatusConflict},
	{ErrIllegalCancellation, "illegal_cancellation", http.StatusConflict},
	{ErrInvalidTransition, "invalid_transition", http.StatusConflict},
	{ErrInvalidCoordinates, "invalid_coordinates", http.StatusBadRequest},
	{ErrForbidden, "forbidden", http.StatusForbidden},
	{ErrOrderNotFound, "order_not_found", http.StatusNotFound},
	{ErrSessionNotFound, "session_not_found", http.StatusNotFound},
	{ErrSessionBusy, "session_busy", http.StatusConflict},
	{ErrNotFound, "not_found", http.StatusNotFound},
	{ErrAddressLimit, "address_limit", http.StatusBadRequest},
	{ErrMenuItemUnavailable, "menu_item_unavailable", http.StatusBadRequest},
	{ErrValidation, "validation", http.StatusBadRequest},
	{ErrGatewayUnavailable, "gateway_unavailable", http.StatusServiceUnavailable},
}

// Code returns the machine-readable reason for err, or "internal".
func Code(err error) string {
	for _, e := range table {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return "internal"
}

// HTTPStatus maps err onto a response status. Unknown errors are server errors.
func HTTPStatus(err error) int {
	for _, e := range table {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// IsClientError reports whether err was caused by the caller's input.
func IsClientError(err error) bool {
	s := HTTPStatus(err)
	return s >= 400 && s < 500
}
