package apperr

import (
	"fmt"
	"net/http"
	"testing"
)

func TestCodeAndStatusFollowWrappedSentinels(t *testing.T) {
	cases := []struct {
		err    error
		code   string
		status int
	}{
		{fmt.Errorf("order ORD-1: %w", ErrInvalidTransition), "invalid_transition", http.StatusConflict},
		{fmt.Errorf("verify: %w", ErrSignatureInvalid), "signature_invalid", http.StatusBadRequest},
		{ErrForbidden, "forbidden", http.StatusForbidden},
		{fmt.Errorf("checkout: %w", ErrSessionBusy), "session_busy", http.StatusConflict},
		{fmt.Errorf("create: %w", ErrGatewayUnavailable), "gateway_unavailable", http.StatusServiceUnavailable},
		{fmt.Errorf("boom"), "internal", http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := Code(c.err); got != c.code {
			t.Fatalf("Code(%v) = %q, want %q", c.err, got, c.code)
		}
		if got := HTTPStatus(c.err); got != c.status {
			t.Fatalf("HTTPStatus(%v) = %d, want %d", c.err, got, c.status)
		}
	}
}

func TestIllegalCancellationBeatsInvalidTransition(t *testing.T) {
	err := fmt.Errorf("%w: %w", ErrIllegalCancellation, ErrInvalidTransition)
	if Code(err) != "illegal_cancellation" {
		t.Fatalf("expected illegal_cancellation, got %s", Code(err))
	}
	if IsClientError(err) != true {
		t.Fatalf("expected client error")
	}
}
