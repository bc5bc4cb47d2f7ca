package apperr

import (
	"fmt"
	"net/http"
	"testing"
)

func TestGetKindUnwrapsWrappedErrors(t *testing.T) {
	base := Conflict("lead already qualified")
	wrapped := fmt.Errorf("qualify lead: %w", base)

	if got := GetKind(wrapped); got != KindConflict {
		t.Fatalf("expected KindConflict, got %v", got)
	}
	if !Is(wrapped, KindConflict) {
		t.Fatalf("expected Is to match wrapped conflict")
	}
	if Is(fmt.Errorf("plain"), KindConflict) {
		t.Fatalf("plain errors must not match a kind")
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err  *Error
		want int
	}{
		{NotFound("x"), http.StatusNotFound},
		{Validation("x"), http.StatusBadRequest},
		{Conflict("x"), http.StatusConflict},
		{Forbidden("x"), http.StatusForbidden},
		{Unavailable("x"), http.StatusServiceUnavailable},
		{Internal("x"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		if got := tc.err.HTTPStatus(); got != tc.want {
			t.Fatalf("kind %v: expected %d, got %d", tc.err.Kind, tc.want, got)
		}
	}
}

func TestErrorIncludesOp(t *testing.T) {
	err := NotFound("deal not found").WithOp("deals.MoveStage")
	if err.Error() != "deals.MoveStage: deal not found" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
