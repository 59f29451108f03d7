package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIs(t *testing.T) {
	err := Validation("empty body")
	if !Is(err, CodeValidation) {
		t.Error("expected validation code")
	}
	if Is(err, CodeNotFound) {
		t.Error("matched wrong code")
	}
	if Is(errors.New("plain"), CodeValidation) {
		t.Error("matched non-app error")
	}

	wrapped := fmt.Errorf("handling request: %w", NotFound("conversation"))
	if !Is(wrapped, CodeNotFound) {
		t.Error("expected code through wrapping")
	}
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Validation("bad"), http.StatusBadRequest},
		{NotFound("message"), http.StatusNotFound},
		{MalformedPayload("no entries"), http.StatusBadRequest},
		{Internal("query failed", errors.New("disk")), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := StatusOf(tc.err); got != tc.want {
			t.Errorf("StatusOf(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := Internal("insert failed", cause)
	if !errors.Is(err, cause) {
		t.Error("cause not reachable through Unwrap")
	}
}
