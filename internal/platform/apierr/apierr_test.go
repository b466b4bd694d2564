package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestFrom(t *testing.T) {
	inner := BadRequest("unknown_persona", errors.New("unknown persona: pirate"))
	wrapped := fmt.Errorf("start session: %w", inner)

	got := From(wrapped, "internal")
	if got.Status != http.StatusBadRequest || got.Code != "unknown_persona" {
		t.Fatalf("got=%+v", got)
	}

	plain := From(errors.New("boom"), "generation_failed")
	if plain.Status != http.StatusInternalServerError || plain.Code != "generation_failed" {
		t.Fatalf("plain=%+v", plain)
	}
	if From(nil, "x") != nil {
		t.Fatalf("expected nil")
	}
}
