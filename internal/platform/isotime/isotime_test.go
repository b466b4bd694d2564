package isotime

import (
	"testing"
	"time"
)

func TestFormatParseRoundTrip(t *testing.T) {
	in := time.Date(2024, 1, 1, 12, 30, 45, 123456000, time.FixedZone("CET", 3600))
	s := Format(in)
	if s != "2024-01-01T11:30:45.123456" {
		t.Fatalf("format=%q", s)
	}
	out, err := Parse(s)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !out.Equal(in) {
		t.Fatalf("out=%s in=%s", out, in)
	}
	if Format(out) != s {
		t.Fatalf("not string-stable: %q", Format(out))
	}
}

func TestParseLegacyForms(t *testing.T) {
	for _, s := range []string{"2024-01-01T00:00:00", "2024-01-01T00:00:00Z"} {
		if _, err := Parse(s); err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
	}
}
