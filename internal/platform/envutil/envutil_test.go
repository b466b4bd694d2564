package envutil

import "testing"

func TestInt(t *testing.T) {
	t.Setenv("NONO_TEST_INT", "42")
	if got := Int("NONO_TEST_INT", 7); got != 42 {
		t.Fatalf("got=%d", got)
	}
	t.Setenv("NONO_TEST_INT", "forty-two")
	if got := Int("NONO_TEST_INT", 7); got != 7 {
		t.Fatalf("fallback=%d", got)
	}
}

func TestBool(t *testing.T) {
	t.Setenv("NONO_TEST_BOOL", "yes")
	if !Bool("NONO_TEST_BOOL", false) {
		t.Fatalf("expected true")
	}
	t.Setenv("NONO_TEST_BOOL", "")
	if !Bool("NONO_TEST_BOOL", true) {
		t.Fatalf("expected default")
	}
}
