package xid

import (
	"strings"
	"testing"
)

func TestNewUsesPrefixAndIsUnique(t *testing.T) {
	a := New("unit")
	b := New("unit")
	if !strings.HasPrefix(a, "unit-") {
		t.Fatalf("expected unit- prefix, got %q", a)
	}
	if a == b {
		t.Fatalf("expected distinct ids, got %q twice", a)
	}
}
