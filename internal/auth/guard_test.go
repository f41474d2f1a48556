package auth

import (
	"strings"
	"testing"
)

func TestGuardAuthorize(t *testing.T) {
	g := NewGuard("s3cret")
	if !g.Authorize("s3cret") {
		t.Fatal("Authorize(correct)=false, want true")
	}
	if g.Authorize("wrong") {
		t.Fatal("Authorize(wrong)=true, want false")
	}
	if g.Authorize("") {
		t.Fatal("Authorize(empty)=true, want false")
	}
}

func TestGuardDisabledWhenUnconfigured(t *testing.T) {
	g := NewGuard("")
	if g.Enabled() {
		t.Fatal("Enabled()=true, want false")
	}
	if !g.Authorize("anything") {
		t.Fatal("Authorize with empty configured token=false, want true")
	}
}

func TestCallerHintNotReversible(t *testing.T) {
	hint := CallerHint("s3cret")
	if strings.Contains(hint, "s3cret") {
		t.Fatalf("hint %q contains the credential", hint)
	}
	if len(hint) != 8 {
		t.Fatalf("hint length=%d, want 8", len(hint))
	}
	if CallerHint("") != "anonymous" {
		t.Fatalf("CallerHint(empty)=%q, want anonymous", CallerHint(""))
	}
	if CallerHint("s3cret") != hint {
		t.Fatal("hint is not stable for identical input")
	}
}
