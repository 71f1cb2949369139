package app

import (
	"strings"
	"testing"
)

func TestAppendReproFooter_AppendsDeterministicFooter(t *testing.T) {
	base := "# PII extraction report\n"
	out := appendReproFooter(base, "chat:local", 3, true)
	if !strings.Contains(out, "Reproducibility:") {
		t.Fatalf("expected footer marker present; got:\n%s", out)
	}
	if !strings.Contains(out, "detector=chat:local; documents=3; detect_cache=true") {
		t.Fatalf("unexpected footer:\n%s", out)
	}
	if out := appendReproFooter(base, "", 1, false); !strings.Contains(out, "detector=none") {
		t.Fatalf("expected placeholder detector:\n%s", out)
	}
}
