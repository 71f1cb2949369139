package normalize

import (
	"strings"
	"testing"
)

func TestText_Empty(t *testing.T) {
	if got := Text(""); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
	if got := Text(" \t\r\n "); got != "" {
		t.Fatalf("expected whitespace-only input to become empty, got %q", got)
	}
}

func TestText_FixesOCRSenor(t *testing.T) {
	cases := map[string]string{
		"el Sefior JUAN":   "el Señor JUAN",
		"el Senor JUAN":    "el Señor JUAN",
		"EL SEFIOR JUAN":   "EL SEÑOR JUAN",
		"la sefiora ANA":   "la señora ANA",
		"Senor Senor Paz":  "Señor Señor Paz",
		"el Señor ya bien": "el Señor ya bien",
	}
	for in, want := range cases {
		if got := Text(in); got != want {
			t.Fatalf("Text(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestText_GlyphsAndQuotes(t *testing.T) {
	in := "o\ufb01cina \u201cPaz\u201d\u200b d\u2019Arco\u00ae"
	want := `oficina "Paz" d'Arco`
	if got := Text(in); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestText_DehyphenatesAndCollapses(t *testing.T) {
	in := "GONZÁ-\nLEZ   vive\t\taquí\r\n\r\n\r\n\r\nfin"
	got := Text(in)
	if !strings.Contains(got, "GONZÁLEZ vive aquí") {
		t.Fatalf("expected joined word and collapsed spaces; got %q", got)
	}
	if strings.Contains(got, "\n\n\n") {
		t.Fatalf("expected at most one blank line; got %q", got)
	}
	if !strings.HasSuffix(got, "aquí\n\nfin") {
		t.Fatalf("expected blank run collapsed to two newlines; got %q", got)
	}
}

func TestText_InvalidUTF8(t *testing.T) {
	got := Text("abc\xff\xfedef")
	if got != "abcdef" {
		t.Fatalf("got %q", got)
	}
}

func TestFoldAndKey(t *testing.T) {
	if got := Fold("PÉREZ Núñez"); got != "perez nunez" {
		t.Fatalf("Fold: got %q", got)
	}
	if got := Key("  Juan   CARLOS\nPérez "); got != "juan carlos perez" {
		t.Fatalf("Key: got %q", got)
	}
}

func TestTitle_Particles(t *testing.T) {
	isParticle := func(w string) bool {
		switch w {
		case "de", "del", "la", "san":
			return true
		}
		return false
	}
	cases := map[string]string{
		"JUAN CARLOS PÉREZ GONZÁLEZ": "Juan Carlos Pérez González",
		"MARÍA DE LA CRUZ":           "María de la Cruz",
		"DE LA TORRE ANA":            "De la Torre Ana",
		"luis SAN martín":            "Luis san Martín",
		"ANA PÉREZ-GÓMEZ":            "Ana Pérez-Gómez",
	}
	for in, want := range cases {
		if got := Title(in, isParticle); got != want {
			t.Fatalf("Title(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDigitsAndWindow(t *testing.T) {
	if got := Digits("1.234.567-8"); got != "12345678" {
		t.Fatalf("Digits: got %q", got)
	}
	s := "añoño"
	// byte 2 is inside "ñ"; the window must widen to a rune boundary
	if got := Window(s, 2, 3); got != "ñ" {
		t.Fatalf("Window: got %q", got)
	}
	if got := Window(s, -5, 100); got != s {
		t.Fatalf("Window clamp: got %q", got)
	}
	if got := Window(s, 4, 2); got != "" {
		t.Fatalf("Window empty: got %q", got)
	}
}
