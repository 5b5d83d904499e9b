package textnorm

import (
	"reflect"
	"testing"
)

func TestStripAccents(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"programação", "programacao"},
		{"lógica", "logica"},
		{"Saúde", "Saude"},
		{"already plain", "already plain"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := StripAccents(tc.in); got != tc.want {
			t.Errorf("StripAccents(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFold(t *testing.T) {
	if got := Fold("Programação em GO"); got != "programacao em go" {
		t.Errorf("Fold = %q", got)
	}
}

func TestClean(t *testing.T) {
	if got := Clean("  quero   aprender\n\tpython  "); got != "quero aprender python" {
		t.Errorf("Clean = %q", got)
	}
	if got := Clean("   "); got != "" {
		t.Errorf("Clean whitespace-only = %q, want empty", got)
	}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("Quero aprender Programação, do zero!")
	want := []string{"quero", "aprender", "programacao", "do", "zero"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize = %v, want %v", got, want)
	}

	if got := Tokenize(""); got != nil {
		t.Errorf("Tokenize empty = %v, want nil", got)
	}
}

func TestTokenSet(t *testing.T) {
	set := TokenSet("dados dados excel")
	if len(set) != 2 {
		t.Fatalf("expected 2 distinct tokens, got %d", len(set))
	}
	if _, ok := set["excel"]; !ok {
		t.Error("expected token excel in set")
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 180); got != "short" {
		t.Errorf("Truncate short = %q", got)
	}

	long := ""
	for i := 0; i < 100; i++ {
		long += "ab"
	}
	got := Truncate(long, 180)
	if len([]rune(got)) != 180 {
		t.Errorf("expected 180 runes, got %d", len([]rune(got)))
	}
	if got[len(got)-3:] != "..." {
		t.Errorf("expected ellipsis suffix, got %q", got[len(got)-3:])
	}
}
