package document

import (
	"errors"
	"os"
	"strings"
	"testing"
)

func readFixture(t *testing.T) []byte {
	t.Helper()
	b, err := os.ReadFile("testdata/sermon.pdf")
	if err != nil {
		t.Fatalf("reading fixture: %v", err)
	}
	return b
}

func TestExtractText(t *testing.T) {
	text, err := ExtractText(readFixture(t))
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if !strings.Contains(text, "Blessed are the peacemakers") {
		t.Errorf("text = %q, want fixture sentence", text)
	}
}

func TestExtractText_NotPDF(t *testing.T) {
	_, err := ExtractText([]byte("hello world"))
	if !errors.Is(err, ErrNotPDF) {
		t.Errorf("err = %v, want ErrNotPDF", err)
	}
}

func TestExtractText_Truncated(t *testing.T) {
	b := readFixture(t)
	_, err := ExtractText(b[:len(b)/2])
	if err == nil {
		t.Error("expected error for truncated PDF")
	}
}

func TestIsPDF(t *testing.T) {
	if !IsPDF([]byte("%PDF-1.7\n")) {
		t.Error("IsPDF(header) = false")
	}
	if IsPDF([]byte("PK\x03\x04")) {
		t.Error("IsPDF(zip) = true")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"shalom", 3, "sha"},
		{"shalom", 10, "shalom"},
		{"שלום עליכם", 4, "שלום"},
		{"abc", 0, "abc"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
