package pdftext

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestSanitize(t *testing.T) {
	body := "%PDF-1.4\n1 0 obj\n<<>>\nendobj\n%%EOF\n"

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"clean", body, body},
		{"trailing newlines kept", body + "\r\n", body + "\r\n"},
		{"html appended", body + "<html><body>download page</body></html>", body},
		{"short tail kept", body + "  ", body + "  "},
		{"not a pdf", "hello %%EOF and more text after it", "hello %%EOF and more text after it"},
		{"no eof marker", "%PDF-1.4\ntruncated", "%PDF-1.4\ntruncated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitize([]byte(tt.input))
			if !bytes.Equal(got, []byte(tt.want)) {
				t.Errorf("sanitize() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractTextEmpty(t *testing.T) {
	if _, err := ExtractText(context.Background(), nil); !errors.Is(err, ErrEmptyPDF) {
		t.Errorf("error = %v, want ErrEmptyPDF", err)
	}
}

func TestExtractTextGarbage(t *testing.T) {
	_, err := ExtractText(context.Background(), []byte("this is not a pdf at all"))
	if err == nil || !strings.Contains(err.Error(), "failed to parse PDF") {
		t.Errorf("error = %v, want parse failure", err)
	}
}

func TestValidate(t *testing.T) {
	small := Limits{MaxFileSizeMB: 1, MaxPages: 10}

	if _, err := Validate(nil, small); !errors.Is(err, ErrEmptyPDF) {
		t.Errorf("empty: %v", err)
	}
	if _, err := Validate([]byte("PK\x03\x04 zip file"), small); !errors.Is(err, ErrNotPDF) {
		t.Errorf("not pdf: %v", err)
	}

	big := append([]byte("%PDF-1.4\n"), make([]byte, 2*1024*1024)...)
	if _, err := Validate(big, small); !errors.Is(err, ErrTooLarge) {
		t.Errorf("too large: %v", err)
	}
}

func TestInfoSizeKB(t *testing.T) {
	if got := (Info{Size: 2048}).SizeKB(); got != 2 {
		t.Errorf("SizeKB() = %v, want 2", got)
	}
	if got := (Info{Size: 1536}).SizeKB(); got != 1.5 {
		t.Errorf("SizeKB() = %v, want 1.5", got)
	}
}
