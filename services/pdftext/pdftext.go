// Package pdftext turns past-paper PDFs into plain text, one line per
// text row, pages in order.
package pdftext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/ledongthuc/pdf"
)

var (
	ErrEmptyPDF     = errors.New("empty PDF content")
	ErrNotPDF       = errors.New("invalid PDF file: missing PDF header")
	ErrTooLarge     = errors.New("PDF exceeds the maximum file size")
	ErrTooManyPages = errors.New("PDF exceeds the maximum page count")
	ErrNoPages      = errors.New("PDF has no pages")
)

// Info describes a stored PDF
type Info struct {
	Pages int   `json:"pages"`
	Size  int64 `json:"size"`
}

// SizeKB is the size rounded to two decimals
func (i Info) SizeKB() float64 {
	return float64(i.Size*100/1024) / 100
}

// Limits bounds what the admin console accepts as a paper upload
type Limits struct {
	MaxFileSizeMB int
	MaxPages      int
}

// PaperLimits fits Cambridge question papers and mark schemes
var PaperLimits = Limits{
	MaxFileSizeMB: 50,
	MaxPages:      80,
}

// sanitize drops trailing garbage after the last %%EOF, which web
// downloads often carry.
func sanitize(content []byte) []byte {
	if !bytes.HasPrefix(content, []byte("%PDF-")) {
		return content
	}

	eofMarker := []byte("%%EOF")
	lastEOF := bytes.LastIndex(content, eofMarker)
	if lastEOF == -1 {
		return content
	}

	end := lastEOF + len(eofMarker)
	for end < len(content) && (content[end] == '\n' || content[end] == '\r') {
		end++
	}

	if extra := len(content) - end; extra > 10 {
		log.Debugf("pdftext: removing %d bytes of trailing garbage after %%EOF", extra)
		return content[:end]
	}
	return content
}

func open(content []byte) (*pdf.Reader, error) {
	if len(content) == 0 {
		return nil, ErrEmptyPDF
	}

	content = sanitize(content)
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse PDF: %w", err)
	}
	return r, nil
}

// ExtractText returns the text of every page, rows joined by newlines.
// A PDF without a text layer yields an empty string, not an error.
func ExtractText(ctx context.Context, content []byte) (string, error) {
	r, err := open(content)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		rows, err := page.GetTextByRow()
		if err != nil {
			text, plainErr := page.GetPlainText(nil)
			if plainErr != nil {
				log.Warnf("pdftext: page %d unreadable: %v", i, plainErr)
				continue
			}
			b.WriteString(text)
			b.WriteString("\n")
			continue
		}

		for _, row := range rows {
			var line strings.Builder
			for _, word := range row.Content {
				line.WriteString(word.S)
			}
			if s := strings.TrimSpace(line.String()); s != "" {
				b.WriteString(s)
				b.WriteString("\n")
			}
		}
		b.WriteString("\n")
	}

	return b.String(), nil
}

// GetInfo returns the page count and byte size of a PDF
func GetInfo(content []byte) (Info, error) {
	r, err := open(content)
	if err != nil {
		return Info{}, err
	}
	return Info{Pages: r.NumPage(), Size: int64(len(content))}, nil
}

// Validate checks an upload against limits and returns its info
func Validate(content []byte, limits Limits) (Info, error) {
	size := int64(len(content))
	if size == 0 {
		return Info{}, ErrEmptyPDF
	}
	if size > int64(limits.MaxFileSizeMB)*1024*1024 {
		return Info{}, fmt.Errorf("%w of %dMB", ErrTooLarge, limits.MaxFileSizeMB)
	}
	if !bytes.HasPrefix(content, []byte("%PDF-")) {
		return Info{}, ErrNotPDF
	}

	info, err := GetInfo(content)
	if err != nil {
		return Info{}, err
	}
	if info.Pages == 0 {
		return info, ErrNoPages
	}
	if info.Pages > limits.MaxPages {
		return info, fmt.Errorf("%w: %d pages, limit %d", ErrTooManyPages, info.Pages, limits.MaxPages)
	}
	return info, nil
}
