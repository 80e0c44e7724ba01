// Package questionblock slices the text belonging to one question label
// (for example "3", "3(a)" or "3(b)(ii)") out of the plain text of an exam
// paper or mark scheme.
//
// A block starts at the first line that begins with the requested label and
// runs until the next line that begins with anything label shaped, or until
// the text ends. The stop rule does not look at the depth of the requested
// label, so asking for "3" stops at "3(a)" as well as at "4".
package questionblock

import (
	"regexp"
	"strings"
	"unicode"
)

// Status tells a found block apart from the two not-found outcomes.
type Status int

const (
	Found Status = iota
	// EmptyInput means the document text was empty or whitespace only.
	EmptyInput
	// NotFound means no line starts with the requested label.
	NotFound
)

const (
	EmptyInputMarker = "Not found (empty text)."
	NotFoundMarker   = "Not found."
)

func (s Status) String() string {
	switch s {
	case Found:
		return "found"
	case EmptyInput:
		return "empty_input"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Result is the outcome of one extraction. Text is only set when Status is Found.
type Result struct {
	Text   string
	Status Status
}

// Found reports whether a block was extracted.
func (r Result) Found() bool {
	return r.Status == Found
}

// String returns the block, or the marker for the not-found variant.
func (r Result) String() string {
	switch r.Status {
	case Found:
		return r.Text
	case EmptyInput:
		return EmptyInputMarker
	default:
		return NotFoundMarker
	}
}

// boundaryPattern matches any line that opens with a question label:
// digits, then lettered sub-parts, then roman sub-sub-parts.
var boundaryPattern = regexp.MustCompile(`^\s*\d+(\([a-z]\))*(\([ivxl]+\))*\b`)

// Options controls how the requested label is matched against a line.
type Options struct {
	// PrefixMatch treats the label as a bare line prefix, so "3" also opens
	// on a line starting "30". When false, a label ending in a digit must not
	// be followed directly by another digit.
	PrefixMatch bool
}

// Extractor holds matching options. The zero value is ready to use and
// safe for concurrent use.
type Extractor struct {
	opts Options
}

// New creates an extractor with the given options.
func New(opts Options) *Extractor {
	return &Extractor{opts: opts}
}

var defaultExtractor = New(Options{})

// Extract runs the default extractor.
func Extract(text, label string) Result {
	return defaultExtractor.Extract(text, label)
}

// Extract returns the block for label inside text. The label is matched as
// literal text, never as a pattern. It never fails: problems are reported
// through Result.Status.
func (e *Extractor) Extract(text, label string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{Status: EmptyInput}
	}

	label = strings.TrimSpace(label)
	if label == "" {
		return Result{Status: NotFound}
	}

	// A label on the last line opens a block even without a trailing
	// newline, where a newline-terminated match would report not found.
	lines := strings.SplitAfter(text, "\n")

	start := -1
	for i, line := range lines {
		if e.opensBlock(line, label) {
			start = i
			break
		}
	}
	if start < 0 {
		return Result{Status: NotFound}
	}

	end := len(lines)
	for j := start + 1; j < len(lines); j++ {
		if boundaryPattern.MatchString(lines[j]) {
			end = j
			break
		}
	}

	block := strings.TrimSpace(strings.Join(lines[start:end], ""))
	return Result{Text: block, Status: Found}
}

func (e *Extractor) opensBlock(line, label string) bool {
	trimmed := strings.TrimLeftFunc(line, unicode.IsSpace)
	if !strings.HasPrefix(trimmed, label) {
		return false
	}
	if e.opts.PrefixMatch {
		return true
	}

	rest := trimmed[len(label):]
	if rest == "" || !endsWithDigit(label) {
		return true
	}
	return !isDigit(rest[0])
}

func endsWithDigit(s string) bool {
	return s != "" && isDigit(s[len(s)-1])
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// IsLabel reports whether s is a well formed question label such as
// "12", "12(c)" or "12(c)(iv)".
func IsLabel(s string) bool {
	return labelPattern.MatchString(s)
}

var labelPattern = regexp.MustCompile(`^\d+(\([a-z]\))*(\([ivxl]+\))*$`)
