// Package paperindex understands the past-paper filename convention
// <code>_<session>_<doctype>_<paper>.pdf, for example 9702_m24_qp_22.pdf.
package paperindex

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var ErrBadFilename = errors.New("filename does not follow <code>_<session>_<doctype>_<paper>.pdf")

const (
	DocTypeQuestionPaper = "qp"
	DocTypeMarkScheme    = "ms"

	KindMCQ      = "MCQ"
	KindQuestion = "Question"
)

// sessionMonths maps the first letter of a session code to the exam period.
// The dashes are en dashes and must stay that way for existing corpora.
var sessionMonths = map[byte]string{
	'm': "March",
	's': "May–June",
	'w': "Oct–Nov",
}

// metadataSessions is the plain-hyphen form stored on paper records.
var metadataSessions = map[byte]string{
	'm': "March",
	's': "May-June",
	'w': "Oct-Nov",
}

// PaperName is a parsed past-paper filename.
type PaperName struct {
	Filename    string
	Code        string
	SessionCode string
	DocType     string
	PaperNumber string
}

// ParseFilename splits a filename into its convention parts. Only the first
// three parts are required; the paper number is optional.
func ParseFilename(name string) (PaperName, error) {
	base := strings.TrimSuffix(name, ".pdf")
	base = strings.TrimSuffix(base, ".PDF")

	parts := strings.Split(base, "_")
	if len(parts) < 3 {
		return PaperName{}, fmt.Errorf("%q: %w", name, ErrBadFilename)
	}

	p := PaperName{
		Filename:    name,
		Code:        parts[0],
		SessionCode: parts[1],
		DocType:     strings.ToLower(parts[2]),
	}
	if len(parts) > 3 {
		p.PaperNumber = parts[3]
	}
	return p, nil
}

// SessionLabel turns a session code such as "m24" into "2024-March".
// Unknown period letters keep the raw session code, e.g. "2024-x24".
// The boolean is false when the code is too short to bucket.
func SessionLabel(sessionCode string) (string, bool) {
	if len(sessionCode) < 2 {
		return "", false
	}

	year := "20" + sessionCode[1:min(3, len(sessionCode))]
	month, ok := sessionMonths[lower(sessionCode[0])]
	if !ok {
		month = sessionCode
	}
	return year + "-" + month, true
}

// SessionDetails returns the numeric year and the stored session name for a
// session code. Year is zero when the digits do not parse.
func SessionDetails(sessionCode string) (int, string) {
	if len(sessionCode) < 2 {
		return 0, sessionCode
	}

	year, err := strconv.Atoi("20" + sessionCode[1:min(3, len(sessionCode))])
	if err != nil {
		year = 0
	}
	name, ok := metadataSessions[lower(sessionCode[0])]
	if !ok {
		name = sessionCode
	}
	return year, name
}

// SessionBucket groups question-paper filenames under one exam period.
type SessionBucket struct {
	Label     string   `json:"label"`
	Filenames []string `json:"filenames"`
}

// BucketBySession groups question-paper filenames by exam period, newest
// period first. Names without "_qp_" or with a short session code are skipped.
func BucketBySession(names []string) []SessionBucket {
	groups := make(map[string][]string)

	for _, name := range names {
		if !strings.Contains(name, "_qp_") {
			continue
		}
		p, err := ParseFilename(name)
		if err != nil {
			continue
		}
		label, ok := SessionLabel(p.SessionCode)
		if !ok {
			continue
		}
		groups[label] = append(groups[label], name)
	}

	buckets := make([]SessionBucket, 0, len(groups))
	for label, files := range groups {
		sort.Strings(files)
		buckets = append(buckets, SessionBucket{Label: label, Filenames: files})
	}

	// "YYYY-" prefix makes a reverse string sort newest first
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Label > buckets[j].Label
	})
	return buckets
}

// MarkSchemeFor returns the mark-scheme filename paired with a question paper.
func MarkSchemeFor(questionPaper string) string {
	return strings.Replace(questionPaper, "_qp_", "_ms_", 1)
}

// IsMultipleChoice reports whether the paper number marks a multiple choice
// paper (papers 11, 12 and 13).
func IsMultipleChoice(name string) bool {
	for _, suffix := range []string{"11.pdf", "12.pdf", "13.pdf"} {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// Kind returns KindMCQ or KindQuestion for a paper filename.
func Kind(name string) string {
	if IsMultipleChoice(name) {
		return KindMCQ
	}
	return KindQuestion
}

var firstNumber = regexp.MustCompile(`\d+`)

// RelatedQuestions suggests up to three neighbouring question numbers for
// a label, staying between 1 and 19.
func RelatedQuestions(label string) []string {
	match := firstNumber.FindString(label)
	if match == "" {
		return nil
	}
	base, err := strconv.Atoi(match)
	if err != nil {
		return nil
	}

	var related []string
	for i := max(1, base-2); i < min(base+3, 20); i++ {
		if i == base {
			continue
		}
		related = append(related, strconv.Itoa(i))
		if len(related) == 3 {
			break
		}
	}
	return related
}

func lower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}
