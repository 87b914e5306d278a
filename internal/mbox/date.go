package mbox

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// ErrEmptyDate is returned by ParseDate for blank input.
var ErrEmptyDate = errors.New("empty date")

// DateError reports a Date header that could not be normalised.
type DateError struct {
	Raw     string
	Cleaned string
	Err     error
}

func (e *DateError) Error() string {
	return fmt.Sprintf("parse date %q (cleaned %q): %v", e.Raw, e.Cleaned, e.Err)
}

func (e *DateError) Unwrap() error { return e.Err }

var (
	whitespaceRun   = regexp.MustCompile(`\s+`)
	encodedFragment = regexp.MustCompile(`=\S+`)
	parenComment    = regexp.MustCompile(`\(.*?\)`)
	leadingJunk     = regexp.MustCompile(`^\W+`)
	trailingJunk    = regexp.MustCompile(`\W+$`)
	numericOffset   = regexp.MustCompile(`[+-]\d{4}\b`)
	zoneAbbrev      = regexp.MustCompile(`\b(CEST|CET|PST|PDT|GMT)\b`)
)

// zoneOffsets holds the informal abbreviations seen in list traffic.
var zoneOffsets = map[string]string{
	"CEST": "+0200",
	"CET":  "+0100",
	"PST":  "-0800",
	"PDT":  "-0700",
	"GMT":  "+0000",
}

var dateLayouts = []string{
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04 -0700",
	"2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04 -0700",
	"Mon, 2 Jan 06 15:04:05 -0700",
	"Monday, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 January 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05",
	"2 Jan 2006 15:04:05",
	"Mon Jan 2 15:04:05 2006 -0700",
	"Mon Jan 2 15:04:05 2006",
}

// ParseDate normalises a raw Date header value to Unix seconds. Values without
// a zone are read as UTC. Failures are returned as *DateError.
func ParseDate(raw string) (int64, error) {
	cleaned := cleanDate(raw)
	if cleaned == "" {
		return 0, &DateError{Raw: raw, Cleaned: cleaned, Err: ErrEmptyDate}
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return t.Unix(), nil
		}
	}

	t, err := dateparse.ParseIn(cleaned, time.UTC)
	if err != nil {
		return 0, &DateError{Raw: raw, Cleaned: cleaned, Err: err}
	}
	return t.Unix(), nil
}

func cleanDate(raw string) string {
	s, _, _ := strings.Cut(raw, "\t")
	s = strings.TrimSpace(s)
	s = whitespaceRun.ReplaceAllString(s, " ")
	s = encodedFragment.ReplaceAllString(s, "")
	s = parenComment.ReplaceAllString(s, "")
	s = leadingJunk.ReplaceAllString(s, "")
	s = trailingJunk.ReplaceAllString(s, "")

	if numericOffset.MatchString(s) {
		// Offset already present: the abbreviation is redundant.
		s = zoneAbbrev.ReplaceAllString(s, "")
	} else {
		s = zoneAbbrev.ReplaceAllStringFunc(s, func(abbr string) string {
			return zoneOffsets[abbr]
		})
	}
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}
