package crawler

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// CursorLayout is the format of the t= pagination parameter.
const CursorLayout = "20060102150405"

// DateLayout is the format of start and oldest dates.
const DateLayout = "2006-01-02"

const cursorParam = "t"

// ParseDate parses a YYYY-MM-DD date at midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// ParseCursor parses a YYYYMMDDHHMMSS cursor as UTC.
func ParseCursor(s string) (time.Time, error) {
	t, err := time.ParseInLocation(CursorLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cursor %q: %w", s, err)
	}
	return t, nil
}

// CursorOf extracts the cursor from rawURL. ok is false when the URL carries
// no t= parameter; err is set when it does but the value is malformed.
func CursorOf(rawURL string) (cursor time.Time, ok bool, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	if !q.Has(cursorParam) {
		return time.Time{}, false, nil
	}
	cursor, err = ParseCursor(q.Get(cursorParam))
	if err != nil {
		return time.Time{}, true, err
	}
	return cursor, true, nil
}

// WithCursor returns rawURL with its t= parameter set to cursor.
func WithCursor(rawURL string, cursor time.Time) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set(cursorParam, cursor.UTC().Format(CursorLayout))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// StartPageURL returns the first index page for a crawl starting at start.
func StartPageURL(baseURL string, start time.Time) string {
	return strings.TrimRight(baseURL, "/") + "/?" + cursorParam + "=" + start.UTC().Format(CursorLayout)
}

// ResolveURL resolves href against baseURL.
func ResolveURL(baseURL, href string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse href: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}
