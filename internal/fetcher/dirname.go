package fetcher

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultMaxTitleLength caps thread directory names.
const DefaultMaxTitleLength = 200

// reservedName is produced by titles that carry no usable text.
const reservedName = "unknown"

// DirName sanitises a thread title into a directory name: every character
// outside [A-Za-z0-9_-] becomes '_'. Names longer than maxLen are cut at the
// last '_' in the second half of the limit, or hard-cut when there is none,
// and reported as truncated.
func DirName(title string, maxLen int) (name string, truncated bool) {
	if maxLen <= 0 {
		maxLen = DefaultMaxTitleLength
	}
	var b strings.Builder
	b.Grow(len(title))
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name = b.String()
	if len(name) <= maxLen {
		return name, false
	}

	cut := name[:maxLen]
	if idx := strings.LastIndexByte(cut, '_'); idx >= maxLen/2 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, "_"), true
}

// skippable reports names that must not become a thread directory.
func skippable(name string) bool {
	return name == "" || strings.EqualFold(name, reservedName)
}

// ArchiveURL resolves a thread permalink against baseURL and rewrites it to
// the gzip-compressed mbox of the whole thread.
func ArchiveURL(baseURL, threadURL string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	ref, err := url.Parse(threadURL)
	if err != nil {
		return "", fmt.Errorf("parse thread url: %w", err)
	}
	u := base.ResolveReference(ref)
	u.RawQuery = ""
	u.Fragment = ""

	// Work on the escaped form so a %2F inside a message-id survives.
	p := u.EscapedPath()
	switch {
	case strings.HasSuffix(p, "/T/"), strings.HasSuffix(p, "/t/"):
		p = p[:len(p)-len("/T/")]
	case strings.HasSuffix(p, "/T"), strings.HasSuffix(p, "/t"):
		p = p[:len(p)-len("/T")]
	}
	escaped := strings.TrimRight(p, "/") + "/t.mbox.gz"
	decoded, err := url.PathUnescape(escaped)
	if err != nil {
		return "", fmt.Errorf("unescape archive path: %w", err)
	}
	u.Path, u.RawPath = decoded, escaped
	return u.String(), nil
}
