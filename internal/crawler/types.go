package crawler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrInvalidRange is returned when the start date is not newer than the
// oldest date.
var ErrInvalidRange = errors.New("start date must be newer than oldest date")

// ErrUnavailable matches a *StatusError carrying HTTP 503.
var ErrUnavailable = errors.New("service unavailable")

// ThreadLink is one thread permalink found on an index page. URL is kept as it
// appeared in the page, without the fragment.
type ThreadLink struct {
	URL   string
	Title string
}

// MarshalJSON encodes the link as a [url, title] pair.
func (l ThreadLink) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{l.URL, l.Title})
}

// UnmarshalJSON decodes a [url, title] pair.
func (l *ThreadLink) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("decode thread link: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("decode thread link: want 2 elements, got %d", len(pair))
	}
	l.URL, l.Title = pair[0], pair[1]
	return nil
}

// PageCacheEntry records the links found on one index page.
type PageCacheEntry struct {
	PageURL string
	Links   []ThreadLink
}

// MarshalJSON encodes the entry as [page_url, [[url, title], ...]].
func (e PageCacheEntry) MarshalJSON() ([]byte, error) {
	links := e.Links
	if links == nil {
		links = []ThreadLink{}
	}
	return json.Marshal([]any{e.PageURL, links})
}

// UnmarshalJSON decodes [page_url, [[url, title], ...]].
func (e *PageCacheEntry) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode cache entry: %w", err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("decode cache entry: want 2 elements, got %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &e.PageURL); err != nil {
		return fmt.Errorf("decode cache entry url: %w", err)
	}
	if err := json.Unmarshal(raw[1], &e.Links); err != nil {
		return fmt.Errorf("decode cache entry links: %w", err)
	}
	return nil
}

// Page is a fetched index page.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Body       []byte
}

// StatusError reports a non-2xx index page response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Is lets errors.Is(err, ErrUnavailable) match 503 responses.
func (e *StatusError) Is(target error) bool {
	return target == ErrUnavailable && e.StatusCode == http.StatusServiceUnavailable
}
