package crawler

import (
	"context"
	"time"
)

// PageFetcher retrieves one index page. Non-2xx responses are reported as a
// *StatusError.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) (Page, error)
}

// PageCache persists the pages already crawled.
type PageCache interface {
	Load() ([]PageCacheEntry, error)
	Save(entries []PageCacheEntry) error
}

// Clock returns the current time and sleeps (useful for testing).
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// Hasher computes digests for naming and integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// ProgressFunc receives crawl progress through the requested date range.
type ProgressFunc func(percent float64, pageURL string)

// Queue provides enqueue/dequeue semantics for thread fetch work.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// QueueItem wraps a thread link waiting to be fetched. Seq is the link's
// position in the crawl result.
type QueueItem struct {
	Seq  int
	Link ThreadLink
}
