// Package crawler walks a public-inbox style index newest to oldest, following
// the rel="next" cursor links, and collects the thread permalinks it finds.
// A JSON page cache lets a later run skip pages it has already seen.
package crawler
