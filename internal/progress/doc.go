// Package progress carries fetch-run events from the crawler and the thread
// workers to pluggable sinks without blocking the emitters.
package progress
