// Package aggregate accumulates per-thread and per-author statistics from
// split archives.
package aggregate

import (
	"sort"

	"github.com/JakeFAU/lore-harvester/internal/identity"
)

// ThreadRecord summarises one thread. Times are Unix seconds and stay nil
// until a parseable date is seen.
type ThreadRecord struct {
	ID               string `json:"id"`
	Initiator        string `json:"initiator"`
	StartTime        *int64 `json:"start_time,omitempty"`
	LastResponseTime *int64 `json:"last_response_time,omitempty"`
	ResponseCount    int    `json:"response_count"`
}

// Duration returns the thread span in seconds. ok is false when either end is
// unset or the span is negative.
func (t ThreadRecord) Duration() (seconds int64, ok bool) {
	if t.StartTime == nil || t.LastResponseTime == nil {
		return 0, false
	}
	d := *t.LastResponseTime - *t.StartTime
	if d < 0 {
		return 0, false
	}
	return d, true
}

// AuthorStats counts what one author did across all threads.
type AuthorStats struct {
	Initiated int
	Responded map[string]struct{}
}

// RespondedThreads returns the sorted ids of threads the author replied to.
func (a *AuthorStats) RespondedThreads() []string {
	out := make([]string, 0, len(a.Responded))
	for id := range a.Responded {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Row is one message in tabular form. Date keeps the raw header value and
// Subject carries the thread id.
type Row struct {
	From       string `json:"from"`
	To         string `json:"to"`
	Date       string `json:"date"`
	Subject    string `json:"subject"`
	ReviewedBy string `json:"reviewed_by"`
}

// Columns is the export column order for Row.
var Columns = []string{"From", "To", "Date", "Subject", "ReviewedBy"}

// Values returns r in Columns order.
func (r Row) Values() []string {
	return []string{r.From, r.To, r.Date, r.Subject, r.ReviewedBy}
}

// State is the result of one analyze walk. It is written by a single
// Aggregator and must be treated as read-only once the walk completes.
type State struct {
	Threads  map[string]*ThreadRecord
	Authors  map[string]*AuthorStats
	Registry *identity.Registry

	rows  []Row
	files int
}

// NewState returns an empty State. A nil registry gets a fresh one.
func NewState(registry *identity.Registry) *State {
	if registry == nil {
		registry = identity.NewRegistry()
	}
	return &State{
		Threads:  make(map[string]*ThreadRecord),
		Authors:  make(map[string]*AuthorStats),
		Registry: registry,
	}
}

// Rows returns the buffered tabular rows in aggregation order.
func (s *State) Rows() []Row {
	return s.rows
}

// FilesAggregated reports how many archives contributed to the state.
func (s *State) FilesAggregated() int {
	return s.files
}

// ThreadList returns copies of all thread records sorted by id.
func (s *State) ThreadList() []ThreadRecord {
	out := make([]ThreadRecord, 0, len(s.Threads))
	for _, rec := range s.Threads {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *State) author(name string) *AuthorStats {
	stats, ok := s.Authors[name]
	if !ok {
		stats = &AuthorStats{Responded: make(map[string]struct{})}
		s.Authors[name] = stats
	}
	return stats
}
