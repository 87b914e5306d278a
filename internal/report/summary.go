// Package report derives summary statistics from an aggregated State and
// renders them.
package report

import (
	"sort"
	"strings"
	"time"

	"github.com/JakeFAU/lore-harvester/internal/aggregate"
)

// DefaultTopCount is the length of each ranked table.
const DefaultTopCount = 10

// Ranked is one entry of a top-N table.
type Ranked struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// ReviewersPerAuthor is the number of responders kept per top initiator.
const ReviewersPerAuthor = 5

// AuthorReviewers lists who answered the threads one author started.
type AuthorReviewers struct {
	Author    string   `json:"author"`
	Reviewers []Ranked `json:"reviewers"`
}

// DateRange spans the earliest and latest parsed message dates.
type DateRange struct {
	Oldest time.Time `json:"oldest"`
	Newest time.Time `json:"newest"`
}

// Summary is the full set of figures produced for one analyze walk.
type Summary struct {
	Files    int        `json:"files"`
	Threads  int        `json:"threads"`
	Authors  int        `json:"authors"`
	Messages int        `json:"messages"`
	Range    *DateRange `json:"date_range,omitempty"`

	TopInitiators []Ranked `json:"top_initiators"`
	TopResponders []Ranked `json:"top_responders"`
	TopReviewers  []Ranked `json:"top_reviewers"`
	// ReviewersByAuthor follows TopInitiators order.
	ReviewersByAuthor []AuthorReviewers `json:"reviewers_by_author"`

	// AvgResponses averages over AnsweredThreads, not all threads.
	AvgResponses    float64 `json:"avg_responses_per_thread"`
	AnsweredThreads int     `json:"answered_threads"`
	// AvgDuration averages only threads with a known, non-negative span.
	AvgDuration      time.Duration `json:"avg_duration_ns"`
	DurationThreads  int           `json:"duration_threads"`
	SkippedDurations int           `json:"skipped_durations"`

	TopAuthorDomains    []Ranked `json:"top_author_domains"`
	TopResponderDomains []Ranked `json:"top_responder_domains"`
}

// Build computes a Summary from state. topN <= 0 means DefaultTopCount.
func Build(state *aggregate.State, topN int) Summary {
	if topN <= 0 {
		topN = DefaultTopCount
	}
	s := Summary{
		Files:    state.FilesAggregated(),
		Threads:  len(state.Threads),
		Authors:  len(state.Authors),
		Messages: len(state.Rows()),
	}

	initiated := map[string]int{}
	responded := map[string]int{}
	for name, stats := range state.Authors {
		if stats.Initiated > 0 {
			initiated[name] = stats.Initiated
		}
		if n := len(stats.Responded); n > 0 {
			responded[name] = n
		}
	}
	s.TopInitiators = top(initiated, topN)
	s.TopResponders = top(responded, topN)
	s.TopAuthorDomains = top(domainCounts(state, initiated), topN)
	s.TopResponderDomains = top(domainCounts(state, responded), topN)

	reviewers := map[string]int{}
	for _, row := range state.Rows() {
		if row.ReviewedBy == "" {
			continue
		}
		for _, r := range strings.Split(row.ReviewedBy, ", ") {
			if r = strings.TrimSpace(r); r != "" {
				reviewers[r]++
			}
		}
	}
	s.TopReviewers = top(reviewers, topN)
	s.ReviewersByAuthor = reviewersByAuthor(state, s.TopInitiators)

	var (
		responses      int
		totalSeconds   int64
		oldest, newest int64
		seen           bool
	)
	for _, rec := range state.Threads {
		if rec.ResponseCount > 0 {
			responses += rec.ResponseCount
			s.AnsweredThreads++
		}
		if d, ok := rec.Duration(); ok {
			totalSeconds += d
			s.DurationThreads++
		} else {
			s.SkippedDurations++
		}
		for _, ts := range []*int64{rec.StartTime, rec.LastResponseTime} {
			if ts == nil {
				continue
			}
			if !seen || *ts < oldest {
				oldest = *ts
			}
			if !seen || *ts > newest {
				newest = *ts
			}
			seen = true
		}
	}
	if s.AnsweredThreads > 0 {
		s.AvgResponses = float64(responses) / float64(s.AnsweredThreads)
	}
	if s.DurationThreads > 0 {
		s.AvgDuration = time.Duration(totalSeconds/int64(s.DurationThreads)) * time.Second
	}
	if seen {
		s.Range = &DateRange{Oldest: time.Unix(oldest, 0).UTC(), Newest: time.Unix(newest, 0).UTC()}
	}
	return s
}

// DaysHours splits d into whole days and remaining whole hours.
func DaysHours(d time.Duration) (days, hours int) {
	total := int(d / time.Hour)
	return total / 24, total % 24
}

// Domain returns the lowercased part after '@', or "" when there is none.
func Domain(email string) string {
	_, domain, ok := strings.Cut(email, "@")
	if !ok || domain == "" {
		return ""
	}
	return strings.ToLower(domain)
}

func domainCounts(state *aggregate.State, authors map[string]int) map[string]int {
	counts := map[string]int{}
	for name := range authors {
		for _, email := range state.Registry.Emails(name) {
			if d := Domain(email); d != "" {
				counts[d]++
			}
		}
	}
	return counts
}

// reviewersByAuthor counts, for each author, the other people who replied to
// threads that author initiated.
func reviewersByAuthor(state *aggregate.State, authors []Ranked) []AuthorReviewers {
	if len(authors) == 0 {
		return nil
	}
	wanted := make(map[string]map[string]int, len(authors))
	for _, a := range authors {
		wanted[a.Name] = map[string]int{}
	}
	for name, stats := range state.Authors {
		for id := range stats.Responded {
			rec, ok := state.Threads[id]
			if !ok || rec.Initiator == name {
				continue
			}
			if counts, ok := wanted[rec.Initiator]; ok {
				counts[name]++
			}
		}
	}
	out := make([]AuthorReviewers, 0, len(authors))
	for _, a := range authors {
		out = append(out, AuthorReviewers{Author: a.Name, Reviewers: top(wanted[a.Name], ReviewersPerAuthor)})
	}
	return out
}

// top ranks counts descending, breaking ties by name.
func top(counts map[string]int, n int) []Ranked {
	out := make([]Ranked, 0, len(counts))
	for name, c := range counts {
		out = append(out, Ranked{Name: name, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
