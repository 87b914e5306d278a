package report

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/lore-harvester/internal/aggregate"
	"github.com/JakeFAU/lore-harvester/internal/mbox"
)

func sampleState() *aggregate.State {
	state := aggregate.NewState(nil)
	state.Registry.Observe("Alice", "a@kernel.org")
	state.Registry.Observe("Bob", "b@Example.com")
	state.Registry.Observe("Carol", "c@kernel.org")

	agg := aggregate.NewAggregator(state)
	agg.Add("a.mbx", []mbox.Message{
		{FromName: "Alice", Subject: "Fix bug", DateRaw: "Mon, 1 Jan 2024 00:00:00 +0000"},
		{FromName: "Bob", Subject: "Re: Fix bug", DateRaw: "Mon, 1 Jan 2024 02:00:00 +0000", ReviewedBy: []string{"Carol <c@kernel.org>"}},
	})
	agg.Add("b.mbx", []mbox.Message{
		{FromName: "Bob", Subject: "Add feature", DateRaw: "Wed, 3 Jan 2024 00:00:00 +0000"},
		{FromName: "Alice", Subject: "Re: Add feature", DateRaw: "Fri, 5 Jan 2024 12:00:00 +0000"},
		{FromName: "Carol", Subject: "Re: Add feature", DateRaw: "Thu, 4 Jan 2024 00:00:00 +0000"},
	})
	agg.Add("c.mbx", []mbox.Message{
		{FromName: "Dan", Subject: "Broken"},
	})
	return state
}

func TestBuildSummary(t *testing.T) {
	t.Parallel()

	s := Build(sampleState(), 0)

	assert.Equal(t, 3, s.Files)
	assert.Equal(t, 3, s.Threads)
	assert.Equal(t, 6, s.Messages)
	assert.Equal(t, 2, s.AnsweredThreads)
	assert.InDelta(t, 1.5, s.AvgResponses, 1e-9)

	require.NotNil(t, s.Range)
	assert.Equal(t, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), s.Range.Oldest)
	assert.Equal(t, time.Date(2024, time.January, 5, 12, 0, 0, 0, time.UTC), s.Range.Newest)

	assert.Equal(t, 2, s.DurationThreads)
	assert.Equal(t, 1, s.SkippedDurations)
	assert.Equal(t, 31*time.Hour, s.AvgDuration)
	days, hours := DaysHours(s.AvgDuration)
	assert.Equal(t, 1, days)
	assert.Equal(t, 7, hours)

	assert.Equal(t, []Ranked{{"Alice", 1}, {"Bob", 1}, {"Dan", 1}}, s.TopInitiators)
	assert.Equal(t, []Ranked{{"Alice", 1}, {"Bob", 1}, {"Carol", 1}}, s.TopResponders)
	assert.Equal(t, []Ranked{{"example.com", 1}, {"kernel.org", 1}}, s.TopAuthorDomains)
	assert.Equal(t, []Ranked{{"kernel.org", 2}, {"example.com", 1}}, s.TopResponderDomains)
	assert.Equal(t, []Ranked{{"Carol <c@kernel.org>", 1}}, s.TopReviewers)
	assert.Equal(t, []AuthorReviewers{
		{Author: "Alice", Reviewers: []Ranked{{"Bob", 1}}},
		{Author: "Bob", Reviewers: []Ranked{{"Alice", 1}, {"Carol", 1}}},
		{Author: "Dan", Reviewers: []Ranked{}},
	}, s.ReviewersByAuthor)
}

func TestReviewersByAuthorKeepsTopFive(t *testing.T) {
	t.Parallel()

	state := aggregate.NewState(nil)
	agg := aggregate.NewAggregator(state)
	names := []string{"R1", "R2", "R3", "R4", "R5", "R6"}
	for i := range 3 {
		msgs := []mbox.Message{{FromName: "Alice", Subject: fmt.Sprintf("Patch %d", i)}}
		for j, n := range names {
			// R1 and R2 answer every thread, R5 and R6 only the first.
			if j < len(names)-i*2 {
				msgs = append(msgs, mbox.Message{FromName: n, Subject: fmt.Sprintf("Re: Patch %d", i)})
			}
		}
		msgs = append(msgs, mbox.Message{FromName: "Alice", Subject: fmt.Sprintf("Re: Patch %d", i)})
		agg.Add(fmt.Sprintf("%d.mbx", i), msgs)
	}

	s := Build(state, 0)
	require.Len(t, s.ReviewersByAuthor, 1)
	got := s.ReviewersByAuthor[0]
	assert.Equal(t, "Alice", got.Author)
	assert.Equal(t, []Ranked{{"R1", 3}, {"R2", 3}, {"R3", 2}, {"R4", 2}, {"R5", 1}}, got.Reviewers)

	var buf bytes.Buffer
	require.NoError(t, WriteMarkdown(&buf, s))
	assert.Contains(t, buf.String(), "R1 (3), R2 (3), R3 (2), R4 (2), R5 (1)")
}

func TestBuildHonorsTopCount(t *testing.T) {
	t.Parallel()

	s := Build(sampleState(), 1)
	assert.Equal(t, []Ranked{{"Alice", 1}}, s.TopInitiators)
	assert.Equal(t, []Ranked{{"kernel.org", 2}}, s.TopResponderDomains)
}

func TestBuildEmptyState(t *testing.T) {
	t.Parallel()

	s := Build(aggregate.NewState(nil), 5)
	assert.Nil(t, s.Range)
	assert.Zero(t, s.AvgResponses)
	assert.Zero(t, s.AvgDuration)
	assert.Empty(t, s.TopInitiators)

	var buf bytes.Buffer
	require.NoError(t, WriteMarkdown(&buf, s))
	assert.Contains(t, buf.String(), "n/a")
	assert.Contains(t, buf.String(), "_none_")
}

func TestDomain(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "kernel.org", Domain("dev@Kernel.ORG"))
	assert.Empty(t, Domain("no-at-sign"))
	assert.Empty(t, Domain("trailing@"))
}

func TestWriteMarkdown(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteMarkdown(&buf, Build(sampleState(), 10)))

	out := buf.String()
	assert.Contains(t, out, "# Mailing List Thread Report")
	assert.Contains(t, out, "2024-01-01 to 2024-01-05")
	assert.Contains(t, out, "1 days, 7 hours")
	assert.Contains(t, out, "## Top Thread Initiators")
	assert.Contains(t, out, "## Top Email Domains for Responders")
	assert.Contains(t, out, "kernel.org")
	assert.Contains(t, out, "mermaid")
	assert.Contains(t, out, "## Top Reviewers per Author")
	assert.Contains(t, out, "Alice (1), Carol (1)")
	assert.Contains(t, out, "No reviewers")
}
