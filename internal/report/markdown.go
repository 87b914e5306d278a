package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// WriteMarkdown renders s as a Markdown document.
func WriteMarkdown(w io.Writer, s Summary) error {
	md := markdown.NewMarkdown(w)

	md.H1("Mailing List Thread Report")
	md.PlainText("")

	dateRange := "n/a"
	if s.Range != nil {
		dateRange = s.Range.Oldest.Format("2006-01-02") + " to " + s.Range.Newest.Format("2006-01-02")
	}
	duration := "n/a"
	if s.DurationThreads > 0 {
		days, hours := DaysHours(s.AvgDuration)
		duration = fmt.Sprintf("%d days, %d hours", days, hours)
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Date Range", dateRange},
			{"Archives", strconv.Itoa(s.Files)},
			{"Messages", strconv.Itoa(s.Messages)},
			{"Threads", strconv.Itoa(s.Threads)},
			{"Authors", strconv.Itoa(s.Authors)},
			{"Average responses per answered thread", fmt.Sprintf("%.2f", s.AvgResponses)},
			{"Average thread duration", duration},
		},
	})
	md.PlainText("")
	if s.SkippedDurations > 0 {
		md.Note(fmt.Sprintf("%d threads had no usable start or end time and were left out of the average duration.", s.SkippedDurations))
		md.PlainText("")
	}

	rankedTable(md, "Top Thread Initiators", "Author", "Threads Initiated", s.TopInitiators)
	rankedTable(md, "Top Thread Responders", "Author", "Threads Responded To", s.TopResponders)
	rankedTable(md, "Top Reviewers", "Reviewer", "Reviewed-by Tags", s.TopReviewers)
	authorReviewersTable(md, s.ReviewersByAuthor)
	rankedTable(md, "Top Email Domains for Authors", "Domain", "Count", s.TopAuthorDomains)
	domainChart(md, s.TopAuthorDomains)
	rankedTable(md, "Top Email Domains for Responders", "Domain", "Count", s.TopResponderDomains)

	if err := md.Build(); err != nil {
		return fmt.Errorf("render markdown report: %w", err)
	}
	return nil
}

func rankedTable(md *markdown.Markdown, title, nameHeader, countHeader string, rows []Ranked) {
	md.H2(title)
	md.PlainText("")
	if len(rows) == 0 {
		md.PlainText("_none_")
		md.PlainText("")
		return
	}
	body := make([][]string, 0, len(rows))
	for _, r := range rows {
		body = append(body, []string{r.Name, strconv.Itoa(r.Count)})
	}
	md.Table(markdown.TableSet{
		Header: []string{nameHeader, countHeader},
		Rows:   body,
	})
	md.PlainText("")
}

func authorReviewersTable(md *markdown.Markdown, rows []AuthorReviewers) {
	md.H2("Top Reviewers per Author")
	md.PlainText("")
	if len(rows) == 0 {
		md.PlainText("_none_")
		md.PlainText("")
		return
	}
	body := make([][]string, 0, len(rows))
	for _, r := range rows {
		body = append(body, []string{r.Author, formatReviewers(r.Reviewers)})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Author", "Top Reviewers (with count)"},
		Rows:   body,
	})
	md.PlainText("")
}

func formatReviewers(reviewers []Ranked) string {
	if len(reviewers) == 0 {
		return "No reviewers"
	}
	parts := make([]string, 0, len(reviewers))
	for _, r := range reviewers {
		parts = append(parts, fmt.Sprintf("%s (%d)", r.Name, r.Count))
	}
	return strings.Join(parts, ", ")
}

func domainChart(md *markdown.Markdown, domains []Ranked) {
	if len(domains) == 0 {
		return
	}
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Author Domains"),
		piechart.WithShowData(true),
	)
	for _, d := range domains {
		chart.LabelAndIntValue(d.Name, uint64(d.Count))
	}
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}
