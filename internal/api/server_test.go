package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/lore-harvester/internal/aggregate"
	"github.com/JakeFAU/lore-harvester/internal/mbox"
	"github.com/JakeFAU/lore-harvester/internal/report"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	state := aggregate.NewState(nil)
	state.Registry.Observe("Alice Smith", "alice@kernel.org")
	state.Registry.Observe("Alice Smith", "alice@example.com")
	state.Registry.Observe("Bob", "bob@example.com")

	agg := aggregate.NewAggregator(state)
	agg.Add("a.mbx", []mbox.Message{
		{FromName: "Alice Smith", Subject: "Fix bug", DateRaw: "Mon, 1 Jan 2024 00:00:00 +0000"},
		{FromName: "Bob", Subject: "Re: Fix bug", DateRaw: "Mon, 1 Jan 2024 05:00:00 +0000"},
		{FromName: "Carol", Subject: "Re: Fix bug", DateRaw: "Tue, 2 Jan 2024 00:00:00 +0000"},
	})
	agg.Add("b.mbx", []mbox.Message{
		{FromName: "Bob", Subject: "Add feature", DateRaw: "Wed, 3 Jan 2024 00:00:00 +0000"},
	})
	agg.Add("c.mbx", []mbox.Message{
		{FromName: "Carol", Subject: "Clean up", DateRaw: "Thu, 4 Jan 2024 00:00:00 +0000"},
		{FromName: "Alice Smith", Subject: "Re: Clean up", DateRaw: "Thu, 4 Jan 2024 01:00:00 +0000"},
	})
	return NewServer(state, report.Build(state, 10), zap.NewNop())
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthAndReady(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	rec := get(t, s, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = get(t, s, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ready","threads":3}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	get(t, s, "/healthz")
	rec := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "harvester_http_requests_total")
}

func TestSummary(t *testing.T) {
	t.Parallel()

	rec := get(t, newTestServer(t), "/v1/summary")
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[report.Summary](t, rec)
	require.Equal(t, 3, got.Threads)
	require.Equal(t, 6, got.Messages)
	require.Equal(t, "Alice Smith", got.TopResponders[0].Name)
}

func TestListThreadsSortingAndPaging(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)

	rec := get(t, s, "/v1/threads")
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[page[aggregate.ThreadRecord]](t, rec)
	require.Equal(t, 3, all.Total)
	require.Equal(t, []string{"Add feature", "Clean up", "Fix bug"}, threadIDs(all.Items))

	rec = get(t, s, "/v1/threads?sort=responses&limit=1")
	byResponses := decode[page[aggregate.ThreadRecord]](t, rec)
	require.Len(t, byResponses.Items, 1)
	require.Equal(t, "Fix bug", byResponses.Items[0].ID)
	require.Equal(t, 2, byResponses.Items[0].ResponseCount)

	rec = get(t, s, "/v1/threads?sort=start&offset=1")
	byStart := decode[page[aggregate.ThreadRecord]](t, rec)
	require.Equal(t, []string{"Add feature", "Clean up"}, threadIDs(byStart.Items))

	rec = get(t, s, "/v1/threads?q=CLEAN")
	filtered := decode[page[aggregate.ThreadRecord]](t, rec)
	require.Equal(t, []string{"Clean up"}, threadIDs(filtered.Items))

	rec = get(t, s, "/v1/threads?offset=10")
	empty := decode[page[aggregate.ThreadRecord]](t, rec)
	require.Equal(t, 3, empty.Total)
	require.Empty(t, empty.Items)
}

func TestListThreadsRejectsBadParams(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	for _, target := range []string{
		"/v1/threads?limit=0",
		"/v1/threads?limit=abc",
		"/v1/threads?offset=-1",
		"/v1/threads?sort=subject",
	} {
		rec := get(t, s, target)
		require.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestListAuthors(t *testing.T) {
	t.Parallel()

	rec := get(t, newTestServer(t), "/v1/authors")
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[page[authorView]](t, rec)
	require.Equal(t, 3, got.Total)
	require.Equal(t, authorView{
		Name:      "Alice Smith",
		Initiated: 1,
		Responded: 1,
		Emails:    []string{"alice@example.com", "alice@kernel.org"},
	}, got.Items[0])
	require.Equal(t, []string{}, got.Items[2].Emails)
}

func TestAuthorEmails(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	rec := get(t, s, "/v1/authors/Alice%20Smith/emails")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"name":"Alice Smith","emails":["alice@example.com","alice@kernel.org"]}`, rec.Body.String())

	rec = get(t, s, "/v1/authors/Nobody/emails")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthorEmailsDecodesNameOnce(t *testing.T) {
	t.Parallel()

	state := aggregate.NewState(nil)
	state.Registry.Observe("100% Human", "human@example.com")
	state.Registry.Observe("Ops/Infra", "ops@example.com")
	state.Registry.Observe("a%2Fb", "literal@example.com")
	s := NewServer(state, report.Build(state, 10), zap.NewNop())

	rec := get(t, s, "/v1/authors/100%25%20Human/emails")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"name":"100% Human","emails":["human@example.com"]}`, rec.Body.String())

	rec = get(t, s, "/v1/authors/Ops%2FInfra/emails")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"name":"Ops/Infra","emails":["ops@example.com"]}`, rec.Body.String())

	rec = get(t, s, "/v1/authors/a%252Fb/emails")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"name":"a%2Fb","emails":["literal@example.com"]}`, rec.Body.String())
}

func TestRecoverMiddlewareReturns500(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	h := s.recoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func threadIDs(items []aggregate.ThreadRecord) []string {
	out := make([]string, len(items))
	for i, t := range items {
		out[i] = t.ID
	}
	return out
}
