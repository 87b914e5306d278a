package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDirName(t *testing.T) {
	t.Parallel()

	cases := []struct {
		title     string
		max       int
		want      string
		truncated bool
	}{
		{"[PATCH net-next v2 1/3] net: fix", 200, "_PATCH_net-next_v2_1_3__net__fix", false},
		{"Re: café ünïcode", 200, "Re__caf___n_code", false},
		{"unknown", 200, "unknown", false},
		{"aaaa_bbbb_cccc", 12, "aaaa_bbbb", true},
		{"aaaaaaaaaaaa_b", 12, "aaaaaaaaaaaa", true},
		{"a_bbbbbbbbbbbbbb", 12, "a_bbbbbbbbbb", true},
		{strings.Repeat("x", 250), 0, strings.Repeat("x", 200), true},
	}
	for _, tc := range cases {
		got, truncated := DirName(tc.title, tc.max)
		require.Equal(t, tc.want, got, tc.title)
		require.Equal(t, tc.truncated, truncated, tc.title)
	}
}

func TestArchiveURL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"20241201.1-a@x.com/T/": "https://lore.example.org/netdev/20241201.1-a@x.com/t.mbox.gz",
		"20241201.1-a@x.com/t/": "https://lore.example.org/netdev/20241201.1-a@x.com/t.mbox.gz",
		"20241201.1-a@x.com/":   "https://lore.example.org/netdev/20241201.1-a@x.com/t.mbox.gz",
		"https://lore.example.org/all/abc@x/T/#t": "https://lore.example.org/all/abc@x/t.mbox.gz",
		"abc%2Fdef@example.com/T/":                "https://lore.example.org/netdev/abc%2Fdef@example.com/t.mbox.gz",
		"a%2Fb%2Fc@x.com/T/#t":                    "https://lore.example.org/netdev/a%2Fb%2Fc@x.com/t.mbox.gz",
	}
	for in, want := range cases {
		got, err := ArchiveURL("https://lore.example.org/netdev/", in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want bool
	}{
		{&HTTPStatusError{StatusCode: 503}, true},
		{&HTTPStatusError{StatusCode: 429}, true},
		{&HTTPStatusError{StatusCode: 502}, true},
		{&HTTPStatusError{StatusCode: 504}, true},
		{&HTTPStatusError{StatusCode: 404}, false},
		{&HTTPStatusError{StatusCode: 500}, false},
		{fmt.Errorf("download: %w", ErrReadTimeout), true},
		{fmt.Errorf("copy: %w", io.ErrUnexpectedEOF), true},
		{fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{timeoutErr{}, true},
		{context.Canceled, false},
		{errors.New("permission denied"), false},
		{nil, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, IsRetryable(tc.err), fmt.Sprint(tc.err))
	}
}

func TestExponentialRetryPolicy(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(4, time.Second, func(time.Duration) time.Duration { return 0 })
	require.Equal(t, 2*time.Second, p.Backoff(1))
	require.Equal(t, 4*time.Second, p.Backoff(2))
	require.Equal(t, 16*time.Second, p.Backoff(4))

	busy := &HTTPStatusError{StatusCode: 503}
	require.True(t, p.ShouldRetry(busy, 1))
	require.True(t, p.ShouldRetry(busy, 4))
	require.False(t, p.ShouldRetry(busy, 5))
	require.False(t, p.ShouldRetry(&HTTPStatusError{StatusCode: 404}, 1))

	jittered := NewExponentialRetryPolicy(1, 100*time.Millisecond, nil)
	for i := 0; i < 20; i++ {
		d := jittered.Backoff(1)
		require.GreaterOrEqual(t, d, 200*time.Millisecond)
		require.Less(t, d, 300*time.Millisecond)
	}
}
