package identity

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestObserveAccumulatesEmails(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Observe("Alice", "alice@example.org")
	r.Observe("Alice", "ALICE@corp.example")
	r.Observe("Alice", "alice@example.org")

	require.Equal(t, []string{"alice@corp.example", "alice@example.org"}, r.Emails("Alice"))
	require.Equal(t, 1, r.Len())
}

func TestLatestNameWinsForEmail(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Observe("A. Person", "ap@example.org")
	r.Observe("Alice Person", "ap@example.org")

	name, ok := r.Name("AP@example.org")
	require.True(t, ok)
	require.Equal(t, "Alice Person", name)
	require.Equal(t, []string{"A. Person", "Alice Person"}, r.Names())
}

func TestObserveIgnoresIncompletePairs(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Observe("", "x@example.org")
	r.Observe("Bob", " ")

	require.Zero(t, r.Len())
	_, ok := r.Name("x@example.org")
	require.False(t, ok)
	require.Empty(t, r.Emails("Bob"))
}

func TestConcurrentObserve(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Observe("Shared", fmt.Sprintf("user%d@example.org", i))
		}(i)
	}
	wg.Wait()

	require.Len(t, r.Emails("Shared"), 16)
}
