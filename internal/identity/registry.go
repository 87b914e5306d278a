// Package identity tracks which e-mail addresses each author name has used.
package identity

import (
	"sort"
	"strings"
	"sync"
)

// Registry is a bidirectional name/e-mail index. The most recently observed
// name for an address wins; names accumulate every address they were seen with.
// A Registry is safe for concurrent use.
type Registry struct {
	mu           sync.RWMutex
	emailsByName map[string]map[string]struct{}
	nameByEmail  map[string]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		emailsByName: make(map[string]map[string]struct{}),
		nameByEmail:  make(map[string]string),
	}
}

// Observe records that name used email. Pairs with an empty side are ignored.
func (r *Registry) Observe(name, email string) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.emailsByName[name]
	if !ok {
		set = make(map[string]struct{})
		r.emailsByName[name] = set
	}
	set[email] = struct{}{}
	r.nameByEmail[email] = name
}

// Emails returns the sorted addresses observed for name.
func (r *Registry) Emails(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.emailsByName[name]
	out := make([]string, 0, len(set))
	for email := range set {
		out = append(out, email)
	}
	sort.Strings(out)
	return out
}

// Name returns the latest name observed for email.
func (r *Registry) Name(email string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.nameByEmail[strings.ToLower(strings.TrimSpace(email))]
	return name, ok
}

// Names returns every known author name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.emailsByName))
	for name := range r.emailsByName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Len reports the number of distinct names.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.emailsByName)
}
