package rbac

import (
	"sort"
	"strings"
)

// PermissionSet is an immutable set of permission names.
type PermissionSet struct {
	names map[string]struct{}
}

// NewPermissionSet builds a set from names, ignoring blanks.
func NewPermissionSet(names ...string) PermissionSet {
	set := PermissionSet{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		n = normalize(n)
		if n == "" {
			continue
		}
		set.names[n] = struct{}{}
	}
	return set
}

// Has reports whether name is in the set.
func (s PermissionSet) Has(name string) bool {
	_, ok := s.names[normalize(name)]
	return ok
}

// HasAny reports whether at least one of names is in the set. An empty request is
// trivially satisfied.
func (s PermissionSet) HasAny(names ...string) bool {
	if len(names) == 0 {
		return true
	}
	for _, n := range names {
		if s.Has(n) {
			return true
		}
	}
	return false
}

// HasAll reports whether every name is in the set.
func (s PermissionSet) HasAll(names ...string) bool {
	for _, n := range names {
		if !s.Has(n) {
			return false
		}
	}
	return true
}

// Len returns the number of permissions.
func (s PermissionSet) Len() int {
	return len(s.names)
}

// Names returns the sorted permission names.
func (s PermissionSet) Names() []string {
	out := make([]string, 0, len(s.names))
	for n := range s.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
