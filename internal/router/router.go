// Package router implements the exact-match path routing that maps a
// binding's URL prefix plus a fixed suffix (e.g. "/sse", "/message",
// "/mcp") to the full path an HTTP mux should register.
package router

import "strings"

// Normalize strips a single trailing "/" from prefix, except that the root
// prefix "/" normalizes to "". Per spec.md §4.4.
func Normalize(prefix string) string {
	if prefix == "/" {
		return ""
	}
	return strings.TrimSuffix(prefix, "/")
}

// EnsureLeading prepends "/" to suffix if it doesn't already have one.
func EnsureLeading(suffix string) string {
	if strings.HasPrefix(suffix, "/") {
		return suffix
	}
	return "/" + suffix
}

// FullPath composes a binding's full route as normalize(prefix) ++
// ensureLeading(suffix), collapsing to "/" if the result would otherwise
// be empty.
func FullPath(prefix, suffix string) string {
	p := Normalize(prefix) + EnsureLeading(suffix)
	if p == "" {
		return "/"
	}
	return p
}

// Binding is an immutable (prefix, command) pair, constructed once at
// startup from configuration (spec.md §3 ServerBinding).
type Binding struct {
	Name    string // path key in multi-server mode; "" for single-binding mode
	Prefix  string
	Command string
}

// Router is an exact-match table from full path to Binding. There are no
// wildcards; unmatched paths are left to the host mux's default 404.
type Router struct {
	routes map[string]*Binding
}

// New returns an empty Router. Each binding contributes one full-path entry
// per suffix passed to Register.
func New() *Router {
	return &Router{routes: make(map[string]*Binding)}
}

// Register adds binding under the full path formed from its prefix and the
// given suffix. It returns the full path for the caller to mount a handler
// at, and an error if that path is already claimed by another binding.
func (r *Router) Register(b *Binding, suffix string) (string, error) {
	full := FullPath(b.Prefix, suffix)
	if existing, ok := r.routes[full]; ok && existing != b {
		return "", &ConflictError{Path: full, ExistingBinding: existing.Name, NewBinding: b.Name}
	}
	r.routes[full] = b
	return full, nil
}

// Lookup returns the binding registered for an exact path match.
func (r *Router) Lookup(path string) (*Binding, bool) {
	b, ok := r.routes[path]
	return b, ok
}

// ConflictError is returned when two bindings claim the same full path.
type ConflictError struct {
	Path            string
	ExistingBinding string
	NewBinding      string
}

func (e *ConflictError) Error() string {
	return "route conflict at " + e.Path + ": " + e.ExistingBinding + " vs " + e.NewBinding
}
