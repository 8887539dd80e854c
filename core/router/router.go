package router

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrNotFound is returned for paths that name no route.
	ErrNotFound = errors.New("route not found")
	// ErrBadArgument is returned when the argument segment is missing or
	// is not an unsigned decimal integer.
	ErrBadArgument = errors.New("invalid route argument")
	// ErrDuplicateRoute is returned by NewRouteTable.
	ErrDuplicateRoute = errors.New("duplicate route")
)

// RootBody is served for "/".
const RootBody = "Hello World!"

// Handler computes content from a route's integer argument.
type Handler func(n uint64) (string, error)

// Route binds a name (the first path segment) to a handler.
type Route struct {
	Name    string
	Handler Handler
}

type routeEntry struct {
	name    string
	handler Handler
}

// RouteTable is an immutable name -> handler mapping. It is safe for
// concurrent reads once built.
type RouteTable struct {
	entries map[uint64]routeEntry
	names   []string
}

// NewRouteTable builds a table from routes.
func NewRouteTable(routes ...Route) (*RouteTable, error) {
	t := &RouteTable{entries: make(map[uint64]routeEntry, len(routes))}

	for _, r := range routes {
		if r.Name == "" || strings.Contains(r.Name, "/") || r.Handler == nil {
			return nil, fmt.Errorf("invalid route %q", r.Name)
		}
		h := hashName(r.Name)
		if _, ok := t.entries[h]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateRoute, r.Name)
		}
		t.entries[h] = routeEntry{name: r.Name, handler: r.Handler}
		t.names = append(t.names, r.Name)
	}

	return t, nil
}

// Lookup returns the handler registered under name.
func (t *RouteTable) Lookup(name string) (Handler, bool) {
	e, ok := t.entries[hashName(name)]
	if !ok || e.name != name {
		return nil, false
	}
	return e.handler, true
}

// Names lists route names in registration order.
func (t *RouteTable) Names() []string {
	return append([]string(nil), t.names...)
}

// Router resolves request paths against a RouteTable.
type Router struct {
	table *RouteTable
}

// New creates a router over table.
func New(table *RouteTable) *Router {
	return &Router{table: table}
}

// Resolve maps a request path to content.
//
// "/" yields RootBody. Otherwise the path is read as /<name>/<n>[/...],
// ignoring any query string; segments after n are ignored.
func (r *Router) Resolve(path string) (string, error) {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "/" {
		return RootBody, nil
	}
	if !strings.HasPrefix(path, "/") {
		return "", fmt.Errorf("%w: %q", ErrNotFound, path)
	}

	name, rest, hasArg := strings.Cut(path[1:], "/")
	handler, ok := r.table.Lookup(name)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if !hasArg {
		return "", fmt.Errorf("%w: missing argument for %q", ErrBadArgument, name)
	}

	arg, _, _ := strings.Cut(rest, "/")
	n, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrBadArgument, arg)
	}

	content, err := handler(n)
	if err != nil {
		return "", fmt.Errorf("route %q(%d): %w", name, n, err)
	}
	return content, nil
}

// hashName computes an FNV-1a hash of a route name.
func hashName(name string) uint64 {
	const prime = 1099511628211
	hash := uint64(14695981039346656037)

	for i := 0; i < len(name); i++ {
		hash ^= uint64(name[i])
		hash *= prime
	}

	return hash
}
