package router

import (
	"errors"
	"strconv"
	"testing"
)

var errBoom = errors.New("boom")

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	table, err := NewRouteTable(
		Route{Name: "echo", Handler: func(n uint64) (string, error) {
			return strconv.FormatUint(n, 10), nil
		}},
		Route{Name: "fail", Handler: func(uint64) (string, error) {
			return "", errBoom
		}},
	)
	if err != nil {
		t.Fatal(err)
	}
	return New(table)
}

func TestRouter_Resolve(t *testing.T) {
	r := newTestRouter(t)

	tests := []struct {
		path    string
		want    string
		wantErr error
	}{
		{"/", RootBody, nil},
		{"/?x=1", RootBody, nil},
		{"/echo/10", "10", nil},
		{"/echo/0", "0", nil},
		{"/echo/18446744073709551615", "18446744073709551615", nil},
		{"/echo/7/extra", "7", nil},
		{"/echo/42?verbose=1", "42", nil},
		{"/echo", "", ErrBadArgument},
		{"/echo/", "", ErrBadArgument},
		{"/echo/abc", "", ErrBadArgument},
		{"/echo/-1", "", ErrBadArgument},
		{"/echo/18446744073709551616", "", ErrBadArgument},
		{"/unknown/1", "", ErrNotFound},
		{"//1", "", ErrNotFound},
		{"", "", ErrNotFound},
		{"*", "", ErrNotFound},
		{"/fail/3", "", errBoom},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := r.Resolve(tt.path)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestNewRouteTable_Validation(t *testing.T) {
	ok := func(uint64) (string, error) { return "", nil }

	if _, err := NewRouteTable(Route{Name: "a", Handler: ok}, Route{Name: "a", Handler: ok}); !errors.Is(err, ErrDuplicateRoute) {
		t.Errorf("Expected ErrDuplicateRoute, got %v", err)
	}
	if _, err := NewRouteTable(Route{Name: "", Handler: ok}); err == nil {
		t.Error("Expected error for empty name")
	}
	if _, err := NewRouteTable(Route{Name: "a/b", Handler: ok}); err == nil {
		t.Error("Expected error for name with slash")
	}
	if _, err := NewRouteTable(Route{Name: "a"}); err == nil {
		t.Error("Expected error for nil handler")
	}
}

func TestRouteTable_Lookup(t *testing.T) {
	table, err := NewRouteTable(Route{Name: "fib", Handler: func(uint64) (string, error) { return "", nil }})
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := table.Lookup("fib"); !ok {
		t.Error("Expected fib route")
	}
	if _, ok := table.Lookup("fibs"); ok {
		t.Error("Unexpected match for fibs")
	}
	if names := table.Names(); len(names) != 1 || names[0] != "fib" {
		t.Errorf("Unexpected names: %v", names)
	}
}

func BenchmarkRouter_Resolve(b *testing.B) {
	table, _ := NewRouteTable(Route{Name: "echo", Handler: func(n uint64) (string, error) { return "", nil }})
	r := New(table)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = r.Resolve("/echo/12345")
	}
}
