// Package strings holds small string helpers shared by modules and middleware
package strings

import std "strings"

// IfEmpty returns def when in has no elements
func IfEmpty[T any](in []T, def []T) []T {
	if len(in) == 0 {
		return def
	}
	return in
}

// MustString returns s or panics naming the missing value
func MustString(s string, name string) string {
	if std.TrimSpace(s) == "" {
		panic(name + " is required")
	}
	return s
}

// MustPrefix turns " channels/ " into "/channels"
// it panics when nothing but slashes remain
func MustPrefix(s string) string {
	s = "/" + std.Trim(s, " /")
	if s == "/" {
		panic("root path is required")
	}
	return s
}
