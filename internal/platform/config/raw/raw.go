// Package raw reads environment variables for code that runs before the logger exists
// it must not import the logger
package raw

import (
	"os"
	"strconv"
	"strings"
)

// Conf is an env view scoped by a key prefix
type Conf struct{ prefix string }

// New returns the unscoped root
func New() Conf { return Conf{} }

// Prefix narrows c by p
func (c Conf) Prefix(p string) Conf { return Conf{prefix: c.prefix + p} }

// Get returns the trimmed value of key or def
func (c Conf) Get(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(c.prefix + key)); v != "" {
		return v
	}
	return def
}

// GetBool accepts 1, true and yes in any case; any other value is false
func (c Conf) GetBool(key string, def bool) bool {
	switch strings.ToLower(c.Get(key, "")) {
	case "":
		return def
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

// GetInt returns key as a non negative int or def
func (c Conf) GetInt(key string, def int) int {
	n, err := strconv.Atoi(c.Get(key, ""))
	if err != nil || n < 0 {
		return def
	}
	return n
}
