// Package config reads process configuration from environment variables
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"turnstile/internal/platform/logger"
)

// Conf is a view over the environment scoped by a key prefix such as "TURNS_"
type Conf struct{ prefix string }

// New returns the unscoped root
func New() Conf { return Conf{} }

// Prefix narrows c, so New().Prefix("STORE_").Prefix("PG_") reads STORE_PG_*
func (c Conf) Prefix(p string) Conf { return Conf{prefix: c.prefix + p} }

func (c Conf) key(k string) string { return c.prefix + k }

func (c Conf) lookup(k string) string { return strings.TrimSpace(os.Getenv(c.key(k))) }

// may parses key with parse; a missing value is def and an unparsable one is logged and def
func may[T any](c Conf, key string, def T, parse func(string) (T, error)) T {
	s := c.lookup(key)
	if s == "" {
		return def
	}
	v, err := parse(s)
	if err != nil {
		logger.Get().Warn().Str("key", c.key(key)).Str("value", s).Interface("default", def).Msg("invalid config value; using default")
		return def
	}
	return v
}

// MustString panics when key is unset
func (c Conf) MustString(key string) string {
	v := c.lookup(key)
	if v == "" {
		logger.Get().Panic().Str("key", c.key(key)).Msg("missing required env")
	}
	return v
}

// MayString returns key or def
func (c Conf) MayString(key, def string) string {
	return may(c, key, def, func(s string) (string, error) { return s, nil })
}

// MayInt returns key as an int or def
func (c Conf) MayInt(key string, def int) int { return may(c, key, def, strconv.Atoi) }

// MayFloat64 returns key as a float or def
func (c Conf) MayFloat64(key string, def float64) float64 {
	return may(c, key, def, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

// MayBool returns key as a bool or def
func (c Conf) MayBool(key string, def bool) bool { return may(c, key, def, strconv.ParseBool) }

// MayDuration returns key as a duration such as 750ms or def
func (c Conf) MayDuration(key string, def time.Duration) time.Duration {
	return may(c, key, def, time.ParseDuration)
}

// MayCSV splits key on commas, dropping blanks; def when nothing is left
func (c Conf) MayCSV(key string, def []string) []string {
	var out []string
	for _, p := range strings.Split(c.lookup(key), ",") {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

// MayEnum returns key or def and panics when the value is not one of allowed
// matching ignores case
func (c Conf) MayEnum(key, def string, allowed ...string) string {
	v := c.MayString(key, def)
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return v
		}
	}
	if v != "" {
		logger.Get().Panic().Str("key", c.key(key)).Str("value", v).Strs("allowed", allowed).Msg("invalid enum value")
	}
	return v
}
