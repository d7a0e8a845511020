package config

import (
	"reflect"
	"testing"
	"time"

	kit "turnstile/internal/platform/testkit"
)

func TestPrefix(t *testing.T) {
	c := New().Prefix("STORE_").Prefix("PG_")
	if got := c.key("DBURL"); got != "STORE_PG_DBURL" {
		t.Fatalf("key = %q", got)
	}
}

func TestMustString(t *testing.T) {
	c := New().Prefix("STORE_PG_")
	t.Setenv("STORE_PG_DBURL", "  postgres://localhost/turnstile ")
	if got := c.MustString("DBURL"); got != "postgres://localhost/turnstile" {
		t.Fatalf("MustString = %q", got)
	}
	t.Setenv("STORE_PG_BLANK", "   ")
	kit.MustPanic(t, func() { c.MustString("BLANK") })
	kit.MustPanic(t, func() { c.MustString("MISSING") })
}

func TestMay(t *testing.T) {
	t.Setenv("TURNS_QUIET_MS", " 1500 ")
	t.Setenv("TURNS_LEASE", "45s")
	t.Setenv("TURNS_RATE", "2.5")
	t.Setenv("TURNS_LOG_SQL", "true")
	t.Setenv("TURNS_BAD_INT", "soon")
	t.Setenv("TURNS_BAD_DUR", "30")
	t.Setenv("TURNS_BAD_BOOL", "maybe")
	c := New().Prefix("TURNS_")

	cases := []struct {
		name string
		got  any
		want any
	}{
		{"int", c.MayInt("QUIET_MS", 800), 1500},
		{"int default", c.MayInt("MISSING", 800), 800},
		{"int invalid", c.MayInt("BAD_INT", 800), 800},
		{"duration", c.MayDuration("LEASE", time.Minute), 45 * time.Second},
		{"duration invalid", c.MayDuration("BAD_DUR", time.Minute), time.Minute},
		{"float", c.MayFloat64("RATE", 1), 2.5},
		{"bool", c.MayBool("LOG_SQL", false), true},
		{"bool invalid", c.MayBool("BAD_BOOL", false), false},
		{"string", c.MayString("LEASE", "x"), "45s"},
		{"string default", c.MayString("MISSING", "x"), "x"},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("%s: got %v want %v", tc.name, tc.got, tc.want)
		}
	}
}

func TestMayCSV(t *testing.T) {
	c := New().Prefix("WEBCHAT_")
	t.Setenv("WEBCHAT_ALLOWED_ORIGINS", " https://a.example , ,https://b.example,")
	t.Setenv("WEBCHAT_EMPTY", " , , ")

	if got := c.MayCSV("ALLOWED_ORIGINS", nil); !reflect.DeepEqual(got, []string{"https://a.example", "https://b.example"}) {
		t.Fatalf("csv = %q", got)
	}
	def := []string{"*"}
	if got := c.MayCSV("EMPTY", def); !reflect.DeepEqual(got, def) {
		t.Fatalf("blank csv = %q", got)
	}
	if got := c.MayCSV("MISSING", def); !reflect.DeepEqual(got, def) {
		t.Fatalf("missing csv = %q", got)
	}
}

func TestMayEnum(t *testing.T) {
	c := New().Prefix("INTERVIEW_")
	allowed := []string{"auto", "openai", "scripted"}

	if got := c.MayEnum("COLLABORATOR", "auto", allowed...); got != "auto" {
		t.Fatalf("default = %q", got)
	}
	t.Setenv("INTERVIEW_COLLABORATOR", "OpenAI")
	if got := c.MayEnum("COLLABORATOR", "auto", allowed...); got != "OpenAI" {
		t.Fatalf("case insensitive = %q", got)
	}
	if got := c.MayEnum("MISSING", "", allowed...); got != "" {
		t.Fatalf("empty default = %q", got)
	}
	t.Setenv("INTERVIEW_COLLABORATOR", "human")
	kit.MustPanic(t, func() { c.MayEnum("COLLABORATOR", "auto", allowed...) })
}
