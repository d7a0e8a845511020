package strings

import (
	"reflect"
	"testing"
)

func TestIfEmpty(t *testing.T) {
	t.Parallel()
	def := []string{"GET"}
	if got := IfEmpty(nil, def); !reflect.DeepEqual(got, def) {
		t.Fatalf("nil gave %v", got)
	}
	in := []string{"POST"}
	if got := IfEmpty(in, def); !reflect.DeepEqual(got, in) {
		t.Fatalf("non-empty gave %v", got)
	}
}

func TestMustPrefix(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"channels":   "/channels",
		"/turns/":    "/turns",
		" //meta// ": "/meta",
		"webchat/ws": "/webchat/ws",
		"/a/b/":      "/a/b",
	}
	for in, want := range cases {
		if got := MustPrefix(in); got != want {
			t.Fatalf("MustPrefix(%q) = %q want %q", in, got, want)
		}
	}
	for _, in := range []string{"", " ", "///"} {
		func() {
			defer func() {
				if recover() == nil {
					t.Fatalf("MustPrefix(%q) should panic", in)
				}
			}()
			MustPrefix(in)
		}()
	}
}

func TestMustString(t *testing.T) {
	t.Parallel()
	if MustString("turns", "name") != "turns" {
		t.Fatal("value should pass through")
	}
	defer func() {
		r := recover()
		if r != "name is required" {
			t.Fatalf("panic = %v", r)
		}
	}()
	MustString("  ", "name")
}
