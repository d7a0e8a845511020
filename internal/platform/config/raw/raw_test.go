package raw

import "testing"

func TestConf(t *testing.T) {
	t.Setenv("LOG_LEVEL", " WARN ")
	t.Setenv("LOG_CALLER", "Yes")
	t.Setenv("LOG_COLOR", "off")
	t.Setenv("LOG_SAMPLE_EVERY", "10")
	t.Setenv("LOG_NEG", "-3")
	t.Setenv("LOG_JUNK", "12x")
	c := New().Prefix("LOG_")

	if got := c.Get("LEVEL", "debug"); got != "WARN" {
		t.Fatalf("Get = %q", got)
	}
	if got := c.Get("FORMAT", "console"); got != "console" {
		t.Fatalf("Get default = %q", got)
	}

	bools := []struct {
		key  string
		def  bool
		want bool
	}{
		{"CALLER", false, true},
		{"COLOR", true, false},
		{"MISSING", true, true},
	}
	for _, tc := range bools {
		if got := c.GetBool(tc.key, tc.def); got != tc.want {
			t.Errorf("GetBool(%s) = %v", tc.key, got)
		}
	}

	ints := map[string]int{"SAMPLE_EVERY": 10, "NEG": 7, "JUNK": 7, "MISSING": 7}
	for key, want := range ints {
		if got := c.GetInt(key, 7); got != want {
			t.Errorf("GetInt(%s) = %d want %d", key, got, want)
		}
	}
}
