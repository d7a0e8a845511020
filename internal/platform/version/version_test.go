package version

import "testing"

func TestInfo_Defaults(t *testing.T) {
	t.Parallel()
	got := Info("turnstile-api")
	if got.Service != "turnstile-api" || got.Version != "dev" || got.Commit != "none" {
		t.Fatalf("Info = %+v", got)
	}
}
