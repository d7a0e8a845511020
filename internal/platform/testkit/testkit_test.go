package testkit

import (
	"testing"
)

var leaseTTL = 30

func TestHelpers(t *testing.T) {
	MustPanic(t, func() { panic("lease lost") })
	MustContain(t, "turn t-1 delivered", "delivered")

	t.Run("swap", func(t *testing.T) {
		Serial(t)
		Swap(t, &leaseTTL, 5)
		if leaseTTL != 5 {
			t.Fatalf("leaseTTL = %d", leaseTTL)
		}
	})
	if leaseTTL != 30 {
		t.Fatalf("not restored: %d", leaseTTL)
	}

	// Serial released by the subtest cleanup
	t.Run("serial again", func(t *testing.T) { Serial(t) })
}
