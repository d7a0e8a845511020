package domain

import (
	"errors"
	"testing"
	"time"
)

var (
	t0    = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	key   = BufferKey{CandidateID: "cand-1", ConversationID: "conv-1", Step: 0}
	quiet = 5 * time.Second
	lease = 30 * time.Second
)

func at(sec int) time.Time { return t0.Add(time.Duration(sec) * time.Second) }

func TestArm_DeadlineNeverRegresses(t *testing.T) {
	t.Parallel()

	k := NewKeyState(key, at(0))
	k, res := k.Arm(at(4), quiet)
	if res.State != StateArmed || !res.DueAt.Equal(at(9)) {
		t.Fatalf("first arm: %+v", res)
	}
	// a late-delivered older event must not pull the deadline back
	k, res = k.Arm(at(1), quiet)
	if !res.DueAt.Equal(at(9)) {
		t.Fatalf("deadline regressed to %v", res.DueAt)
	}
	_, res = k.Arm(at(6), quiet)
	if !res.DueAt.Equal(at(11)) {
		t.Fatalf("deadline not extended, got %v", res.DueAt)
	}
}

func TestClaim_Transitions(t *testing.T) {
	t.Parallel()

	k := NewKeyState(key, at(0))
	if _, _, out := k.Claim(at(0), lease, "f0"); out != ClaimIdle {
		t.Fatalf("idle claim outcome = %s", out)
	}

	k.LastSeq = 7
	k, _ = k.Arm(at(0), quiet)
	if _, _, out := k.Claim(at(4), lease, "f1"); out != ClaimNotDue {
		t.Fatalf("early claim outcome = %s", out)
	}

	k, tk, out := k.Claim(at(5), lease, "f1")
	if out != ClaimWon || tk.Watermark != 7 || tk.FlushID != "f1" {
		t.Fatalf("claim: out=%s ticket=%+v", out, tk)
	}
	if !tk.LeaseUntil.Equal(at(35)) {
		t.Fatalf("lease until = %v", tk.LeaseUntil)
	}

	if _, _, out := k.Claim(at(6), lease, "f2"); out != ClaimHeld {
		t.Fatalf("second claim outcome = %s", out)
	}

	// lease expired and quiet: takeover
	k2, tk2, out := k.Claim(at(36), lease, "f2")
	if out != ClaimWon || tk2.FlushID != "f2" {
		t.Fatalf("takeover: out=%s ticket=%+v", out, tk2)
	}
	if k2.Owns(tk) {
		t.Fatalf("old ticket must not own the key after takeover")
	}
}

func TestClaim_ExpiredButActiveIsRequeued(t *testing.T) {
	t.Parallel()

	k := NewKeyState(key, at(0))
	k, _ = k.Arm(at(0), quiet)
	k, _, _ = k.Claim(at(5), lease, "f1")
	k, _ = k.Arm(at(34), quiet) // typing while the claim is stuck

	k, _, out := k.Claim(at(36), lease, "f2")
	if out != ClaimRequeued || k.State != StateArmed || k.Ticket != nil {
		t.Fatalf("requeue: out=%s state=%s", out, k.State)
	}
	if _, _, out := k.Claim(at(39), lease, "f3"); out != ClaimWon {
		t.Fatalf("claim after new quiet period = %s", out)
	}
}

func TestRelease(t *testing.T) {
	t.Parallel()

	base := NewKeyState(key, at(0))
	base, _ = base.Arm(at(0), quiet)

	cases := []struct {
		name      string
		rearm     bool
		leftovers bool
		ended     bool
		want      State
	}{
		{"quiet key goes idle", false, false, false, StateIdle},
		{"rearmed during claim", true, false, false, StateArmed},
		{"leftover messages", false, true, false, StateArmed},
		{"ended meanwhile", true, true, true, StateClosed},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			k, tk, _ := base.Claim(at(5), lease, "f1")
			if tc.rearm {
				k, _ = k.Arm(at(6), quiet)
			}
			k, err := k.Release(tk, at(7), tc.leftovers, tc.ended)
			if err != nil {
				t.Fatalf("Release: %v", err)
			}
			if k.State != tc.want || k.Ticket != nil || k.Rearmed {
				t.Fatalf("state=%s ticket=%v rearmed=%v", k.State, k.Ticket, k.Rearmed)
			}
		})
	}
}

func TestRelease_StaleTicket(t *testing.T) {
	t.Parallel()

	k := NewKeyState(key, at(0))
	k, _ = k.Arm(at(0), quiet)
	k, _, _ = k.Claim(at(5), lease, "f1")
	_, err := k.Release(FlushTicket{FlushID: "other"}, at(6), false, false)
	if !errors.Is(err, ErrClaimLost) {
		t.Fatalf("expected ErrClaimLost, got %v", err)
	}
}

func TestClose(t *testing.T) {
	t.Parallel()

	k := NewKeyState(key, at(0))
	k, _ = k.Arm(at(0), quiet)
	closed := k.Close(at(1))
	if closed.State != StateClosed || !closed.WakeAt().IsZero() {
		t.Fatalf("armed key not closed: %+v", closed)
	}
	if _, res := closed.Arm(at(2), quiet); !res.Dropped {
		t.Fatalf("arm on closed key should drop")
	}

	claimed, tk, _ := k.Claim(at(5), lease, "f1")
	still := claimed.Close(at(6))
	if still.State != StateClaimed || !still.Owns(tk) {
		t.Fatalf("claimed key must keep its ticket on close")
	}
}

func TestRetire(t *testing.T) {
	t.Parallel()

	armed, _ := NewKeyState(key, at(0)).Arm(at(0), quiet)
	claimed, _, _ := armed.Claim(at(5), lease, "f1")

	cases := []struct {
		name    string
		k       KeyState
		now     time.Time
		retired bool
	}{
		{"armed", armed, at(1), true},
		{"live claim", claimed, at(20), false},
		{"expired claim", claimed, at(35), true},
		{"closed", armed.Close(at(1)), at(2), true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := tc.k.Retire(tc.now)
			if ok != tc.retired {
				t.Fatalf("retired = %v want %v", ok, tc.retired)
			}
			if !ok {
				if got.State != StateClaimed || got.Ticket == nil {
					t.Fatalf("live claim changed: %+v", got)
				}
				return
			}
			if got.State != StateClosed || got.Ticket != nil || !got.WakeAt().IsZero() {
				t.Fatalf("not retired: %+v", got)
			}
		})
	}
}
