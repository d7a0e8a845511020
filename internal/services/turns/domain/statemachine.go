package domain

import (
	"time"

	ptime "turnstile/internal/platform/time"
)

// ClaimOutcome explains why a claim attempt did or did not produce a ticket
type ClaimOutcome string

// Claim outcomes; only ClaimWon yields a ticket
const (
	ClaimWon      ClaimOutcome = "won"
	ClaimNotDue   ClaimOutcome = "not_due"
	ClaimHeld     ClaimOutcome = "held"
	ClaimIdle     ClaimOutcome = "idle"
	ClaimClosed   ClaimOutcome = "closed"
	ClaimRequeued ClaimOutcome = "requeued"
)

// NewKeyState returns the idle record for a key seen for the first time
func NewKeyState(key BufferKey, now time.Time) KeyState {
	return KeyState{Key: key, State: StateIdle, UpdatedAt: now}
}

// Arm applies a content or liveness event observed at now
// the deadline is max(existing, now+quiet) so it never regresses;
// a claimed key keeps its ticket and is marked rearmed for the next turn
func (k KeyState) Arm(now time.Time, quiet time.Duration) (KeyState, ArmResult) {
	if k.State == StateClosed {
		return k, ArmResult{State: StateClosed, DueAt: k.DueAt, Dropped: true}
	}
	k.DueAt = ptime.Max(k.DueAt, now.Add(quiet))
	switch k.State {
	case StateClaimed:
		k.Rearmed = true
	default:
		k.State = StateArmed
	}
	k.UpdatedAt = now
	return k, ArmResult{State: k.State, DueAt: k.DueAt}
}

// Claim is the compare-and-swap at the heart of the scheduler
// an armed key whose deadline passed, or a claimed key whose lease expired, yields a new ticket
// covering every message up to LastSeq
func (k KeyState) Claim(now time.Time, lease time.Duration, flushID string) (KeyState, FlushTicket, ClaimOutcome) {
	switch k.State {
	case StateClosed:
		return k, FlushTicket{}, ClaimClosed
	case StateIdle:
		return k, FlushTicket{}, ClaimIdle
	case StateArmed:
		if k.DueAt.After(now) {
			return k, FlushTicket{}, ClaimNotDue
		}
	case StateClaimed:
		if k.Ticket != nil && k.Ticket.LeaseUntil.After(now) {
			return k, FlushTicket{}, ClaimHeld
		}
		// abandoned claim: if the candidate became active again, wait for the new quiet period
		if k.DueAt.After(now) {
			k.State = StateArmed
			k.Ticket = nil
			k.Rearmed = false
			k.UpdatedAt = now
			return k, FlushTicket{}, ClaimRequeued
		}
	}

	t := FlushTicket{
		Key:         k.Key,
		FlushID:     flushID,
		TriggeredAt: now,
		Watermark:   k.LastSeq,
		LeaseUntil:  now.Add(lease),
	}
	k.State = StateClaimed
	k.Ticket = &t
	k.Rearmed = false
	k.UpdatedAt = now
	return k, t, ClaimWon
}

// Owns reports whether t is the live ticket of this key
func (k KeyState) Owns(t FlushTicket) bool {
	return k.State == StateClaimed && k.Ticket != nil && k.Ticket.FlushID == t.FlushID
}

// Release ends the claim after a drain
// leftovers are messages with seq above the watermark; they start the next turn
func (k KeyState) Release(t FlushTicket, now time.Time, leftovers, ended bool) (KeyState, error) {
	if !k.Owns(t) {
		return k, ErrClaimLost
	}
	k.Ticket = nil
	k.UpdatedAt = now
	switch {
	case ended:
		k.State = StateClosed
		k.DueAt = time.Time{}
		k.Rearmed = false
	case leftovers || k.Rearmed:
		k.State = StateArmed
		k.Rearmed = false
	default:
		k.State = StateIdle
		k.DueAt = time.Time{}
	}
	return k, nil
}

// Close is the conversation.ended transition
// a claimed key keeps its ticket so the in-flight flush can finish; Release then closes it
func (k KeyState) Close(now time.Time) KeyState {
	if k.State == StateClaimed {
		k.Rearmed = false
		k.UpdatedAt = now
		return k
	}
	k.State = StateClosed
	k.DueAt = time.Time{}
	k.Rearmed = false
	k.UpdatedAt = now
	return k
}

// Retire is the claim attempt on a key of an ended conversation
// a live ticket is left alone so its flush can finish; anything else,
// including a claim whose worker died, becomes closed and drops out of the sweep
func (k KeyState) Retire(now time.Time) (KeyState, bool) {
	if k.State == StateClaimed && k.Ticket != nil && k.Ticket.LeaseUntil.After(now) {
		return k, false
	}
	k.State = StateClosed
	k.Ticket = nil
	k.DueAt = time.Time{}
	k.Rearmed = false
	k.UpdatedAt = now
	return k, true
}

// WakeAt is when the sweeper should next look at the key, zero when never
func (k KeyState) WakeAt() time.Time {
	switch k.State {
	case StateArmed:
		return k.DueAt
	case StateClaimed:
		if k.Ticket != nil {
			return k.Ticket.LeaseUntil
		}
	}
	return time.Time{}
}
