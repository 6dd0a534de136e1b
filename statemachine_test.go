package j1939

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingHooks captures every Hooks call for assertion, without any
// timer/goroutine involvement (Claimer is the layer that owns timers).
type recordingHooks struct {
	frames   []Frame
	claiming int
	cannot   int
	gained   []uint8
	lost     int
}

func (h *recordingHooks) EmitFrame(f Frame)      { h.frames = append(h.frames, f) }
func (h *recordingHooks) BeginClaiming()         { h.claiming++ }
func (h *recordingHooks) CannotClaim()           { h.cannot++ }
func (h *recordingHooks) AddressGained(a uint8)  { h.gained = append(h.gained, a) }
func (h *recordingHooks) AddressLost()           { h.lost++ }

// S1: lone CA claims its preferred address uncontested.
func TestScenarioLoneClaimSucceeds(t *testing.T) {
	dir := NewDirectory("can0")
	name := NewName(NameFields{IdentityNumber: 1})
	hooks := &recordingHooks{}
	sm := NewStateMachine(name, dir, hooks)

	sm.Step(Event{Kind: EventStartClaim, Preferred: 0x80})
	require.Equal(t, StateClaiming, sm.State().Kind)
	assert.Equal(t, uint8(0x80), sm.State().Candidate)
	assert.Equal(t, 1, hooks.claiming)

	sm.Step(Event{Kind: EventTimeout})
	require.Equal(t, StateHasAddress, sm.State().Kind)
	assert.Equal(t, uint8(0x80), sm.State().Address)
	assert.Equal(t, []uint8{0x80}, hooks.gained)
	assert.Equal(t, uint8(0x80), dir.GetAddress(name))
}

// S2: a higher-priority remote claim while we're mid-claim forces us to
// concede and re-enter Claiming for a new candidate (address space not
// exhausted).
func TestScenarioLoseToHigherPriorityDuringClaim(t *testing.T) {
	dir := NewDirectory("can0")
	ours := NewName(NameFields{IdentityNumber: 2, SelfConfigurable: true})
	higher := NewName(NameFields{IdentityNumber: 1})
	hooks := &recordingHooks{}
	sm := NewStateMachine(ours, dir, hooks)
	sm.Step(Event{Kind: EventStartClaim, Preferred: 0x80})

	// Mirrors Claimer.Process: the directory learns of the competing claim
	// before the state machine event is stepped.
	dir.Insert(higher, 0x80)
	sm.Step(Event{Kind: EventAddressClaim, OtherName: higher, Claimed: 0x80})
	require.Equal(t, StateClaiming, sm.State().Kind)
	assert.NotEqual(t, uint8(0x80), sm.State().Candidate)
}

// S2 variant: once we hold an address, losing it to a higher-priority
// claimant surfaces AddressLost before re-claiming.
func TestScenarioLoseAddressAlreadyHeld(t *testing.T) {
	dir := NewDirectory("can0")
	ours := NewName(NameFields{IdentityNumber: 2, SelfConfigurable: true})
	higher := NewName(NameFields{IdentityNumber: 1})
	hooks := &recordingHooks{}
	sm := NewStateMachine(ours, dir, hooks)
	sm.Step(Event{Kind: EventStartClaim, Preferred: 0x80})
	sm.Step(Event{Kind: EventTimeout})
	require.Equal(t, StateHasAddress, sm.State().Kind)

	dir.Insert(higher, 0x80)
	sm.Step(Event{Kind: EventAddressClaim, OtherName: higher, Claimed: 0x80})
	assert.Equal(t, 1, hooks.lost)
	assert.Equal(t, StateClaiming, sm.State().Kind)
}

// S3: the address space is exhausted, so a conflict forces AddressLost
// rather than a further claim attempt.
func TestScenarioFullNetworkCannotClaim(t *testing.T) {
	dir := NewDirectory("can0")
	for a := 0; a < 254; a++ {
		if a == 0x80 {
			continue
		}
		n := NewName(NameFields{IdentityNumber: uint32(a) + 10})
		dir.Insert(n, uint8(a))
	}
	ours := NewName(NameFields{IdentityNumber: 2})
	higher := NewName(NameFields{IdentityNumber: 1})
	hooks := &recordingHooks{}
	sm := NewStateMachine(ours, dir, hooks)
	sm.Step(Event{Kind: EventStartClaim, Preferred: 0x80})
	sm.Step(Event{Kind: EventTimeout})
	require.Equal(t, StateHasAddress, sm.State().Kind)

	sm.Step(Event{Kind: EventAddressClaim, OtherName: higher, Claimed: 0x80})
	assert.Equal(t, StateAddressLost, sm.State().Kind)
	assert.Equal(t, 1, hooks.cannot)
}

func TestLowerPriorityConflictDefendsAddress(t *testing.T) {
	dir := NewDirectory("can0")
	ours := NewName(NameFields{IdentityNumber: 1})
	lower := NewName(NameFields{IdentityNumber: 2})
	hooks := &recordingHooks{}
	sm := NewStateMachine(ours, dir, hooks)
	sm.Step(Event{Kind: EventStartClaim, Preferred: 0x80})
	sm.Step(Event{Kind: EventTimeout})

	before := len(hooks.frames)
	sm.Step(Event{Kind: EventAddressClaim, OtherName: lower, Claimed: 0x80})
	assert.Equal(t, StateHasAddress, sm.State().Kind)
	assert.Greater(t, len(hooks.frames), before) // re-asserts our claim
}
