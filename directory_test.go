package j1939

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDirectoryInsertUnoccupiedClaims(t *testing.T) {
	d := NewDirectory("can0")
	name := NewName(NameFields{IdentityNumber: 1})
	assert.Equal(t, Claimed, d.Insert(name, 0x80))
	addr := d.GetAddress(name)
	assert.Equal(t, uint8(0x80), addr)
	got, ok := d.GetName(0x80)
	assert.True(t, ok)
	assert.Equal(t, name, got)
}

func TestDirectoryInsertSameNameIdempotent(t *testing.T) {
	d := NewDirectory("can0")
	name := NewName(NameFields{IdentityNumber: 1})
	d.Insert(name, 0x80)
	assert.Equal(t, Claimed, d.Insert(name, 0x80))
}

func TestDirectoryInsertHigherPriorityWins(t *testing.T) {
	d := NewDirectory("can0")
	loser := NewName(NameFields{IdentityNumber: 2})
	winner := NewName(NameFields{IdentityNumber: 1})
	d.Insert(loser, 0x80)

	assert.Equal(t, Claimed, d.Insert(winner, 0x80))
	assert.Equal(t, AddressIdle, d.GetAddress(loser))
	assert.Equal(t, uint8(0x80), d.GetAddress(winner))
}

func TestDirectoryInsertLowerPriorityRejected(t *testing.T) {
	d := NewDirectory("can0")
	incumbent := NewName(NameFields{IdentityNumber: 1})
	challenger := NewName(NameFields{IdentityNumber: 2})
	d.Insert(incumbent, 0x80)

	assert.Equal(t, Rejected, d.Insert(challenger, 0x80))
	assert.Equal(t, AddressIdle, d.GetAddress(challenger))
	assert.Equal(t, uint8(0x80), d.GetAddress(incumbent))
}

func TestDirectoryInsertOutOfRangeIdles(t *testing.T) {
	d := NewDirectory("can0")
	name := NewName(NameFields{IdentityNumber: 1})
	assert.Equal(t, Idled, d.Insert(name, 0xFE))
	assert.Equal(t, AddressIdle, d.GetAddress(name))
}

func TestDirectoryNewNameCallbackOnlyFiresOnClaimed(t *testing.T) {
	d := NewDirectory("can0")
	var claimedCalls int
	d.SetNewNameCallback(func(name NAME, addr uint8) { claimedCalls++ })

	lower := NewName(NameFields{IdentityNumber: 1})
	higher := NewName(NameFields{IdentityNumber: 2})

	d.Insert(higher, 0x80)     // Claimed -> fires
	d.Insert(higher, 0xFE)     // Idled -> does not fire
	d.Insert(higher, 0x80)     // Claimed again -> fires
	d.Insert(lower, 0x80)      // Claimed (priority win) -> fires
	d.Insert(higher, 0x80)     // Rejected -> does not fire

	assert.Equal(t, 3, claimedCalls)
}

func TestDirectoryFindAddressPrefersPreferred(t *testing.T) {
	d := NewDirectory("can0")
	name := NewName(NameFields{IdentityNumber: 1, SelfConfigurable: true})
	addr, ok := d.FindAddress(name, 0x80)
	assert.True(t, ok)
	assert.Equal(t, uint8(0x80), addr)
}

func TestDirectoryFindAddressSelfConfigurableSubstitutes(t *testing.T) {
	d := NewDirectory("can0")
	incumbent := NewName(NameFields{IdentityNumber: 1}) // outranks any challenger below
	d.Insert(incumbent, 0x80)

	challenger := NewName(NameFields{IdentityNumber: 2, SelfConfigurable: true})
	addr, ok := d.FindAddress(challenger, 0x80)
	assert.True(t, ok)
	assert.NotEqual(t, uint8(0x80), addr)
}

func TestDirectoryFindAddressNonSelfConfigurableNeverSubstitutes(t *testing.T) {
	d := NewDirectory("can0")
	incumbent := NewName(NameFields{IdentityNumber: 1})
	d.Insert(incumbent, 0x80)

	challenger := NewName(NameFields{IdentityNumber: 2, SelfConfigurable: false})
	_, ok := d.FindAddress(challenger, 0x80)
	assert.False(t, ok)
}

func TestDirectoryFull(t *testing.T) {
	d := NewDirectory("can0")
	for a := 0; a < 254; a++ {
		name := NewName(NameFields{IdentityNumber: uint32(a) + 1})
		d.Insert(name, uint8(a))
	}
	assert.True(t, d.Full())
}
