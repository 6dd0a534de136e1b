package j1939

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingObserver struct {
	NoopObserver
	claimedCh chan struct{}
	lostCh    chan struct{}
	errs      []error
	frames    []Frame
}

func newCapturingObserver() *capturingObserver {
	return &capturingObserver{claimedCh: make(chan struct{}, 8), lostCh: make(chan struct{}, 8)}
}

func (o *capturingObserver) OnAddressClaimed(name NAME, addr uint8) { o.claimedCh <- struct{}{} }
func (o *capturingObserver) OnAddressLost(name NAME)                { o.lostCh <- struct{}{} }
func (o *capturingObserver) OnError(where string, err error)        { o.errs = append(o.errs, err) }
func (o *capturingObserver) OnFrame(f Frame)                        { o.frames = append(o.frames, f) }

func waitFor(t *testing.T, ch chan struct{}, timeout time.Duration) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for event")
	}
}

func TestClaimerResolvesAfterClaimTimeout(t *testing.T) {
	dir := NewDirectory("can0")
	obs := newCapturingObserver()
	name := NewName(NameFields{IdentityNumber: 1})
	c := NewClaimer(name, dir, obs, nil)
	defer c.Close()

	c.StartAddressClaim(0x80)
	waitFor(t, obs.claimedCh, claimTimeout+200*time.Millisecond)

	assert.Equal(t, StateHasAddress, c.State().Kind)
	assert.Equal(t, uint8(0x80), c.State().Address)
}

func TestClaimerStartAddressClaimIgnoredWhenNotIdle(t *testing.T) {
	dir := NewDirectory("can0")
	obs := newCapturingObserver()
	name := NewName(NameFields{IdentityNumber: 1})
	c := NewClaimer(name, dir, obs, nil)
	defer c.Close()

	c.StartAddressClaim(0x80)
	waitFor(t, obs.claimedCh, claimTimeout+200*time.Millisecond)

	// Second call should be a no-op: state is already HasAddress.
	c.StartAddressClaim(0x90)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, uint8(0x80), c.State().Address)
}

func TestClaimerProcessRejectsLowerPriorityRivalAndDefends(t *testing.T) {
	dir := NewDirectory("can0")
	obs := newCapturingObserver()
	name := NewName(NameFields{IdentityNumber: 1}) // highest priority
	c := NewClaimer(name, dir, obs, nil)
	defer c.Close()
	c.StartAddressClaim(0x80)
	waitFor(t, obs.claimedCh, claimTimeout+200*time.Millisecond)

	rival := NewName(NameFields{IdentityNumber: 2})
	claim := MakeAddressClaim(rival, 0x80)
	c.Process(claim)

	// Our priority wins; the directory must still show us as owner, and
	// no address-lost should fire.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, uint8(0x80), dir.GetAddress(name))
	select {
	case <-obs.lostCh:
		t.Fatal("should not have lost the address")
	default:
	}
}

func TestClaimerRejectsMalformedClaimPayload(t *testing.T) {
	dir := NewDirectory("can0")
	obs := newCapturingObserver()
	name := NewName(NameFields{IdentityNumber: 1})
	c := NewClaimer(name, dir, obs, nil)
	defer c.Close()

	bad := Frame{Header: Header{PF: PFAddressClaim, PS: AddressGlobal, SA: 0x10}, Payload: []byte{1, 2, 3}}
	c.Process(bad)
	time.Sleep(20 * time.Millisecond)
	require.NotEmpty(t, obs.errs)
	assert.ErrorIs(t, obs.errs[0], ErrIllegalArgument)
}
