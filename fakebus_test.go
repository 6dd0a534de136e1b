package j1939

import (
	"sync"

	can "github.com/j1939-go/j1939/pkg/can"
)

// fakeBus is an in-memory can.Bus used to drive deterministic tests
// without a real SocketCAN or virtualcan broker. Every fakeBus sharing the
// same *fakeBusNetwork sees every other member's sends, like a real CAN
// bus's broadcast semantics.
type fakeBus struct {
	net *fakeBusNetwork
}

type fakeBusMember struct {
	bus      *fakeBus
	listener can.FrameListener
}

type fakeBusNetwork struct {
	mu      sync.Mutex
	members []*fakeBusMember
	sent    []can.Frame
}

func newFakeBusNetwork() *fakeBusNetwork {
	return &fakeBusNetwork{}
}

func (n *fakeBusNetwork) newBus() *fakeBus {
	b := &fakeBus{net: n}
	n.mu.Lock()
	n.members = append(n.members, &fakeBusMember{bus: b})
	n.mu.Unlock()
	return b
}

func (b *fakeBus) Connect(...any) error { return nil }
func (b *fakeBus) Disconnect() error    { return nil }

// Send delivers frame to every other member's listener, not the sender's
// own, matching real CAN hardware (no local loopback unless requested).
func (b *fakeBus) Send(frame can.Frame) error {
	b.net.mu.Lock()
	b.net.sent = append(b.net.sent, frame)
	var targets []can.FrameListener
	for _, m := range b.net.members {
		if m.bus != b && m.listener != nil {
			targets = append(targets, m.listener)
		}
	}
	b.net.mu.Unlock()
	for _, l := range targets {
		l.Handle(frame)
	}
	return nil
}

func (b *fakeBus) Subscribe(callback can.FrameListener) error {
	b.net.mu.Lock()
	defer b.net.mu.Unlock()
	for _, m := range b.net.members {
		if m.bus == b {
			m.listener = callback
			break
		}
	}
	return nil
}

func (n *fakeBusNetwork) Sent() []can.Frame {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]can.Frame(nil), n.sent...)
}
