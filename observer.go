package j1939

import can "github.com/j1939-go/j1939/pkg/can"

// Observer consolidates every callback a host application may receive
// (spec.md §6, §9 "Observer callbacks"). Implementations embed
// NoopObserver to get no-op defaults for methods they don't care about,
// matching the design note's preference for one interface over many
// individual closures.
type Observer interface {
	OnStart()
	OnClose()
	OnRead(frame can.Frame)
	OnSend(frame can.Frame)
	OnData(header Header, data []byte)
	OnError(where string, err error)
	OnAddressClaimed(name NAME, addr uint8)
	OnAddressLost(name NAME)
	OnFrame(f Frame) // outbound claim/request frame from a Claimer
	OnNewName(name NAME, addr uint8)
	OnLog(msg string)
}

// NoopObserver implements Observer with no-op methods. Embed it in a
// partial observer to only override the callbacks of interest.
type NoopObserver struct{}

func (NoopObserver) OnStart()                            {}
func (NoopObserver) OnClose()                             {}
func (NoopObserver) OnRead(frame can.Frame)                {}
func (NoopObserver) OnSend(frame can.Frame)                {}
func (NoopObserver) OnData(header Header, data []byte)     {}
func (NoopObserver) OnError(where string, err error)       {}
func (NoopObserver) OnAddressClaimed(name NAME, addr uint8) {}
func (NoopObserver) OnAddressLost(name NAME)                {}
func (NoopObserver) OnFrame(f Frame)                        {}
func (NoopObserver) OnNewName(name NAME, addr uint8)        {}
func (NoopObserver) OnLog(msg string)                       {}
