package j1939

import (
	"sync"

	can "github.com/j1939-go/j1939/pkg/can"
	log "github.com/sirupsen/logrus"
)

// BusManager wraps a can.Bus: Send-wrapping with logging and mutex-guarded
// access to the bus. It holds no receive callback; Connection.Start
// subscribes its single listener on the bus directly. Unlike the teacher's
// fixed-ID map[uint32][]FrameListener dispatch, RX fan-out here happens by
// decoded PGN in Connection.handle, since J1939 source addresses are assigned
// dynamically and a fixed-ID listener map doesn't fit (see DESIGN.md).
type BusManager struct {
	mu     sync.Mutex
	bus    can.Bus
	logger *log.Logger
}

func NewBusManager(bus can.Bus, logger *log.Logger) *BusManager {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &BusManager{bus: bus, logger: logger}
}

func (bm *BusManager) SetBus(bus can.Bus) {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	bm.bus = bus
}

func (bm *BusManager) Bus() can.Bus {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	return bm.bus
}

// Send writes a frame to the bus. Errors are logged and returned; the
// caller decides whether to surface them via Observer.OnError (spec.md §7
// "Bus / I/O error").
func (bm *BusManager) Send(frame can.Frame) error {
	err := bm.Bus().Send(frame)
	if err != nil {
		bm.logger.WithError(err).Warn("[J1939] send failed")
	}
	return err
}
