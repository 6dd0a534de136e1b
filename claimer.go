package j1939

import (
	"math/rand"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Timing constants from spec.md §6.
const (
	claimTimeout         = 250 * time.Millisecond
	cannotClaimJitterMax = 153 // milliseconds, inclusive upper bound
)

// Claimer wraps a StateMachine with the two timers it needs (spec.md
// §4.3): a 250ms claim-resolution timer armed on BeginClaiming, and a
// 0-153ms jitter timer armed on CannotClaim. All event processing for one
// Claimer is serialized on its own strand, grounded on the teacher's
// goroutine-per-node processing loop (pkg/network, since deleted — see
// DESIGN.md), generalized here from a polling loop to a work-item channel.
type Claimer struct {
	name     NAME
	dir      *Directory
	sm       *StateMachine
	logger   *log.Logger
	observer Observer

	mu          sync.Mutex
	claimTimer  *time.Timer
	jitterTimer *time.Timer

	work chan func()
	done chan struct{}
	once sync.Once
}

// NewClaimer creates a Claimer for name over dir and starts its strand
// goroutine. observer and logger may be nil (defaults to NoopObserver and
// logrus.StandardLogger).
func NewClaimer(name NAME, dir *Directory, observer Observer, logger *log.Logger) *Claimer {
	if observer == nil {
		observer = NoopObserver{}
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	c := &Claimer{
		name:     name,
		dir:      dir,
		logger:   logger,
		observer: observer,
		work:     make(chan func(), 64),
		done:     make(chan struct{}),
	}
	c.sm = NewStateMachine(name, dir, c)
	go c.run()
	return c
}

func (c *Claimer) Name() NAME { return c.name }

// State returns the current arbitration state. Safe to call from any
// goroutine; the returned value may be stale by the time the caller acts
// on it, which is expected for a concurrently-running strand.
func (c *Claimer) State() State { return c.sm.State() }

func (c *Claimer) run() {
	for {
		select {
		case fn := <-c.work:
			fn()
		case <-c.done:
			return
		}
	}
}

func (c *Claimer) post(fn func()) {
	select {
	case c.work <- fn:
	case <-c.done:
	}
}

// Close stops the strand and cancels both timers. Per spec.md §5,
// cancellation is not an error and pending directory/session state is not
// cleaned up here.
func (c *Claimer) Close() {
	c.once.Do(func() {
		close(c.done)
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.claimTimer != nil {
			c.claimTimer.Stop()
		}
		if c.jitterTimer != nil {
			c.jitterTimer.Stop()
		}
	})
}

// StartAddressClaim posts StartClaim{preferred} to the strand. Idempotent
// when the machine is not currently in No-Address (spec.md §4.3).
func (c *Claimer) StartAddressClaim(preferred uint8) {
	c.post(func() {
		if c.sm.State().Kind != StateNoAddress {
			return
		}
		c.sm.Step(Event{Kind: EventStartClaim, Preferred: preferred})
	})
}

// Process decodes an incoming claim/request frame and posts the
// corresponding event to the strand. Frames with any other PF are
// ignored; routing by PGN to the claimer vs the TP engine is the
// connection facade's job (spec.md §4.6).
func (c *Claimer) Process(f Frame) {
	c.post(func() {
		h := f.Header
		switch {
		case h.IsClaim():
			if len(f.Payload) < 8 {
				c.observer.OnError("on_frame_address_claim", ErrIllegalArgument)
				return
			}
			var b [8]byte
			copy(b[:], f.Payload)
			other := NameFromBytes(b)
			addr := h.SA
			if res := c.dir.Insert(other, addr); res == Rejected {
				c.observer.OnError("on_frame_address_claim", ErrAddressInUse)
			}
			c.sm.Step(Event{Kind: EventAddressClaim, OtherName: other, Claimed: addr})
		case h.IsRequest():
			c.sm.Step(Event{Kind: EventAddressRequest, Destination: h.PS})
		}
	})
}

// --- Hooks implementation (called synchronously from the strand by StateMachine.Step) ---

func (c *Claimer) EmitFrame(f Frame) {
	c.observer.OnFrame(f)
}

func (c *Claimer) BeginClaiming() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.claimTimer != nil {
		c.claimTimer.Stop()
	}
	c.claimTimer = time.AfterFunc(claimTimeout, func() {
		c.post(func() { c.sm.Step(Event{Kind: EventTimeout}) })
	})
}

func (c *Claimer) CannotClaim() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.jitterTimer != nil {
		c.jitterTimer.Stop()
	}
	delay := time.Duration(rand.Intn(cannotClaimJitterMax+1)) * time.Millisecond
	c.jitterTimer = time.AfterFunc(delay, func() {
		if !c.name.SelfConfigurable() {
			return
		}
		c.post(func() { c.sm.Step(Event{Kind: EventRandomRetry}) })
	})
}

func (c *Claimer) AddressGained(addr uint8) {
	c.logger.WithFields(log.Fields{"name": c.name, "address": addr}).Debug("[J1939] address claimed")
	c.observer.OnAddressClaimed(c.name, addr)
}

func (c *Claimer) AddressLost() {
	c.logger.WithFields(log.Fields{"name": c.name}).Debug("[J1939] address lost")
	c.observer.OnAddressLost(c.name)
}
