package j1939

// StateKind identifies which of the four address arbitration states a
// StateMachine currently occupies (spec.md §4.2). This, plus the
// associated candidate/address field, is the tagged-union "Arbitration
// state" from spec.md §3 — reproduced as a plain Go value rather than via
// any state-machine metaprogramming library (see SPEC_FULL.md §9).
type StateKind int

const (
	StateNoAddress StateKind = iota
	StateClaiming
	StateHasAddress
	StateAddressLost
)

func (k StateKind) String() string {
	switch k {
	case StateNoAddress:
		return "no-address"
	case StateClaiming:
		return "claiming"
	case StateHasAddress:
		return "has-address"
	case StateAddressLost:
		return "address-lost"
	default:
		return "unknown"
	}
}

// EventKind identifies which of the five events drives a state machine
// step (spec.md §4.2).
type EventKind int

const (
	EventStartClaim EventKind = iota
	EventAddressClaim
	EventAddressRequest
	EventTimeout
	EventRandomRetry
)

// Event is the union of everything that can drive a StateMachine.Step
// call. Only the fields relevant to Kind are meaningful.
type Event struct {
	Kind EventKind

	Preferred uint8 // EventStartClaim

	OtherName NAME  // EventAddressClaim: the claimant
	Claimed   uint8 // EventAddressClaim: the address being claimed

	Destination uint8 // EventAddressRequest
}

// Hooks receives the side effects a StateMachine produces: outbound
// frames and address gain/loss notifications, plus the two points where
// the timed wrapper (Claimer, §4.3) must arm a timer. Consolidated into
// one interface per the observer design note (spec.md §9) instead of a
// set of individual callback fields.
type Hooks interface {
	EmitFrame(f Frame)
	BeginClaiming() // entering Claiming: arm the 250ms claim timer
	CannotClaim()   // a cannot-claim frame was just emitted: arm the jitter timer
	AddressGained(addr uint8)
	AddressLost()
}

// State is the current value of the arbitration state variant.
type State struct {
	Kind      StateKind
	Candidate uint8 // meaningful in StateClaiming
	Address   uint8 // meaningful in StateHasAddress
}

// StateMachine is the per-NAME address arbitration state machine from
// spec.md §4.2. It holds no timers of its own — Claimer supplies those via
// Hooks.BeginClaiming/CannotClaim.
type StateMachine struct {
	name  NAME
	dir   *Directory
	hooks Hooks
	state State
}

// NewStateMachine creates a state machine for name over dir, starting in
// StateNoAddress and running that state's on-entry action.
func NewStateMachine(name NAME, dir *Directory, hooks Hooks) *StateMachine {
	sm := &StateMachine{name: name, dir: dir, hooks: hooks}
	sm.enterNoAddress()
	return sm
}

func (sm *StateMachine) State() State { return sm.state }

func (sm *StateMachine) priorityOurs(other NAME) bool { return sm.name < other }
func conflict(a, b uint8) bool                        { return a == b }

// changeRequired is address_change_required from address_state_machine.hpp:
// a conflict exists on our held/candidate address AND the conflicting
// claimant does not lose to us, so we must give it up.
func (sm *StateMachine) changeRequired(ours uint8, other NAME, claimed uint8) bool {
	return conflict(ours, claimed) && !sm.priorityOurs(other)
}

func (sm *StateMachine) addrAvailable() bool { return !sm.dir.Full() }

func (sm *StateMachine) validAddress(candidate uint8) bool {
	return sm.dir.Claimable(candidate, sm.name) || sm.dir.GetAddress(sm.name) < AddressIdle
}

// Step applies one event to the state machine, running whatever
// guards/actions/transitions spec.md §4.2 prescribes for (state, event).
func (sm *StateMachine) Step(ev Event) {
	switch sm.state.Kind {
	case StateNoAddress:
		sm.stepNoAddress(ev)
	case StateClaiming:
		sm.stepClaiming(ev)
	case StateHasAddress:
		sm.stepHasAddress(ev)
	case StateAddressLost:
		sm.stepAddressLost(ev)
	}
}

// --- No-Address ---

func (sm *StateMachine) enterNoAddress() {
	sm.state = State{Kind: StateNoAddress}
	if sm.addrAvailable() {
		sm.hooks.EmitFrame(MakeAddressRequest(AddressGlobal))
	} else {
		sm.emitCannotClaim()
	}
}

func (sm *StateMachine) stepNoAddress(ev Event) {
	switch ev.Kind {
	case EventStartClaim:
		if sm.addrAvailable() {
			sm.enterClaiming(ev.Preferred)
		} else {
			sm.emitCannotClaim()
		}
	case EventAddressRequest:
		if ev.Destination == AddressGlobal {
			sm.emitCannotClaim()
		}
	}
}

// --- Claiming ---

func (sm *StateMachine) enterClaiming(candidate uint8) {
	if found, ok := sm.dir.FindAddress(sm.name, candidate); ok {
		candidate = found
	}
	sm.state = State{Kind: StateClaiming, Candidate: candidate}
	sm.hooks.EmitFrame(MakeAddressClaim(sm.name, candidate))
	sm.hooks.BeginClaiming()
}

func (sm *StateMachine) stepClaiming(ev Event) {
	candidate := sm.state.Candidate
	switch ev.Kind {
	case EventAddressClaim:
		switch {
		case conflict(candidate, ev.Claimed) && sm.priorityOurs(ev.OtherName):
			sm.hooks.EmitFrame(MakeAddressClaim(sm.name, candidate))
		case sm.changeRequired(candidate, ev.OtherName, ev.Claimed) && sm.addrAvailable():
			sm.enterClaiming(candidate)
		case sm.changeRequired(candidate, ev.OtherName, ev.Claimed) && !sm.addrAvailable():
			sm.enterAddressLost()
		}
	case EventAddressRequest:
		if ev.Destination == candidate || ev.Destination == AddressGlobal {
			sm.hooks.EmitFrame(MakeAddressClaim(sm.name, candidate))
		}
	case EventTimeout:
		if sm.validAddress(candidate) {
			sm.enterHasAddress(candidate)
		} else {
			sm.enterNoAddress()
		}
	}
}

// --- Has-Address ---

func (sm *StateMachine) enterHasAddress(addr uint8) {
	sm.state = State{Kind: StateHasAddress, Address: addr}
	sm.dir.Insert(sm.name, addr)
	sm.hooks.AddressGained(addr)
}

func (sm *StateMachine) exitHasAddress() {
	sm.hooks.AddressLost()
}

func (sm *StateMachine) stepHasAddress(ev Event) {
	addr := sm.state.Address
	switch ev.Kind {
	case EventAddressRequest:
		if ev.Destination == addr || ev.Destination == AddressGlobal {
			sm.hooks.EmitFrame(MakeAddressClaim(sm.name, addr))
		}
	case EventAddressClaim:
		switch {
		case conflict(addr, ev.Claimed) && sm.priorityOurs(ev.OtherName):
			sm.hooks.EmitFrame(MakeAddressClaim(sm.name, addr))
		case sm.changeRequired(addr, ev.OtherName, ev.Claimed) && sm.addrAvailable():
			sm.exitHasAddress()
			sm.enterClaiming(addr)
		case sm.changeRequired(addr, ev.OtherName, ev.Claimed) && !sm.addrAvailable():
			sm.exitHasAddress()
			sm.enterAddressLost()
		}
	}
}

// --- Address-Lost ---

func (sm *StateMachine) enterAddressLost() {
	sm.state = State{Kind: StateAddressLost}
	sm.emitCannotClaim()
}

func (sm *StateMachine) stepAddressLost(ev Event) {
	switch ev.Kind {
	case EventAddressRequest:
		if ev.Destination == AddressGlobal {
			sm.emitCannotClaim()
		}
	case EventRandomRetry:
		if sm.name.SelfConfigurable() && sm.addrAvailable() {
			candidate, _ := sm.dir.FindAddress(sm.name, 0)
			sm.enterClaiming(candidate)
		} else {
			sm.emitCannotClaim()
			sm.enterNoAddress()
		}
	}
}

func (sm *StateMachine) emitCannotClaim() {
	sm.hooks.EmitFrame(MakeCannotClaim(sm.name))
	sm.hooks.CannotClaim()
}
