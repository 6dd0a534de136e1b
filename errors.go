package j1939

import "errors"

// Sentinel errors surfaced via Observer.OnError. Comments match the error
// taxonomy classes they belong to (see DESIGN.md / SPEC_FULL.md §7).
var (
	// Directory rejection.
	ErrAddressInUse = errors.New("address already claimed by a higher priority name")

	// Arbitration.
	ErrNoAddressAvailable = errors.New("no address available in directory")

	// Transport protocol / protocol violation.
	ErrPayloadTooLarge   = errors.New("payload exceeds 1785 bytes")
	ErrPayloadTooSmall   = errors.New("payload of 8 bytes or less does not require transport protocol")
	ErrSessionExists     = errors.New("a transport session already exists for this address pair")
	ErrUnknownSession    = errors.New("no transport session matches this frame")
	ErrBadSequence       = errors.New("data transfer sequence number out of expected range")
	ErrDuplicateSequence = errors.New("data transfer sequence number repeated")
	ErrAborted           = errors.New("remote end aborted the transport session")

	// Timeout.
	ErrTimeout = errors.New("operation timed out")

	// Misuse.
	ErrIllegalArgument = errors.New("error in function arguments")
	ErrNotConnected    = errors.New("connection is not bound to a bus")
	ErrNoAddress       = errors.New("local name does not currently own an address")
)
