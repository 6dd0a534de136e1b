package j1939

import can "github.com/j1939-go/j1939/pkg/can"

// PGN numbers interpreted by this library (spec.md §1).
const (
	PGNAddressClaim  uint32 = 0x00EE00
	PGNRequest       uint32 = 0x00EA00
	PGNTransportCM   uint32 = 0x00EC00
	PGNTransportData uint32 = 0x00EB00
)

// priorityAddressClaim is the CAN priority field used by every address
// claim / cannot-claim / request frame this library emits (spec.md §6).
const priorityAddressClaim uint8 = 6

// Frame is a decoded J1939 message: header plus payload. Payload may be
// longer than 8 bytes when used to carry a transport-protocol message
// being assembled or delivered; ToCANFrame requires len(Payload) <= 8.
type Frame struct {
	Header  Header
	Payload []byte
}

// ToCANFrame converts a single-packet Frame into the wire-level can.Frame.
// Payload must be 8 bytes or fewer.
func (f Frame) ToCANFrame() (can.Frame, error) {
	if len(f.Payload) > 8 {
		return can.Frame{}, ErrPayloadTooLarge
	}
	cf := can.Frame{ID: f.Header.CANID(), DLC: uint8(len(f.Payload))}
	copy(cf.Data[:], f.Payload)
	return cf, nil
}

// FrameFromCANFrame decodes a wire-level can.Frame into a Frame.
func FrameFromCANFrame(cf can.Frame) Frame {
	dlc := cf.DLC
	if dlc > 8 {
		dlc = 8
	}
	payload := make([]byte, dlc)
	copy(payload, cf.Data[:dlc])
	return Frame{Header: HeaderFromID(cf.ID), Payload: payload}
}

// MakeAddressRequest builds a request for the address-claim PGN, addressed
// to target (AddressGlobal for a global request, per spec.md §6).
func MakeAddressRequest(target uint8) Frame {
	return Frame{
		Header: Header{
			Priority: priorityAddressClaim,
			PF:       PFRequest,
			PS:       target,
			SA:       AddressIdle,
		},
		Payload: []byte{0x00, 0xEE, 0x00}, // PGN 0x00EE00, little-endian
	}
}

// MakeAddressClaim builds an address-claim frame announcing name as the
// owner of sa.
func MakeAddressClaim(name NAME, sa uint8) Frame {
	payload := name.Bytes()
	return Frame{
		Header: Header{
			Priority: priorityAddressClaim,
			PF:       PFAddressClaim,
			PS:       AddressGlobal,
			SA:       sa,
		},
		Payload: payload[:],
	}
}

// MakeCannotClaim builds a cannot-claim frame: an address-claim frame sent
// with SA = AddressIdle, announcing that name currently owns no address.
func MakeCannotClaim(name NAME) Frame {
	return MakeAddressClaim(name, AddressIdle)
}
