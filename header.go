package j1939

// CAN id flag bits, following the SocketCAN convention (also used by the
// wire id returned from Header.CANID): the low 29 bits carry the frame id,
// the high 3 bits carry EFF/RTR/ERR.
const (
	CanEffFlag uint32 = 0x80000000
	CanRtrFlag uint32 = 0x40000000
	CanErrFlag uint32 = 0x20000000
	CanEffMask uint32 = 0x1FFFFFFF
)

// Reserved addresses (spec.md §3/§6).
const (
	AddressIdle   uint8 = 0xFE // no address owned
	AddressGlobal uint8 = 0xFF // broadcast destination, never a legitimate SA
)

// PDU format bytes this library interprets (spec.md §1).
const (
	PFAddressClaim       uint8 = 0xEE
	PFRequest            uint8 = 0xEA
	PFTransportControl   uint8 = 0xEC
	PFTransportData      uint8 = 0xEB
	pfBroadcastThreshold uint8 = 0xF0 // PF >= this value is a broadcast (PDU2) message
)

// Header is the decoded form of a J1939 29-bit CAN identifier: priority,
// data page, PDU format, PDU specific and source address.
type Header struct {
	Priority uint8 // 0..7, 0 = highest
	DataPage uint8 // 0 or 1
	PF       uint8
	PS       uint8
	SA       uint8
}

// ID packs the header fields back into their 29-bit CAN identifier value
// (priority/DP/PF/PS/SA only — no EFF/RTR/ERR bits; see CANID for the
// wire-level id used when handing a frame to a can.Bus).
func (h Header) ID() uint32 {
	return uint32(h.Priority&0x07)<<26 |
		uint32(h.DataPage&0x01)<<24 |
		uint32(h.PF)<<16 |
		uint32(h.PS)<<8 |
		uint32(h.SA)
}

// CANID is the 29-bit identifier with the EFF flag set and RTR/ERR clear —
// the value actually placed in a can.Frame.ID for transmission.
func (h Header) CANID() uint32 {
	return h.ID() | CanEffFlag
}

// HeaderFromID decodes a 29-bit CAN identifier (EFF/RTR/ERR bits, if
// present, are masked off before decoding).
func HeaderFromID(id uint32) Header {
	id &= CanEffMask
	return Header{
		Priority: uint8((id >> 26) & 0x07),
		DataPage: uint8((id >> 24) & 0x01),
		PF:       uint8((id >> 16) & 0xFF),
		PS:       uint8((id >> 8) & 0xFF),
		SA:       uint8(id & 0xFF),
	}
}

// IsBroadcast reports whether the PDU format makes this a PDU2 (broadcast)
// message, in which case PS carries a group extension rather than a
// destination address.
func (h Header) IsBroadcast() bool {
	return h.PF >= pfBroadcastThreshold
}

// IsRequest reports whether this is a J1939 request message (PGN 0xEA00).
func (h Header) IsRequest() bool {
	return h.PF == PFRequest
}

// IsClaim reports whether this is an address-claim/cannot-claim message
// (PGN 0xEE00).
func (h Header) IsClaim() bool {
	return h.PF == PFAddressClaim
}

// PGN derives the 18-bit Parameter Group Number addressed by this header.
func (h Header) PGN() uint32 {
	ps := uint32(0)
	if h.IsBroadcast() {
		ps = uint32(h.PS)
	}
	return uint32(h.DataPage)<<16 | uint32(h.PF)<<8 | ps
}

// HeaderForPGN builds a header for sending a message on the given PGN,
// addressed to destination (ignored — PS carries the group extension — for
// broadcast PGNs, i.e. PF >= 0xF0).
func HeaderForPGN(priority uint8, pgn uint32, destination uint8, source uint8) Header {
	dp := uint8((pgn >> 16) & 0x01)
	pf := uint8((pgn >> 8) & 0xFF)
	ps := uint8(pgn & 0xFF)
	if pf < pfBroadcastThreshold {
		ps = destination
	}
	return Header{Priority: priority, DataPage: dp, PF: pf, PS: ps, SA: source}
}
