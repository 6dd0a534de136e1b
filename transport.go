package j1939

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Transport protocol timing constants (spec.md §6).
const (
	tpT1 = 750 * time.Millisecond  // RTS -> CTS wait
	tpT2 = 1250 * time.Millisecond // CTS -> first DT wait (and general Rx inactivity)
	tpT3 = 1250 * time.Millisecond // final DT -> EOM_ACK wait (and general Tx inactivity)
	tpTr = 200 * time.Millisecond  // minimum frame separation
)

// TP.CM control byte values (spec.md §4.5).
const (
	tpControlRTS    byte = 0x10
	tpControlCTS    byte = 0x11
	tpControlEOMAck byte = 0x13
	tpControlBAM    byte = 0x20
	tpControlAbort  byte = 0xFF
)

// AbortCode is the reason byte carried in a TP.CM ABORT message.
type AbortCode uint8

const (
	AbortAlreadyInSession AbortCode = 1
	AbortResourcesBusy    AbortCode = 2
	AbortTimeout          AbortCode = 3
	AbortCtsWhileDT       AbortCode = 4
	AbortMaxRetransmit    AbortCode = 5
	AbortUnexpectedPacket AbortCode = 6
	AbortBadSequence      AbortCode = 7
	AbortDuplicateSeq     AbortCode = 8
	AbortLengthExceeded   AbortCode = 9
	AbortUnspecified      AbortCode = 250
)

// Direction distinguishes a transport session sending data from one
// receiving it. Two sessions to the same peer, one of each direction, can
// coexist (spec.md §9 "TP session keying").
type Direction int

const (
	DirectionTx Direction = iota
	DirectionRx
)

type sessionKey struct {
	local     uint8
	remote    uint8
	direction Direction
}

// tpSession is the "TP session" data-model entry from spec.md §3.
type tpSession struct {
	key          sessionKey
	pgn          uint32
	bam          bool
	buffer       []byte
	totalPackets uint8
	nextSeq      uint8 // 1-based
	windowSize   uint8 // Rx only: packets requested in the current CTS window
	windowStart  uint8 // Rx only: sequence number the current window began at
	senderMax    uint8 // Rx only: the RTS originator's declared max packets per CTS
	lastActivity time.Time
}

// SendFunc transmits a single already-addressed Frame. The connection
// facade supplies this so Transport never touches a can.Bus directly.
type SendFunc func(Frame) error

// Transport implements the TP.CM/TP.DT session engine of spec.md §4.5:
// segmentation and reassembly for payloads beyond 8 bytes, BAM and
// RTS/CTS flows, flow control, timeouts and aborts. Grounded on the
// teacher's segmented SDO transfer shape (sdo_client.go/sdo_server.go,
// since deleted — see DESIGN.md) for the session-table-plus-tick idiom.
type Transport struct {
	mu       sync.Mutex
	sessions map[sessionKey]*tpSession
	send     SendFunc
	observer Observer
	logger   *log.Logger
}

func NewTransport(send SendFunc, observer Observer, logger *log.Logger) *Transport {
	if observer == nil {
		observer = NoopObserver{}
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Transport{
		sessions: make(map[sessionKey]*tpSession),
		send:     send,
		observer: observer,
		logger:   logger,
	}
}

// Send segments data (8 < len(data) <= 1785) and transmits it from
// localSA to dest under pgn, using BAM when dest is AddressGlobal and
// RTS/CTS otherwise.
func (t *Transport) Send(localSA, dest uint8, pgn uint32, data []byte) error {
	if len(data) <= 8 {
		return ErrPayloadTooSmall
	}
	if len(data) > 1785 {
		return ErrPayloadTooLarge
	}
	total := uint8((len(data) + 6) / 7)
	length := uint16(len(data))

	if dest == AddressGlobal {
		return t.sendBAM(localSA, pgn, data, length, total)
	}
	return t.sendRTS(localSA, dest, pgn, data, length, total)
}

func (t *Transport) sendBAM(localSA uint8, pgn uint32, data []byte, length uint16, total uint8) error {
	if err := t.emitCM(localSA, AddressGlobal, tpControlBAM, length, total, 0xFF, pgn); err != nil {
		return err
	}
	for seq := uint8(1); seq <= total; seq++ {
		if err := t.sendDT(localSA, AddressGlobal, seq, dtChunk(data, seq)); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transport) sendRTS(localSA, dest uint8, pgn uint32, data []byte, length uint16, total uint8) error {
	key := sessionKey{local: localSA, remote: dest, direction: DirectionTx}
	t.mu.Lock()
	if _, exists := t.sessions[key]; exists {
		t.mu.Unlock()
		return ErrSessionExists
	}
	t.sessions[key] = &tpSession{
		key:          key,
		pgn:          pgn,
		buffer:       data,
		totalPackets: total,
		nextSeq:      1,
		lastActivity: time.Now(),
	}
	t.mu.Unlock()
	return t.emitCM(localSA, dest, tpControlRTS, length, total, 0xFF, pgn)
}

// Process dispatches an incoming TP.CM or TP.DT frame addressed (by PGN)
// to the transport engine; the connection facade is responsible for
// routing only TP.CM/TP.DT PGNs here.
func (t *Transport) Process(localSA uint8, f Frame) {
	switch f.Header.PF {
	case PFTransportControl:
		t.processCM(localSA, f)
	case PFTransportData:
		t.processDT(localSA, f)
	}
}

func (t *Transport) processCM(localSA uint8, f Frame) {
	if len(f.Payload) < 8 {
		return
	}
	p := f.Payload
	sender := f.Header.SA
	switch p[0] {
	case tpControlBAM:
		t.startRxBAM(localSA, sender, p)
	case tpControlRTS:
		if f.Header.PS == localSA {
			t.startRxRTS(localSA, sender, p)
		}
	case tpControlCTS:
		t.handleCTS(localSA, sender, p)
	case tpControlEOMAck:
		t.handleEOMAck(localSA, sender)
	case tpControlAbort:
		t.handleAbort(localSA, sender, AbortCode(p[1]))
	}
}

func (t *Transport) startRxBAM(localSA, sender uint8, p []byte) {
	length := uint16(p[1]) | uint16(p[2])<<8
	total := p[3]
	pgn := pgnFromBytes(p[5], p[6], p[7])
	key := sessionKey{local: localSA, remote: sender, direction: DirectionRx}
	t.mu.Lock()
	t.sessions[key] = &tpSession{
		key:          key,
		pgn:          pgn,
		bam:          true,
		buffer:       make([]byte, length),
		totalPackets: total,
		nextSeq:      1,
		lastActivity: time.Now(),
	}
	t.mu.Unlock()
}

func (t *Transport) startRxRTS(localSA, sender uint8, p []byte) {
	length := uint16(p[1]) | uint16(p[2])<<8
	total := p[3]
	senderMax := p[4]
	pgn := pgnFromBytes(p[5], p[6], p[7])
	key := sessionKey{local: localSA, remote: sender, direction: DirectionRx}

	t.mu.Lock()
	if _, exists := t.sessions[key]; exists {
		t.mu.Unlock()
		_ = t.sendAbort(localSA, sender, pgn, AbortAlreadyInSession)
		return
	}
	window := firstWindow(senderMax, total)
	t.sessions[key] = &tpSession{
		key:          key,
		pgn:          pgn,
		buffer:       make([]byte, length),
		totalPackets: total,
		nextSeq:      1,
		windowSize:   window,
		windowStart:  1,
		senderMax:    senderMax,
		lastActivity: time.Now(),
	}
	t.mu.Unlock()
	_ = t.sendCTS(localSA, sender, pgn, window, 1)
}

func (t *Transport) handleCTS(localSA, sender uint8, p []byte) {
	n := p[1]
	nextSeq := p[2]
	key := sessionKey{local: localSA, remote: sender, direction: DirectionTx}
	t.mu.Lock()
	sess, ok := t.sessions[key]
	if !ok {
		t.mu.Unlock()
		return
	}
	sess.nextSeq = nextSeq
	sess.lastActivity = time.Now()
	remaining := sess.totalPackets - sess.nextSeq + 1
	if n > remaining {
		n = remaining
	}
	buffer := sess.buffer
	dest := sess.key.remote
	start := sess.nextSeq
	t.mu.Unlock()

	for i := uint8(0); i < n; i++ {
		seq := start + i
		if seq > sess.totalPackets {
			break
		}
		if err := t.sendDT(localSA, dest, seq, dtChunk(buffer, seq)); err != nil {
			t.observer.OnError("transport_send", err)
			return
		}
		t.mu.Lock()
		sess.nextSeq = seq + 1
		sess.lastActivity = time.Now()
		t.mu.Unlock()
	}
}

func (t *Transport) handleEOMAck(localSA, sender uint8) {
	key := sessionKey{local: localSA, remote: sender, direction: DirectionTx}
	t.mu.Lock()
	delete(t.sessions, key)
	t.mu.Unlock()
}

func (t *Transport) handleAbort(localSA, sender uint8, code AbortCode) {
	t.mu.Lock()
	txKey := sessionKey{local: localSA, remote: sender, direction: DirectionTx}
	rxKey := sessionKey{local: localSA, remote: sender, direction: DirectionRx}
	_, hadTx := t.sessions[txKey]
	_, hadRx := t.sessions[rxKey]
	delete(t.sessions, txKey)
	delete(t.sessions, rxKey)
	t.mu.Unlock()
	if hadTx || hadRx {
		t.observer.OnError("transport_abort", ErrAborted)
	}
	_ = code
}

func (t *Transport) processDT(localSA uint8, f Frame) {
	if len(f.Payload) < 8 {
		return
	}
	sender := f.Header.SA
	seq := f.Payload[0]
	key := sessionKey{local: localSA, remote: sender, direction: DirectionRx}

	t.mu.Lock()
	sess, ok := t.sessions[key]
	if !ok {
		t.mu.Unlock()
		return
	}
	if seq != sess.nextSeq {
		delete(t.sessions, key)
		bam := sess.bam
		pgn := sess.pgn
		t.mu.Unlock()
		code := AbortBadSequence
		if seq < sess.nextSeq {
			code = AbortDuplicateSeq
		}
		if !bam {
			_ = t.sendAbort(localSA, sender, pgn, code)
		}
		t.observer.OnError("transport_rx", ErrBadSequence)
		return
	}

	offset := int(seq-1) * 7
	end := offset + 7
	if end > len(sess.buffer) {
		end = len(sess.buffer)
	}
	if offset < len(sess.buffer) {
		copy(sess.buffer[offset:end], f.Payload[1:1+(end-offset)])
	}
	sess.nextSeq++
	sess.lastActivity = time.Now()

	if seq == sess.totalPackets {
		dest := localSA
		if sess.bam {
			// A BAM session is broadcast: PS must not carry the receiving
			// node's address. With AddressGlobal as destination, HeaderForPGN
			// puts 0xFF in PS for PDU1 PGNs and keeps the PGN's own group
			// extension for PDU2 PGNs (matches the original's
			// `if (!session.bam) hr.pdu_specific(...)`).
			dest = AddressGlobal
		}
		header := HeaderForPGN(6, sess.pgn, dest, sender)
		payload := sess.buffer
		bam := sess.bam
		pgn := sess.pgn
		delete(t.sessions, key)
		t.mu.Unlock()
		if !bam {
			_ = t.sendEOMAck(localSA, sender, pgn)
		}
		t.observer.OnData(header, payload)
		return
	}

	if !sess.bam && sess.windowSize != 0 && seq-sess.windowStart+1 == sess.windowSize {
		remaining := sess.totalPackets - seq
		next := nextWindow(sess.senderMax, remaining)
		sess.windowSize = next
		sess.windowStart = seq + 1
		pgn := sess.pgn
		t.mu.Unlock()
		_ = t.sendCTS(localSA, sender, pgn, next, seq+1)
		return
	}
	t.mu.Unlock()
}

// Tick scans all sessions for inactivity beyond T3 (Tx) or T2 (Rx),
// aborting and destroying any that have gone quiet (spec.md §4.5 "Tick").
func (t *Transport) Tick(now time.Time) {
	t.mu.Lock()
	var timedOut []*tpSession
	for key, sess := range t.sessions {
		limit := tpT2
		if key.direction == DirectionTx {
			limit = tpT3
		}
		if now.Sub(sess.lastActivity) > limit {
			timedOut = append(timedOut, sess)
			delete(t.sessions, key)
		}
	}
	t.mu.Unlock()

	for _, sess := range timedOut {
		if !sess.bam {
			_ = t.sendAbort(sess.key.local, sess.key.remote, sess.pgn, AbortTimeout)
		}
		t.observer.OnError("transport_timeout", ErrTimeout)
	}
}

// --- frame builders ---

func (t *Transport) emitCM(localSA, dest uint8, control byte, length uint16, total uint8, maxPerCTS uint8, pgn uint32) error {
	payload := []byte{
		control,
		byte(length), byte(length >> 8),
		total,
		maxPerCTS,
		byte(pgn), byte(pgn >> 8), byte(pgn >> 16),
	}
	return t.emit(Frame{Header: Header{Priority: 7, PF: PFTransportControl, PS: dest, SA: localSA}, Payload: payload})
}

func (t *Transport) sendCTS(localSA, dest uint8, pgn uint32, n, nextSeq uint8) error {
	payload := []byte{tpControlCTS, n, nextSeq, 0xFF, 0xFF, byte(pgn), byte(pgn >> 8), byte(pgn >> 16)}
	return t.emit(Frame{Header: Header{Priority: 7, PF: PFTransportControl, PS: dest, SA: localSA}, Payload: payload})
}

func (t *Transport) sendEOMAck(localSA, dest uint8, pgn uint32) error {
	payload := []byte{tpControlEOMAck, 0xFF, 0xFF, 0xFF, 0xFF, byte(pgn), byte(pgn >> 8), byte(pgn >> 16)}
	return t.emit(Frame{Header: Header{Priority: 7, PF: PFTransportControl, PS: dest, SA: localSA}, Payload: payload})
}

func (t *Transport) sendAbort(localSA, dest uint8, pgn uint32, code AbortCode) error {
	payload := []byte{tpControlAbort, byte(code), 0xFF, 0xFF, 0xFF, byte(pgn), byte(pgn >> 8), byte(pgn >> 16)}
	return t.emit(Frame{Header: Header{Priority: 7, PF: PFTransportControl, PS: dest, SA: localSA}, Payload: payload})
}

func (t *Transport) sendDT(localSA, dest uint8, seq uint8, chunk []byte) error {
	payload := make([]byte, 8)
	payload[0] = seq
	for i := 0; i < 7; i++ {
		if i < len(chunk) {
			payload[1+i] = chunk[i]
		} else {
			payload[1+i] = 0xFF
		}
	}
	return t.emit(Frame{Header: Header{Priority: 7, PF: PFTransportData, PS: dest, SA: localSA}, Payload: payload})
}

func (t *Transport) emit(f Frame) error {
	if err := t.send(f); err != nil {
		t.observer.OnError("transport_send", err)
		return err
	}
	return nil
}

// --- helpers ---

func dtChunk(data []byte, seq uint8) []byte {
	offset := int(seq-1) * 7
	if offset >= len(data) {
		return nil
	}
	end := offset + 7
	if end > len(data) {
		end = len(data)
	}
	return data[offset:end]
}

func pgnFromBytes(b0, b1, b2 byte) uint32 {
	return uint32(b0) | uint32(b1)<<8 | uint32(b2)<<16
}

// firstWindow picks the initial CTS window size: the RTS originator's
// declared max packets per CTS (0 or 0xFF meaning "no limit"), capped at
// the total packet count.
func firstWindow(senderMax, total uint8) uint8 {
	return nextWindow(senderMax, total)
}

func nextWindow(senderMax, remaining uint8) uint8 {
	w := senderMax
	if w == 0 || w == 0xFF {
		w = remaining
	}
	if w > remaining {
		w = remaining
	}
	if w == 0 {
		w = remaining
	}
	return w
}
