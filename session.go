package govehicle

import (
	"sync"

	"github.com/roffe/govehicle/pkg/log"
)

// pollSession is the state of the poller: the active table, where in the
// table we are, and the one request that may be outstanding.
type pollSession struct {
	mu sync.Mutex

	state  uint8
	bus    Bus
	table  PollTable
	cursor int // -1 until the next pulse starts from the head of the table
	ticker uint32

	// outstanding request
	sentID  uint32
	lowID   uint32
	highID  uint32
	typ     PollType
	pid     uint16
	pending bool

	// segmented response progress
	mlRemain uint16
	mlOffset uint16
	mlFrame  uint16
}

// pollReply is one chunk of a response ready for the profile.
type pollReply struct {
	bus    Bus
	typ    PollType
	pid    uint16
	data   []byte
	remain uint16
}

func newPollSession() *pollSession {
	return &pollSession{cursor: -1}
}

func (s *pollSession) setTable(bus Bus, table PollTable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bus = bus
	s.table = table
	s.cursor = -1
	s.pending = false
	s.sentID, s.lowID, s.highID = 0, 0, 0
	s.mlRemain, s.mlOffset, s.mlFrame = 0, 0, 0
}

// setState switches the active interval column. Out of range or unchanged
// states are ignored.
func (s *pollSession) setState(state uint8) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state >= NumPollStates || state == s.state {
		return false
	}
	s.state = state
	s.ticker = 0
	s.cursor = -1
	return true
}

func (s *pollSession) currentState() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// accepts reports whether frame belongs to the outstanding request window.
func (s *pollSession) accepts(frame *Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.table == nil || s.bus == nil || frame.Origin() != s.bus {
		return false
	}
	id := frame.Identifier()
	return id >= s.lowID && id <= s.highID
}

// next advances the cursor and returns the request to send on this pulse, or
// nil when nothing is due. At most one request is returned per call.
func (s *pollSession) next() *Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.table == nil {
		return nil
	}
	if s.cursor < 0 {
		s.cursor = 0
	}
	for ; s.cursor < len(s.table) && s.table[s.cursor].TxID != 0; s.cursor++ {
		e := s.table[s.cursor]
		interval := uint32(e.Intervals[s.state])
		if interval == 0 || s.ticker%interval != 0 {
			continue
		}
		s.cursor++
		return s.request(e)
	}
	s.cursor = 0
	s.ticker++
	if s.ticker >= pollTickerWrap {
		s.ticker -= pollTickerWrap
	}
	return nil
}

func (s *pollSession) request(e PollEntry) *Frame {
	s.typ = e.Type
	s.pid = e.PID
	s.pending = true
	if e.RxID != 0 {
		s.sentID = e.TxID
		s.lowID = e.RxID
		s.highID = e.RxID
	} else {
		s.sentID = BroadcastRequestID
		s.lowID = BroadcastResponseLo
		s.highID = BroadcastResponseHi
	}

	switch e.Type {
	case PollTypeExtended:
		return newRequestFrame(s.bus, s.sentID, 0x03, byte(e.Type), byte(e.PID>>8), byte(e.PID))
	case PollTypeVehicle, PollTypeGroup:
		// any half received response is abandoned
		s.mlRemain = 0
		return newRequestFrame(s.bus, s.sentID, 0x02, byte(e.Type), byte(e.PID))
	default:
		return newRequestFrame(s.bus, s.sentID, 0x02, byte(e.Type), byte(e.PID))
	}
}

// receive matches a frame against the outstanding request. It returns a flow
// control frame to transmit, if any, and the decoded chunk, if any. Frames
// that do not match are ignored.
func (s *pollSession) receive(frame *Frame) (*Frame, *pollReply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pending {
		return nil, nil
	}
	data := frame.payload()
	switch {
	case s.typ == PollTypeExtended:
		return nil, s.receiveExtended(data)
	case s.typ.Segmented():
		return s.receiveSegmented(frame, data)
	default:
		return nil, s.receiveSingle(data)
	}
}

func (s *pollSession) reply(chunk []byte, remain uint16) *pollReply {
	out := make([]byte, len(chunk))
	copy(out, chunk)
	return &pollReply{bus: s.bus, typ: s.typ, pid: s.pid, data: out, remain: remain}
}

// [len, 0x40+type, pid, data...]
func (s *pollSession) receiveSingle(data []byte) *pollReply {
	if len(data) < 3 || data[1] != s.typ.Response() || data[2] != byte(s.pid) {
		s.unmatched(data)
		return nil
	}
	return s.reply(data[3:], 0)
}

// [len, 0x62, pid hi, pid lo, data...]
func (s *pollSession) receiveExtended(data []byte) *pollReply {
	if len(data) < 4 || data[1] != s.typ.Response() || uint16(data[2])<<8|uint16(data[3]) != s.pid {
		s.unmatched(data)
		return nil
	}
	return s.reply(data[4:], 0)
}

func (s *pollSession) receiveSegmented(frame *Frame, data []byte) (*Frame, *pollReply) {
	if len(data) == 0 {
		s.unmatched(data)
		return nil, nil
	}
	switch data[0] >> 4 {
	case 0x1:
		// first frame: [0x1L, LL, 0x40+type, pid, n, d0, d1, d2]
		// A first frame is always padded to 8 bytes, shorter ones are unmatched.
		if len(data) < MaxDataLength || data[2] != s.typ.Response() || data[3] != byte(s.pid) {
			break
		}
		total := uint16(data[0]&0x0F)<<8 | uint16(data[1])
		if total < 3 {
			break
		}
		target := s.sentID
		if s.sentID == BroadcastRequestID {
			// derive the module id from the response id, SAE 11 bit scheme only
			target = frame.Identifier() - 8
		}
		fc := newRequestFrame(s.bus, target, flowControlContinue, flowControlBlocks, flowControlSTmin)
		s.mlRemain = total - 3
		s.mlOffset = 3
		s.mlFrame = 0
		return fc, s.reply(data[5:8], s.mlRemain)
	case 0x2:
		// consecutive frame: [0x2N, d0..d6]
		if s.mlRemain == 0 {
			break
		}
		n := s.mlRemain
		if n > 7 {
			n = 7
		}
		if len(data) < int(n)+1 {
			break
		}
		s.mlRemain -= n
		s.mlOffset += n
		s.mlFrame++
		return nil, s.reply(data[1:1+n], s.mlRemain)
	}
	s.unmatched(data)
	return nil, nil
}

func (s *pollSession) unmatched(data []byte) {
	log.Debug("discarding unmatched poll response", "type", s.typ.String(), "pid", s.pid, "data", hexView(data))
}
