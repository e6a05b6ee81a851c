package govehicle

import "fmt"

// PollType is the OBD-II service identifier used for a request.
type PollType uint8

const (
	PollTypeCurrent  PollType = 0x01 // current powertrain data
	PollTypeFreeze   PollType = 0x02 // freeze frame data
	PollTypeVehicle  PollType = 0x09 // vehicle information, multi frame
	PollTypeSession  PollType = 0x10 // diagnostic session control
	PollTypeGroup    PollType = 0x21 // read data by local identifier, multi frame
	PollTypeExtended PollType = 0x22 // read data by 16 bit identifier
)

const (
	// NumPollStates is the number of interval columns in a poll table.
	NumPollStates = 4

	BroadcastRequestID  uint32 = 0x7DF
	BroadcastResponseLo uint32 = 0x7E8
	BroadcastResponseHi uint32 = 0x7EF

	// positive responses echo the service identifier plus this offset
	responseOffset = 0x40

	// flow control: continue to send, no block limit, 25 ms separation
	flowControlContinue = 0x30
	flowControlBlocks   = 0x00
	flowControlSTmin    = 0x19

	pollTickerWrap = 3600
)

func (t PollType) String() string {
	switch t {
	case PollTypeCurrent:
		return "current"
	case PollTypeFreeze:
		return "freeze"
	case PollTypeVehicle:
		return "vehicle"
	case PollTypeSession:
		return "session"
	case PollTypeGroup:
		return "group"
	case PollTypeExtended:
		return "extended"
	default:
		return fmt.Sprintf("0x%02X", uint8(t))
	}
}

// Segmented reports whether responses to t arrive as first frame plus
// consecutive frames.
func (t PollType) Segmented() bool {
	return t == PollTypeVehicle || t == PollTypeGroup
}

// Response is the service identifier of a positive response to t.
func (t PollType) Response() byte {
	return byte(t) + responseOffset
}

// PollEntry describes one parameter to poll.
type PollEntry struct {
	// TxID is the module to send to, 0 terminates the table.
	TxID uint32
	// RxID is the expected response id, 0 means the request is broadcast on
	// 0x7DF and any reply in 0x7E8-0x7EF is accepted.
	RxID uint32
	Type PollType
	PID  uint16
	// Intervals in seconds per poll state, 0 disables polling in that state.
	Intervals [NumPollStates]uint16
}

func (e PollEntry) String() string {
	return fmt.Sprintf("%03X/%03X %s pid=%02X %v", e.TxID, e.RxID, e.Type, e.PID, e.Intervals)
}

// PollTable is a list of entries terminated by an entry with TxID 0. Entries
// after the terminator are never polled. A table without a terminator is
// treated as if one followed the last entry.
type PollTable []PollEntry

// Len returns the number of entries before the terminator.
func (pt PollTable) Len() int {
	for i, e := range pt {
		if e.TxID == 0 {
			return i
		}
	}
	return len(pt)
}
