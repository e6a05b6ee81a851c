package govehicle

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
)

// MaxDataLength is the largest classic CAN payload.
const MaxDataLength = 8

type FrameFormat uint8

const (
	Standard FrameFormat = iota
	Extended
)

func (f FrameFormat) String() string {
	if f == Extended {
		return "ext"
	}
	return "std"
}

// Frame is a single CAN frame as seen by the vehicle engine. The origin is the
// bus it was received on, or the bus it is to be written to.
// Frames are not modified after construction, the receiver owns it once it
// has been handed over on a channel.
type Frame struct {
	origin     Bus
	identifier uint32
	format     FrameFormat
	length     uint8
	data       [MaxDataLength]byte
}

// NewFrame creates a standard 11 bit frame, data is copied and truncated to 8 bytes
func NewFrame(origin Bus, identifier uint32, data []byte) *Frame {
	f := &Frame{
		origin:     origin,
		identifier: identifier & 0x7FF,
		format:     Standard,
	}
	f.length = uint8(copy(f.data[:], data))
	return f
}

// NewExtendedFrame creates a 29 bit frame, data is copied and truncated to 8 bytes
func NewExtendedFrame(origin Bus, identifier uint32, data []byte) *Frame {
	f := &Frame{
		origin:     origin,
		identifier: identifier & 0x1FFFFFFF,
		format:     Extended,
	}
	f.length = uint8(copy(f.data[:], data))
	return f
}

// newRequestFrame builds a full 8 byte frame padded with zeroes, which is what
// most ECUs expect for diagnostic requests.
func newRequestFrame(origin Bus, identifier uint32, payload ...byte) *Frame {
	f := NewFrame(origin, identifier, payload)
	f.length = MaxDataLength
	return f
}

// WithOrigin returns a copy of the frame as seen on bus b.
func (f *Frame) WithOrigin(b Bus) *Frame {
	out := *f
	out.origin = b
	return &out
}

func (f *Frame) Origin() Bus { return f.origin }
func (f *Frame) Identifier() uint32 { return f.identifier }
func (f *Frame) Format() FrameFormat { return f.format }
func (f *Frame) IsExtended() bool { return f.format == Extended }
func (f *Frame) Length() int { return int(f.length) }

// Data returns a copy of the payload
func (f *Frame) Data() []byte {
	out := make([]byte, f.length)
	copy(out, f.data[:f.length])
	return out
}

// payload returns the payload without copying, callers must not keep it.
func (f *Frame) payload() []byte {
	return f.data[:f.length]
}

// At returns the byte at index i and whether the frame is long enough to hold it.
func (f *Frame) At(i int) (byte, bool) {
	if i < 0 || i >= int(f.length) {
		return 0, false
	}
	return f.data[i], true
}

var (
	yellow = color.New(color.FgYellow).SprintfFunc()
	red    = color.New(color.FgRed).SprintfFunc()
	green  = color.New(color.FgGreen).SprintfFunc()
)

func (f *Frame) originName() string {
	if f.origin == nil {
		return "-"
	}
	return f.origin.Name()
}

func (f *Frame) String() string {
	var out strings.Builder
	out.WriteString(f.originName() + " || ")
	if f.IsExtended() {
		out.WriteString(fmt.Sprintf("0x%08X", f.identifier) + " || ")
	} else {
		out.WriteString(fmt.Sprintf("0x%03X", f.identifier) + " || ")
	}
	out.WriteString(strconv.Itoa(int(f.length)) + " || ")
	out.WriteString(fmt.Sprintf("%-23s", hexView(f.payload())))
	out.WriteString(" || ")
	out.WriteString(onlyPrintable(f.payload()))
	return out.String()
}

func (f *Frame) ColorString() string {
	var out strings.Builder
	out.WriteString(f.originName() + " || ")
	if f.IsExtended() {
		out.WriteString(green("0x%08X", f.identifier) + " || ")
	} else {
		out.WriteString(green("0x%03X", f.identifier) + " || ")
	}
	out.WriteString(strconv.Itoa(int(f.length)) + " || ")
	out.WriteString(red(fmt.Sprintf("%-23s", hexView(f.payload()))))
	out.WriteString(" || ")
	out.WriteString(yellow(onlyPrintable(f.payload())))
	return out.String()
}

func hexView(data []byte) string {
	var out strings.Builder
	for i, b := range data {
		out.WriteString(fmt.Sprintf("%02X", b))
		if i != len(data)-1 {
			out.WriteString(" ")
		}
	}
	return out.String()
}

func onlyPrintable(data []byte) string {
	var out strings.Builder
	for _, b := range data {
		if b < 32 || b > 126 {
			out.WriteString("·")
		} else {
			out.WriteByte(b)
		}
	}
	return out.String()
}
