package govehicle

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeBus struct {
	name     string
	startErr error
	recv     chan *Frame
	written  chan *Frame

	mu      sync.Mutex
	power   []PowerMode
	started bool
	mode    Mode
	speed   Speed
}

func newFakeBus(name string) *fakeBus {
	return &fakeBus{
		name:    name,
		recv:    make(chan *Frame, 10),
		written: make(chan *Frame, 100),
	}
}

func (b *fakeBus) Name() string { return b.name }

func (b *fakeBus) SetPowerMode(p PowerMode) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.power = append(b.power, p)
	return nil
}

func (b *fakeBus) Start(mode Mode, speed Speed) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.startErr != nil {
		return b.startErr
	}
	b.started = true
	b.mode = mode
	b.speed = speed
	return nil
}

func (b *fakeBus) Write(f *Frame) error {
	select {
	case b.written <- f:
		return nil
	default:
		return errors.New("fake bus write buffer full")
	}
}

func (b *fakeBus) Recv() <-chan *Frame { return b.recv }

func (b *fakeBus) powerModes() []PowerMode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]PowerMode(nil), b.power...)
}

// inject simulates a frame received on the bus
func (b *fakeBus) inject(id uint32, data ...byte) {
	b.recv <- NewFrame(b, id, data)
}

func (b *fakeBus) expectWrite(t *testing.T) *Frame {
	t.Helper()
	select {
	case f := <-b.written:
		return f
	case <-time.After(time.Second):
		t.Fatalf("%s: timeout waiting for written frame", b.name)
		return nil
	}
}

func (b *fakeBus) expectNoWrite(t *testing.T) {
	t.Helper()
	select {
	case f := <-b.written:
		t.Fatalf("%s: unexpected frame written: %s", b.name, f)
	case <-time.After(50 * time.Millisecond):
	}
}

type replyCall struct {
	bus    Bus
	typ    PollType
	pid    uint16
	data   []byte
	remain uint16
}

type frameCall struct {
	slot  int
	frame *Frame
}

// recordingProfile forwards every hook call on channels
type recordingProfile struct {
	BaseProfile
	frames  chan frameCall
	replies chan replyCall

	mu      sync.Mutex
	tickers map[int][]uint32
	closed  bool
}

func newRecordingProfile() *recordingProfile {
	return &recordingProfile{
		frames:  make(chan frameCall, 100),
		replies: make(chan replyCall, 100),
		tickers: make(map[int][]uint32),
	}
}

func (p *recordingProfile) VehicleName() string { return "recorder" }

func (p *recordingProfile) IncomingFrameCan1(f *Frame) { p.frames <- frameCall{1, f} }
func (p *recordingProfile) IncomingFrameCan2(f *Frame) { p.frames <- frameCall{2, f} }
func (p *recordingProfile) IncomingFrameCan3(f *Frame) { p.frames <- frameCall{3, f} }

func (p *recordingProfile) IncomingPollReply(bus Bus, typ PollType, pid uint16, data []byte, remain uint16) {
	p.replies <- replyCall{bus, typ, pid, data, remain}
}

func (p *recordingProfile) recordTick(period int, t uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tickers[period] = append(p.tickers[period], t)
}

func (p *recordingProfile) Ticker1(t uint32)    { p.recordTick(1, t) }
func (p *recordingProfile) Ticker10(t uint32)   { p.recordTick(10, t) }
func (p *recordingProfile) Ticker60(t uint32)   { p.recordTick(60, t) }
func (p *recordingProfile) Ticker300(t uint32)  { p.recordTick(300, t) }
func (p *recordingProfile) Ticker600(t uint32)  { p.recordTick(600, t) }
func (p *recordingProfile) Ticker3600(t uint32) { p.recordTick(3600, t) }

func (p *recordingProfile) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *recordingProfile) expectReply(t *testing.T) replyCall {
	t.Helper()
	select {
	case r := <-p.replies:
		return r
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for poll reply")
		return replyCall{}
	}
}

func (p *recordingProfile) expectFrame(t *testing.T) frameCall {
	t.Helper()
	select {
	case f := <-p.frames:
		return f
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for incoming frame")
		return frameCall{}
	}
}

func (p *recordingProfile) expectNoFrame(t *testing.T) {
	t.Helper()
	select {
	case f := <-p.frames:
		t.Fatalf("unexpected frame on slot %d: %s", f.slot, f.frame)
	case <-time.After(50 * time.Millisecond):
	}
}

type recordingRecorder struct {
	mu      sync.Mutex
	types   []string
	dropped int
	sent    int
	replies int
}

func (r *recordingRecorder) VehicleType(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, name)
}

func (r *recordingRecorder) FrameDropped(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped++
}

func (r *recordingRecorder) PollSent(string, PollType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent++
}

func (r *recordingRecorder) PollReply(string, PollType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies++
}

func (r *recordingRecorder) published() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.types...)
}
