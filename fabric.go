package govehicle

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/roffe/govehicle/pkg/log"
)

// DeliveryPolicy decides what the fabric does when a listener channel is full.
type DeliveryPolicy int

const (
	// DropWhenFull drops the frame and counts it, the receive path never stalls.
	DropWhenFull DeliveryPolicy = iota
	// BlockWhenFull waits for the listener to make room.
	BlockWhenFull
)

type FabricOption func(*Fabric)

func WithDeliveryPolicy(p DeliveryPolicy) FabricOption {
	return func(f *Fabric) {
		f.policy = p
	}
}

func WithFabricRecorder(r Recorder) FabricOption {
	return func(f *Fabric) {
		if r != nil {
			f.recorder = r
		}
	}
}

type listener struct {
	name string
	ch   chan<- *Frame
	done chan struct{}
	// sends in flight, Add only while the listener is registered
	inflight sync.WaitGroup
}

// Fabric knows every bus in the unit by name and fans out received frames to
// registered listeners.
type Fabric struct {
	policy   DeliveryPolicy
	recorder Recorder

	mu        sync.RWMutex
	buses     map[string]Bus
	listeners map[chan<- *Frame]*listener

	dropped atomic.Uint64

	wg        sync.WaitGroup
	close     chan struct{}
	closeOnce sync.Once
}

func NewFabric(opts ...FabricOption) *Fabric {
	f := &Fabric{
		recorder:  nopRecorder{},
		buses:     make(map[string]Bus),
		listeners: make(map[chan<- *Frame]*listener),
		close:     make(chan struct{}),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// AddBus makes a bus available by name and starts pumping its received frames.
func (f *Fabric) AddBus(b Bus) error {
	if b == nil {
		return ErrNilBus
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, found := f.buses[b.Name()]; found {
		return fmt.Errorf("%w: %s", ErrDuplicateBus, b.Name())
	}
	f.buses[b.Name()] = b
	f.wg.Add(1)
	go f.pump(b)
	return nil
}

// FindBus looks up a bus by name, e.g. "can1".
func (f *Fabric) FindBus(name string) (Bus, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if b, found := f.buses[name]; found {
		return b, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrBusNotFound, name)
}

func (f *Fabric) BusNames() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.buses))
	for name := range f.buses {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// RegisterListener adds ch to the set of channels receiving every frame from every bus.
func (f *Fabric) RegisterListener(name string, ch chan<- *Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners[ch] = &listener{name: name, ch: ch, done: make(chan struct{})}
	log.Debug("listener registered", "listener", name)
}

// DeregisterListener removes ch. A send blocked on ch is abandoned, and once
// DeregisterListener returns no further frames are sent on ch.
func (f *Fabric) DeregisterListener(ch chan<- *Frame) {
	f.mu.Lock()
	l, ok := f.listeners[ch]
	if ok {
		delete(f.listeners, ch)
		close(l.done)
	}
	f.mu.Unlock()
	if !ok {
		return
	}
	l.inflight.Wait()
	log.Debug("listener deregistered", "listener", l.name)
}

// Dropped returns the number of frames lost on full listener channels.
func (f *Fabric) Dropped() uint64 {
	return f.dropped.Load()
}

// Deliver hands a frame to every listener. The listener set is copied under
// the read lock, sends happen without it.
func (f *Fabric) Deliver(frame *Frame) {
	f.mu.RLock()
	targets := make([]*listener, 0, len(f.listeners))
	for _, l := range f.listeners {
		l.inflight.Add(1)
		targets = append(targets, l)
	}
	f.mu.RUnlock()

	for _, l := range targets {
		f.send(l, frame)
		l.inflight.Done()
	}
}

func (f *Fabric) send(l *listener, frame *Frame) {
	select {
	case <-l.done:
		return
	default:
	}
	if f.policy == BlockWhenFull {
		select {
		case l.ch <- frame:
		case <-l.done:
		case <-f.close:
		}
		return
	}
	select {
	case l.ch <- frame:
	default:
		f.dropped.Add(1)
		f.recorder.FrameDropped(l.name)
		log.Warn("failed to deliver frame", "listener", l.name, "id", fmt.Sprintf("0x%03X", frame.Identifier()), "err", ErrDroppedFrame)
	}
}

func (f *Fabric) pump(b Bus) {
	defer f.wg.Done()
	recv := b.Recv()
	for {
		select {
		case <-f.close:
			return
		case frame, ok := <-recv:
			if !ok {
				log.Debug("bus receive channel closed", "bus", b.Name())
				return
			}
			f.Deliver(frame)
		}
	}
}

// Close stops all receive pumps.
func (f *Fabric) Close() {
	f.closeOnce.Do(func() {
		close(f.close)
	})
	f.wg.Wait()
}
