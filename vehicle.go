package govehicle

import (
	"fmt"
	"sync"

	"github.com/roffe/govehicle/pkg/log"
)

const (
	// NumBuses is the number of bus slots a vehicle can use.
	NumBuses = 3

	rxQueueSize = 20
)

// Vehicle is a live vehicle instance. It owns up to three buses, a listener
// channel on the fabric, the poll session and a ticker subscription. All
// frames and pulses are handled by a single goroutine.
type Vehicle struct {
	typ      string
	fabric   *Fabric
	recorder Recorder
	log      log.Logger

	profile Profile
	trace   bool

	mu         sync.RWMutex
	buses      [NumBuses]Bus
	registered bool
	started    bool

	rx      chan *Frame
	sub     *TickSubscription
	session *pollSession
	ticker  uint32 // only touched by the consumer goroutine

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newVehicle(typ string, fabric *Fabric, ticker *Ticker, recorder Recorder, trace bool) *Vehicle {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Vehicle{
		typ:      typ,
		fabric:   fabric,
		recorder: recorder,
		trace:    trace,
		log:      log.WithName("vehicle").WithValues("type", typ),
		rx:       make(chan *Frame, rxQueueSize),
		sub:      ticker.Subscribe(),
		session:  newPollSession(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Type returns the registry name this vehicle was created from.
func (v *Vehicle) Type() string {
	return v.typ
}

// Profile returns the profile driving this vehicle, nil while it is being constructed.
func (v *Vehicle) Profile() Profile {
	return v.profile
}

// RegisterBus powers up and starts bus "can<slot>" and attaches it to the
// given slot. The first registration also registers the vehicle as a frame
// listener on the fabric.
func (v *Vehicle) RegisterBus(slot int, mode Mode, speed Speed) error {
	if slot < 1 || slot > NumBuses {
		return fmt.Errorf("%w: %d", ErrInvalidBusSlot, slot)
	}
	select {
	case <-v.stop:
		return ErrVehicleClosed
	default:
	}
	b, err := v.fabric.FindBus(BusName(slot))
	if err != nil {
		return err
	}

	v.mu.Lock()
	v.buses[slot-1] = b
	v.mu.Unlock()

	if err := b.SetPowerMode(PowerOn); err != nil {
		return &BusError{Bus: b.Name(), Op: "power on", Err: err}
	}
	if err := b.Start(mode, speed); err != nil {
		return &BusError{Bus: b.Name(), Op: "start", Err: err}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.registered {
		v.registered = true
		v.fabric.RegisterListener("vehicle/"+v.typ, v.rx)
	}
	v.log.Info("bus registered", "bus", b.Name(), "slot", slot, "mode", mode.String(), "speed", speed.String())
	return nil
}

// Bus returns the bus in slot 1-3, nil if none is registered.
func (v *Vehicle) Bus(slot int) Bus {
	if slot < 1 || slot > NumBuses {
		return nil
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.buses[slot-1]
}

// SetPollList installs the poll table and the bus it is polled on. A nil
// table stops polling.
func (v *Vehicle) SetPollList(bus Bus, table PollTable) {
	if table != nil && bus == nil {
		v.log.Warn("poll list without bus ignored")
		return
	}
	v.session.setTable(bus, table)
}

// SetPollState selects the interval column of the poll table. Changing the
// state restarts polling from the head of the table.
func (v *Vehicle) SetPollState(state uint8) {
	if v.session.setState(state) {
		v.log.Debug("poll state changed", "state", state)
	}
}

// PollState returns the active poll state.
func (v *Vehicle) PollState() uint8 {
	return v.session.currentState()
}

// Write sends a frame on its origin bus.
func (v *Vehicle) Write(frame *Frame) error {
	b := frame.Origin()
	if b == nil {
		return ErrNilBus
	}
	if v.trace {
		v.log.Frame(log.Sent, frame)
	}
	return b.Write(frame)
}

func (v *Vehicle) start(p Profile) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.profile = p
	v.started = true
	go v.run()
}

func (v *Vehicle) run() {
	defer close(v.done)
	for {
		select {
		case <-v.stop:
			return
		case frame := <-v.rx:
			v.dispatch(frame)
		case <-v.sub.C():
			v.tick()
		}
	}
}

// dispatch hands a frame to the poller if it is in the expected window, and
// to the profile hook of the slot it arrived on.
func (v *Vehicle) dispatch(frame *Frame) {
	if v.trace {
		v.log.Frame(log.Received, frame)
	}
	if v.session.accepts(frame) {
		v.pollerReceive(frame)
	}

	v.mu.RLock()
	buses := v.buses
	v.mu.RUnlock()

	origin := frame.Origin()
	if origin == nil {
		return
	}
	switch origin {
	case buses[0]:
		v.profile.IncomingFrameCan1(frame)
	case buses[1]:
		v.profile.IncomingFrameCan2(frame)
	case buses[2]:
		v.profile.IncomingFrameCan3(frame)
	}
}

func (v *Vehicle) pollerReceive(frame *Frame) {
	fc, reply := v.session.receive(frame)
	if fc != nil {
		if err := v.Write(fc); err != nil {
			v.log.Error(err, "failed to send flow control", "bus", fc.Origin().Name())
		}
	}
	if reply == nil {
		return
	}
	v.recorder.PollReply(reply.bus.Name(), reply.typ)
	v.profile.IncomingPollReply(reply.bus, reply.typ, reply.pid, reply.data, reply.remain)
}

func (v *Vehicle) pollerSend() {
	req := v.session.next()
	if req == nil {
		return
	}
	if err := v.Write(req); err != nil {
		v.log.Error(err, "failed to send poll request", "bus", req.Origin().Name())
		return
	}
	v.recorder.PollSent(req.Origin().Name(), PollType(req.payload()[1]))
}

func (v *Vehicle) tick() {
	v.ticker++
	v.pollerSend()

	p, t := v.profile, v.ticker
	p.Ticker1(t)
	if t%10 == 0 {
		p.Ticker10(t)
	}
	if t%60 == 0 {
		p.Ticker60(t)
	}
	if t%300 == 0 {
		p.Ticker300(t)
	}
	if t%600 == 0 {
		p.Ticker600(t)
	}
	if t%3600 == 0 {
		p.Ticker3600(t)
	}
}

// Close tears the vehicle down: buses are powered off, the fabric listener
// removed and the consumer goroutine stopped before Close returns.
func (v *Vehicle) Close() error {
	v.closeOnce.Do(func() {
		v.mu.Lock()
		buses := v.buses
		registered := v.registered
		v.registered = false
		started := v.started
		v.mu.Unlock()

		for _, b := range buses {
			if b == nil {
				continue
			}
			if err := b.SetPowerMode(PowerOff); err != nil {
				v.log.Error(err, "failed to power off bus", "bus", b.Name())
			}
		}
		if registered {
			v.fabric.DeregisterListener(v.rx)
		}
		v.sub.Close()
		close(v.stop)
		if started {
			<-v.done
		}
		v.rx = nil

		if c, ok := v.profile.(ProfileCloser); ok {
			if err := c.Close(); err != nil {
				v.log.Error(err, "failed to close profile")
			}
		}
		v.log.Info("vehicle closed")
	})
	return nil
}
