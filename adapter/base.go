package adapter

import (
	"errors"
	"fmt"
	"sync"

	"github.com/roffe/govehicle"
	"github.com/roffe/govehicle/pkg/log"
)

const recvQueueSize = 1024

var (
	ErrPoweredOff = errors.New("bus is powered off")
	ErrListenOnly = errors.New("bus is in listen mode")
	ErrNotStarted = errors.New("bus not started")
)

// BaseBus carries what every driver has in common: the receive queue, power
// and mode bookkeeping and close handling.
type BaseBus struct {
	name string
	cfg  *Config
	log  log.Logger

	recv chan *govehicle.Frame

	mu      sync.Mutex
	power   govehicle.PowerMode
	mode    govehicle.Mode
	speed   govehicle.Speed
	started bool

	closeOnce sync.Once
	closeChan chan struct{}
}

func NewBaseBus(driver string, cfg *Config) *BaseBus {
	return &BaseBus{
		name:      cfg.Name,
		cfg:       cfg,
		log:       log.WithName(driver).WithValues("bus", cfg.Name),
		recv:      make(chan *govehicle.Frame, recvQueueSize),
		closeChan: make(chan struct{}),
	}
}

func (base *BaseBus) Name() string {
	return base.name
}

func (base *BaseBus) Recv() <-chan *govehicle.Frame {
	return base.recv
}

func (base *BaseBus) PowerMode() govehicle.PowerMode {
	base.mu.Lock()
	defer base.mu.Unlock()
	return base.power
}

func (base *BaseBus) setPower(p govehicle.PowerMode) {
	base.mu.Lock()
	defer base.mu.Unlock()
	base.power = p
	if p == govehicle.PowerOff {
		base.started = false
	}
}

func (base *BaseBus) setStarted(mode govehicle.Mode, speed govehicle.Speed) {
	base.mu.Lock()
	defer base.mu.Unlock()
	base.mode = mode
	base.speed = speed
	base.started = true
}

// canWrite reports why a frame may not be transmitted right now.
func (base *BaseBus) canWrite() error {
	base.mu.Lock()
	defer base.mu.Unlock()
	switch {
	case base.power != govehicle.PowerOn:
		return ErrPoweredOff
	case !base.started:
		return ErrNotStarted
	case base.mode == govehicle.ModeListen:
		return ErrListenOnly
	}
	return nil
}

func (base *BaseBus) receiving() bool {
	base.mu.Lock()
	defer base.mu.Unlock()
	return base.power == govehicle.PowerOn && base.started
}

// deliver queues a received frame, it never blocks the driver.
func (base *BaseBus) deliver(frame *govehicle.Frame) {
	if base.cfg.Trace {
		base.log.Frame(log.Received, frame)
	}
	select {
	case base.recv <- frame:
	case <-base.closeChan:
	default:
		base.log.Warn("receive queue full", "err", govehicle.ErrDroppedFrame, "id", fmt.Sprintf("0x%03X", frame.Identifier()))
	}
}

func (base *BaseBus) traceSend(frame *govehicle.Frame) {
	if base.cfg.Trace {
		base.log.Frame(log.Sent, frame)
	}
}

func (base *BaseBus) closed() <-chan struct{} {
	return base.closeChan
}

// Close stops the receive side. The receive channel itself stays open so
// pumps reading it can exit on their own close signal.
func (base *BaseBus) Close() error {
	base.closeOnce.Do(func() {
		close(base.closeChan)
	})
	return nil
}
