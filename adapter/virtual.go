package adapter

import (
	"sync"

	"github.com/roffe/govehicle"
)

func init() {
	if err := Register(&Info{
		Name:        "Virtual",
		Description: "Loopback bus, written frames are received again",
		New:         NewVirtual,
	}); err != nil {
		panic(err)
	}
}

// Virtual is an in-memory bus. Written frames are looped back to its own
// receive queue and to every bus wired to it.
type Virtual struct {
	*BaseBus

	mu    sync.RWMutex
	peers []*Virtual
}

func NewVirtual(cfg *Config) (Driver, error) {
	return &Virtual{
		BaseBus: NewBaseBus("virtual", cfg),
	}, nil
}

// Wire connects two virtual buses so frames written on one are received on both.
func Wire(a, b *Virtual) {
	a.mu.Lock()
	a.peers = append(a.peers, b)
	a.mu.Unlock()
	b.mu.Lock()
	b.peers = append(b.peers, a)
	b.mu.Unlock()
}

func (v *Virtual) SetPowerMode(p govehicle.PowerMode) error {
	v.setPower(p)
	v.log.Debug("power mode set", "mode", p.String())
	return nil
}

func (v *Virtual) Start(mode govehicle.Mode, speed govehicle.Speed) error {
	if v.PowerMode() != govehicle.PowerOn {
		return ErrPoweredOff
	}
	v.setStarted(mode, speed)
	v.log.Info("started", "mode", mode.String(), "speed", speed.String())
	return nil
}

func (v *Virtual) Write(frame *govehicle.Frame) error {
	if err := v.canWrite(); err != nil {
		return err
	}
	v.traceSend(frame)
	v.Inject(frame)

	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, p := range v.peers {
		p.Inject(frame)
	}
	return nil
}

// Inject makes a frame appear on the bus as if another node had sent it.
// Nothing is received while the bus is off or not started.
func (v *Virtual) Inject(frame *govehicle.Frame) {
	if !v.receiving() {
		return
	}
	v.deliver(frame.WithOrigin(v))
}
