// Package obdii is a vehicle profile for any car with a SAE J1979 engine ECU.
// It polls the standard mode 01 PIDs and the VIN, and raises the poll rate
// while the engine is running.
package obdii

import (
	"context"
	"fmt"
	"sync"

	"github.com/looplab/fsm"

	"github.com/roffe/govehicle"
	"github.com/roffe/govehicle/pkg/log"
)

const (
	Type        = "O2"
	Description = "Generic OBD-II vehicle"

	vinLength = 17

	// seconds without an RPM reply before the engine is considered off
	staleAfter = 10
)

// poll states
const (
	StateOff uint8 = iota
	StateRunning
	StateDriving
)

// engine states and the events moving between them
const (
	EngineOff     = "off"
	EngineRunning = "running"
	EngineDriving = "driving"

	eventStop  = "stop"
	eventIdle  = "idle"
	eventDrive = "drive"
)

var enginePollStates = map[string]uint8{
	EngineOff:     StateOff,
	EngineRunning: StateRunning,
	EngineDriving: StateDriving,
}

// PollTable is polled on the bus in Config.Slot. Columns are StateOff,
// StateRunning, StateDriving and an unused fourth state.
var PollTable = govehicle.PollTable{
	{TxID: 0x7DF, Type: govehicle.PollTypeCurrent, PID: 0x0C, Intervals: [govehicle.NumPollStates]uint16{5, 1, 1, 0}},
	{TxID: 0x7DF, Type: govehicle.PollTypeCurrent, PID: 0x0D, Intervals: [govehicle.NumPollStates]uint16{0, 2, 1, 0}},
	{TxID: 0x7DF, Type: govehicle.PollTypeCurrent, PID: 0x05, Intervals: [govehicle.NumPollStates]uint16{30, 10, 10, 0}},
	{TxID: 0x7E0, RxID: 0x7E8, Type: govehicle.PollTypeCurrent, PID: 0x42, Intervals: [govehicle.NumPollStates]uint16{60, 30, 30, 0}},
	{TxID: 0x7E0, RxID: 0x7E8, Type: govehicle.PollTypeVehicle, PID: 0x02, Intervals: [govehicle.NumPollStates]uint16{600, 3600, 3600, 0}},
	{},
}

type Config struct {
	// Slot is the bus slot the ECU is reached on, 1 if zero.
	Slot  int
	Mode  govehicle.Mode
	Speed govehicle.Speed
}

func DefaultConfig() Config {
	return Config{Slot: 1, Mode: govehicle.ModeActive, Speed: govehicle.Speed500k}
}

// Readings is the decoded state of the vehicle.
type Readings struct {
	VIN      string
	RPM      float64
	SpeedKmh int
	CoolantC int
	VoltageV float64
	Running  bool
	Frames   uint64
	Replies  uint64
}

type Profile struct {
	govehicle.BaseProfile

	v      *govehicle.Vehicle
	log    log.Logger
	engine *fsm.FSM

	mu        sync.RWMutex
	r         Readings
	lastRPM   uint32
	ticker    uint32
	vinBuf    []byte
	vinRemain uint16
}

// Register adds the O2 type to f.
func Register(f *govehicle.Factory, cfg Config) error {
	return f.Register(&govehicle.VehicleInfo{
		Type:        Type,
		Description: Description,
		New:         New(cfg),
	})
}

// New returns the constructor for the O2 type.
func New(cfg Config) govehicle.Constructor {
	if cfg.Slot == 0 {
		cfg.Slot = 1
	}
	return func(v *govehicle.Vehicle) (govehicle.Profile, error) {
		if err := v.RegisterBus(cfg.Slot, cfg.Mode, cfg.Speed); err != nil {
			return nil, fmt.Errorf("obdii: %w", err)
		}
		p := &Profile{
			v:   v,
			log: log.WithName("obdii"),
		}
		p.engine = newEngineFSM(p)
		if cfg.Mode == govehicle.ModeActive {
			v.SetPollList(v.Bus(cfg.Slot), PollTable)
		} else {
			p.log.Info("bus in listen mode, polling disabled", "slot", cfg.Slot)
		}
		return p, nil
	}
}

func newEngineFSM(p *Profile) *fsm.FSM {
	return fsm.NewFSM(
		EngineOff,
		fsm.Events{
			{Name: eventStop, Src: []string{EngineRunning, EngineDriving}, Dst: EngineOff},
			{Name: eventIdle, Src: []string{EngineOff, EngineDriving}, Dst: EngineRunning},
			{Name: eventDrive, Src: []string{EngineOff, EngineRunning}, Dst: EngineDriving},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				p.log.Info("engine state changed", "from", e.Src, "to", e.Dst)
				p.v.SetPollState(enginePollStates[e.Dst])
			},
		},
	)
}

// EngineState returns one of EngineOff, EngineRunning or EngineDriving.
func (p *Profile) EngineState() string {
	return p.engine.Current()
}

func (p *Profile) VehicleName() string {
	return Description
}

// Readings returns a snapshot of the decoded values.
func (p *Profile) Readings() Readings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.r
}

func (p *Profile) IncomingFrameCan1(*govehicle.Frame) { p.countFrame() }
func (p *Profile) IncomingFrameCan2(*govehicle.Frame) { p.countFrame() }
func (p *Profile) IncomingFrameCan3(*govehicle.Frame) { p.countFrame() }

func (p *Profile) countFrame() {
	p.mu.Lock()
	p.r.Frames++
	p.mu.Unlock()
}

func (p *Profile) IncomingPollReply(bus govehicle.Bus, typ govehicle.PollType, pid uint16, data []byte, remain uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.r.Replies++
	switch typ {
	case govehicle.PollTypeCurrent:
		p.current(byte(pid), data)
	case govehicle.PollTypeVehicle:
		if pid == 0x02 {
			p.vin(data, remain)
		}
	}
}

// current decodes mode 01 values per SAE J1979. Must be called with mu held.
func (p *Profile) current(pid byte, data []byte) {
	switch pid {
	case 0x0C:
		if len(data) < 2 {
			return
		}
		p.r.RPM = float64(uint16(data[0])<<8|uint16(data[1])) / 4
		p.lastRPM = p.ticker
		p.r.Running = p.r.RPM > 0
	case 0x0D:
		if len(data) < 1 {
			return
		}
		p.r.SpeedKmh = int(data[0])
	case 0x05:
		if len(data) < 1 {
			return
		}
		p.r.CoolantC = int(data[0]) - 40
	case 0x42:
		if len(data) < 2 {
			return
		}
		p.r.VoltageV = float64(uint16(data[0])<<8|uint16(data[1])) / 1000
	}
}

// vin collects the chunks of a mode 09 PID 02 response. A chunk whose
// remaining count does not decrease starts a new response.
func (p *Profile) vin(data []byte, remain uint16) {
	if p.vinRemain == 0 || remain >= p.vinRemain {
		p.vinBuf = p.vinBuf[:0]
	}
	p.vinRemain = remain
	p.vinBuf = append(p.vinBuf, data...)
	if len(p.vinBuf) < vinLength {
		return
	}
	vin := string(p.vinBuf[:vinLength])
	p.vinBuf = p.vinBuf[:0]
	p.vinRemain = 0
	if !validVIN(vin) {
		p.log.Warn("ignoring invalid vin", "vin", vin)
		return
	}
	if vin != p.r.VIN {
		p.log.Info("vin received", "vin", vin)
	}
	p.r.VIN = vin
}

func validVIN(vin string) bool {
	for _, c := range vin {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'A' && c <= 'Z' && c != 'I' && c != 'O' && c != 'Q':
		default:
			return false
		}
	}
	return len(vin) == vinLength
}

func (p *Profile) Ticker1(t uint32) {
	p.mu.Lock()
	p.ticker = t
	if p.r.Running && t-p.lastRPM > staleAfter {
		p.r.Running = false
		p.r.RPM = 0
		p.log.Info("engine off, no rpm reply", "seconds", staleAfter)
	}
	event, dst := eventStop, EngineOff
	switch {
	case p.r.Running && p.r.SpeedKmh > 0:
		event, dst = eventDrive, EngineDriving
	case p.r.Running:
		event, dst = eventIdle, EngineRunning
	}
	p.mu.Unlock()

	if p.engine.Current() == dst {
		return
	}
	if err := p.engine.Event(context.Background(), event); err != nil {
		p.log.Error(err, "engine state transition failed", "event", event)
	}
}

func (p *Profile) Ticker60(uint32) {
	r := p.Readings()
	p.log.Info("status", "vin", r.VIN, "rpm", r.RPM, "speed", r.SpeedKmh, "coolant", r.CoolantC, "voltage", r.VoltageV)
}
