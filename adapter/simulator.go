package adapter

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/roffe/govehicle"
)

func init() {
	if err := Register(&Info{
		Name:        "Simulator",
		Description: "OBD-II engine ECU answering modes 01, 02, 09, 10, 21 and 22",
		New:         NewSimulator,
	}); err != nil {
		panic(err)
	}
}

const (
	SimulatorRequestID  uint32 = 0x7E0
	SimulatorResponseID uint32 = 0x7E8

	// DefaultVIN is reported by the simulator unless SetVIN is called.
	DefaultVIN = "WP0ZZZ99ZTS392124"
)

// negative response codes
const (
	nrcServiceNotSupported = 0x11
	nrcSubFunction         = 0x12
	nrcOutOfRange          = 0x31
)

// EngineState is what the simulated ECU reports.
type EngineState struct {
	RPM      uint16
	SpeedKmh uint8
	CoolantC int
	IntakeC  int
	FuelPct  uint8
	VoltageV float64
}

var idleEngine = EngineState{
	RPM:      820,
	SpeedKmh: 0,
	CoolantC: 88,
	IntakeC:  24,
	FuelPct:  64,
	VoltageV: 14.1,
}

// Simulator is a bus with a single engine ECU attached. It answers OBD-II
// requests addressed to 0x7DF or 0x7E0 from 0x7E8 and honours ISO 15765-2
// flow control for segmented responses.
type Simulator struct {
	*BaseBus

	smu     sync.Mutex
	vin     string
	engine  EngineState
	freeze  EngineState
	pending []*govehicle.Frame // consecutive frames waiting for flow control
}

func NewSimulator(cfg *Config) (Driver, error) {
	return &Simulator{
		BaseBus: NewBaseBus("simulator", cfg),
		vin:     DefaultVIN,
		engine:  idleEngine,
		freeze:  EngineState{RPM: 3150, SpeedKmh: 97, CoolantC: 109, IntakeC: 31, FuelPct: 40, VoltageV: 13.8},
	}, nil
}

func (s *Simulator) SetVIN(vin string) {
	s.smu.Lock()
	defer s.smu.Unlock()
	s.vin = vin
}

func (s *Simulator) SetEngine(e EngineState) {
	s.smu.Lock()
	defer s.smu.Unlock()
	s.engine = e
}

func (s *Simulator) Engine() EngineState {
	s.smu.Lock()
	defer s.smu.Unlock()
	return s.engine
}

func (s *Simulator) SetPowerMode(p govehicle.PowerMode) error {
	s.setPower(p)
	if p != govehicle.PowerOn {
		s.smu.Lock()
		s.pending = nil
		s.smu.Unlock()
	}
	return nil
}

func (s *Simulator) Start(mode govehicle.Mode, speed govehicle.Speed) error {
	if s.PowerMode() != govehicle.PowerOn {
		return ErrPoweredOff
	}
	s.setStarted(mode, speed)
	s.log.Info("ecu online", "mode", mode.String(), "speed", speed.String())
	return nil
}

func (s *Simulator) Write(frame *govehicle.Frame) error {
	if err := s.canWrite(); err != nil {
		return err
	}
	s.traceSend(frame)
	id := frame.Identifier()
	if frame.IsExtended() || (id != govehicle.BroadcastRequestID && id != SimulatorRequestID) {
		return nil
	}
	data := frame.Data()
	if len(data) == 0 {
		return nil
	}

	s.smu.Lock()
	var out []*govehicle.Frame
	switch data[0] >> 4 {
	case 0x0:
		n := int(data[0] & 0x0F)
		if n > 0 && n < len(data) {
			out = s.respond(data[1 : 1+n])
		}
	case 0x3:
		// flow control is only accepted on the physical address
		if id == SimulatorRequestID && data[0] == 0x30 {
			out, s.pending = s.pending, nil
		}
	}
	s.smu.Unlock()

	for _, f := range out {
		if !s.receiving() {
			break
		}
		s.deliver(f)
	}
	return nil
}

// Run varies the engine state to mimic a short drive cycle until ctx is done.
func (s *Simulator) Run(ctx context.Context) error {
	t := time.NewTicker(200 * time.Millisecond)
	defer t.Stop()
	var step int
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.closed():
			return nil
		case <-t.C:
			step = (step + 1) % 300
			s.SetEngine(driveCycle(step))
		}
	}
}

// driveCycle maps a step in [0,300) to an engine state: idle, accelerate,
// cruise, brake.
func driveCycle(step int) EngineState {
	e := idleEngine
	switch {
	case step < 50:
	case step < 100:
		k := step - 50
		e.RPM = uint16(820 + k*50)
		e.SpeedKmh = uint8(k * 2)
	case step < 250:
		e.RPM = 2600
		e.SpeedKmh = 100
	default:
		k := step - 250
		e.RPM = uint16(2600 - k*35)
		e.SpeedKmh = uint8(100 - k*2)
	}
	e.CoolantC = 70 + step/15
	if e.CoolantC > 92 {
		e.CoolantC = 92
	}
	return e
}

// respond builds the response frames for a request payload [mode, ...].
// Must be called with smu held.
func (s *Simulator) respond(req []byte) []*govehicle.Frame {
	mode := req[0]
	switch mode {
	case 0x01:
		if len(req) < 2 {
			return nil
		}
		val, ok := pidValue(s.engine, req[1])
		if !ok {
			return nil
		}
		return s.frames(append([]byte{0x41, req[1]}, val...))
	case 0x02:
		if len(req) < 2 {
			return nil
		}
		if req[1] == 0x02 {
			// DTC that stored the freeze frame
			return s.frames([]byte{0x42, 0x02, 0x00, 0x01, 0x18})
		}
		val, ok := pidValue(s.freeze, req[1])
		if !ok {
			return nil
		}
		return s.frames(append([]byte{0x42, req[1], 0x00}, val...))
	case 0x09:
		if len(req) < 2 {
			return nil
		}
		switch req[1] {
		case 0x00:
			return s.frames([]byte{0x49, 0x00, 0x54, 0x40, 0x00, 0x00})
		case 0x02:
			return s.frames(append([]byte{0x49, 0x02, 0x01}, s.vin...))
		case 0x0A:
			return s.frames(append([]byte{0x49, 0x0A, 0x01}, "ECM-EngineControl\x00\x00\x00"...))
		}
		return nil
	case 0x10:
		if len(req) < 2 || req[1] == 0 || req[1] > 0x03 {
			return s.negative(mode, nrcSubFunction)
		}
		return s.frames([]byte{0x50, req[1], 0x00, 0x32, 0x01, 0xF4})
	case 0x21:
		if len(req) < 2 || req[1] != 0x01 {
			return s.negative(mode, nrcOutOfRange)
		}
		e := s.engine
		dv := decivolts(e.VoltageV)
		// record status byte, then the group values
		return s.frames([]byte{0x61, 0x01, 0x00,
			byte(e.RPM >> 8), byte(e.RPM), e.SpeedKmh, byte(e.CoolantC + 40), byte(e.IntakeC + 40),
			e.FuelPct, byte(dv >> 8), byte(dv),
			0x00, 0x00, 0x00, 0x00,
		})
	case 0x22:
		if len(req) < 3 {
			return s.negative(mode, nrcOutOfRange)
		}
		did := uint16(req[1])<<8 | uint16(req[2])
		var val []byte
		switch did {
		case 0xF40C, 0xF40D:
			val, _ = pidValue(s.engine, byte(did))
		case 0x0101:
			val, _ = pidValue(s.engine, 0x42)
		default:
			return s.negative(mode, nrcOutOfRange)
		}
		return s.frames(append([]byte{0x62, req[1], req[2]}, val...))
	}
	return s.negative(mode, nrcServiceNotSupported)
}

func (s *Simulator) negative(mode, code byte) []*govehicle.Frame {
	return s.frames([]byte{0x7F, mode, code})
}

// frames encodes payload as an ISO-TP single frame, or as a first frame
// followed by consecutive frames that are held back until flow control.
// Must be called with smu held.
func (s *Simulator) frames(payload []byte) []*govehicle.Frame {
	if len(payload) <= 7 {
		data := make([]byte, govehicle.MaxDataLength)
		data[0] = byte(len(payload))
		copy(data[1:], payload)
		return []*govehicle.Frame{govehicle.NewFrame(s, SimulatorResponseID, data)}
	}
	total := len(payload)
	first := make([]byte, govehicle.MaxDataLength)
	first[0] = 0x10 | byte(total>>8)&0x0F
	first[1] = byte(total)
	copy(first[2:], payload[:6])

	s.pending = s.pending[:0]
	seq := byte(1)
	for rest := payload[6:]; len(rest) > 0; seq++ {
		n := len(rest)
		if n > 7 {
			n = 7
		}
		data := make([]byte, govehicle.MaxDataLength)
		data[0] = 0x20 | seq&0x0F
		copy(data[1:], rest[:n])
		s.pending = append(s.pending, govehicle.NewFrame(s, SimulatorResponseID, data))
		rest = rest[n:]
	}
	return []*govehicle.Frame{govehicle.NewFrame(s, SimulatorResponseID, first)}
}

// pidValue encodes a mode 01 PID per SAE J1979.
func pidValue(e EngineState, pid byte) ([]byte, bool) {
	switch pid {
	case 0x00:
		// supported: 05 0C 0D 0F 20
		return []byte{0x08, 0x1A, 0x00, 0x01}, true
	case 0x05:
		return []byte{byte(e.CoolantC + 40)}, true
	case 0x0C:
		raw := uint32(e.RPM) * 4
		return []byte{byte(raw >> 8), byte(raw)}, true
	case 0x0D:
		return []byte{e.SpeedKmh}, true
	case 0x0F:
		return []byte{byte(e.IntakeC + 40)}, true
	case 0x20:
		// supported: 2F 40
		return []byte{0x00, 0x02, 0x00, 0x01}, true
	case 0x2F:
		return []byte{byte(uint16(e.FuelPct) * 255 / 100)}, true
	case 0x40:
		// supported: 42
		return []byte{0x40, 0x00, 0x00, 0x00}, true
	case 0x42:
		mv := uint16(math.Round(e.VoltageV * 1000))
		return []byte{byte(mv >> 8), byte(mv)}, true
	}
	return nil, false
}

func decivolts(v float64) uint16 {
	return uint16(math.Round(v * 10))
}
