package adapter

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/roffe/govehicle"
	"go.bug.st/serial"
)

func init() {
	if err := Register(&Info{
		Name:               "SLCan",
		Description:        "Canable / Lawicel compatible serial line CAN adapter",
		RequiresSerialPort: true,
		New:                NewSLCan,
	}); err != nil {
		panic(err)
	}
}

const defaultSLCanBaudrate = 115200

var slcanSpeeds = map[govehicle.Speed]string{
	10:   "S0",
	20:   "S1",
	50:   "S2",
	100:  "S3",
	125:  "S4",
	250:  "S5",
	500:  "S6",
	750:  "S7",
	1000: "S8",
}

type SLCan struct {
	*BaseBus

	pmu  sync.Mutex
	port serial.Port
	stop chan struct{}

	wmu    sync.Mutex
	outBuf []byte
}

func NewSLCan(cfg *Config) (Driver, error) {
	if cfg.Baudrate == 0 {
		cfg.Baudrate = defaultSLCanBaudrate
	}
	return &SLCan{
		BaseBus: NewBaseBus("slcan", cfg),
		outBuf:  make([]byte, 0, 32),
	}, nil
}

func (sl *SLCan) SetPowerMode(p govehicle.PowerMode) error {
	var err error
	if p != govehicle.PowerOn {
		err = sl.closePort()
	}
	sl.setPower(p)
	return err
}

func (sl *SLCan) Start(mode govehicle.Mode, speed govehicle.Speed) error {
	if sl.PowerMode() != govehicle.PowerOn {
		return ErrPoweredOff
	}
	rate, ok := slcanSpeeds[speed]
	if !ok {
		return fmt.Errorf("unsupported speed %s", speed)
	}
	if err := sl.closePort(); err != nil {
		sl.log.Error(err, "failed to close previous port")
	}

	var p serial.Port
	err := retry.Do(
		func() error {
			var err error
			p, err = serial.Open(sl.cfg.Port, &serial.Mode{
				BaudRate: sl.cfg.Baudrate,
				Parity:   serial.NoParity,
				DataBits: 8,
				StopBits: serial.OneStopBit,
			})
			return err
		},
		retry.Attempts(3),
		retry.Delay(250*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			sl.log.Warn("failed to open com port, retrying", "port", sl.cfg.Port, "attempt", n+1, "err", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to open com port %q: %w", sl.cfg.Port, err)
	}
	p.SetReadTimeout(5 * time.Millisecond)
	p.ResetOutputBuffer()
	p.ResetInputBuffer()

	open := "O"
	if mode == govehicle.ModeListen {
		open = "L"
	}
	for _, cmd := range []string{"C", rate, open} {
		if _, err := p.Write([]byte(cmd + "\r")); err != nil {
			p.Close()
			return fmt.Errorf("failed to write %q to com port: %w", cmd, err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	stop := make(chan struct{})
	sl.pmu.Lock()
	sl.port = p
	sl.stop = stop
	sl.pmu.Unlock()

	sl.setStarted(mode, speed)
	go sl.recvManager(p, stop)
	sl.log.Info("channel open", "port", sl.cfg.Port, "mode", mode.String(), "speed", speed.String())
	return nil
}

func (sl *SLCan) Write(frame *govehicle.Frame) error {
	if err := sl.canWrite(); err != nil {
		return err
	}
	sl.pmu.Lock()
	p := sl.port
	sl.pmu.Unlock()
	if p == nil {
		return ErrNotStarted
	}

	sl.wmu.Lock()
	defer sl.wmu.Unlock()
	sl.outBuf = encodeSLCanFrame(sl.outBuf[:0], frame)
	sl.traceSend(frame)
	if _, err := p.Write(sl.outBuf); err != nil {
		return fmt.Errorf("failed to write to com port: %w", err)
	}
	return nil
}

func (sl *SLCan) Close() error {
	err := sl.SetPowerMode(govehicle.PowerOff)
	sl.BaseBus.Close()
	return err
}

func (sl *SLCan) closePort() error {
	sl.pmu.Lock()
	p, stop := sl.port, sl.stop
	sl.port, sl.stop = nil, nil
	sl.pmu.Unlock()
	if p == nil {
		return nil
	}
	close(stop)
	p.Write([]byte("C\r"))
	time.Sleep(10 * time.Millisecond)
	return p.Close()
}

func (sl *SLCan) recvManager(p serial.Port, stop <-chan struct{}) {
	buf := make([]byte, 0, 64)
	readBuf := make([]byte, 32)
	for {
		select {
		case <-stop:
			return
		case <-sl.closed():
			return
		default:
		}
		n, err := p.Read(readBuf)
		if err != nil {
			select {
			case <-stop:
			default:
				sl.log.Error(err, "failed to read com port", "port", sl.cfg.Port)
			}
			return
		}
		if n == 0 {
			continue
		}
		buf = splitSLCanLines(buf, readBuf[:n], sl.handleLine)
	}
}

func (sl *SLCan) handleLine(line []byte) {
	switch line[0] {
	case 't', 'T':
		frame, err := decodeSLCanFrame(sl, line)
		if err != nil {
			sl.log.Warn("failed to decode frame", "err", err, "line", string(line))
			return
		}
		if sl.receiving() {
			sl.deliver(frame)
		}
	case 'z', 'Z':
		// transmit acknowledge
	case '\a':
		sl.log.Warn("adapter rejected command")
	default:
		sl.log.Debug("unknown response", "line", string(line))
	}
}

// splitSLCanLines appends data to buf and calls fn for every complete line.
// The bell character terminates a line of its own. The unterminated rest is
// returned.
func splitSLCanLines(buf, data []byte, fn func([]byte)) []byte {
	for _, b := range data {
		switch b {
		case '\r':
			if len(buf) > 0 {
				fn(buf)
			}
			buf = buf[:0]
		case '\a':
			fn([]byte{'\a'})
			buf = buf[:0]
		default:
			buf = append(buf, b)
		}
	}
	return buf
}

func nybbleToHex(n byte) byte {
	if n < 10 {
		return '0' + n
	}
	return 'A' + (n - 10)
}

// encodeSLCanFrame appends the serial line form of frame to buf:
// t<iii><l><dd..>\r or T<iiiiiiii><l><dd..>\r
func encodeSLCanFrame(buf []byte, frame *govehicle.Frame) []byte {
	id := frame.Identifier()
	if frame.IsExtended() {
		buf = append(buf, 'T')
		for shift := 28; shift >= 0; shift -= 4 {
			buf = append(buf, nybbleToHex(byte(id>>shift)&0xF))
		}
	} else {
		buf = append(buf, 't',
			nybbleToHex(byte(id>>8)&0xF),
			nybbleToHex(byte(id>>4)&0xF),
			nybbleToHex(byte(id)&0xF),
		)
	}
	data := frame.Data()
	buf = append(buf, nybbleToHex(byte(len(data))))
	for _, b := range data {
		buf = append(buf, nybbleToHex(b>>4), nybbleToHex(b&0xF))
	}
	return append(buf, '\r')
}

func decodeSLCanFrame(origin govehicle.Bus, line []byte) (*govehicle.Frame, error) {
	idLen := 3
	if line[0] == 'T' {
		idLen = 8
	}
	if len(line) < idLen+2 {
		return nil, fmt.Errorf("frame too short")
	}
	id, err := strconv.ParseUint(string(line[1:1+idLen]), 16, 32)
	if err != nil {
		return nil, fmt.Errorf("failed to decode identifier: %w", err)
	}
	dlc, err := strconv.ParseUint(string(line[1+idLen]), 16, 8)
	if err != nil {
		return nil, fmt.Errorf("failed to decode data length: %w", err)
	}
	if dlc > govehicle.MaxDataLength {
		return nil, fmt.Errorf("invalid data length: %d", dlc)
	}
	body := line[2+idLen:]
	if len(body) < int(dlc)*2 {
		return nil, fmt.Errorf("frame body too short")
	}
	data, err := hex.DecodeString(string(bytes.ToUpper(body[:dlc*2])))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame body: %w", err)
	}
	if line[0] == 'T' {
		return govehicle.NewExtendedFrame(origin, uint32(id), data), nil
	}
	return govehicle.NewFrame(origin, uint32(id), data), nil
}
