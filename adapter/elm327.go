package adapter

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/roffe/govehicle"
	"go.bug.st/serial"
)

func init() {
	if err := Register(&Info{
		Name:               "ELM327",
		Description:        "ELM327 / STN11xx OBD-II interface, 11 bit ids only",
		RequiresSerialPort: true,
		New:                NewELM327,
	}); err != nil {
		panic(err)
	}
}

const (
	defaultELM327Baudrate = 38400
	elm327PromptTimeout   = 500 * time.Millisecond
)

var elm327Protocols = map[govehicle.Speed]string{
	250: "ATSP8",
	500: "ATSP6",
}

var errELM327Prompt = errors.New("no prompt from adapter")

type ELM327 struct {
	*BaseBus

	pmu  sync.Mutex
	port serial.Port
	stop chan struct{}

	// holds a token while a command is waiting for the '>' prompt
	sem    chan struct{}
	wmu    sync.Mutex
	header uint32
}

func NewELM327(cfg *Config) (Driver, error) {
	if cfg.Baudrate == 0 {
		cfg.Baudrate = defaultELM327Baudrate
	}
	return &ELM327{
		BaseBus: NewBaseBus("elm327", cfg),
		sem:     make(chan struct{}, 1),
	}, nil
}

func (elm *ELM327) SetPowerMode(p govehicle.PowerMode) error {
	var err error
	if p != govehicle.PowerOn {
		err = elm.closePort()
	}
	elm.setPower(p)
	return err
}

func (elm *ELM327) Start(mode govehicle.Mode, speed govehicle.Speed) error {
	if elm.PowerMode() != govehicle.PowerOn {
		return ErrPoweredOff
	}
	protocol, ok := elm327Protocols[speed]
	if !ok {
		return fmt.Errorf("unsupported speed %s", speed)
	}
	if err := elm.closePort(); err != nil {
		elm.log.Error(err, "failed to close previous port")
	}

	var p serial.Port
	err := retry.Do(
		func() error {
			var err error
			p, err = serial.Open(elm.cfg.Port, &serial.Mode{
				BaudRate: elm.cfg.Baudrate,
				Parity:   serial.NoParity,
				DataBits: 8,
				StopBits: serial.OneStopBit,
			})
			return err
		},
		retry.Attempts(3),
		retry.Delay(250*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("failed to open com port %q: %w", elm.cfg.Port, err)
	}
	p.SetReadTimeout(5 * time.Millisecond)
	p.ResetOutputBuffer()
	p.ResetInputBuffer()

	for _, cmd := range elm327InitCommands(protocol) {
		if _, err := p.Write([]byte(cmd + "\r")); err != nil {
			p.Close()
			return fmt.Errorf("failed to write %q to com port: %w", cmd, err)
		}
		time.Sleep(15 * time.Millisecond)
	}
	p.ResetInputBuffer()

	stop := make(chan struct{})
	elm.pmu.Lock()
	elm.port = p
	elm.stop = stop
	elm.header = 0
	elm.pmu.Unlock()
	select {
	case <-elm.sem:
	default:
	}

	elm.setStarted(mode, speed)
	go elm.recvManager(p, stop)
	if mode == govehicle.ModeListen {
		if _, err := p.Write([]byte("ATMA\r")); err != nil {
			return fmt.Errorf("failed to start monitor: %w", err)
		}
	}
	elm.log.Info("channel open", "port", elm.cfg.Port, "mode", mode.String(), "speed", speed.String())
	return nil
}

func elm327InitCommands(protocol string) []string {
	return []string{
		"ATZ",    // reset
		"ATE0",   // echo off
		"ATS0",   // spaces off
		"ATH1",   // headers on
		protocol, // bus speed, 11 bit ids
		"ATCAF0", // raw data, the pci byte is ours
		"ATAL",   // allow long messages
		"ATCFC0", // flow control is sent by the poller
	}
}

// Write sends the header when it changed and then the data. Every command
// waits for the prompt of the previous one.
func (elm *ELM327) Write(frame *govehicle.Frame) error {
	if err := elm.canWrite(); err != nil {
		return err
	}
	if frame.IsExtended() {
		return fmt.Errorf("extended id 0x%08X not supported", frame.Identifier())
	}
	elm.pmu.Lock()
	p := elm.port
	elm.pmu.Unlock()
	if p == nil {
		return ErrNotStarted
	}

	elm.wmu.Lock()
	defer elm.wmu.Unlock()
	elm.traceSend(frame)
	if id := frame.Identifier(); id != elm.header {
		if err := elm.command(p, fmt.Sprintf("ATSH%03X", id)); err != nil {
			return err
		}
		elm.header = id
	}
	return elm.command(p, strings.ToUpper(hex.EncodeToString(frame.Data())))
}

func (elm *ELM327) command(p serial.Port, cmd string) error {
	select {
	case elm.sem <- struct{}{}:
	case <-time.After(elm327PromptTimeout):
		return errELM327Prompt
	}
	if _, err := p.Write([]byte(cmd + "\r")); err != nil {
		<-elm.sem
		return fmt.Errorf("failed to write to com port: %w", err)
	}
	return nil
}

func (elm *ELM327) Close() error {
	err := elm.SetPowerMode(govehicle.PowerOff)
	elm.BaseBus.Close()
	return err
}

func (elm *ELM327) closePort() error {
	elm.pmu.Lock()
	p, stop := elm.port, elm.stop
	elm.port, elm.stop = nil, nil
	elm.pmu.Unlock()
	if p == nil {
		return nil
	}
	close(stop)
	// any byte stops monitor mode
	p.Write([]byte("\r"))
	time.Sleep(50 * time.Millisecond)
	p.Write([]byte("ATZ\r"))
	time.Sleep(50 * time.Millisecond)
	return p.Close()
}

func (elm *ELM327) recvManager(p serial.Port, stop <-chan struct{}) {
	buf := bytes.NewBuffer(nil)
	readBuf := make([]byte, 32)
	for {
		select {
		case <-stop:
			return
		case <-elm.closed():
			return
		default:
		}
		n, err := p.Read(readBuf)
		if err != nil {
			select {
			case <-stop:
			default:
				elm.log.Error(err, "failed to read com port", "port", elm.cfg.Port)
			}
			return
		}
		for _, b := range readBuf[:n] {
			switch b {
			case '>':
				select {
				case <-elm.sem:
				default:
				}
			case '\r', '\n':
				if buf.Len() > 0 {
					elm.handleLine(buf.String())
				}
				buf.Reset()
			default:
				buf.WriteByte(b)
			}
		}
	}
}

func (elm *ELM327) handleLine(line string) {
	switch line {
	case "OK", "NO DATA", "STOPPED", "SEARCHING...":
		return
	case "?":
		elm.log.Warn("adapter rejected command")
		return
	case "CAN ERROR", "BUFFER FULL", "BUS ERROR":
		elm.log.Warn("adapter error", "msg", line)
		return
	}
	if strings.HasPrefix(line, "ELM327") {
		elm.log.Info("adapter found", "version", line)
		return
	}
	frame, err := decodeELM327Frame(elm, line)
	if err != nil {
		elm.log.Debug("unknown response", "line", line, "err", err)
		return
	}
	if elm.receiving() {
		elm.deliver(frame)
	}
}

// decodeELM327Frame parses a response line with headers on and spaces off,
// e.g. "7E804410C1AF8AAAA".
func decodeELM327Frame(origin govehicle.Bus, line string) (*govehicle.Frame, error) {
	line = strings.ReplaceAll(line, " ", "")
	if len(line) < 3 || (len(line)-3)%2 != 0 {
		return nil, fmt.Errorf("bad line length %d", len(line))
	}
	id, err := strconv.ParseUint(line[:3], 16, 32)
	if err != nil {
		return nil, fmt.Errorf("failed to decode identifier: %w", err)
	}
	data, err := hex.DecodeString(line[3:])
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame body: %w", err)
	}
	if len(data) > govehicle.MaxDataLength {
		return nil, fmt.Errorf("invalid data length: %d", len(data))
	}
	return govehicle.NewFrame(origin, uint32(id), data), nil
}
