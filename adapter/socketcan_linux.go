//go:build linux

package adapter

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/roffe/govehicle"
	"go.einride.tech/can"
	"go.einride.tech/can/pkg/candevice"
	"go.einride.tech/can/pkg/socketcan"
)

func init() {
	if err := Register(&Info{
		Name:        "SocketCAN",
		Description: "Linux kernel CAN interface, port is the interface name",
		New:         NewSocketCAN,
	}); err != nil {
		panic(err)
	}
}

type SocketCAN struct {
	*BaseBus

	mu     sync.Mutex
	d      *candevice.Device
	conn   net.Conn
	tx     *socketcan.Transmitter
	cancel context.CancelFunc
}

func NewSocketCAN(cfg *Config) (Driver, error) {
	if cfg.Port == "" {
		return nil, fmt.Errorf("socketcan: interface name missing for %s", cfg.Name)
	}
	return &SocketCAN{
		BaseBus: NewBaseBus("socketcan", cfg),
	}, nil
}

func (a *SocketCAN) SetPowerMode(p govehicle.PowerMode) error {
	var err error
	if p != govehicle.PowerOn {
		err = a.down()
	}
	a.setPower(p)
	return err
}

// Start configures the bit rate and brings the interface up. Listen mode is
// enforced in software, the interface itself stays a normal node.
func (a *SocketCAN) Start(mode govehicle.Mode, speed govehicle.Speed) error {
	if a.PowerMode() != govehicle.PowerOn {
		return ErrPoweredOff
	}
	if err := a.down(); err != nil {
		a.log.Error(err, "failed to take interface down")
	}

	d, err := candevice.New(a.cfg.Port)
	if err != nil {
		return err
	}
	if err := d.SetBitrate(uint32(speed) * 1000); err != nil {
		return fmt.Errorf("failed to set bitrate: %w", err)
	}
	if err := d.SetUp(); err != nil {
		return fmt.Errorf("failed to bring %s up: %w", a.cfg.Port, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var conn net.Conn
	err = retry.Do(
		func() error {
			var err error
			conn, err = socketcan.DialContext(ctx, "can", a.cfg.Port)
			return err
		},
		retry.Attempts(3),
		retry.Delay(100*time.Millisecond),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		cancel()
		d.SetDown()
		return fmt.Errorf("failed to dial %s: %w", a.cfg.Port, err)
	}

	a.mu.Lock()
	a.d = d
	a.conn = conn
	a.tx = socketcan.NewTransmitter(conn)
	a.cancel = cancel
	a.mu.Unlock()

	a.setStarted(mode, speed)
	go a.recvManager(ctx, socketcan.NewReceiver(conn))
	a.log.Info("interface up", "interface", a.cfg.Port, "mode", mode.String(), "speed", speed.String())
	return nil
}

func (a *SocketCAN) Write(frame *govehicle.Frame) error {
	if err := a.canWrite(); err != nil {
		return err
	}
	a.mu.Lock()
	tx := a.tx
	a.mu.Unlock()
	if tx == nil {
		return ErrNotStarted
	}
	out := can.Frame{
		ID:         frame.Identifier(),
		Length:     uint8(frame.Length()),
		IsExtended: frame.IsExtended(),
	}
	copy(out.Data[:], frame.Data())
	a.traceSend(frame)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	return tx.TransmitFrame(ctx, out)
}

func (a *SocketCAN) Close() error {
	err := a.SetPowerMode(govehicle.PowerOff)
	a.BaseBus.Close()
	return err
}

func (a *SocketCAN) down() error {
	a.mu.Lock()
	d, conn, cancel := a.d, a.conn, a.cancel
	a.d, a.conn, a.tx, a.cancel = nil, nil, nil, nil
	a.mu.Unlock()
	if d == nil {
		return nil
	}
	cancel()
	conn.Close()
	return d.SetDown()
}

func (a *SocketCAN) recvManager(ctx context.Context, rx *socketcan.Receiver) {
	for rx.Receive() {
		if ctx.Err() != nil {
			return
		}
		if rx.HasErrorFrame() {
			a.log.Warn("error frame", "frame", rx.ErrorFrame())
			continue
		}
		f := rx.Frame()
		var frame *govehicle.Frame
		if f.IsExtended {
			frame = govehicle.NewExtendedFrame(a, f.ID, f.Data[:f.Length])
		} else {
			frame = govehicle.NewFrame(a, f.ID, f.Data[:f.Length])
		}
		if a.receiving() {
			a.deliver(frame)
		}
	}
	if err := rx.Err(); err != nil && ctx.Err() == nil {
		a.log.Error(err, "receive failed", "interface", a.cfg.Port)
	}
}

// FindDevices lists the network interfaces that look like CAN interfaces.
func FindDevices() (dev []string) {
	iFaces, _ := net.Interfaces()
	for _, i := range iFaces {
		if strings.Contains(i.Name, "can") {
			dev = append(dev, i.Name)
		}
	}
	return
}
