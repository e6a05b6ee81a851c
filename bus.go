package govehicle

import "fmt"

// Bus is a physical or logical CAN bus owned by a driver in the adapter package.
type Bus interface {
	Name() string
	SetPowerMode(PowerMode) error
	Start(Mode, Speed) error
	Write(*Frame) error
	// Recv delivers frames received on the bus, origin set to the bus itself.
	Recv() <-chan *Frame
}

type PowerMode int

const (
	PowerOff PowerMode = iota
	PowerOn
	PowerSleep
)

func (p PowerMode) String() string {
	switch p {
	case PowerOff:
		return "off"
	case PowerOn:
		return "on"
	case PowerSleep:
		return "sleep"
	default:
		return "unknown"
	}
}

type Mode int

const (
	ModeListen Mode = iota
	ModeActive
)

func (m Mode) String() string {
	switch m {
	case ModeListen:
		return "listen"
	case ModeActive:
		return "active"
	default:
		return "unknown"
	}
}

// ParseMode converts the config string form of a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "listen":
		return ModeListen, nil
	case "active", "":
		return ModeActive, nil
	}
	return ModeListen, fmt.Errorf("unknown bus mode %q", s)
}

// Speed is the bus bit rate in kbit/s
type Speed int

const (
	Speed100k  Speed = 100
	Speed125k  Speed = 125
	Speed250k  Speed = 250
	Speed500k  Speed = 500
	Speed1000k Speed = 1000
)

func (s Speed) String() string {
	return fmt.Sprintf("%dkbps", int(s))
}

// BusName returns the fabric name for a vehicle bus slot, 1 => "can1".
func BusName(slot int) string {
	return fmt.Sprintf("can%d", slot)
}
