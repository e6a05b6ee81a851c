package govehicle

import (
	"errors"
	"fmt"
)

var (
	ErrBusNotFound          = errors.New("bus not found")
	ErrDuplicateBus         = errors.New("bus already registered")
	ErrInvalidBusSlot       = errors.New("invalid bus slot")
	ErrUnknownVehicleType   = errors.New("unknown vehicle type")
	ErrDuplicateVehicleType = errors.New("vehicle type already registered")
	ErrVehicleClosed        = errors.New("vehicle closed")
	ErrDroppedFrame         = errors.New("listener channel full, frame dropped")
	ErrNilBus               = errors.New("bus is nil")
)

// BusError wraps a failing setup call on a bus.
type BusError struct {
	Bus string
	Op  string
	Err error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Bus, e.Op, e.Err)
}

func (e *BusError) Unwrap() error {
	return e.Err
}
