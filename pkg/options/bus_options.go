package options

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/roffe/govehicle"
)

var _ IOptions = (*BusesOptions)(nil)

// BusOptions describes one bus of the unit and the driver behind it.
type BusOptions struct {
	// Name is the fabric name, can1 to can3.
	Name   string `json:"name" mapstructure:"name"`
	Driver string `json:"driver" mapstructure:"driver"`
	// Port is the serial device or network interface, depending on the driver.
	Port     string `json:"port,omitempty" mapstructure:"port"`
	Baudrate int    `json:"baudrate,omitempty" mapstructure:"baudrate"`
	// Mode and Speed are what the vehicle profile starts the bus with.
	Mode  string `json:"mode" mapstructure:"mode"`
	Speed int    `json:"speed" mapstructure:"speed"`
}

type BusesOptions struct {
	Buses []BusOptions `json:"buses" mapstructure:"buses"`

	specs []string
}

func NewBusesOptions() *BusesOptions {
	return &BusesOptions{
		Buses: []BusOptions{
			{Name: "can1", Driver: "Simulator", Mode: "active", Speed: int(govehicle.Speed500k)},
		},
	}
}

// ParseBusSpec parses name:driver[:port[:baudrate]], e.g. can2:SLCan:/dev/ttyACM0:115200.
func ParseBusSpec(spec string) (BusOptions, error) {
	parts := strings.Split(spec, ":")
	if len(parts) < 2 || len(parts) > 4 || parts[0] == "" || parts[1] == "" {
		return BusOptions{}, fmt.Errorf("invalid bus %q, want name:driver[:port[:baudrate]]", spec)
	}
	b := BusOptions{
		Name:   parts[0],
		Driver: parts[1],
		Mode:   "active",
		Speed:  int(govehicle.Speed500k),
	}
	if len(parts) > 2 {
		b.Port = parts[2]
	}
	if len(parts) > 3 {
		baud, err := strconv.Atoi(parts[3])
		if err != nil {
			return BusOptions{}, fmt.Errorf("invalid baudrate in bus %q: %w", spec, err)
		}
		b.Baudrate = baud
	}
	return b, nil
}

// Complete replaces the configured buses with the ones given by --bus, if any.
func (o *BusesOptions) Complete() error {
	if len(o.specs) == 0 {
		return nil
	}
	buses := make([]BusOptions, 0, len(o.specs))
	for _, spec := range o.specs {
		b, err := ParseBusSpec(spec)
		if err != nil {
			return err
		}
		buses = append(buses, b)
	}
	o.Buses = buses
	return nil
}

// Find returns the options of the named bus.
func (o *BusesOptions) Find(name string) (BusOptions, bool) {
	for _, b := range o.Buses {
		if b.Name == name {
			return b, true
		}
	}
	return BusOptions{}, false
}

func (o *BusesOptions) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	seen := make(map[string]bool)
	valid := make(map[string]bool)
	for slot := 1; slot <= govehicle.NumBuses; slot++ {
		valid[govehicle.BusName(slot)] = true
	}
	for i, b := range o.Buses {
		if !valid[b.Name] {
			errs = append(errs, fmt.Errorf("buses[%d]: name must be can1 to can%d, got %q", i, govehicle.NumBuses, b.Name))
		}
		if seen[b.Name] {
			errs = append(errs, fmt.Errorf("buses[%d]: duplicate bus %q", i, b.Name))
		}
		seen[b.Name] = true
		if b.Driver == "" {
			errs = append(errs, fmt.Errorf("buses[%d]: driver missing", i))
		}
		if _, err := govehicle.ParseMode(b.Mode); err != nil {
			errs = append(errs, fmt.Errorf("buses[%d]: %w", i, err))
		}
		if b.Speed <= 0 {
			errs = append(errs, fmt.Errorf("buses[%d]: speed must be positive, got %d", i, b.Speed))
		}
		if b.Baudrate < 0 {
			errs = append(errs, fmt.Errorf("buses[%d]: baudrate must not be negative", i))
		}
	}
	return errs
}

func (o *BusesOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringArrayVar(&o.specs, "bus", o.specs, "Bus as name:driver[:port[:baudrate]], repeatable. Replaces the buses of the config file.")
}
