package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var (
	_ IOptions = (*VehicleOptions)(nil)
	_ IOptions = (*FabricOptions)(nil)
)

type VehicleOptions struct {
	// Type is the registry name of the vehicle selected at start, empty for none.
	Type string `json:"type" mapstructure:"type"`
	// Trace logs every frame the vehicle sends and receives.
	Trace bool `json:"trace" mapstructure:"trace"`
}

func NewVehicleOptions() *VehicleOptions {
	return &VehicleOptions{}
}

func (o *VehicleOptions) Validate() []error {
	return nil
}

func (o *VehicleOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Type, "vehicle.type", o.Type, "Vehicle type to activate at start, e.g. O2.")
	fs.BoolVar(&o.Trace, "vehicle.trace", o.Trace, "Log every frame sent and received by the vehicle.")
}

type FabricOptions struct {
	// BlockOnFull makes delivery wait for slow listeners instead of dropping frames.
	BlockOnFull bool          `json:"block-on-full" mapstructure:"block-on-full"`
	TickPeriod  time.Duration `json:"tick-period" mapstructure:"tick-period"`
}

func NewFabricOptions() *FabricOptions {
	return &FabricOptions{
		TickPeriod: time.Second,
	}
}

func (o *FabricOptions) Validate() []error {
	if o.TickPeriod < 10*time.Millisecond {
		return []error{fmt.Errorf("fabric.tick-period must be at least 10ms, got %s", o.TickPeriod)}
	}
	return nil
}

func (o *FabricOptions) AddFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.BlockOnFull, "fabric.block-on-full", o.BlockOnFull, "Block delivery on full listener queues instead of dropping frames.")
	fs.DurationVar(&o.TickPeriod, "fabric.tick-period", o.TickPeriod, "Period of the unit ticker.")
}
