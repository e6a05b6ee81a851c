package cmd

import (
	"errors"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/roffe/govehicle/pkg/log"
	"github.com/roffe/govehicle/pkg/options"
)

// ServerOptions is the complete daemon configuration. The mapstructure tags
// are the config file keys.
type ServerOptions struct {
	Log     *log.Options            `json:"log" mapstructure:"log"`
	Vehicle *options.VehicleOptions `json:"vehicle" mapstructure:"vehicle"`
	Fabric  *options.FabricOptions  `json:"fabric" mapstructure:"fabric"`
	Metrics *options.MetricsOptions `json:"metrics" mapstructure:"metrics"`

	// Buses is read from the "buses" key by Load.
	Buses *options.BusesOptions `json:"buses" mapstructure:"-"`
}

func NewServerOptions() *ServerOptions {
	return &ServerOptions{
		Log:     log.NewOptions(),
		Vehicle: options.NewVehicleOptions(),
		Fabric:  options.NewFabricOptions(),
		Metrics: options.NewMetricsOptions(),
		Buses:   options.NewBusesOptions(),
	}
}

func (o *ServerOptions) AddFlags(fs *pflag.FlagSet) {
	o.Log.AddFlags(fs)
	o.Vehicle.AddFlags(fs)
	o.Fabric.AddFlags(fs)
	o.Metrics.AddFlags(fs)
	o.Buses.AddFlags(fs)
}

// Load fills the options from v and applies the command line bus list.
func (o *ServerOptions) Load(v *viper.Viper) error {
	if err := v.Unmarshal(o); err != nil {
		return err
	}
	if v.IsSet("buses") {
		if err := v.UnmarshalKey("buses", &o.Buses.Buses); err != nil {
			return err
		}
	}
	return o.Buses.Complete()
}

func (o *ServerOptions) Validate() error {
	var errs []error
	errs = append(errs, o.Log.Validate()...)
	errs = append(errs, o.Vehicle.Validate()...)
	errs = append(errs, o.Fabric.Validate()...)
	errs = append(errs, o.Metrics.Validate()...)
	errs = append(errs, o.Buses.Validate()...)
	return errors.Join(errs...)
}
