package cmd

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/roffe/govehicle"
	"github.com/roffe/govehicle/adapter"
	"github.com/roffe/govehicle/pkg/log"
	"github.com/roffe/govehicle/pkg/metrics"
	"github.com/roffe/govehicle/pkg/options"
	"github.com/roffe/govehicle/pkg/profile/obdii"
)

// Unit is one running vehicle controller: the bus drivers, the fabric they
// are registered with, the heartbeat and the vehicle factory.
type Unit struct {
	opts     *ServerOptions
	fabric   *govehicle.Fabric
	ticker   *govehicle.Ticker
	factory  *govehicle.Factory
	recorder *metrics.Recorder
	drivers  []adapter.Driver
}

func NewUnit(o *ServerOptions) (*Unit, error) {
	recorder := metrics.NewRecorder()
	policy := govehicle.DropWhenFull
	if o.Fabric.BlockOnFull {
		policy = govehicle.BlockWhenFull
	}
	u := &Unit{
		opts:     o,
		recorder: recorder,
		fabric:   govehicle.NewFabric(govehicle.WithDeliveryPolicy(policy), govehicle.WithFabricRecorder(recorder)),
		ticker:   govehicle.NewTicker(o.Fabric.TickPeriod),
	}
	for _, b := range o.Buses.Buses {
		d, err := adapter.New(b.Driver, &adapter.Config{
			Name:     b.Name,
			Port:     b.Port,
			Baudrate: b.Baudrate,
			Trace:    o.Vehicle.Trace,
		})
		if err != nil {
			u.Close()
			return nil, fmt.Errorf("failed to create %s: %w", b.Name, err)
		}
		u.drivers = append(u.drivers, d)
		if err := u.fabric.AddBus(d); err != nil {
			u.Close()
			return nil, err
		}
		log.Info("bus added", "bus", b.Name, "driver", b.Driver, "port", b.Port)
	}
	u.factory = govehicle.NewFactory(u.fabric, u.ticker,
		govehicle.WithRecorder(recorder),
		govehicle.WithFrameTrace(o.Vehicle.Trace),
	)
	if err := registerVehicles(u.factory, o.Buses); err != nil {
		u.Close()
		return nil, err
	}
	return u, nil
}

// registerVehicles adds every vehicle type this build knows about.
func registerVehicles(f *govehicle.Factory, buses *options.BusesOptions) error {
	cfg := obdii.DefaultConfig()
	if b, ok := buses.Find(govehicle.BusName(cfg.Slot)); ok {
		mode, err := govehicle.ParseMode(b.Mode)
		if err != nil {
			return err
		}
		cfg.Mode = mode
		cfg.Speed = govehicle.Speed(b.Speed)
	}
	return obdii.Register(f, cfg)
}

// ApplyVehicleType activates typ, an empty type clears the vehicle.
func (u *Unit) ApplyVehicleType(typ string) error {
	if typ == "" {
		u.factory.ClearVehicle()
		return nil
	}
	return u.factory.SetVehicle(typ)
}

func (u *Unit) Status() metrics.Status {
	st := metrics.Status{
		VehicleType:   u.factory.CurrentType(),
		Buses:         u.fabric.BusNames(),
		DroppedFrames: u.fabric.Dropped(),
	}
	if v := u.factory.Current(); v != nil {
		st.PollState = v.PollState()
		if p := v.Profile(); p != nil {
			st.VehicleName = p.VehicleName()
		}
	}
	return st
}

// Run drives the heartbeat and the metrics server until ctx is done. With
// animate set, simulated ECUs run their drive cycle.
func (u *Unit) Run(ctx context.Context, animate bool) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return u.ticker.Run(ctx)
	})
	if u.opts.Metrics.Enabled {
		srv := metrics.NewServer(u.opts.Metrics.Addr, metrics.NewRouter(u.recorder, u.Status))
		g.Go(func() error {
			return srv.Start(ctx)
		})
	}
	if animate {
		for _, d := range u.drivers {
			if sim, ok := d.(*adapter.Simulator); ok {
				g.Go(func() error {
					return sim.Run(ctx)
				})
			}
		}
	}
	return g.Wait()
}

// Close tears down the vehicle before the buses it uses.
func (u *Unit) Close() error {
	var errs []error
	if u.factory != nil {
		errs = append(errs, u.factory.Close())
	}
	u.fabric.Close()
	for _, d := range u.drivers {
		if err := d.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.Name(), err))
		}
	}
	return errors.Join(errs...)
}
