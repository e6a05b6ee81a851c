package cmd

import (
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/roffe/govehicle"
	"github.com/roffe/govehicle/pkg/log"
	"github.com/roffe/govehicle/pkg/options"
	"github.com/roffe/govehicle/pkg/profile/obdii"
)

const (
	flagPick    = "pick"
	flagDemo    = "demo"
	flagConsole = "console"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the unit",
	Long: `Start the buses, the heartbeat and the vehicle selected by vehicle.type.
A change of vehicle.type in the config file switches the vehicle while running.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		demo, _ := cmd.Flags().GetBool(flagDemo)
		pick, _ := cmd.Flags().GetBool(flagPick)
		console, _ := cmd.Flags().GetBool(flagConsole)

		if demo {
			opts.Buses.Buses = []options.BusOptions{
				{Name: govehicle.BusName(1), Driver: "Simulator", Mode: "active", Speed: int(govehicle.Speed500k)},
			}
			if opts.Vehicle.Type == "" {
				opts.Vehicle.Type = obdii.Type
			}
		}
		if err := opts.Validate(); err != nil {
			return err
		}
		if err := log.Init(opts.Log); err != nil {
			return err
		}
		defer log.Sync()

		u, err := NewUnit(opts)
		if err != nil {
			return err
		}
		defer u.Close()

		typ := opts.Vehicle.Type
		if pick {
			if typ, err = pickVehicle(u.factory.Types()); err != nil {
				return err
			}
		}
		if err := u.ApplyVehicleType(typ); err != nil {
			// keep running without a vehicle, it can be set from the console or config
			log.Error(err, "failed to set vehicle", "type", typ)
		}
		watchConfig(viper.GetViper(), u)

		g, ctx := errgroup.WithContext(cmd.Context())
		g.Go(func() error {
			return u.Run(ctx, demo)
		})
		if console {
			c := NewConsole(u, cmd.OutOrStdout())
			g.Go(func() error {
				return c.Run(ctx, os.Stdin)
			})
		}
		return g.Wait()
	},
}

func init() {
	f := runCmd.Flags()
	f.Bool(flagPick, false, "pick the vehicle type interactively")
	f.Bool(flagDemo, false, "run against a simulated ECU on can1")
	f.Bool(flagConsole, false, "read console commands from stdin")
	rootCmd.AddCommand(runCmd)
}

const noVehicle = "(none)"

func pickVehicle(types []govehicle.VehicleInfo) (string, error) {
	items := []string{noVehicle}
	for _, vi := range types {
		items = append(items, vi.Type)
	}
	prompt := promptui.Select{
		Label:    "Vehicle type",
		HideHelp: true,
		Items:    items,
	}
	_, result, err := prompt.Run()
	if err != nil {
		return "", fmt.Errorf("prompt failed: %w", err)
	}
	if result == noVehicle {
		return "", nil
	}
	return result, nil
}

// watchConfig applies changes of vehicle.type and log.level in the config file.
func watchConfig(v *viper.Viper, u *Unit) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Info("config file changed", "file", e.Name, "op", e.Op.String())
		applyConfig(v, u)
	})
	v.WatchConfig()
}

func applyConfig(v *viper.Viper, u *Unit) {
	if lvl := v.GetString("log.level"); lvl != "" && lvl != log.Level() {
		if err := log.SetLevel(lvl); err != nil {
			log.Error(err, "failed to change log level")
		} else {
			log.Info("log level changed", "level", lvl)
		}
	}
	typ := v.GetString("vehicle.type")
	if typ == u.factory.CurrentType() {
		return
	}
	if err := u.ApplyVehicleType(typ); err != nil {
		log.Error(err, "failed to set vehicle", "type", typ)
	}
}
