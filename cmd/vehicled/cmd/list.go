package cmd

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
	"go.bug.st/serial/enumerator"

	"github.com/roffe/govehicle"
	"github.com/roffe/govehicle/adapter"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List vehicle types, bus drivers and ports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fabric := govehicle.NewFabric()
		defer fabric.Close()
		f := govehicle.NewFactory(fabric, govehicle.NewTicker(time.Second))
		if err := registerVehicles(f, opts.Buses); err != nil {
			return err
		}
		printList(cmd.OutOrStdout(), f.Types(), adapter.List(), serialPorts(), adapter.FindDevices())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func printList(w io.Writer, types []govehicle.VehicleInfo, drivers []adapter.Info, ports, ifaces []string) {
	table := uitable.New()
	table.MaxColWidth = 60
	table.Wrap = true

	table.AddRow("VEHICLE", "DESCRIPTION")
	for _, vi := range types {
		table.AddRow(vi.Type, vi.Description)
	}
	table.AddRow("")
	table.AddRow("DRIVER", "DESCRIPTION", "SERIAL PORT")
	for _, d := range drivers {
		table.AddRow(d.Name, d.Description, d.RequiresSerialPort)
	}
	table.AddRow("")
	table.AddRow("PORT", "KIND")
	for _, p := range ports {
		table.AddRow(p, "serial")
	}
	for _, i := range ifaces {
		table.AddRow(i, "socketcan")
	}
	fmt.Fprintln(w, table)
}

func serialPorts() []string {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil
	}
	var out []string
	for _, p := range ports {
		name := p.Name
		if p.IsUSB {
			name = fmt.Sprintf("%s (USB %s:%s)", p.Name, p.VID, p.PID)
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
