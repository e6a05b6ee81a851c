package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roffe/govehicle/pkg/profile/obdii"
)

// Console reads commands line by line, e.g. "vehicle module O2".
type Console struct {
	u   *Unit
	out io.Writer
}

func NewConsole(u *Unit, out io.Writer) *Console {
	return &Console{u: u, out: out}
}

// Run executes commands from in until ctx is done or in is exhausted.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	fmt.Fprint(c.out, "> ")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			c.Exec(line)
			fmt.Fprint(c.out, "> ")
		}
	}
}

// Exec runs a single command line. Errors are written to the console output.
func (c *Console) Exec(line string) {
	args := strings.Fields(line)
	if len(args) == 0 {
		return
	}
	root := c.commands()
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
	}
}

// commands builds a fresh command tree per line so no flag state carries over.
func (c *Console) commands() *cobra.Command {
	root := &cobra.Command{
		Use:           "",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(c.out)
	root.SetErr(c.out)
	root.CompletionOptions.DisableDefaultCmd = true

	vehicle := &cobra.Command{
		Use:   "vehicle",
		Short: "Vehicle framework",
	}
	vehicle.AddCommand(
		&cobra.Command{
			Use:   "module [<type>]",
			Short: "Set (or clear) vehicle module",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if len(args) == 0 {
					c.u.ApplyVehicleType("")
					cmd.Println("vehicle cleared")
					return nil
				}
				if err := c.u.ApplyVehicleType(args[0]); err != nil {
					return err
				}
				cmd.Printf("vehicle set to %s\n", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the active vehicle",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				c.printStatus(cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List vehicle types",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				for _, vi := range c.u.factory.Types() {
					cmd.Printf("%-6s %s\n", vi.Type, vi.Description)
				}
			},
		},
	)
	root.AddCommand(vehicle)
	return root
}

type readingsProvider interface {
	Readings() obdii.Readings
	EngineState() string
}

func (c *Console) printStatus(w io.Writer) {
	st := c.u.Status()
	if st.VehicleType == "" {
		fmt.Fprintln(w, "no vehicle module set")
		return
	}
	fmt.Fprintf(w, "vehicle:    %s (%s)\n", st.VehicleType, st.VehicleName)
	fmt.Fprintf(w, "poll state: %d\n", st.PollState)
	fmt.Fprintf(w, "buses:      %s\n", strings.Join(st.Buses, ", "))
	fmt.Fprintf(w, "dropped:    %d\n", st.DroppedFrames)

	v := c.u.factory.Current()
	if v == nil {
		return
	}
	if rp, ok := v.Profile().(readingsProvider); ok {
		r := rp.Readings()
		fmt.Fprintf(w, "engine:     %s\n", rp.EngineState())
		fmt.Fprintf(w, "vin:        %s\n", r.VIN)
		fmt.Fprintf(w, "rpm:        %.0f\n", r.RPM)
		fmt.Fprintf(w, "speed:      %d km/h\n", r.SpeedKmh)
		fmt.Fprintf(w, "coolant:    %d C\n", r.CoolantC)
		fmt.Fprintf(w, "voltage:    %.2f V\n", r.VoltageV)
	}
}
