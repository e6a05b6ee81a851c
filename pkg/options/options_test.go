package options

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		addr    string
		wantErr bool
	}{
		{"127.0.0.1:9464", false},
		{":8080", false},
		{"[::1]:80", false},
		{"localhost", true},
		{"host:port", true},
		{"host:70000", true},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			if err := ValidateAddress(tt.addr); (err != nil) != tt.wantErr {
				t.Errorf("ValidateAddress(%q) = %v, wantErr %v", tt.addr, err, tt.wantErr)
			}
		})
	}
}

func TestParseBusSpec(t *testing.T) {
	tests := []struct {
		spec    string
		want    BusOptions
		wantErr bool
	}{
		{spec: "can1:Simulator", want: BusOptions{Name: "can1", Driver: "Simulator", Mode: "active", Speed: 500}},
		{spec: "can2:SLCan:/dev/ttyACM0", want: BusOptions{Name: "can2", Driver: "SLCan", Port: "/dev/ttyACM0", Mode: "active", Speed: 500}},
		{spec: "can3:SLCan:/dev/ttyUSB0:921600", want: BusOptions{Name: "can3", Driver: "SLCan", Port: "/dev/ttyUSB0", Baudrate: 921600, Mode: "active", Speed: 500}},
		{spec: "can1", wantErr: true},
		{spec: ":Virtual", wantErr: true},
		{spec: "can1:SLCan:/dev/x:fast", wantErr: true},
		{spec: "a:b:c:1:e", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := ParseBusSpec(tt.spec)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseBusSpec(%q) err = %v, wantErr %v", tt.spec, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseBusSpec(%q) = %+v, want %+v", tt.spec, got, tt.want)
			}
		})
	}
}

func TestBusesOptions(t *testing.T) {
	o := NewBusesOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.AddFlags(fs)
	if err := fs.Parse([]string{"--bus", "can1:Virtual", "--bus", "can2:Simulator"}); err != nil {
		t.Fatal(err)
	}
	if err := o.Complete(); err != nil {
		t.Fatal(err)
	}
	if len(o.Buses) != 2 || o.Buses[1].Driver != "Simulator" {
		t.Fatalf("buses = %+v", o.Buses)
	}
	if b, ok := o.Find("can2"); !ok || b.Driver != "Simulator" {
		t.Errorf("Find(can2) = %+v, %v", b, ok)
	}
	if _, ok := o.Find("can3"); ok {
		t.Error("Find(can3) found a bus")
	}
	if errs := o.Validate(); len(errs) != 0 {
		t.Errorf("Validate() = %v", errs)
	}

	bad := &BusesOptions{Buses: []BusOptions{
		{Name: "can1", Driver: "Virtual", Mode: "active", Speed: 500},
		{Name: "can1", Driver: "Virtual", Mode: "active", Speed: 500},
		{Name: "can4", Driver: "", Mode: "sideways", Speed: 0, Baudrate: -1},
	}}
	// duplicate, bad name, no driver, bad mode, bad speed, bad baudrate
	if errs := bad.Validate(); len(errs) != 6 {
		t.Errorf("Validate() returned %d errors, want 6: %v", len(errs), errs)
	}
}

func TestMetricsOptions(t *testing.T) {
	o := NewMetricsOptions()
	if errs := o.Validate(); len(errs) != 0 {
		t.Fatalf("defaults invalid: %v", errs)
	}
	o.Addr = "nope"
	if errs := o.Validate(); len(errs) != 1 {
		t.Fatalf("Validate() = %v, want 1 error", errs)
	}
	o.Enabled = false
	if errs := o.Validate(); len(errs) != 0 {
		t.Fatalf("disabled server validated address: %v", errs)
	}
}

func TestFabricOptions(t *testing.T) {
	o := NewFabricOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.AddFlags(fs)
	if err := fs.Parse([]string{"--fabric.block-on-full", "--fabric.tick-period=250ms"}); err != nil {
		t.Fatal(err)
	}
	if !o.BlockOnFull || o.TickPeriod != 250*time.Millisecond {
		t.Fatalf("options = %+v", o)
	}
	o.TickPeriod = time.Millisecond
	if errs := o.Validate(); len(errs) != 1 {
		t.Fatalf("Validate() = %v, want 1 error", errs)
	}
}
