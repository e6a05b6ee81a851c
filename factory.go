package govehicle

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/roffe/govehicle/pkg/log"
)

// Constructor builds the profile for a freshly created vehicle. It is the
// place to register buses and install the poll list. Returning an error
// tears the vehicle down again.
type Constructor func(v *Vehicle) (Profile, error)

type VehicleInfo struct {
	Type        string
	Description string
	New         Constructor
}

func (vi *VehicleInfo) String() string {
	return fmt.Sprintf("%s | %s", vi.Type, vi.Description)
}

type FactoryOption func(*Factory)

func WithRecorder(r Recorder) FactoryOption {
	return func(f *Factory) {
		if r != nil {
			f.recorder = r
		}
	}
}

// WithFrameTrace logs every frame a vehicle sends or receives at debug level.
func WithFrameTrace(enabled bool) FactoryOption {
	return func(f *Factory) {
		f.trace = enabled
	}
}

// Factory maps vehicle type names to constructors and owns the one active vehicle.
type Factory struct {
	fabric   *Fabric
	ticker   *Ticker
	recorder Recorder
	trace    bool

	mu          sync.Mutex
	registry    map[string]*VehicleInfo
	current     *Vehicle
	currentType string
}

func NewFactory(fabric *Fabric, ticker *Ticker, opts ...FactoryOption) *Factory {
	f := &Factory{
		fabric:   fabric,
		ticker:   ticker,
		recorder: nopRecorder{},
		registry: make(map[string]*VehicleInfo),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Register adds a vehicle type. Registering a name twice fails and keeps the
// first registration.
func (f *Factory) Register(info *VehicleInfo) error {
	if info == nil || info.Type == "" || info.New == nil {
		return fmt.Errorf("invalid vehicle info")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, found := f.registry[info.Type]; found {
		log.Warn("duplicate vehicle type registration rejected", "type", info.Type)
		return fmt.Errorf("%w: %s", ErrDuplicateVehicleType, info.Type)
	}
	f.registry[info.Type] = info
	log.Debug("vehicle type registered", "type", info.Type)
	return nil
}

// Has reports whether typ is registered.
func (f *Factory) Has(typ string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, found := f.registry[typ]
	return found
}

// Types lists the registered vehicle types sorted by name.
func (f *Factory) Types() []VehicleInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]VehicleInfo, 0, len(f.registry))
	for _, vi := range f.registry {
		out = append(out, *vi)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Type) < strings.ToLower(out[j].Type) })
	return out
}

// SetVehicle replaces the active vehicle with a new one of type typ. The old
// vehicle is fully torn down before the new one is constructed. If typ is
// unknown, or construction fails, no vehicle is active afterwards.
func (f *Factory) SetVehicle(typ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.destroyLocked()

	info, found := f.registry[typ]
	if !found {
		log.Warn("unknown vehicle type", "type", typ)
		f.publishLocked("")
		return fmt.Errorf("%w: %q", ErrUnknownVehicleType, typ)
	}

	v := newVehicle(typ, f.fabric, f.ticker, f.recorder, f.trace)
	p, err := info.New(v)
	if err != nil {
		v.Close()
		f.publishLocked("")
		return fmt.Errorf("failed to create vehicle %s: %w", typ, err)
	}
	v.start(p)
	f.current = v
	f.publishLocked(typ)
	log.Info("vehicle set", "type", typ, "name", p.VehicleName())
	return nil
}

// ClearVehicle tears down the active vehicle, if any.
func (f *Factory) ClearVehicle() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return
	}
	f.destroyLocked()
	f.publishLocked("")
	log.Info("vehicle cleared")
}

// Current returns the active vehicle, nil if there is none.
func (f *Factory) Current() *Vehicle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// CurrentType returns the published type of the active vehicle, empty if none.
func (f *Factory) CurrentType() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.currentType
}

// Close tears down the active vehicle.
func (f *Factory) Close() error {
	f.ClearVehicle()
	return nil
}

func (f *Factory) destroyLocked() {
	if f.current == nil {
		return
	}
	if err := f.current.Close(); err != nil {
		log.Error(err, "failed to close vehicle", "type", f.current.Type())
	}
	f.current = nil
}

func (f *Factory) publishLocked(typ string) {
	f.currentType = typ
	f.recorder.VehicleType(typ)
}
