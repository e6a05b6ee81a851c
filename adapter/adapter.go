package adapter

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/roffe/govehicle"
)

// Driver is a bus implementation that holds resources, the unit closes every
// driver it created on shutdown.
type Driver interface {
	govehicle.Bus
	Close() error
}

type Config struct {
	// Name is the fabric name of the bus, e.g. "can1".
	Name     string
	Port     string
	Baudrate int
	Trace    bool
}

type Info struct {
	Name               string
	Description        string
	RequiresSerialPort bool
	New                func(*Config) (Driver, error)
}

func (i *Info) String() string {
	return fmt.Sprintf("%s | %s, requires serial port: %v", i.Name, i.Description, i.RequiresSerialPort)
}

var (
	mu      sync.RWMutex
	drivers = make(map[string]*Info)
)

// Register makes a driver available by name. Names are case insensitive and
// the first registration wins.
func Register(info *Info) error {
	if info == nil || info.Name == "" || info.New == nil {
		return fmt.Errorf("invalid driver info")
	}
	mu.Lock()
	defer mu.Unlock()
	key := strings.ToLower(info.Name)
	if _, found := drivers[key]; found {
		return fmt.Errorf("driver %s already registered", info.Name)
	}
	drivers[key] = info
	return nil
}

// New creates a bus using the named driver.
func New(driver string, cfg *Config) (Driver, error) {
	mu.RLock()
	info, found := drivers[strings.ToLower(driver)]
	mu.RUnlock()
	if !found {
		return nil, fmt.Errorf("unknown driver %q", driver)
	}
	if cfg == nil || cfg.Name == "" {
		return nil, fmt.Errorf("driver %s: bus name missing", info.Name)
	}
	if info.RequiresSerialPort && cfg.Port == "" {
		return nil, fmt.Errorf("driver %s: serial port required for %s", info.Name, cfg.Name)
	}
	return info.New(cfg)
}

func ListNames() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(drivers))
	for _, info := range drivers {
		out = append(out, info.Name)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i]) < strings.ToLower(out[j]) })
	return out
}

func List() []Info {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Info, 0, len(drivers))
	for _, info := range drivers {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out
}
