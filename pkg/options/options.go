package options

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/pflag"
)

// IOptions is implemented by every option group of the daemon.
type IOptions interface {
	// Validate returns every problem found, nil if the options are usable.
	Validate() []error
	AddFlags(fs *pflag.FlagSet)
}

// ValidateAddress checks a host:port listen address, the host may be empty.
func ValidateAddress(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	p, err := strconv.Atoi(port)
	if err != nil || p < 0 || p > 65535 {
		return fmt.Errorf("invalid port in address %q", addr)
	}
	return nil
}
