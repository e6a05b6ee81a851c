package options

import "github.com/spf13/pflag"

var _ IOptions = (*MetricsOptions)(nil)

// MetricsOptions controls the prometheus and status HTTP endpoint.
type MetricsOptions struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
}

func NewMetricsOptions() *MetricsOptions {
	return &MetricsOptions{
		Enabled: true,
		Addr:    "127.0.0.1:9464",
	}
}

func (o *MetricsOptions) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}
	if err := ValidateAddress(o.Addr); err != nil {
		return []error{err}
	}
	return nil
}

func (o *MetricsOptions) AddFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.Enabled, "metrics.enabled", o.Enabled, "Serve /metrics and /status over HTTP.")
	fs.StringVar(&o.Addr, "metrics.addr", o.Addr, "The address the metrics server binds to.")
}
