package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/roffe/govehicle"
)

var _ govehicle.Recorder = (*Recorder)(nil)

// Recorder publishes engine events as prometheus metrics and keeps the
// latest vehicle type for the status endpoint.
type Recorder struct {
	registry *prometheus.Registry

	// VehicleInfo is 1 for the active vehicle type, 0 for types seen before.
	vehicleInfo  *prometheus.GaugeVec
	framesDrop   *prometheus.CounterVec
	pollRequests *prometheus.CounterVec
	pollReplies  *prometheus.CounterVec

	mu          sync.RWMutex
	vehicleType string
	changes     uint64
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		vehicleInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "govehicle_vehicle_info",
				Help: "The active vehicle type (1=active, 0=inactive).",
			},
			[]string{"type"},
		),
		framesDrop: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "govehicle_frames_dropped_total",
				Help: "Frames dropped because a listener channel was full.",
			},
			[]string{"listener"},
		),
		pollRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "govehicle_poll_requests_total",
				Help: "Poll requests sent.",
			},
			[]string{"bus", "type"},
		),
		pollReplies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "govehicle_poll_replies_total",
				Help: "Poll response chunks delivered to the vehicle profile.",
			},
			[]string{"bus", "type"},
		),
	}
	r.registry.MustRegister(
		r.vehicleInfo,
		r.framesDrop,
		r.pollRequests,
		r.pollReplies,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) VehicleType(name string) {
	r.mu.Lock()
	prev := r.vehicleType
	r.vehicleType = name
	r.changes++
	r.mu.Unlock()

	if prev != "" {
		r.vehicleInfo.WithLabelValues(prev).Set(0)
	}
	if name != "" {
		r.vehicleInfo.WithLabelValues(name).Set(1)
	}
}

func (r *Recorder) FrameDropped(listener string) {
	r.framesDrop.WithLabelValues(listener).Inc()
}

func (r *Recorder) PollSent(bus string, typ govehicle.PollType) {
	r.pollRequests.WithLabelValues(bus, typ.String()).Inc()
}

func (r *Recorder) PollReply(bus string, typ govehicle.PollType) {
	r.pollReplies.WithLabelValues(bus, typ.String()).Inc()
}

// CurrentType returns the last published vehicle type, empty if none.
func (r *Recorder) CurrentType() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.vehicleType
}

// Changes counts VehicleType publications.
func (r *Recorder) Changes() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.changes
}
