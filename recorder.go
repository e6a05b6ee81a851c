package govehicle

// Recorder is the status surface the engine publishes to. pkg/metrics has a
// prometheus backed implementation.
type Recorder interface {
	// VehicleType publishes the active vehicle type, empty when none.
	VehicleType(name string)
	FrameDropped(listener string)
	PollSent(bus string, typ PollType)
	PollReply(bus string, typ PollType)
}

type nopRecorder struct{}

func (nopRecorder) VehicleType(string) {}
func (nopRecorder) FrameDropped(string) {}
func (nopRecorder) PollSent(string, PollType) {}
func (nopRecorder) PollReply(string, PollType) {}
