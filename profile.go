package govehicle

// Profile is implemented by each concrete vehicle type. The engine calls the
// hooks from the vehicle's consumer goroutine, one at a time.
type Profile interface {
	VehicleName() string

	// IncomingFrameCan1-3 get every frame received on the bus registered in
	// that slot, polled responses included.
	IncomingFrameCan1(*Frame)
	IncomingFrameCan2(*Frame)
	IncomingFrameCan3(*Frame)

	// IncomingPollReply is called once for a single frame response and once
	// per frame for a segmented one. remain is 0 on the last call.
	IncomingPollReply(bus Bus, typ PollType, pid uint16, data []byte, remain uint16)

	Ticker1(ticker uint32)
	Ticker10(ticker uint32)
	Ticker60(ticker uint32)
	Ticker300(ticker uint32)
	Ticker600(ticker uint32)
	Ticker3600(ticker uint32)
}

// ProfileCloser is implemented by profiles holding resources of their own.
// Close is called after the vehicle has stopped delivering frames and ticks.
type ProfileCloser interface {
	Close() error
}

// BaseProfile implements every hook as a no-op, embed it and override what you need.
type BaseProfile struct{}

func (BaseProfile) VehicleName() string { return "unknown" }

func (BaseProfile) IncomingFrameCan1(*Frame) {}
func (BaseProfile) IncomingFrameCan2(*Frame) {}
func (BaseProfile) IncomingFrameCan3(*Frame) {}

func (BaseProfile) IncomingPollReply(Bus, PollType, uint16, []byte, uint16) {}

func (BaseProfile) Ticker1(uint32) {}
func (BaseProfile) Ticker10(uint32) {}
func (BaseProfile) Ticker60(uint32) {}
func (BaseProfile) Ticker300(uint32) {}
func (BaseProfile) Ticker600(uint32) {}
func (BaseProfile) Ticker3600(uint32) {}
