package govehicle

import (
	"errors"
	"testing"
	"time"
)

func TestFabricFindBus(t *testing.T) {
	f := NewFabric()
	defer f.Close()
	can1 := newFakeBus("can1")
	if err := f.AddBus(can1); err != nil {
		t.Fatal(err)
	}
	if err := f.AddBus(newFakeBus("can1")); !errors.Is(err, ErrDuplicateBus) {
		t.Fatalf("AddBus() duplicate = %v, want ErrDuplicateBus", err)
	}
	if err := f.AddBus(nil); !errors.Is(err, ErrNilBus) {
		t.Fatalf("AddBus(nil) = %v, want ErrNilBus", err)
	}

	tests := []struct {
		name    string
		bus     string
		wantErr error
	}{
		{"found", "can1", nil},
		{"missing", "can2", ErrBusNotFound},
		{"empty", "", ErrBusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := f.FindBus(tt.bus)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("FindBus(%q) err = %v, want %v", tt.bus, err, tt.wantErr)
			}
			if tt.wantErr == nil && b != Bus(can1) {
				t.Errorf("FindBus(%q) returned wrong bus", tt.bus)
			}
		})
	}

	f.AddBus(newFakeBus("can3"))
	names := f.BusNames()
	if len(names) != 2 || names[0] != "can1" || names[1] != "can3" {
		t.Errorf("BusNames() = %v", names)
	}
}

func TestFabricDeliver(t *testing.T) {
	f := NewFabric()
	defer f.Close()
	can1 := newFakeBus("can1")
	f.AddBus(can1)

	a := make(chan *Frame, 4)
	b := make(chan *Frame, 4)
	f.RegisterListener("a", a)
	f.RegisterListener("b", b)

	can1.inject(0x123, 1)
	for _, ch := range []chan *Frame{a, b} {
		select {
		case got := <-ch:
			if got.Identifier() != 0x123 || got.Origin() != Bus(can1) {
				t.Errorf("got %s", got)
			}
		case <-time.After(time.Second):
			t.Fatal("frame not delivered")
		}
	}

	f.DeregisterListener(a)
	f.DeregisterListener(a)
	can1.inject(0x124, 2)
	select {
	case got := <-b:
		if got.Identifier() != 0x124 {
			t.Errorf("got %s", got)
		}
	case <-time.After(time.Second):
		t.Fatal("frame not delivered to b")
	}
	select {
	case got := <-a:
		t.Fatalf("deregistered listener got %s", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFabricDropWhenFull(t *testing.T) {
	rec := &recordingRecorder{}
	f := NewFabric(WithFabricRecorder(rec))
	defer f.Close()

	ch := make(chan *Frame, 1)
	f.RegisterListener("slow", ch)
	for i := 0; i < 5; i++ {
		f.Deliver(NewFrame(nil, uint32(i), nil))
	}
	if got := f.Dropped(); got != 4 {
		t.Errorf("Dropped() = %d, want 4", got)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.dropped != 4 {
		t.Errorf("recorder dropped = %d, want 4", rec.dropped)
	}
	if first := <-ch; first.Identifier() != 0 {
		t.Errorf("kept frame %03X, want the first one", first.Identifier())
	}
}

func TestFabricBlockWhenFull(t *testing.T) {
	f := NewFabric(WithDeliveryPolicy(BlockWhenFull))
	ch := make(chan *Frame)
	f.RegisterListener("blocking", ch)

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.Deliver(NewFrame(nil, 0x100, nil))
	}()
	select {
	case got := <-ch:
		if got.Identifier() != 0x100 {
			t.Errorf("got %s", got)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked frame never delivered")
	}
	<-done
	if f.Dropped() != 0 {
		t.Errorf("Dropped() = %d, want 0", f.Dropped())
	}

	// Close releases a sender stuck on a listener nobody reads
	stuck := make(chan struct{})
	go func() {
		defer close(stuck)
		f.Deliver(NewFrame(nil, 0x101, nil))
	}()
	time.Sleep(20 * time.Millisecond)
	f.Close()
	select {
	case <-stuck:
	case <-time.After(time.Second):
		t.Fatal("Deliver still blocked after Close")
	}
}

func TestFabricDeregisterReleasesBlockedSend(t *testing.T) {
	f := NewFabric(WithDeliveryPolicy(BlockWhenFull))
	defer f.Close()
	ch := make(chan *Frame)
	f.RegisterListener("stalled", ch)

	stuck := make(chan struct{})
	go func() {
		defer close(stuck)
		f.Deliver(NewFrame(nil, 0x200, nil))
	}()
	time.Sleep(20 * time.Millisecond)

	deregistered := make(chan struct{})
	go func() {
		defer close(deregistered)
		f.DeregisterListener(ch)
	}()
	for _, c := range []chan struct{}{deregistered, stuck} {
		select {
		case <-c:
		case <-time.After(time.Second):
			t.Fatal("deregistering a stalled listener blocked")
		}
	}

	f.Deliver(NewFrame(nil, 0x201, nil))
	select {
	case got := <-ch:
		t.Fatalf("frame %s delivered after deregistration", got)
	default:
	}
}
