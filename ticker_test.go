package govehicle

import (
	"context"
	"testing"
	"time"
)

func TestTickerPulse(t *testing.T) {
	tk := NewTicker(time.Hour)
	a := tk.Subscribe()
	b := tk.Subscribe()

	tk.Pulse()
	tk.Pulse() // a and b are busy, this one is missed
	for name, sub := range map[string]*TickSubscription{"a": a, "b": b} {
		select {
		case <-sub.C():
		default:
			t.Fatalf("%s: no pulse", name)
		}
		select {
		case <-sub.C():
			t.Fatalf("%s: missed pulse was queued", name)
		default:
		}
	}

	a.Close()
	a.Close()
	tk.Pulse()
	select {
	case <-a.C():
		t.Fatal("closed subscription got a pulse")
	default:
	}
	select {
	case <-b.C():
	default:
		t.Fatal("b: no pulse after a closed")
	}
}

func TestTickerRun(t *testing.T) {
	tk := NewTicker(5 * time.Millisecond)
	sub := tk.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- tk.Run(ctx) }()

	for i := 0; i < 3; i++ {
		select {
		case <-sub.C():
		case <-time.After(time.Second):
			t.Fatalf("pulse %d not received", i)
		}
	}
	cancel()
	if err := <-errc; err != nil {
		t.Fatalf("Run() = %v", err)
	}
}
