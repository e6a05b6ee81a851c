package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/roffe/govehicle/cmd/vehicled/cmd"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	quitChan := make(chan os.Signal, 1)
	signal.Notify(quitChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		s := <-quitChan
		fmt.Fprintf(os.Stderr, "got %v, exiting\n", s)
		cancel()
		// Failsafe if there is deadlocks
		<-time.After(45 * time.Second)
		fmt.Fprintln(os.Stderr, "took to long to shutdown, forcefully exiting")
		os.Exit(2)
	}()
	if err := cmd.Execute(ctx); err != nil {
		os.Exit(1)
	}
}
