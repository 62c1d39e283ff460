package signal

import (
	"errors"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
)

// started is set once an Interceptor exists. Only one may run per process.
var started atomic.Bool

// Interceptor turns interrupt signals and internal shutdown requests into a
// single shutdown channel.
type Interceptor struct {
	// interruptChannel is used to receive SIGINT (Ctrl+C) signals.
	interruptChannel chan os.Signal

	// shutdownRequestChannel is used to request the binary to shut down
	// gracefully, similar to when receiving SIGINT.
	shutdownRequestChannel chan struct{}

	// quit is closed when instructing the main interrupt handler to exit.
	quit chan struct{}

	// shutdownChannel is closed once the main interrupt handler exits.
	shutdownChannel chan struct{}
}

// Intercept starts the interrupt handler. It returns an error if an
// Interceptor is already running in this process.
func Intercept() (Interceptor, error) {
	if !started.CompareAndSwap(false, true) {
		return Interceptor{}, errors.New("intercept already started")
	}

	return newInterceptor(
		os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT,
	), nil
}

// newInterceptor starts an interrupt handler catching the given signals.
func newInterceptor(signals ...os.Signal) Interceptor {
	c := Interceptor{
		interruptChannel:       make(chan os.Signal, 1),
		shutdownRequestChannel: make(chan struct{}),
		quit:                   make(chan struct{}),
		shutdownChannel:        make(chan struct{}),
	}

	if len(signals) > 0 {
		signal.Notify(c.interruptChannel, signals...)
	}
	go c.mainInterruptHandler()

	return c
}

// mainInterruptHandler listens for signals on the interruptChannel and
// shutdown requests on the shutdownRequestChannel, and closes the
// shutdownChannel on the first of either. It must be run as a goroutine.
func (c *Interceptor) mainInterruptHandler() {
	defer signal.Stop(c.interruptChannel)

	// isShutdown is a flag which is used to indicate whether or not the
	// shutdown signal has already been received.
	var isShutdown bool

	shutdown := func() {
		// Ignore more than one shutdown signal.
		if isShutdown {
			log.Infof("Already shutting down...")
			return
		}
		isShutdown = true
		log.Infof("Shutting down...")

		// Signal the main interrupt handler to exit, and stop accepting
		// post-facto requests.
		close(c.quit)
	}

	for {
		select {
		case sig := <-c.interruptChannel:
			log.Infof("Received %v", sig)
			shutdown()

		case <-c.shutdownRequestChannel:
			log.Infof("Received shutdown request.")
			shutdown()

		case <-c.quit:
			log.Infof("Gracefully shutting down.")
			close(c.shutdownChannel)
			return
		}
	}
}

// Alive returns true if the main interrupt handler has not been killed.
func (c *Interceptor) Alive() bool {
	select {
	case <-c.quit:
		return false
	default:
		return true
	}
}

// RequestShutdown initiates a graceful shutdown from the application.
func (c *Interceptor) RequestShutdown() {
	select {
	case c.shutdownRequestChannel <- struct{}{}:
	case <-c.quit:
	}
}

// ShutdownChannel returns the channel that will be closed once the main
// interrupt handler has exited.
func (c *Interceptor) ShutdownChannel() <-chan struct{} {
	return c.shutdownChannel
}
