// Command btcpeer dials a single bitcoin peer, completes the version
// handshake and logs every message the peer sends until interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/lightningnetwork/btcpeer/btcwire"
	"github.com/lightningnetwork/btcpeer/build"
	"github.com/lightningnetwork/btcpeer/monitoring"
	"github.com/lightningnetwork/btcpeer/peer"
	"github.com/lightningnetwork/btcpeer/signal"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"
)

// exporterStopTimeout bounds the metrics server shutdown.
const exporterStopTimeout = 5 * time.Second

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		var flagErr *flags.Error
		if errors.As(err, &flagErr) && flagErr.Type == flags.ErrHelp {
			os.Exit(0)
		}

		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Hook interceptor for os signals.
	interceptor, err := signal.Intercept()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Call the "real" main in a nested manner so the defers will properly
	// be executed.
	if err := btcpeerMain(cfg, interceptor); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// btcpeerMain connects to the configured peer and logs what it receives until
// the peer goes away or the process is interrupted.
func btcpeerMain(cfg *config, interceptor signal.Interceptor) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-interceptor.ShutdownChannel():
			cancel()
		case <-ctx.Done():
		}
	}()

	logRotator, _, err := initLogging(cfg, interceptor.RequestShutdown)
	if err != nil {
		return err
	}
	defer logRotator.Close()

	log.Infof("btcpeer starting, build=%v, network=%v, peer=%v",
		build.Deployment, cfg.net, cfg.Connect)

	peerCfg := cfg.peerConfig()

	if cfg.Prometheus.Enable {
		exporter, err := startMetrics(cfg.Prometheus, peerCfg)
		if err != nil {
			return err
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(
				context.Background(), exporterStopTimeout,
			)
			defer stopCancel()

			if err := exporter.Stop(stopCtx); err != nil {
				log.Errorf("Unable to stop exporter: %v", err)
			}
		}()
	}

	n, err := dialPeer(ctx, cfg, peerCfg)
	if err != nil {
		return err
	}
	defer n.Disconnect()

	remote := n.RemoteVersion()
	log.Infof("Connected to %v: user_agent=%q, version=%d, "+
		"services=%v, start_height=%d", n, remote.UserAgent,
		remote.ProtocolVersion, remote.Services, remote.StartHeight)

	err = pollMessages(ctx, n, cfg.PollInterval)
	if err != nil {
		log.Criticalf("Connection to %v lost: %v", n, err)
		return err
	}

	log.Info("Shutdown complete")

	return nil
}

// startMetrics registers the connection metrics alongside the Go runtime
// collectors and starts the exporter.
func startMetrics(promCfg *monitoring.Prometheus,
	peerCfg *peer.Config) (*monitoring.Exporter, error) {

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(
			collectors.ProcessCollectorOpts{},
		),
	)

	metrics, err := monitoring.NewPeerMetrics(reg)
	if err != nil {
		return nil, err
	}
	peerCfg.Metrics = metrics

	return monitoring.ExportPrometheusMetrics(*promCfg, reg)
}

// dialPeer connects to the configured peer. Failed attempts are retried up
// to cfg.MaxRetries times, no faster than one per cfg.RetryInterval. A peer
// that is rejected during the handshake is not retried.
func dialPeer(ctx context.Context, cfg *config,
	peerCfg *peer.Config) (*peer.Network, error) {

	limiter := rate.NewLimiter(rate.Every(cfg.RetryInterval), 1)

	for attempt := 1; ; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}

		n, err := peer.Connect(ctx, cfg.Connect, peerCfg)
		switch {
		case err == nil:
			return n, nil

		case errors.Is(err, peer.ErrSelfConnection),
			errors.Is(err, peer.ErrObsoletePeer),
			ctx.Err() != nil:

			return nil, err
		}

		if cfg.MaxRetries >= 0 && attempt > cfg.MaxRetries {
			return nil, fmt.Errorf("giving up on %v after %d "+
				"attempts: %w", cfg.Connect, attempt, err)
		}

		log.Warnf("Attempt %d to connect to %v failed: %v", attempt,
			cfg.Connect, err)
	}
}

// pollMessages logs received messages every interval until ctx is done or
// the connection ends. It returns the cause of a connection that ended on
// its own.
func pollMessages(ctx context.Context, n *peer.Network,
	interval time.Duration) error {

	pollTicker := ticker.New(interval)
	pollTicker.Resume()
	defer pollTicker.Stop()

	for {
		select {
		case <-pollTicker.Ticks():
			drainMessages(n)

		case <-n.Done():
			// Anything delivered before the connection ended is
			// still queued.
			drainMessages(n)

			if err := n.Err(); err != nil {
				return err
			}

			return errors.New("connection closed")

		case <-ctx.Done():
			log.Info("Received shutdown request")
			return nil
		}
	}
}

// drainMessages logs every message currently queued on n.
func drainMessages(n *peer.Network) {
	for {
		msg := n.Recv()
		if msg.IsNone() {
			return
		}

		msg.WhenSome(func(m *btcwire.Message) {
			log.Infof("Received %v from %v", m, n)

			if pong, ok := m.Payload().(*btcwire.MsgPong); ok {
				log.Debugf("Pong nonce=%d, rtt=%v", pong.Nonce,
					n.PingTime().UnwrapOr(0))
			}
		})
	}
}
