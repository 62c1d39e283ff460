package peer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/lightningnetwork/btcpeer/btcwire"
	"github.com/lightningnetwork/btcpeer/monitoring"
	"github.com/lightningnetwork/btcpeer/queue"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// Network is an established connection to a single remote peer. Two workers
// own the socket once the handshake completes: the read worker frames inbound
// messages into a FIFO drained by Recv, and the write worker drains the
// bounded outbound queue filled by Send. Neither Send nor Recv ever waits on
// the network.
type Network struct {
	cfg  *Config
	conn net.Conn

	localVersion  *btcwire.MsgVersion
	remoteVersion *btcwire.MsgVersion

	// outbound holds framed messages waiting for the write worker.
	outbound *queue.BackpressureQueue[*btcwire.Message]

	// inbound holds received messages waiting for Recv.
	inbound *queue.FIFO[*btcwire.Message]

	// recent keeps the last few inbound headers so a fatal frame error
	// can be logged with the traffic that led up to it.
	recent *queue.CircularBuffer[btcwire.Header]

	pingManager *PingManager
	workers     *fn.GoroutineManager

	stopOnce sync.Once
	quit     chan struct{}
	done     chan struct{}

	errMu sync.Mutex
	err   error
}

// Connect dials addr, performs the handshake and starts the connection's
// workers. The handshake runs before this returns; ctx bounds the dial and
// the handshake but not the lifetime of the connection.
func Connect(ctx context.Context, addr string, cfg *Config) (*Network,
	error) {

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Debugf("Dialing %v on %v", addr, cfg.Net)

	conn, err := cfg.Dial(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("unable to dial %v: %w", addr, err)
	}

	return newNetwork(ctx, conn, cfg)
}

// NewInbound performs the handshake over an accepted connection and starts
// its workers. The connection is closed if the handshake fails.
func NewInbound(ctx context.Context, conn net.Conn, cfg *Config) (*Network,
	error) {

	if err := cfg.Validate(); err != nil {
		conn.Close()
		return nil, err
	}

	return newNetwork(ctx, conn, cfg)
}

// newNetwork runs the handshake over conn and, once it succeeds, starts the
// read and write workers.
func newNetwork(ctx context.Context, conn net.Conn, cfg *Config) (*Network,
	error) {

	nonce, err := cfg.NewNonce()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("unable to generate nonce: %w", err)
	}

	localVersion, err := btcwire.NewMsgVersion(
		cfg.Clock.Now(), addrPort(conn.RemoteAddr()),
		addrPort(conn.LocalAddr()), nonce, cfg.UserAgent,
		cfg.StartHeight,
	)
	if err != nil {
		conn.Close()
		return nil, err
	}
	localVersion.ProtocolVersion = cfg.ProtocolVersion
	localVersion.Services = cfg.Services
	localVersion.LocalServices = cfg.Services

	result, err := runHandshake(ctx, conn, cfg, localVersion)
	if err != nil {
		conn.Close()
		cfg.Metrics.ObserveHandshake(handshakeOutcome(err))

		log.Debugf("Handshake with %v failed: %v", conn.RemoteAddr(),
			err)

		return nil, err
	}
	cfg.Metrics.ObserveHandshake("success")

	recent, err := queue.NewCircularBuffer[btcwire.Header](
		cfg.RecentHeaders,
	)
	if err != nil {
		conn.Close()
		return nil, err
	}

	n := &Network{
		cfg:           cfg,
		conn:          conn,
		localVersion:  localVersion,
		remoteVersion: result.remoteVersion,
		outbound: queue.NewBackpressureQueue[*btcwire.Message](
			cfg.SendQueueSize, nil,
		),
		inbound: queue.NewFIFO[*btcwire.Message](),
		recent:  recent,
		workers: fn.NewGoroutineManager(),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	log.Infof("Handshake with %v complete: version=%d, user_agent=%q, "+
		"start_height=%d", conn.RemoteAddr(),
		n.remoteVersion.ProtocolVersion, n.remoteVersion.UserAgent,
		n.remoteVersion.StartHeight)
	log.Tracef("Remote version from %v: %v", conn.RemoteAddr(),
		spewClosure(n.remoteVersion))

	cfg.Metrics.PeerConnected()

	if cfg.PingInterval > 0 {
		n.pingManager = NewPingManager(&PingManagerConfig{
			NewNonce: func() uint64 {
				nonce, err := cfg.NewNonce()
				if err != nil {
					log.Warnf("Unable to draw ping "+
						"nonce: %v", err)
				}

				return nonce
			},
			Ticker:          cfg.NewPingTicker(cfg.PingInterval),
			TimeoutDuration: cfg.PingTimeout,
			SendPing: func(ping *btcwire.MsgPing) {
				if err := n.SendPayload(ping); err != nil {
					log.Debugf("Unable to queue ping to "+
						"%v: %v", n, err)
				}
			},
			OnPongFailure: func(reason error, waited,
				lastRTT time.Duration) {

				log.Warnf("Ping failure with %v after %v "+
					"(last rtt %v): %v", n, waited,
					lastRTT, reason)

				n.shutdown(fmt.Errorf("%w: %w", ErrPingTimeout,
					reason))
			},
		})
	}

	// The workers outlive the handshake context. They stop when the
	// connection is torn down.
	workerCtx := context.WithoutCancel(ctx)
	if !n.workers.Go(workerCtx, n.readHandler) ||
		!n.workers.Go(workerCtx, n.writeHandler) {

		n.shutdown(errors.New("unable to start connection workers"))
		return nil, n.Err()
	}

	if n.pingManager != nil {
		if err := n.pingManager.Start(); err != nil {
			n.shutdown(err)
			return nil, err
		}
	}

	return n, nil
}

// Send queues a framed message for the write worker. It never blocks on the
// network: when the outbound queue is full the message is rejected with
// ErrSendQueueFull.
func (n *Network) Send(msg *btcwire.Message) error {
	if msg.Net() != n.cfg.Net {
		return fmt.Errorf("%w: %v on a %v connection",
			ErrWrongNetwork, msg.Net(), n.cfg.Net)
	}

	select {
	case <-n.quit:
		return ErrNetworkClosed
	default:
	}

	err := n.outbound.TryEnqueue(msg)
	if errors.Is(err, queue.ErrQueueFullAndDropped) {
		n.cfg.Metrics.ObserveSendDropped()

		return fmt.Errorf("%w: %d messages pending", ErrSendQueueFull,
			n.outbound.Len())
	}

	return err
}

// SendPayload frames p for the connection's network and queues it.
func (n *Network) SendPayload(p btcwire.Payload) error {
	msg, err := btcwire.NewMessage(n.cfg.Net, p)
	if err != nil {
		return err
	}

	return n.Send(msg)
}

// Recv pops the oldest message not yet delivered, or None if there is none.
// It never blocks.
func (n *Network) Recv() fn.Option[*btcwire.Message] {
	return n.inbound.Pop()
}

// InboundLen returns the number of messages waiting for Recv. The value is
// advisory and may be stale by the time the caller observes it.
func (n *Network) InboundLen() int {
	return n.inbound.Len()
}

// RemoteVersion returns the version message the remote peer sent during the
// handshake.
func (n *Network) RemoteVersion() *btcwire.MsgVersion {
	return n.remoteVersion
}

// LocalVersion returns the version message we sent during the handshake.
func (n *Network) LocalVersion() *btcwire.MsgVersion {
	return n.localVersion
}

// RemoteAddr returns the address of the remote peer.
func (n *Network) RemoteAddr() net.Addr {
	return n.conn.RemoteAddr()
}

// PingTime returns the last measured round trip time, if any.
func (n *Network) PingTime() fn.Option[time.Duration] {
	if n.pingManager == nil {
		return fn.None[time.Duration]()
	}

	return n.pingManager.PingTime()
}

// String returns the remote address for logging.
func (n *Network) String() string {
	return n.conn.RemoteAddr().String()
}

// Disconnect tears the connection down. It is safe to call more than once
// and from any goroutine. A local disconnect is not reported by Err.
func (n *Network) Disconnect() {
	n.shutdown(nil)
}

// Done returns a channel that is closed once both workers have exited.
func (n *Network) Done() <-chan struct{} {
	return n.done
}

// WaitForDisconnect blocks until both workers have exited and returns the
// cause of the disconnect.
func (n *Network) WaitForDisconnect() error {
	<-n.done
	return n.Err()
}

// Err returns the error that tore the connection down, or nil if it is still
// running or was closed with Disconnect.
func (n *Network) Err() error {
	n.errMu.Lock()
	defer n.errMu.Unlock()

	return n.err
}

// shutdown records the first cause, closes the socket to unblock both workers
// and waits for them in the background so that a worker may call it.
func (n *Network) shutdown(cause error) {
	n.stopOnce.Do(func() {
		n.errMu.Lock()
		n.err = cause
		n.errMu.Unlock()

		if cause != nil {
			log.Infof("Disconnecting %v: %v", n, cause)
		} else {
			log.Infof("Disconnecting %v", n)
		}

		close(n.quit)
		if err := n.conn.Close(); err != nil {
			log.Debugf("Error closing connection to %v: %v", n, err)
		}

		go func() {
			if n.pingManager != nil {
				n.pingManager.Stop()
			}
			n.workers.Stop()
			n.cfg.Metrics.PeerDisconnected()

			close(n.done)
		}()
	})
}

// readHandler is the read worker. It frames one message at a time and pushes
// it onto the inbound queue. Any framing, decoding or network failure leaves
// the stream in an unknown state, so it ends the connection.
func (n *Network) readHandler(ctx context.Context) {
	for {
		if n.cfg.ReadTimeout > 0 {
			deadline := time.Now().Add(n.cfg.ReadTimeout)
			if err := n.conn.SetReadDeadline(deadline); err != nil {
				n.shutdown(err)
				return
			}
		}

		msg, bytesRead, err := btcwire.ReadMessage(n.conn, n.cfg.Net)
		if err != nil {
			select {
			case <-n.quit:
				return
			case <-ctx.Done():
				return
			default:
			}

			n.readFailed(err)

			return
		}

		n.recent.Add(msg.Header())
		n.cfg.Metrics.ObserveMessage(
			monitoring.Inbound, msg.Command().String(), bytesRead,
		)

		log.Debugf("Received %v from %v", msg, n)
		log.Tracef("Payload of %v from %v: %v", msg.Command(), n,
			spewClosure(msg.Payload()))

		switch p := msg.Payload().(type) {
		// Pings are answered here and never delivered.
		case *btcwire.MsgPing:
			err := n.SendPayload(&btcwire.MsgPong{Nonce: p.Nonce})
			if err != nil {
				log.Warnf("Unable to answer ping from %v: %v",
					n, err)
			}

			continue

		case *btcwire.MsgPong:
			if n.pingManager != nil {
				n.pingManager.ReceivedPong(p)
			}
		}

		n.inbound.Push(msg)
	}
}

// readFailed classifies a read error, logs it with the recent traffic and
// tears the connection down.
func (n *Network) readFailed(err error) {
	switch {
	// Checked first since a message cut short by a close is truncated,
	// not a clean close.
	case btcwire.IsFrameError(err), btcwire.IsDecodeError(err):
		n.cfg.Metrics.ObserveFrameError(frameErrorKind(err))

		log.Errorf("Stream from %v desynchronized: %v", n, err)
		log.Debugf("Last headers from %v: %v", n,
			newLogClosure(func() string {
				return fmt.Sprint(n.recent.List())
			}))

	case errors.Is(err, io.EOF):
		err = fmt.Errorf("peer closed connection: %w", err)

	case errors.Is(err, os.ErrDeadlineExceeded):
		err = fmt.Errorf("no message for %v: %w", n.cfg.ReadTimeout,
			err)
	}

	n.shutdown(err)
}

// writeHandler is the write worker. It parks on the outbound queue and writes
// each message in full. A failed write is logged and the next message is
// attempted, unless the socket is gone or the failed write left a partial
// frame on the wire.
func (n *Network) writeHandler(ctx context.Context) {
	for {
		msg, err := n.outbound.Dequeue(ctx).Unpack()
		if err != nil {
			return
		}

		if n.cfg.WriteTimeout > 0 {
			deadline := time.Now().Add(n.cfg.WriteTimeout)
			if err := n.conn.SetWriteDeadline(deadline); err != nil {
				n.shutdown(err)
				return
			}
		}

		raw := msg.Encode()
		written, err := n.conn.Write(raw)
		if err != nil {
			select {
			case <-n.quit:
				return
			default:
			}

			if isConnClosed(err) {
				n.shutdown(fmt.Errorf("unable to write %v: %w",
					msg.Command(), err))
				return
			}

			// The remote peer would misframe everything after a
			// partial message.
			if written > 0 {
				n.shutdown(fmt.Errorf("partial write of %v "+
					"(%d of %d bytes): %w", msg.Command(),
					written, len(raw), err))
				return
			}

			log.Errorf("Unable to write %v to %v: %v",
				msg.Command(), n, err)

			continue
		}

		n.cfg.Metrics.ObserveMessage(
			monitoring.Outbound, msg.Command().String(), written,
		)
		log.Debugf("Sent %v to %v", msg, n)
	}
}

// isConnClosed reports whether err means the socket can't carry any more
// data.
func isConnClosed(err error) bool {
	return errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}

// frameErrorKind returns the metrics label of a frame or decode error.
func frameErrorKind(err error) string {
	switch {
	case errors.Is(err, btcwire.ErrUnknownNetwork):
		return "unknown_network"
	case errors.Is(err, btcwire.ErrNetworkMismatch):
		return "network_mismatch"
	case errors.Is(err, btcwire.ErrUnknownCommand):
		return "unknown_command"
	case errors.Is(err, btcwire.ErrPayloadTooLarge):
		return "payload_too_large"
	case errors.Is(err, btcwire.ErrTruncated):
		return "truncated"
	case errors.Is(err, btcwire.ErrChecksumMismatch):
		return "checksum"
	default:
		return "malformed"
	}
}

// handshakeOutcome returns the metrics label of a failed handshake.
func handshakeOutcome(err error) string {
	switch {
	case errors.Is(err, ErrHandshakeTimeout):
		return "timeout"
	case errors.Is(err, ErrSelfConnection):
		return "self"
	case errors.Is(err, ErrObsoletePeer):
		return "obsolete"
	case errors.Is(err, ErrUnexpectedMessage):
		return "unexpected_message"
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):

		return "aborted"
	default:
		return "error"
	}
}

// addrPort converts a socket address into the form carried by version
// messages. Addresses that aren't TCP are reported as unspecified.
func addrPort(addr net.Addr) netip.AddrPort {
	var addrPort netip.AddrPort
	if tcpAddr, ok := addr.(*net.TCPAddr); ok {
		addrPort = tcpAddr.AddrPort()
	} else {
		var err error
		addrPort, err = netip.ParseAddrPort(addr.String())
		if err != nil {
			return netip.AddrPort{}
		}
	}

	// IPv4 sockets report 16 byte mapped addresses.
	return netip.AddrPortFrom(addrPort.Addr().Unmap(), addrPort.Port())
}
