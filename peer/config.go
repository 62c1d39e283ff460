package peer

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/btcpeer/btcwire"
	"github.com/lightningnetwork/btcpeer/monitoring"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
)

const (
	// DefaultUserAgent is the user agent advertised in outgoing version
	// messages.
	DefaultUserAgent = "/btcpeer:0.1.0/"

	// MinProtocolVersion is the lowest protocol version accepted from a
	// remote peer. Older peers don't send verack.
	MinProtocolVersion uint32 = 209

	// DefaultHandshakeTimeout bounds the version/verack exchange.
	DefaultHandshakeTimeout = 30 * time.Second

	// DefaultReadTimeout is how long the read worker waits for the next
	// message before declaring the peer dead.
	DefaultReadTimeout = 5 * time.Minute

	// DefaultWriteTimeout bounds a single message write.
	DefaultWriteTimeout = 5 * time.Second

	// DefaultSendQueueSize is the number of outbound messages buffered
	// ahead of the write worker.
	DefaultSendQueueSize = 50

	// DefaultPingInterval is the time between keepalive pings. It stays
	// well below DefaultReadTimeout so an idle but healthy peer is never
	// timed out.
	DefaultPingInterval = 2 * time.Minute

	// DefaultPingTimeout is how long a ping may remain unanswered.
	DefaultPingTimeout = 30 * time.Second

	// DefaultRecentHeaders is the number of inbound headers kept for the
	// disconnect log.
	DefaultRecentHeaders = 8
)

// Config holds the parameters of a single peer connection.
type Config struct {
	// Net is the network the connection speaks. Messages framed for any
	// other network are fatal.
	Net btcwire.Network

	// HandshakeTimeout bounds the version/verack exchange.
	HandshakeTimeout time.Duration

	// ReadTimeout is the longest the read worker waits for a message. Zero
	// disables the deadline.
	ReadTimeout time.Duration

	// WriteTimeout bounds each message write. Zero disables the deadline.
	WriteTimeout time.Duration

	// SendQueueSize is the capacity of the outbound queue.
	SendQueueSize int

	// PingInterval is the time between keepalive pings. Zero disables
	// pings.
	PingInterval time.Duration

	// PingTimeout is how long a ping may go unanswered before the
	// connection is torn down.
	PingTimeout time.Duration

	// RecentHeaders is the number of inbound headers retained for
	// diagnostics.
	RecentHeaders int

	// ProtocolVersion is advertised in our version message.
	ProtocolVersion uint32

	// MinProtocolVersion is the lowest remote protocol version accepted.
	MinProtocolVersion uint32

	// Services is advertised in our version message.
	Services wire.ServiceFlag

	// UserAgent is advertised in our version message. It must be ASCII.
	UserAgent string

	// StartHeight is the best block height advertised in our version
	// message.
	StartHeight uint32

	// Clock provides the version message timestamp.
	Clock clock.Clock

	// Metrics is optional. A nil value disables metrics.
	Metrics *monitoring.PeerMetrics

	// Dial opens outbound connections. It defaults to a net.Dialer.
	Dial func(ctx context.Context, network, addr string) (net.Conn, error)

	// NewNonce returns the nonce for our version message.
	NewNonce func() (uint64, error)

	// NewPingTicker returns the ticker that paces keepalive pings.
	NewPingTicker func(interval time.Duration) ticker.Ticker
}

// DefaultConfig returns a configuration for the given network with every
// field set to its default.
func DefaultConfig(network btcwire.Network) *Config {
	var dialer net.Dialer

	return &Config{
		Net:                network,
		HandshakeTimeout:   DefaultHandshakeTimeout,
		ReadTimeout:        DefaultReadTimeout,
		WriteTimeout:       DefaultWriteTimeout,
		SendQueueSize:      DefaultSendQueueSize,
		PingInterval:       DefaultPingInterval,
		PingTimeout:        DefaultPingTimeout,
		RecentHeaders:      DefaultRecentHeaders,
		ProtocolVersion:    btcwire.ProtocolVersion,
		MinProtocolVersion: MinProtocolVersion,
		UserAgent:          DefaultUserAgent,
		Clock:              clock.NewDefaultClock(),
		Dial:               dialer.DialContext,
		NewNonce:           randomNonce,
		NewPingTicker: func(interval time.Duration) ticker.Ticker {
			return ticker.New(interval)
		},
	}
}

// Validate checks that the configuration can drive a connection.
func (c *Config) Validate() error {
	switch {
	case !c.Net.IsValid():
		return fmt.Errorf("unknown network: %v", c.Net)

	case c.HandshakeTimeout <= 0:
		return errors.New("handshake timeout must be positive")

	case c.ReadTimeout < 0 || c.WriteTimeout < 0:
		return errors.New("read and write timeouts must not be " +
			"negative")

	case c.SendQueueSize <= 0:
		return errors.New("send queue size must be positive")

	case c.PingInterval < 0:
		return errors.New("ping interval must not be negative")

	case c.PingInterval > 0 && c.PingTimeout <= 0:
		return errors.New("ping timeout must be positive when pings " +
			"are enabled")

	case c.PingInterval > 0 && c.PingTimeout >= c.PingInterval:
		return fmt.Errorf("ping timeout %v must be below ping "+
			"interval %v", c.PingTimeout, c.PingInterval)

	case c.RecentHeaders <= 0:
		return errors.New("recent headers must be positive")

	case c.ProtocolVersion < c.MinProtocolVersion:
		return fmt.Errorf("protocol version %d below minimum %d",
			c.ProtocolVersion, c.MinProtocolVersion)

	case c.Clock == nil || c.Dial == nil || c.NewNonce == nil ||
		c.NewPingTicker == nil:

		return errors.New("config is missing a clock or constructor")
	}

	if err := btcwire.ValidateUserAgent(c.UserAgent); err != nil {
		return fmt.Errorf("invalid user agent: %w", err)
	}

	return nil
}

// randomNonce draws a version nonce from the system's secure random source.
func randomNonce() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint64(b[:]), nil
}
