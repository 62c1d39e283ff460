package peer

import (
	"net/netip"
	"testing"
	"time"

	"github.com/lightningnetwork/btcpeer/btcwire"
	"github.com/stretchr/testify/require"
)

const testLocalNonce = 0x1122334455667788

// testVersion returns a version message from a remote peer with the given
// nonce.
func testVersion(t *testing.T, nonce uint64) *btcwire.MsgVersion {
	t.Helper()

	v, err := btcwire.NewMsgVersion(
		time.Unix(1700000000, 0), netip.AddrPort{}, netip.AddrPort{},
		nonce, "/remote:1.0/", 100,
	)
	require.NoError(t, err)

	return v
}

// TestHandshakeMachineHappyPath asserts the version/verack exchange reaches
// Established and acknowledges the remote version.
func TestHandshakeMachineHappyPath(t *testing.T) {
	t.Parallel()

	m := newHandshakeMachine(testLocalNonce, MinProtocolVersion)
	require.Equal(t, StateConnected, m.state)

	require.NoError(t, m.versionSent())
	require.Equal(t, StateVersionSent, m.state)

	remote := testVersion(t, 1)
	reply, err := m.receive(remote)
	require.NoError(t, err)
	require.Equal(t, StateVersionReceived, m.state)
	require.True(t, reply.IsSome())
	reply.WhenSome(func(p btcwire.Payload) {
		require.Equal(t, btcwire.CmdVerack, p.Command())
	})

	reply, err = m.receive(&btcwire.MsgVerack{})
	require.NoError(t, err)
	require.True(t, reply.IsNone())
	require.True(t, m.established())
	require.Equal(t, remote, m.remoteVersion.UnsafeFromSome())
}

// TestHandshakeMachineRejects asserts every out of order or invalid message
// fails the handshake with the expected error.
func TestHandshakeMachineRejects(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string

		// setup drives the machine into the state under test.
		setup func(t *testing.T, m *handshakeMachine)

		msg    btcwire.Payload
		expErr error
	}{
		{
			name:   "version before ours is sent",
			setup:  func(*testing.T, *handshakeMachine) {},
			msg:    testVersion(t, 1),
			expErr: ErrUnexpectedMessage,
		},
		{
			name: "verack before version",
			setup: func(t *testing.T, m *handshakeMachine) {
				require.NoError(t, m.versionSent())
			},
			msg:    &btcwire.MsgVerack{},
			expErr: ErrUnexpectedMessage,
		},
		{
			name: "duplicate version",
			setup: func(t *testing.T, m *handshakeMachine) {
				require.NoError(t, m.versionSent())
				_, err := m.receive(testVersion(t, 1))
				require.NoError(t, err)
			},
			msg:    testVersion(t, 2),
			expErr: ErrUnexpectedMessage,
		},
		{
			name: "ping before established",
			setup: func(t *testing.T, m *handshakeMachine) {
				require.NoError(t, m.versionSent())
			},
			msg:    &btcwire.MsgPing{Nonce: 9},
			expErr: ErrUnexpectedMessage,
		},
		{
			name: "pong after remote version",
			setup: func(t *testing.T, m *handshakeMachine) {
				require.NoError(t, m.versionSent())
				_, err := m.receive(testVersion(t, 1))
				require.NoError(t, err)
			},
			msg:    &btcwire.MsgPong{Nonce: 9},
			expErr: ErrUnexpectedMessage,
		},
		{
			name: "own nonce",
			setup: func(t *testing.T, m *handshakeMachine) {
				require.NoError(t, m.versionSent())
			},
			msg:    testVersion(t, testLocalNonce),
			expErr: ErrSelfConnection,
		},
		{
			name: "obsolete protocol version",
			setup: func(t *testing.T, m *handshakeMachine) {
				require.NoError(t, m.versionSent())
			},
			msg: func() btcwire.Payload {
				v := testVersion(t, 1)
				v.ProtocolVersion = MinProtocolVersion - 1

				return v
			}(),
			expErr: ErrObsoletePeer,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			m := newHandshakeMachine(
				testLocalNonce, MinProtocolVersion,
			)
			tc.setup(t, m)

			before := m.state
			reply, err := m.receive(tc.msg)
			require.ErrorIs(t, err, tc.expErr)
			require.True(t, reply.IsNone())
			require.Equal(t, before, m.state)
			require.False(t, m.established())
		})
	}
}

// TestHandshakeMachineVersionSentTwice asserts our version can only be
// recorded once.
func TestHandshakeMachineVersionSentTwice(t *testing.T) {
	t.Parallel()

	m := newHandshakeMachine(testLocalNonce, MinProtocolVersion)
	require.NoError(t, m.versionSent())
	require.Error(t, m.versionSent())
}

// TestHandshakeStateString asserts the state names used in logs.
func TestHandshakeStateString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Connected", StateConnected.String())
	require.Equal(t, "VersionSent", StateVersionSent.String())
	require.Equal(t, "VersionReceived", StateVersionReceived.String())
	require.Equal(t, "Established", StateEstablished.String())
	require.Equal(t, "HandshakeState(9)", HandshakeState(9).String())
}
