package lncfg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const defaultTestPort = "8333"

// TestNormalizePeerAddress checks the accepted peer address forms.
func TestNormalizePeerAddress(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		address  string
		expected string
		wantErr  bool
	}{
		{"tcp://127.0.0.1:18444", "127.0.0.1:18444", false},
		{"tcp:127.0.0.1:18444", "127.0.0.1:18444", false},
		{"tcp4://10.0.0.1", "10.0.0.1:8333", false},
		{"127.0.0.1:18444", "127.0.0.1:18444", false},
		{"52.57.53.177", "52.57.53.177:8333", false},
		{"seed.bitcoin.sipa.be", "seed.bitcoin.sipa.be:8333", false},
		{"[::1]", "[::1]:8333", false},
		{"::1", "[::1]:8333", false},
		{"tcp6://[::1]:8334", "[::1]:8334", false},
		{"9000", "localhost:9000", false},
		{"", "", true},
		{":", "", true},
		{"udp://127.0.0.1:8333", "", true},
		{"unix:///tmp/peer.sock", "", true},
		{"127.0.0.1:99999", "", true},
		{"127.0.0.1:port", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.address, func(t *testing.T) {
			t.Parallel()

			addr, err := NormalizePeerAddress(
				tc.address, defaultTestPort,
			)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expected, addr)
		})
	}
}

// TestIsLoopback checks loopback detection with and without ports.
func TestIsLoopback(t *testing.T) {
	t.Parallel()

	require.True(t, IsLoopback("127.0.0.1:8989"))
	require.True(t, IsLoopback("[::1]:8989"))
	require.True(t, IsLoopback("localhost:8989"))
	require.True(t, IsLoopback("127.0.0.1"))
	require.False(t, IsLoopback("0.0.0.0:8989"))
	require.False(t, IsLoopback("52.57.53.177:8333"))
}

// TestPeerBackoff checks the exponential reconnect backoff.
func TestPeerBackoff(t *testing.T) {
	t.Parallel()

	cfg := DefaultPeer()
	cfg.MinBackoff = time.Second
	cfg.MaxBackoff = 10 * time.Second
	require.NoError(t, cfg.Validate())

	require.Equal(t, time.Second, cfg.Backoff(0))
	require.Equal(t, time.Second, cfg.Backoff(1))
	require.Equal(t, 2*time.Second, cfg.Backoff(2))
	require.Equal(t, 8*time.Second, cfg.Backoff(4))
	require.Equal(t, 10*time.Second, cfg.Backoff(5))
	require.Equal(t, 10*time.Second, cfg.Backoff(1000))

	cfg.MaxBackoff = time.Millisecond
	require.Error(t, cfg.Validate())

	cfg = DefaultPeer()
	cfg.ReadTimeout = 0
	require.Error(t, cfg.Validate())
}
