package build

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	btclogv1 "github.com/btcsuite/btclog"
	"github.com/btcsuite/btclog/v2"
	"github.com/stretchr/testify/require"
)

const (
	testTimeout = 5 * time.Second
	testPoll    = 10 * time.Millisecond
)

func newTestManager(t *testing.T, buf *bytes.Buffer) *SubLoggerManager {
	t.Helper()

	handler := btclog.NewDefaultHandler(buf, btclog.WithNoTimestamp())
	mgr := NewSubLoggerManager(handler)
	mgr.GenSubLogger("PEER", nil)
	mgr.GenSubLogger("BTCP", nil)

	return mgr
}

// TestParseAndSetDebugLevels checks global and per subsystem levels, and
// that a rejected spec applies nothing.
func TestParseAndSetDebugLevels(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		level   string
		wantErr bool
		peer    btclogv1.Level
		daemon  btclogv1.Level
	}{
		{
			name:   "global",
			level:  "debug",
			peer:   btclog.LevelDebug,
			daemon: btclog.LevelDebug,
		},
		{
			name:   "global and subsystem",
			level:  "warn,PEER=trace",
			peer:   btclog.LevelTrace,
			daemon: btclog.LevelWarn,
		},
		{
			name:   "subsystem only",
			level:  "BTCP=error",
			peer:   btclog.LevelInfo,
			daemon: btclog.LevelError,
		},
		{
			name:    "invalid global",
			level:   "loud",
			wantErr: true,
		},
		{
			name:    "unknown subsystem",
			level:   "info,NOPE=debug",
			wantErr: true,
		},
		{
			name:    "invalid subsystem level",
			level:   "debug,PEER=loud",
			wantErr: true,
		},
		{
			name:    "missing pair",
			level:   "info,PEER",
			wantErr: true,
		},
		{
			name:    "bad pair",
			level:   "info,PEER=debug=trace",
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			mgr := newTestManager(t, &buf)

			err := ParseAndSetDebugLevels(tc.level, mgr)
			loggers := mgr.SubLoggers()
			if tc.wantErr {
				require.Error(t, err)

				// A rejected spec leaves every level untouched.
				for _, logger := range loggers {
					require.Equal(
						t, btclog.LevelInfo, logger.Level(),
					)
				}
				return
			}
			require.NoError(t, err)

			require.Equal(t, tc.peer, loggers["PEER"].Level())
			require.Equal(t, tc.daemon, loggers["BTCP"].Level())
		})
	}
}

// TestSubLoggerOutput checks that sub-loggers write tagged lines and honor
// their level.
func TestSubLoggerOutput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	mgr := newTestManager(t, &buf)
	require.Equal(t, []string{"BTCP", "PEER"}, mgr.SupportedSubsystems())

	logger := mgr.GenSubLogger("VIEW", nil)
	logger.Infof("block %d", 1)
	require.Contains(t, buf.String(), "VIEW")
	require.Contains(t, buf.String(), "block 1")

	buf.Reset()
	mgr.SetLogLevel("VIEW", "error")
	logger.Infof("hidden")
	require.Empty(t, buf.String())
}

// TestShutdownLogger checks that critical logs request shutdown.
func TestShutdownLogger(t *testing.T) {
	t.Parallel()

	var (
		buf   bytes.Buffer
		calls int
	)
	mgr := newTestManager(t, &buf)
	logger := mgr.GenSubLogger("SGNL", func() {
		calls++
	})

	logger.Criticalf("disk on fire")
	require.Equal(t, 1, calls)
	require.Contains(t, buf.String(), "disk on fire")

	logger.Errorf("just an error")
	require.Equal(t, 1, calls)
}

// TestRotatingLogWriter writes through the rotator and checks the log file
// is created.
func TestRotatingLogWriter(t *testing.T) {
	t.Parallel()

	cfg := DefaultLogConfig()
	require.NoError(t, cfg.Validate())

	logFile := filepath.Join(t.TempDir(), "logs", "btcpeer.log")

	w := NewRotatingLogWriter()
	require.NoError(t, w.InitLogRotator(cfg.File, logFile))

	_, err := w.Write([]byte("hello rotator\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := os.Stat(logFile)
		return err == nil
	}, testTimeout, testPoll)

	require.NoError(t, w.Close())
}

// TestLogConfigValidate rejects unknown compressors.
func TestLogConfigValidate(t *testing.T) {
	t.Parallel()

	cfg := DefaultLogConfig()
	cfg.File.Compressor = "brotli"
	require.Error(t, cfg.Validate())

	cfg.File.Compressor = Zstd
	require.NoError(t, cfg.Validate())
}

// TestUserAgent checks the BIP 14 layout.
func TestUserAgent(t *testing.T) {
	t.Parallel()

	require.Equal(t, "/btcpeer:"+Version()+"/", UserAgent())
	require.Equal(
		t, "/btcpeer:"+Version()+"(ci; test)/", UserAgent("ci", "test"),
	)
}
