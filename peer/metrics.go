package peer

import (
	"github.com/lightninglabs/btcpeer/btcwire"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "btcpeer"
	metricsSubsystem = "peer"

	// otherCommand labels messages we have no handler for, so a peer
	// cannot grow the label set.
	otherCommand = "other"
)

// frameErrorKind labels the frame_errors_total counter.
type frameErrorKind string

const (
	errKindTruncatedHeader  frameErrorKind = "truncated_header"
	errKindBadMagic         frameErrorKind = "bad_magic"
	errKindMalformedCommand frameErrorKind = "malformed_command"
	errKindTruncatedPayload frameErrorKind = "truncated_payload"
	errKindChecksum         frameErrorKind = "checksum_mismatch"
	errKindDecode           frameErrorKind = "decode"
)

// Metrics holds the Prometheus collectors of a session. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	messagesReceived *prometheus.CounterVec
	messagesSent     *prometheus.CounterVec
	frameErrors      *prometheus.CounterVec
	blocksDecoded    prometheus.Counter
	blocksDiscarded  prometheus.Counter
	bytesRead        prometheus.Counter
	bytesWritten     prometheus.Counter
	handshakes       *prometheus.CounterVec
}

// NewMetrics creates the session collectors and registers them with reg. A
// nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	counterOpts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      name,
			Help:      help,
		}
	}

	m := &Metrics{
		messagesReceived: prometheus.NewCounterVec(
			counterOpts("messages_received_total",
				"Framed messages received, by command."),
			[]string{"command"},
		),
		messagesSent: prometheus.NewCounterVec(
			counterOpts("messages_sent_total",
				"Messages sent, by command."),
			[]string{"command"},
		),
		frameErrors: prometheus.NewCounterVec(
			counterOpts("frame_errors_total",
				"Frames skipped because they could not be "+
					"read or decoded, by kind."),
			[]string{"kind"},
		),
		blocksDecoded: prometheus.NewCounter(counterOpts(
			"blocks_decoded_total",
			"Blocks decoded and published.",
		)),
		blocksDiscarded: prometheus.NewCounter(counterOpts(
			"blocks_discarded_total",
			"Blocks discarded because a transaction could not "+
				"be decoded.",
		)),
		bytesRead: prometheus.NewCounter(counterOpts(
			"bytes_read_total", "Bytes read from the peer.",
		)),
		bytesWritten: prometheus.NewCounter(counterOpts(
			"bytes_written_total", "Bytes written to the peer.",
		)),
		handshakes: prometheus.NewCounterVec(
			counterOpts("handshakes_total",
				"Handshakes attempted, by result."),
			[]string{"result"},
		),
	}

	if reg == nil {
		return m, nil
	}

	collectors := []prometheus.Collector{
		m.messagesReceived, m.messagesSent, m.frameErrors,
		m.blocksDecoded, m.blocksDiscarded, m.bytesRead,
		m.bytesWritten, m.handshakes,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Metrics) messageReceived(cmd btcwire.InboundCommand) {
	if m == nil {
		return
	}

	label := otherCommand
	if cmd.Handled() {
		label = cmd.String()
	}
	m.messagesReceived.WithLabelValues(label).Inc()
}

func (m *Metrics) messageSent(cmd btcwire.Command) {
	if m == nil {
		return
	}
	m.messagesSent.WithLabelValues(cmd.String()).Inc()
}

func (m *Metrics) frameError(kind frameErrorKind) {
	if m == nil {
		return
	}
	m.frameErrors.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) blockDecoded() {
	if m == nil {
		return
	}
	m.blocksDecoded.Inc()
}

func (m *Metrics) blockDiscarded() {
	if m == nil {
		return
	}
	m.blocksDiscarded.Inc()
}

func (m *Metrics) read(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesRead.Add(float64(n))
}

func (m *Metrics) written(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesWritten.Add(float64(n))
}

func (m *Metrics) handshake(err error) {
	if m == nil {
		return
	}

	result := "success"
	if err != nil {
		result = "failure"
	}
	m.handshakes.WithLabelValues(result).Inc()
}
