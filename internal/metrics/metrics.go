// Package metrics counts the outcomes the error policy says to
// count but not alarm: duplicates, stale drops, unwrap misses.
package metrics

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	EventsSeen     prometheus.Counter
	Duplicates     prometheus.Counter
	StaleDrops     prometheus.Counter
	UnwrapMisses   prometheus.Counter
	DecodeFailures prometheus.Counter
	AcksSent       prometheus.Counter
	AcksDropped    prometheus.Counter
	MessagesSent   prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsSeen:     counter("events_seen_total", "Inbound events handed to the core."),
		Duplicates:     counter("events_duplicate_total", "Events dropped by the dedup cache."),
		StaleDrops:     counter("events_stale_total", "Events dropped by the age filter."),
		UnwrapMisses:   counter("unwrap_miss_total", "Gift wraps not addressed to this identity or unusable."),
		DecodeFailures: counter("packet_decode_failure_total", "Embedded packets that failed to decode."),
		AcksSent:       counter("acks_sent_total", "Acknowledgement events handed to the transport."),
		AcksDropped:    counter("acks_dropped_total", "Acknowledgements dropped because the queue was full."),
		MessagesSent:   counter("messages_sent_total", "Outbound private and ephemeral messages."),
	}
	if reg != nil {
		reg.MustRegister(
			m.EventsSeen, m.Duplicates, m.StaleDrops, m.UnwrapMisses,
			m.DecodeFailures, m.AcksSent, m.AcksDropped, m.MessagesSent,
		)
	}
	return m
}

func counter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bitchat",
		Subsystem: "core",
		Name:      name,
		Help:      help,
	})
}
