// Package prometheus provides Prometheus metrics for the voice bridge.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "voicebridge"

var (
	// rtpPacketsTotal counts RTP packets by direction.
	rtpPacketsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rtp_packets_total",
			Help:      "Total number of RTP packets by direction",
		},
		[]string{"direction"}, // direction: sent, received
	)

	// rtpSequenceGapsTotal counts detected sequence discontinuities on the
	// receive path.
	rtpSequenceGapsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rtp_sequence_gaps_total",
			Help:      "Total number of RTP sequence number gaps detected",
		},
	)

	// rtpMalformedTotal counts received packets dropped as malformed.
	rtpMalformedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rtp_malformed_packets_total",
			Help:      "Total number of malformed RTP packets dropped",
		},
	)

	// callsActive is a gauge of currently active bridge calls.
	callsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calls_active",
			Help:      "Number of currently active bridge calls",
		},
	)

	// callsTotal counts calls handled since start.
	callsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Total number of bridge calls handled",
		},
	)

	// callDuration is a histogram of call duration in seconds.
	callDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Histogram of bridge call duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	// providerAudioBytesTotal counts audio bytes exchanged with the AI
	// provider by direction.
	providerAudioBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_audio_bytes_total",
			Help:      "Total audio bytes exchanged with the AI provider",
		},
		[]string{"provider", "direction"}, // direction: sent, received
	)

	// providerAudioDroppedTotal counts frames silently dropped because the
	// provider session was not active.
	providerAudioDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_audio_dropped_total",
			Help:      "Total audio frames dropped while the provider session was not active",
		},
		[]string{"provider"},
	)

	// bargeInsTotal counts barge-in events by provider.
	bargeInsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "barge_ins_total",
			Help:      "Total number of user barge-in events",
		},
		[]string{"provider"},
	)

	// playbackFramesDroppedTotal counts frames discarded from a full
	// playback queue.
	playbackFramesDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_frames_dropped_total",
			Help:      "Total playback frames dropped from a full queue",
		},
	)

	// allMetrics is a list of all metrics for registration.
	allMetrics = []prometheus.Collector{
		rtpPacketsTotal,
		rtpSequenceGapsTotal,
		rtpMalformedTotal,
		callsActive,
		callsTotal,
		callDuration,
		providerAudioBytesTotal,
		providerAudioDroppedTotal,
		bargeInsTotal,
		playbackFramesDroppedTotal,
	}
)

// RecordRTPSent records one outgoing RTP packet.
func RecordRTPSent() {
	rtpPacketsTotal.WithLabelValues("sent").Inc()
}

// RecordRTPReceived records one incoming RTP packet.
func RecordRTPReceived() {
	rtpPacketsTotal.WithLabelValues("received").Inc()
}

// RecordRTPGap records a sequence discontinuity on the receive path.
func RecordRTPGap() {
	rtpSequenceGapsTotal.Inc()
}

// RecordRTPMalformed records a dropped malformed packet.
func RecordRTPMalformed() {
	rtpMalformedTotal.Inc()
}

// RecordCallStart records the start of a bridge call.
func RecordCallStart() {
	callsActive.Inc()
	callsTotal.Inc()
}

// RecordCallEnd records the end of a bridge call.
func RecordCallEnd(durationSeconds float64) {
	callsActive.Dec()
	callDuration.Observe(durationSeconds)
}

// RecordProviderAudio records audio bytes exchanged with a provider.
func RecordProviderAudio(provider, direction string, bytes int) {
	if bytes > 0 {
		providerAudioBytesTotal.WithLabelValues(provider, direction).Add(float64(bytes))
	}
}

// RecordProviderAudioDropped records a frame dropped while the session was
// not active.
func RecordProviderAudioDropped(provider string) {
	providerAudioDroppedTotal.WithLabelValues(provider).Inc()
}

// RecordBargeIn records a user barge-in event.
func RecordBargeIn(provider string) {
	bargeInsTotal.WithLabelValues(provider).Inc()
}

// RecordPlaybackDrop records a frame discarded from a full playback queue.
func RecordPlaybackDrop() {
	playbackFramesDroppedTotal.Inc()
}
