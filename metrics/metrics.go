// Package metrics exports codec activity as Prometheus metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/thesyncim/aom"
)

// Collector implements aom.Observer.
type Collector struct {
	// Handle metrics
	ActiveHandles *prometheus.GaugeVec
	HandlesOpened *prometheus.CounterVec
	HandlesLeaked *prometheus.CounterVec

	// Output metrics
	Packets     *prometheus.CounterVec
	PacketBytes *prometheus.HistogramVec
	Keyframes   prometheus.Counter
	Frames      prometheus.Counter
	FramePixels prometheus.Histogram

	// Native call metrics
	Errors       *prometheus.CounterVec
	CallDuration *prometheus.HistogramVec
}

var _ aom.Observer = (*Collector)(nil)

// New creates all metrics and registers them with reg. A nil reg uses
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Collector{
		ActiveHandles: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aom_active_handles",
			Help: "Number of open encoder, decoder and image handles",
		}, []string{"coder"}),
		HandlesOpened: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aom_handles_opened_total",
			Help: "Total number of handles opened",
		}, []string{"coder"}),
		HandlesLeaked: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aom_handles_leaked_total",
			Help: "Handles released by the garbage collector instead of Close",
		}, []string{"coder"}),

		Packets: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aom_packets_total",
			Help: "Total number of encoder output packets",
		}, []string{"kind"}),
		PacketBytes: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aom_packet_size_bytes",
			Help:    "Size of encoder output packets in bytes",
			Buckets: prometheus.ExponentialBuckets(64, 4, 9), // 64B to 4MB
		}, []string{"kind"}),
		Keyframes: f.NewCounter(prometheus.CounterOpts{
			Name: "aom_keyframes_total",
			Help: "Total number of keyframe packets",
		}),
		Frames: f.NewCounter(prometheus.CounterOpts{
			Name: "aom_decoded_frames_total",
			Help: "Total number of decoded frames",
		}),
		FramePixels: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "aom_decoded_frame_pixels",
			Help:    "Luma samples per decoded frame",
			Buckets: []float64{320 * 240, 640 * 480, 1280 * 720, 1920 * 1080, 3840 * 2160},
		}),

		Errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aom_errors_total",
			Help: "Errors returned by native calls",
		}, []string{"coder", "op", "kind", "code"}),
		CallDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aom_call_duration_seconds",
			Help:    "Duration of encode, decode and flush calls",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 100us to ~0.8s
		}, []string{"coder", "op"}),
	}
}

func (c *Collector) Opened(coder aom.Coder) {
	c.ActiveHandles.WithLabelValues(string(coder)).Inc()
	c.HandlesOpened.WithLabelValues(string(coder)).Inc()
}

func (c *Collector) Closed(coder aom.Coder, leaked bool) {
	c.ActiveHandles.WithLabelValues(string(coder)).Dec()
	if leaked {
		c.HandlesLeaked.WithLabelValues(string(coder)).Inc()
	}
}

func (c *Collector) Packet(kind aom.PacketKind, size int, keyframe bool) {
	c.Packets.WithLabelValues(kind.String()).Inc()
	c.PacketBytes.WithLabelValues(kind.String()).Observe(float64(size))
	if keyframe {
		c.Keyframes.Inc()
	}
}

func (c *Collector) Frame(width, height int) {
	c.Frames.Inc()
	c.FramePixels.Observe(float64(width * height))
}

func (c *Collector) Failed(coder aom.Coder, op string, kind aom.Kind, code int) {
	c.Errors.WithLabelValues(string(coder), op, kind.String(), strconv.Itoa(code)).Inc()
}

func (c *Collector) Call(coder aom.Coder, op string, d time.Duration) {
	c.CallDuration.WithLabelValues(string(coder), op).Observe(d.Seconds())
}
