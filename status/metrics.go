package status

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/soocke/pixel-cue/domain/detect"
)

// Metrics exports tick outcomes as prometheus collectors. It is a
// detect.Observer and must be registered on the scheduler.
type Metrics struct {
	ticks         *prometheus.CounterVec
	triggers      prometheus.Counter
	deepScans     prometheus.Counter
	captureErrors prometheus.Counter
	present       prometheus.Gauge
	cachedScale   prometheus.Gauge
	missStreak    prometheus.Gauge
	tickSeconds   prometheus.Histogram
}

var _ detect.Observer = (*Metrics)(nil)

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pixelcue",
			Name:      "ticks_total",
			Help:      "Detection ticks by outcome.",
		}, []string{"outcome"}),
		triggers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pixelcue",
			Name:      "triggers_total",
			Help:      "Rising edges from idle to present.",
		}),
		deepScans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pixelcue",
			Name:      "deep_scans_total",
			Help:      "Full scale sweeps performed.",
		}),
		captureErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pixelcue",
			Name:      "capture_errors_total",
			Help:      "Ticks whose region capture failed.",
		}),
		present: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pixelcue",
			Name:      "marker_present",
			Help:      "1 while the marker is considered present.",
		}),
		cachedScale: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pixelcue",
			Name:      "cached_scale",
			Help:      "Scale of the remembered variant, 0 when none.",
		}),
		missStreak: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pixelcue",
			Name:      "miss_streak",
			Help:      "Consecutive misses while present.",
		}),
		tickSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pixelcue",
			Name:      "tick_duration_seconds",
			Help:      "Time spent in one non-skipped tick.",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
	}
	for _, c := range []prometheus.Collector{m.ticks, m.triggers, m.deepScans, m.captureErrors, m.present, m.cachedScale, m.missStreak, m.tickSeconds} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Observe records one tick.
func (m *Metrics) Observe(r detect.TickReport, s detect.DetectorState) {
	m.ticks.WithLabelValues(outcome(r)).Inc()
	if r.Skipped {
		return
	}
	if r.Fired {
		m.triggers.Inc()
	}
	if r.DeepScan {
		m.deepScans.Inc()
	}
	if r.CaptureErr != nil {
		m.captureErrors.Inc()
	}
	if s.Present {
		m.present.Set(1)
	} else {
		m.present.Set(0)
	}
	if s.HasCache {
		m.cachedScale.Set(s.CachedScale)
	} else {
		m.cachedScale.Set(0)
	}
	m.missStreak.Set(float64(s.MissStreak))
	m.tickSeconds.Observe(r.Duration.Seconds())
}

func outcome(r detect.TickReport) string {
	switch {
	case r.Skipped:
		return "skipped_" + r.SkipReason
	case r.CaptureErr != nil:
		return "capture_error"
	case r.Found:
		return "found"
	default:
		return "miss"
	}
}
