package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Resolution outcomes.
const (
	OutcomeHit  = "hit"
	OutcomeMiss = "miss"
)

// Reservation outcomes.
const (
	ReservationGranted  = "granted"
	ReservationRejected = "rejected"
	ReservationReleased = "released"
)

// PricingMetrics records the engine's decision points. A nil receiver is a no-op.
type PricingMetrics struct {
	resolutions        *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	promotionsApplied  *prometheus.CounterVec
	promotionsDropped  *prometheus.CounterVec
	flashReservations  *prometheus.CounterVec
}

// NewPricingMetrics registers the engine collectors on reg.
func NewPricingMetrics(reg prometheus.Registerer) *PricingMetrics {
	if reg == nil {
		return &PricingMetrics{}
	}
	resolutions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "price_resolutions_total",
		Help: "Price resolutions by outcome.",
	}, []string{"outcome"})
	evaluationDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "promotion_evaluation_duration_seconds",
		Help:    "Duration of promotion evaluations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})
	promotionsApplied := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "promotions_applied_total",
		Help: "Promotions applied to evaluated orders.",
	}, []string{"mode"})
	promotionsDropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "promotions_dropped_total",
		Help: "Promotions dropped at commit time, by reason.",
	}, []string{"reason"})
	flashReservations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flash_sale_reservations_total",
		Help: "Flash-sale stock reservations by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(resolutions, evaluationDuration, promotionsApplied, promotionsDropped, flashReservations)
	return &PricingMetrics{
		resolutions:        resolutions,
		evaluationDuration: evaluationDuration,
		promotionsApplied:  promotionsApplied,
		promotionsDropped:  promotionsDropped,
		flashReservations:  flashReservations,
	}
}

func (m *PricingMetrics) IncResolution(outcome string) {
	if m == nil || m.resolutions == nil {
		return
	}
	m.resolutions.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *PricingMetrics) ObserveEvaluation(mode string, duration time.Duration, applied int) {
	if m == nil || m.evaluationDuration == nil {
		return
	}
	m.evaluationDuration.WithLabelValues(normalizeLabel(mode)).Observe(duration.Seconds())
	if applied > 0 {
		m.promotionsApplied.WithLabelValues(normalizeLabel(mode)).Add(float64(applied))
	}
}

func (m *PricingMetrics) IncDropped(reason string) {
	if m == nil || m.promotionsDropped == nil {
		return
	}
	m.promotionsDropped.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *PricingMetrics) IncReservation(outcome string) {
	if m == nil || m.flashReservations == nil {
		return
	}
	m.flashReservations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
