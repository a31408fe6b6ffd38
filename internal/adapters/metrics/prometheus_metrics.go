// Package metrics provides the Prometheus implementation of the credential
// core's metrics reporting.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sufield/certswap/internal/core/reload"
)

var (
	bundleReloadCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "certswap_bundle_reload_total",
		Help: "Total number of ssl bundle reload attempts",
	}, []string{"bundle", "outcome"}) // outcome: success, failure

	chainValidationCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "certswap_chain_validation_total",
		Help: "Total number of peer chain validations",
	}, []string{"result"}) // result: success, failure

	materialExpiryTimestamp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "certswap_material_expiry_timestamp_seconds",
		Help: "Unix timestamp when an identity material's leaf certificate expires",
	}, []string{"bundle", "alias"})
)

// PrometheusMetrics implements reload.MetricsReporter using Prometheus.
type PrometheusMetrics struct{}

// NewPrometheusMetrics creates a new Prometheus metrics reporter.
func NewPrometheusMetrics() reload.MetricsReporter {
	return &PrometheusMetrics{}
}

// RecordReload records a bundle reload attempt.
func (m *PrometheusMetrics) RecordReload(bundle, outcome string) {
	bundleReloadCounter.WithLabelValues(bundle, outcome).Inc()
}

// RecordValidation records a peer chain validation result.
func (m *PrometheusMetrics) RecordValidation(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	chainValidationCounter.WithLabelValues(result).Inc()
}

// UpdateMaterialExpiry records an identity material's leaf expiry.
func (m *PrometheusMetrics) UpdateMaterialExpiry(bundle, alias string, expiry float64) {
	materialExpiryTimestamp.WithLabelValues(bundle, alias).Set(expiry)
}

// Handler returns the Prometheus exposition handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
