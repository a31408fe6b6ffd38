package reload

// MetricsReporter receives credential lifecycle events. Implementations live
// in adapter packages; the core never depends on a metrics backend.
type MetricsReporter interface {
	// RecordReload records a bundle reload attempt. Outcome is "success"
	// or "failure".
	RecordReload(bundle, outcome string)

	// RecordValidation records a peer chain validation result.
	RecordValidation(success bool)

	// UpdateMaterialExpiry records the Unix timestamp at which an identity
	// material's leaf certificate expires.
	UpdateMaterialExpiry(bundle, alias string, expiry float64)
}

// NoopMetrics is a MetricsReporter that discards everything.
type NoopMetrics struct{}

func (NoopMetrics) RecordReload(string, string)                  {}
func (NoopMetrics) RecordValidation(bool)                        {}
func (NoopMetrics) UpdateMaterialExpiry(string, string, float64) {}
