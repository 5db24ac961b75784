package output

import "time"

// MetricsCollector defines the secondary port for metrics collection.
type MetricsCollector interface {
	// IncConversion increments the conversion counter.
	IncConversion(outputFormat string, success bool)

	// ObserveConversionDuration records conversion duration.
	ObserveConversionDuration(outputFormat string, duration time.Duration)

	// IncCrsResolution increments the CRS resolution counter per endpoint.
	IncCrsResolution(endpoint string, success bool)

	// IncPreviewCache counts preview cache events ("hit" or "miss").
	IncPreviewCache(event string)

	// IncStorageOperations increments storage operation counter.
	IncStorageOperations(operation string, success bool)

	// ObserveStorageDuration records storage operation duration.
	ObserveStorageDuration(operation string, duration time.Duration)
}

// NoOpMetrics is a no-op implementation of MetricsCollector.
type NoOpMetrics struct{}

// IncConversion implements MetricsCollector.
func (n *NoOpMetrics) IncConversion(_ string, _ bool) {}

// ObserveConversionDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveConversionDuration(_ string, _ time.Duration) {}

// IncCrsResolution implements MetricsCollector.
func (n *NoOpMetrics) IncCrsResolution(_ string, _ bool) {}

// IncPreviewCache implements MetricsCollector.
func (n *NoOpMetrics) IncPreviewCache(_ string) {}

// IncStorageOperations implements MetricsCollector.
func (n *NoOpMetrics) IncStorageOperations(_ string, _ bool) {}

// ObserveStorageDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveStorageDuration(_ string, _ time.Duration) {}
