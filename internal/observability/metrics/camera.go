// Package metrics provides Prometheus metrics for the capture request core
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Result kinds reported by RecordResult.
const (
	ResultFull        = "full"         // metadata matched its own frame
	ResultDroppedMeta = "dropped_meta" // synthesized for a frame whose metadata was dropped
	ResultBufferOnly  = "buffer_only"  // buffer delivered after its metadata
	ResultError       = "error"        // flush error result
)

// Flush error levels reported by RecordFlushError.
const (
	FlushErrorBuffer  = "buffer"
	FlushErrorRequest = "request"
)

// CameraMetrics contains Prometheus metrics for one HAL process.
// All record methods are safe to call on a nil receiver.
type CameraMetrics struct {
	registry *prometheus.Registry

	requestsTotal       *prometheus.CounterVec
	inFlight            *prometheus.GaugeVec
	admissionWait       *prometheus.HistogramVec
	shutterTotal        *prometheus.CounterVec
	resultsTotal        *prometheus.CounterVec
	pipelineDepth       *prometheus.HistogramVec
	flushTotal          *prometheus.CounterVec
	flushErrorsTotal    *prometheus.CounterVec
	anomaliesTotal      *prometheus.CounterVec
	pendingBuffers      *prometheus.GaugeVec
	zslStored           *prometheus.GaugeVec
	configurationsTotal *prometheus.CounterVec

	collectors []prometheus.Collector
}

// NewCameraMetrics creates and registers new camera metrics
func NewCameraMetrics(registry *prometheus.Registry) (*CameraMetrics, error) {
	m := &CameraMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *CameraMetrics) initMetrics() {
	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camhal_capture_requests_total",
			Help: "Capture requests submitted, by outcome",
		},
		[]string{"camera", "status"},
	)

	m.inFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "camhal_in_flight_requests",
			Help: "Admitted requests whose metadata has not completed",
		},
		[]string{"camera"},
	)

	m.admissionWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "camhal_admission_wait_seconds",
			Help:    "Time a submit call spent blocked on the in-flight cap",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		},
		[]string{"camera"},
	)

	m.shutterTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camhal_shutter_notifications_total",
			Help: "Shutter notifications sent to the framework",
		},
		[]string{"camera"},
	)

	m.resultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camhal_capture_results_total",
			Help: "Capture results delivered to the framework, by kind",
		},
		[]string{"camera", "kind"},
	)

	m.pipelineDepth = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "camhal_pipeline_depth",
			Help:    "Pipeline depth reported with matched metadata",
			Buckets: prometheus.LinearBuckets(0, 1, 10),
		},
		[]string{"camera"},
	)

	m.flushTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camhal_flush_total",
			Help: "Flush operations",
		},
		[]string{"camera"},
	)

	m.flushErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camhal_flush_errors_total",
			Help: "Error notifications emitted while draining, by level",
		},
		[]string{"camera", "level"},
	)

	m.anomaliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camhal_correlation_anomalies_total",
			Help: "Completions that could not be correlated cleanly",
		},
		[]string{"camera", "kind"},
	)

	m.pendingBuffers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "camhal_pending_buffers",
			Help: "Output buffers handed to channels and not yet returned",
		},
		[]string{"camera"},
	)

	m.zslStored = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "camhal_zsl_stored_metadata",
			Help: "Metadata buffers held for zero shutter lag correlation",
		},
		[]string{"camera"},
	)

	m.configurationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camhal_stream_configurations_total",
			Help: "Stream configuration calls, by outcome",
		},
		[]string{"camera", "status"},
	)

	m.collectors = []prometheus.Collector{
		m.requestsTotal,
		m.inFlight,
		m.admissionWait,
		m.shutterTotal,
		m.resultsTotal,
		m.pipelineDepth,
		m.flushTotal,
		m.flushErrorsTotal,
		m.anomaliesTotal,
		m.pendingBuffers,
		m.zslStored,
		m.configurationsTotal,
	}
}

// Describe implements the Collector interface
func (m *CameraMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *CameraMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordRequest counts a submit call. status is "ok" or an error category.
func (m *CameraMetrics) RecordRequest(camera, status string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(camera, status).Inc()
}

// SetInFlight updates the in-flight gauge
func (m *CameraMetrics) SetInFlight(camera string, n int) {
	if m == nil {
		return
	}
	m.inFlight.WithLabelValues(camera).Set(float64(n))
}

// ObserveAdmissionWait records how long submit blocked
func (m *CameraMetrics) ObserveAdmissionWait(camera string, d time.Duration) {
	if m == nil {
		return
	}
	m.admissionWait.WithLabelValues(camera).Observe(d.Seconds())
}

// RecordShutter counts a shutter notification
func (m *CameraMetrics) RecordShutter(camera string) {
	if m == nil {
		return
	}
	m.shutterTotal.WithLabelValues(camera).Inc()
}

// RecordResult counts a delivered result of the given kind
func (m *CameraMetrics) RecordResult(camera, kind string) {
	if m == nil {
		return
	}
	m.resultsTotal.WithLabelValues(camera, kind).Inc()
}

// ObservePipelineDepth records the depth attached to a matched result
func (m *CameraMetrics) ObservePipelineDepth(camera string, depth uint8) {
	if m == nil {
		return
	}
	m.pipelineDepth.WithLabelValues(camera).Observe(float64(depth))
}

// RecordFlush counts a flush
func (m *CameraMetrics) RecordFlush(camera string) {
	if m == nil {
		return
	}
	m.flushTotal.WithLabelValues(camera).Inc()
}

// RecordFlushError counts one error notification emitted by flush
func (m *CameraMetrics) RecordFlushError(camera, level string) {
	if m == nil {
		return
	}
	m.flushErrorsTotal.WithLabelValues(camera, level).Inc()
}

// RecordAnomaly counts a correlation anomaly
func (m *CameraMetrics) RecordAnomaly(camera, kind string) {
	if m == nil {
		return
	}
	m.anomaliesTotal.WithLabelValues(camera, kind).Inc()
}

// SetPendingBuffers updates the pending buffer gauge
func (m *CameraMetrics) SetPendingBuffers(camera string, n int) {
	if m == nil {
		return
	}
	m.pendingBuffers.WithLabelValues(camera).Set(float64(n))
}

// SetZSLStored updates the ZSL store gauge
func (m *CameraMetrics) SetZSLStored(camera string, n int) {
	if m == nil {
		return
	}
	m.zslStored.WithLabelValues(camera).Set(float64(n))
}

// RecordConfiguration counts a configure call. status is "ok" or an error category.
func (m *CameraMetrics) RecordConfiguration(camera, status string) {
	if m == nil {
		return
	}
	m.configurationsTotal.WithLabelValues(camera, status).Inc()
}
