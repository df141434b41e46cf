package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. Methods on a nil *Metrics are no-ops.
type Metrics struct {
	// Conversion metrics
	RowsRead           *prometheus.CounterVec
	MessagesWritten    *prometheus.CounterVec
	SchemasRegistered  *prometheus.CounterVec
	AttachmentsWritten prometheus.Counter
	MetadataWritten    prometheus.Counter
	ConversionErrors   *prometheus.CounterVec
	FileDuration       *prometheus.HistogramVec
	OutputSize         prometheus.Gauge

	// Storage metrics
	StorageErrors  *prometheus.CounterVec
	Uploads        *prometheus.CounterVec
	UploadDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		// Conversion metrics
		RowsRead: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tabular2mcap_rows_read_total",
				Help: "Total number of table rows read",
			},
			[]string{"format"},
		),
		MessagesWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tabular2mcap_messages_written_total",
				Help: "Total number of messages written to MCAP channels",
			},
			[]string{"topic", "encoding"},
		),
		SchemasRegistered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tabular2mcap_schemas_registered_total",
				Help: "Total number of schemas registered",
			},
			[]string{"encoding"},
		),
		AttachmentsWritten: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tabular2mcap_attachments_written_total",
				Help: "Total number of attachments written",
			},
		),
		MetadataWritten: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tabular2mcap_metadata_written_total",
				Help: "Total number of metadata records written",
			},
		),
		ConversionErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tabular2mcap_conversion_errors_total",
				Help: "Total number of conversion errors",
			},
			[]string{"stage"},
		),
		FileDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tabular2mcap_file_duration_seconds",
				Help:    "Duration of processing one input file",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		OutputSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tabular2mcap_output_size_bytes",
				Help: "Size of the written MCAP file",
			},
		),

		// Storage metrics
		StorageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tabular2mcap_storage_errors_total",
				Help: "Total number of storage errors",
			},
			[]string{"backend", "operation"},
		),
		Uploads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tabular2mcap_uploads_total",
				Help: "Total number of output uploads",
			},
			[]string{"backend", "status"},
		),
		UploadDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tabular2mcap_upload_duration_seconds",
				Help:    "Duration of output uploads",
				Buckets: []float64{0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0},
			},
			[]string{"backend"},
		),
	}
}

// AddRowsRead adds n rows read in format.
func (m *Metrics) AddRowsRead(format string, n int) {
	if m == nil {
		return
	}
	m.RowsRead.WithLabelValues(format).Add(float64(n))
}

// AddMessagesWritten adds n messages written on topic.
func (m *Metrics) AddMessagesWritten(topic, encoding string, n int) {
	if m == nil {
		return
	}
	m.MessagesWritten.WithLabelValues(topic, encoding).Add(float64(n))
}

// IncSchemasRegistered increments the schemas registered counter.
func (m *Metrics) IncSchemasRegistered(encoding string) {
	if m == nil {
		return
	}
	m.SchemasRegistered.WithLabelValues(encoding).Inc()
}

// IncAttachmentsWritten increments the attachments counter.
func (m *Metrics) IncAttachmentsWritten() {
	if m == nil {
		return
	}
	m.AttachmentsWritten.Inc()
}

// IncMetadataWritten increments the metadata counter.
func (m *Metrics) IncMetadataWritten() {
	if m == nil {
		return
	}
	m.MetadataWritten.Inc()
}

// IncConversionErrors increments the conversion errors counter.
func (m *Metrics) IncConversionErrors(stage string) {
	if m == nil {
		return
	}
	m.ConversionErrors.WithLabelValues(stage).Inc()
}

// ObserveFileDuration observes the processing duration of one file.
func (m *Metrics) ObserveFileDuration(kind string, duration float64) {
	if m == nil {
		return
	}
	m.FileDuration.WithLabelValues(kind).Observe(duration)
}

// SetOutputSize sets the output size gauge.
func (m *Metrics) SetOutputSize(size int64) {
	if m == nil {
		return
	}
	m.OutputSize.Set(float64(size))
}

// IncStorageErrors increments storage errors counter.
func (m *Metrics) IncStorageErrors(backend string, operation string) {
	if m == nil {
		return
	}
	m.StorageErrors.WithLabelValues(backend, operation).Inc()
}

// IncUploads increments the uploads counter.
func (m *Metrics) IncUploads(backend, status string) {
	if m == nil {
		return
	}
	m.Uploads.WithLabelValues(backend, status).Inc()
}

// ObserveUploadDuration observes upload duration.
func (m *Metrics) ObserveUploadDuration(backend string, duration float64) {
	if m == nil {
		return
	}
	m.UploadDuration.WithLabelValues(backend).Observe(duration)
}

// WriteTextfile writes the registry in the node exporter textfile format.
func WriteTextfile(registry *prometheus.Registry, path string) error {
	return prometheus.WriteToTextfile(path, registry)
}
