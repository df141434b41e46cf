package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	if metrics == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestMetrics_Conversion(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.AddRowsRead("csv", 10)
	metrics.AddRowsRead("csv", 5)
	metrics.AddMessagesWritten("/gps/fix", "json", 15)
	metrics.IncSchemasRegistered("jsonschema")
	metrics.IncAttachmentsWritten()
	metrics.IncMetadataWritten()
	metrics.IncConversionErrors("tabular")
	metrics.ObserveFileDuration("tabular", 0.25)
	metrics.SetOutputSize(4096)

	if got := testutil.ToFloat64(metrics.RowsRead.WithLabelValues("csv")); got != 15 {
		t.Errorf("rows read = %v, want 15", got)
	}
	if got := testutil.ToFloat64(metrics.MessagesWritten.WithLabelValues("/gps/fix", "json")); got != 15 {
		t.Errorf("messages written = %v, want 15", got)
	}
	if got := testutil.ToFloat64(metrics.OutputSize); got != 4096 {
		t.Errorf("output size = %v, want 4096", got)
	}
}

func TestMetrics_ErrorScenarios(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	backends := []string{"s3", "azure", "gcs", "file"}
	operations := []string{"upload", "open", "write"}

	for _, backend := range backends {
		for _, operation := range operations {
			metrics.IncStorageErrors(backend, operation)
		}
		metrics.IncUploads(backend, "failure")
		metrics.ObserveUploadDuration(backend, 1.5)
	}

	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metricFamilies {
		if mf.GetName() == "tabular2mcap_storage_errors_total" {
			found = true
			if len(mf.Metric) != len(backends)*len(operations) {
				t.Errorf("Expected %d error series, got %d", len(backends)*len(operations), len(mf.Metric))
			}
			break
		}
	}
	if !found {
		t.Error("Expected storage errors metric to be registered")
	}
}

func TestWriteTextfile(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	metrics.IncAttachmentsWritten()

	path := filepath.Join(t.TempDir(), "tabular2mcap.prom")
	if err := WriteTextfile(registry, path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), "tabular2mcap_attachments_written_total 1") {
		t.Errorf("textfile missing attachments counter:\n%s", data)
	}
}

func TestMetrics_NilReceiver(t *testing.T) {
	var metrics *Metrics
	metrics.AddRowsRead("csv", 1)
	metrics.IncStorageErrors("s3", "upload")
	metrics.SetOutputSize(1)
}
