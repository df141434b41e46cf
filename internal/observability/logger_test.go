package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config LoggingConfig
	}{
		{
			name: "json format",
			config: LoggingConfig{
				Level:  "info",
				Format: "json",
			},
		},
		{
			name: "console format",
			config: LoggingConfig{
				Level:  "debug",
				Format: "console",
			},
		},
		{
			name: "default format",
			config: LoggingConfig{
				Level:  "warn",
				Format: "",
				Output: "stdout",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.config)
			if err != nil {
				t.Fatalf("NewLogger returned error: %v", err)
			}
			if logger == nil {
				t.Fatal("NewLogger returned nil")
			}
		})
	}
}

func TestLoggerFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")

	logger, err := NewLogger(LoggingConfig{Level: "info", Format: "json", Output: path})
	if err != nil {
		t.Fatalf("NewLogger returned error: %v", err)
	}
	logger.Info("test message")
	logger.Debug("hidden message")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	output := string(data)
	if !strings.Contains(output, "test message") {
		t.Errorf("Log output should contain 'test message', got: %s", output)
	}
	if strings.Contains(output, "hidden message") {
		t.Errorf("Debug message should be filtered at info level, got: %s", output)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  zapcore.Level
	}{
		{"debug level", "debug", zapcore.DebugLevel},
		{"info level", "info", zapcore.InfoLevel},
		{"warn level", "warn", zapcore.WarnLevel},
		{"warning level", "warning", zapcore.WarnLevel},
		{"error level", "error", zapcore.ErrorLevel},
		{"invalid defaults to info", "invalid", zapcore.InfoLevel},
		{"empty defaults to info", "", zapcore.InfoLevel},
		{"uppercase", "DEBUG", zapcore.DebugLevel},
		{"mixed case", "Info", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLevel(tt.level).Level(); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.level, got, tt.want)
			}
		})
	}
}
