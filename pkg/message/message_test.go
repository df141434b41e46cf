package message

import (
	"testing"
	"time"
)

func TestWriterFormat(t *testing.T) {
	tests := []struct {
		format    WriterFormat
		known     bool
		supported bool
	}{
		{FormatJSON, true, true},
		{FormatROS2, true, true},
		{FormatROS1, true, false},
		{FormatProtobuf, true, false},
		{WriterFormat("yaml"), false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			if got := tt.format.Known(); got != tt.known {
				t.Errorf("Known() = %v, want %v", got, tt.known)
			}
			if got := tt.format.Supported(); got != tt.supported {
				t.Errorf("Supported() = %v, want %v", got, tt.supported)
			}
		})
	}
}

func TestStampFromSeconds(t *testing.T) {
	tests := []struct {
		name    string
		seconds float64
		want    Stamp
	}{
		{"zero", 0, Stamp{0, 0}},
		{"whole", 12, Stamp{12, 0}},
		{"half", 1.5, Stamp{1, 500_000_000}},
		{"frame at 4fps", 0.25, Stamp{0, 250_000_000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StampFromSeconds(tt.seconds); got != tt.want {
				t.Errorf("StampFromSeconds(%v) = %+v, want %+v", tt.seconds, got, tt.want)
			}
		})
	}
}

func TestStamp_Nanos(t *testing.T) {
	s := StampFromTime(time.Unix(1700000000, 42))
	if got := s.Nanos(); got != 1700000000_000000042 {
		t.Errorf("Nanos() = %d", got)
	}

	m := s.Map()
	if m["sec"] != int64(1700000000) || m["nsec"] != int64(42) {
		t.Errorf("Map() = %v", m)
	}
}

func TestSummary(t *testing.T) {
	var s Summary
	s.AddMessages("/b/gps", 3)
	s.AddMessages("/a/imu", 2)
	s.AddMessages("/b/gps", 1)

	if s.Messages != 6 {
		t.Errorf("Messages = %d, want 6", s.Messages)
	}
	if s.Topics["/b/gps"] != 4 {
		t.Errorf("Topics[/b/gps] = %d, want 4", s.Topics["/b/gps"])
	}

	names := s.TopicNames()
	if len(names) != 2 || names[0] != "/a/imu" || names[1] != "/b/gps" {
		t.Errorf("TopicNames() = %v", names)
	}
	if s.String() == "" {
		t.Error("String() should not be empty")
	}
}
