// Package message defines the message-level types produced by a conversion run.
package message

import (
	"fmt"
	"sort"
	"time"
)

// WriterFormat selects the schema and message encoding of an MCAP output.
type WriterFormat string

const (
	FormatJSON     WriterFormat = "json"
	FormatROS2     WriterFormat = "ros2"
	FormatROS1     WriterFormat = "ros1"
	FormatProtobuf WriterFormat = "protobuf"
)

// Supported reports whether MCAP output can be produced for the format.
func (f WriterFormat) Supported() bool {
	return f == FormatJSON || f == FormatROS2
}

// Known reports whether f is a recognised writer format name.
func (f WriterFormat) Known() bool {
	switch f {
	case FormatJSON, FormatROS2, FormatROS1, FormatProtobuf:
		return true
	}
	return false
}

// ConvertedRow is one rendered message ready to be written to a channel.
type ConvertedRow struct {
	// Data is the decoded message body.
	Data map[string]any
	// LogTime is the message log time in nanoseconds since the epoch.
	LogTime uint64
	// PublishTime is the message publish time in nanoseconds since the epoch.
	PublishTime uint64
	// Sequence is the row index within the source file.
	Sequence uint32
}

// Stamp is a seconds/nanoseconds timestamp as used in message bodies.
type Stamp struct {
	Sec  int64
	Nsec int64
}

// StampFromSeconds splits fractional seconds into a Stamp.
func StampFromSeconds(seconds float64) Stamp {
	sec := int64(seconds)
	nsec := int64((seconds - float64(sec)) * 1e9)
	return Stamp{Sec: sec, Nsec: nsec}
}

// StampFromTime converts t into a Stamp.
func StampFromTime(t time.Time) Stamp {
	return Stamp{Sec: t.Unix(), Nsec: int64(t.Nanosecond())}
}

// Nanos returns the stamp as nanoseconds since the epoch.
func (s Stamp) Nanos() uint64 {
	return uint64(s.Sec)*1_000_000_000 + uint64(s.Nsec)
}

// Map returns the stamp as a {sec, nsec} message field.
func (s Stamp) Map() map[string]any {
	return map[string]any{"sec": s.Sec, "nsec": s.Nsec}
}

// Summary describes a finished conversion.
type Summary struct {
	OutputPath  string
	Files       int
	Messages    int
	Attachments int
	Metadata    int
	Topics      map[string]int
	Bytes       int64
	Duration    time.Duration
}

// AddMessages records n messages written on topic.
func (s *Summary) AddMessages(topic string, n int) {
	if s.Topics == nil {
		s.Topics = make(map[string]int)
	}
	s.Topics[topic] += n
	s.Messages += n
}

// TopicNames returns the topic names in sorted order.
func (s *Summary) TopicNames() []string {
	names := make([]string, 0, len(s.Topics))
	for name := range s.Topics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// String returns a one-line description of the summary.
func (s *Summary) String() string {
	return fmt.Sprintf("%d messages on %d topics, %d attachments, %d metadata records from %d files",
		s.Messages, len(s.Topics), s.Attachments, s.Metadata, s.Files)
}
