// Package writer adapts the MCAP library to the conversion pipeline: it owns
// schema and channel id assignment and provides one Converter per writer
// format.
package writer

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/foxglove/mcap/go/mcap"
	"go.uber.org/zap"

	"github.com/jittakal/tabular2mcap/internal/errors"
)

// Library is recorded in the MCAP header.
const Library = "tabular2mcap"

// Compression names accepted in Options.
const (
	CompressionZSTD = "zstd"
	CompressionLZ4  = "lz4"
	CompressionNone = "none"
)

// Options configures the MCAP output.
type Options struct {
	Compression string
	ChunkSize   int64
	Chunked     bool
	IncludeCRC  bool
	Profile     string
	Library     string
}

// DefaultOptions returns chunked, zstd-compressed output with CRCs.
func DefaultOptions() Options {
	return Options{
		Compression: CompressionZSTD,
		ChunkSize:   4 * 1024 * 1024,
		Chunked:     true,
		IncludeCRC:  true,
		Library:     Library,
	}
}

// ParseCompression maps a compression name to the MCAP format.
func ParseCompression(name string) (mcap.CompressionFormat, error) {
	switch strings.ToLower(name) {
	case CompressionZSTD, "":
		return mcap.CompressionZSTD, nil
	case CompressionLZ4:
		return mcap.CompressionLZ4, nil
	case CompressionNone:
		return mcap.CompressionNone, nil
	}
	return "", fmt.Errorf("unknown compression %q (want zstd, lz4 or none)", name)
}

// Schema is a registered schema record.
type Schema struct {
	ID       uint16
	Name     string
	Encoding string
	Data     []byte
}

type schemaKey struct {
	name, encoding, data string
}

// Writer wraps an mcap.Writer and assigns record ids.
type Writer struct {
	mu     sync.Mutex
	w      *mcap.Writer
	logger *zap.Logger

	nextSchemaID  uint16
	nextChannelID uint16
	schemas       map[schemaKey]*Schema
	closed        bool

	messages    int
	attachments int
	metadata    int
}

// New writes the MCAP header to out and returns a writer for the records.
func New(out io.Writer, opts Options, logger *zap.Logger) (*Writer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	compression, err := ParseCompression(opts.Compression)
	if err != nil {
		return nil, err
	}
	library := opts.Library
	if library == "" {
		library = Library
	}

	w, err := mcap.NewWriter(out, &mcap.WriterOptions{
		IncludeCRC:  opts.IncludeCRC,
		Chunked:     opts.Chunked,
		ChunkSize:   opts.ChunkSize,
		Compression: compression,
	})
	if err != nil {
		return nil, fmt.Errorf("create mcap writer: %w", err)
	}
	if err := w.WriteHeader(&mcap.Header{Profile: opts.Profile, Library: library}); err != nil {
		return nil, fmt.Errorf("write mcap header: %w", err)
	}

	logger.Debug("MCAP writer started",
		zap.String("profile", opts.Profile),
		zap.String("compression", string(compression)),
		zap.Bool("chunked", opts.Chunked))

	return &Writer{w: w, logger: logger, nextSchemaID: 1, schemas: make(map[schemaKey]*Schema)}, nil
}

// AddSchema writes a schema record and returns it with its id. Ids start at 1.
// Adding a schema identical to an earlier one returns the earlier record.
func (w *Writer) AddSchema(name, encoding string, data []byte) (*Schema, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, errors.ErrWriterClosed
	}

	key := schemaKey{name: name, encoding: encoding, data: string(data)}
	if s, ok := w.schemas[key]; ok {
		return s, nil
	}
	s := &Schema{ID: w.nextSchemaID, Name: name, Encoding: encoding, Data: data}
	if err := w.w.WriteSchema(&mcap.Schema{ID: s.ID, Name: name, Encoding: encoding, Data: data}); err != nil {
		return nil, fmt.Errorf("write schema %s: %w", name, err)
	}
	w.nextSchemaID++
	w.schemas[key] = s
	return s, nil
}

// AddChannel writes a channel record and returns its id. Ids start at 0.
func (w *Writer) AddChannel(topic, messageEncoding string, schemaID uint16, metadata map[string]string) (uint16, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, errors.ErrWriterClosed
	}
	if metadata == nil {
		metadata = map[string]string{}
	}

	id := w.nextChannelID
	err := w.w.WriteChannel(&mcap.Channel{
		ID:              id,
		SchemaID:        schemaID,
		Topic:           topic,
		MessageEncoding: messageEncoding,
		Metadata:        metadata,
	})
	if err != nil {
		return 0, fmt.Errorf("write channel %s: %w", topic, err)
	}
	w.nextChannelID++
	return id, nil
}

// AddMessage writes a message record.
func (w *Writer) AddMessage(channelID uint16, sequence uint32, logTime, publishTime uint64, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.ErrWriterClosed
	}

	err := w.w.WriteMessage(&mcap.Message{
		ChannelID:   channelID,
		Sequence:    sequence,
		LogTime:     logTime,
		PublishTime: publishTime,
		Data:        data,
	})
	if err != nil {
		return fmt.Errorf("write message on channel %d: %w", channelID, err)
	}
	w.messages++
	return nil
}

// AddAttachment writes an attachment record.
func (w *Writer) AddAttachment(createTime, logTime uint64, name, mediaType string, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.ErrWriterClosed
	}

	err := w.w.WriteAttachment(&mcap.Attachment{
		LogTime:    logTime,
		CreateTime: createTime,
		Name:       name,
		MediaType:  mediaType,
		DataSize:   uint64(len(data)),
		Data:       bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("write attachment %s: %w", name, err)
	}
	w.attachments++
	return nil
}

// AddMetadata writes a metadata record.
func (w *Writer) AddMetadata(name string, metadata map[string]string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.ErrWriterClosed
	}

	if err := w.w.WriteMetadata(&mcap.Metadata{Name: name, Metadata: metadata}); err != nil {
		return fmt.Errorf("write metadata %s: %w", name, err)
	}
	w.metadata++
	return nil
}

// Close writes the summary section and footer. Closing twice is a no-op.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.w.Close(); err != nil {
		return fmt.Errorf("finish mcap: %w", err)
	}
	w.logger.Debug("MCAP writer closed",
		zap.Int("messages", w.messages),
		zap.Int("attachments", w.attachments),
		zap.Int("metadata", w.metadata))
	return nil
}
