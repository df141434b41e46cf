// Package converter runs a mapping configuration over an input directory and
// writes the result to a single MCAP file.
//
// Conversion is sequential. Tabular mappings are processed first, then other
// (media) mappings, attachments and metadata, each in configuration order.
package converter

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	apperrors "github.com/jittakal/tabular2mcap/internal/errors"
	"github.com/jittakal/tabular2mcap/internal/mapping"
	"github.com/jittakal/tabular2mcap/internal/observability"
	"github.com/jittakal/tabular2mcap/internal/schema"
	"github.com/jittakal/tabular2mcap/internal/template"
	"github.com/jittakal/tabular2mcap/internal/validator"
	"github.com/jittakal/tabular2mcap/internal/writer"
	"github.com/jittakal/tabular2mcap/pkg/message"
)

// DefaultTestModeRows is the number of rows kept per table in test mode.
const DefaultTestModeRows = 5

// Options configures a conversion run.
type Options struct {
	// TopicPrefix is prepended to every topic.
	TopicPrefix string
	// TestMode keeps only the first TestModeRows rows of every table.
	TestMode     bool
	TestModeRows int
	// Validate checks every JSON message against its schema.
	Validate bool
	// Progress, when set, is called before each input file or frame
	// directory is processed.
	Progress func(kind, file string)

	Writer  writer.Options
	Schemas schema.Options

	Metrics *observability.Metrics
	Logger  *zap.Logger
}

// Converter converts input directories according to one mapping config.
type Converter struct {
	cfg       *mapping.Config
	functions map[string]*template.Function
	opts      Options
	logger    *zap.Logger
	metrics   *observability.Metrics
}

// New compiles the converter functions and checks the writer format.
// funcs may be nil when no mapping references a function.
func New(cfg *mapping.Config, funcs *mapping.FunctionFile, opts Options) (*Converter, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.TestModeRows <= 0 {
		opts.TestModeRows = DefaultTestModeRows
	}
	if opts.Writer.Compression == "" && opts.Writer.ChunkSize == 0 {
		opts.Writer = writer.DefaultOptions()
	}

	if !cfg.WriterFormat.Supported() {
		return nil, fmt.Errorf("%w: Writer format %s is not supported", apperrors.ErrUnsupportedWriterFormat, cfg.WriterFormat)
	}

	if funcs == nil {
		funcs = &mapping.FunctionFile{}
	}
	functions, err := template.Compile(template.NewEnvironment(opts.Logger), funcs)
	if err != nil {
		return nil, err
	}

	return &Converter{
		cfg:       cfg,
		functions: functions,
		opts:      opts,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}, nil
}

// run holds the state of one Convert call.
type run struct {
	inputDir string
	conv     writer.Converter
	schemas  map[string]*writer.Schema
	summary  *message.Summary
}

// Convert writes the MCAP file for inputDir to out.
func (c *Converter) Convert(ctx context.Context, inputDir string, out io.Writer) (*message.Summary, error) {
	start := time.Now()
	counter := &countingWriter{w: out}

	deps := writer.Dependencies{
		JSONSchemas: schema.NewJSONSchemas(c.opts.Schemas, c.logger),
		Ros2Msgs:    schema.NewRos2Msgs(c.opts.Schemas, c.logger),
		Metrics:     c.metrics,
		Logger:      c.logger,
	}
	if c.opts.Validate && c.cfg.WriterFormat == message.FormatJSON {
		deps.Validator = validator.NewJSONValidator()
	}

	conv, err := writer.NewConverter(c.cfg.WriterFormat, counter, c.opts.Writer, deps)
	if err != nil {
		return nil, err
	}

	r := &run{
		inputDir: inputDir,
		conv:     conv,
		schemas:  make(map[string]*writer.Schema),
		summary:  &message.Summary{Topics: make(map[string]int)},
	}

	if err := c.convert(ctx, r); err != nil {
		_ = conv.Writer().Close()
		return nil, err
	}
	if err := conv.Writer().Close(); err != nil {
		return nil, err
	}

	r.summary.Duration = time.Since(start)
	r.summary.Bytes = counter.n
	c.metrics.SetOutputSize(counter.n)

	c.logger.Info("Conversion completed",
		zap.String("summary", r.summary.String()),
		zap.String("size", humanize.Bytes(uint64(counter.n))),
		zap.Duration("duration", r.summary.Duration),
	)
	for _, topic := range r.summary.TopicNames() {
		c.logger.Debug("Topic written", zap.String("topic", topic), zap.Int("messages", r.summary.Topics[topic]))
	}
	return r.summary, nil
}

func (c *Converter) convert(ctx context.Context, r *run) error {
	plan, err := c.prepare(r.inputDir)
	if err != nil {
		return err
	}

	c.logger.Info("Conversion plan",
		zap.String("input", r.inputDir),
		zap.String("writer_format", string(c.cfg.WriterFormat)),
		zap.Int("tabular_mappings", len(c.cfg.TabularMappings)),
		zap.Int("other_mappings", len(c.cfg.OtherMappings)),
		zap.Int("attachments", len(c.cfg.Attachments)),
		zap.Int("metadata", len(c.cfg.Metadata)),
		zap.Int("files", plan.files()),
	)

	for _, m := range plan.tabular {
		for _, rel := range m.files {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := c.timed("tabular", rel, func() error { return c.convertTable(ctx, r, rel, m.mapping) }); err != nil {
				return err
			}
			r.summary.Files++
		}
	}

	for _, m := range plan.other {
		for _, group := range groupByDir(m.files) {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := c.timed("other", group.dir, func() error { return c.convertFrames(ctx, r, group, m.mapping) }); err != nil {
				return err
			}
			r.summary.Files += len(group.files)
		}
	}

	for _, m := range plan.attachments {
		for _, rel := range m.files {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := c.timed("attachment", rel, func() error { return c.addAttachment(r, rel, m.mapping) }); err != nil {
				return err
			}
			r.summary.Attachments++
			r.summary.Files++
		}
	}

	for _, m := range plan.metadata {
		for _, rel := range m.files {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := c.timed("metadata", rel, func() error { return c.addMetadata(r, rel, m.mapping) }); err != nil {
				return err
			}
			r.summary.Metadata++
			r.summary.Files++
		}
	}
	return nil
}

// timed runs fn for file and records its duration and failure under kind.
func (c *Converter) timed(kind, file string, fn func() error) error {
	if c.opts.Progress != nil {
		c.opts.Progress(kind, file)
	}
	start := time.Now()
	err := fn()
	c.metrics.ObserveFileDuration(kind, time.Since(start).Seconds())
	if err != nil {
		c.metrics.IncConversionErrors(kind)
	}
	return err
}

// function returns the compiled function called name.
func (c *Converter) function(name string) (*template.Function, error) {
	if fn, ok := c.functions[name]; ok {
		return fn, nil
	}
	names := make([]string, 0, len(c.functions))
	for n := range c.functions {
		names = append(names, n)
	}
	slices.Sort(names)
	return nil, fmt.Errorf("%w: %s. Available functions: [%s]", apperrors.ErrUnknownFunction, name, strings.Join(names, ", "))
}

// namedSchema returns the schema registered as name, registering it on first use.
func (c *Converter) namedSchema(r *run, name string) (*writer.Schema, error) {
	if s, ok := r.schemas[name]; ok {
		return s, nil
	}
	s, err := r.conv.RegisterSchema(name)
	if err != nil {
		return nil, err
	}
	r.schemas[name] = s
	return s, nil
}

var topicReplacer = strings.NewReplacer(" ", "", ".", "", "-", "")

// topicName joins the topic prefix, the cleaned relative path and suffix.
func (c *Converter) topicName(rel, suffix string) string {
	return c.opts.TopicPrefix + topicReplacer.Replace(rel) + "/" + suffix
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}
