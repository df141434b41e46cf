// Package template renders converter function templates against table rows.
//
// Templates use text/template syntax. Function files written for Jinja need
// rewriting: a column {{ col }} becomes {{ .col }}, infix arithmetic such as
// {{ a * b }} becomes {{ mul .a .b }}, and filters like {{ x | tojson }}
// become calls, {{ tojson .x }}. Available functions are listed by
// Environment.FuncNames and in parse errors naming an undefined function.
package template

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"text/template"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	apperrors "github.com/jittakal/tabular2mcap/internal/errors"
	"github.com/jittakal/tabular2mcap/internal/mapping"
	"github.com/jittakal/tabular2mcap/pkg/message"
)

// Environment holds the functions shared by every converter function template.
type Environment struct {
	logger *zap.Logger
	funcs  template.FuncMap
}

// NewEnvironment creates a template environment.
func NewEnvironment(logger *zap.Logger) *Environment {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Environment{logger: logger}
	e.funcs = e.funcMap()
	return e
}

// FuncNames returns the sorted names of the template functions.
func (e *Environment) FuncNames() []string {
	return slices.Sorted(maps.Keys(e.funcs))
}

// Parse compiles text. Referencing a column absent from the row is an error.
func (e *Environment) Parse(name, text string) (*template.Template, error) {
	t, err := template.New(name).Option("missingkey=error").Funcs(e.funcs).Parse(text)
	if err != nil && strings.Contains(err.Error(), "not defined") {
		return nil, fmt.Errorf("%w (available functions: %s)", err, strings.Join(e.FuncNames(), ", "))
	}
	return t, err
}

// RowFunc turns a row into a message body.
type RowFunc func(row map[string]any) (map[string]any, error)

// Function is a compiled converter function.
type Function struct {
	name        string
	schemaName  string
	body        *template.Template
	logTime     *template.Template
	publishTime *template.Template
	logger      *zap.Logger
}

// NewFunction compiles the templates of def.
func NewFunction(env *Environment, name string, def mapping.FunctionDefinition) (*Function, error) {
	body, err := env.Parse(name, def.Template)
	if err != nil {
		return nil, fmt.Errorf("function %s: failed to parse template: %w", name, err)
	}
	fn := &Function{name: name, schemaName: def.SchemaName, body: body, logger: env.logger}
	if def.LogTimeTemplate != "" {
		if fn.logTime, err = env.Parse(name+".log_time", def.LogTimeTemplate); err != nil {
			return nil, fmt.Errorf("function %s: failed to parse log_time_template: %w", name, err)
		}
	}
	if def.PublishTimeTemplate != "" {
		if fn.publishTime, err = env.Parse(name+".publish_time", def.PublishTimeTemplate); err != nil {
			return nil, fmt.Errorf("function %s: failed to parse publish_time_template: %w", name, err)
		}
	}
	return fn, nil
}

// Compile compiles every function of file.
func Compile(env *Environment, file *mapping.FunctionFile) (map[string]*Function, error) {
	out := make(map[string]*Function, len(file.Functions))
	for name, def := range file.Functions {
		fn, err := NewFunction(env, name, def)
		if err != nil {
			return nil, err
		}
		out[name] = fn
	}
	return out, nil
}

// Name returns the function name.
func (f *Function) Name() string {
	return f.name
}

// SchemaName returns the schema the function declares, or "".
func (f *Function) SchemaName() string {
	return f.schemaName
}

func render(t *template.Template, row map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, row); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Convert renders the template for row and decodes the output as a JSON object.
func (f *Function) Convert(row map[string]any) (map[string]any, error) {
	out, err := render(f.body, row)
	if err != nil {
		return nil, fmt.Errorf("function %s: %w", f.name, err)
	}
	msg, err := DecodeObject([]byte(out))
	if err != nil {
		f.logger.Error("Template result is not a JSON object",
			zap.String("function", f.name),
			zap.String("result", out),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: function %s: %v: %q", apperrors.ErrInvalidTemplateOutput, f.name, err, out)
	}
	return msg, nil
}

// LogTime renders log_time_template. ok is false when the function has none.
func (f *Function) LogTime(row map[string]any) (ns uint64, ok bool, err error) {
	return f.renderTime(f.logTime, row)
}

// PublishTime renders publish_time_template. ok is false when the function has none.
func (f *Function) PublishTime(row map[string]any) (ns uint64, ok bool, err error) {
	return f.renderTime(f.publishTime, row)
}

func (f *Function) renderTime(t *template.Template, row map[string]any) (uint64, bool, error) {
	if t == nil {
		return 0, false, nil
	}
	out, err := render(t, row)
	if err != nil {
		return 0, true, fmt.Errorf("function %s: %w", f.name, err)
	}
	ns, err := parseNanos(out)
	if err != nil {
		return 0, true, fmt.Errorf("function %s: %s: %w", f.name, t.Name(), err)
	}
	return ns, true, nil
}

func parseNanos(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative time %d", n)
		}
		return uint64(n), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("time %q is not a nanosecond count", s)
	}
	if f < 0 {
		return 0, fmt.Errorf("negative time %v", f)
	}
	return uint64(f), nil
}

// Row converts row idx with fn and resolves its log and publish times.
//
// The log time comes from log_time_template, else from the message
// timestamp{sec,nsec}, else from header.stamp{sec,nanosec}.
func (f *Function) Row(idx int, row map[string]any, fn RowFunc) (message.ConvertedRow, error) {
	if fn == nil {
		fn = f.Convert
	}
	data, err := fn(row)
	if err != nil {
		return message.ConvertedRow{}, err
	}

	logTime, ok, err := f.LogTime(row)
	if err != nil {
		return message.ConvertedRow{}, err
	}
	if !ok {
		if logTime, err = MessageTime(data); err != nil {
			return message.ConvertedRow{}, fmt.Errorf("function %s: %w", f.name, err)
		}
	}

	publishTime, ok, err := f.PublishTime(row)
	if err != nil {
		return message.ConvertedRow{}, err
	}
	if !ok {
		publishTime = logTime
	}

	return message.ConvertedRow{
		Data:        data,
		LogTime:     logTime,
		PublishTime: publishTime,
		Sequence:    uint32(idx),
	}, nil
}

// MessageTime reads the nanosecond time of a message body from timestamp{sec,nsec}
// or header.stamp{sec,nanosec}.
func MessageTime(data map[string]any) (uint64, error) {
	if ts, ok := data["timestamp"].(map[string]any); ok {
		return stampNanos(ts, "nsec", "nanosec")
	}
	if header, ok := data["header"].(map[string]any); ok {
		if stamp, ok := header["stamp"].(map[string]any); ok {
			return stampNanos(stamp, "nanosec", "nsec")
		}
	}
	return 0, apperrors.ErrNoTimestamp
}

func stampNanos(stamp map[string]any, nsecKeys ...string) (uint64, error) {
	sec, err := cast.ToInt64E(stamp["sec"])
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp sec %v: %w", stamp["sec"], err)
	}
	var nsec int64
	for _, k := range nsecKeys {
		if v, ok := stamp[k]; ok {
			if nsec, err = cast.ToInt64E(v); err != nil {
				return 0, fmt.Errorf("invalid timestamp %s %v: %w", k, v, err)
			}
			break
		}
	}
	total := sec*1e9 + nsec
	if total < 0 {
		return 0, fmt.Errorf("negative timestamp %d", total)
	}
	return uint64(total), nil
}

// DecodeObject decodes a JSON object. Integral numbers become int64 and all
// other numbers float64.
func DecodeObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected data after JSON object")
	}
	if out == nil {
		return nil, fmt.Errorf("expected a JSON object, got null")
	}
	return numbers(out).(map[string]any), nil
}

func numbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		f, _ := x.Float64()
		return f
	case []any:
		for i := range x {
			x[i] = numbers(x[i])
		}
	case map[string]any:
		for k := range x {
			x[k] = numbers(x[k])
		}
	}
	return v
}
