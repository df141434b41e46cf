package ros2msg

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/spf13/cast"
)

// encapsulationHeader marks little-endian plain CDR.
var encapsulationHeader = []byte{0x00, 0x01, 0x00, 0x00}

// cdrWriter appends CDR primitives. Alignment is relative to the end of the
// encapsulation header.
type cdrWriter struct {
	buf []byte
}

func newCDRWriter(capacity int) *cdrWriter {
	buf := make([]byte, 0, capacity)
	return &cdrWriter{buf: append(buf, encapsulationHeader...)}
}

func (w *cdrWriter) align(n int) {
	for (len(w.buf)-len(encapsulationHeader))%n != 0 {
		w.buf = append(w.buf, 0)
	}
}

func (w *cdrWriter) uint8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *cdrWriter) uint16(v uint16) {
	w.align(2)
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

func (w *cdrWriter) uint32(v uint32) {
	w.align(4)
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *cdrWriter) uint64(v uint64) {
	w.align(8)
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *cdrWriter) float32(v float32) {
	w.uint32(math.Float32bits(v))
}

func (w *cdrWriter) float64(v float64) {
	w.uint64(math.Float64bits(v))
}

func (w *cdrWriter) string(s string) {
	w.uint32(uint32(len(s) + 1))
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
}

func (w *cdrWriter) bytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// Encoder serializes map messages for the root type of a definition set.
type Encoder struct {
	set *Set
}

// NewEncoder creates an encoder for set. Every referenced type must resolve.
func NewEncoder(set *Set) (*Encoder, error) {
	if err := set.Check(); err != nil {
		return nil, err
	}
	return &Encoder{set: set}, nil
}

// Encode serializes msg as the root message type.
func (e *Encoder) Encode(msg map[string]any) ([]byte, error) {
	w := newCDRWriter(256)
	if err := e.encodeStruct(w, e.set.RootDefinition(), msg, ""); err != nil {
		return nil, err
	}
	return w.buf, nil
}

func (e *Encoder) encodeStruct(w *cdrWriter, def *MessageDefinition, value any, path string) error {
	var m map[string]any
	switch v := value.(type) {
	case nil:
	case map[string]any:
		m = v
	default:
		return fmt.Errorf("field %s: expected an object for %s, got %T", displayPath(path), def.FullName(), value)
	}

	if len(def.Fields) == 0 {
		w.uint8(0)
		return nil
	}

	timeLike := def.Package == "builtin_interfaces" && (def.Name == "Time" || def.Name == "Duration")
	for _, f := range def.Fields {
		v, ok := m[f.Name]
		if !ok && timeLike && f.Name == "nanosec" {
			v = m["nsec"]
		}
		if err := e.encodeField(w, f, v, joinPath(path, f.Name)); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) encodeField(w *cdrWriter, f Field, value any, path string) error {
	if !f.IsArray {
		return e.encodeValue(w, f, value, path)
	}

	if isByteType(f.Type) {
		if b, ok, err := byteValue(value); ok {
			if err != nil {
				return fmt.Errorf("field %s: %w", path, err)
			}
			if err := checkLength(f, len(b), path); err != nil {
				return err
			}
			if f.ArrayLength < 0 {
				w.uint32(uint32(len(b)))
			}
			w.bytes(b)
			if f.ArrayLength > len(b) {
				w.bytes(make([]byte, f.ArrayLength-len(b)))
			}
			return nil
		}
	}

	items, err := listValue(value)
	if err != nil {
		return fmt.Errorf("field %s: %w", path, err)
	}
	if err := checkLength(f, len(items), path); err != nil {
		return err
	}
	if f.ArrayLength < 0 {
		w.uint32(uint32(len(items)))
	}
	for i, item := range items {
		if err := e.encodeValue(w, f, item, fmt.Sprintf("%s[%d]", path, i)); err != nil {
			return err
		}
	}
	// A missing fixed array encodes zero values.
	for i := len(items); i < f.ArrayLength; i++ {
		if err := e.encodeValue(w, f, nil, fmt.Sprintf("%s[%d]", path, i)); err != nil {
			return err
		}
	}
	return nil
}

func checkLength(f Field, n int, path string) error {
	switch {
	case f.ArrayLength >= 0 && n != 0 && n != f.ArrayLength:
		return fmt.Errorf("field %s: expected %d elements, got %d", path, f.ArrayLength, n)
	case f.UpperBound > 0 && n > f.UpperBound:
		return fmt.Errorf("field %s: %d elements exceed bound %d", path, n, f.UpperBound)
	}
	return nil
}

func (e *Encoder) encodeValue(w *cdrWriter, f Field, value any, path string) error {
	fail := func(err error) error {
		return fmt.Errorf("field %s: cannot encode %v (%T) as %s: %w", path, value, value, f.TypeName, err)
	}

	switch f.Type {
	case FieldTypeBool:
		v, err := cast.ToBoolE(orZero(value))
		if err != nil {
			return fail(err)
		}
		if v {
			w.uint8(1)
		} else {
			w.uint8(0)
		}
	case FieldTypeByte, FieldTypeChar, FieldTypeUint8:
		v, err := cast.ToUint8E(orZero(value))
		if err != nil {
			return fail(err)
		}
		w.uint8(v)
	case FieldTypeInt8:
		v, err := cast.ToInt8E(orZero(value))
		if err != nil {
			return fail(err)
		}
		w.uint8(uint8(v))
	case FieldTypeInt16:
		v, err := cast.ToInt16E(orZero(value))
		if err != nil {
			return fail(err)
		}
		w.uint16(uint16(v))
	case FieldTypeUint16:
		v, err := cast.ToUint16E(orZero(value))
		if err != nil {
			return fail(err)
		}
		w.uint16(v)
	case FieldTypeInt32:
		v, err := cast.ToInt32E(orZero(value))
		if err != nil {
			return fail(err)
		}
		w.uint32(uint32(v))
	case FieldTypeUint32:
		v, err := cast.ToUint32E(orZero(value))
		if err != nil {
			return fail(err)
		}
		w.uint32(v)
	case FieldTypeInt64:
		v, err := cast.ToInt64E(orZero(value))
		if err != nil {
			return fail(err)
		}
		w.uint64(uint64(v))
	case FieldTypeUint64:
		v, err := cast.ToUint64E(orZero(value))
		if err != nil {
			return fail(err)
		}
		w.uint64(v)
	case FieldTypeFloat32:
		v, err := cast.ToFloat32E(orZero(value))
		if err != nil {
			return fail(err)
		}
		w.float32(v)
	case FieldTypeFloat64:
		v, err := cast.ToFloat64E(orZero(value))
		if err != nil {
			return fail(err)
		}
		w.float64(v)
	case FieldTypeString:
		s := ""
		switch v := value.(type) {
		case nil:
		case map[string]any, []any:
			// Nested values of generic columns are carried as JSON text.
			b, err := json.Marshal(v)
			if err != nil {
				return fail(err)
			}
			s = string(b)
		default:
			var err error
			if s, err = cast.ToStringE(value); err != nil {
				return fail(err)
			}
		}
		if f.StringBound > 0 && len(s) > f.StringBound {
			return fmt.Errorf("field %s: string length %d exceeds bound %d", path, len(s), f.StringBound)
		}
		w.string(s)
	case FieldTypeWString:
		return fmt.Errorf("field %s: wstring is not supported", path)
	case FieldTypeComplex:
		def, ok := e.set.Lookup(f.TypeName)
		if !ok {
			return fmt.Errorf("field %s: %w: %s", path, errUnresolvedMsgType, f.TypeName)
		}
		return e.encodeStruct(w, def, value, path)
	default:
		return fmt.Errorf("field %s: unknown field type %d", path, f.Type)
	}
	return nil
}

// orZero maps nil to 0 so missing numeric fields encode as zero.
func orZero(v any) any {
	if v == nil {
		return 0
	}
	return v
}

func isByteType(t FieldType) bool {
	return t == FieldTypeUint8 || t == FieldTypeByte || t == FieldTypeChar
}

// byteValue extracts raw bytes from []byte or base64 text. ok is false for
// other values, which are then encoded element by element.
func byteValue(v any) ([]byte, bool, error) {
	switch x := v.(type) {
	case []byte:
		return x, true, nil
	case string:
		b, err := base64.StdEncoding.DecodeString(x)
		if err != nil {
			return nil, true, fmt.Errorf("invalid base64 data: %w", err)
		}
		return b, true, nil
	}
	return nil, false, nil
}

func listValue(v any) ([]any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []any:
		return x, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("expected a list, got %T", v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func displayPath(path string) string {
	if path == "" {
		return "<root>"
	}
	return path
}

// String renders the definition back to .msg text with resolved type names.
func (d *MessageDefinition) String() string {
	var b strings.Builder
	for _, c := range d.Constants {
		fmt.Fprintf(&b, "%s %s=%s\n", c.TypeName, c.Name, c.Value)
	}
	for _, f := range d.Fields {
		b.WriteString(f.TypeName)
		if f.StringBound > 0 {
			fmt.Fprintf(&b, "<=%d", f.StringBound)
		}
		switch {
		case f.IsArray && f.ArrayLength >= 0:
			fmt.Fprintf(&b, "[%d]", f.ArrayLength)
		case f.IsArray && f.UpperBound > 0:
			fmt.Fprintf(&b, "[<=%d]", f.UpperBound)
		case f.IsArray:
			b.WriteString("[]")
		}
		b.WriteString(" ")
		b.WriteString(f.Name)
		if f.Default != "" {
			b.WriteString(" ")
			b.WriteString(f.Default)
		}
		b.WriteString("\n")
	}
	return b.String()
}
