// Package ros2msg parses ROS 2 .msg definitions and encodes messages as CDR.
package ros2msg

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	errInvalidField      = errors.New("invalid field definition")
	errUnresolvedMsgType = errors.New("failed to resolve a complex message type")
)

// FieldType is the primitive kind of a field, or FieldTypeComplex.
type FieldType uint8

const (
	FieldTypeBool FieldType = iota + 1
	FieldTypeByte
	FieldTypeChar
	FieldTypeInt8
	FieldTypeUint8
	FieldTypeInt16
	FieldTypeUint16
	FieldTypeInt32
	FieldTypeUint32
	FieldTypeInt64
	FieldTypeUint64
	FieldTypeFloat32
	FieldTypeFloat64
	FieldTypeString
	FieldTypeWString
	FieldTypeComplex
)

var primitiveTypes = map[string]FieldType{
	"bool":    FieldTypeBool,
	"byte":    FieldTypeByte,
	"char":    FieldTypeChar,
	"int8":    FieldTypeInt8,
	"uint8":   FieldTypeUint8,
	"int16":   FieldTypeInt16,
	"uint16":  FieldTypeUint16,
	"int32":   FieldTypeInt32,
	"uint32":  FieldTypeUint32,
	"int64":   FieldTypeInt64,
	"uint64":  FieldTypeUint64,
	"float32": FieldTypeFloat32,
	"float64": FieldTypeFloat64,
	"string":  FieldTypeString,
	"wstring": FieldTypeWString,
}

// IsPrimitive reports whether name is a builtin field type.
func IsPrimitive(name string) bool {
	_, ok := primitiveTypes[name]
	return ok
}

// size returns the encoded width of fixed-size primitives, or 0.
func (t FieldType) size() int {
	switch t {
	case FieldTypeBool, FieldTypeByte, FieldTypeChar, FieldTypeInt8, FieldTypeUint8:
		return 1
	case FieldTypeInt16, FieldTypeUint16:
		return 2
	case FieldTypeInt32, FieldTypeUint32, FieldTypeFloat32:
		return 4
	case FieldTypeInt64, FieldTypeUint64, FieldTypeFloat64:
		return 8
	}
	return 0
}

// Field is one field of a message definition.
type Field struct {
	Name string
	Type FieldType
	// TypeName is the primitive name or the resolved "pkg/Name" of a complex type.
	TypeName string
	IsArray  bool
	// ArrayLength is the length of a fixed array, or -1 for sequences.
	ArrayLength int
	// UpperBound limits bounded sequences (type[<=N]); 0 means unbounded.
	UpperBound int
	// StringBound limits bounded strings (string<=N); 0 means unbounded.
	StringBound int
	Default     string
}

// Constant is a NAME=value line.
type Constant struct {
	Name     string
	TypeName string
	Value    string
}

// MessageDefinition is one parsed .msg definition.
type MessageDefinition struct {
	Package   string
	Name      string
	Fields    []Field
	Constants []Constant
}

// FullName returns "pkg/Name".
func (d *MessageDefinition) FullName() string {
	return d.Package + "/" + d.Name
}

// Dependencies returns the complex type names referenced by the fields, in order,
// without duplicates.
func (d *MessageDefinition) Dependencies() []string {
	var deps []string
	seen := make(map[string]bool)
	for _, f := range d.Fields {
		if f.Type == FieldTypeComplex && !seen[f.TypeName] {
			seen[f.TypeName] = true
			deps = append(deps, f.TypeName)
		}
	}
	return deps
}

// NormalizeName reduces "pkg/msg/Name" to "pkg/Name".
func NormalizeName(name string) string {
	parts := strings.Split(strings.TrimSpace(name), "/")
	if len(parts) == 3 && parts[1] == "msg" {
		return parts[0] + "/" + parts[2]
	}
	return strings.Join(parts, "/")
}

// SplitName returns the package and message name of "pkg/Name" or "pkg/msg/Name".
func SplitName(name string) (pkg, msg string, err error) {
	parts := strings.Split(NormalizeName(name), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid message type name %q", name)
	}
	return parts[0], parts[1], nil
}

// resolveTypeName qualifies a complex type reference relative to pkg.
func resolveTypeName(pkg, ref string) string {
	switch ref {
	case "Header":
		return "std_msgs/Header"
	case "time":
		return "builtin_interfaces/Time"
	case "duration":
		return "builtin_interfaces/Duration"
	}
	if !strings.Contains(ref, "/") {
		return pkg + "/" + ref
	}
	return NormalizeName(ref)
}

// Parse parses the text of a single definition.
func Parse(pkg, name, text string) (*MessageDefinition, error) {
	def := &MessageDefinition{Package: pkg, Name: name}
	scanner := bufio.NewScanner(strings.NewReader(text))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := def.parseLine(scanner.Text()); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", def.FullName(), lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return def, nil
}

func (d *MessageDefinition) parseLine(line string) error {
	line = strings.TrimSpace(line)
	if line == "" || line[0] == '#' {
		return nil
	}

	typeEnd := strings.IndexAny(line, " \t")
	if typeEnd == -1 {
		return fmt.Errorf("%w: %q", errInvalidField, line)
	}
	typ := line[:typeEnd]
	rest := strings.TrimSpace(line[typeEnd:])

	// String constants keep '#' in their value.
	isString := strings.HasPrefix(typ, "string") || strings.HasPrefix(typ, "wstring")
	eq := strings.IndexByte(rest, '=')
	hash := strings.IndexByte(rest, '#')
	if !(isString && eq != -1 && (hash == -1 || eq < hash)) && hash != -1 {
		rest = strings.TrimSpace(rest[:hash])
	}
	if rest == "" {
		return fmt.Errorf("%w: missing field name in %q", errInvalidField, line)
	}

	if eq := strings.IndexByte(rest, '='); eq != -1 {
		name := strings.TrimSpace(rest[:eq])
		value := strings.TrimSpace(rest[eq+1:])
		if name == "" {
			return fmt.Errorf("%w: constant without a name in %q", errInvalidField, line)
		}
		d.Constants = append(d.Constants, Constant{Name: name, TypeName: typ, Value: value})
		return nil
	}

	field := Field{ArrayLength: -1}
	nameEnd := strings.IndexAny(rest, " \t")
	if nameEnd == -1 {
		field.Name = rest
	} else {
		field.Name = rest[:nameEnd]
		field.Default = strings.TrimSpace(rest[nameEnd:])
	}

	if open := strings.IndexByte(typ, '['); open != -1 {
		end := strings.IndexByte(typ, ']')
		if end < open || end != len(typ)-1 {
			return fmt.Errorf("%w: malformed array type %q", errInvalidField, typ)
		}
		field.IsArray = true
		bound := typ[open+1 : end]
		switch {
		case bound == "":
		case strings.HasPrefix(bound, "<="):
			n, err := strconv.Atoi(bound[2:])
			if err != nil || n <= 0 {
				return fmt.Errorf("%w: invalid sequence bound %q", errInvalidField, typ)
			}
			field.UpperBound = n
		default:
			n, err := strconv.Atoi(bound)
			if err != nil || n <= 0 {
				return fmt.Errorf("%w: invalid array length %q", errInvalidField, typ)
			}
			field.ArrayLength = n
		}
		typ = typ[:open]
	}

	if le := strings.Index(typ, "<="); le != -1 {
		n, err := strconv.Atoi(typ[le+2:])
		if err != nil || n <= 0 {
			return fmt.Errorf("%w: invalid string bound %q", errInvalidField, typ)
		}
		field.StringBound = n
		typ = typ[:le]
	}

	if t, ok := primitiveTypes[typ]; ok {
		field.Type = t
		field.TypeName = typ
	} else {
		field.Type = FieldTypeComplex
		field.TypeName = resolveTypeName(d.Package, typ)
	}
	d.Fields = append(d.Fields, field)
	return nil
}

// Set is a root definition plus every definition it depends on.
type Set struct {
	Root string
	defs map[string]*MessageDefinition
}

// NewSet creates a set rooted at root.
func NewSet(root *MessageDefinition) *Set {
	s := &Set{Root: root.FullName(), defs: map[string]*MessageDefinition{}}
	s.Add(root)
	return s
}

// Add registers def.
func (s *Set) Add(def *MessageDefinition) {
	s.defs[def.FullName()] = def
}

// Lookup returns the definition for "pkg/Name" or "pkg/msg/Name". The
// builtin_interfaces Time and Duration types are always available.
func (s *Set) Lookup(name string) (*MessageDefinition, bool) {
	name = NormalizeName(name)
	if def, ok := s.defs[name]; ok {
		return def, true
	}
	if def, ok := builtinDefinitions[name]; ok {
		return def, true
	}
	return nil, false
}

// RootDefinition returns the root message definition.
func (s *Set) RootDefinition() *MessageDefinition {
	return s.defs[s.Root]
}

// Check reports the first complex field type that cannot be resolved.
func (s *Set) Check() error {
	for _, def := range s.defs {
		for _, f := range def.Fields {
			if f.Type != FieldTypeComplex {
				continue
			}
			if _, ok := s.Lookup(f.TypeName); !ok {
				return fmt.Errorf("%w: %s (field %s of %s)", errUnresolvedMsgType, f.TypeName, f.Name, def.FullName())
			}
		}
	}
	return nil
}

var builtinDefinitions = map[string]*MessageDefinition{
	"builtin_interfaces/Time": {
		Package: "builtin_interfaces", Name: "Time",
		Fields: []Field{
			{Name: "sec", Type: FieldTypeInt32, TypeName: "int32", ArrayLength: -1},
			{Name: "nanosec", Type: FieldTypeUint32, TypeName: "uint32", ArrayLength: -1},
		},
	},
	"builtin_interfaces/Duration": {
		Package: "builtin_interfaces", Name: "Duration",
		Fields: []Field{
			{Name: "sec", Type: FieldTypeInt32, TypeName: "int32", ArrayLength: -1},
			{Name: "nanosec", Type: FieldTypeUint32, TypeName: "uint32", ArrayLength: -1},
		},
	},
}

// ParseSchema parses a concatenated schema: the root definition followed by
// dependencies, each introduced by a line of '=' and a "MSG: pkg/Name" line.
func ParseSchema(root, text string) (*Set, error) {
	pkg, name, err := SplitName(root)
	if err != nil {
		return nil, err
	}

	type section struct {
		pkg, name string
		lines     []string
	}
	sections := []*section{{pkg: pkg, name: name}}
	cur := sections[0]

	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "===") && strings.Trim(trimmed, "=") == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "MSG:") {
			depPkg, depName, err := SplitName(strings.TrimSpace(strings.TrimPrefix(trimmed, "MSG:")))
			if err != nil {
				return nil, err
			}
			cur = &section{pkg: depPkg, name: depName}
			sections = append(sections, cur)
			continue
		}
		cur.lines = append(cur.lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	var set *Set
	for _, sec := range sections {
		def, err := Parse(sec.pkg, sec.name, strings.Join(sec.lines, "\n"))
		if err != nil {
			return nil, err
		}
		if set == nil {
			set = NewSet(def)
			continue
		}
		set.Add(def)
	}
	if err := set.Check(); err != nil {
		return nil, err
	}
	return set, nil
}
