package template

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"text/template"

	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// metersPerDegree is the length of one degree of latitude used by latlon_to_utm.
const metersPerDegree = 111320.0

func (e *Environment) funcMap() template.FuncMap {
	return template.FuncMap{
		"pi":    func() float64 { return math.Pi },
		"cos":   unary(math.Cos),
		"sin":   unary(math.Sin),
		"tan":   unary(math.Tan),
		"sqrt":  unary(math.Sqrt),
		"log":   unary(math.Log),
		"exp":   unary(math.Exp),
		"floor": unary(math.Floor),
		"ceil":  unary(math.Ceil),
		"abs":   absValue,
		"min":   minValue,
		"max":   maxValue,
		"round": roundValue,
		"pow": func(x, y any) (float64, error) {
			a, b, err := floats(x, y)
			if err != nil {
				return 0, err
			}
			return math.Pow(a, b), nil
		},

		"add": arith(func(a, b int64) int64 { return a + b }, func(a, b float64) float64 { return a + b }),
		"sub": arith(func(a, b int64) int64 { return a - b }, func(a, b float64) float64 { return a - b }),
		"mul": arith(func(a, b int64) int64 { return a * b }, func(a, b float64) float64 { return a * b }),
		"div": divValue,
		"mod": modValue,

		"int":   toInt,
		"float": cast.ToFloat64E,
		"str":   cast.ToStringE,

		"tojson":  toJSON,
		"list":    func(items ...any) []any { return items },
		"default": defaultValue,
		"isnull":  isNull,

		"sec":  secPart,
		"nsec": nsecPart,
		"ns":   toNanos,

		"euler_to_quaternion": e.eulerToQuaternion,
		"latlon_to_utm":       latLonToUTM,
	}
}

func unary(fn func(float64) float64) func(any) (float64, error) {
	return func(x any) (float64, error) {
		f, err := cast.ToFloat64E(x)
		if err != nil {
			return 0, err
		}
		return fn(f), nil
	}
}

func floats(x, y any) (float64, float64, error) {
	a, err := cast.ToFloat64E(x)
	if err != nil {
		return 0, 0, err
	}
	b, err := cast.ToFloat64E(y)
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

// isIntegral reports whether v is a Go integer type.
func isIntegral(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	}
	return false
}

func arith(ints func(a, b int64) int64, fs func(a, b float64) float64) func(x, y any) (any, error) {
	return func(x, y any) (any, error) {
		if isIntegral(x) && isIntegral(y) {
			return ints(cast.ToInt64(x), cast.ToInt64(y)), nil
		}
		a, b, err := floats(x, y)
		if err != nil {
			return nil, err
		}
		return fs(a, b), nil
	}
}

func divValue(x, y any) (float64, error) {
	a, b, err := floats(x, y)
	if err != nil {
		return 0, err
	}
	if b == 0 {
		return 0, fmt.Errorf("division by zero")
	}
	return a / b, nil
}

// modValue takes the sign of the divisor.
func modValue(x, y any) (any, error) {
	if isIntegral(x) && isIntegral(y) {
		a, b := cast.ToInt64(x), cast.ToInt64(y)
		if b == 0 {
			return nil, fmt.Errorf("modulo by zero")
		}
		m := a % b
		if m != 0 && (m < 0) != (b < 0) {
			m += b
		}
		return m, nil
	}
	a, b, err := floats(x, y)
	if err != nil {
		return nil, err
	}
	if b == 0 {
		return nil, fmt.Errorf("modulo by zero")
	}
	m := math.Mod(a, b)
	if m != 0 && (m < 0) != (b < 0) {
		m += b
	}
	return m, nil
}

func absValue(x any) (any, error) {
	if isIntegral(x) {
		n := cast.ToInt64(x)
		if n < 0 {
			n = -n
		}
		return n, nil
	}
	f, err := cast.ToFloat64E(x)
	if err != nil {
		return nil, err
	}
	return math.Abs(f), nil
}

// minValue accepts either several values or a single list.
func minValue(args ...any) (float64, error) {
	return reduce(args, math.Min)
}

func maxValue(args ...any) (float64, error) {
	return reduce(args, math.Max)
}

func reduce(args []any, fn func(a, b float64) float64) (float64, error) {
	if len(args) == 1 {
		if list, ok := args[0].([]any); ok {
			args = list
		}
	}
	if len(args) == 0 {
		return 0, fmt.Errorf("expected at least one value")
	}
	out, err := cast.ToFloat64E(args[0])
	if err != nil {
		return 0, err
	}
	for _, a := range args[1:] {
		f, err := cast.ToFloat64E(a)
		if err != nil {
			return 0, err
		}
		out = fn(out, f)
	}
	return out, nil
}

// roundValue rounds half to even, optionally to a number of decimal places.
func roundValue(x any, places ...int) (float64, error) {
	f, err := cast.ToFloat64E(x)
	if err != nil {
		return 0, err
	}
	if len(places) == 0 || places[0] == 0 {
		return math.RoundToEven(f), nil
	}
	scale := math.Pow(10, float64(places[0]))
	return math.RoundToEven(f*scale) / scale, nil
}

// toInt truncates toward zero. Numeric strings with a fraction are accepted.
func toInt(x any) (int64, error) {
	if n, err := cast.ToInt64E(x); err == nil {
		return n, nil
	}
	f, err := cast.ToFloat64E(x)
	if err != nil {
		return 0, fmt.Errorf("cannot convert %v (%T) to int", x, x)
	}
	return int64(f), nil
}

func toJSON(v any) (string, error) {
	b, err := json.Marshal(jsonSafe(v))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// jsonSafe replaces NaN and infinities with nil, recursively.
func jsonSafe(v any) any {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
	case float32:
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return nil
		}
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = jsonSafe(x[i])
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k := range x {
			out[k] = jsonSafe(x[k])
		}
		return out
	}
	return v
}

// defaultValue returns def when v is null or an empty string. The value comes
// last so it can be piped: {{ .speed | default 0 }}.
func defaultValue(def, v any) any {
	if isNull(v) {
		return def
	}
	if s, ok := v.(string); ok && s == "" {
		return def
	}
	return v
}

func isNull(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(x)
	case float32:
		return math.IsNaN(float64(x))
	}
	return false
}

// secPart returns the whole seconds of a float seconds value.
func secPart(x any) (int64, error) {
	f, err := cast.ToFloat64E(x)
	if err != nil {
		return 0, err
	}
	s, _ := splitSeconds(f)
	return s, nil
}

// nsecPart returns the nanosecond remainder of a float seconds value.
func nsecPart(x any) (int64, error) {
	f, err := cast.ToFloat64E(x)
	if err != nil {
		return 0, err
	}
	_, ns := splitSeconds(f)
	return ns, nil
}

func splitSeconds(f float64) (int64, int64) {
	sec := math.Floor(f)
	ns := int64(math.Round((f - sec) * 1e9))
	if ns >= 1e9 {
		return int64(sec) + 1, ns - 1e9
	}
	return int64(sec), ns
}

func toNanos(x any) (int64, error) {
	if isIntegral(x) {
		return cast.ToInt64(x) * 1e9, nil
	}
	f, err := cast.ToFloat64E(x)
	if err != nil {
		return 0, err
	}
	return int64(math.Round(f * 1e9)), nil
}

// Quaternion is a unit rotation quaternion.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

func (a Quaternion) mul(b Quaternion) Quaternion {
	return Quaternion{
		W: a.W*b.W - a.X*b.X - a.Y*b.Y - a.Z*b.Z,
		X: a.W*b.X + a.X*b.W + a.Y*b.Z - a.Z*b.Y,
		Y: a.W*b.Y - a.X*b.Z + a.Y*b.W + a.Z*b.X,
		Z: a.W*b.Z + a.X*b.Y - a.Y*b.X + a.Z*b.W,
	}
}

func axisRotation(axis byte, rad float64) Quaternion {
	s, c := math.Sincos(rad / 2)
	switch axis {
	case 'x':
		return Quaternion{X: s, W: c}
	case 'y':
		return Quaternion{Y: s, W: c}
	default:
		return Quaternion{Z: s, W: c}
	}
}

// EulerToQuaternion converts three angles in degrees to a Quaternion.
// A lower-case sequence is extrinsic, an upper-case one intrinsic.
func EulerToQuaternion(angles [3]float64, seq string) (Quaternion, error) {
	if len(seq) != 3 {
		return Quaternion{}, fmt.Errorf("rotation sequence must have 3 axes, got %q", seq)
	}
	intrinsic := strings.ToUpper(seq) == seq
	lower := strings.ToLower(seq)
	if !intrinsic && lower != seq {
		return Quaternion{}, fmt.Errorf("rotation sequence %q mixes intrinsic and extrinsic axes", seq)
	}
	for i := 0; i < 3; i++ {
		if !strings.ContainsRune("xyz", rune(lower[i])) {
			return Quaternion{}, fmt.Errorf("invalid axis %q in rotation sequence %q", lower[i], seq)
		}
		if i > 0 && lower[i] == lower[i-1] {
			return Quaternion{}, fmt.Errorf("consecutive axes must differ in rotation sequence %q", seq)
		}
	}

	q := Quaternion{W: 1}
	for i := 0; i < 3; i++ {
		r := axisRotation(lower[i], angles[i]*math.Pi/180)
		if intrinsic {
			q = q.mul(r)
		} else {
			q = r.mul(q)
		}
	}
	return q, nil
}

func (e *Environment) eulerToQuaternion(angles any, seq ...string) string {
	identity := `{"x":0,"y":0,"z":0,"w":1}`
	order := "xyz"
	if len(seq) > 0 {
		order = seq[0]
	}

	list, err := cast.ToSliceE(angles)
	if err != nil {
		if fs, ok := angles.([]float64); ok {
			list = make([]any, len(fs))
			for i := range fs {
				list[i] = fs[i]
			}
			err = nil
		}
	}
	if err != nil || len(list) != 3 {
		e.logger.Warn("Invalid euler angles format", zap.Any("euler_angles", angles))
		return identity
	}

	var a [3]float64
	for i, v := range list {
		f, err := cast.ToFloat64E(v)
		if err != nil {
			e.logger.Warn("Invalid euler angle", zap.Any("euler_angles", angles), zap.Error(err))
			return identity
		}
		a[i] = f
	}

	q, err := EulerToQuaternion(a, order)
	if err != nil {
		e.logger.Error("Error converting euler angles to Quaternion", zap.Error(err))
		return identity
	}
	b, _ := json.Marshal(q)
	return string(b)
}

// latLonToUTM is a local equirectangular approximation, adequate for small areas.
func latLonToUTM(lat, lon any, height ...any) (string, error) {
	la, lo, err := floats(lat, lon)
	if err != nil {
		return "", err
	}
	h := 0.0
	if len(height) > 0 {
		if h, err = cast.ToFloat64E(height[0]); err != nil {
			return "", err
		}
	}
	out := struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
		Z float64 `json:"z"`
	}{
		X: lo * metersPerDegree * math.Cos(la*math.Pi/180),
		Y: la * metersPerDegree,
		Z: h,
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
