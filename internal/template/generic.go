package template

import (
	"math"
	"time"
)

// KeyPair maps a message field onto the row column it is copied from.
type KeyPair struct {
	MessageKey string
	RowKey     string
}

// SameKeys pairs every key with itself.
func SameKeys(keys []string) []KeyPair {
	pairs := make([]KeyPair, len(keys))
	for i, k := range keys {
		pairs[i] = KeyPair{MessageKey: k, RowKey: k}
	}
	return pairs
}

// Generic returns a RowFunc that runs base (when set) and then copies every
// keyed column into the message, overwriting fields base produced.
func Generic(keys []KeyPair, base RowFunc) RowFunc {
	return func(row map[string]any) (map[string]any, error) {
		msg := map[string]any{}
		if base != nil {
			out, err := base(row)
			if err != nil {
				return nil, err
			}
			if out != nil {
				msg = out
			}
		}
		for _, k := range keys {
			msg[k.MessageKey] = genericValue(row[k.RowKey])
		}
		return msg, nil
	}
}

func genericValue(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case float64:
		if math.IsNaN(x) {
			return nil
		}
	case float32:
		if math.IsNaN(float64(x)) {
			return nil
		}
	}
	return v
}
