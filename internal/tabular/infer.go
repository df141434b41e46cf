package tabular

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jittakal/tabular2mcap/pkg/tabular"
)

// naValues are cells read as null.
var naValues = map[string]struct{}{
	"": {}, "NaN": {}, "nan": {}, "-NaN": {}, "-nan": {}, "NA": {}, "N/A": {}, "n/a": {},
	"NULL": {}, "null": {}, "None": {}, "<NA>": {}, "#N/A": {}, "#N/A N/A": {}, "#NA": {},
	"1.#IND": {}, "-1.#IND": {}, "1.#QNAN": {}, "-1.#QNAN": {},
}

var boolValues = map[string]bool{
	"True": true, "true": true, "TRUE": true,
	"False": false, "false": false, "FALSE": false,
}

// IsNA reports whether a raw text cell is a null marker.
func IsNA(cell string) bool {
	_, ok := naValues[cell]
	return ok
}

// inferStrings types a column of raw text cells.
//
// Integer columns containing nulls are widened to float, as dataframe readers do.
// A column with no non-null cells is a float column of nulls.
func inferStrings(name string, cells []string) (tabular.Column, []any) {
	values := make([]any, len(cells))
	nulls := 0
	for _, c := range cells {
		if IsNA(c) {
			nulls++
		}
	}
	if nulls == len(cells) {
		return tabular.Column{Name: name, Kind: tabular.KindFloat, Bits: 64}, values
	}

	if allCells(cells, func(c string) bool { _, ok := boolValues[c]; return ok }) {
		for i, c := range cells {
			if !IsNA(c) {
				values[i] = boolValues[c]
			}
		}
		return tabular.Column{Name: name, Kind: tabular.KindBool}, values
	}

	if allCells(cells, func(c string) bool { _, err := strconv.ParseInt(strings.TrimSpace(c), 10, 64); return err == nil }) {
		for i, c := range cells {
			if IsNA(c) {
				continue
			}
			n, _ := strconv.ParseInt(strings.TrimSpace(c), 10, 64)
			if nulls > 0 {
				values[i] = float64(n)
			} else {
				values[i] = n
			}
		}
		if nulls > 0 {
			return tabular.Column{Name: name, Kind: tabular.KindFloat, Bits: 64}, values
		}
		return tabular.Column{Name: name, Kind: tabular.KindInt, Bits: 64}, values
	}

	if allCells(cells, func(c string) bool { _, err := strconv.ParseFloat(strings.TrimSpace(c), 64); return err == nil }) {
		for i, c := range cells {
			if !IsNA(c) {
				values[i], _ = strconv.ParseFloat(strings.TrimSpace(c), 64)
			}
		}
		return tabular.Column{Name: name, Kind: tabular.KindFloat, Bits: 64}, values
	}

	for i, c := range cells {
		if !IsNA(c) {
			values[i] = c
		}
	}
	return tabular.Column{Name: name, Kind: tabular.KindString}, values
}

// allCells reports whether every non-null cell satisfies ok.
func allCells(cells []string, ok func(string) bool) bool {
	for _, c := range cells {
		if IsNA(c) {
			continue
		}
		if !ok(c) {
			return false
		}
	}
	return true
}

// inferValues types a column of decoded JSON values (numbers as json.Number).
func inferValues(name string, raw []any) (tabular.Column, []any) {
	values := make([]any, len(raw))
	var (
		nulls, ints, floats, bools, strs, lists, objects int
	)
	for i, v := range raw {
		v = normalizeJSON(v)
		values[i] = v
		switch v.(type) {
		case nil:
			nulls++
		case int64:
			ints++
		case float64:
			floats++
		case bool:
			bools++
		case string:
			strs++
		case []any:
			lists++
		case map[string]any:
			objects++
		}
	}
	nonNull := len(raw) - nulls

	switch {
	case nonNull == 0:
		return tabular.Column{Name: name, Kind: tabular.KindFloat, Bits: 64}, values
	case ints == nonNull && nulls == 0:
		return tabular.Column{Name: name, Kind: tabular.KindInt, Bits: 64}, values
	case ints+floats == nonNull:
		for i, v := range values {
			if n, ok := v.(int64); ok {
				values[i] = float64(n)
			}
		}
		return tabular.Column{Name: name, Kind: tabular.KindFloat, Bits: 64}, values
	case bools == nonNull:
		return tabular.Column{Name: name, Kind: tabular.KindBool}, values
	case strs == nonNull:
		return tabular.Column{Name: name, Kind: tabular.KindString}, values
	case lists == nonNull:
		return tabular.Column{Name: name, Kind: tabular.KindList, Elem: listElemKind(values)}, values
	case objects == nonNull:
		return tabular.Column{Name: name, Kind: tabular.KindObject}, values
	}

	// Mixed scalar types are carried as text.
	for i, v := range values {
		if v == nil {
			continue
		}
		if _, ok := v.(string); ok {
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			values[i] = fmt.Sprint(v)
			continue
		}
		values[i] = string(b)
	}
	return tabular.Column{Name: name, Kind: tabular.KindString}, values
}

// normalizeJSON converts json.Number to int64 or float64, recursively.
func normalizeJSON(v any) any {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		f, _ := x.Float64()
		return f
	case []any:
		for i := range x {
			x[i] = normalizeJSON(x[i])
		}
		return x
	case map[string]any:
		for k := range x {
			x[k] = normalizeJSON(x[k])
		}
		return x
	}
	return v
}

// listElemKind returns the kind of the first element found in any list value.
func listElemKind(values []any) tabular.Kind {
	for _, v := range values {
		list, ok := v.([]any)
		if !ok || len(list) == 0 {
			continue
		}
		return KindOf(list[0])
	}
	return tabular.KindNull
}

// KindOf returns the kind of a single row value.
func KindOf(v any) tabular.Kind {
	switch v.(type) {
	case string:
		return tabular.KindString
	case int64, int32, int:
		return tabular.KindInt
	case uint64, uint32:
		return tabular.KindUint
	case float64, float32:
		return tabular.KindFloat
	case bool:
		return tabular.KindBool
	case time.Time:
		return tabular.KindTime
	case []any:
		return tabular.KindList
	case map[string]any:
		return tabular.KindObject
	case []byte:
		return tabular.KindBytes
	}
	return tabular.KindNull
}
