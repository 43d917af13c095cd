package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/vektah/gqlparser/v2/ast"
)

// object is a JSON object that keeps the query's field order.
type object struct {
	keys   []string
	values []any
}

func newObject(size int) *object {
	return &object{
		keys:   make([]string, 0, size),
		values: make([]any, 0, size),
	}
}

func (o *object) set(key string, value any) {
	o.keys = append(o.keys, key)
	o.values = append(o.values, value)
}

// MarshalJSON implements json.Marshaler.
func (o *object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(o.values[i])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", key, err)
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// serializeLeaf coerces an upstream JSON value to the output form of a
// scalar or enum type.
func serializeLeaf(def *ast.Definition, val any) (any, error) {
	if def.Kind == ast.Enum {
		s, ok := val.(string)
		if !ok || def.EnumValues.ForName(s) == nil {
			return nil, fmt.Errorf("%v is not a valid %s value", val, def.Name)
		}
		return s, nil
	}

	switch def.Name {
	case "String":
		return serializeString(val)
	case "ID":
		return IDString(val)
	case "Int":
		return serializeInt(val)
	case "Float":
		return serializeFloat(val)
	case "Boolean":
		b, ok := val.(bool)
		if !ok {
			return nil, fmt.Errorf("cannot represent %T as Boolean", val)
		}
		return b, nil
	default:
		return val, nil
	}
}

func serializeString(val any) (string, error) {
	switch v := val.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case json.Number:
		return v.String(), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	default:
		return "", fmt.Errorf("cannot represent %T as String", val)
	}
}

// IDString coerces an ID value (string or integral number, as found in
// arguments, variables and upstream JSON) to its string form.
func IDString(val any) (string, error) {
	switch v := val.(type) {
	case string:
		return v, nil
	case json.Number:
		if _, err := v.Int64(); err != nil {
			return "", fmt.Errorf("cannot represent %s as ID", v)
		}
		return v.String(), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return "", fmt.Errorf("cannot represent %v as ID", v)
		}
		return strconv.FormatFloat(v, 'f', 0, 64), nil
	default:
		return "", fmt.Errorf("cannot represent %T as ID", val)
	}
}

func serializeInt(val any) (int64, error) {
	var n int64
	switch v := val.(type) {
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("cannot represent %s as Int", v)
		}
		n = i
	case int:
		n = int64(v)
	case int64:
		n = v
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("cannot represent %v as Int", v)
		}
		n = int64(v)
	default:
		return 0, fmt.Errorf("cannot represent %T as Int", val)
	}
	if n > math.MaxInt32 || n < math.MinInt32 {
		return 0, fmt.Errorf("%d is outside the 32-bit Int range", n)
	}
	return n, nil
}

func serializeFloat(val any) (float64, error) {
	switch v := val.(type) {
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("cannot represent %s as Float", v)
		}
		return f, nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("cannot represent %T as Float", val)
	}
}
