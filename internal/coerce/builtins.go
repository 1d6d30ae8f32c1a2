package coerce

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"
	"github.com/hanpama/gqlplan/internal/expr"
)

var builtins = map[expr.Kind]Converter{
	expr.KindString:  toString,
	expr.KindInt16:   toInt(16),
	expr.KindInt32:   toInt(32),
	expr.KindInt64:   toInt(64),
	expr.KindDecimal: toDecimal,
	expr.KindUUID:    parsed(uuid.Parse),
	expr.KindFloat:   toFloat,
	expr.KindBool:    parsed(strconv.ParseBool),
}

func toString(raw any) (any, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case fmt.Stringer:
		return v.String(), nil
	case bool, int, int16, int32, int64, float64, json.Number:
		return fmt.Sprint(v), nil
	}
	return nil, fmt.Errorf("unexpected %T", raw)
}

func toInt(bits int) Converter {
	lo, hi := int64(-1)<<(bits-1), int64(1)<<(bits-1)-1
	narrow := func(n int64) any {
		switch bits {
		case 16:
			return int16(n)
		case 32:
			return int32(n)
		}
		return n
	}
	return func(raw any) (any, error) {
		var n int64
		switch v := raw.(type) {
		case string:
			i, err := strconv.ParseInt(v, 10, bits)
			if err != nil {
				return nil, err
			}
			n = i
		case json.Number:
			i, err := strconv.ParseInt(string(v), 10, bits)
			if err != nil {
				return nil, err
			}
			n = i
		case int:
			n = int64(v)
		case int16:
			n = int64(v)
		case int32:
			n = int64(v)
		case int64:
			n = v
		case float64:
			// -lo is 2^(bits-1), exact as a float64 where hi rounds up to it for 64 bits.
			if v != math.Trunc(v) || v < float64(lo) || v >= -float64(lo) {
				return nil, fmt.Errorf("%v is not a %d-bit integer", v, bits)
			}
			n = int64(v)
		default:
			return nil, fmt.Errorf("unexpected %T", raw)
		}
		if n < lo || n > hi {
			return nil, fmt.Errorf("%d out of %d-bit range", n, bits)
		}
		return narrow(n), nil
	}
}

func toDecimal(raw any) (any, error) {
	switch v := raw.(type) {
	case string:
		d, _, err := apd.NewFromString(v)
		return d, err
	case json.Number:
		d, _, err := apd.NewFromString(string(v))
		return d, err
	case *apd.Decimal:
		return v, nil
	case int:
		return apd.New(int64(v), 0), nil
	case int32:
		return apd.New(int64(v), 0), nil
	case int64:
		return apd.New(v, 0), nil
	case float64:
		return new(apd.Decimal).SetFloat64(v)
	}
	return nil, fmt.Errorf("unexpected %T", raw)
}

func toFloat(raw any) (any, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	}
	return parsed(func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })(raw)
}

// parsed is the generic path: values already of type T pass through and strings are
// parsed.
func parsed[T any](parse func(string) (T, error)) Converter {
	return func(raw any) (any, error) {
		switch v := raw.(type) {
		case T:
			return v, nil
		case string:
			return parse(v)
		}
		var zero T
		return nil, fmt.Errorf("cannot parse %T as %T", raw, zero)
	}
}
