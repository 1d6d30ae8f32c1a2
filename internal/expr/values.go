package expr

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"
)

var decimalContext = apd.BaseContext.WithPrecision(34)

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case *apd.Decimal:
		f, err := n.Float64()
		return f, err == nil
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

func toDecimal(v any) (*apd.Decimal, bool) {
	switch n := v.(type) {
	case *apd.Decimal:
		return n, true
	case apd.Decimal:
		return &n, true
	case float64:
		d, err := new(apd.Decimal).SetFloat64(n)
		return d, err == nil
	case float32:
		d, err := new(apd.Decimal).SetFloat64(float64(n))
		return d, err == nil
	}
	if i, ok := toInt64(v); ok {
		return apd.New(i, 0), true
	}
	return nil, false
}

func isDecimal(v any) bool {
	switch v.(type) {
	case *apd.Decimal, apd.Decimal:
		return true
	}
	return false
}

// Compare orders two runtime values: nil sorts first, numbers compare across
// representations, strings lexically and false before true. Values of unrelated types
// compare by their formatted text so the ordering stays total.
func Compare(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		}
		return 1
	}
	if isDecimal(a) || isDecimal(b) {
		da, ok1 := toDecimal(a)
		db, ok2 := toDecimal(b)
		if ok1 && ok2 {
			return da.Cmp(db)
		}
	}
	if ia, ok := toInt64(a); ok {
		if ib, ok := toInt64(b); ok {
			return cmpOrdered(ia, ib)
		}
	}
	if fa, ok := toFloat64(a); ok {
		if fb, ok := toFloat64(b); ok {
			return cmpOrdered(fa, fb)
		}
	}
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			}
			return 1
		}
	case uuid.UUID:
		if y, ok := b.(uuid.UUID); ok {
			return bytes.Compare(x[:], y[:])
		}
	}
	if reflect.DeepEqual(a, b) {
		return 0
	}
	if c := strings.Compare(fmt.Sprint(a), fmt.Sprint(b)); c != 0 {
		return c
	}
	if c := strings.Compare(fmt.Sprintf("%T", a), fmt.Sprintf("%T", b)); c != 0 {
		return c
	}
	return -1
}

func cmpOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func unary(op Op, x any) (any, error) {
	if x == nil {
		return nil, nil
	}
	switch op {
	case OpNot:
		b, ok := x.(bool)
		if !ok {
			return nil, fmt.Errorf("operator ! on %T", x)
		}
		return !b, nil
	case OpNeg:
		if d, ok := x.(*apd.Decimal); ok {
			return new(apd.Decimal).Neg(d), nil
		}
		if i, ok := toInt64(x); ok {
			return -i, nil
		}
		if f, ok := toFloat64(x); ok {
			return -f, nil
		}
		return nil, fmt.Errorf("operator - on %T", x)
	}
	return nil, fmt.Errorf("%s is not a unary operator", op)
}

func arith(op Op, x, y any) (any, error) {
	if x == nil || y == nil {
		return nil, nil
	}
	if op == OpAdd {
		if sx, ok := x.(string); ok {
			if sy, ok := y.(string); ok {
				return sx + sy, nil
			}
		}
	}
	if isDecimal(x) || isDecimal(y) {
		dx, ok1 := toDecimal(x)
		dy, ok2 := toDecimal(y)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("operator %s on %T and %T", op, x, y)
		}
		out := new(apd.Decimal)
		var err error
		switch op {
		case OpAdd:
			_, err = decimalContext.Add(out, dx, dy)
		case OpSub:
			_, err = decimalContext.Sub(out, dx, dy)
		case OpMul:
			_, err = decimalContext.Mul(out, dx, dy)
		case OpDiv:
			_, err = decimalContext.Quo(out, dx, dy)
		case OpMod:
			_, err = decimalContext.Rem(out, dx, dy)
		default:
			return nil, fmt.Errorf("%s is not an arithmetic operator", op)
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	if ix, ok := toInt64(x); ok {
		if iy, ok := toInt64(y); ok {
			switch op {
			case OpAdd:
				return ix + iy, nil
			case OpSub:
				return ix - iy, nil
			case OpMul:
				return ix * iy, nil
			case OpDiv, OpMod:
				if iy == 0 {
					return nil, fmt.Errorf("integer division by zero")
				}
				if op == OpDiv {
					return ix / iy, nil
				}
				return ix % iy, nil
			}
			return nil, fmt.Errorf("%s is not an arithmetic operator", op)
		}
	}
	fx, ok1 := toFloat64(x)
	fy, ok2 := toFloat64(y)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("operator %s on %T and %T", op, x, y)
	}
	switch op {
	case OpAdd:
		return fx + fy, nil
	case OpSub:
		return fx - fy, nil
	case OpMul:
		return fx * fy, nil
	case OpDiv:
		return fx / fy, nil
	case OpMod:
		return math.Mod(fx, fy), nil
	}
	return nil, fmt.Errorf("%s is not an arithmetic operator", op)
}
