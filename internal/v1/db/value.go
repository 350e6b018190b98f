package db

// valueKind discriminates the Value variants.
type valueKind int

const (
	valueInt valueKind = iota
	valueString
	valueBool
	valueDouble
)

// Value is a typed statement parameter. Binding is positional; each
// argument carries its own type tag.
type Value struct {
	kind valueKind
	i    int64
	s    string
	b    bool
	f    float64
}

// Int wraps an integer parameter.
func Int(v int) Value { return Value{kind: valueInt, i: int64(v)} }

// Int64 wraps a 64-bit integer parameter.
func Int64(v int64) Value { return Value{kind: valueInt, i: v} }

// Str wraps a string parameter.
func Str(v string) Value { return Value{kind: valueString, s: v} }

// Bool wraps a boolean parameter.
func Bool(v bool) Value { return Value{kind: valueBool, b: v} }

// Double wraps a floating-point parameter.
func Double(v float64) Value { return Value{kind: valueDouble, f: v} }

// driverArg converts the value to what database/sql expects.
func (v Value) driverArg() any {
	switch v.kind {
	case valueInt:
		return v.i
	case valueString:
		return v.s
	case valueBool:
		return v.b
	default:
		return v.f
	}
}

// driverArgs converts a parameter list for database/sql.
func driverArgs(args []Value) []any {
	if len(args) == 0 {
		return nil
	}
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = a.driverArg()
	}
	return out
}
