package table

import (
	"cmp"
	"strconv"
	"time"
)

// Kind tags the dynamic type held by a Value.
type Kind uint8

const (
	KindMissing Kind = iota
	KindString
	KindInt
	KindFloat
	KindTime
)

// Value is one cell of a Row. The zero Value is Missing, which is distinct
// from zero and from the empty string.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	t    time.Time
}

// Missing marks a property that is absent for a row.
var Missing = Value{}

func String(s string) Value { return Value{kind: KindString, s: s} }
func Int(i int64) Value { return Value{kind: KindInt, i: i} }
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }
func Time(t time.Time) Value { return Value{kind: KindTime, t: t} }
func Uint(u uint64) Value { return Int(int64(u)) }
func (v Value) Kind() Kind { return v.kind }
func (v Value) IsMissing() bool { return v.kind == KindMissing }
func (v Value) Str() string { return v.s }
func (v Value) TimeValue() time.Time { return v.t }

// Bool stores a flag as an Int so it sorts and sums like the rest.
func Bool(b bool) Value {
	if b {
		return Int(1)
	}
	return Int(0)
}

// OptionalFloat is Missing when f is nil.
func OptionalFloat(f *float64) Value {
	if f == nil {
		return Missing
	}
	return Float(*f)
}

func OptionalUint(u *uint64) Value {
	if u == nil {
		return Missing
	}
	return Uint(*u)
}

// Int64 returns integer content, truncating floats.
func (v Value) Int64() (int64, bool) {
	switch v.kind {
	case KindInt:
		return v.i, true
	case KindFloat:
		return int64(v.f), true
	}
	return 0, false
}

// Float64 returns numeric content; times convert to unix seconds.
func (v Value) Float64() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	case KindTime:
		return float64(v.t.UnixNano()) / 1e9, true
	}
	return 0, false
}

// Truthy is true for non-zero numbers and non-empty strings.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindString:
		return v.s != ""
	case KindInt:
		return v.i != 0
	case KindFloat:
		return v.f != 0
	case KindTime:
		return !v.t.IsZero()
	}
	return false
}

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindTime:
		return v.t.Format(time.DateTime)
	}
	return ""
}

// Compare orders values of the same kind; numbers compare across int and
// float. Missing values sort after everything else.
func Compare(a, b Value) int {
	switch {
	case a.IsMissing() && b.IsMissing():
		return 0
	case a.IsMissing():
		return 1
	case b.IsMissing():
		return -1
	}
	if a.kind == KindString || b.kind == KindString {
		return cmp.Compare(a.String(), b.String())
	}
	if a.kind == KindTime && b.kind == KindTime {
		return a.t.Compare(b.t)
	}
	x, _ := a.Float64()
	y, _ := b.Float64()
	return cmp.Compare(x, y)
}
