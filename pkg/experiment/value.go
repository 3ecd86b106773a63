package experiment

import (
	"fmt"
	"strconv"
)

// ValueKind tags the dynamically-typed scalar values an experiment-config
// document can hold (spec.md §9's "tagged variant Scalar ∈ {Str, Int,
// Float, Bool}").
type ValueKind int

const (
	KindString ValueKind = iota
	KindInt
	KindFloat
	KindBool
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// Scalar is a single typed value parsed from an experiment-config document.
type Scalar struct {
	Kind  ValueKind
	Str   string
	Int   int64
	Float float64
	Bool  bool
}

func StringScalar(s string) Scalar { return Scalar{Kind: KindString, Str: s} }
func IntScalar(i int64) Scalar     { return Scalar{Kind: KindInt, Int: i} }
func FloatScalar(f float64) Scalar { return Scalar{Kind: KindFloat, Float: f} }
func BoolScalar(b bool) Scalar     { return Scalar{Kind: KindBool, Bool: b} }

// Literal renders the scalar's value as the argv token it would occupy
// (everything except a suppressed boolean false, which the caller must
// special-case — it contributes no token at all).
func (s Scalar) Literal() string {
	switch s.Kind {
	case KindString:
		return s.Str
	case KindInt:
		return strconv.FormatInt(s.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(s.Float, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(s.Bool)
	default:
		return ""
	}
}

func (s Scalar) Equal(o Scalar) bool {
	if s.Kind != o.Kind {
		return false
	}
	switch s.Kind {
	case KindString:
		return s.Str == o.Str
	case KindInt:
		return s.Int == o.Int
	case KindFloat:
		return s.Float == o.Float
	case KindBool:
		return s.Bool == o.Bool
	default:
		return false
	}
}

func (s Scalar) String() string {
	return fmt.Sprintf("%s(%s)", s.Kind, s.Literal())
}

// ParseScalar infers a Scalar's kind from a raw interface{} as decoded by
// gopkg.in/yaml.v3 (bool, int, float64, or string — the only scalar kinds
// spec.md §6 recognizes).
func ParseScalar(raw interface{}) (Scalar, error) {
	switch v := raw.(type) {
	case bool:
		return BoolScalar(v), nil
	case int:
		return IntScalar(int64(v)), nil
	case int64:
		return IntScalar(v), nil
	case float64:
		return FloatScalar(v), nil
	case string:
		return StringScalar(v), nil
	case nil:
		return StringScalar(""), nil
	default:
		return Scalar{}, fmt.Errorf("unsupported value type %T", raw)
	}
}
