package experiment

import (
	"fmt"
	"strconv"
	"strings"
)

// Argv renders t as the argument tokens spec.md §4.3/§6 describes:
// "key=value" becomes "--key value"; a true boolean becomes a bare "--key"
// flag; a false boolean contributes no token at all (the omitted flag is
// itself the encoding of "false" for a binary switch).
func (t Tuple) Argv() []string {
	out := make([]string, 0, len(t.Bindings)*2)
	for _, b := range t.Bindings {
		if b.Value.Kind == KindBool {
			if b.Value.Bool {
				out = append(out, "--"+b.Key)
			}
			continue
		}
		out = append(out, "--"+b.Key, b.Value.Literal())
	}
	return out
}

// ParseArgv is a best-effort inverse of Argv, used to check the round-trip
// property from spec.md §8: expand, export as argv, then reparse and
// recover the original tuple. It cannot be a true inverse for a false
// boolean binding, since an omitted flag is indistinguishable from a key
// that was never bound in the first place; callers exercising that law
// must restrict themselves to tuples with no false-valued booleans, or
// compare only the keys each side agrees were present.
func ParseArgv(args []string) (Tuple, error) {
	var t Tuple
	i := 0
	for i < len(args) {
		tok := args[i]
		if !strings.HasPrefix(tok, "--") {
			return Tuple{}, fmt.Errorf("argument %d (%q) is not a flag", i, tok)
		}
		key := strings.TrimPrefix(tok, "--")

		if i+1 >= len(args) || strings.HasPrefix(args[i+1], "--") {
			t.Bindings = append(t.Bindings, Binding{Key: key, Value: BoolScalar(true)})
			i++
			continue
		}

		t.Bindings = append(t.Bindings, Binding{Key: key, Value: inferScalar(args[i+1])})
		i += 2
	}
	return t, nil
}

// inferScalar recovers a Scalar's kind from its literal text, trying int,
// then float, then the literal strings "true"/"false", and falling back to
// string. This is necessarily lossy relative to the source document (e.g.
// the string "3" and the int 3 render identically), which is why ParseArgv
// is only a best-effort inverse.
func inferScalar(s string) Scalar {
	if iv, err := strconv.ParseInt(s, 10, 64); err == nil {
		return IntScalar(iv)
	}
	if fv, err := strconv.ParseFloat(s, 64); err == nil {
		return FloatScalar(fv)
	}
	if s == "true" || s == "false" {
		return BoolScalar(s == "true")
	}
	return StringScalar(s)
}
