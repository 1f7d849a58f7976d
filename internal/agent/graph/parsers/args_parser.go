package parsers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

type ArgKind int

const (
	ArgAbsent ArgKind = iota
	// ArgScalar is a plain string, number or bool.
	ArgScalar
	// ArgLabeled is an object carrying the value in a nested "title" field.
	ArgLabeled
)

// Arg is one tool argument as produced by a model: either a scalar or an
// object with a "title" field.
type Arg struct {
	Kind ArgKind
	Text string
}

func Scalar(s string) Arg  { return Arg{Kind: ArgScalar, Text: s} }
func Labeled(s string) Arg { return Arg{Kind: ArgLabeled, Text: s} }

func (a *Arg) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*a = Arg{}
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = Scalar(s)
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		*a = Arg{}
		for k, v := range obj {
			if !strings.EqualFold(k, "title") {
				continue
			}
			var inner Arg
			if err := inner.UnmarshalJSON(v); err != nil {
				return err
			}
			if inner.Kind != ArgAbsent {
				*a = Labeled(inner.Text)
			}
		}
	case '[':
		*a = Arg{}
	default:
		*a = Scalar(string(b))
	}
	return nil
}

// Value unwraps the argument to its text.
func (a Arg) Value() string {
	return strings.TrimSpace(a.Text)
}

// Args are the named arguments of one tool call.
type Args map[string]Arg

var (
	fenceRe  = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	numberRe = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
)

// ParseArgs decodes a JSON object of arguments, tolerating code fences and
// prose around it.
func ParseArgs(raw string) (Args, error) {
	s := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	start, end := strings.Index(s, "{"), strings.LastIndex(s, "}")
	if start < 0 || end < start {
		if s == "" {
			return Args{}, nil
		}
		return nil, fmt.Errorf("no JSON object in arguments: %s", safeSnippet(s))
	}
	var args Args
	if err := json.Unmarshal([]byte(s[start:end+1]), &args); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	if args == nil {
		args = Args{}
	}
	return args, nil
}

// String returns the unwrapped text of key, or "".
func (a Args) String(key string) string {
	return a[key].Value()
}

// Int returns the first number in key rounded to an int, or def when the
// argument is absent, malformed or not positive.
func (a Args) Int(key string, def int) int {
	m := numberRe.FindString(a[key].Value())
	if m == "" {
		return def
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsNaN(f) || f < 1 || f > math.MaxInt32 {
		return def
	}
	return int(math.Round(f))
}

// Normalized returns the arguments unwrapped to scalars, suitable for
// re-encoding as tool-call JSON.
func (a Args) Normalized() map[string]string {
	out := make(map[string]string, len(a))
	for k, v := range a {
		if v.Kind != ArgAbsent {
			out[k] = v.Value()
		}
	}
	return out
}
