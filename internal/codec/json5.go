package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/titanous/json5"

	"github.com/roach88/brp/internal/value"
)

// ParseJSON5 decodes JSON5 text into a value tree. Numbers keep their
// digits, so integers beyond 2^53 survive; hex and other JSON5-only
// spellings are rewritten as plain JSON numbers.
func ParseJSON5(text string) (value.Value, error) {
	dec := json5.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON5 value")
	}
	v, err := fromJSON5(raw)
	if err != nil {
		return nil, err
	}
	return value.FromAny(v)
}

func fromJSON5(v any) (any, error) {
	switch x := v.(type) {
	case json5.Number:
		return jsonNumber(string(x))
	case []any:
		for i, elem := range x {
			ev, err := fromJSON5(elem)
			if err != nil {
				return nil, err
			}
			x[i] = ev
		}
	case map[string]any:
		for k, elem := range x {
			ev, err := fromJSON5(elem)
			if err != nil {
				return nil, err
			}
			x[k] = ev
		}
	}
	return v, nil
}

// jsonNumber spells a JSON5 number literal as a JSON number. Infinity and
// NaN have no JSON form.
func jsonNumber(s string) (value.Number, error) {
	if json.Valid([]byte(s)) {
		return value.Number(s), nil
	}
	if n, ok := new(big.Int).SetString(s, 0); ok {
		return value.Number(n.String()), nil
	}
	f, err := strconv.ParseFloat(strings.TrimPrefix(s, "+"), 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return "", fmt.Errorf("number %s has no JSON form", s)
	}
	return value.Float(f), nil
}
