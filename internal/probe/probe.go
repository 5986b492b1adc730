// Package probe infers which unit convention an external API uses for a balance.
//
// After a known top-up the caller reads the balance back and asks Classify which of
// the candidate scale factors (for example 1 for standard units and 100 for cents)
// explains the observed value. Arithmetic is done with decimals so 10.5*100 is
// exactly 1050.
package probe

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Outcome is the classification of one observation.
type Outcome int

const (
	Unparseable Outcome = iota
	NoMatch
	Match
	Ambiguous
)

func (o Outcome) String() string {
	switch o {
	case Unparseable:
		return "unparseable"
	case NoMatch:
		return "no-match"
	case Match:
		return "unambiguous-match"
	case Ambiguous:
		return "ambiguous-multiple-matches"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

var (
	// DefaultTolerance is the absolute epsilon used when an Observation has none.
	DefaultTolerance = decimal.New(1, -3)
	// DefaultScales tests standard units against cents.
	DefaultScales = []decimal.Decimal{decimal.NewFromInt(1), decimal.NewFromInt(100)}
)

// Observation pairs the amount a caller supplied with the raw value read back.
// Raw may be nil, a string, any Go number, json.Number or decimal.Decimal.
type Observation struct {
	Expected  decimal.Decimal
	Scales    []decimal.Decimal
	Raw       any
	Tolerance decimal.Decimal
}

// Hypothesis is Expected*Scale and whether the observed value lies within tolerance.
type Hypothesis struct {
	Scale   decimal.Decimal
	Value   decimal.Decimal
	Matches bool
}

// Classification is the single result of Classify. Scale is set only for Match;
// Matching lists every matching scale for Match and Ambiguous.
type Classification struct {
	Outcome    Outcome
	Observed   decimal.Decimal
	Scale      decimal.Decimal
	Matching   []decimal.Decimal
	Hypotheses []Hypothesis
}

func (c Classification) String() string {
	switch c.Outcome {
	case Match:
		return fmt.Sprintf("%s-at-scale-%s", c.Outcome, c.Scale)
	case Ambiguous:
		return fmt.Sprintf("%s %v", c.Outcome, c.Matching)
	case NoMatch:
		vals := make([]string, len(c.Hypotheses))
		for i, h := range c.Hypotheses {
			vals[i] = fmt.Sprintf("x%s=%s", h.Scale, h.Value)
		}
		return fmt.Sprintf("%s observed=%s hypotheses=[%s]", c.Outcome, c.Observed, strings.Join(vals, " "))
	default:
		return c.Outcome.String()
	}
}

// Classify is pure: identical inputs always give identical results. Empty Scales
// fall back to DefaultScales and a non-positive Tolerance to DefaultTolerance.
func Classify(obs Observation) Classification {
	observed, ok := ParseValue(obs.Raw)
	if !ok {
		return Classification{Outcome: Unparseable}
	}
	scales := obs.Scales
	if len(scales) == 0 {
		scales = DefaultScales
	}
	tol := obs.Tolerance
	if !tol.IsPositive() {
		tol = DefaultTolerance
	}

	out := Classification{Observed: observed, Hypotheses: make([]Hypothesis, 0, len(scales))}
	for _, f := range scales {
		h := Hypothesis{Scale: f, Value: obs.Expected.Mul(f)}
		h.Matches = observed.Sub(h.Value).Abs().LessThan(tol)
		if h.Matches {
			out.Matching = append(out.Matching, f)
		}
		out.Hypotheses = append(out.Hypotheses, h)
	}

	switch len(out.Matching) {
	case 0:
		out.Outcome = NoMatch
	case 1:
		out.Outcome = Match
		out.Scale = out.Matching[0]
	default:
		out.Outcome = Ambiguous
	}
	return out
}

// ParseValue interprets a raw JSON-ish value as a number. Numeric-looking strings
// such as "1000.0" are accepted; nil, booleans, NaN and infinities are not.
func ParseValue(raw any) (decimal.Decimal, bool) {
	switch v := raw.(type) {
	case nil:
		return decimal.Decimal{}, false
	case decimal.Decimal:
		return v, true
	case string:
		return parseString(v)
	case json.Number:
		return parseString(v.String())
	case float64:
		return fromFloat(v)
	case float32:
		return fromFloat(float64(v))
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int32:
		return decimal.NewFromInt32(v), true
	case int64:
		return decimal.NewFromInt(v), true
	case uint:
		return parseString(strconv.FormatUint(uint64(v), 10))
	case uint64:
		return parseString(strconv.FormatUint(v, 10))
	default:
		return decimal.Decimal{}, false
	}
}

func parseString(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

func fromFloat(f float64) (decimal.Decimal, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Decimal{}, false
	}
	return decimal.NewFromFloat(f), true
}
