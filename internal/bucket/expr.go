package bucket

import (
	"TalkToDataLoanPro/internal/normalize"
)

// Pred is a predicate on the bucketed value.
type Pred interface {
	Match(v any) bool
}

type (
	IsNull   struct{}
	LessThan struct{ V float64 }
	AtLeast  struct{ V float64 }
	AtMost   struct{ V float64 }
	Equals   struct{ V float64 }
	// Between matches lo <= v <= hi, or lo <= v < hi when HalfOpen.
	Between struct {
		Lo, Hi   float64
		HalfOpen bool
	}
	InSet struct{ Values []string }
)

// When maps a predicate to a label.
type When struct {
	Pred  Pred
	Label string
}

// Case is a compiled rule list. Passthrough groups by the raw value; Else
// is the label for values no When matches, nil to leave them unlabelled.
type Case struct {
	Whens       []When
	Else        *string
	Numeric     bool
	Passthrough bool
}

// Label evaluates the case for one value. The boolean is false when the
// value ends up without a label.
func (c Case) Label(v any) (string, bool) {
	if c.Passthrough {
		s, ok := normalize.ToString(v)
		return s, ok
	}
	for _, w := range c.Whens {
		if w.Pred.Match(v) {
			return w.Label, true
		}
	}
	if c.Else != nil {
		return *c.Else, true
	}
	return "", false
}

func number(v any) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return normalize.ToFloat(v)
}

func (IsNull) Match(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	return false
}

func (p LessThan) Match(v any) bool {
	f, ok := number(v)
	return ok && f < p.V
}

func (p AtLeast) Match(v any) bool {
	f, ok := number(v)
	return ok && f >= p.V
}

func (p AtMost) Match(v any) bool {
	f, ok := number(v)
	return ok && f <= p.V
}

func (p Equals) Match(v any) bool {
	f, ok := number(v)
	return ok && f == p.V
}

func (p Between) Match(v any) bool {
	f, ok := number(v)
	if !ok || f < p.Lo {
		return false
	}
	if p.HalfOpen {
		return f < p.Hi
	}
	return f <= p.Hi
}

func (p InSet) Match(v any) bool {
	s, ok := normalize.ToString(v)
	if !ok {
		return false
	}
	for _, want := range p.Values {
		if s == want {
			return true
		}
	}
	return false
}
