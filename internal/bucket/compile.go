package bucket

import (
	"fmt"
	"strings"
)

// OthersLabel is the catch-all label for values no rule matches.
const OthersLabel = "Others"

// Unmatched decides what happens to numbers no range rule matches. Value
// rules always collect unmatched values under their catch-all or
// OthersLabel.
type Unmatched int

const (
	// ExcludeUnmatched leaves them out of every bucket and the total.
	ExcludeUnmatched Unmatched = iota
	// OthersBucket collects them under OthersLabel.
	OthersBucket
)

// ParseUnmatched reads "exclude" or "others"; empty means exclude.
func ParseUnmatched(s string) (Unmatched, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "exclude":
		return ExcludeUnmatched, nil
	case "others":
		return OthersBucket, nil
	}
	return 0, fmt.Errorf("unknown unmatched policy %q (want exclude or others)", s)
}

// Bounds decides whether a closed range includes its upper bound.
type Bounds int

const (
	Inclusive Bounds = iota
	HalfOpen
)

// ParseBounds reads "inclusive" or "half-open"; empty means inclusive.
func ParseBounds(s string) (Bounds, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "inclusive":
		return Inclusive, nil
	case "half-open", "half_open", "halfopen":
		return HalfOpen, nil
	}
	return 0, fmt.Errorf("unknown range bounds %q (want inclusive or half-open)", s)
}

// Options tune compilation.
type Options struct {
	Unmatched Unmatched
	Bounds    Bounds
}

// Compile turns a rule list into a Case.
//
// A wildcard rule anywhere makes the whole list group by the raw value.
// Value rules become set membership tests in order; the first rule with no
// values is the catch-all, OthersLabel when there is none. Range rules become, per rule:
//
//	no min, no max      value is null
//	no min, max < 0     value < 0
//	no min, max >= 0    value <= max
//	min, no max         value >= min
//	min == max          value == min
//	min, max            min <= value <= max
func Compile(rules Rules, opts Options) Case {
	if rules.Wildcard() {
		return Case{Passthrough: true}
	}

	var others *string
	if opts.Unmatched == OthersBucket {
		label := OthersLabel
		others = &label
	}

	if rules.StringMode() {
		label := OthersLabel
		c := Case{Else: &label}
		var catchAll *string
		for _, r := range rules {
			if len(r.Values) == 0 {
				if catchAll == nil {
					label := r.Label
					catchAll = &label
				}
				continue
			}
			c.Whens = append(c.Whens, When{Pred: InSet{Values: r.Values}, Label: r.Label})
		}
		if catchAll != nil {
			c.Else = catchAll
		}
		return c
	}

	c := Case{Else: others, Numeric: true}
	for _, r := range rules {
		var p Pred
		switch {
		case r.Min == nil && r.Max == nil:
			p = IsNull{}
		case r.Min == nil && *r.Max < 0:
			p = LessThan{V: 0}
		case r.Min == nil:
			p = AtMost{V: *r.Max}
		case r.Max == nil:
			p = AtLeast{V: *r.Min}
		case *r.Min == *r.Max:
			p = Equals{V: *r.Min}
		default:
			p = Between{Lo: *r.Min, Hi: *r.Max, HalfOpen: opts.Bounds == HalfOpen}
		}
		c.Whens = append(c.Whens, When{Pred: p, Label: r.Label})
	}
	return c
}
