package engine

import "fmt"

// Divergence is one difference between a recorded run and its replay.
type Divergence struct {
	Field string
	Want  string
	Got   string
}

func (d Divergence) String() string {
	return fmt.Sprintf("%s: want %s, got %s", d.Field, d.Want, d.Got)
}

// Compare reports how got differs from want. Compilation IDs are ignored;
// everything else a run produces is deterministic and must match.
func Compare(want, got *Result) []Divergence {
	var out []Divergence
	add := func(field string, w, g any) {
		out = append(out, Divergence{Field: field, Want: fmt.Sprint(w), Got: fmt.Sprint(g)})
	}
	if want.Fingerprint != got.Fingerprint {
		add("fingerprint", want.Fingerprint, got.Fingerprint)
	}
	if want.Changed != got.Changed {
		add("changed", want.Changed, got.Changed)
	}
	if len(want.Records) != len(got.Records) {
		add("records", len(want.Records), len(got.Records))
		return out
	}
	for i := range want.Records {
		if want.Records[i] != got.Records[i] {
			add(fmt.Sprintf("records[%d]", i), want.Records[i].String(), got.Records[i].String())
		}
	}
	return out
}

// String renders r as "#node Op reducer outcome(reason)".
func (r Record) String() string {
	s := fmt.Sprintf("#%d %s %s %s", r.Node, r.Op, r.Reducer, r.Outcome)
	if r.Reason != "" {
		s += "(" + r.Reason + ")"
	}
	return s
}
