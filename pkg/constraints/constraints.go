package constraints

import "github.com/cuemby/corral/pkg/types"

// AttributeLoader returns the attributes known for a host. Fetching is
// keyed by host and must be cached within a single scheduling decision
// so repeated lookups of the same host return a consistent answer.
type AttributeLoader func(host string) []types.Attribute

// ActiveTaskHosts supplies the hosts of every currently active task in
// the same job as the candidate, for limit-constraint evaluation.
type ActiveTaskHosts func() []string

// MatchValue reports whether attrs satisfies a value constraint: the
// host must carry at least one of c.Values under c.Name, or — when
// c.Negated — must carry none of them. An empty Values list never
// matches unless negated, in which case it always matches.
func MatchValue(attrs []types.Attribute, c types.ValueConstraint) bool {
	found := false
outer:
	for _, attr := range attrs {
		if attr.Name != c.Name {
			continue
		}
		for _, v := range attr.Values {
			if containsString(c.Values, v) {
				found = true
				break outer
			}
		}
	}
	return c.Negated != found
}

// MatchLimit reports whether the candidate host satisfies a limit
// constraint: strictly fewer than c.Limit active tasks of the same job
// may run on a host that shares any c.Name attribute value with the
// candidate.
func MatchLimit(candidateAttrs []types.Attribute, c types.LimitConstraint, hostAttrs AttributeLoader, activeHosts []string) bool {
	candidateValues := valuesFor(candidateAttrs, c.Name)
	if len(candidateValues) == 0 {
		return true
	}

	count := 0
	for _, host := range activeHosts {
		hostValues := valuesFor(hostAttrs(host), c.Name)
		if sharesAny(candidateValues, hostValues) {
			count++
		}
	}
	return count < c.Limit
}

// Match dispatches to MatchValue or MatchLimit according to which side
// of the constraint is populated.
func Match(candidateAttrs []types.Attribute, c types.Constraint, hostAttrs AttributeLoader, activeHosts []string) bool {
	switch {
	case c.Value != nil:
		return MatchValue(candidateAttrs, *c.Value)
	case c.Limit != nil:
		return MatchLimit(candidateAttrs, *c.Limit, hostAttrs, activeHosts)
	default:
		return true
	}
}

func valuesFor(attrs []types.Attribute, name string) []string {
	for _, attr := range attrs {
		if attr.Name == name {
			return attr.Values
		}
	}
	return nil
}

func sharesAny(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, v := range a {
		set[v] = true
	}
	for _, v := range b {
		if set[v] {
			return true
		}
	}
	return false
}

func containsString(xs []string, v string) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
