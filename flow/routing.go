package flow

import "reflect"

// matchSpecificity ranks how specifically a route's inputType matches a
// payload's dynamic type. Exact matches are more specific than interface
// (supertype) matches, so an executor that registers both a concrete type
// and an interface its subtype implements always prefers the concrete
// handler, regardless of declaration order. Within the same specificity,
// ties are broken by declaration order (spec §4.1: "ties are broken by
// declaration order").
const (
	specNone = iota
	specSupertype
	specExact
)

func matchSpecificity(payloadType, inputType reflect.Type) int {
	if payloadType == inputType {
		return specExact
	}
	if inputType.Kind() == reflect.Interface && payloadType.Implements(inputType) {
		return specSupertype
	}
	return specNone
}

// selectRoute implements the "most-derived handler whose inputType is
// assignable from payloadType" rule (spec §3 Messages and routing), linear
// scanning the executor's routes in registration order and keeping the
// first route at the best specificity seen (so among equally-specific
// matches, the first declared wins).
func selectRoute(e *Executor, payloadType reflect.Type) (route, bool) {
	bestSpec := specNone
	var best route
	found := false
	for _, r := range e.routes {
		spec := matchSpecificity(payloadType, r.inputType)
		if spec == specNone {
			continue
		}
		if spec > bestSpec {
			bestSpec = spec
			best = r
			found = true
		}
		if spec == specExact {
			break
		}
	}
	return best, found
}
