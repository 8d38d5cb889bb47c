// Package merge provides the recursive delta merge used by every
// networked backend adapter.
package merge

// Merge applies a partial update onto a prior state tree and returns
// the merged result. Neither input is mutated; shared subtrees that the
// patch does not touch are reused.
//
// Rules, in order:
//   - nil patch carries no information: prior wins.
//   - scalars and arrays overwrite wholesale (arrays are never merged
//     element-wise).
//   - an empty map is a no-op signal: prior wins.
//   - otherwise each patch key is merged recursively into a shallow
//     copy of prior.
//
// Merge is total: any input shape produces a result, never a panic.
func Merge(prior, patch any) any {
	if patch == nil {
		return prior
	}
	pm, ok := patch.(map[string]any)
	if !ok {
		// Scalars, arrays, and any unrecognized shape overwrite.
		return patch
	}
	if len(pm) == 0 {
		return prior
	}
	out := make(map[string]any)
	if prev, ok := prior.(map[string]any); ok {
		for k, v := range prev {
			out[k] = v
		}
	}
	for k, v := range pm {
		out[k] = Merge(out[k], v)
	}
	return out
}
