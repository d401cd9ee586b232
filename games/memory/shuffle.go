/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package memory

import "math/rand/v2"

// Shuffle returns a uniformly random permutation of in. The input slice is
// never modified. A nil r uses the global source.
func Shuffle[T any](in []T, r *rand.Rand) []T {
	out := make([]T, len(in))
	copy(out, in)

	for i := len(out) - 1; i > 0; i-- {
		var j int
		if r != nil {
			j = r.IntN(i + 1)
		} else {
			j = rand.IntN(i + 1)
		}
		out[i], out[j] = out[j], out[i]
	}

	return out
}
