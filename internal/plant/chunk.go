package plant

import (
	"slices"
)

// Chunk renders every set field of r as one "<Label>: <value>" fragment,
// ordered by category (identity, taxonomy, description, measurement) and
// within a category by Record.Fields. Unset fields produce nothing, so a
// blank record yields no fragments.
func Chunk(r Record) []string {
	fields := r.Fields()
	slices.SortStableFunc(fields, func(a, b Field) int {
		return int(a.Category()) - int(b.Category())
	})

	var out []string
	for _, f := range fields {
		if text, ok := f.fragment(); ok {
			out = append(out, text)
		}
	}
	return out
}
