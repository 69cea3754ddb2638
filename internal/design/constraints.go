package design

import (
	"fmt"
	"sort"
	"strings"

	"firecarbon/domain/core"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/combin"
)

// InteractionSep joins component names inside an interaction term name.
const InteractionSep = ":"

// SplitTerm returns the component column names of a term name.
func SplitTerm(name string) []string {
	return strings.Split(name, InteractionSep)
}

// BuildConstraints builds the hierarchical constraint matrix for the given
// design column names. Entry (i, j) is 1 when term i requires term j.
//
// Every term requires itself. A term of order k > 1 requires each of its
// (k-1)-subsets of components, and transitively everything they require,
// down to order 1. Names are processed in order of increasing order so each
// subset's requirement set is already known when it is needed.
func BuildConstraints(names []string) (*mat.Dense, error) {
	n := len(names)
	if n == 0 {
		return nil, core.NewConfigurationError("no design terms")
	}

	index := make(map[string]int, n)
	for i, name := range names {
		if _, dup := index[name]; dup {
			return nil, fmt.Errorf("%w: %q", core.ErrDuplicateTerm, name)
		}
		index[name] = i
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return len(SplitTerm(names[order[a]])) < len(SplitTerm(names[order[b]]))
	})

	requires := make(map[string]map[int]bool, n)
	for _, i := range order {
		name := names[i]
		set := map[int]bool{i: true}

		parts := SplitTerm(name)
		k := len(parts)
		if k > 1 {
			for _, idx := range combin.Combinations(k, k-1) {
				sub := make([]string, len(idx))
				for s, p := range idx {
					sub[s] = parts[p]
				}
				subName := strings.Join(sub, InteractionSep)
				if _, ok := index[subName]; !ok {
					return nil, core.NewMissingTermError(name, subName)
				}
				for j := range requires[subName] {
					set[j] = true
				}
			}
		}
		requires[name] = set
	}

	c := mat.NewDense(n, n, nil)
	for i, name := range names {
		for j := range requires[name] {
			c.Set(i, j, 1)
		}
	}
	return c, nil
}

// Requires reports whether term i requires term j.
func Requires(c mat.Matrix, i, j int) bool {
	return c.At(i, j) != 0
}
