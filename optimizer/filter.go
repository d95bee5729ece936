package optimizer

import (
	"math/rand"

	"mulldb/tree"
)

// FilterCandidate is one FILTER node eligible for filter_params: its
// condition is an AND with ≥2 conjuncts.
type FilterCandidate struct {
	NodeID        int64
	ConjunctCount int
	Conjuncts     []*tree.Node // original conjunct order, index = original position
	Selectivity   []float64    // parallel to Conjuncts, estimated selectivity per conjunct
	Source        *tree.Node
}

// AnalyzeFilterCandidates is the analysis pass for filter_params (§4.5.c):
// it walks the tree collecting every FILTER whose condition is an
// OPERATOR("AND") with 2+ conjuncts, together with each conjunct's
// estimated selectivity so fitness evaluation and mutation have
// something to reason about.
func AnalyzeFilterCandidates(root *tree.Node, selectivity func(cond *tree.Node) float64) []FilterCandidate {
	var out []FilterCandidate
	tree.WalkPreOrder(root, func(n *tree.Node) bool {
		if n.Type != tree.Filter || len(n.Children) != 2 {
			return true
		}
		cond := n.Children[1]
		if cond.Type != tree.Operator {
			return true
		}
		if op, _ := cond.Value.(string); op != "AND" {
			return true
		}
		if len(cond.Children) < 2 {
			return true
		}
		sels := make([]float64, len(cond.Children))
		for i, conj := range cond.Children {
			sels[i] = selectivity(conj)
		}
		out = append(out, FilterCandidate{
			NodeID:        n.ID,
			ConjunctCount: len(cond.Children),
			Conjuncts:     cond.Children,
			Selectivity:   sels,
			Source:        n.Children[0],
		})
		return true
	})
	return out
}

// filterParam is a flattened permutation of [0..n-1]: an int element is
// a single cascaded conjunct; a []int element is a preserved AND group.
// Convention used throughout this package (an implementer choice not
// fully pinned by the prose): element 0 is applied FIRST — innermost,
// closest to the source — so that placing the most selective conjunct
// at position 0 gives the earliest row-count reduction and therefore the
// lowest cascade cost. This preserves the spec's cascading semantics
// (early pruning reduces downstream rows) while fixing array-order
// convention, which the spec leaves to the implementation.
type filterParam = []any

func randomFilterParam(r *rand.Rand, n int) filterParam {
	perm := r.Perm(n)
	out := make(filterParam, n)
	for i, v := range perm {
		out[i] = v
	}
	return out
}

// mutateFilterParam applies one of swap/group/ungroup, matching §4.5.c's
// "swap/group/ungroup for filter_params", retrying on an invalid result.
func mutateFilterParam(r *rand.Rand, p filterParam, n int) filterParam {
	for attempt := 0; attempt < 5; attempt++ {
		candidate := mutateOnce(r, p)
		if validateFilterParam(candidate, n) == nil {
			return candidate
		}
	}
	return p // all attempts invalid; drop the mutation and keep the parent's value
}

func mutateOnce(r *rand.Rand, p filterParam) filterParam {
	out := make(filterParam, len(p))
	copy(out, p)
	if len(out) < 2 {
		return out
	}
	switch r.Intn(3) {
	case 0: // swap two positions
		i, j := r.Intn(len(out)), r.Intn(len(out))
		out[i], out[j] = out[j], out[i]
	case 1: // group two adjacent single indices into a preserved AND group
		i := r.Intn(len(out) - 1)
		a, aok := out[i].(int)
		b, bok := out[i+1].(int)
		if aok && bok {
			grouped := make([]int, 0, len(out)-1)
			for k, el := range out {
				if k == i {
					grouped = append(grouped, a, b)
				} else if k == i+1 {
					continue
				} else if v, ok := el.(int); ok {
					grouped = append(grouped, v)
				}
			}
			out = append(out[:i], append(filterParam{grouped}, out[i+1:]...)...)
		}
	case 2: // ungroup a group back into individual indices
		for i, el := range out {
			if group, ok := el.([]int); ok && len(group) > 0 {
				replacement := make(filterParam, 0, len(group))
				for _, idx := range group {
					replacement = append(replacement, idx)
				}
				out = append(out[:i], append(replacement, out[i+1:]...)...)
				break
			}
		}
	}
	return out
}

// ApplyFilterParam rewrites one FilterCandidate's FILTER node into the
// cascade FILTER(p[0], FILTER(p[1], …, FILTER(p[n-1], source))) per
// §4.5.a, honoring this package's element-0-applied-first convention by
// building from source outward in array order (so p[0] sits innermost).
func ApplyFilterParam(fc FilterCandidate, p filterParam) *tree.Node {
	current := fc.Source
	for _, el := range p {
		switch v := el.(type) {
		case int:
			current = tree.New(tree.Filter, nil, current, fc.Conjuncts[v])
		case []int:
			conjs := make([]*tree.Node, len(v))
			for i, idx := range v {
				conjs[i] = fc.Conjuncts[idx]
			}
			current = tree.New(tree.Filter, nil, current, joinAnd(conjs))
		}
	}
	return current
}

// FilterCascadeCost estimates the total cost of a filter_params cascade
// given the source's row count and each conjunct's selectivity, applying
// conjuncts in array order (index 0 first) over progressively smaller
// row counts — the "cascades allow early pruning reducing downstream
// rows" rule from §4.5.b.
func FilterCascadeCost(rows int64, sourceCost Cost, p filterParam, sel []float64) Cost {
	remaining := rows
	cpu := sourceCost.CPU
	for _, el := range p {
		switch v := el.(type) {
		case int:
			cpu += float64(remaining) * 1 * PerComparisonCPU
			remaining = int64(float64(remaining) * sel[v])
		case []int:
			cpu += float64(remaining) * float64(len(v)) * PerComparisonCPU
			s := 1.0
			for _, idx := range v {
				s *= sel[idx]
			}
			remaining = int64(float64(remaining) * s)
		}
	}
	return Cost{IO: sourceCost.IO, CPU: cpu}
}
