package table

import (
	"slices"

	"github.com/ftahirops/nbstat/resource"
)

// Group is the run of rows sharing one index value.
type Group struct {
	Key  Value
	Rows Table
}

// SetIndex marks res as the grouping resource and makes the rows of each
// group contiguous, groups ordered by first appearance.
func (t Table) SetIndex(res resource.Resource) Table {
	out := t.derive(t.rows)
	out.index = res
	return out.fromGroups(out.Groups())
}

// Groups partitions the rows by index value. Without an index the whole
// table is one group.
func (t Table) Groups() []Group {
	if t.index == resource.None {
		if len(t.rows) == 0 {
			return nil
		}
		return []Group{{Key: Missing, Rows: t.derive(t.rows)}}
	}
	pos := map[string]int{}
	var groups []Group
	var members [][]Row
	for _, r := range t.rows {
		key := r.Get(t.index)
		k := valueKey(key)
		i, ok := pos[k]
		if !ok {
			i = len(groups)
			pos[k] = i
			groups = append(groups, Group{Key: key})
			members = append(members, nil)
		}
		members[i] = append(members[i], r)
	}
	for i := range groups {
		groups[i].Rows = t.derive(members[i])
	}
	return groups
}

// fromGroups flattens groups back into one table.
func (t Table) fromGroups(groups []Group) Table {
	rows := make([]Row, 0, len(t.rows))
	for _, g := range groups {
		rows = append(rows, g.Rows.rows...)
	}
	return t.derive(rows)
}

// FilterGroups keeps whole groups satisfying pred.
func (t Table) FilterGroups(pred func(Group) bool) Table {
	groups := t.Groups()
	kept := groups[:0]
	for _, g := range groups {
		if pred(g) {
			kept = append(kept, g)
		}
	}
	return t.fromGroups(kept)
}

// SortGroups orders groups with cmp, stable, keeping each group's rows in
// their current order.
func (t Table) SortGroups(cmp func(a, b Group) int) Table {
	groups := t.Groups()
	slices.SortStableFunc(groups, cmp)
	return t.fromGroups(groups)
}

// SortWithinGroups sorts the rows of every group with cmp.
func (t Table) SortWithinGroups(cmp func(a, b Row) int) Table {
	groups := t.Groups()
	for i := range groups {
		groups[i].Rows = groups[i].Rows.Sort(cmp)
	}
	return t.fromGroups(groups)
}

