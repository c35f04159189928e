// Package table holds the row and table types that the inspector builds
// and the renderer prints. Tables are values: every operation returns a new
// Table and leaves the receiver untouched.
package table

import (
	"slices"
	"strconv"

	"github.com/ftahirops/nbstat/resource"
)

// Table is an ordered sequence of rows, optionally grouped by an index
// resource.
type Table struct {
	columns []resource.Resource
	rows    []Row
	index   resource.Resource
}

// New builds a table whose columns are the union of the rows' resources.
func New(rows ...Row) Table {
	t := Table{rows: slices.Clone(rows)}
	t.columns = unionColumns(nil, rows...)
	return t
}

func unionColumns(cols []resource.Resource, rows ...Row) []resource.Resource {
	seen := make(map[resource.Resource]bool, len(cols))
	out := slices.Clone(cols)
	for _, c := range out {
		seen[c] = true
	}
	for _, r := range rows {
		for k := range r.values {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	slices.Sort(out)
	return out
}

func (t Table) derive(rows []Row) Table {
	return Table{columns: t.columns, rows: rows, index: t.index}
}

func (t Table) Len() int { return len(t.rows) }
func (t Table) Row(i int) Row { return t.rows[i] }
func (t Table) Rows() []Row { return slices.Clone(t.rows) }
func (t Table) Columns() []resource.Resource { return slices.Clone(t.columns) }
func (t Table) Index() resource.Resource { return t.index }

func (t Table) HasColumn(res resource.Resource) bool {
	return slices.Contains(t.columns, res)
}

// Append returns t with rows added at the end.
func (t Table) Append(rows ...Row) Table {
	out := t.derive(append(slices.Clone(t.rows), rows...))
	out.columns = unionColumns(t.columns, rows...)
	return out
}

// Filter keeps the rows satisfying pred, in their original order.
func (t Table) Filter(pred func(Row) bool) Table {
	rows := make([]Row, 0, len(t.rows))
	for _, r := range t.rows {
		if pred(r) {
			rows = append(rows, r)
		}
	}
	return t.derive(rows)
}

// Sort orders rows with cmp. The sort is stable.
func (t Table) Sort(cmp func(a, b Row) int) Table {
	rows := slices.Clone(t.rows)
	slices.SortStableFunc(rows, cmp)
	return t.derive(rows)
}

// SortBy orders rows by one resource; Missing values go last.
func (t Table) SortBy(res resource.Resource, descending bool) Table {
	return t.Sort(func(a, b Row) int {
		av, bv := a.Get(res), b.Get(res)
		if descending && !av.IsMissing() && !bv.IsMissing() {
			return Compare(bv, av)
		}
		return Compare(av, bv)
	})
}

// Apply sets res on every row to fn(row).
func (t Table) Apply(res resource.Resource, fn func(Row) Value) Table {
	rows := make([]Row, len(t.rows))
	for i, r := range t.rows {
		rows[i] = r.With(res, fn(r))
	}
	out := t.derive(rows)
	if !slices.Contains(out.columns, res) {
		out.columns = append(slices.Clone(out.columns), res)
		slices.Sort(out.columns)
	}
	return out
}

// Column lists the values of res, one per row.
func (t Table) Column(res resource.Resource) []Value {
	out := make([]Value, len(t.rows))
	for i, r := range t.rows {
		out[i] = r.Get(res)
	}
	return out
}

// AggregateFunc reduces a column to one value.
type AggregateFunc func([]Value) Value

// Sum adds numeric values. A column with no numbers sums to Missing.
func Sum(vals []Value) Value {
	var (
		total   float64
		isFloat bool
		found   bool
	)
	for _, v := range vals {
		f, ok := v.Float64()
		if !ok || v.Kind() == KindTime {
			continue
		}
		found = true
		total += f
		if v.Kind() == KindFloat {
			isFloat = true
		}
	}
	switch {
	case !found:
		return Missing
	case isFloat:
		return Float(total)
	}
	return Int(int64(total))
}

// Min is the smallest non-missing value.
func Min(vals []Value) Value { return extreme(vals, -1) }

func extreme(vals []Value, sign int) Value {
	best := Missing
	for _, v := range vals {
		if v.IsMissing() {
			continue
		}
		if best.IsMissing() || sign*Compare(v, best) > 0 {
			best = v
		}
	}
	return best
}

func (t Table) Aggregate(res resource.Resource, agg AggregateFunc) Value {
	return agg(t.Column(res))
}

// Any reports whether some row satisfies pred.
func (t Table) Any(pred func(Row) bool) bool {
	return slices.ContainsFunc(t.rows, pred)
}

// JoinKey pairs a resource of the left table with one of the right table.
type JoinKey struct {
	Left, Right resource.Resource
}

// On joins on the same resource in both tables.
func On(res resource.Resource) JoinKey { return JoinKey{Left: res, Right: res} }

// Ambiguity records a left row whose key matched several right rows.
type Ambiguity struct {
	Row        int
	Key        JoinKey
	Candidates []int
}

// MergeReport describes how the rows of the right table were used.
type MergeReport struct {
	// Matched[i] is true when right row i joined at least one left row.
	Matched     []bool
	Ambiguities []Ambiguity
	// ByFallback counts left rows joined through a fallback key.
	ByFallback int
}

// Unmatched returns the indices of right rows no left row joined.
func (m MergeReport) Unmatched() []int {
	var out []int
	for i, ok := range m.Matched {
		if !ok {
			out = append(out, i)
		}
	}
	return out
}

type joinIndex map[string][]int

func valueKey(v Value) string {
	return strconv.Itoa(int(v.Kind())) + ":" + v.String()
}

func buildJoinIndex(t Table, res resource.Resource) joinIndex {
	idx := joinIndex{}
	for i, r := range t.rows {
		v := r.Get(res)
		if v.IsMissing() {
			continue
		}
		k := valueKey(v)
		idx[k] = append(idx[k], i)
	}
	return idx
}

// Merge left-joins other into t. Every row of t appears exactly once in the
// result, in order; a row is extended with the first right row whose key
// equals its own, trying on and then each fallback in turn. Values already
// present in the left row win. When several right rows share a key the one
// at the lowest position is taken and the tie is reported.
func (t Table) Merge(other Table, on JoinKey, fallbacks ...JoinKey) (Table, MergeReport) {
	keys := append([]JoinKey{on}, fallbacks...)
	indices := make([]joinIndex, len(keys))
	for i, k := range keys {
		indices[i] = buildJoinIndex(other, k.Right)
	}

	report := MergeReport{Matched: make([]bool, other.Len())}
	rows := make([]Row, len(t.rows))
	for i, left := range t.rows {
		rows[i] = left
		for ki, k := range keys {
			v := left.Get(k.Left)
			if v.IsMissing() {
				continue
			}
			candidates := indices[ki][valueKey(v)]
			if len(candidates) == 0 {
				continue
			}
			if len(candidates) > 1 {
				report.Ambiguities = append(report.Ambiguities, Ambiguity{
					Row: i, Key: k, Candidates: slices.Clone(candidates),
				})
			}
			chosen := candidates[0]
			rows[i] = left.Union(other.rows[chosen])
			report.Matched[chosen] = true
			if ki > 0 {
				report.ByFallback++
			}
			break
		}
	}

	out := t.derive(rows)
	out.columns = unionColumns(t.columns)
	for _, c := range other.columns {
		if !slices.Contains(out.columns, c) {
			out.columns = append(out.columns, c)
		}
	}
	slices.Sort(out.columns)
	return out, report
}
