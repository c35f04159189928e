package table

import (
	"slices"

	"github.com/ftahirops/nbstat/resource"
)

// Row is an immutable mapping from Resource to Value. Lookups of absent
// resources yield Missing.
type Row struct {
	values map[resource.Resource]Value
}

// NewRow copies values into a Row, dropping Missing entries.
func NewRow(values map[resource.Resource]Value) Row {
	r := Row{values: make(map[resource.Resource]Value, len(values))}
	for k, v := range values {
		if !v.IsMissing() {
			r.values[k] = v
		}
	}
	return r
}

func (r Row) Get(res resource.Resource) Value {
	if r.values == nil {
		return Missing
	}
	return r.values[res]
}

// Lookup resolves alias through the catalog, so every alias of a Resource
// yields the same Value.
func (r Row) Lookup(alias string) (Value, error) {
	res, err := resource.Parse(alias)
	if err != nil {
		return Missing, err
	}
	return r.Get(res), nil
}

func (r Row) Has(res resource.Resource) bool {
	_, ok := r.values[res]
	return ok
}

func (r Row) Len() int { return len(r.values) }

// With returns a copy of r with res set to v. Setting Missing removes res.
func (r Row) With(res resource.Resource, v Value) Row {
	out := Row{values: make(map[resource.Resource]Value, len(r.values)+1)}
	for k, x := range r.values {
		out.values[k] = x
	}
	if v.IsMissing() {
		delete(out.values, res)
	} else {
		out.values[res] = v
	}
	return out
}

// Union returns r extended with the values of other that r lacks.
func (r Row) Union(other Row) Row {
	out := Row{values: make(map[resource.Resource]Value, len(r.values)+len(other.values))}
	for k, v := range other.values {
		out.values[k] = v
	}
	for k, v := range r.values {
		out.values[k] = v
	}
	return out
}

// Resources lists the populated resources in catalog order.
func (r Row) Resources() []resource.Resource {
	out := make([]resource.Resource, 0, len(r.values))
	for k := range r.values {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
