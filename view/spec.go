// Package view describes which columns a table shows and holds the
// keystroke-driven state of the watch modes.
package view

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ftahirops/nbstat/resource"
)

// ErrNotInView is returned when a valid alias names a column this view does
// not declare.
var ErrNotInView = errors.New("column not available in this view")

// Column is one entry of a Spec.
type Column struct {
	Resource resource.Resource
	Include  bool
	MinWidth int
	// Hidable cells are blanked when equal to the previous row of the group.
	Hidable bool
	// HasBar columns can be drawn as utilization bars; Bar is the current state.
	HasBar bool
	Bar    bool
}

// Spec is the ordered column layout of a table. Excluded columns stay in
// place so they can be switched back on at their declared position.
type Spec struct {
	columns []Column
}

func NewSpec(columns ...Column) *Spec {
	return &Spec{columns: slices.Clone(columns)}
}

func (s *Spec) Clone() *Spec {
	return NewSpec(s.columns...)
}

// Columns returns every declared column, included or not.
func (s *Spec) Columns() []Column {
	return slices.Clone(s.columns)
}

// Contains reports whether res is declared by the spec.
func (s *Spec) Contains(res resource.Resource) bool {
	return slices.ContainsFunc(s.columns, func(c Column) bool { return c.Resource == res })
}

func (s *Spec) resolve(alias string) (resource.Resource, error) {
	res, err := resource.Parse(alias)
	if err != nil {
		return resource.None, err
	}
	if !s.Contains(res) {
		return res, fmt.Errorf("%w: %s", ErrNotInView, alias)
	}
	return res, nil
}

// IsIncluded reports whether the column named by alias is shown. Unknown
// aliases are never included.
func (s *Spec) IsIncluded(alias string) bool {
	res, err := resource.Parse(alias)
	if err != nil {
		return false
	}
	return s.Includes(res)
}

// Includes reports whether any entry for res is switched on.
func (s *Spec) Includes(res resource.Resource) bool {
	return slices.ContainsFunc(s.columns, func(c Column) bool { return c.Resource == res && c.Include })
}

// Set switches every entry for alias on or off.
func (s *Spec) Set(alias string, include bool) error {
	res, err := s.resolve(alias)
	if err != nil {
		return err
	}
	s.SetResource(res, include)
	return nil
}

// SetResource is Set for a known resource. It reports whether res is declared.
func (s *Spec) SetResource(res resource.Resource, include bool) bool {
	found := false
	for i := range s.columns {
		if s.columns[i].Resource == res {
			s.columns[i].Include = include
			found = true
		}
	}
	return found
}

// Toggle flips the column named by alias.
func (s *Spec) Toggle(alias string) error {
	res, err := s.resolve(alias)
	if err != nil {
		return err
	}
	s.ToggleResource(res)
	return nil
}

// ToggleResource flips res if the spec declares it.
func (s *Spec) ToggleResource(res resource.Resource) bool {
	return s.SetResource(res, !s.Includes(res))
}

// IncludeAll switches every column on.
func (s *Spec) IncludeAll() {
	for i := range s.columns {
		s.columns[i].Include = true
	}
}

// ApplyFlags applies --show-all, then --show, then --hide, so a column both
// shown and hidden ends up hidden. Unknown aliases are errors; valid aliases
// this view does not declare are ignored, since the same flags configure
// every view of a watch session.
func (s *Spec) ApplyFlags(show, hide []string, showAll bool) error {
	if showAll {
		s.IncludeAll()
	}
	var errs []error
	apply := func(aliases []string, include bool) {
		for _, alias := range aliases {
			err := s.Set(alias, include)
			if err != nil && !errors.Is(err, ErrNotInView) {
				errs = append(errs, err)
			}
		}
	}
	apply(show, true)
	apply(hide, false)
	return errors.Join(errs...)
}

// ToggleBars flips the bar representation of every bar-capable column.
func (s *Spec) ToggleBars() {
	for i := range s.columns {
		if s.columns[i].HasBar {
			s.columns[i].Bar = !s.columns[i].Bar
		}
	}
}

// Included returns the shown columns in order. Runs of adjacent delimiters
// collapse into the heaviest one; leading and trailing delimiters are
// dropped.
func (s *Spec) Included() []Column {
	var out []Column
	for _, c := range s.columns {
		if !c.Include {
			continue
		}
		if c.Resource.IsDelimiter() {
			if len(out) == 0 {
				continue
			}
			if last := &out[len(out)-1]; last.Resource.IsDelimiter() {
				if c.Resource > last.Resource {
					*last = c
				}
				continue
			}
		}
		out = append(out, c)
	}
	if n := len(out); n > 0 && out[n-1].Resource.IsDelimiter() {
		out = out[:n-1]
	}
	return out
}

// IncludedResources lists the resources of Included.
func (s *Spec) IncludedResources() []resource.Resource {
	cols := s.Included()
	out := make([]resource.Resource, len(cols))
	for i, c := range cols {
		out[i] = c.Resource
	}
	return out
}

// IncludedNames lists the preferred aliases of shown data columns.
func (s *Spec) IncludedNames() []string {
	var out []string
	for _, c := range s.Included() {
		if !c.Resource.IsDelimiter() {
			out = append(out, c.Resource.Alias())
		}
	}
	return out
}

// ExcludedNames lists the preferred aliases of hidden data columns.
func (s *Spec) ExcludedNames() []string {
	var out []string
	for _, c := range s.columns {
		if !c.Include && !c.Resource.IsDelimiter() && !slices.Contains(out, c.Resource.Alias()) {
			out = append(out, c.Resource.Alias())
		}
	}
	return out
}
