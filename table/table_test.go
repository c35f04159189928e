package table

import (
	"os"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftahirops/nbstat/resource"
)

func TestMain(m *testing.M) {
	lipgloss.SetColorProfile(termenv.Ascii)
	os.Exit(m.Run())
}

func proc(pid int64, path string, extra ...any) Row {
	v := map[resource.Resource]Value{
		resource.PID:  Int(pid),
		resource.Path: String(path),
	}
	for i := 0; i+1 < len(extra); i += 2 {
		v[extra[i].(resource.Resource)] = extra[i+1].(Value)
	}
	return NewRow(v)
}

func pids(t Table) []int64 {
	out := make([]int64, 0, t.Len())
	for _, r := range t.Rows() {
		n, _ := r.Get(resource.PID).Int64()
		out = append(out, n)
	}
	return out
}

func TestLookupAliasInvariance(t *testing.T) {
	r := NewRow(map[resource.Resource]Value{
		resource.DeviceTemp:              Int(61),
		resource.DeviceProcessMemoryUsed: Int(1 << 20),
		resource.Kernel:                  String("abcd-ef"),
	})
	for _, res := range []resource.Resource{resource.DeviceTemp, resource.DeviceProcessMemoryUsed, resource.Kernel, resource.CPU} {
		want := r.Get(res)
		for _, alias := range res.Aliases() {
			got, err := r.Lookup(alias)
			require.NoError(t, err)
			assert.Equal(t, want, got, "alias %s", alias)
		}
	}
	_, err := r.Lookup("nope")
	assert.ErrorIs(t, err, resource.ErrUnknownAlias)
}

func TestRowWithAndUnion(t *testing.T) {
	a := proc(1, "a", resource.CPU, Float(3))
	b := a.With(resource.CPU, Float(9))
	assert.Equal(t, 3.0, mustFloat(a.Get(resource.CPU)))
	assert.Equal(t, 9.0, mustFloat(b.Get(resource.CPU)))
	assert.False(t, b.With(resource.CPU, Missing).Has(resource.CPU))

	u := a.Union(proc(2, "b", resource.RSS, Int(7)))
	assert.Equal(t, int64(1), mustInt(u.Get(resource.PID)), "left wins")
	assert.Equal(t, int64(7), mustInt(u.Get(resource.RSS)))
}

func TestFilterIsSubsequence(t *testing.T) {
	tbl := New(
		proc(5, "x"), proc(3, "y"), proc(8, "x"), proc(1, "z"), proc(9, "y"),
	)
	preds := map[string]func(Row) bool{
		"none":   func(Row) bool { return false },
		"all":    func(Row) bool { return true },
		"odd":    func(r Row) bool { return mustInt(r.Get(resource.PID))%2 == 1 },
		"path_x": func(r Row) bool { return r.Get(resource.Path).Str() == "x" },
	}
	for name, p := range preds {
		t.Run(name, func(t *testing.T) {
			got := pids(tbl.Filter(p))
			all := pids(tbl)
			i := 0
			for _, g := range got {
				for i < len(all) && all[i] != g {
					i++
				}
				require.Less(t, i, len(all), "%v is not a subsequence of %v", got, all)
				i++
			}
		})
	}
	assert.Equal(t, 5, tbl.Len(), "receiver unchanged")
}

func TestSortIsStable(t *testing.T) {
	tbl := New(
		proc(1, "b"), proc(2, "a"), proc(3, "b"), proc(4, "a"), proc(5, "b"),
	)
	sorted := tbl.Sort(func(a, b Row) int { return Compare(a.Get(resource.Path), b.Get(resource.Path)) })
	assert.Equal(t, []int64{2, 4, 1, 3, 5}, pids(sorted))
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, pids(tbl))

	desc := tbl.SortBy(resource.PID, true)
	assert.Equal(t, []int64{5, 4, 3, 2, 1}, pids(desc))
}

func TestMergeIsTotal(t *testing.T) {
	left := New(proc(1, "a"), proc(2, "a"), proc(3, "b"))
	right := New(
		NewRow(map[resource.Resource]Value{resource.PID: Int(2), resource.DeviceProcessMemoryUsed: Int(100)}),
		NewRow(map[resource.Resource]Value{resource.PID: Int(42), resource.DeviceProcessMemoryUsed: Int(5)}),
	)
	merged, report := left.Merge(right, On(resource.PID))
	require.Equal(t, left.Len(), merged.Len())
	assert.Equal(t, []int64{1, 2, 3}, pids(merged))
	assert.True(t, merged.Row(0).Get(resource.DeviceProcessMemoryUsed).IsMissing())
	assert.Equal(t, int64(100), mustInt(merged.Row(1).Get(resource.DeviceProcessMemoryUsed)))
	assert.Equal(t, []int{1}, report.Unmatched())
	assert.True(t, merged.HasColumn(resource.DeviceProcessMemoryUsed))

	empty, _ := left.Merge(New(), On(resource.PID))
	assert.Equal(t, left.Len(), empty.Len())
}

func TestMergeFallback(t *testing.T) {
	left := New(proc(101, "a.ipynb", resource.NGID, Int(999)))
	right := New(NewRow(map[resource.Resource]Value{
		resource.HostPID:                 Int(999),
		resource.DeviceProcessMemoryUsed: Int(512),
	}))
	merged, report := left.Merge(right, JoinKey{resource.PID, resource.HostPID}, JoinKey{resource.NGID, resource.HostPID})
	assert.Equal(t, int64(512), mustInt(merged.Row(0).Get(resource.DeviceProcessMemoryUsed)))
	assert.Equal(t, 1, report.ByFallback)
	assert.Empty(t, report.Unmatched())
}

func TestMergeAmbiguityLowestPositionWins(t *testing.T) {
	left := New(proc(7, "a"))
	right := New(
		NewRow(map[resource.Resource]Value{resource.PID: Int(7), resource.DeviceID: Int(3)}),
		NewRow(map[resource.Resource]Value{resource.PID: Int(7), resource.DeviceID: Int(1)}),
	)
	for n := 0; n < 3; n++ {
		merged, report := left.Merge(right, On(resource.PID))
		assert.Equal(t, int64(3), mustInt(merged.Row(0).Get(resource.DeviceID)))
		require.Len(t, report.Ambiguities, 1)
		assert.Equal(t, []int{0, 1}, report.Ambiguities[0].Candidates)
		assert.Equal(t, []int{1}, report.Unmatched())
	}
}

func TestGroups(t *testing.T) {
	tbl := New(
		proc(1, "b"), proc(2, "a"), proc(3, "b"), proc(4, "c"), proc(5, "a"),
	).SetIndex(resource.Path)

	assert.Equal(t, []int64{1, 3, 2, 5, 4}, pids(tbl))
	groups := tbl.Groups()
	require.Len(t, groups, 3)
	assert.Equal(t, "b", groups[0].Key.Str())
	assert.Equal(t, []int64{2, 5}, pids(groups[1].Rows))

	kept := tbl.FilterGroups(func(g Group) bool { return g.Key.Str() != "b" })
	assert.Equal(t, []int64{2, 5, 4}, pids(kept))

	byKey := tbl.SortGroups(func(a, b Group) int { return Compare(a.Key, b.Key) })
	assert.Equal(t, []int64{2, 5, 1, 3, 4}, pids(byKey))

	inner := tbl.SortWithinGroups(func(a, b Row) int { return -Compare(a.Get(resource.PID), b.Get(resource.PID)) })
	assert.Equal(t, []int64{3, 1, 5, 2, 4}, pids(inner))

	assert.Len(t, New(proc(1, "a")).Groups(), 1)
	assert.Empty(t, New().SetIndex(resource.Path).Groups())
}

func TestAggregate(t *testing.T) {
	tbl := New(
		proc(1, "a", resource.CPU, Float(1.5)),
		proc(2, "a", resource.CPU, Float(2.5)),
		proc(3, "a"),
	)
	assert.Equal(t, 4.0, mustFloat(tbl.Aggregate(resource.CPU, Sum)))
	assert.Equal(t, int64(1), mustInt(tbl.Aggregate(resource.PID, Min)))
	assert.True(t, tbl.Aggregate(resource.RSS, Sum).IsMissing())
}

func TestCompareMissingLast(t *testing.T) {
	now := time.Now()
	assert.Equal(t, 1, Compare(Missing, Int(0)))
	assert.Equal(t, -1, Compare(Int(0), Missing))
	assert.Equal(t, -1, Compare(Int(1), Float(1.5)))
	assert.Equal(t, -1, Compare(Time(now), Time(now.Add(time.Second))))
	assert.Zero(t, Compare(Int(2), Float(2)))
	assert.Zero(t, Compare(Missing, Missing))
}

func mustInt(v Value) int64 {
	n, ok := v.Int64()
	if !ok {
		panic("not a number: " + v.String())
	}
	return n
}

func mustFloat(v Value) float64 {
	f, ok := v.Float64()
	if !ok {
		panic("not a number: " + v.String())
	}
	return f
}
