package path

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasuganosora/relopt/pkg/planner/clause"
	"github.com/kasuganosora/relopt/pkg/relids"
)

func seqPath(total float64) *AccessPath {
	return &AccessPath{Kind: SeqScan, Rows: 100, TotalCost: total, ParallelSafe: true}
}

func TestAddPath_DominatedCandidateRejected(t *testing.T) {
	rel := NewBaseRel(1)

	require.True(t, rel.AddPath(seqPath(10)))
	// 更贵、无额外排序、无额外参数化：被支配
	assert.False(t, rel.AddPath(seqPath(100)))
	assert.Len(t, rel.PathList, 1)
	assert.Equal(t, 10.0, rel.PathList[0].TotalCost)
}

func TestAddPath_DominatingCandidateEvictsOld(t *testing.T) {
	rel := NewBaseRel(1)

	require.True(t, rel.AddPath(seqPath(100)))
	require.True(t, rel.AddPath(seqPath(10)))
	assert.Len(t, rel.PathList, 1)
	assert.Equal(t, 10.0, rel.PathList[0].TotalCost)
}

func TestAddPath_DifferentOrderingBothSurvive(t *testing.T) {
	rel := NewBaseRel(1)
	ec := &clause.EquivalenceClass{}
	sorted := &AccessPath{Kind: IndexScan, Rows: 100, TotalCost: 50,
		PathKeys: []*clause.PathKey{{Class: ec}}}

	require.True(t, rel.AddPath(seqPath(10)))
	// 更贵但带排序：帕累托前沿上两者共存
	require.True(t, rel.AddPath(sorted))
	assert.Len(t, rel.PathList, 2)
}

func TestAddPath_SortedCheapEvictsUnsortedExpensive(t *testing.T) {
	rel := NewBaseRel(1)
	ec := &clause.EquivalenceClass{}
	sorted := &AccessPath{Kind: IndexScan, Rows: 100, TotalCost: 5,
		PathKeys: []*clause.PathKey{{Class: ec}}}

	require.True(t, rel.AddPath(seqPath(10)))
	// 排序信息更多且更便宜：无序路径被淘汰
	require.True(t, rel.AddPath(sorted))
	assert.Len(t, rel.PathList, 1)
	assert.Equal(t, IndexScan, rel.PathList[0].Kind)
}

func TestAddPath_ParameterizedBothSurvive(t *testing.T) {
	rel := NewBaseRel(2)
	ppi := rel.GetParamPathInfo(relids.New(1), 10, nil)
	param := &AccessPath{Kind: IndexScan, Rows: 10, TotalCost: 2, ParamInfo: ppi}

	require.True(t, rel.AddPath(seqPath(10)))
	// 参数化路径更便宜但依赖外侧关系，不支配未参数化路径
	require.True(t, rel.AddPath(param))
	assert.Len(t, rel.PathList, 2)
}

func TestAddPath_FuzzyTiePrefersFewerOuter(t *testing.T) {
	rel := NewBaseRel(2)
	ppi := rel.GetParamPathInfo(relids.New(1), 100, nil)
	param := &AccessPath{Kind: IndexScan, Rows: 100, TotalCost: 10, ParamInfo: ppi}

	require.True(t, rel.AddPath(param))
	// 代价在模糊区间内持平，参数化更少者胜出
	require.True(t, rel.AddPath(seqPath(10.0)))
	assert.Len(t, rel.PathList, 1)
	assert.False(t, rel.PathList[0].IsParameterized())
}

func TestAddPath_RejectLeavesStateUntouched(t *testing.T) {
	rel := NewBaseRel(1)
	require.True(t, rel.AddPath(seqPath(10)))
	require.True(t, rel.AddPath(&AccessPath{Kind: IndexScan, Rows: 100, TotalCost: 9.99,
		PathKeys: []*clause.PathKey{{Class: &clause.EquivalenceClass{}}}}))

	before := make([]*AccessPath, len(rel.PathList))
	copy(before, rel.PathList)

	assert.False(t, rel.AddPath(seqPath(1000)))
	assert.Equal(t, before, rel.PathList)
}

func TestSetCheapest(t *testing.T) {
	rel := NewBaseRel(1)
	fast := &AccessPath{Kind: IndexScan, Rows: 100, StartupCost: 5, TotalCost: 20,
		PathKeys: []*clause.PathKey{{Class: &clause.EquivalenceClass{}}}}
	cheapStart := &AccessPath{Kind: SeqScan, Rows: 100, StartupCost: 0, TotalCost: 30}

	require.True(t, rel.AddPath(fast))
	require.True(t, rel.AddPath(cheapStart))
	rel.SetCheapest()

	assert.Same(t, fast, rel.CheapestTotal)
	assert.Same(t, cheapStart, rel.CheapestStartup)

	// 不变量：最优总代价不大于任何未参数化路径
	for _, p := range rel.PathList {
		if !p.IsParameterized() {
			assert.LessOrEqual(t, rel.CheapestTotal.TotalCost, p.TotalCost)
		}
	}
}

func TestSetCheapest_EmptyPathlistPanics(t *testing.T) {
	rel := NewBaseRel(1)
	assert.Panics(t, func() { rel.SetCheapest() })
}

func TestSetCheapest_OnlyParameterized(t *testing.T) {
	rel := NewBaseRel(3)
	p1 := rel.GetParamPathInfo(relids.New(1), 10, nil)
	p12 := rel.GetParamPathInfo(relids.New(1, 2), 5, nil)

	a := &AccessPath{Kind: IndexScan, Rows: 10, TotalCost: 8, ParamInfo: p1}
	b := &AccessPath{Kind: IndexScan, Rows: 5, TotalCost: 3, ParamInfo: p12,
		PathKeys: []*clause.PathKey{{Class: &clause.EquivalenceClass{}}}}
	require.True(t, rel.AddPath(a))
	require.True(t, rel.AddPath(b))
	rel.SetCheapest()

	// 全是参数化路径时取 required-outer 最少者
	assert.Same(t, a, rel.CheapestTotal)
	assert.Same(t, a, rel.CheapestStartup)
}

func TestSetDummy(t *testing.T) {
	rel := NewBaseRel(1)
	rel.Rows = 500
	require.True(t, rel.AddPath(seqPath(10)))

	rel.SetDummy()

	assert.Equal(t, 0.0, rel.Rows)
	assert.Equal(t, 0, rel.Width)
	require.Len(t, rel.PathList, 1)
	assert.Equal(t, Append, rel.CheapestTotal.Kind)
	assert.Empty(t, rel.CheapestTotal.Subpaths)
	assert.True(t, rel.IsDummy())
}

func TestIsDummy_FalseForNormalRelation(t *testing.T) {
	rel := NewBaseRel(1)
	require.True(t, rel.AddPath(seqPath(10)))
	rel.SetCheapest()
	assert.False(t, rel.IsDummy())
}

func TestGetParamPathInfo_Shared(t *testing.T) {
	rel := NewBaseRel(2)

	a := rel.GetParamPathInfo(relids.New(1), 42, nil)
	b := rel.GetParamPathInfo(relids.New(1), 99, nil)
	c := rel.GetParamPathInfo(relids.New(3), 7, nil)

	// 相同参数化共享同一实例，行数估计保持一致
	assert.Same(t, a, b)
	assert.Equal(t, 42.0, b.Rows)
	assert.NotSame(t, a, c)
}

func TestAddPartialPath(t *testing.T) {
	rel := NewBaseRel(1)
	rel.ConsiderParallel = true

	ok := rel.AddPartialPath(&AccessPath{Kind: SeqScan, Rows: 50, TotalCost: 5,
		ParallelSafe: true, ParallelWorkers: 2})
	assert.True(t, ok)

	// 非并行安全的路径被拒绝
	assert.False(t, rel.AddPartialPath(&AccessPath{Kind: SeqScan, ParallelSafe: false}))

	// 参数化路径被拒绝
	ppi := rel.GetParamPathInfo(relids.New(2), 10, nil)
	assert.False(t, rel.AddPartialPath(&AccessPath{Kind: IndexScan, ParallelSafe: true, ParamInfo: ppi}))
}

func TestReparameterize_StrictlyMoreExpensive(t *testing.T) {
	rel := NewBaseRel(2)
	orig := &AccessPath{Kind: SeqScan, Rows: 100, StartupCost: 1, TotalCost: 10}
	ppi := rel.GetParamPathInfo(relids.New(1), 50, nil)

	rp := Reparameterize(orig, ppi)

	assert.Greater(t, rp.TotalCost, orig.TotalCost)
	assert.Greater(t, rp.StartupCost, orig.StartupCost)
	assert.Equal(t, 50.0, rp.Rows)
	assert.Same(t, ppi, rp.ParamInfo)
	// 原路径不受影响
	assert.Nil(t, orig.ParamInfo)
}
