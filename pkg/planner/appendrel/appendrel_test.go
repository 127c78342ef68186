package appendrel

import (
	"testing"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasuganosora/relopt/pkg/planner/clause"
	"github.com/kasuganosora/relopt/pkg/planner/cost"
	"github.com/kasuganosora/relopt/pkg/planner/path"
	"github.com/kasuganosora/relopt/pkg/planner/query"
	"github.com/kasuganosora/relopt/pkg/relids"
)

type mapResolver map[string]int

func (m mapResolver) ResolveColumn(tableAlias, column string) (int, bool) {
	if tableAlias != "" {
		relid, ok := m[tableAlias+"."+column]
		return relid, ok
	}
	relid, ok := m[column]
	return relid, ok
}

func parseExpr(t *testing.T, s string) ast.ExprNode {
	t.Helper()
	p := parser.New()
	stmt, err := p.ParseOneStmt("SELECT 1 FROM t WHERE "+s, "", "")
	require.NoError(t, err)
	return stmt.(*ast.SelectStmt).Where
}

func rangeParent(t *testing.T) (*path.RelationDescriptor, mapResolver) {
	t.Helper()
	res := mapResolver{"m.k": 1, "m2.k": 2, "m3.k": 3, "m4.k": 4, "m5.k": 5}

	parent := path.NewBaseRel(1)
	parent.PartDesc = &query.PartitionDesc{
		Strategy:  query.PartitionRange,
		KeyColumn: "k",
		Children: []query.PartitionChild{
			{RTEIndex: 2, Bound: &query.PartitionBound{Lower: query.NumBound(0), Upper: query.NumBound(100)}},
			{RTEIndex: 3, Bound: &query.PartitionBound{Lower: query.NumBound(100), Upper: query.NumBound(200)}},
			{RTEIndex: 4, Bound: &query.PartitionBound{Lower: query.NumBound(200), Upper: query.NumBound(300)}},
			{RTEIndex: 5, Bound: &query.PartitionBound{Lower: query.NumBound(300)}},
		},
	}
	for i := 2; i <= 5; i++ {
		ch := path.NewBaseRel(i)
		ch.Kind = path.OtherMemberRel
		parent.PartRels = append(parent.PartRels, ch)
		parent.AppendInfos = append(parent.AppendInfos, &query.AppendInfo{
			ParentRelid: 1,
			ChildRelid:  i,
			ParentTable: "m",
			ChildTable:  "m" + string(rune('0'+i)),
			ColumnMap:   map[string]string{"k": "k"},
		})
	}
	return parent, res
}

func seqChildPlanner(rows float64) ChildPlanner {
	return func(child *path.RelationDescriptor, restrict []*clause.RestrictionClause) error {
		child.Rows = rows
		child.Width = 8
		child.BaseRestrict = restrict
		child.AddPath(&path.AccessPath{Kind: path.SeqScan, Rows: rows, TotalCost: 10, ParallelSafe: true})
		child.SetCheapest()
		return nil
	}
}

func TestSizeAppendRel_FourPartitionsTwoPruned(t *testing.T) {
	parent, res := rangeParent(t)
	parent.BaseRestrict = []*clause.RestrictionClause{
		clause.NewRestriction(parseExpr(t, "m.k < 200"), res),
	}
	b := NewBuilder(cost.NewDefaultModel(cost.DefaultParams()), res)

	planned := 0
	err := b.SizeAppendRel(parent, func(child *path.RelationDescriptor, restrict []*clause.RestrictionClause) error {
		planned++
		require.Len(t, restrict, 1)
		return seqChildPlanner(100)(child, restrict)
	})
	require.NoError(t, err)

	// 4 个分区裁掉 2 个，父行数只计存活子关系
	assert.Equal(t, 2, planned)
	assert.True(t, parent.PartRels[2].IsDummy())
	assert.True(t, parent.PartRels[3].IsDummy())
	assert.False(t, parent.PartRels[0].IsDummy())
	assert.False(t, parent.PartRels[1].IsDummy())
	assert.InDelta(t, 200.0, parent.Rows, 1e-9)
	assert.Equal(t, 8, parent.Width)

	b.BuildAppendPaths(parent)
	parent.SetCheapest()
	require.NotNil(t, parent.CheapestTotal)
	assert.Equal(t, path.Append, parent.CheapestTotal.Kind)
	assert.Len(t, parent.CheapestTotal.Subpaths, 2)
}

func TestSizeAppendRel_PointLookupPrunesToOne(t *testing.T) {
	parent, res := rangeParent(t)
	parent.BaseRestrict = []*clause.RestrictionClause{
		clause.NewRestriction(parseExpr(t, "m.k = 150"), res),
	}
	b := NewBuilder(cost.NewDefaultModel(cost.DefaultParams()), res)

	err := b.SizeAppendRel(parent, seqChildPlanner(50))
	require.NoError(t, err)

	assert.True(t, parent.PartRels[0].IsDummy())
	assert.False(t, parent.PartRels[1].IsDummy())
	assert.True(t, parent.PartRels[2].IsDummy())
	assert.True(t, parent.PartRels[3].IsDummy())
	assert.InDelta(t, 50.0, parent.Rows, 1e-9)
}

func TestLivePartitions_ListStrategy(t *testing.T) {
	res := mapResolver{"m.region": 1}
	pd := &query.PartitionDesc{
		Strategy:  query.PartitionList,
		KeyColumn: "region",
		Children: []query.PartitionChild{
			{RTEIndex: 2, Bound: &query.PartitionBound{ListValues: []*query.BoundValue{query.StrBound("eu"), query.StrBound("uk")}}},
			{RTEIndex: 3, Bound: &query.PartitionBound{ListValues: []*query.BoundValue{query.StrBound("us")}}},
			{RTEIndex: 4, Bound: nil},
		},
	}
	clauses := []*clause.RestrictionClause{
		clause.NewRestriction(parseExpr(t, "m.region = 'eu'"), res),
	}

	live := NewPruner().LivePartitions(pd, clauses)
	assert.True(t, live[2])
	assert.False(t, live[3])
	// 默认分区（无边界）永远保留
	assert.True(t, live[4])
}

func TestLivePartitions_InList(t *testing.T) {
	res := mapResolver{"m.k": 1}
	pd := &query.PartitionDesc{
		Strategy:  query.PartitionRange,
		KeyColumn: "k",
		Children: []query.PartitionChild{
			{RTEIndex: 2, Bound: &query.PartitionBound{Lower: query.NumBound(0), Upper: query.NumBound(10)}},
			{RTEIndex: 3, Bound: &query.PartitionBound{Lower: query.NumBound(10), Upper: query.NumBound(20)}},
			{RTEIndex: 4, Bound: &query.PartitionBound{Lower: query.NumBound(20), Upper: query.NumBound(30)}},
		},
	}
	clauses := []*clause.RestrictionClause{
		clause.NewRestriction(parseExpr(t, "m.k IN (5, 25)"), res),
	}

	live := NewPruner().LivePartitions(pd, clauses)
	assert.True(t, live[2])
	assert.False(t, live[3])
	assert.True(t, live[4])
}

func TestLivePartitions_MismatchedValueTypeKeepsAll(t *testing.T) {
	res := mapResolver{"m.k": 1}
	pd := &query.PartitionDesc{
		Strategy:  query.PartitionRange,
		KeyColumn: "k",
		Children: []query.PartitionChild{
			{RTEIndex: 2, Bound: &query.PartitionBound{Lower: query.NumBound(0), Upper: query.NumBound(100)}},
			{RTEIndex: 3, Bound: &query.PartitionBound{Lower: query.NumBound(100), Upper: query.NumBound(200)}},
		},
	}
	clauses := []*clause.RestrictionClause{
		clause.NewRestriction(parseExpr(t, "m.k = 'abc'"), res),
	}

	// 约束值类型与边界对不上：无法判定的约束一律不裁
	live := NewPruner().LivePartitions(pd, clauses)
	assert.True(t, live[2])
	assert.True(t, live[3])
}

func TestTranslateClauses_InheritsFlags(t *testing.T) {
	res := mapResolver{"m.k": 1, "m2.k": 2}
	ai := &query.AppendInfo{
		ParentRelid: 1, ChildRelid: 2,
		ParentTable: "m", ChildTable: "m2",
		ColumnMap: map[string]string{"k": "k"},
	}
	rc := clause.NewRestriction(parseExpr(t, "m.k < 10"), res)
	rc.IsPushedDown = true
	rc.SecurityLevel = 1

	out, dummy, err := translateClauses([]*clause.RestrictionClause{rc}, ai, res)
	require.NoError(t, err)
	require.False(t, dummy)
	require.Len(t, out, 1)
	// 子关系副本沿用父子句的求值约束标记
	assert.True(t, out[0].IsPushedDown)
	assert.Equal(t, 1, out[0].SecurityLevel)
	assert.False(t, out[0].OuterJoinDelayed)
}

func TestSizeAppendRel_ConstantFalseMakesParentDummy(t *testing.T) {
	res := mapResolver{}
	parent := path.NewBaseRel(1)
	for i := 2; i <= 3; i++ {
		ch := path.NewBaseRel(i)
		ch.Kind = path.OtherMemberRel
		parent.PartRels = append(parent.PartRels, ch)
	}
	parent.BaseRestrict = []*clause.RestrictionClause{
		clause.NewRestriction(parseExpr(t, "1 = 0"), res),
	}
	b := NewBuilder(cost.NewDefaultModel(cost.DefaultParams()), res)

	err := b.SizeAppendRel(parent, seqChildPlanner(100))
	require.NoError(t, err)

	// 每个子关系都被常量假排除，父关系整体判空
	assert.True(t, parent.PartRels[0].IsDummy())
	assert.True(t, parent.PartRels[1].IsDummy())
	assert.True(t, parent.IsDummy())
	assert.Equal(t, 0.0, parent.Rows)
}

func buildLiveChild(relid int, rows, seqCost float64) *path.RelationDescriptor {
	ch := path.NewBaseRel(relid)
	ch.Kind = path.OtherMemberRel
	ch.Rows = rows
	ch.Width = 8
	ch.AddPath(&path.AccessPath{Kind: path.SeqScan, Rows: rows, TotalCost: seqCost, ParallelSafe: true})
	ch.SetCheapest()
	return ch
}

func TestBuildAppendPaths_MergeAppendWithSortFallback(t *testing.T) {
	b := NewBuilder(cost.NewDefaultModel(cost.DefaultParams()), mapResolver{})
	key := &clause.PathKey{Class: &clause.EquivalenceClass{}}

	c1 := buildLiveChild(2, 100, 10)
	c1.AddPath(&path.AccessPath{
		Kind: path.IndexScan, Rows: 100, TotalCost: 30,
		PathKeys: []*clause.PathKey{key}, IndexName: "c1_k_idx", ParallelSafe: true,
	})
	c2 := buildLiveChild(3, 50, 5)

	parent := path.NewBaseRel(1)
	parent.Rows = 150
	parent.PartRels = []*path.RelationDescriptor{c1, c2}
	b.BuildAppendPaths(parent)

	var ma *path.AccessPath
	for _, p := range parent.PathList {
		if p.Kind == path.MergeAppend {
			ma = p
		}
	}
	require.NotNil(t, ma)
	require.Len(t, ma.Subpaths, 2)
	assert.Equal(t, path.IndexScan, ma.Subpaths[0].Kind)
	// 没有有序路径的子关系在最优路径上补显式排序
	assert.Equal(t, path.Sort, ma.Subpaths[1].Kind)
	require.Len(t, ma.PathKeys, 1)
	assert.True(t, ma.PathKeys[0].SameKey(key))
	// 保序拼接要等所有子路径就绪
	assert.Greater(t, ma.StartupCost, 0.0)
}

func TestBuildAppendPaths_ParameterizedAppendReparameterizes(t *testing.T) {
	b := NewBuilder(cost.NewDefaultModel(cost.DefaultParams()), mapResolver{})
	reqOuter := relids.New(9)

	c1 := buildLiveChild(2, 100, 40)
	ppi := c1.GetParamPathInfo(reqOuter, 5, nil)
	c1.AddPath(&path.AccessPath{
		Kind: path.IndexScan, Rows: 5, TotalCost: 2,
		ParamInfo: ppi, IndexName: "c1_fk_idx",
	})
	c2 := buildLiveChild(3, 50, 20)

	parent := path.NewBaseRel(1)
	parent.Rows = 150
	parent.PartRels = []*path.RelationDescriptor{c1, c2}
	b.BuildAppendPaths(parent)

	var pa *path.AccessPath
	for _, p := range parent.PathList {
		if p.Kind == path.Append && p.IsParameterized() {
			pa = p
		}
	}
	require.NotNil(t, pa)
	assert.True(t, pa.RequiredOuter().Equals(reqOuter))
	require.Len(t, pa.Subpaths, 2)
	assert.InDelta(t, 2.0, pa.Subpaths[0].TotalCost, 1e-9)
	// 没有匹配参数化的子关系挂重参数化副本，代价严格高于原路径
	assert.Greater(t, pa.Subpaths[1].TotalCost, 20.0)
	assert.True(t, pa.Subpaths[1].RequiredOuter().Equals(reqOuter))
}

func TestBuildAppendPaths_PartialAppendWorkerCount(t *testing.T) {
	b := NewBuilder(cost.NewDefaultModel(cost.DefaultParams()), mapResolver{})

	c1 := buildLiveChild(2, 3000, 300)
	c1.AddPartialPath(&path.AccessPath{
		Kind: path.SeqScan, Rows: 1000, TotalCost: 110,
		ParallelSafe: true, ParallelWorkers: 2,
	})
	c2 := buildLiveChild(3, 9000, 900)
	c2.AddPartialPath(&path.AccessPath{
		Kind: path.SeqScan, Rows: 2250, TotalCost: 240,
		ParallelSafe: true, ParallelWorkers: 3,
	})

	parent := path.NewBaseRel(1)
	parent.Rows = 12000
	parent.PartRels = []*path.RelationDescriptor{c1, c2}
	b.BuildAppendPaths(parent)

	require.NotEmpty(t, parent.PartialPathList)
	pp := parent.PartialPathList[0]
	assert.Equal(t, path.Append, pp.Kind)
	// 工作进程数取子路径最大值
	assert.Equal(t, 3, pp.ParallelWorkers)
	assert.True(t, pp.ParallelSafe)
}

func TestBuildAppendPaths_FlattensNestedAppend(t *testing.T) {
	b := NewBuilder(cost.NewDefaultModel(cost.DefaultParams()), mapResolver{})

	inner1 := &path.AccessPath{Kind: path.SeqScan, Rows: 10, TotalCost: 1, ParallelSafe: true}
	inner2 := &path.AccessPath{Kind: path.SeqScan, Rows: 10, TotalCost: 1, ParallelSafe: true}
	nested := path.NewBaseRel(2)
	nested.Kind = path.OtherMemberRel
	nested.Rows = 20
	nested.AddPath(&path.AccessPath{
		Kind: path.Append, Rows: 20, TotalCost: 2,
		Subpaths: []*path.AccessPath{inner1, inner2}, ParallelSafe: true,
	})
	nested.SetCheapest()
	plain := buildLiveChild(3, 30, 3)

	parent := path.NewBaseRel(1)
	parent.Rows = 50
	parent.PartRels = []*path.RelationDescriptor{nested, plain}
	b.BuildAppendPaths(parent)

	var ap *path.AccessPath
	for _, p := range parent.PathList {
		if p.Kind == path.Append && !p.IsParameterized() {
			ap = p
		}
	}
	require.NotNil(t, ap)
	// 子 Append 被拍平，不留嵌套
	assert.Len(t, ap.Subpaths, 3)
	for _, sp := range ap.Subpaths {
		assert.NotEqual(t, path.Append, sp.Kind)
	}
}

func TestBuildAppendPaths_AllDummyChildren(t *testing.T) {
	b := NewBuilder(cost.NewDefaultModel(cost.DefaultParams()), mapResolver{})

	c1 := path.NewBaseRel(2)
	c1.SetDummy()
	parent := path.NewBaseRel(1)
	parent.PartRels = []*path.RelationDescriptor{c1}
	b.BuildAppendPaths(parent)

	assert.True(t, parent.IsDummy())
}
