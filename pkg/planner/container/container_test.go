package container

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasuganosora/relopt/pkg/planner"
	"github.com/kasuganosora/relopt/pkg/planner/path"
	"github.com/kasuganosora/relopt/pkg/planner/query"
	"github.com/kasuganosora/relopt/pkg/planner/statistics"
)

func newTestContainer() Container {
	provider := statistics.NewStaticProvider()
	provider.Register(&statistics.TableStatistics{TableName: "t", RowCount: 1000})
	return NewContainer(planner.DefaultConfig(), provider)
}

func TestContainer_RegisterAndGet(t *testing.T) {
	c := newTestContainer()

	c.Register("custom.service", 42)
	v, ok := c.Get("custom.service")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	// 同名覆盖
	c.Register("custom.service", 43)
	v, _ = c.Get("custom.service")
	assert.Equal(t, 43, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
	assert.False(t, c.Has("missing"))
}

func TestContainer_MustGetPanicsOnMissing(t *testing.T) {
	c := newTestContainer()
	assert.Panics(t, func() { c.MustGet("missing") })
	assert.NotNil(t, c.MustGet(ServiceCostModel))
}

func TestContainer_DefaultServices(t *testing.T) {
	c := newTestContainer()

	assert.True(t, c.Has(ServiceCostModel))
	assert.True(t, c.Has(ServiceStatsProvider))
	assert.True(t, c.Has(ServiceParallelSynth))
	assert.True(t, c.Has(ServicePushdownAnalyzer))

	b := NewBuilder(c)
	assert.NotNil(t, b.GetCostModel())
	assert.NotNil(t, b.GetParallelSynthesizer())
	assert.NotNil(t, b.GetStatsProvider())
}

func TestContainer_NoStatsProvider(t *testing.T) {
	c := NewContainer(planner.DefaultConfig(), nil)
	assert.False(t, c.Has(ServiceStatsProvider))
	assert.Nil(t, NewBuilder(c).GetStatsProvider())
}

type markerHook struct{ called bool }

func (h *markerHook) GenerateRelPaths(rel *path.RelationDescriptor, rte *query.RangeTableEntry) bool {
	h.called = true
	rel.AddPath(&path.AccessPath{Kind: path.SeqScan, Rows: 1, TotalCost: 1, ParallelSafe: true})
	rel.Rows = 1
	return true
}

func TestBuilder_BuildPlannerWiresHooks(t *testing.T) {
	c := newTestContainer()
	hook := &markerHook{}
	c.Register(ServiceRelPathlistHook, hook)

	p := NewBuilder(c).BuildPlanner()
	require.NotNil(t, p)
	assert.Same(t, hook, p.PathHook)

	q := &query.ResolvedQuery{
		RangeTable: []*query.RangeTableEntry{{
			Kind: query.RTERelation, TableName: "t",
			Columns: []query.ColumnDef{{Name: "a", AttNo: 1, Width: 4}},
		}},
		LimitCount:  -1,
		LimitOffset: -1,
	}
	final, err := p.PlanQuery(q)
	require.NoError(t, err)
	assert.True(t, hook.called)
	assert.InDelta(t, 1.0, final.Rows, 1e-9)
}
