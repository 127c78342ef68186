package statistics

import (
	"testing"
	"time"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseExpr(t *testing.T, s string) ast.ExprNode {
	t.Helper()
	p := parser.New()
	stmt, err := p.ParseOneStmt("SELECT 1 FROM t WHERE "+s, "", "")
	require.NoError(t, err)
	return stmt.(*ast.SelectStmt).Where
}

func sampleStats() *TableStatistics {
	return &TableStatistics{
		TableName: "orders",
		RowCount:  10000,
		Columns: map[string]*ColumnStatistics{
			"id":     {DistinctCount: 10000},
			"status": {DistinctCount: 4},
		},
	}
}

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider()
	p.Register(sampleStats())

	stats, err := p.TableStatistics("orders")
	require.NoError(t, err)
	assert.Equal(t, int64(10000), stats.RowCount)

	_, err = p.TableStatistics("missing")
	require.Error(t, err)
	var noStats *ErrNoStatistics
	assert.ErrorAs(t, err, &noStats)
	assert.Equal(t, "missing", noStats.TableName)
}

// countingProvider 记录上游访问次数
type countingProvider struct {
	inner *StaticProvider
	calls int
}

func (c *countingProvider) TableStatistics(name string) (*TableStatistics, error) {
	c.calls++
	return c.inner.TableStatistics(name)
}

func TestCachedProvider_HitAndExpiry(t *testing.T) {
	inner := NewStaticProvider()
	inner.Register(sampleStats())
	upstream := &countingProvider{inner: inner}

	p := NewCachedProvider(upstream, time.Hour)

	_, err := p.TableStatistics("orders")
	require.NoError(t, err)
	_, err = p.TableStatistics("orders")
	require.NoError(t, err)
	assert.Equal(t, 1, upstream.calls)
	assert.Equal(t, 0.5, p.HitRate())

	// 失效后重新访问上游
	p.Invalidate("orders")
	_, err = p.TableStatistics("orders")
	require.NoError(t, err)
	assert.Equal(t, 2, upstream.calls)
}

func TestCachedProvider_TTLExpires(t *testing.T) {
	inner := NewStaticProvider()
	inner.Register(sampleStats())
	upstream := &countingProvider{inner: inner}

	p := NewCachedProvider(upstream, time.Nanosecond)
	_, _ = p.TableStatistics("orders")
	time.Sleep(time.Millisecond)
	_, _ = p.TableStatistics("orders")
	assert.Equal(t, 2, upstream.calls)
}

func TestClauseSelectivity(t *testing.T) {
	stats := sampleStats()

	tests := []struct {
		name string
		expr string
		want float64
	}{
		{"eq with distinct stats", "status = 'open'", 0.25},
		{"eq unknown column", "other = 1", DefaultEqSelectivity},
		{"range", "id > 100", DefaultRangeSelectivity},
		{"default", "id IS NULL", DefaultSelectivity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClauseSelectivity(stats, parseExpr(t, tt.expr))
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestClauseSelectivity_AndOr(t *testing.T) {
	stats := sampleStats()

	and := ClauseSelectivity(stats, parseExpr(t, "status = 'open' AND id > 100"))
	assert.InDelta(t, 0.25*DefaultRangeSelectivity, and, 1e-9)

	or := ClauseSelectivity(stats, parseExpr(t, "status = 'open' OR id > 100"))
	assert.InDelta(t, 0.25+DefaultRangeSelectivity-0.25*DefaultRangeSelectivity, or, 1e-9)
}

func TestJoinSelectivity(t *testing.T) {
	left := sampleStats()
	right := &TableStatistics{
		TableName: "customers",
		RowCount:  500,
		Columns:   map[string]*ColumnStatistics{"id": {DistinctCount: 500}},
	}

	// 取两侧不同值个数的较大者
	sel := JoinSelectivity(left, right, "id", "id")
	assert.InDelta(t, 1.0/10000.0, sel, 1e-12)

	// 两侧都没有统计信息时退回默认值
	sel = JoinSelectivity(left, right, "none", "none")
	assert.Equal(t, DefaultEqSelectivity, sel)
}
