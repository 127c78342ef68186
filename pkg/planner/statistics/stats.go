package statistics

import (
	"fmt"
	"time"
)

// ColumnStatistics 列统计信息
type ColumnStatistics struct {
	// DistinctCount 不同值个数，<=0 表示未知
	DistinctCount int64
	NullFraction  float64
	// Min/Max 数值列的取值范围
	Min float64
	Max float64
}

// TableStatistics 表统计信息
type TableStatistics struct {
	TableName string
	RowCount  int64
	Columns   map[string]*ColumnStatistics
	// CollectedAt 采集时间，缓存按它判断过期
	CollectedAt time.Time
}

// Column 返回列统计，未采集的列返回 nil
func (ts *TableStatistics) Column(name string) *ColumnStatistics {
	if ts == nil {
		return nil
	}
	return ts.Columns[name]
}

// Provider is the statistics source the planner sizes relations from.
type Provider interface {
	// TableStatistics returns statistics for the named table.
	// Returns an error if the table is unknown to the provider.
	TableStatistics(tableName string) (*TableStatistics, error)
}

// ErrNoStatistics 表未采集统计信息
type ErrNoStatistics struct {
	TableName string
}

func (e *ErrNoStatistics) Error() string {
	return fmt.Sprintf("statistics: no statistics for table %s", e.TableName)
}

// StaticProvider 静态统计信息源
// 由调用方一次性登记，规划期间只读；测试和嵌入场景用
type StaticProvider struct {
	tables map[string]*TableStatistics
}

// NewStaticProvider 创建静态统计信息源
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{tables: make(map[string]*TableStatistics)}
}

// Register 登记一张表的统计信息
func (p *StaticProvider) Register(stats *TableStatistics) {
	if stats.CollectedAt.IsZero() {
		stats.CollectedAt = time.Now()
	}
	p.tables[stats.TableName] = stats
}

// TableStatistics 实现 Provider
func (p *StaticProvider) TableStatistics(tableName string) (*TableStatistics, error) {
	stats, ok := p.tables[tableName]
	if !ok {
		return nil, &ErrNoStatistics{TableName: tableName}
	}
	return stats, nil
}
