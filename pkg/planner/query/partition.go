package query

import (
	"fmt"

	"github.com/kasuganosora/relopt/pkg/relids"
)

// PartitionStrategy 分区策略
type PartitionStrategy int

const (
	PartitionRange PartitionStrategy = iota
	PartitionList
)

// BoundValue 分区边界值
// 数值分区键和字符串分区键共用一个表示
type BoundValue struct {
	IsStr bool
	Str   string
	Num   float64
}

// NumBound 构造数值边界
func NumBound(v float64) *BoundValue {
	return &BoundValue{Num: v}
}

// StrBound 构造字符串边界
func StrBound(v string) *BoundValue {
	return &BoundValue{IsStr: true, Str: v}
}

// PartitionBound 一个子分区的边界
// Range 分区用 [Lower, Upper)，nil 表示无界；List 分区用值列表
type PartitionBound struct {
	Lower      *BoundValue
	Upper      *BoundValue
	ListValues []*BoundValue
}

// PartitionChild 一个子分区
type PartitionChild struct {
	// RTEIndex 子关系的范围表索引
	RTEIndex int
	Bound    *PartitionBound
}

// PartitionDesc 分区描述
type PartitionDesc struct {
	Strategy PartitionStrategy

	// KeyColumn 分区键列名（父关系上的列）
	KeyColumn string

	Children []PartitionChild
}

// NumParts 返回子分区个数
func (pd *PartitionDesc) NumParts() int {
	return len(pd.Children)
}

// AppendInfo 父子关系列映射
// 每个 (父关系, 子关系) 对一条，分区/继承/UNION ALL 展开时创建，之后不变
type AppendInfo struct {
	ParentRelid int
	ChildRelid  int

	// ParentTable 父表标识，用于缺列报错
	ParentTable string

	// ChildTable 子表标识，翻译后的列引用挂在它名下
	ChildTable string

	// ColumnMap 父列名 -> 子列名
	ColumnMap map[string]string
}

// TranslateColumn 把父列名翻译为子列名
// 子关系缺少该列视为模式损坏
func (ai *AppendInfo) TranslateColumn(parentCol string) (string, error) {
	child, ok := ai.ColumnMap[parentCol]
	if !ok {
		return "", fmt.Errorf("append info: column %q of parent table %q has no counterpart in child relation %d",
			parentCol, ai.ParentTable, ai.ChildRelid)
	}
	return child, nil
}

// TranslateRelids 把集合中的父关系索引替换为子关系索引
func (ai *AppendInfo) TranslateRelids(s *relids.RelidSet) *relids.RelidSet {
	if !s.IsMember(ai.ParentRelid) {
		return s.Clone()
	}
	return s.Difference(relids.New(ai.ParentRelid)).Add(ai.ChildRelid)
}
