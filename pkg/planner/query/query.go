package query

import (
	"fmt"
	"strings"

	"github.com/pingcap/tidb/pkg/parser/ast"

	"github.com/kasuganosora/relopt/pkg/relids"
)

// RTEKind 范围表项类型
type RTEKind int

const (
	RTERelation RTEKind = iota
	RTESubquery
	RTEValues
	RTEFunction
	RTECTE
)

// String 返回类型名
func (k RTEKind) String() string {
	switch k {
	case RTERelation:
		return "relation"
	case RTESubquery:
		return "subquery"
	case RTEValues:
		return "values"
	case RTEFunction:
		return "function"
	case RTECTE:
		return "cte"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// ColumnDef 范围表项的一个输出列
type ColumnDef struct {
	Name  string
	AttNo int
	Width int
}

// IndexDef 关系上的一个索引
type IndexDef struct {
	Name    string
	Columns []string
	Unique  bool
	Pages   int64
}

// TargetEntry 目标列表项
type TargetEntry struct {
	Expr ast.ExprNode
	Name string
}

// SortItem 排序子句的一项
type SortItem struct {
	Expr       ast.ExprNode
	Descending bool
	NullsFirst bool
}

// WindowDef 窗口定义（只保留下推安全性分析需要的部分）
type WindowDef struct {
	Name        string
	PartitionBy []ast.ExprNode
}

// RangeTableEntry 范围表项
// 语义分析产出的一个关系/子查询/函数/VALUES/CTE 引用
type RangeTableEntry struct {
	Kind  RTEKind
	Alias string

	// 关系项字段
	TableName string
	Columns   []ColumnDef
	Indexes   []IndexDef
	// Pages 堆页数，IndexPages 索引页数（-1 表示无索引）
	Pages      int64
	IndexPages int64
	// ParallelWorkers 每关系并行度覆盖值，-1 表示走启发式
	ParallelWorkers int
	// InheritanceParent 是否带继承/分区子关系
	InheritanceParent bool
	Partition         *PartitionDesc

	// 子查询项字段
	Subquery        *ResolvedQuery
	SecurityBarrier bool

	// 函数项字段
	FuncExpr ast.ExprNode

	// VALUES 项字段
	ValuesRows int64

	// LateralRefs LATERAL 依赖的关系集合
	LateralRefs *relids.RelidSet
}

// ResolvedQuery 语义解析完成的查询
// 规划核心的输入：范围表、连接树形状、顶层限定条件与查询级标志
type ResolvedQuery struct {
	// RangeTable 有序范围表；范围表索引从 1 开始，0 保留
	RangeTable []*RangeTableEntry

	// JoinTree 显式连接顺序与外连接形状
	JoinTree *JoinTreeNode

	// Quals 顶层限定条件的合取项
	Quals []ast.ExprNode

	// HavingQuals 聚合后的限定条件合取项
	HavingQuals []ast.ExprNode

	Targets []TargetEntry

	HasAggs      bool
	HasDistinct  bool
	DistinctOn   []ast.ExprNode
	Windows      []WindowDef
	GroupingSets bool
	SortItems    []SortItem

	// LimitCount/LimitOffset 为 -1 表示未出现
	LimitCount  int64
	LimitOffset int64

	// SetOps 集合操作树（UNION/INTERSECT/EXCEPT），无集合操作时为 nil
	SetOps *SetOpNode

	// HasLocking 是否带锁定子句（FOR UPDATE 等）
	HasLocking bool
}

// RTE 按范围表索引（从 1 开始）取范围表项
// 越界是调用方破坏约定
func (q *ResolvedQuery) RTE(relid int) *RangeTableEntry {
	if relid < 1 || relid > len(q.RangeTable) {
		panic(relids.ContractError(fmt.Sprintf("query: relid %d out of range table (n=%d)", relid, len(q.RangeTable))))
	}
	return q.RangeTable[relid-1]
}

// BaseRelids 返回全部基础关系的范围表索引集合
func (q *ResolvedQuery) BaseRelids() *relids.RelidSet {
	s := relids.New()
	for i := range q.RangeTable {
		s = s.Add(i + 1)
	}
	return s
}

// ResolveColumn 实现 clause.ColumnResolver
// 先按别名匹配，再退回按列名在所有范围表项中查找。
// 调用方传的是 AST 折叠后的小写名，范围表可能保留原大小写，
// 比较一律不区分大小写
func (q *ResolvedQuery) ResolveColumn(tableAlias, column string) (int, bool) {
	if tableAlias != "" {
		for i, rte := range q.RangeTable {
			if strings.EqualFold(rte.Alias, tableAlias) || strings.EqualFold(rte.TableName, tableAlias) {
				return i + 1, true
			}
		}
		return 0, false
	}
	for i, rte := range q.RangeTable {
		for _, col := range rte.Columns {
			if strings.EqualFold(col.Name, column) {
				return i + 1, true
			}
		}
	}
	return 0, false
}

// ColumnWidth 返回某关系某列的宽度估计，未知列返回 0
func (rte *RangeTableEntry) ColumnWidth(name string) int {
	for _, col := range rte.Columns {
		if col.Name == name {
			return col.Width
		}
	}
	return 0
}

// TupleWidth 返回整行宽度估计
func (rte *RangeTableEntry) TupleWidth() int {
	w := 0
	for _, col := range rte.Columns {
		w += col.Width
	}
	return w
}
