package path

import (
	"fmt"

	"github.com/kasuganosora/relopt/pkg/planner/clause"
	"github.com/kasuganosora/relopt/pkg/planner/cost"
	"github.com/kasuganosora/relopt/pkg/relids"
)

// PathKind 候选路径类型
type PathKind int

const (
	SeqScan PathKind = iota
	IndexScan
	BitmapHeapScan
	SampleScan
	SubqueryScan
	ValuesScan
	FunctionScan
	TableFuncScan
	CTEScan
	ForeignScan
	Append
	MergeAppend
	NestLoop
	MergeJoin
	HashJoin
	Material
	Sort
	Unique
	Gather
	GatherMerge
	Limit
	Agg
)

// String 返回路径类型名
func (k PathKind) String() string {
	names := [...]string{
		"SeqScan", "IndexScan", "BitmapHeapScan", "SampleScan", "SubqueryScan",
		"ValuesScan", "FunctionScan", "TableFuncScan", "CTEScan", "ForeignScan",
		"Append", "MergeAppend", "NestLoop", "MergeJoin", "HashJoin",
		"Material", "Sort", "Unique", "Gather", "GatherMerge", "Limit", "Agg",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return fmt.Sprintf("PathKind(%d)", int(k))
}

// IsJoin 判断是否是连接路径
func (k PathKind) IsJoin() bool {
	return k == NestLoop || k == MergeJoin || k == HashJoin
}

// ParamPathInfo 参数化信息
// 同一关系上 required-outer 集合相同的所有路径共享同一个实例，
// 保证行数估计一致
type ParamPathInfo struct {
	// ReqOuter 路径依赖取值的外侧关系集合
	ReqOuter *relids.RelidSet

	// Rows 参数化后的行数估计
	Rows float64

	// Clauses 参数化求值时可用的连接条件
	Clauses []*clause.RestrictionClause
}

// AccessPath 候选执行策略
// 一个关系或连接的带代价执行方案；Rows 反映路径自身过滤后的行数，
// 参数化路径的行数可以小于关系的基础估计
type AccessPath struct {
	Kind   PathKind
	Parent *RelationDescriptor

	Rows        float64
	StartupCost float64
	TotalCost   float64

	// PathKeys 输出排序，nil 表示无序
	PathKeys []*clause.PathKey

	// ParamInfo 参数化信息，nil 表示无参数化
	ParamInfo *ParamPathInfo

	ParallelSafe    bool
	ParallelWorkers int

	// IndexName 索引类路径使用的索引
	IndexName string

	// Subpath 单子路径包装器（Sort/Material/Gather 等）
	Subpath *AccessPath

	// Outer/Inner 连接路径的两个输入
	Outer *AccessPath
	Inner *AccessPath

	// JoinClauses 连接路径在本层求值的条件
	JoinClauses []*clause.RestrictionClause

	// Subpaths Append/MergeAppend 的子路径
	Subpaths []*AccessPath
}

// Cost 返回 (启动, 总) 代价对
func (p *AccessPath) Cost() cost.Cost {
	return cost.Cost{Startup: p.StartupCost, Total: p.TotalCost}
}

// RequiredOuter 返回参数化依赖的外侧关系集合（未参数化返回 nil）
func (p *AccessPath) RequiredOuter() *relids.RelidSet {
	if p.ParamInfo == nil {
		return nil
	}
	return p.ParamInfo.ReqOuter
}

// IsParameterized 判断路径是否参数化
func (p *AccessPath) IsParameterized() bool {
	return p.ParamInfo != nil && !p.ParamInfo.ReqOuter.IsEmpty()
}

// 重参数化代价上浮系数：改挂参数集合需要重算内侧条件，严格贵于原路径
const reparamCostFactor = 1.1

// Reparameterize 把一条较少参数化的路径改挂到更大的 required-outer 集合上
// 返回代价严格更高的副本，绝不复用原路径的代价
func Reparameterize(p *AccessPath, ppi *ParamPathInfo) *AccessPath {
	cp := *p
	cp.ParamInfo = ppi
	cp.StartupCost = p.StartupCost * reparamCostFactor
	cp.TotalCost = p.TotalCost * reparamCostFactor
	if ppi.Rows > 0 && ppi.Rows < cp.Rows {
		cp.Rows = ppi.Rows
	}
	return &cp
}
