package path

import (
	"fmt"

	"github.com/kasuganosora/relopt/pkg/planner/clause"
	"github.com/kasuganosora/relopt/pkg/planner/query"
	"github.com/kasuganosora/relopt/pkg/relids"
)

// RelKind 关系描述符类型
type RelKind int

const (
	// BaseRel 基础关系
	BaseRel RelKind = iota
	// JoinRel 连接关系
	JoinRel
	// OtherMemberRel 分区/继承展开出的子关系
	OtherMemberRel
)

// 支配剪枝的代价模糊系数（约 1%）
const costFuzzFactor = 1.01

// RelationDescriptor 关系描述符
// 基础关系或连接组合的规划期簿记：行数估计、候选路径表、
// 最优路径缓存、限定/连接条件表和分区元数据。
// 调用方不得跨 AddPath 调用缓存路径指针：支配剪枝可能已将其淘汰，
// 应重新从 PathList 或 CheapestTotal 取
type RelationDescriptor struct {
	Relids *relids.RelidSet
	Kind   RelKind

	// RTEIndex 基础关系的范围表索引，连接关系为 0
	RTEIndex int

	// Rows 行数估计；除哑关系外必须为正
	Rows  float64
	Width int

	// PathList 候选路径的帕累托前沿
	PathList []*AccessPath

	// PartialPathList 并行安全的部分路径
	PartialPathList []*AccessPath

	// CheapestTotal/CheapestStartup 最优路径缓存，SetCheapest 刷新
	CheapestTotal   *AccessPath
	CheapestStartup *AccessPath

	// BaseRestrict 单关系限定条件
	BaseRestrict []*clause.RestrictionClause

	// JoinInfo 引用本关系的连接条件
	JoinInfo []*clause.RestrictionClause

	// ConsiderParallel 是否允许生成并行路径
	ConsiderParallel bool

	// 分区字段
	PartDesc    *query.PartitionDesc
	PartRels    []*RelationDescriptor
	AppendInfos []*query.AppendInfo

	paramInfos []*ParamPathInfo
}

// NewBaseRel 创建基础关系描述符
func NewBaseRel(rteIndex int) *RelationDescriptor {
	return &RelationDescriptor{
		Relids:   relids.New(rteIndex),
		Kind:     BaseRel,
		RTEIndex: rteIndex,
	}
}

// NewJoinRel 创建连接关系描述符
func NewJoinRel(rels *relids.RelidSet) *RelationDescriptor {
	return &RelationDescriptor{
		Relids: rels,
		Kind:   JoinRel,
	}
}

// GetParamPathInfo 返回（必要时创建）给定参数化集合的共享信息
// 相同 required-outer 的路径引用同一实例，保证估计一致
func (rel *RelationDescriptor) GetParamPathInfo(reqOuter *relids.RelidSet, rows float64, clauses []*clause.RestrictionClause) *ParamPathInfo {
	for _, ppi := range rel.paramInfos {
		if ppi.ReqOuter.Equals(reqOuter) {
			return ppi
		}
	}
	ppi := &ParamPathInfo{ReqOuter: reqOuter, Rows: rows, Clauses: clauses}
	rel.paramInfos = append(rel.paramInfos, ppi)
	return ppi
}

// costsDominateFuzzily 判断 a 的代价在模糊系数内不劣于 b
func costsDominateFuzzily(a, b *AccessPath) bool {
	return a.TotalCost <= b.TotalCost*costFuzzFactor &&
		a.StartupCost <= b.StartupCost*costFuzzFactor
}

// dominates 判断 a 是否支配 b：
// 参数化不更多、排序信息不更少、代价在模糊系数内不更差
func dominates(a, b *AccessPath) bool {
	if !a.RequiredOuter().IsSubset(b.RequiredOuter()) {
		return false
	}
	keysCmp := clause.CompareKeys(a.PathKeys, b.PathKeys)
	if keysCmp != clause.KeysEqual && keysCmp != clause.KeysContains {
		return false
	}
	return costsDominateFuzzily(a, b)
}

// tieBreakWins 互相支配（模糊平局）时候选是否胜出：
// 优先更少的 required-outer，再比总代价；完全平手保留在位者
func tieBreakWins(candidate, old *AccessPath) bool {
	cn, on := candidate.RequiredOuter().Len(), old.RequiredOuter().Len()
	if cn != on {
		return cn < on
	}
	return candidate.TotalCost < old.TotalCost
}

// AddPath 把候选路径插入 PathList，先做支配剪枝
// 被已有路径支配的候选直接丢弃；候选支配的已有路径被移除。
// 结果是 {代价, 排序, 参数化} 三维上的帕累托前沿：下游连接可能
// 受益于更贵但序不同或参数化不同的输入。
// 拒绝候选时不得留下任何部分修改
func (rel *RelationDescriptor) AddPath(candidate *AccessPath) bool {
	candidate.Parent = rel

	// 先定胜负再提交，拒绝路径上不触碰 PathList
	evict := make([]bool, len(rel.PathList))
	for i, old := range rel.PathList {
		oldDom := dominates(old, candidate)
		newDom := dominates(candidate, old)
		switch {
		case oldDom && newDom:
			if !tieBreakWins(candidate, old) {
				return false
			}
			evict[i] = true
		case oldDom:
			return false
		case newDom:
			evict[i] = true
		}
	}

	kept := make([]*AccessPath, 0, len(rel.PathList)+1)
	for i, old := range rel.PathList {
		if !evict[i] {
			kept = append(kept, old)
		}
	}
	rel.PathList = append(kept, candidate)
	return true
}

// AddPartialPath 把部分路径插入 PartialPathList
// 部分路径必须未参数化且并行安全；竞争只看代价与排序
func (rel *RelationDescriptor) AddPartialPath(candidate *AccessPath) bool {
	if candidate.IsParameterized() || !candidate.ParallelSafe {
		return false
	}
	candidate.Parent = rel

	evict := make([]bool, len(rel.PartialPathList))
	for i, old := range rel.PartialPathList {
		oldDom := dominates(old, candidate)
		newDom := dominates(candidate, old)
		switch {
		case oldDom && newDom:
			if !tieBreakWins(candidate, old) {
				return false
			}
			evict[i] = true
		case oldDom:
			return false
		case newDom:
			evict[i] = true
		}
	}

	kept := make([]*AccessPath, 0, len(rel.PartialPathList)+1)
	for i, old := range rel.PartialPathList {
		if !evict[i] {
			kept = append(kept, old)
		}
	}
	rel.PartialPathList = append(kept, candidate)
	return true
}

// SetCheapest 扫描 PathList 刷新最优路径缓存
// 优先在未参数化路径中取最小总代价和最小启动代价；
// 全部参数化时，在 required-outer 最少的路径中取最小总代价。
// PathList 为空是调用方破坏约定
func (rel *RelationDescriptor) SetCheapest() {
	if len(rel.PathList) == 0 {
		panic(relids.ContractError(fmt.Sprintf("path: SetCheapest on relation %s with empty pathlist", rel.Relids)))
	}

	var bestTotal, bestStartup *AccessPath
	for _, p := range rel.PathList {
		if p.IsParameterized() {
			continue
		}
		if bestTotal == nil || p.TotalCost < bestTotal.TotalCost {
			bestTotal = p
		}
		if bestStartup == nil || p.StartupCost < bestStartup.StartupCost {
			bestStartup = p
		}
	}

	if bestTotal == nil {
		// 没有未参数化路径：取参数化最少者中的最小总代价
		minOuter := -1
		for _, p := range rel.PathList {
			n := p.RequiredOuter().Len()
			if minOuter < 0 || n < minOuter {
				minOuter = n
			}
		}
		for _, p := range rel.PathList {
			if p.RequiredOuter().Len() != minOuter {
				continue
			}
			if bestTotal == nil || p.TotalCost < bestTotal.TotalCost {
				bestTotal = p
			}
		}
		bestStartup = bestTotal
	}

	rel.CheapestTotal = bestTotal
	rel.CheapestStartup = bestStartup
}

// SetDummy 把关系标记为哑关系（被证明零行）
// 清空已有路径，装入唯一的零子路径 Append 并刷新最优缓存
func (rel *RelationDescriptor) SetDummy() {
	rel.Rows = 0
	rel.Width = 0
	rel.PathList = nil
	rel.PartialPathList = nil
	rel.AddPath(&AccessPath{
		Kind:         Append,
		Rows:         0,
		ParallelSafe: true,
	})
	rel.SetCheapest()
}

// IsDummy 判断是否是哑关系：最优总代价路径是零子路径 Append
func (rel *RelationDescriptor) IsDummy() bool {
	return rel.CheapestTotal != nil &&
		rel.CheapestTotal.Kind == Append &&
		len(rel.CheapestTotal.Subpaths) == 0
}
