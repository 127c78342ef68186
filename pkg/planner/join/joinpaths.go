package join

import (
	"github.com/pingcap/tidb/pkg/parser/ast"

	"github.com/kasuganosora/relopt/pkg/planner/clause"
	"github.com/kasuganosora/relopt/pkg/planner/path"
)

// makeJoinPaths 以 outer 为外侧、inner 为内侧生成连接路径
// 嵌套循环总是可行；存在等值连接条件时再生成哈希与归并连接
func (s *Search) makeJoinPaths(joinrel *path.RelationDescriptor, outer, inner *path.RelationDescriptor, jclauses []*clause.RestrictionClause) {
	outerPath := outer.CheapestTotal
	innerPath := inner.CheapestTotal
	if outerPath == nil || innerPath == nil {
		return
	}
	rows := joinrel.Rows

	// 无参数化嵌套循环，保留外侧的排序
	nlCost := s.Model.NestLoopCost(outerPath.Cost(), innerPath.Cost(), outerPath.Rows, innerPath.Rows)
	joinrel.AddPath(&path.AccessPath{
		Kind:         path.NestLoop,
		Rows:         rows,
		StartupCost:  nlCost.Startup,
		TotalCost:    nlCost.Total,
		PathKeys:     outerPath.PathKeys,
		Outer:        outerPath,
		Inner:        innerPath,
		JoinClauses:  jclauses,
		ParallelSafe: outerPath.ParallelSafe && innerPath.ParallelSafe,
	})

	// 参数化嵌套循环：内侧依赖的外侧关系在本层被满足
	for _, ip := range inner.PathList {
		if !ip.IsParameterized() || !ip.ParamInfo.ReqOuter.IsSubset(outer.Relids) {
			continue
		}
		c := s.Model.NestLoopCost(outerPath.Cost(), ip.Cost(), outerPath.Rows, ip.Rows)
		joinrel.AddPath(&path.AccessPath{
			Kind:         path.NestLoop,
			Rows:         rows,
			StartupCost:  c.Startup,
			TotalCost:    c.Total,
			PathKeys:     outerPath.PathKeys,
			Outer:        outerPath,
			Inner:        ip,
			JoinClauses:  jclauses,
			ParallelSafe: outerPath.ParallelSafe && ip.ParallelSafe,
		})
	}

	equi := s.equiClauses(jclauses)
	if len(equi) == 0 {
		return
	}

	// 哈希连接：内侧建表
	hjCost := s.Model.HashJoinCost(outerPath.Cost(), innerPath.Cost(), outerPath.Rows, innerPath.Rows)
	joinrel.AddPath(&path.AccessPath{
		Kind:         path.HashJoin,
		Rows:         rows,
		StartupCost:  hjCost.Startup,
		TotalCost:    hjCost.Total,
		Outer:        outerPath,
		Inner:        innerPath,
		JoinClauses:  equi,
		ParallelSafe: outerPath.ParallelSafe && innerPath.ParallelSafe,
	})

	s.makeMergeJoinPath(joinrel, outer, inner, equi, rows)
	s.makePartialJoinPaths(joinrel, outer, inner, equi, rows)
}

// equiClauses 过滤出等值连接条件
func (s *Search) equiClauses(jclauses []*clause.RestrictionClause) []*clause.RestrictionClause {
	var out []*clause.RestrictionClause
	for _, rc := range jclauses {
		if rc.IsEquiJoin(s.Resolver) {
			out = append(out, rc)
		}
	}
	return out
}

// makeMergeJoinPath 生成归并连接
// 两侧已有匹配序的路径直接用，否则在最优总代价路径上显式排序
func (s *Search) makeMergeJoinPath(joinrel *path.RelationDescriptor, outer, inner *path.RelationDescriptor, equi []*clause.RestrictionClause, rows float64) {
	mergeKey := s.mergeKeyFor(equi[0])
	if mergeKey == nil {
		return
	}

	op := sortedInput(outer, mergeKey, s)
	ip := sortedInput(inner, mergeKey, s)
	if op == nil || ip == nil {
		return
	}

	c := s.Model.MergeJoinCost(op.Cost(), ip.Cost(), op.Rows, ip.Rows)
	joinrel.AddPath(&path.AccessPath{
		Kind:         path.MergeJoin,
		Rows:         rows,
		StartupCost:  c.Startup,
		TotalCost:    c.Total,
		PathKeys:     []*clause.PathKey{mergeKey},
		Outer:        op,
		Inner:        ip,
		JoinClauses:  equi,
		ParallelSafe: op.ParallelSafe && ip.ParallelSafe,
	})
}

// mergeKeyFor 取等值条件对应的排序键
// 等式两侧通过等价类登记，归并两侧共享同一个类
func (s *Search) mergeKeyFor(rc *clause.RestrictionClause) *clause.PathKey {
	ec := rc.EquivClass
	if ec == nil {
		bin, ok := rc.Expr.(*ast.BinaryOperationExpr)
		if !ok || s.Classes == nil {
			return nil
		}
		left := clause.ExtractRelids(bin.L, s.Resolver)
		right := clause.ExtractRelids(bin.R, s.Resolver)
		ec = s.Classes.AddEquality(bin.L, left, bin.R, right)
		rc.EquivClass = ec
	}
	return &clause.PathKey{Class: ec.Canonical()}
}

// sortedInput 返回满足 key 的输入路径
// 优先找已有序路径，找不到就在最优总代价路径上加排序
func sortedInput(rel *path.RelationDescriptor, key *clause.PathKey, s *Search) *path.AccessPath {
	for _, p := range rel.PathList {
		if p.IsParameterized() {
			continue
		}
		if len(p.PathKeys) > 0 && p.PathKeys[0].SameKey(key) {
			return p
		}
	}
	base := rel.CheapestTotal
	if base == nil {
		return nil
	}
	c := s.Model.SortCost(base.Cost(), base.Rows, rel.Width)
	return &path.AccessPath{
		Kind:         path.Sort,
		Rows:         base.Rows,
		StartupCost:  c.Startup,
		TotalCost:    c.Total,
		PathKeys:     []*clause.PathKey{key},
		Subpath:      base,
		ParallelSafe: base.ParallelSafe,
	}
}

// makePartialJoinPaths 用外侧的部分路径合成并行连接的部分路径
// 内侧必须是并行安全的完整路径
func (s *Search) makePartialJoinPaths(joinrel *path.RelationDescriptor, outer, inner *path.RelationDescriptor, equi []*clause.RestrictionClause, rows float64) {
	innerPath := inner.CheapestTotal
	if innerPath == nil || !innerPath.ParallelSafe {
		return
	}
	for _, op := range outer.PartialPathList {
		c := s.Model.HashJoinCost(op.Cost(), innerPath.Cost(), op.Rows, innerPath.Rows)
		workers := op.ParallelWorkers
		perWorker := rows / float64(workers+1)
		if perWorker < 1 {
			perWorker = 1
		}
		joinrel.AddPartialPath(&path.AccessPath{
			Kind:            path.HashJoin,
			Rows:            perWorker,
			StartupCost:     c.Startup,
			TotalCost:       c.Total,
			Outer:           op,
			Inner:           innerPath,
			JoinClauses:     equi,
			ParallelSafe:    true,
			ParallelWorkers: workers,
		})
	}
}
