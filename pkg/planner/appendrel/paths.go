package appendrel

import (
	"github.com/kasuganosora/relopt/pkg/planner/clause"
	"github.com/kasuganosora/relopt/pkg/planner/cost"
	"github.com/kasuganosora/relopt/pkg/planner/path"
	"github.com/kasuganosora/relopt/pkg/relids"
)

// BuildAppendPaths 路径阶段
// 从存活子关系的路径表合成父关系的候选：
// 一条普通 Append、一条并行部分 Append、每种排序一条 MergeAppend、
// 每种参数化一条 Append。全部子关系为空则父关系判空
func (b *Builder) BuildAppendPaths(parent *path.RelationDescriptor) {
	var live []*path.RelationDescriptor
	for _, ch := range parent.PartRels {
		if !ch.IsDummy() {
			live = append(live, ch)
		}
	}
	if len(live) == 0 {
		if !parent.IsDummy() {
			parent.SetDummy()
		}
		return
	}

	b.addPlainAppend(parent, live)
	b.addParallelAppend(parent, live)
	b.addMergeAppends(parent, live)
	b.addParamAppends(parent, live)
}

// addPlainAppend 用每个子关系的最优未参数化路径拼一条 Append
// 任一子关系没有未参数化路径时整条放弃
func (b *Builder) addPlainAppend(parent *path.RelationDescriptor, live []*path.RelationDescriptor) {
	var subpaths []*path.AccessPath
	safe := true
	for _, ch := range live {
		p := cheapestUnparameterized(ch)
		if p == nil {
			return
		}
		safe = safe && p.ParallelSafe
		subpaths = flattenPlain(subpaths, p)
	}

	c := b.Model.AppendCost(pathCosts(subpaths))
	parent.AddPath(&path.AccessPath{
		Kind:         path.Append,
		Rows:         parent.Rows,
		StartupCost:  c.Startup,
		TotalCost:    c.Total,
		Subpaths:     subpaths,
		ParallelSafe: safe,
	})
}

// addParallelAppend 用子关系的部分路径拼一条并行部分 Append
// 没有部分路径的子关系用其并行安全的最优完整路径顶替；
// 两者都没有就整条放弃。工作进程数取子路径中的最大值
func (b *Builder) addParallelAppend(parent *path.RelationDescriptor, live []*path.RelationDescriptor) {
	var subpaths []*path.AccessPath
	var rows float64
	workers := 0
	for _, ch := range live {
		p := cheapestPartial(ch)
		if p == nil {
			full := cheapestUnparameterized(ch)
			if full == nil || !full.ParallelSafe {
				return
			}
			p = full
		}
		if p.ParallelWorkers > workers {
			workers = p.ParallelWorkers
		}
		rows += p.Rows
		subpaths = flattenPlain(subpaths, p)
	}
	if workers == 0 {
		workers = 1
	}

	c := b.Model.AppendCost(pathCosts(subpaths))
	parent.AddPartialPath(&path.AccessPath{
		Kind:            path.Append,
		Rows:            rows,
		StartupCost:     c.Startup,
		TotalCost:       c.Total,
		Subpaths:        subpaths,
		ParallelSafe:    true,
		ParallelWorkers: workers,
	})
}

// addMergeAppends 对子关系路径表里出现过的每种排序拼一条 MergeAppend
// 已满足该排序的子路径直接用，不满足的在最优路径上补显式排序
func (b *Builder) addMergeAppends(parent *path.RelationDescriptor, live []*path.RelationDescriptor) {
	orderings := collectOrderings(live)
	for _, keys := range orderings {
		var subpaths []*path.AccessPath
		feasible := true
		safe := true
		for _, ch := range live {
			p := cheapestSorted(ch, keys)
			if p == nil {
				base := cheapestUnparameterized(ch)
				if base == nil {
					feasible = false
					break
				}
				p = b.sortWrap(base, keys, ch.Width)
			}
			safe = safe && p.ParallelSafe
			subpaths = flattenOrdered(subpaths, p, keys)
		}
		if !feasible {
			continue
		}

		c := b.Model.MergeAppendCost(pathCosts(subpaths), parent.Rows)
		parent.AddPath(&path.AccessPath{
			Kind:         path.MergeAppend,
			Rows:         parent.Rows,
			StartupCost:  c.Startup,
			TotalCost:    c.Total,
			PathKeys:     keys,
			Subpaths:     subpaths,
			ParallelSafe: safe,
		})
	}
}

// addParamAppends 对子关系路径表里出现过的每种参数化拼一条 Append
// 子关系没有恰好匹配的路径时，改挂一条参数化不超过目标集合的路径，
// 重参数化副本的代价严格高于原路径
func (b *Builder) addParamAppends(parent *path.RelationDescriptor, live []*path.RelationDescriptor) {
	for _, reqOuter := range collectParameterizations(live) {
		var subpaths []*path.AccessPath
		var rows float64
		feasible := true
		for _, ch := range live {
			p := cheapestExactParam(ch, reqOuter)
			if p == nil {
				base := cheapestWeakerParam(ch, reqOuter)
				if base == nil {
					feasible = false
					break
				}
				ppi := ch.GetParamPathInfo(reqOuter, base.Rows, nil)
				p = path.Reparameterize(base, ppi)
			}
			rows += p.Rows
			subpaths = flattenPlain(subpaths, p)
		}
		if !feasible {
			continue
		}

		c := b.Model.AppendCost(pathCosts(subpaths))
		parent.AddPath(&path.AccessPath{
			Kind:        path.Append,
			Rows:        rows,
			StartupCost: c.Startup,
			TotalCost:   c.Total,
			Subpaths:    subpaths,
			ParamInfo:   parent.GetParamPathInfo(reqOuter, rows, nil),
		})
	}
}

// sortWrap 在 base 之上加显式排序
func (b *Builder) sortWrap(base *path.AccessPath, keys []*clause.PathKey, width int) *path.AccessPath {
	c := b.Model.SortCost(base.Cost(), base.Rows, width)
	return &path.AccessPath{
		Kind:         path.Sort,
		Rows:         base.Rows,
		StartupCost:  c.Startup,
		TotalCost:    c.Total,
		PathKeys:     keys,
		Subpath:      base,
		ParallelSafe: base.ParallelSafe,
	}
}

// flattenPlain 追加一条子路径，子路径本身是 Append/MergeAppend 时吸收其子路径
func flattenPlain(dst []*path.AccessPath, p *path.AccessPath) []*path.AccessPath {
	if p.Kind == path.Append || p.Kind == path.MergeAppend {
		return append(dst, p.Subpaths...)
	}
	return append(dst, p)
}

// flattenOrdered 同 flattenPlain，但只吸收排序与目标一致的 MergeAppend
func flattenOrdered(dst []*path.AccessPath, p *path.AccessPath, keys []*clause.PathKey) []*path.AccessPath {
	if p.Kind == path.MergeAppend && clause.CompareKeys(p.PathKeys, keys) == clause.KeysEqual {
		return append(dst, p.Subpaths...)
	}
	return append(dst, p)
}

func pathCosts(paths []*path.AccessPath) []cost.Cost {
	out := make([]cost.Cost, len(paths))
	for i, p := range paths {
		out[i] = p.Cost()
	}
	return out
}

// cheapestUnparameterized 子关系的最优未参数化路径
func cheapestUnparameterized(rel *path.RelationDescriptor) *path.AccessPath {
	if rel.CheapestTotal != nil && !rel.CheapestTotal.IsParameterized() {
		return rel.CheapestTotal
	}
	var best *path.AccessPath
	for _, p := range rel.PathList {
		if p.IsParameterized() {
			continue
		}
		if best == nil || p.TotalCost < best.TotalCost {
			best = p
		}
	}
	return best
}

// cheapestPartial 子关系的最优部分路径
func cheapestPartial(rel *path.RelationDescriptor) *path.AccessPath {
	var best *path.AccessPath
	for _, p := range rel.PartialPathList {
		if best == nil || p.TotalCost < best.TotalCost {
			best = p
		}
	}
	return best
}

// cheapestSorted 子关系满足给定排序的最优未参数化路径
func cheapestSorted(rel *path.RelationDescriptor, keys []*clause.PathKey) *path.AccessPath {
	var best *path.AccessPath
	for _, p := range rel.PathList {
		if p.IsParameterized() || !clause.KeysSatisfy(keys, p.PathKeys) {
			continue
		}
		if best == nil || p.TotalCost < best.TotalCost {
			best = p
		}
	}
	return best
}

// cheapestExactParam 子关系参数化集合恰好等于 reqOuter 的最优路径
func cheapestExactParam(rel *path.RelationDescriptor, reqOuter *relids.RelidSet) *path.AccessPath {
	var best *path.AccessPath
	for _, p := range rel.PathList {
		if !p.RequiredOuter().Equals(reqOuter) {
			continue
		}
		if best == nil || p.TotalCost < best.TotalCost {
			best = p
		}
	}
	return best
}

// cheapestWeakerParam 子关系参数化集合是 reqOuter 真子集的最优路径（含未参数化）
func cheapestWeakerParam(rel *path.RelationDescriptor, reqOuter *relids.RelidSet) *path.AccessPath {
	var best *path.AccessPath
	for _, p := range rel.PathList {
		if !p.RequiredOuter().IsSubset(reqOuter) || p.RequiredOuter().Equals(reqOuter) {
			continue
		}
		if best == nil || p.TotalCost < best.TotalCost {
			best = p
		}
	}
	return best
}

// collectOrderings 收集子关系路径表里全部互异的非空排序
func collectOrderings(live []*path.RelationDescriptor) [][]*clause.PathKey {
	var out [][]*clause.PathKey
	for _, ch := range live {
		for _, p := range ch.PathList {
			if p.IsParameterized() || len(p.PathKeys) == 0 {
				continue
			}
			dup := false
			for _, keys := range out {
				if clause.CompareKeys(keys, p.PathKeys) == clause.KeysEqual {
					dup = true
					break
				}
			}
			if !dup {
				out = append(out, p.PathKeys)
			}
		}
	}
	return out
}

// collectParameterizations 收集子关系路径表里全部互异的非空参数化集合
func collectParameterizations(live []*path.RelationDescriptor) []*relids.RelidSet {
	var out []*relids.RelidSet
	for _, ch := range live {
		for _, p := range ch.PathList {
			ro := p.RequiredOuter()
			if ro.IsEmpty() {
				continue
			}
			dup := false
			for _, seen := range out {
				if seen.Equals(ro) {
					dup = true
					break
				}
			}
			if !dup {
				out = append(out, ro)
			}
		}
	}
	return out
}
