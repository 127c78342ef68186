package join

import (
	"fmt"

	"github.com/kasuganosora/relopt/pkg/planner/clause"
	"github.com/kasuganosora/relopt/pkg/planner/cost"
	"github.com/kasuganosora/relopt/pkg/planner/path"
	"github.com/kasuganosora/relopt/pkg/planner/query"
	"github.com/kasuganosora/relopt/pkg/relids"
)

// ErrNoJoinOrder 找不到合法连接顺序
// 输入合法时不应出现，出现即硬性规划失败
type ErrNoJoinOrder struct {
	Level int
}

func (e *ErrNoJoinOrder) Error() string {
	return fmt.Sprintf("join: no legal join order found at level %d", e.Level)
}

// Search 动态规划连接搜索器
// 从每关系一个描述符出发，逐层组合不相交的关系集合，
// 直到得到覆盖全部基础关系的唯一描述符
type Search struct {
	// Model 成本模型
	Model cost.Model

	// Resolver 列解析器（等值连接判定用）
	Resolver clause.ColumnResolver

	// SpecialJoins 外连接排序约束
	SpecialJoins []*query.SpecialJoinInfo

	// Lateral 各关系的 LATERAL 依赖集合（范围表索引 → 依赖）
	// 带依赖的关系只能在依赖就位之后加入连接
	Lateral map[int]*relids.RelidSet

	// Classes 等价类集合，用于派生连接条件
	Classes *clause.ClassSet

	// Clauses 全部连接条件
	Clauses []*clause.RestrictionClause

	// SelFn 连接条件选择率估算回调
	SelFn func(rc *clause.RestrictionClause) float64

	// MaxDPRelations 超过该基础关系数改用贪心搜索
	MaxDPRelations int

	// PostProcess 每个新建连接关系完成路径生成后的回调
	// （分区连接与并行收集在这里挂入）
	PostProcess func(rel *path.RelationDescriptor)

	// Trace 打印搜索过程
	Trace bool

	// joinrelTable 按关系集合哈希去重连接关系描述符
	joinrelTable map[uint64][]*path.RelationDescriptor
}

// Run 执行连接搜索
// 返回 relids 等于全部输入并集的唯一描述符
func (s *Search) Run(initial []*path.RelationDescriptor) (*path.RelationDescriptor, error) {
	n := len(initial)
	if n == 0 {
		return nil, &ErrNoJoinOrder{Level: 0}
	}
	if n == 1 {
		return initial[0], nil
	}

	s.joinrelTable = make(map[uint64][]*path.RelationDescriptor)

	if s.MaxDPRelations > 0 && n > s.MaxDPRelations {
		if s.Trace {
			fmt.Printf("  [PATH SEARCH] %d relations exceed DP limit %d, using greedy order\n", n, s.MaxDPRelations)
		}
		return s.greedySearch(initial)
	}
	return s.dpSearch(initial)
}

// dpSearch 标准动态规划枚举
func (s *Search) dpSearch(initial []*path.RelationDescriptor) (*path.RelationDescriptor, error) {
	n := len(initial)
	levels := make([][]*path.RelationDescriptor, n+1)
	levels[1] = initial

	for lev := 2; lev <= n; lev++ {
		// 第一遍只考虑有连接条件相连的组合
		s.buildLevel(levels, lev, false)
		if len(levels[lev]) == 0 {
			// 没有任何相连组合：允许笛卡尔积兜底
			s.buildLevel(levels, lev, true)
		}
		if len(levels[lev]) == 0 {
			return nil, &ErrNoJoinOrder{Level: lev}
		}

		for _, rel := range levels[lev] {
			if s.PostProcess != nil {
				s.PostProcess(rel)
			}
			rel.SetCheapest()
		}
		if s.Trace {
			fmt.Printf("  [PATH SEARCH] level %d: %d join relations\n", lev, len(levels[lev]))
		}
	}

	if len(levels[n]) != 1 {
		return nil, &ErrNoJoinOrder{Level: n}
	}
	return levels[n][0], nil
}

// buildLevel 枚举能拼出基数 lev 的全部低层配对
func (s *Search) buildLevel(levels [][]*path.RelationDescriptor, lev int, allowCartesian bool) {
	for lo := 1; lo <= lev/2; lo++ {
		hi := lev - lo
		for _, a := range levels[hi] {
			for _, b := range levels[lo] {
				if lo == hi && a == b {
					continue
				}
				s.considerPair(levels, lev, a, b, allowCartesian)
			}
		}
	}
}

// considerPair 检查一对描述符并在合法时生成连接路径
func (s *Search) considerPair(levels [][]*path.RelationDescriptor, lev int, a, b *path.RelationDescriptor, allowCartesian bool) {
	if a.Relids.Overlaps(b.Relids) {
		return
	}
	if !allowCartesian && !s.haveJoinClause(a, b) {
		return
	}
	if !joinIsLegal(a.Relids, b.Relids, s.SpecialJoins) {
		return
	}

	union := a.Relids.Union(b.Relids)
	if !lateralLegal(union, s.Lateral) {
		return
	}
	joinrel, created := s.lookupJoinRel(union)

	// 哑输入的连接本身是哑关系，静默传播
	if a.IsDummy() || b.IsDummy() {
		if created {
			joinrel.Width = a.Width + b.Width
			joinrel.SetDummy()
			levels[lev] = append(levels[lev], joinrel)
		}
		return
	}

	jclauses := s.joinClausesFor(a, b)
	if created {
		joinrel.Rows = s.estimateJoinRows(a, b, jclauses)
		joinrel.Width = a.Width + b.Width
		levels[lev] = append(levels[lev], joinrel)
	}
	if joinrel.IsDummy() {
		return
	}

	s.makeJoinPaths(joinrel, a, b, jclauses)
	s.makeJoinPaths(joinrel, b, a, jclauses)
}

// lookupJoinRel 按关系集合查找或创建连接描述符
// 集合先裁剪成规范形式再哈希，保证逻辑相等的集合命中同一桶
func (s *Search) lookupJoinRel(union *relids.RelidSet) (*path.RelationDescriptor, bool) {
	h := union.Hash()
	for _, rel := range s.joinrelTable[h] {
		if rel.Relids.Equals(union) {
			return rel, false
		}
	}
	rel := path.NewJoinRel(union)
	s.joinrelTable[h] = append(s.joinrelTable[h], rel)
	return rel, true
}

// haveJoinClause 判断两个描述符之间是否有可用的连接条件
func (s *Search) haveJoinClause(a, b *path.RelationDescriptor) bool {
	for _, rc := range s.Clauses {
		if rc.CanJoinBetween(a.Relids, b.Relids) {
			return true
		}
	}
	if s.Classes != nil {
		for _, ec := range s.Classes.Classes {
			if !ec.Merged && ec.Relids.Overlaps(a.Relids) && ec.Relids.Overlaps(b.Relids) {
				return true
			}
		}
	}
	// LATERAL 依赖等价于一条连接条件
	for relid, refs := range s.Lateral {
		if a.Relids.IsMember(relid) && refs.Overlaps(b.Relids) {
			return true
		}
		if b.Relids.IsMember(relid) && refs.Overlaps(a.Relids) {
			return true
		}
	}
	return false
}

// joinClausesFor 收集本层可求值的连接条件（含等价类派生的）
func (s *Search) joinClausesFor(a, b *path.RelationDescriptor) []*clause.RestrictionClause {
	var out []*clause.RestrictionClause
	for _, rc := range s.Clauses {
		if rc.CanJoinBetween(a.Relids, b.Relids) {
			out = append(out, rc)
		}
	}
	if s.Classes != nil {
		out = append(out, s.Classes.DeriveJoinClauses(a.Relids, b.Relids, out)...)
	}
	return out
}

// estimateJoinRows 估算连接输出行数
func (s *Search) estimateJoinRows(a, b *path.RelationDescriptor, jclauses []*clause.RestrictionClause) float64 {
	rows := a.Rows * b.Rows
	for _, rc := range jclauses {
		rc := rc
		rows *= rc.Selectivity(func() float64 { return s.SelFn(rc) })
	}
	return clampRows(rows)
}

func clampRows(rows float64) float64 {
	if rows < 1 {
		return 1
	}
	return rows
}
