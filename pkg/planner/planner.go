package planner

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/opcode"

	"github.com/kasuganosora/relopt/pkg/planner/clause"
	"github.com/kasuganosora/relopt/pkg/planner/cost"
	"github.com/kasuganosora/relopt/pkg/planner/join"
	"github.com/kasuganosora/relopt/pkg/planner/parallelpath"
	"github.com/kasuganosora/relopt/pkg/planner/path"
	"github.com/kasuganosora/relopt/pkg/planner/pushdown"
	"github.com/kasuganosora/relopt/pkg/planner/query"
	"github.com/kasuganosora/relopt/pkg/planner/statistics"
	"github.com/kasuganosora/relopt/pkg/relids"
)

// Planner 访问路径搜索器
// 对一棵语义解析完成的查询树做基于成本的路径选择，
// 返回覆盖全部基础关系的最终关系描述符
type Planner struct {
	Cfg   Config
	Model cost.Model
	Stats statistics.Provider

	// PathHook/JoinHook 可选扩展点，nil 走内置行为
	PathHook RelPathlistHook
	JoinHook JoinSearchHook

	parallel *parallelpath.Synthesizer
	pushdown *pushdown.Analyzer
}

// New 创建规划器
// stats 允许为 nil，此时所有关系按兜底行数定尺寸
func New(cfg Config, stats statistics.Provider) *Planner {
	if stats != nil && cfg.StatsTTL > 0 {
		stats = statistics.NewCachedProvider(stats, cfg.StatsTTL)
	}
	model := cost.NewDefaultModel(cfg.CostParams)
	return &Planner{
		Cfg:      cfg,
		Model:    model,
		Stats:    stats,
		parallel: parallelpath.NewSynthesizer(model, cfg.Parallel),
		pushdown: &pushdown.Analyzer{Trace: cfg.Trace},
	}
}

// PlanQuery 对一棵查询树执行路径搜索
// 内部约定违规（ContractError）在这里统一兜住，转成规划失败返回；
// 其它 panic 原样抛出
func (p *Planner) PlanQuery(q *query.ResolvedQuery) (final *path.RelationDescriptor, err error) {
	defer func() {
		if r := recover(); r != nil {
			ce, ok := r.(relids.ContractError)
			if !ok {
				panic(r)
			}
			final = nil
			err = &PlanningError{Stage: "contract", Err: ce}
		}
	}()

	passID := uuid.NewString()
	if p.Cfg.Trace {
		fmt.Printf("  [PATH SEARCH] pass %s: %d range table entries\n", passID, len(q.RangeTable))
	}

	pp := &planPass{p: p, q: q, id: passID, classes: clause.NewClassSet()}
	final, err = pp.run()
	if err != nil {
		return nil, err
	}
	if p.Cfg.Trace {
		fmt.Printf("  [PATH SEARCH] pass %s: cheapest path %s, total cost %.2f\n",
			passID, final.CheapestTotal.Kind, final.CheapestTotal.TotalCost)
	}
	return final, nil
}

// planPass 一次规划过程的状态
// 等价类和子句表按过程积累，子查询各开一个独立过程
type planPass struct {
	p  *Planner
	q  *query.ResolvedQuery
	id string

	classes     *clause.ClassSet
	baseClauses map[int][]*clause.RestrictionClause
	joinClauses []*clause.RestrictionClause
	gatingQuals []*clause.RestrictionClause

	// 子查询过程：Quals 里下标不小于 pushedFrom 的是外层推进来的条件，
	// 经过安全栅栏时 pushedLevel 为栅栏层级
	pushed      bool
	pushedFrom  int
	pushedLevel int
}

func (pp *planPass) run() (*path.RelationDescriptor, error) {
	pp.collectClauses()

	members := pp.participants()
	if len(members) == 0 {
		return nil, &PlanningError{Stage: "setup", Err: fmt.Errorf("query has no base relations")}
	}

	initial := make([]*path.RelationDescriptor, 0, len(members))
	for _, relid := range members {
		rel, err := pp.buildBaseRel(relid)
		if err != nil {
			return nil, err
		}
		initial = append(initial, rel)
	}

	if pp.p.JoinHook != nil && len(initial) > 1 {
		final, err := pp.p.JoinHook.Search(initial, len(initial))
		if err != nil {
			return nil, &PlanningError{Stage: "join search", Err: err}
		}
		return final, nil
	}

	search := &join.Search{
		Model:          pp.p.Model,
		Resolver:       pp.q,
		SpecialJoins:   query.CollectSpecialJoins(pp.q.JoinTree),
		Lateral:        pp.lateralRefs(),
		Classes:        pp.classes,
		Clauses:        pp.joinClauses,
		SelFn:          pp.joinSelectivity,
		MaxDPRelations: pp.p.Cfg.MaxDPRelations,
		PostProcess:    func(rel *path.RelationDescriptor) { pp.p.parallel.GenerateGatherPaths(rel) },
		Trace:          pp.p.Cfg.Trace,
	}
	final, err := search.Run(initial)
	if err != nil {
		return nil, &PlanningError{Stage: "join search", Err: err}
	}
	return final, nil
}

// collectClauses 把 WHERE 和连接树上的条件摊平成限定子句
// 等值连接条件登记进等价类；单关系条件挂到对应基础关系，
// 跨关系条件进入连接条件表，不引用关系的条件作为门控条件另存
func (pp *planPass) collectClauses() {
	var all []*clause.RestrictionClause
	for i, e := range pp.q.Quals {
		rc := clause.NewRestriction(e, pp.q)
		if pp.pushed && i >= pp.pushedFrom {
			rc.IsPushedDown = true
			rc.SecurityLevel = pp.pushedLevel
		}
		all = append(all, rc)
	}
	pp.collectJoinTreeQuals(pp.q.JoinTree, &all)

	for _, rc := range all {
		if rc.OuterJoinDelayed {
			// 外连接边界之上的等式不能产生等价类
			continue
		}
		if rc.IsPushedDown && rc.SecurityLevel > 0 {
			// 安全栅栏之上推进来的等式不参与等价类：
			// 派生出的连接条件可能先于栅栏条件求值
			continue
		}
		if rc.IsEquiJoin(pp.q) {
			bin := rc.Expr.(*ast.BinaryOperationExpr)
			rc.EquivClass = pp.classes.AddEquality(
				bin.L, clause.ExtractRelids(bin.L, pp.q),
				bin.R, clause.ExtractRelids(bin.R, pp.q))
		}
	}

	pp.baseClauses = make(map[int][]*clause.RestrictionClause)
	for _, rc := range all {
		switch rc.RequiredRelids.Len() {
		case 0:
			pp.gatingQuals = append(pp.gatingQuals, rc)
		case 1:
			relid := rc.RequiredRelids.Singleton()
			pp.baseClauses[relid] = append(pp.baseClauses[relid], rc)
		default:
			pp.joinClauses = append(pp.joinClauses, rc)
		}
	}

	// 门控条件整个查询只求值一次，挂到第一个基础关系上参与一次行数折减
	if len(pp.gatingQuals) > 0 {
		if first := pp.participants(); len(first) > 0 {
			pp.baseClauses[first[0]] = append(pp.baseClauses[first[0]], pp.gatingQuals...)
		}
	}

	// 低安全层级的条件必须先求值，同层级保持原有顺序
	for relid := range pp.baseClauses {
		list := pp.baseClauses[relid]
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].SecurityLevel < list[j].SecurityLevel
		})
	}
}

// collectJoinTreeQuals 收集连接树各层 ON 条件
// 外连接的条件把求值推迟到整个连接边界成型之后
func (pp *planPass) collectJoinTreeQuals(n *query.JoinTreeNode, out *[]*clause.RestrictionClause) {
	if n == nil || n.IsLeaf() {
		return
	}
	pp.collectJoinTreeQuals(n.Left, out)
	pp.collectJoinTreeQuals(n.Right, out)

	for _, e := range n.Quals {
		rc := clause.NewRestriction(e, pp.q)
		if n.Kind != query.JoinInner {
			rc.RequiredRelids = n.Relids()
			rc.OuterJoinDelayed = true
		}
		*out = append(*out, rc)
	}
}

// lateralRefs 收集带 LATERAL 依赖的范围表项（范围表索引 → 依赖集合）
func (pp *planPass) lateralRefs() map[int]*relids.RelidSet {
	var out map[int]*relids.RelidSet
	for i, rte := range pp.q.RangeTable {
		if rte.LateralRefs == nil || rte.LateralRefs.IsEmpty() {
			continue
		}
		if out == nil {
			out = make(map[int]*relids.RelidSet)
		}
		out[i+1] = rte.LateralRefs
	}
	return out
}

// participants 返回参与连接搜索的基础关系索引（升序）
// 有显式连接树时以连接树为准；否则取范围表中除分区子关系外的全部项
func (pp *planPass) participants() []int {
	if pp.q.JoinTree != nil {
		return pp.q.JoinTree.Relids().Members()
	}

	children := make(map[int]bool)
	for _, rte := range pp.q.RangeTable {
		if rte.Partition == nil {
			continue
		}
		for _, ch := range rte.Partition.Children {
			children[ch.RTEIndex] = true
		}
	}

	var out []int
	for relid := 1; relid <= len(pp.q.RangeTable); relid++ {
		if !children[relid] {
			out = append(out, relid)
		}
	}
	return out
}

// joinInfoFor 返回引用指定关系的连接条件
func (pp *planPass) joinInfoFor(relid int) []*clause.RestrictionClause {
	var out []*clause.RestrictionClause
	for _, rc := range pp.joinClauses {
		if rc.RequiredRelids.IsMember(relid) {
			out = append(out, rc)
		}
	}
	return out
}

// joinSelectivity 连接条件选择率
// 形如 a = b 的列等式按两侧列的不同值个数估，其余走默认值
func (pp *planPass) joinSelectivity(rc *clause.RestrictionClause) float64 {
	bin, ok := rc.Expr.(*ast.BinaryOperationExpr)
	if !ok || bin.Op != opcode.EQ {
		return statistics.DefaultSelectivity
	}
	lcol, lok := bin.L.(*ast.ColumnNameExpr)
	rcol, rok := bin.R.(*ast.ColumnNameExpr)
	if !lok || !rok {
		return statistics.DefaultEqSelectivity
	}
	return statistics.JoinSelectivity(
		pp.statsForColumn(lcol), pp.statsForColumn(rcol),
		lcol.Name.Name.L, rcol.Name.Name.L)
}

// statsForColumn 找到列所属关系的表统计，找不到返回 nil
func (pp *planPass) statsForColumn(col *ast.ColumnNameExpr) *statistics.TableStatistics {
	if pp.p.Stats == nil {
		return nil
	}
	relid, ok := pp.q.ResolveColumn(col.Name.Table.L, col.Name.Name.L)
	if !ok {
		return nil
	}
	rte := pp.q.RTE(relid)
	if rte.Kind != query.RTERelation {
		return nil
	}
	stats, err := pp.p.Stats.TableStatistics(rte.TableName)
	if err != nil {
		return nil
	}
	return stats
}
