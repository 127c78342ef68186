package planner

import (
	"fmt"

	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/opcode"

	"github.com/kasuganosora/relopt/pkg/planner/appendrel"
	"github.com/kasuganosora/relopt/pkg/planner/clause"
	"github.com/kasuganosora/relopt/pkg/planner/path"
	"github.com/kasuganosora/relopt/pkg/planner/query"
	"github.com/kasuganosora/relopt/pkg/planner/statistics"
	"github.com/kasuganosora/relopt/pkg/relids"
)

// 函数范围表项的默认行数估计
const defaultFunctionRows = 100

// buildBaseRel 为一个范围表项建描述符、定尺寸、生成候选路径
func (pp *planPass) buildBaseRel(relid int) (*path.RelationDescriptor, error) {
	rte := pp.q.RTE(relid)
	rel := path.NewBaseRel(relid)
	rel.BaseRestrict = pp.baseClauses[relid]
	rel.JoinInfo = pp.joinInfoFor(relid)
	rel.ConsiderParallel = true

	if pp.p.PathHook != nil && pp.p.PathHook.GenerateRelPaths(rel, rte) {
		rel.SetCheapest()
		return rel, nil
	}

	switch rte.Kind {
	case query.RTERelation:
		if rte.Partition != nil {
			if err := pp.buildAppendRel(rel, rte); err != nil {
				return nil, err
			}
		} else {
			stats, tableRows := pp.sizeRelation(rel, rte, rel.BaseRestrict)
			pp.relationPaths(rel, rte, stats, tableRows)
		}
	case query.RTESubquery:
		if err := pp.subqueryPaths(rel, rte); err != nil {
			return nil, err
		}
	case query.RTEValues:
		pp.rowSourcePaths(rel, rte, path.ValuesScan, float64(rte.ValuesRows), true)
	case query.RTEFunction:
		safe := rte.FuncExpr == nil || !clause.IsVolatile(rte.FuncExpr)
		pp.rowSourcePaths(rel, rte, path.FunctionScan, defaultFunctionRows, safe)
	case query.RTECTE:
		pp.rowSourcePaths(rel, rte, path.CTEScan, pp.p.Cfg.DefaultTableRows, false)
	default:
		panic(relids.ContractError(fmt.Sprintf(
			"planner: range table entry %d has unsupported kind %s", relid, rte.Kind)))
	}

	if rel.IsDummy() {
		return rel, nil
	}
	pp.p.parallel.GenerateGatherPaths(rel)
	rel.SetCheapest()

	if pp.p.Cfg.Trace {
		fmt.Printf("  [PATH SEARCH] base relation %s (%s): rows=%.0f, %d paths\n",
			rel.Relids, rte.Kind, rel.Rows, len(rel.PathList))
	}
	return rel, nil
}

// sizeRelation 按统计信息和限定条件估算行数和行宽
// 返回统计信息和过滤前的表行数，给路径代价计算复用
func (pp *planPass) sizeRelation(rel *path.RelationDescriptor, rte *query.RangeTableEntry, restrict []*clause.RestrictionClause) (*statistics.TableStatistics, float64) {
	var stats *statistics.TableStatistics
	if pp.p.Stats != nil {
		s, err := pp.p.Stats.TableStatistics(rte.TableName)
		if err == nil {
			stats = s
		} else if pp.p.Cfg.Trace {
			fmt.Printf("  [PATH SEARCH] no statistics for %s, using defaults\n", rte.TableName)
		}
	}

	tableRows := pp.p.Cfg.DefaultTableRows
	if tableRows <= 0 {
		tableRows = 1000
	}
	if stats != nil && stats.RowCount > 0 {
		tableRows = float64(stats.RowCount)
	}

	rel.Rows = clampRows(tableRows * restrictSelectivity(stats, restrict))
	rel.Width = rte.TupleWidth()
	return stats, tableRows
}

// restrictSelectivity 限定条件合取的联合选择率
func restrictSelectivity(stats *statistics.TableStatistics, restrict []*clause.RestrictionClause) float64 {
	sel := 1.0
	for _, rc := range restrict {
		rc := rc
		sel *= rc.Selectivity(func() float64 {
			return statistics.ClauseSelectivity(stats, rc.Expr)
		})
	}
	return sel
}

func clampRows(rows float64) float64 {
	if rows < 1 {
		return 1
	}
	return rows
}

// relationPaths 为普通关系生成候选路径：
// 顺扫、并行顺扫部分路径、每个索引的有序/参数化/位图路径
func (pp *planPass) relationPaths(rel *path.RelationDescriptor, rte *query.RangeTableEntry, stats *statistics.TableStatistics, tableRows float64) {
	c := pp.p.Model.SeqScanCost(rte.Pages, tableRows)
	rel.AddPath(&path.AccessPath{
		Kind:         path.SeqScan,
		Rows:         rel.Rows,
		StartupCost:  c.Startup,
		TotalCost:    c.Total,
		ParallelSafe: true,
	})

	if rel.ConsiderParallel {
		workers := pp.p.parallel.WorkerCount(rte.Pages, rte.IndexPages, rte.ParallelWorkers)
		if workers > 0 {
			// 每个参与进程（workers 个工作进程加 leader）分摊一份扫描量
			share := float64(workers + 1)
			pc := pp.p.Model.SeqScanCost(rte.Pages/int64(share)+1, tableRows/share)
			rel.AddPartialPath(&path.AccessPath{
				Kind:            path.SeqScan,
				Rows:            rel.Rows / share,
				StartupCost:     pc.Startup,
				TotalCost:       pc.Total,
				ParallelSafe:    true,
				ParallelWorkers: workers,
			})
		}
	}

	for i := range rte.Indexes {
		pp.indexPaths(rel, rte, &rte.Indexes[i], stats, tableRows)
	}
}

// indexPaths 为一个索引生成候选路径
// 首列命中限定条件时生成选择性索引扫描和位图扫描；
// 没命中也生成全索引有序扫描，给归并连接和排序消除用；
// 等值连接条件命中首列时生成参数化索引扫描
func (pp *planPass) indexPaths(rel *path.RelationDescriptor, rte *query.RangeTableEntry, idx *query.IndexDef, stats *statistics.TableStatistics, tableRows float64) {
	if len(idx.Columns) == 0 {
		return
	}
	keyCol := idx.Columns[0]
	keys := pp.indexPathKeys(rel, rte, idx)

	var matched []*clause.RestrictionClause
	for _, rc := range rel.BaseRestrict {
		if clauseMatchesColumn(rc.Expr, keyCol) {
			matched = append(matched, rc)
		}
	}

	if len(matched) > 0 {
		sel := restrictSelectivity(stats, matched)
		ic := pp.p.Model.IndexScanCost(idx.Pages, rte.Pages, tableRows, sel)
		rel.AddPath(&path.AccessPath{
			Kind:         path.IndexScan,
			Rows:         rel.Rows,
			StartupCost:  ic.Startup,
			TotalCost:    ic.Total,
			PathKeys:     keys,
			IndexName:    idx.Name,
			ParallelSafe: true,
		})

		bc := pp.p.Model.BitmapScanCost(idx.Pages, rte.Pages, tableRows, sel)
		rel.AddPath(&path.AccessPath{
			Kind:         path.BitmapHeapScan,
			Rows:         rel.Rows,
			StartupCost:  bc.Startup,
			TotalCost:    bc.Total,
			IndexName:    idx.Name,
			ParallelSafe: true,
		})
	} else {
		// 全索引扫描：贵但有序
		ic := pp.p.Model.IndexScanCost(idx.Pages, rte.Pages, tableRows, 1.0)
		rel.AddPath(&path.AccessPath{
			Kind:         path.IndexScan,
			Rows:         rel.Rows,
			StartupCost:  ic.Startup,
			TotalCost:    ic.Total,
			PathKeys:     keys,
			IndexName:    idx.Name,
			ParallelSafe: true,
		})
	}

	for _, rc := range rel.JoinInfo {
		if rc.OuterJoinDelayed || !rc.IsEquiJoin(pp.q) {
			continue
		}
		if !equiJoinUsesColumn(rc.Expr, rel.RTEIndex, keyCol, pp.q) {
			continue
		}
		reqOuter := rc.RequiredRelids.Difference(rel.Relids)
		sel := pp.joinSelectivity(rc)
		rows := clampRows(tableRows * sel)
		ppi := rel.GetParamPathInfo(reqOuter, rows, []*clause.RestrictionClause{rc})
		ic := pp.p.Model.IndexScanCost(idx.Pages, rte.Pages, tableRows, sel)
		rel.AddPath(&path.AccessPath{
			Kind:        path.IndexScan,
			Rows:        ppi.Rows,
			StartupCost: ic.Startup,
			TotalCost:   ic.Total,
			PathKeys:    keys,
			ParamInfo:   ppi,
			IndexName:   idx.Name,
		})
	}
}

// indexPathKeys 构造索引首列的排序键
func (pp *planPass) indexPathKeys(rel *path.RelationDescriptor, rte *query.RangeTableEntry, idx *query.IndexDef) []*clause.PathKey {
	tbl := rte.Alias
	if tbl == "" {
		tbl = rte.TableName
	}
	colExpr := &ast.ColumnNameExpr{Name: &ast.ColumnName{
		Table: ast.NewCIStr(tbl),
		Name:  ast.NewCIStr(idx.Columns[0]),
	}}
	ec := pp.classes.SingleExprClass(colExpr, rel.Relids.Clone())
	return []*clause.PathKey{{Class: ec}}
}

// clauseMatchesColumn 判断限定条件是否是对指定列的比较
func clauseMatchesColumn(expr ast.ExprNode, col string) bool {
	bin, ok := expr.(*ast.BinaryOperationExpr)
	if !ok {
		return false
	}
	switch bin.Op {
	case opcode.EQ, opcode.LT, opcode.LE, opcode.GT, opcode.GE:
	default:
		return false
	}
	lcol, lok := bin.L.(*ast.ColumnNameExpr)
	rcol, rok := bin.R.(*ast.ColumnNameExpr)
	switch {
	case lok && !rok:
		return lcol.Name.Name.L == col
	case rok && !lok:
		return rcol.Name.Name.L == col
	default:
		return false
	}
}

// equiJoinUsesColumn 判断等值连接条件在指定关系一侧引用的是否是指定列
func equiJoinUsesColumn(expr ast.ExprNode, relid int, col string, resolver clause.ColumnResolver) bool {
	bin, ok := expr.(*ast.BinaryOperationExpr)
	if !ok {
		return false
	}
	for _, side := range []ast.ExprNode{bin.L, bin.R} {
		cn, ok := side.(*ast.ColumnNameExpr)
		if !ok || cn.Name.Name.L != col {
			continue
		}
		if r, ok := resolver.ResolveColumn(cn.Name.Table.L, cn.Name.Name.L); ok && r == relid {
			return true
		}
	}
	return false
}

// rowSourcePaths 为 VALUES/函数/CTE 生成内存行源扫描路径
func (pp *planPass) rowSourcePaths(rel *path.RelationDescriptor, rte *query.RangeTableEntry, kind path.PathKind, rows float64, parallelSafe bool) {
	if rows <= 0 {
		rows = 1
	}
	rel.Rows = clampRows(rows * restrictSelectivity(nil, rel.BaseRestrict))
	rel.Width = rte.TupleWidth()

	c := pp.p.Model.RowSourceScanCost(rows)
	rel.AddPath(&path.AccessPath{
		Kind:         kind,
		Rows:         rel.Rows,
		StartupCost:  c.Startup,
		TotalCost:    c.Total,
		ParallelSafe: parallelSafe,
	})
}

// subqueryPaths 规划子查询范围表项
// 先尝试把外层限定条件下推进子查询，再独立规划子查询本身，
// 最后在其最优路径上架一层子查询扫描
func (pp *planPass) subqueryPaths(rel *path.RelationDescriptor, rte *query.RangeTableEntry) error {
	sub := rte.Subquery
	if sub == nil {
		panic(relids.ContractError(fmt.Sprintf(
			"planner: subquery range table entry %d has no query tree", rel.RTEIndex)))
	}

	origQuals := len(sub.Quals)
	rel.BaseRestrict = pp.p.pushdown.PushDownQuals(sub, rte, rel.BaseRestrict)

	inner := &planPass{
		p: pp.p, q: sub, id: pp.id, classes: clause.NewClassSet(),
		pushed: true, pushedFrom: origQuals,
	}
	if rte.SecurityBarrier {
		inner.pushedLevel = 1
	}
	subFinal, err := inner.run()
	if err != nil {
		return err
	}
	if subFinal.IsDummy() {
		rel.SetDummy()
		return nil
	}

	rel.Rows = clampRows(subFinal.Rows * restrictSelectivity(nil, rel.BaseRestrict))
	rel.Width = subFinal.Width

	c := pp.p.Model.SubqueryScanCost(subFinal.CheapestTotal.Cost(), subFinal.Rows)
	rel.AddPath(&path.AccessPath{
		Kind:        path.SubqueryScan,
		Rows:        rel.Rows,
		StartupCost: c.Startup,
		TotalCost:   c.Total,
		Subpath:     subFinal.CheapestTotal,
	})
	return nil
}

// buildAppendRel 规划分区父关系
// 子关系描述符和父子列映射在这里搭好，裁剪、条件翻译和
// Append/MergeAppend 合成交给追加关系构建器
func (pp *planPass) buildAppendRel(rel *path.RelationDescriptor, rte *query.RangeTableEntry) error {
	rel.PartDesc = rte.Partition

	for _, ch := range rte.Partition.Children {
		childRTE := pp.q.RTE(ch.RTEIndex)
		child := path.NewBaseRel(ch.RTEIndex)
		child.Kind = path.OtherMemberRel
		child.ConsiderParallel = rel.ConsiderParallel
		rel.PartRels = append(rel.PartRels, child)
		rel.AppendInfos = append(rel.AppendInfos, makeAppendInfo(rel.RTEIndex, rte, ch.RTEIndex, childRTE))
	}

	builder := appendrel.NewBuilder(pp.p.Model, pp.q)
	builder.Trace = pp.p.Cfg.Trace

	err := builder.SizeAppendRel(rel, func(child *path.RelationDescriptor, restrict []*clause.RestrictionClause) error {
		childRTE := pp.q.RTE(child.RTEIndex)
		child.BaseRestrict = restrict
		stats, tableRows := pp.sizeRelation(child, childRTE, restrict)
		pp.relationPaths(child, childRTE, stats, tableRows)
		child.SetCheapest()
		return nil
	})
	if err != nil {
		return &PlanningError{Stage: "append expansion", Err: err}
	}
	if rel.IsDummy() {
		return nil
	}

	builder.BuildAppendPaths(rel)
	return nil
}

// makeAppendInfo 为一对父子关系建列映射
// 同名列直接映射，子关系缺失的父列留空，翻译时报错
func makeAppendInfo(parentRelid int, parent *query.RangeTableEntry, childRelid int, child *query.RangeTableEntry) *query.AppendInfo {
	childCols := make(map[string]bool, len(child.Columns))
	for _, col := range child.Columns {
		childCols[col.Name] = true
	}

	colMap := make(map[string]string, len(parent.Columns))
	for _, col := range parent.Columns {
		if childCols[col.Name] {
			colMap[col.Name] = col.Name
		}
	}

	childName := child.Alias
	if childName == "" {
		childName = child.TableName
	}
	return &query.AppendInfo{
		ParentRelid: parentRelid,
		ChildRelid:  childRelid,
		ParentTable: parent.TableName,
		ChildTable:  childName,
		ColumnMap:   colMap,
	}
}
