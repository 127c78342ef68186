package pushdown

import (
	"fmt"
	"strings"

	"github.com/pingcap/tidb/pkg/parser/ast"

	"github.com/kasuganosora/relopt/pkg/planner/clause"
	"github.com/kasuganosora/relopt/pkg/planner/query"
)

// UnsafeError 某条限定条件不能下推
// 属于被拒绝的变换而非失败：调用方保持原状，条件留在外层过滤
type UnsafeError struct {
	Reason string
}

func (e *UnsafeError) Error() string {
	return "pushdown: " + e.Reason
}

// LockingSetOpsError 锁定子句与集合操作同时出现
// 这种形状拒绝任何下推变换，整个子查询按原样物化
type LockingSetOpsError struct{}

func (e *LockingSetOpsError) Error() string {
	return "pushdown: locking clause combined with set operations"
}

// SafetyInfo 一个子查询的下推安全性分析结果
type SafetyInfo struct {
	// Unsafe 整个子查询禁止下推
	Unsafe bool
	Reason string

	// NoVolatile 易变条件禁止下推
	// DISTINCT/窗口函数/集合返回目标列会改变去重或开窗前后的存活行
	NoVolatile bool

	// UnsafeColumns 禁止被下推条件引用的输出列（小写列名）
	UnsafeColumns map[string]bool
}

// Analyzer 子查询下推分析器
type Analyzer struct {
	Trace bool
}

// IsPushdownSafe 分析一个子查询能接受哪些下推
// LIMIT/OFFSET 或集合操作树里出现 EXCEPT 时整体禁止；
// 逐输出列标记不可引用的列
func IsPushdownSafe(sub *query.ResolvedQuery) *SafetyInfo {
	info := &SafetyInfo{UnsafeColumns: make(map[string]bool)}

	if sub.LimitCount >= 0 || sub.LimitOffset >= 0 {
		info.Unsafe = true
		info.Reason = "subquery has LIMIT/OFFSET"
		return info
	}
	if sub.SetOps != nil && sub.SetOps.ContainsExcept() {
		info.Unsafe = true
		info.Reason = "EXCEPT in set-operation tree"
		return info
	}
	if sub.GroupingSets {
		// GROUPING SETS 会把非分组列置空，下推条件可能滤掉整组
		info.Unsafe = true
		info.Reason = "subquery uses grouping sets"
		return info
	}

	srfTargets := false
	for _, te := range sub.Targets {
		if clause.ContainsSetReturning(te.Expr) {
			srfTargets = true
			break
		}
	}
	info.NoVolatile = sub.HasDistinct || len(sub.Windows) > 0 || srfTargets

	distinctOn := make(map[string]bool, len(sub.DistinctOn))
	for _, e := range sub.DistinctOn {
		distinctOn[clause.ExprKey(e)] = true
	}

	for _, te := range sub.Targets {
		name := strings.ToLower(te.Name)
		switch {
		case clause.ContainsSetReturning(te.Expr):
			info.UnsafeColumns[name] = true
		case clause.IsVolatile(te.Expr):
			info.UnsafeColumns[name] = true
		case len(sub.DistinctOn) > 0 && !distinctOn[clause.ExprKey(te.Expr)]:
			info.UnsafeColumns[name] = true
		case len(sub.Windows) > 0 && !inEveryPartitionBy(te.Expr, sub.Windows):
			info.UnsafeColumns[name] = true
		}
	}
	return info
}

// inEveryPartitionBy 判断表达式是否出现在每个窗口的 PARTITION BY 里
func inEveryPartitionBy(e ast.ExprNode, windows []query.WindowDef) bool {
	key := clause.ExprKey(e)
	for _, w := range windows {
		found := false
		for _, pb := range w.PartitionBy {
			if clause.ExprKey(pb) == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// QualIsPushdownSafe 判断一条限定条件能否下推进给定子查询
// 返回 nil 表示安全；否则返回拒绝原因
func QualIsPushdownSafe(info *SafetyInfo, rte *query.RangeTableEntry, expr ast.ExprNode) error {
	if info.Unsafe {
		return &UnsafeError{Reason: info.Reason}
	}
	if clause.ContainsSubquery(expr) {
		return &UnsafeError{Reason: "clause contains a sub-select"}
	}
	if clause.ReferencesWholeRow(expr) {
		return &UnsafeError{Reason: "clause references a whole-row output"}
	}
	if info.NoVolatile && clause.IsVolatile(expr) {
		return &UnsafeError{Reason: "volatile clause against DISTINCT/window/set-returning subquery"}
	}
	for _, col := range referencedColumns(expr, rte.Alias) {
		if info.UnsafeColumns[col] {
			return &UnsafeError{Reason: fmt.Sprintf("clause references unsafe output column %q", col)}
		}
	}
	if rte.SecurityBarrier && !clause.IsLeakproof(expr) {
		return &UnsafeError{Reason: "leaky function against a security-barrier subquery"}
	}
	return nil
}

// PushDownQuals 把能下推的限定条件搬进子查询
// 下推的条件经输出表达式替换后并入子查询 WHERE（子查询聚合时并入 HAVING）；
// 被拒绝的条件原样返回，留在外层过滤，且不留任何部分修改
func (a *Analyzer) PushDownQuals(sub *query.ResolvedQuery, rte *query.RangeTableEntry, quals []*clause.RestrictionClause) []*clause.RestrictionClause {
	if sub.HasLocking && sub.SetOps != nil {
		if a.Trace {
			fmt.Printf("  [PATH SEARCH] pushdown declined: %v\n", &LockingSetOpsError{})
		}
		return quals
	}

	info := IsPushdownSafe(sub)
	var remaining []*clause.RestrictionClause
	for _, rc := range quals {
		if err := QualIsPushdownSafe(info, rte, rc.Expr); err != nil {
			if a.Trace {
				fmt.Printf("  [PATH SEARCH] pushdown declined: %v\n", err)
			}
			remaining = append(remaining, rc)
			continue
		}
		pushed, err := substituteExpr(rc.Expr, rte.Alias, sub.Targets)
		if err != nil {
			if a.Trace {
				fmt.Printf("  [PATH SEARCH] pushdown declined: %v\n", err)
			}
			remaining = append(remaining, rc)
			continue
		}
		if sub.HasAggs {
			sub.HavingQuals = append(sub.HavingQuals, pushed)
		} else {
			sub.Quals = append(sub.Quals, pushed)
		}
	}
	return remaining
}

// referencedColumns 收集表达式里指向子查询输出的列名（小写）
func referencedColumns(expr ast.ExprNode, alias string) []string {
	c := &colRefCollector{alias: strings.ToLower(alias)}
	expr.Accept(c)
	return c.names
}

type colRefCollector struct {
	alias string
	names []string
}

func (c *colRefCollector) Enter(n ast.Node) (ast.Node, bool) {
	if cn, ok := n.(*ast.ColumnNameExpr); ok {
		tbl := cn.Name.Table.L
		if tbl == "" || tbl == c.alias {
			c.names = append(c.names, cn.Name.Name.L)
		}
	}
	return n, false
}

func (c *colRefCollector) Leave(n ast.Node) (ast.Node, bool) {
	return n, true
}

// substituteExpr 复制表达式并把子查询列引用替换为对应的输出表达式
// 不属于该子查询的引用和常量原样共享
func substituteExpr(e ast.ExprNode, alias string, targets []query.TargetEntry) (ast.ExprNode, error) {
	lowAlias := strings.ToLower(alias)
	switch x := e.(type) {
	case *ast.ColumnNameExpr:
		tbl := x.Name.Table.L
		if tbl != "" && tbl != lowAlias {
			return e, nil
		}
		name := x.Name.Name.L
		for _, te := range targets {
			if strings.ToLower(te.Name) == name {
				return te.Expr, nil
			}
		}
		return nil, &UnsafeError{Reason: fmt.Sprintf("no subquery output column %q", name)}
	case *ast.BinaryOperationExpr:
		l, err := substituteExpr(x.L, alias, targets)
		if err != nil {
			return nil, err
		}
		r, err := substituteExpr(x.R, alias, targets)
		if err != nil {
			return nil, err
		}
		return &ast.BinaryOperationExpr{Op: x.Op, L: l, R: r}, nil
	case *ast.UnaryOperationExpr:
		v, err := substituteExpr(x.V, alias, targets)
		if err != nil {
			return nil, err
		}
		return &ast.UnaryOperationExpr{Op: x.Op, V: v}, nil
	case *ast.ParenthesesExpr:
		inner, err := substituteExpr(x.Expr, alias, targets)
		if err != nil {
			return nil, err
		}
		return &ast.ParenthesesExpr{Expr: inner}, nil
	case *ast.IsNullExpr:
		inner, err := substituteExpr(x.Expr, alias, targets)
		if err != nil {
			return nil, err
		}
		return &ast.IsNullExpr{Expr: inner, Not: x.Not}, nil
	case *ast.PatternInExpr:
		inner, err := substituteExpr(x.Expr, alias, targets)
		if err != nil {
			return nil, err
		}
		list := make([]ast.ExprNode, len(x.List))
		for i, item := range x.List {
			list[i], err = substituteExpr(item, alias, targets)
			if err != nil {
				return nil, err
			}
		}
		return &ast.PatternInExpr{Expr: inner, List: list, Not: x.Not}, nil
	case *ast.BetweenExpr:
		inner, err := substituteExpr(x.Expr, alias, targets)
		if err != nil {
			return nil, err
		}
		left, err := substituteExpr(x.Left, alias, targets)
		if err != nil {
			return nil, err
		}
		right, err := substituteExpr(x.Right, alias, targets)
		if err != nil {
			return nil, err
		}
		return &ast.BetweenExpr{Expr: inner, Left: left, Right: right, Not: x.Not}, nil
	case *ast.FuncCallExpr:
		args := make([]ast.ExprNode, len(x.Args))
		var err error
		for i, arg := range x.Args {
			args[i], err = substituteExpr(arg, alias, targets)
			if err != nil {
				return nil, err
			}
		}
		return &ast.FuncCallExpr{Schema: x.Schema, FnName: x.FnName, Args: args}, nil
	default:
		return e, nil
	}
}
