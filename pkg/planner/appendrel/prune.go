package appendrel

import (
	"strings"

	"github.com/google/btree"
	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/opcode"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/kasuganosora/relopt/pkg/planner/clause"
	"github.com/kasuganosora/relopt/pkg/planner/query"
)

// keyConstraint 限定条件里落在分区键上的一个约束
// op 限 EQ/LT/LE/GT/GE；IN 列表展开在 values 里
type keyConstraint struct {
	op     opcode.Op
	val    *query.BoundValue
	values []*query.BoundValue
}

// Pruner 分区裁剪器
// 用限定条件和子分区边界做可满足性判断，裁掉注定为空的子分区。
// 字符串边界按排序规则比较，数值边界直接比大小
type Pruner struct {
	coll *collate.Collator
}

// NewPruner 创建分区裁剪器
func NewPruner() *Pruner {
	return &Pruner{coll: collate.New(language.Und)}
}

// LivePartitions 返回可能满足限定条件的子分区范围表索引集合
// 无法解析的约束一律不裁（保守为真）
func (pr *Pruner) LivePartitions(pd *query.PartitionDesc, clauses []*clause.RestrictionClause) map[int]bool {
	cons := collectKeyConstraints(pd.KeyColumn, clauses)
	live := make(map[int]bool, len(pd.Children))
	if len(cons) == 0 {
		for _, ch := range pd.Children {
			live[ch.RTEIndex] = true
		}
		return live
	}

	if pd.Strategy == query.PartitionRange {
		if v, ok := pointConstraint(cons); ok && pr.pointResolvable(pd, v) {
			pr.lookupPoint(pd, v, cons, live)
			return live
		}
	}

	for _, ch := range pd.Children {
		if pr.boundMayMatch(pd.Strategy, ch.Bound, cons) {
			live[ch.RTEIndex] = true
		}
	}
	return live
}

// pointConstraint 取第一个等值约束
func pointConstraint(cons []keyConstraint) (*query.BoundValue, bool) {
	for _, c := range cons {
		if c.op == opcode.EQ && c.val != nil {
			return c.val, true
		}
	}
	return nil, false
}

// lookupPoint 范围分区的等值裁剪
// 子分区按下界排成 btree，找下界不超过目标值的最近分区再验证其余约束；
// 无界的默认分区始终保留
func (pr *Pruner) lookupPoint(pd *query.PartitionDesc, v *query.BoundValue, cons []keyConstraint, live map[int]bool) {
	tree := btree.NewG(2, func(a, b query.PartitionChild) bool {
		if pr.lowerLess(a.Bound, b.Bound) {
			return true
		}
		if pr.lowerLess(b.Bound, a.Bound) {
			return false
		}
		return a.RTEIndex < b.RTEIndex
	})
	for _, ch := range pd.Children {
		if ch.Bound == nil {
			live[ch.RTEIndex] = true
			continue
		}
		tree.ReplaceOrInsert(ch)
	}

	pivot := query.PartitionChild{
		RTEIndex: int(^uint(0) >> 1),
		Bound:    &query.PartitionBound{Lower: v},
	}
	tree.DescendLessOrEqual(pivot, func(ch query.PartitionChild) bool {
		if pr.boundMayMatch(query.PartitionRange, ch.Bound, cons) {
			live[ch.RTEIndex] = true
		}
		return false
	})
}

// pointResolvable 判断目标值与全部子分区边界是否可比
// 任何一个边界类型不一致时放弃点查，退回逐分区的保守判断
func (pr *Pruner) pointResolvable(pd *query.PartitionDesc, v *query.BoundValue) bool {
	for _, ch := range pd.Children {
		if ch.Bound == nil {
			continue
		}
		if ch.Bound.Lower != nil {
			if _, ok := pr.compare(v, ch.Bound.Lower); !ok {
				return false
			}
		}
		if ch.Bound.Upper != nil {
			if _, ok := pr.compare(v, ch.Bound.Upper); !ok {
				return false
			}
		}
	}
	return true
}

// lowerLess 按区间下界比较，nil 视为负无穷
func (pr *Pruner) lowerLess(a, b *query.PartitionBound) bool {
	if a.Lower == nil {
		return b.Lower != nil
	}
	if b.Lower == nil {
		return false
	}
	c, ok := pr.compare(a.Lower, b.Lower)
	return ok && c < 0
}

// compare 比较两个边界值，类型不一致时 ok 为假
func (pr *Pruner) compare(a, b *query.BoundValue) (int, bool) {
	if a.IsStr != b.IsStr {
		return 0, false
	}
	if a.IsStr {
		return pr.coll.CompareString(a.Str, b.Str), true
	}
	switch {
	case a.Num < b.Num:
		return -1, true
	case a.Num > b.Num:
		return 1, true
	default:
		return 0, true
	}
}

// boundMayMatch 判断一个子分区的边界能否满足全部约束
func (pr *Pruner) boundMayMatch(strategy query.PartitionStrategy, bound *query.PartitionBound, cons []keyConstraint) bool {
	if bound == nil {
		return true
	}
	for _, c := range cons {
		if !pr.satisfiable(strategy, bound, c) {
			return false
		}
	}
	return true
}

func (pr *Pruner) satisfiable(strategy query.PartitionStrategy, bound *query.PartitionBound, c keyConstraint) bool {
	if strategy == query.PartitionList {
		return pr.listSatisfiable(bound.ListValues, c)
	}
	return pr.rangeSatisfiable(bound, c)
}

// listSatisfiable 列表分区：任一列表值能满足约束即可
func (pr *Pruner) listSatisfiable(list []*query.BoundValue, c keyConstraint) bool {
	if len(list) == 0 {
		return true
	}
	vals := c.values
	if c.val != nil {
		vals = []*query.BoundValue{c.val}
	}
	for _, lv := range list {
		for _, v := range vals {
			cmp, ok := pr.compare(lv, v)
			if !ok || opHolds(c.op, cmp) {
				return true
			}
		}
	}
	return false
}

// rangeSatisfiable 范围分区：[Lower, Upper) 与约束区间有交集即可
func (pr *Pruner) rangeSatisfiable(bound *query.PartitionBound, c keyConstraint) bool {
	if len(c.values) > 0 {
		for _, v := range c.values {
			if pr.rangeContains(bound, v) {
				return true
			}
		}
		return false
	}
	v := c.val
	if v == nil {
		return true
	}
	switch c.op {
	case opcode.EQ:
		return pr.rangeContains(bound, v)
	case opcode.LT:
		if bound.Lower == nil {
			return true
		}
		cmp, ok := pr.compare(bound.Lower, v)
		return !ok || cmp < 0
	case opcode.LE:
		if bound.Lower == nil {
			return true
		}
		cmp, ok := pr.compare(bound.Lower, v)
		return !ok || cmp <= 0
	case opcode.GT, opcode.GE:
		// 上界是开区间：存在不小于 v 的值当且仅当上界严格大于 v
		if bound.Upper == nil {
			return true
		}
		cmp, ok := pr.compare(bound.Upper, v)
		return !ok || cmp > 0
	default:
		return true
	}
}

func (pr *Pruner) rangeContains(bound *query.PartitionBound, v *query.BoundValue) bool {
	if bound.Lower != nil {
		cmp, ok := pr.compare(bound.Lower, v)
		if ok && cmp > 0 {
			return false
		}
	}
	if bound.Upper != nil {
		cmp, ok := pr.compare(v, bound.Upper)
		if ok && cmp >= 0 {
			return false
		}
	}
	return true
}

// opHolds 判断比较结果 cmp（左操作数相对约束值）是否满足 op
func opHolds(op opcode.Op, cmp int) bool {
	switch op {
	case opcode.EQ:
		return cmp == 0
	case opcode.LT:
		return cmp < 0
	case opcode.LE:
		return cmp <= 0
	case opcode.GT:
		return cmp > 0
	case opcode.GE:
		return cmp >= 0
	default:
		return true
	}
}

// collectKeyConstraints 从限定条件里收集分区键上的约束
// 只认 AND 连接下的比较和 IN，其余形状一律忽略（不裁）
func collectKeyConstraints(keyColumn string, clauses []*clause.RestrictionClause) []keyConstraint {
	key := strings.ToLower(keyColumn)
	var cons []keyConstraint

	var walk func(e ast.ExprNode)
	walk = func(e ast.ExprNode) {
		switch x := e.(type) {
		case *ast.ParenthesesExpr:
			walk(x.Expr)
		case *ast.BinaryOperationExpr:
			if x.Op == opcode.LogicAnd {
				walk(x.L)
				walk(x.R)
				return
			}
			if c, ok := constraintFromCompare(x, key); ok {
				cons = append(cons, c)
			}
		case *ast.PatternInExpr:
			if x.Not || !columnMatches(x.Expr, key) {
				return
			}
			var vals []*query.BoundValue
			for _, item := range x.List {
				v, ok := boundFromConst(item)
				if !ok {
					return
				}
				vals = append(vals, v)
			}
			cons = append(cons, keyConstraint{op: opcode.EQ, values: vals})
		}
	}
	for _, rc := range clauses {
		walk(rc.Expr)
	}
	return cons
}

func constraintFromCompare(bin *ast.BinaryOperationExpr, key string) (keyConstraint, bool) {
	switch bin.Op {
	case opcode.EQ, opcode.LT, opcode.LE, opcode.GT, opcode.GE:
	default:
		return keyConstraint{}, false
	}
	if columnMatches(bin.L, key) {
		if v, ok := boundFromConst(bin.R); ok {
			return keyConstraint{op: bin.Op, val: v}, true
		}
		return keyConstraint{}, false
	}
	if columnMatches(bin.R, key) {
		if v, ok := boundFromConst(bin.L); ok {
			return keyConstraint{op: flipOp(bin.Op), val: v}, true
		}
	}
	return keyConstraint{}, false
}

func columnMatches(e ast.ExprNode, key string) bool {
	cn, ok := e.(*ast.ColumnNameExpr)
	return ok && cn.Name.Name.L == key
}

func flipOp(op opcode.Op) opcode.Op {
	switch op {
	case opcode.LT:
		return opcode.GT
	case opcode.LE:
		return opcode.GE
	case opcode.GT:
		return opcode.LT
	case opcode.GE:
		return opcode.LE
	default:
		return op
	}
}

// boundFromConst 把常量表达式转成边界值
func boundFromConst(e ast.ExprNode) (*query.BoundValue, bool) {
	ve, ok := e.(ast.ValueExpr)
	if !ok {
		return nil, false
	}
	switch v := ve.GetValue().(type) {
	case int64:
		return query.NumBound(float64(v)), true
	case uint64:
		return query.NumBound(float64(v)), true
	case float64:
		return query.NumBound(v), true
	case string:
		return query.StrBound(v), true
	default:
		return nil, false
	}
}
