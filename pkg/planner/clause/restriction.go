package clause

import (
	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/opcode"

	"github.com/kasuganosora/relopt/pkg/relids"
)

// RestrictionClause 限定条件子句
// 包装 WHERE/JOIN/HAVING 中的一个合取项，并携带推导出的元数据。
// 构造之后除惰性缓存的选择率外只读；同一个子句可以被多个关系的
// 子句列表共享引用，只有分区子关系才持有翻译后的副本。
type RestrictionClause struct {
	// Expr 子句表达式
	Expr ast.ExprNode

	// ClauseRelids 表达式直接引用的关系集合
	ClauseRelids *relids.RelidSet

	// RequiredRelids 求值前必须完成连接的关系集合
	// 外连接语义可能迫使它比 ClauseRelids 更大
	RequiredRelids *relids.RelidSet

	// IsPushedDown 是否是从外层下推进来的条件
	IsPushedDown bool

	// OuterJoinDelayed 是否因外连接被推迟求值
	OuterJoinDelayed bool

	// Pseudoconstant 是否不引用任何关系（每次查询只需求值一次）
	Pseudoconstant bool

	// SecurityLevel 安全栅栏层级，低层级的条件必须先求值
	SecurityLevel int

	// EquivClass 由等价类生成的子句会回链到所属等价类
	EquivClass *EquivalenceClass

	// 惰性缓存的连接选择率
	cachedSelectivity float64
	selectivityValid  bool
}

// NewRestriction 根据表达式构造限定子句并推导元数据
func NewRestriction(expr ast.ExprNode, resolver ColumnResolver) *RestrictionClause {
	rels := ExtractRelids(expr, resolver)
	return &RestrictionClause{
		Expr:           expr,
		ClauseRelids:   rels,
		RequiredRelids: rels.Clone(),
		Pseudoconstant: rels.IsEmpty() && !IsVolatile(expr),
	}
}

// Selectivity 返回缓存的选择率，首次调用时用 compute 计算
func (rc *RestrictionClause) Selectivity(compute func() float64) float64 {
	if !rc.selectivityValid {
		rc.cachedSelectivity = compute()
		rc.selectivityValid = true
	}
	return rc.cachedSelectivity
}

// IsJoinClause 判断是否是连接条件（引用多于一个关系）
func (rc *RestrictionClause) IsJoinClause() bool {
	return rc.RequiredRelids.Len() > 1
}

// IsEquiJoin 判断是否是形如 a = b 的等值连接条件，
// 且等号两侧各引用一侧的关系。归并/哈希连接只能使用这类条件
func (rc *RestrictionClause) IsEquiJoin(resolver ColumnResolver) bool {
	bin, ok := rc.Expr.(*ast.BinaryOperationExpr)
	if !ok || bin.Op != opcode.EQ {
		return false
	}
	left := ExtractRelids(bin.L, resolver)
	right := ExtractRelids(bin.R, resolver)
	return !left.IsEmpty() && !right.IsEmpty() && !left.Overlaps(right)
}

// CanJoinBetween 判断该连接条件能否在 outer 与 inner 的连接处求值：
// 条件引用的关系必须全部来自两侧的并集，且确实横跨两侧
func (rc *RestrictionClause) CanJoinBetween(outer, inner *relids.RelidSet) bool {
	joined := outer.Union(inner)
	if !rc.RequiredRelids.IsSubset(joined) {
		return false
	}
	return rc.RequiredRelids.Overlaps(outer) && rc.RequiredRelids.Overlaps(inner)
}

// Key 返回子句的去重键
func (rc *RestrictionClause) Key() string {
	return ExprKey(rc.Expr)
}
