package clause

import (
	"strings"

	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/format"

	"github.com/kasuganosora/relopt/pkg/relids"
)

// ColumnResolver 列引用解析器
// 由范围表实现，把限定名解析为范围表索引
type ColumnResolver interface {
	// ResolveColumn 解析列引用，返回其所属关系的范围表索引
	// tableAlias 为空时按未限定名解析
	ResolveColumn(tableAlias, column string) (relid int, ok bool)
}

// 易变函数：每次调用结果可能不同，不能下推越过去重/窗口边界
var volatileFuncs = map[string]bool{
	"rand":           true,
	"uuid":           true,
	"uuid_short":     true,
	"sleep":          true,
	"last_insert_id": true,
	"row_count":      true,
	"found_rows":     true,
	"connection_id":  true,
}

// 集合返回函数：单行输入产生多行输出
var setReturningFuncs = map[string]bool{
	"json_table":      true,
	"generate_series": true,
	"unnest":          true,
}

// exprVisitor 表达式信息收集访问器
type exprVisitor struct {
	resolver     ColumnResolver
	rels         *relids.RelidSet
	hasSubquery  bool
	hasVolatile  bool
	hasSetReturn bool
	hasWholeRow  bool
	hasFuncCall  bool
	hasPattern   bool
}

func (v *exprVisitor) Enter(n ast.Node) (ast.Node, bool) {
	switch node := n.(type) {
	case *ast.ColumnNameExpr:
		if node.Name != nil {
			if node.Name.Name.L == "*" {
				v.hasWholeRow = true
			}
			if v.resolver != nil {
				if relid, ok := v.resolver.ResolveColumn(node.Name.Table.L, node.Name.Name.L); ok {
					v.rels = v.rels.Add(relid)
				}
			}
		}
	case *ast.SubqueryExpr:
		v.hasSubquery = true
		// 子查询内部的列引用不属于本层
		return n, true
	case *ast.ExistsSubqueryExpr:
		v.hasSubquery = true
		return n, true
	case *ast.FuncCallExpr:
		v.hasFuncCall = true
		name := strings.ToLower(node.FnName.L)
		if volatileFuncs[name] {
			v.hasVolatile = true
		}
		if setReturningFuncs[name] {
			v.hasSetReturn = true
		}
	case *ast.PatternLikeOrIlikeExpr, *ast.PatternRegexpExpr:
		v.hasPattern = true
	}
	return n, false
}

func (v *exprVisitor) Leave(n ast.Node) (ast.Node, bool) {
	return n, true
}

func inspect(expr ast.ExprNode, resolver ColumnResolver) *exprVisitor {
	v := &exprVisitor{resolver: resolver}
	if expr != nil {
		expr.Accept(v)
	}
	return v
}

// ExtractRelids 返回表达式引用的所有关系的范围表索引集合
// 子查询内部的引用不计入
func ExtractRelids(expr ast.ExprNode, resolver ColumnResolver) *relids.RelidSet {
	v := inspect(expr, resolver)
	if v.rels == nil {
		return relids.New()
	}
	return v.rels
}

// ContainsSubquery 判断表达式是否含有子查询
func ContainsSubquery(expr ast.ExprNode) bool {
	return inspect(expr, nil).hasSubquery
}

// IsVolatile 判断表达式是否含有易变函数调用
func IsVolatile(expr ast.ExprNode) bool {
	return inspect(expr, nil).hasVolatile
}

// ContainsSetReturning 判断表达式是否含有集合返回函数
func ContainsSetReturning(expr ast.ExprNode) bool {
	return inspect(expr, nil).hasSetReturn
}

// ReferencesWholeRow 判断表达式是否引用整行输出（t.*）
func ReferencesWholeRow(expr ast.ExprNode) bool {
	return inspect(expr, nil).hasWholeRow
}

// IsLeakproof 判断表达式是否防泄漏
// 函数调用和模式匹配可能通过报错信息携带出行值，视为有泄漏风险；
// 纯比较/算术运算不会
func IsLeakproof(expr ast.ExprNode) bool {
	v := inspect(expr, nil)
	return !v.hasFuncCall && !v.hasPattern
}

// ExprKey 返回表达式的规范文本，用作去重键
func ExprKey(expr ast.ExprNode) string {
	if expr == nil {
		return ""
	}
	var sb strings.Builder
	ctx := format.NewRestoreCtx(format.DefaultRestoreFlags, &sb)
	if err := expr.Restore(ctx); err != nil {
		// 个别构造节点不支持还原，退回类型名避免误合并
		return strings.ToLower(strings.TrimSpace(expr.Text()))
	}
	return sb.String()
}
