package appendrel

import (
	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/opcode"

	"github.com/kasuganosora/relopt/pkg/planner/clause"
	"github.com/kasuganosora/relopt/pkg/planner/query"
)

// translateClauses 把父关系的限定条件翻译成子关系自己的副本
// 翻译后折叠出常量假的，整个子关系判空（dummy 为真）；
// 常量真的直接丢弃。父子共享同一条子句是不允许的，子句各自持有副本
func translateClauses(parent []*clause.RestrictionClause, ai *query.AppendInfo, resolver clause.ColumnResolver) (out []*clause.RestrictionClause, dummy bool, err error) {
	for _, rc := range parent {
		expr := rc.Expr
		if ai != nil {
			expr, err = translateExpr(rc.Expr, ai)
			if err != nil {
				return nil, false, err
			}
		}
		if val, ok := foldConst(expr); ok {
			if !val {
				return nil, true, nil
			}
			continue
		}
		child := clause.NewRestriction(expr, resolver)
		child.IsPushedDown = rc.IsPushedDown
		child.SecurityLevel = rc.SecurityLevel
		child.OuterJoinDelayed = rc.OuterJoinDelayed
		out = append(out, child)
	}
	return out, false, nil
}

// translateExpr 复制表达式并把父列引用换成子列引用
// 常量等不含列引用的节点原样共享
func translateExpr(e ast.ExprNode, ai *query.AppendInfo) (ast.ExprNode, error) {
	switch x := e.(type) {
	case *ast.ColumnNameExpr:
		childCol, err := ai.TranslateColumn(x.Name.Name.L)
		if err != nil {
			return nil, err
		}
		return &ast.ColumnNameExpr{Name: &ast.ColumnName{
			Table: ast.NewCIStr(ai.ChildTable),
			Name:  ast.NewCIStr(childCol),
		}}, nil
	case *ast.BinaryOperationExpr:
		l, err := translateExpr(x.L, ai)
		if err != nil {
			return nil, err
		}
		r, err := translateExpr(x.R, ai)
		if err != nil {
			return nil, err
		}
		return &ast.BinaryOperationExpr{Op: x.Op, L: l, R: r}, nil
	case *ast.UnaryOperationExpr:
		v, err := translateExpr(x.V, ai)
		if err != nil {
			return nil, err
		}
		return &ast.UnaryOperationExpr{Op: x.Op, V: v}, nil
	case *ast.ParenthesesExpr:
		inner, err := translateExpr(x.Expr, ai)
		if err != nil {
			return nil, err
		}
		return &ast.ParenthesesExpr{Expr: inner}, nil
	case *ast.IsNullExpr:
		inner, err := translateExpr(x.Expr, ai)
		if err != nil {
			return nil, err
		}
		return &ast.IsNullExpr{Expr: inner, Not: x.Not}, nil
	case *ast.PatternInExpr:
		inner, err := translateExpr(x.Expr, ai)
		if err != nil {
			return nil, err
		}
		list := make([]ast.ExprNode, len(x.List))
		for i, item := range x.List {
			list[i], err = translateExpr(item, ai)
			if err != nil {
				return nil, err
			}
		}
		return &ast.PatternInExpr{Expr: inner, List: list, Not: x.Not}, nil
	case *ast.BetweenExpr:
		inner, err := translateExpr(x.Expr, ai)
		if err != nil {
			return nil, err
		}
		left, err := translateExpr(x.Left, ai)
		if err != nil {
			return nil, err
		}
		right, err := translateExpr(x.Right, ai)
		if err != nil {
			return nil, err
		}
		return &ast.BetweenExpr{Expr: inner, Left: left, Right: right, Not: x.Not}, nil
	case *ast.FuncCallExpr:
		args := make([]ast.ExprNode, len(x.Args))
		var err error
		for i, a := range x.Args {
			args[i], err = translateExpr(a, ai)
			if err != nil {
				return nil, err
			}
		}
		return &ast.FuncCallExpr{Schema: x.Schema, FnName: x.FnName, Args: args}, nil
	default:
		return e, nil
	}
}

// foldConst 常量折叠
// 只折叠明确可判定的形状，其余返回 ok 为假
func foldConst(e ast.ExprNode) (val, ok bool) {
	switch x := e.(type) {
	case *ast.ParenthesesExpr:
		return foldConst(x.Expr)
	case *ast.UnaryOperationExpr:
		if x.Op != opcode.Not {
			return false, false
		}
		v, ok := foldConst(x.V)
		return !v, ok
	case *ast.BinaryOperationExpr:
		return foldBinary(x)
	case ast.ValueExpr:
		switch v := x.GetValue().(type) {
		case int64:
			return v != 0, true
		case uint64:
			return v != 0, true
		case float64:
			return v != 0, true
		default:
			return false, false
		}
	default:
		return false, false
	}
}

func foldBinary(bin *ast.BinaryOperationExpr) (bool, bool) {
	switch bin.Op {
	case opcode.LogicAnd:
		lv, lok := foldConst(bin.L)
		rv, rok := foldConst(bin.R)
		if lok && !lv || rok && !rv {
			return false, true
		}
		return lv && rv, lok && rok
	case opcode.LogicOr:
		lv, lok := foldConst(bin.L)
		rv, rok := foldConst(bin.R)
		if lok && lv || rok && rv {
			return true, true
		}
		return lv || rv, lok && rok
	case opcode.EQ, opcode.NE, opcode.LT, opcode.LE, opcode.GT, opcode.GE:
		cmp, ok := compareConst(bin.L, bin.R)
		if !ok {
			return false, false
		}
		if bin.Op == opcode.NE {
			return cmp != 0, true
		}
		return opHolds(bin.Op, cmp), true
	default:
		return false, false
	}
}

func compareConst(l, r ast.ExprNode) (int, bool) {
	lv, lok := constScalar(l)
	rv, rok := constScalar(r)
	if !lok || !rok {
		return 0, false
	}
	ls, lstr := lv.(string)
	rs, rstr := rv.(string)
	if lstr != rstr {
		return 0, false
	}
	if lstr {
		switch {
		case ls < rs:
			return -1, true
		case ls > rs:
			return 1, true
		default:
			return 0, true
		}
	}
	lf, rf := toFloat(lv), toFloat(rv)
	switch {
	case lf < rf:
		return -1, true
	case lf > rf:
		return 1, true
	default:
		return 0, true
	}
}

func constScalar(e ast.ExprNode) (interface{}, bool) {
	ve, ok := e.(ast.ValueExpr)
	if !ok {
		return nil, false
	}
	switch v := ve.GetValue().(type) {
	case int64, uint64, float64, string:
		return v, true
	default:
		return nil, false
	}
}

func toFloat(v interface{}) float64 {
	switch x := v.(type) {
	case int64:
		return float64(x)
	case uint64:
		return float64(x)
	case float64:
		return x
	default:
		return 0
	}
}
