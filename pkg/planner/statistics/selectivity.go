package statistics

import (
	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/opcode"
)

// 缺少统计信息时的默认选择率
const (
	// DefaultEqSelectivity 等值条件默认选择率
	DefaultEqSelectivity = 0.005
	// DefaultRangeSelectivity 范围条件默认选择率
	DefaultRangeSelectivity = 1.0 / 3.0
	// DefaultSelectivity 其它条件默认选择率
	DefaultSelectivity = 0.5
)

// ClauseSelectivity 估算单表限定条件的选择率
// 等值条件按列的不同值个数估，范围条件按默认比例估
func ClauseSelectivity(stats *TableStatistics, expr ast.ExprNode) float64 {
	bin, ok := expr.(*ast.BinaryOperationExpr)
	if !ok {
		return DefaultSelectivity
	}

	switch bin.Op {
	case opcode.EQ:
		if col := sideColumn(bin); col != "" {
			if cs := stats.Column(col); cs != nil && cs.DistinctCount > 0 {
				return 1.0 / float64(cs.DistinctCount)
			}
		}
		return DefaultEqSelectivity
	case opcode.LT, opcode.LE, opcode.GT, opcode.GE:
		return DefaultRangeSelectivity
	case opcode.NE:
		return 1.0 - DefaultEqSelectivity
	case opcode.LogicAnd:
		return ClauseSelectivity(stats, bin.L) * ClauseSelectivity(stats, bin.R)
	case opcode.LogicOr:
		l := ClauseSelectivity(stats, bin.L)
		r := ClauseSelectivity(stats, bin.R)
		return l + r - l*r
	default:
		return DefaultSelectivity
	}
}

// JoinSelectivity 估算等值连接的选择率：1/max(nd_left, nd_right)
func JoinSelectivity(leftStats, rightStats *TableStatistics, leftCol, rightCol string) float64 {
	nd := int64(0)
	if cs := leftStats.Column(leftCol); cs != nil && cs.DistinctCount > nd {
		nd = cs.DistinctCount
	}
	if cs := rightStats.Column(rightCol); cs != nil && cs.DistinctCount > nd {
		nd = cs.DistinctCount
	}
	if nd <= 0 {
		return DefaultEqSelectivity
	}
	return 1.0 / float64(nd)
}

// sideColumn 返回二元比较中唯一的列引用侧的列名，两侧都是列或都不是列返回空
func sideColumn(bin *ast.BinaryOperationExpr) string {
	lcol, lok := bin.L.(*ast.ColumnNameExpr)
	rcol, rok := bin.R.(*ast.ColumnNameExpr)
	switch {
	case lok && !rok:
		return lcol.Name.Name.L
	case rok && !lok:
		return rcol.Name.Name.L
	default:
		return ""
	}
}
