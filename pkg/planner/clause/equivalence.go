package clause

import (
	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/opcode"

	"github.com/kasuganosora/relopt/pkg/relids"
)

// EquivalenceMember 等价类成员
type EquivalenceMember struct {
	// Expr 成员表达式
	Expr ast.ExprNode

	// Relids 表达式引用的关系集合
	Relids *relids.RelidSet

	// IsChild 是否是为分区子关系派生的成员
	IsChild bool
}

// EquivalenceClass 等价类
// 记录一组在某个外连接边界之下可证明相等的表达式。
// 两个类因新等式连通时合并：被合并的类打上 Merged 标记并指向
// 存续类，原地保留，绝不同时在两处维护成员。
type EquivalenceClass struct {
	Members []*EquivalenceMember

	// Relids 所有非子成员引用关系的并集
	Relids *relids.RelidSet

	// Merged 该类已并入其它类
	Merged bool

	// MergedInto 并入的目标类
	MergedInto *EquivalenceClass
}

// Canonical 沿合并链找到存续类
func (ec *EquivalenceClass) Canonical() *EquivalenceClass {
	for ec.Merged {
		ec = ec.MergedInto
	}
	return ec
}

// ContainsExpr 判断表达式是否已是类成员
func (ec *EquivalenceClass) ContainsExpr(expr ast.ExprNode) bool {
	key := ExprKey(expr)
	for _, m := range ec.Members {
		if ExprKey(m.Expr) == key {
			return true
		}
	}
	return false
}

// AddMember 添加成员并更新关系并集
func (ec *EquivalenceClass) AddMember(expr ast.ExprNode, rels *relids.RelidSet, isChild bool) *EquivalenceMember {
	m := &EquivalenceMember{Expr: expr, Relids: rels, IsChild: isChild}
	ec.Members = append(ec.Members, m)
	if !isChild {
		ec.Relids = ec.Relids.Union(rels)
	}
	return m
}

// ClassSet 一次顶层规划过程中累积的全部等价类
// 类只增不删，合并后的类保留占位
type ClassSet struct {
	Classes []*EquivalenceClass
}

// NewClassSet 创建等价类集合
func NewClassSet() *ClassSet {
	return &ClassSet{}
}

// findByExpr 查找包含指定表达式的存续类
func (cs *ClassSet) findByExpr(expr ast.ExprNode) *EquivalenceClass {
	for _, ec := range cs.Classes {
		if ec.Merged {
			continue
		}
		if ec.ContainsExpr(expr) {
			return ec
		}
	}
	return nil
}

// AddEquality 登记等式 left = right
// 两侧都不在已有类中则新建类；一侧在则加入；两侧分属两个类则合并。
// 返回两侧最终所属的存续类
func (cs *ClassSet) AddEquality(left ast.ExprNode, leftRels *relids.RelidSet, right ast.ExprNode, rightRels *relids.RelidSet) *EquivalenceClass {
	lc := cs.findByExpr(left)
	rc := cs.findByExpr(right)

	switch {
	case lc == nil && rc == nil:
		ec := &EquivalenceClass{}
		ec.AddMember(left, leftRels, false)
		ec.AddMember(right, rightRels, false)
		cs.Classes = append(cs.Classes, ec)
		return ec
	case lc != nil && rc == nil:
		lc.AddMember(right, rightRels, false)
		return lc
	case lc == nil && rc != nil:
		rc.AddMember(left, leftRels, false)
		return rc
	case lc == rc:
		return lc
	default:
		// 合并：右类并入左类，右类留下转发标记
		for _, m := range rc.Members {
			lc.Members = append(lc.Members, m)
			if !m.IsChild {
				lc.Relids = lc.Relids.Union(m.Relids)
			}
		}
		rc.Members = nil
		rc.Merged = true
		rc.MergedInto = lc
		return lc
	}
}

// SingleExprClass 查找或新建只含一个表达式的等价类
// 为排序路径键服务：表达式已属于某个存续类时直接复用该类
func (cs *ClassSet) SingleExprClass(expr ast.ExprNode, rels *relids.RelidSet) *EquivalenceClass {
	if ec := cs.findByExpr(expr); ec != nil {
		return ec
	}
	ec := &EquivalenceClass{}
	ec.AddMember(expr, rels, false)
	cs.Classes = append(cs.Classes, ec)
	return ec
}

// DeriveJoinClauses 为横跨 outer/inner 两侧的等价类生成派生连接条件
// 同一个类中分属两侧的每对非子成员各生成一条 a = b；
// 已在 existing 中出现的等式不再重复生成
func (cs *ClassSet) DeriveJoinClauses(outer, inner *relids.RelidSet, existing []*RestrictionClause) []*RestrictionClause {
	seen := make(map[string]bool, len(existing))
	for _, rc := range existing {
		seen[rc.Key()] = true
	}

	var derived []*RestrictionClause
	for _, ec := range cs.Classes {
		if ec.Merged {
			continue
		}
		if !ec.Relids.Overlaps(outer) || !ec.Relids.Overlaps(inner) {
			continue
		}
		for _, om := range ec.Members {
			if om.IsChild || !om.Relids.IsSubset(outer) || om.Relids.IsEmpty() {
				continue
			}
			for _, im := range ec.Members {
				if im.IsChild || !im.Relids.IsSubset(inner) || im.Relids.IsEmpty() {
					continue
				}
				eq := &ast.BinaryOperationExpr{Op: opcode.EQ, L: om.Expr, R: im.Expr}
				rc := &RestrictionClause{
					Expr:           eq,
					ClauseRelids:   om.Relids.Union(im.Relids),
					RequiredRelids: om.Relids.Union(im.Relids),
					EquivClass:     ec,
				}
				if seen[rc.Key()] {
					continue
				}
				seen[rc.Key()] = true
				derived = append(derived, rc)
			}
		}
	}
	return derived
}
