package query

import (
	"github.com/pingcap/tidb/pkg/parser/ast"

	"github.com/kasuganosora/relopt/pkg/relids"
)

// JoinKind 连接类型
type JoinKind int

const (
	JoinInner JoinKind = iota
	JoinLeft
	JoinRight
	JoinFull
	JoinSemi
	JoinAnti
)

// String 返回连接类型名
func (k JoinKind) String() string {
	switch k {
	case JoinInner:
		return "inner"
	case JoinLeft:
		return "left"
	case JoinRight:
		return "right"
	case JoinFull:
		return "full"
	case JoinSemi:
		return "semi"
	case JoinAnti:
		return "anti"
	default:
		return "unknown"
	}
}

// JoinTreeNode 连接树节点
// 叶子节点 Relid > 0；内部节点描述一次显式连接
type JoinTreeNode struct {
	// Relid 叶子节点的范围表索引，内部节点为 0
	Relid int

	Kind  JoinKind
	Left  *JoinTreeNode
	Right *JoinTreeNode

	// Quals 本层连接条件（ON 子句的合取项）
	Quals []ast.ExprNode
}

// IsLeaf 判断是否为叶子
func (n *JoinTreeNode) IsLeaf() bool {
	return n != nil && n.Relid > 0
}

// Relids 返回子树覆盖的关系集合
func (n *JoinTreeNode) Relids() *relids.RelidSet {
	if n == nil {
		return relids.New()
	}
	if n.IsLeaf() {
		return relids.New(n.Relid)
	}
	return n.Left.Relids().Union(n.Right.Relids())
}

// SpecialJoinInfo 外连接排序约束
// 记录一个非内连接的两侧最小关系集合，连接搜索用它判定合法性
type SpecialJoinInfo struct {
	Kind JoinKind

	// MinLeftHand/MinRightHand 连接两侧各自必须先完成的最小关系集合
	MinLeftHand  *relids.RelidSet
	MinRightHand *relids.RelidSet

	// LeftHand/RightHand 语法上两侧的完整关系集合
	LeftHand  *relids.RelidSet
	RightHand *relids.RelidSet
}

// CollectSpecialJoins 遍历连接树收集全部外连接约束
func CollectSpecialJoins(n *JoinTreeNode) []*SpecialJoinInfo {
	var out []*SpecialJoinInfo
	collectSpecialJoins(n, &out)
	return out
}

func collectSpecialJoins(n *JoinTreeNode, out *[]*SpecialJoinInfo) {
	if n == nil || n.IsLeaf() {
		return
	}
	collectSpecialJoins(n.Left, out)
	collectSpecialJoins(n.Right, out)

	if n.Kind == JoinInner {
		return
	}

	left := n.Left.Relids()
	right := n.Right.Relids()
	sji := &SpecialJoinInfo{
		Kind:         n.Kind,
		LeftHand:     left,
		RightHand:    right,
		MinLeftHand:  left.Clone(),
		MinRightHand: right.Clone(),
	}
	// RIGHT JOIN 规范化为交换两侧的 LEFT JOIN
	if n.Kind == JoinRight {
		sji.Kind = JoinLeft
		sji.LeftHand, sji.RightHand = sji.RightHand, sji.LeftHand
		sji.MinLeftHand, sji.MinRightHand = sji.MinRightHand, sji.MinLeftHand
	}
	*out = append(*out, sji)
}

// SetOpKind 集合操作类型
type SetOpKind int

const (
	SetOpUnion SetOpKind = iota
	SetOpIntersect
	SetOpExcept
)

// SetOpNode 集合操作树节点
type SetOpNode struct {
	Op   SetOpKind
	All  bool
	Left *SetOpNode
	// Right 为 nil 时该节点是叶子（一个 SELECT 分支）
	Right *SetOpNode
	Leaf  bool
}

// ContainsExcept 判断子树中是否出现 EXCEPT
func (n *SetOpNode) ContainsExcept() bool {
	if n == nil || n.Leaf {
		return false
	}
	if n.Op == SetOpExcept {
		return true
	}
	return n.Left.ContainsExcept() || n.Right.ContainsExcept()
}
