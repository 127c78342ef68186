package appendrel

import (
	"fmt"

	"github.com/kasuganosora/relopt/pkg/planner/clause"
	"github.com/kasuganosora/relopt/pkg/planner/cost"
	"github.com/kasuganosora/relopt/pkg/planner/path"
	"github.com/kasuganosora/relopt/pkg/planner/query"
)

// ChildPlanner 给一个子关系定尺寸并生成候选路径
// 由上层规划器提供，SizeAppendRel 对每个存活子关系回调一次
type ChildPlanner func(child *path.RelationDescriptor, restrict []*clause.RestrictionClause) error

// Builder 追加关系构建器
// 负责分区/继承/UNION ALL 父关系的两个阶段：
// 先裁剪加定尺寸，再合成 Append/MergeAppend 路径
type Builder struct {
	Model    cost.Model
	Resolver clause.ColumnResolver
	Pruner   *Pruner
	Trace    bool
}

// NewBuilder 创建追加关系构建器
func NewBuilder(model cost.Model, resolver clause.ColumnResolver) *Builder {
	return &Builder{
		Model:    model,
		Resolver: resolver,
		Pruner:   NewPruner(),
	}
}

// SizeAppendRel 定尺寸阶段
// 先按分区边界裁掉不可能匹配的子分区（不定尺寸直接判空），
// 再把父关系的限定条件翻译给每个存活子关系并回调 planChild；
// 行数取存活子关系之和，宽度取行数加权平均。
// 全部子关系为空时父关系本身判空
func (b *Builder) SizeAppendRel(parent *path.RelationDescriptor, planChild ChildPlanner) error {
	pruned := make(map[int]bool)
	if parent.PartDesc != nil && len(parent.BaseRestrict) > 0 {
		live := b.Pruner.LivePartitions(parent.PartDesc, parent.BaseRestrict)
		for _, ch := range parent.PartDesc.Children {
			if !live[ch.RTEIndex] {
				pruned[ch.RTEIndex] = true
			}
		}
	}

	var totalRows, weightedWidth float64
	liveCount := 0
	for i, child := range parent.PartRels {
		if pruned[child.RTEIndex] {
			child.SetDummy()
			if b.Trace {
				fmt.Printf("  [PATH SEARCH] append: child %d pruned by partition bounds\n", child.RTEIndex)
			}
			continue
		}

		var ai *query.AppendInfo
		if i < len(parent.AppendInfos) {
			ai = parent.AppendInfos[i]
		}
		childClauses, dummy, err := translateClauses(parent.BaseRestrict, ai, b.Resolver)
		if err != nil {
			return err
		}
		if dummy {
			child.SetDummy()
			if b.Trace {
				fmt.Printf("  [PATH SEARCH] append: child %d excluded by constant-false restriction\n", child.RTEIndex)
			}
			continue
		}

		if err := planChild(child, childClauses); err != nil {
			return err
		}
		if child.IsDummy() {
			continue
		}
		totalRows += child.Rows
		weightedWidth += child.Rows * float64(child.Width)
		liveCount++
	}

	if liveCount == 0 {
		parent.SetDummy()
		return nil
	}
	parent.Rows = totalRows
	if totalRows > 0 {
		parent.Width = int(weightedWidth/totalRows + 0.5)
	}
	if b.Trace {
		fmt.Printf("  [PATH SEARCH] append relation %s: %d live children, rows=%.0f\n",
			parent.Relids, liveCount, totalRows)
	}
	return nil
}
