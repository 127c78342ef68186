package planner

import (
	"github.com/kasuganosora/relopt/pkg/planner/path"
	"github.com/kasuganosora/relopt/pkg/planner/query"
)

// RelPathlistHook 基础关系路径生成扩展点
// 返回 true 表示钩子已自行填充该关系的路径表，内置生成被跳过；
// 返回 false 则照常走内置生成
type RelPathlistHook interface {
	GenerateRelPaths(rel *path.RelationDescriptor, rte *query.RangeTableEntry) bool
}

// JoinSearchHook 连接搜索扩展点
// 设置后整体替换内置的动态规划搜索
type JoinSearchHook interface {
	Search(initial []*path.RelationDescriptor, target int) (*path.RelationDescriptor, error)
}
