package planner

import (
	"time"

	"github.com/kasuganosora/relopt/pkg/planner/cost"
	"github.com/kasuganosora/relopt/pkg/planner/parallelpath"
)

// Config 规划器配置
type Config struct {
	// CostParams 成本模型参数
	CostParams cost.Params

	// MaxDPRelations 动态规划搜索的基础关系数上限，超过改用贪心
	MaxDPRelations int

	// Parallel 并行路径合成参数
	Parallel parallelpath.Config

	// StatsTTL 统计信息缓存时长，0 表示不缓存
	StatsTTL time.Duration

	// DefaultTableRows 无统计信息时的表行数兜底值
	DefaultTableRows float64

	// Trace 打印路径搜索过程
	Trace bool
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		CostParams:       cost.DefaultParams(),
		MaxDPRelations:   12,
		Parallel:         parallelpath.DefaultConfig(),
		StatsTTL:         5 * time.Minute,
		DefaultTableRows: 1000,
	}
}
