package container

import (
	"github.com/kasuganosora/relopt/pkg/planner"
	"github.com/kasuganosora/relopt/pkg/planner/cost"
	"github.com/kasuganosora/relopt/pkg/planner/parallelpath"
	"github.com/kasuganosora/relopt/pkg/planner/statistics"
)

// Builder 使用 Container 构建规划组件
type Builder struct {
	container Container
}

// NewBuilder 创建新的构建器
func NewBuilder(container Container) *Builder {
	return &Builder{container: container}
}

// BuildPlanner 构建规划器
// 容器里登记了钩子服务时自动挂上
func (b *Builder) BuildPlanner() *planner.Planner {
	p := planner.New(b.container.Config(), b.container.StatsProvider())

	if h, ok := b.container.Get(ServiceRelPathlistHook); ok {
		if hook, ok := h.(planner.RelPathlistHook); ok {
			p.PathHook = hook
		}
	}
	if h, ok := b.container.Get(ServiceJoinSearchHook); ok {
		if hook, ok := h.(planner.JoinSearchHook); ok {
			p.JoinHook = hook
		}
	}
	return p
}

// GetCostModel 从容器获取成本模型
func (b *Builder) GetCostModel() cost.Model {
	if cm, ok := b.container.Get(ServiceCostModel); ok {
		if model, ok := cm.(cost.Model); ok {
			return model
		}
	}
	return nil
}

// GetParallelSynthesizer 从容器获取并行路径合成器
func (b *Builder) GetParallelSynthesizer() *parallelpath.Synthesizer {
	if s, ok := b.container.Get(ServiceParallelSynth); ok {
		if synth, ok := s.(*parallelpath.Synthesizer); ok {
			return synth
		}
	}
	return nil
}

// GetStatsProvider 从容器获取统计信息源
func (b *Builder) GetStatsProvider() statistics.Provider {
	if sp, ok := b.container.Get(ServiceStatsProvider); ok {
		if provider, ok := sp.(statistics.Provider); ok {
			return provider
		}
	}
	return nil
}
