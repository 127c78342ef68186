package container

import (
	"fmt"
	"sync"

	"github.com/kasuganosora/relopt/pkg/planner"
	"github.com/kasuganosora/relopt/pkg/planner/cost"
	"github.com/kasuganosora/relopt/pkg/planner/parallelpath"
	"github.com/kasuganosora/relopt/pkg/planner/pushdown"
	"github.com/kasuganosora/relopt/pkg/planner/statistics"
)

// 默认登记的服务名
const (
	ServiceCostModel        = "cost.model.default"
	ServiceStatsProvider    = "stats.provider"
	ServiceParallelSynth    = "parallel.synthesizer"
	ServicePushdownAnalyzer = "pushdown.analyzer"
	ServiceRelPathlistHook  = "hook.rel_pathlist"
	ServiceJoinSearchHook   = "hook.join_search"
)

// defaultContainer is the default implementation of Container.
// It uses a simple map to store services and provides thread-safe access.
type defaultContainer struct {
	mu       sync.RWMutex
	services map[string]interface{}
	cfg      planner.Config
	stats    statistics.Provider
}

// NewContainer 用给定配置和统计信息源创建容器
// 成本模型、并行合成器、下推分析器等默认服务自动登记
func NewContainer(cfg planner.Config, stats statistics.Provider) Container {
	c := &defaultContainer{
		services: make(map[string]interface{}),
		cfg:      cfg,
		stats:    stats,
	}
	c.registerDefaults()
	return c
}

// registerDefaults 登记默认服务
func (c *defaultContainer) registerDefaults() {
	model := cost.NewDefaultModel(c.cfg.CostParams)
	c.Register(ServiceCostModel, model)

	if c.stats != nil {
		c.Register(ServiceStatsProvider, c.stats)
	}

	c.Register(ServiceParallelSynth, parallelpath.NewSynthesizer(model, c.cfg.Parallel))
	c.Register(ServicePushdownAnalyzer, &pushdown.Analyzer{Trace: c.cfg.Trace})
}

// Register registers a service with the given name.
func (c *defaultContainer) Register(name string, service interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[name] = service
}

// Get retrieves a service by name.
func (c *defaultContainer) Get(name string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	service, exists := c.services[name]
	return service, exists
}

// MustGet retrieves a service by name, or panics if not found.
func (c *defaultContainer) MustGet(name string) interface{} {
	if service, exists := c.Get(name); exists {
		return service
	}
	panic(fmt.Sprintf("service '%s' not found in container", name))
}

// Has checks if a service with the given name exists.
func (c *defaultContainer) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.services[name]
	return exists
}

// Config returns the planner configuration.
func (c *defaultContainer) Config() planner.Config {
	return c.cfg
}

// StatsProvider returns the statistics source.
func (c *defaultContainer) StatsProvider() statistics.Provider {
	return c.stats
}
