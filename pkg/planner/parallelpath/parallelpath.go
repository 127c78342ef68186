package parallelpath

import (
	"fmt"

	"github.com/kasuganosora/relopt/pkg/planner/clause"
	"github.com/kasuganosora/relopt/pkg/planner/cost"
	"github.com/kasuganosora/relopt/pkg/planner/path"
)

// Config 并行路径合成参数
type Config struct {
	// MinHeapPages 堆扫描启用并行的最小页数
	MinHeapPages int64

	// MinIndexPages 索引扫描启用并行的最小页数
	MinIndexPages int64

	// MaxWorkersPerGather 单个 Gather 的工作进程上限
	MaxWorkersPerGather int
}

// DefaultConfig 返回默认并行参数
func DefaultConfig() Config {
	return Config{
		MinHeapPages:        1024,
		MinIndexPages:       64,
		MaxWorkersPerGather: 4,
	}
}

// Synthesizer 并行路径合成器
// 决定工作进程数并把部分路径包进 Gather/GatherMerge
type Synthesizer struct {
	Model cost.Model
	Cfg   Config
	Trace bool
}

// NewSynthesizer 创建并行路径合成器
func NewSynthesizer(model cost.Model, cfg Config) *Synthesizer {
	return &Synthesizer{Model: model, Cfg: cfg}
}

// WorkerCount 计算一次扫描该用的工作进程数
// 低于启用阈值返回 0；达到阈值起步 2 个，此后页数每翻三倍加一个；
// 堆和索引各算各的再取小。indexPages 为 -1 表示无索引访问。
// override 非负时绕过启发式（仍受上限约束），-1 表示不覆盖
func (s *Synthesizer) WorkerCount(heapPages, indexPages int64, override int) int {
	if override >= 0 {
		return s.cap(override)
	}

	heap := stepWorkers(heapPages, s.Cfg.MinHeapPages)
	if indexPages < 0 {
		return s.cap(heap)
	}
	idx := stepWorkers(indexPages, s.Cfg.MinIndexPages)
	if idx < heap {
		heap = idx
	}
	return s.cap(heap)
}

func (s *Synthesizer) cap(w int) int {
	if s.Cfg.MaxWorkersPerGather > 0 && w > s.Cfg.MaxWorkersPerGather {
		return s.Cfg.MaxWorkersPerGather
	}
	return w
}

// stepWorkers 对数步进
// 跨过阈值给 2 个，之后阈值每乘 3 再加一个
func stepWorkers(pages, threshold int64) int {
	if threshold <= 0 || pages < threshold {
		return 0
	}
	w := 2
	for t := threshold * 3; pages >= t; t *= 3 {
		w++
	}
	return w
}

// GenerateGatherPaths 为一个关系合成收集路径
// 没有部分路径时不做事；最优部分路径包一条无序 Gather，
// 每种带排序的部分路径各包一条保序 GatherMerge
func (s *Synthesizer) GenerateGatherPaths(rel *path.RelationDescriptor) {
	if len(rel.PartialPathList) == 0 {
		return
	}

	var cheapest *path.AccessPath
	for _, p := range rel.PartialPathList {
		if cheapest == nil || p.TotalCost < cheapest.TotalCost {
			cheapest = p
		}
	}

	rows := rel.Rows
	c := s.Model.GatherCost(cheapest.Cost(), rows)
	rel.AddPath(&path.AccessPath{
		Kind:            path.Gather,
		Rows:            rows,
		StartupCost:     c.Startup,
		TotalCost:       c.Total,
		Subpath:         cheapest,
		ParallelWorkers: cheapest.ParallelWorkers,
	})
	if s.Trace {
		fmt.Printf("  [PATH SEARCH] gather over %s: %d workers\n", rel.Relids, cheapest.ParallelWorkers)
	}

	var seen [][]*clause.PathKey
	for _, p := range rel.PartialPathList {
		if len(p.PathKeys) == 0 {
			continue
		}
		dup := false
		for _, keys := range seen {
			if clause.CompareKeys(keys, p.PathKeys) == clause.KeysEqual {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		seen = append(seen, p.PathKeys)

		gc := s.Model.GatherMergeCost(p.Cost(), rows, p.ParallelWorkers)
		rel.AddPath(&path.AccessPath{
			Kind:            path.GatherMerge,
			Rows:            rows,
			StartupCost:     gc.Startup,
			TotalCost:       gc.Total,
			PathKeys:        p.PathKeys,
			Subpath:         p,
			ParallelWorkers: p.ParallelWorkers,
		})
	}
}
