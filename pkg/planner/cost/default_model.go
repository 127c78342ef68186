package cost

import "math"

// Params 成本参数
// 所有公式共用的单位代价，以一次顺序页读取为 1.0
type Params struct {
	SeqPageCost       float64
	RandomPageCost    float64
	CPUTupleCost      float64
	CPUIndexTupleCost float64
	CPUOperatorCost   float64
	ParallelSetupCost float64
	ParallelTupleCost float64
	// WorkMemTuples 内存排序能容纳的行数，超过则按外排代价计
	WorkMemTuples float64
}

// DefaultParams 返回默认成本参数
func DefaultParams() Params {
	return Params{
		SeqPageCost:       1.0,
		RandomPageCost:    4.0,
		CPUTupleCost:      0.01,
		CPUIndexTupleCost: 0.005,
		CPUOperatorCost:   0.0025,
		ParallelSetupCost: 1000.0,
		ParallelTupleCost: 0.1,
		WorkMemTuples:     100000,
	}
}

// DefaultModel 默认成本模型
type DefaultModel struct {
	params Params
}

// NewDefaultModel 用给定参数创建默认成本模型
func NewDefaultModel(params Params) *DefaultModel {
	return &DefaultModel{params: params}
}

// Params 返回当前成本参数
func (m *DefaultModel) Params() Params {
	return m.params
}

// SeqScanCost 顺序扫描：读全部堆页加逐行 CPU 代价
func (m *DefaultModel) SeqScanCost(pages int64, rows float64) Cost {
	if pages < 1 {
		pages = 1
	}
	return Cost{
		Startup: 0,
		Total:   float64(pages)*m.params.SeqPageCost + rows*m.params.CPUTupleCost,
	}
}

// IndexScanCost 索引扫描：随机访问索引页和命中堆页
func (m *DefaultModel) IndexScanCost(indexPages, heapPages int64, rows, selectivity float64) Cost {
	if indexPages < 1 {
		indexPages = 1
	}
	matched := rows * selectivity
	idxPages := math.Ceil(float64(indexPages) * selectivity)
	heap := math.Ceil(math.Min(float64(heapPages), matched))
	total := (idxPages+heap)*m.params.RandomPageCost +
		matched*(m.params.CPUIndexTupleCost+m.params.CPUTupleCost)
	return Cost{Startup: 0, Total: total}
}

// BitmapScanCost 位图堆扫描：先遍历索引构建位图，再按页序访问堆
func (m *DefaultModel) BitmapScanCost(indexPages, heapPages int64, rows, selectivity float64) Cost {
	if indexPages < 1 {
		indexPages = 1
	}
	matched := rows * selectivity
	buildCost := float64(indexPages)*m.params.RandomPageCost + matched*m.params.CPUIndexTupleCost
	heap := math.Ceil(float64(heapPages) * math.Min(1.0, selectivity*2))
	if heap < 1 {
		heap = 1
	}
	total := buildCost + heap*m.params.SeqPageCost + matched*m.params.CPUTupleCost
	return Cost{Startup: buildCost, Total: total}
}

// SortCost 排序：n*log2(n) 次比较，超出内存限额再乘外排惩罚
func (m *DefaultModel) SortCost(input Cost, rows float64, width int) Cost {
	if rows < 2 {
		rows = 2
	}
	cmp := 2.0 * m.params.CPUOperatorCost * rows * math.Log2(rows)
	if rows > m.params.WorkMemTuples {
		cmp *= 2
	}
	startup := input.Total + cmp
	return Cost{
		Startup: startup,
		Total:   startup + rows*m.params.CPUOperatorCost,
	}
}

// MaterialCost 物化：写一遍再读一遍
func (m *DefaultModel) MaterialCost(input Cost, rows float64) Cost {
	return Cost{
		Startup: input.Startup,
		Total:   input.Total + 2*rows*m.params.CPUOperatorCost,
	}
}

// NestLoopCost 嵌套循环：内侧按外侧行数重复执行
func (m *DefaultModel) NestLoopCost(outer, inner Cost, outerRows, innerRows float64) Cost {
	if outerRows < 1 {
		outerRows = 1
	}
	rescan := inner.Total - inner.Startup
	total := outer.Total + inner.Total + (outerRows-1)*rescan +
		outerRows*innerRows*m.params.CPUTupleCost
	return Cost{Startup: outer.Startup + inner.Startup, Total: total}
}

// HashJoinCost 哈希连接：内侧建表，外侧探测
func (m *DefaultModel) HashJoinCost(outer, inner Cost, outerRows, innerRows float64) Cost {
	build := inner.Total + innerRows*(m.params.CPUOperatorCost+m.params.CPUTupleCost)
	probe := outerRows * (m.params.CPUOperatorCost + m.params.CPUTupleCost)
	return Cost{
		Startup: build + outer.Startup,
		Total:   build + outer.Total + probe,
	}
}

// MergeJoinCost 归并连接：两侧各扫一遍（输入已有序）
func (m *DefaultModel) MergeJoinCost(outer, inner Cost, outerRows, innerRows float64) Cost {
	merge := (outerRows + innerRows) * m.params.CPUOperatorCost
	return Cost{
		Startup: outer.Startup + inner.Startup,
		Total:   outer.Total + inner.Total + merge,
	}
}

// AppendCost 顺序拼接：启动代价取首个子路径的
func (m *DefaultModel) AppendCost(children []Cost) Cost {
	var c Cost
	for i, ch := range children {
		if i == 0 {
			c.Startup = ch.Startup
		}
		c.Total += ch.Total
	}
	return c
}

// MergeAppendCost 保序拼接：所有子路径必须先就绪，合并用二叉堆
func (m *DefaultModel) MergeAppendCost(children []Cost, totalRows float64) Cost {
	var c Cost
	for _, ch := range children {
		if ch.Startup > c.Startup {
			c.Startup = ch.Startup
		}
		c.Total += ch.Total
	}
	n := float64(len(children))
	if n < 2 {
		n = 2
	}
	c.Total += totalRows * m.params.CPUOperatorCost * math.Log2(n)
	return c
}

// SubqueryScanCost 读取已物化的子查询结果
func (m *DefaultModel) SubqueryScanCost(sub Cost, rows float64) Cost {
	return Cost{
		Startup: sub.Startup,
		Total:   sub.Total + rows*m.params.CPUTupleCost,
	}
}

// RowSourceScanCost 扫描内存行源（VALUES/函数/CTE）
func (m *DefaultModel) RowSourceScanCost(rows float64) Cost {
	return Cost{Startup: 0, Total: rows * m.params.CPUTupleCost * 2}
}

// GatherCost 并行收集：固定启动开销加逐行传输开销
func (m *DefaultModel) GatherCost(sub Cost, rows float64) Cost {
	return Cost{
		Startup: sub.Startup + m.params.ParallelSetupCost,
		Total:   sub.Total + m.params.ParallelSetupCost + rows*m.params.ParallelTupleCost,
	}
}

// GatherMergeCost 保序并行收集：传输开销之上再加堆合并比较
func (m *DefaultModel) GatherMergeCost(sub Cost, rows float64, workers int) Cost {
	n := float64(workers + 1)
	if n < 2 {
		n = 2
	}
	return Cost{
		Startup: sub.Startup + m.params.ParallelSetupCost,
		Total: sub.Total + m.params.ParallelSetupCost +
			rows*(m.params.ParallelTupleCost+m.params.CPUOperatorCost*math.Log2(n)),
	}
}
