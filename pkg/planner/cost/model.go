package cost

// Cost is a (startup, total) cost pair for one candidate path.
// Startup is the cost paid before the first row can be returned;
// Total includes producing every row.
type Cost struct {
	Startup float64
	Total   float64
}

// Add returns the component-wise sum.
func (c Cost) Add(other Cost) Cost {
	return Cost{Startup: c.Startup + other.Startup, Total: c.Total + other.Total}
}

// Model is the cost arithmetic collaborator of the path search.
// The search only compares the numbers it returns; the formulas
// themselves are replaceable.
type Model interface {
	// SeqScanCost estimates a full sequential scan.
	SeqScanCost(pages int64, rows float64) Cost

	// IndexScanCost estimates an index scan returning rows*selectivity tuples.
	IndexScanCost(indexPages, heapPages int64, rows, selectivity float64) Cost

	// BitmapScanCost estimates a bitmap heap scan for the given selectivity.
	BitmapScanCost(indexPages, heapPages int64, rows, selectivity float64) Cost

	// SortCost estimates sorting rows tuples of the given width on top of input.
	SortCost(input Cost, rows float64, width int) Cost

	// MaterialCost estimates materializing the input.
	MaterialCost(input Cost, rows float64) Cost

	// NestLoopCost estimates a nested-loop join.
	NestLoopCost(outer, inner Cost, outerRows, innerRows float64) Cost

	// HashJoinCost estimates a hash join (build on inner).
	HashJoinCost(outer, inner Cost, outerRows, innerRows float64) Cost

	// MergeJoinCost estimates a merge join over pre-sorted inputs.
	MergeJoinCost(outer, inner Cost, outerRows, innerRows float64) Cost

	// AppendCost estimates concatenating the child costs.
	AppendCost(children []Cost) Cost

	// MergeAppendCost estimates an order-preserving append (binary heap merge).
	MergeAppendCost(children []Cost, totalRows float64) Cost

	// SubqueryScanCost estimates reading a materialized subquery result.
	SubqueryScanCost(sub Cost, rows float64) Cost

	// RowSourceScanCost estimates scanning an in-memory row source
	// (VALUES list, function result, CTE).
	RowSourceScanCost(rows float64) Cost

	// GatherCost estimates collecting a partial path's output from workers.
	GatherCost(sub Cost, rows float64) Cost

	// GatherMergeCost estimates an order-preserving gather.
	GatherMergeCost(sub Cost, rows float64, workers int) Cost
}
