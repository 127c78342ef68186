package join

import (
	"fmt"

	"github.com/kasuganosora/relopt/pkg/planner/path"
)

// greedySearch 贪心最近邻搜索（超过 DP 上限时的回退方案）
// 每轮选估算输出行数最小的合法配对合并，直到只剩一个描述符。
// 同样产出一个合法的、代价有竞争力的顺序，且对相同输入确定
func (s *Search) greedySearch(initial []*path.RelationDescriptor) (*path.RelationDescriptor, error) {
	work := make([]*path.RelationDescriptor, len(initial))
	copy(work, initial)

	for len(work) > 1 {
		bi, bj := s.pickGreedyPair(work, false)
		if bi < 0 {
			// 没有相连配对，退化到任意合法配对
			bi, bj = s.pickGreedyPair(work, true)
		}
		if bi < 0 {
			return nil, &ErrNoJoinOrder{Level: len(initial) - len(work) + 2}
		}

		a, b := work[bi], work[bj]
		union := a.Relids.Union(b.Relids)
		joinrel, _ := s.lookupJoinRel(union)
		joinrel.Width = a.Width + b.Width

		if a.IsDummy() || b.IsDummy() {
			joinrel.SetDummy()
		} else {
			jclauses := s.joinClausesFor(a, b)
			joinrel.Rows = s.estimateJoinRows(a, b, jclauses)
			s.makeJoinPaths(joinrel, a, b, jclauses)
			s.makeJoinPaths(joinrel, b, a, jclauses)
			if s.PostProcess != nil {
				s.PostProcess(joinrel)
			}
			joinrel.SetCheapest()
		}

		if s.Trace {
			fmt.Printf("  [PATH SEARCH] greedy merged %s + %s -> %s (rows=%.0f)\n",
				a.Relids, b.Relids, joinrel.Relids, joinrel.Rows)
		}

		// 用合并结果替换 a，去掉 b
		work[bi] = joinrel
		work = append(work[:bj], work[bj+1:]...)
	}
	return work[0], nil
}

// pickGreedyPair 在工作集中选估算行数最小的合法配对
// 平局取下标序更小的配对，保证确定性
func (s *Search) pickGreedyPair(work []*path.RelationDescriptor, allowCartesian bool) (int, int) {
	bi, bj := -1, -1
	bestRows := 0.0
	for i := 0; i < len(work); i++ {
		for j := i + 1; j < len(work); j++ {
			a, b := work[i], work[j]
			if a.Relids.Overlaps(b.Relids) {
				continue
			}
			if !allowCartesian && !s.haveJoinClause(a, b) {
				continue
			}
			if !joinIsLegal(a.Relids, b.Relids, s.SpecialJoins) {
				continue
			}
			if !lateralLegal(a.Relids.Union(b.Relids), s.Lateral) {
				continue
			}
			rows := s.estimateJoinRows(a, b, s.joinClausesFor(a, b))
			if bi < 0 || rows < bestRows {
				bi, bj, bestRows = i, j, rows
			}
		}
	}
	return bi, bj
}
