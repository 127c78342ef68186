package join

import (
	"github.com/kasuganosora/relopt/pkg/planner/query"
	"github.com/kasuganosora/relopt/pkg/relids"
)

// joinIsLegal 判断 left ∪ right 的连接是否违反外连接排序约束
// 对每个外连接：要么并集已覆盖其两侧最小集合（可以在此层或更早求值），
// 要么并集完全不碰其右手侧，要么并集整个落在右手侧内部；
// 其余情形意味着把右手侧的一部分提前连到了外面，非法
func joinIsLegal(left, right *relids.RelidSet, specialJoins []*query.SpecialJoinInfo) bool {
	union := left.Union(right)
	for _, sji := range specialJoins {
		need := sji.MinLeftHand.Union(sji.MinRightHand)
		if need.IsSubset(union) {
			continue
		}
		if !union.Overlaps(sji.MinRightHand) {
			continue
		}
		if union.IsSubset(sji.RightHand) {
			continue
		}
		return false
	}
	return true
}

// lateralLegal 判断拼出的关系集合是否满足成员的 LATERAL 依赖
// 集合里任何带 LATERAL 依赖的关系，其依赖必须已经整个落在集合内；
// 否则它被提前连到了依赖之外的关系上，非法
func lateralLegal(union *relids.RelidSet, lateral map[int]*relids.RelidSet) bool {
	if len(lateral) == 0 {
		return true
	}
	for _, relid := range union.Members() {
		refs, ok := lateral[relid]
		if ok && !refs.IsSubset(union) {
			return false
		}
	}
	return true
}
