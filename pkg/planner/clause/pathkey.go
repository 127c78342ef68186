package clause

// PathKey 排序键
// 描述输出排序中的一列，列身份用等价类表示：
// 同一个等价类的任何成员都能提供这一列的序
type PathKey struct {
	Class      *EquivalenceClass
	Descending bool
	NullsFirst bool
}

// SameKey 判断两个排序键是否等价
// 类比较走存续类，方向标志必须一致
func (pk *PathKey) SameKey(other *PathKey) bool {
	if pk == nil || other == nil {
		return pk == other
	}
	return pk.Class.Canonical() == other.Class.Canonical() &&
		pk.Descending == other.Descending &&
		pk.NullsFirst == other.NullsFirst
}

// KeysComparison 排序键列表比较结果
type KeysComparison int

const (
	KeysDifferent KeysComparison = iota
	KeysEqual
	// KeysContains keys1 以 keys2 为前缀（信息量更大）
	KeysContains
	// KeysContained keys2 以 keys1 为前缀
	KeysContained
)

// CompareKeys 比较两个排序键列表
// 前缀关系决定支配剪枝中的“排序信息不少于”判断
func CompareKeys(keys1, keys2 []*PathKey) KeysComparison {
	n := len(keys1)
	if len(keys2) < n {
		n = len(keys2)
	}
	for i := 0; i < n; i++ {
		if !keys1[i].SameKey(keys2[i]) {
			return KeysDifferent
		}
	}
	switch {
	case len(keys1) == len(keys2):
		return KeysEqual
	case len(keys1) > len(keys2):
		return KeysContains
	default:
		return KeysContained
	}
}

// KeysSatisfy 判断 provided 是否满足 required 要求的排序
func KeysSatisfy(required, provided []*PathKey) bool {
	cmp := CompareKeys(provided, required)
	return cmp == KeysEqual || cmp == KeysContains
}
