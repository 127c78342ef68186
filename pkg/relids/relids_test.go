package relids

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	s := New(1, 3, 7)

	assert.True(t, s.IsMember(1))
	assert.True(t, s.IsMember(3))
	assert.True(t, s.IsMember(7))
	assert.False(t, s.IsMember(2))
	assert.Equal(t, 3, s.Len())
}

func TestAdd_IsMember(t *testing.T) {
	var s *RelidSet
	s = s.Add(5)
	assert.True(t, s.IsMember(5))

	// 跨字边界的成员
	s = s.Add(130)
	assert.True(t, s.IsMember(130))
	assert.Equal(t, 2, s.Len())
}

func TestAdd_NegativePanics(t *testing.T) {
	assert.Panics(t, func() {
		New().Add(-1)
	})
}

func TestRemove(t *testing.T) {
	s := New(1, 2, 3)
	s = s.Remove(2)

	assert.False(t, s.IsMember(2))
	assert.True(t, s.IsMember(1))
	assert.True(t, s.IsMember(3))

	// 删除不存在的成员是空操作
	s = s.Remove(99)
	assert.Equal(t, 2, s.Len())
}

func TestRemove_TrimsTrailingWords(t *testing.T) {
	s := New(1, 200)
	s = s.Remove(200)

	// 删除高位成员后必须裁剪，保证与从未加入过该成员的集合相等
	assert.True(t, s.Equals(New(1)))
	assert.Equal(t, New(1).Hash(), s.Hash())
}

func TestAddRange(t *testing.T) {
	s := New().AddRange(3, 70)

	assert.Equal(t, 68, s.Len())
	assert.False(t, s.IsMember(2))
	assert.True(t, s.IsMember(3))
	assert.True(t, s.IsMember(64))
	assert.True(t, s.IsMember(70))
	assert.False(t, s.IsMember(71))

	// 倒置区间是空操作
	s2 := New(1).AddRange(10, 5)
	assert.Equal(t, 1, s2.Len())
}

func TestUnion_Commutative(t *testing.T) {
	a := New(1, 2, 100)
	b := New(2, 3)

	ab := a.Union(b)
	ba := b.Union(a)

	assert.True(t, ab.Equals(ba))
	assert.Equal(t, []int{1, 2, 3, 100}, ab.Members())
}

func TestUnion_SubsetLaw(t *testing.T) {
	a := New(1, 5)
	b := New(9, 70)

	u := a.Union(b)
	assert.True(t, a.IsSubset(u))
	assert.True(t, b.IsSubset(u))
}

func TestIntersect(t *testing.T) {
	a := New(1, 2, 3, 65)
	b := New(2, 65, 99)

	i := a.Intersect(b)
	assert.Equal(t, []int{2, 65}, i.Members())
	assert.True(t, i.Equals(b.Intersect(a)))
}

func TestDifference(t *testing.T) {
	a := New(1, 2, 3)
	b := New(2, 200)

	d := a.Difference(b)
	assert.Equal(t, []int{1, 3}, d.Members())
}

func TestEquals_NilAndEmpty(t *testing.T) {
	var nilSet *RelidSet
	empty := New()

	assert.True(t, nilSet.Equals(empty))
	assert.True(t, empty.Equals(nilSet))
	assert.True(t, nilSet.Equals(nilSet))

	s := New(4)
	assert.True(t, s.Equals(s))
	assert.False(t, s.Equals(nilSet))
}

func TestEmptySet_SubsetAndOverlap(t *testing.T) {
	var nilSet *RelidSet
	empty := New()
	s := New(1, 2)

	// 空集是一切集合的子集，且与任何集合都不相交
	assert.True(t, nilSet.IsSubset(s))
	assert.True(t, empty.IsSubset(s))
	assert.True(t, nilSet.IsSubset(empty))
	assert.False(t, nilSet.Overlaps(s))
	assert.False(t, s.Overlaps(empty))
}

func TestOverlaps(t *testing.T) {
	assert.True(t, New(1, 2).Overlaps(New(2, 3)))
	assert.False(t, New(1, 2).Overlaps(New(3, 4)))
}

func TestSingleton(t *testing.T) {
	assert.Equal(t, 42, New(42).Singleton())

	assert.Panics(t, func() { New(1, 2).Singleton() })
	assert.Panics(t, func() { New().Singleton() })
}

func TestNextMember_Iteration(t *testing.T) {
	s := New(0, 1, 63, 64, 130)

	var got []int
	for x := s.NextMember(-1); x >= 0; x = s.NextMember(x) {
		got = append(got, x)
	}
	assert.Equal(t, []int{0, 1, 63, 64, 130}, got)

	var nilSet *RelidSet
	assert.Equal(t, -1, nilSet.NextMember(-1))
}

func TestHash_CanonicalForm(t *testing.T) {
	// 经过不同操作路径得到的逻辑相等集合必须哈希一致
	a := New(1, 2)
	b := New(1, 2, 300).Remove(300)
	c := New(1).Union(New(2))

	require.True(t, a.Equals(b))
	require.True(t, a.Equals(c))
	assert.Equal(t, a.Hash(), b.Hash())
	assert.Equal(t, a.Hash(), c.Hash())

	var nilSet *RelidSet
	assert.Equal(t, New().Hash(), nilSet.Hash())
}

func TestClone_Independent(t *testing.T) {
	a := New(1, 2)
	b := a.Clone()
	b.Add(3)

	assert.False(t, a.IsMember(3))
	assert.True(t, b.IsMember(3))

	var nilSet *RelidSet
	assert.Nil(t, nilSet.Clone())
}

func TestString(t *testing.T) {
	assert.Equal(t, "(1 3 7)", New(1, 3, 7).String())
	assert.Equal(t, "()", New().String())
}
