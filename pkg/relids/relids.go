package relids

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// 每个存储字的位数
const wordBits = 64

// ContractError 内部约定违规错误
// 出现此错误说明调用方破坏了内部不变量，整个规划过程必须立即中止
type ContractError string

func (e ContractError) Error() string {
	return string(e)
}

// RelidSet 范围表索引位图集合
// 索引从 1 开始，0 作为保留哨兵值，永远不会出现在集合中。
// nil 指针与空集合等价：所有操作都必须把两者视为同一个逻辑值。
// 约定：纯操作（Union/Intersect/Difference）返回新集合，
// 回收操作（Add/AddRange/Remove）会就地修改并返回接收者。
type RelidSet struct {
	words []uint64
}

// New 创建包含给定成员的集合
func New(members ...int) *RelidSet {
	var s *RelidSet
	for _, m := range members {
		s = s.Add(m)
	}
	if s == nil {
		s = &RelidSet{}
	}
	return s
}

// Clone 复制集合（nil 返回 nil）
func (s *RelidSet) Clone() *RelidSet {
	if s == nil {
		return nil
	}
	c := &RelidSet{words: make([]uint64, len(s.words))}
	copy(c.words, s.words)
	return c
}

// checkMember 校验成员合法性
func checkMember(x int) {
	if x < 0 {
		panic(ContractError(fmt.Sprintf("relids: negative member %d", x)))
	}
}

// Add 添加一个成员（回收操作，可能复用接收者的存储）
func (s *RelidSet) Add(x int) *RelidSet {
	checkMember(x)
	word, bit := x/wordBits, uint(x%wordBits)
	if s == nil {
		s = &RelidSet{}
	}
	for len(s.words) <= word {
		s.words = append(s.words, 0)
	}
	s.words[word] |= uint64(1) << bit
	return s
}

// AddRange 一次性添加 [lower, upper] 区间内的所有成员
// 用于继承/分区展开时批量登记子关系
func (s *RelidSet) AddRange(lower, upper int) *RelidSet {
	checkMember(lower)
	if upper < lower {
		return s
	}
	if s == nil {
		s = &RelidSet{}
	}
	uword := upper / wordBits
	for len(s.words) <= uword {
		s.words = append(s.words, 0)
	}
	for x := lower; x <= upper; {
		word, bit := x/wordBits, uint(x%wordBits)
		// 当前字内还能覆盖到的最后一个成员
		end := (word+1)*wordBits - 1
		if end > upper {
			end = upper
		}
		n := uint(end - x + 1)
		var mask uint64
		if n == wordBits {
			mask = ^uint64(0)
		} else {
			mask = ((uint64(1) << n) - 1) << bit
		}
		s.words[word] |= mask
		x = end + 1
	}
	return s
}

// Remove 删除一个成员（回收操作）
func (s *RelidSet) Remove(x int) *RelidSet {
	checkMember(x)
	if s == nil {
		return nil
	}
	word, bit := x/wordBits, uint(x%wordBits)
	if word < len(s.words) {
		s.words[word] &^= uint64(1) << bit
		s.trim()
	}
	return s
}

// trim 去掉尾部全零字，保证规范形式
// 规范形式是相等比较和哈希的前提
func (s *RelidSet) trim() {
	if s == nil {
		return
	}
	n := len(s.words)
	for n > 0 && s.words[n-1] == 0 {
		n--
	}
	s.words = s.words[:n]
}

// IsMember 判断成员是否在集合中
func (s *RelidSet) IsMember(x int) bool {
	if x < 0 || s == nil {
		return false
	}
	word, bit := x/wordBits, uint(x%wordBits)
	return word < len(s.words) && s.words[word]&(uint64(1)<<bit) != 0
}

// IsEmpty 判断是否为空集（nil 视为空集）
func (s *RelidSet) IsEmpty() bool {
	if s == nil {
		return true
	}
	for _, w := range s.words {
		if w != 0 {
			return false
		}
	}
	return true
}

// Len 返回成员个数
func (s *RelidSet) Len() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, w := range s.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// Union 并集（纯操作，结果与操作数顺序无关）
func (s *RelidSet) Union(other *RelidSet) *RelidSet {
	a, b := wordsOf(s), wordsOf(other)
	if len(a) < len(b) {
		a, b = b, a
	}
	r := &RelidSet{words: make([]uint64, len(a))}
	copy(r.words, a)
	for i, w := range b {
		r.words[i] |= w
	}
	r.trim()
	return r
}

// Intersect 交集（纯操作）
func (s *RelidSet) Intersect(other *RelidSet) *RelidSet {
	a, b := wordsOf(s), wordsOf(other)
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	r := &RelidSet{words: make([]uint64, n)}
	for i := 0; i < n; i++ {
		r.words[i] = a[i] & b[i]
	}
	r.trim()
	return r
}

// Difference 差集 s - other（纯操作）
func (s *RelidSet) Difference(other *RelidSet) *RelidSet {
	a, b := wordsOf(s), wordsOf(other)
	r := &RelidSet{words: make([]uint64, len(a))}
	copy(r.words, a)
	for i := 0; i < len(r.words) && i < len(b); i++ {
		r.words[i] &^= b[i]
	}
	r.trim()
	return r
}

// IsSubset 判断 s 是否为 other 的子集（空集是一切集合的子集）
func (s *RelidSet) IsSubset(other *RelidSet) bool {
	a, b := wordsOf(s), wordsOf(other)
	for i, w := range a {
		if i >= len(b) {
			if w != 0 {
				return false
			}
			continue
		}
		if w&^b[i] != 0 {
			return false
		}
	}
	return true
}

// Overlaps 判断两个集合是否有公共成员（空集与任何集合都不相交）
func (s *RelidSet) Overlaps(other *RelidSet) bool {
	a, b := wordsOf(s), wordsOf(other)
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i]&b[i] != 0 {
			return true
		}
	}
	return false
}

// Equals 判断两个集合是否相等（nil 与空集相等）
func (s *RelidSet) Equals(other *RelidSet) bool {
	a, b := wordsOf(s), wordsOf(other)
	if len(a) < len(b) {
		a, b = b, a
	}
	for i, w := range a {
		var o uint64
		if i < len(b) {
			o = b[i]
		}
		if w != o {
			return false
		}
	}
	return true
}

// Singleton 返回唯一成员，集合不是单元素集合时视为约定违规
func (s *RelidSet) Singleton() int {
	if s.Len() != 1 {
		panic(ContractError(fmt.Sprintf("relids: Singleton on set of %d members", s.Len())))
	}
	return s.NextMember(-1)
}

// NextMember 返回大于 after 的最小成员，无更多成员返回 -1
// 无状态游标迭代：对副本并发迭代是安全的
func (s *RelidSet) NextMember(after int) int {
	if s == nil {
		return -1
	}
	start := after + 1
	if start < 0 {
		start = 0
	}
	word := start / wordBits
	if word >= len(s.words) {
		return -1
	}
	// 先处理起始字内剩余的位
	w := s.words[word] >> uint(start%wordBits)
	if w != 0 {
		return start + bits.TrailingZeros64(w)
	}
	for i := word + 1; i < len(s.words); i++ {
		if s.words[i] != 0 {
			return i*wordBits + bits.TrailingZeros64(s.words[i])
		}
	}
	return -1
}

// Members 按升序返回所有成员
func (s *RelidSet) Members() []int {
	var out []int
	for x := s.NextMember(-1); x >= 0; x = s.NextMember(x) {
		out = append(out, x)
	}
	return out
}

// Hash 返回集合的 64 位哈希
// 先裁剪到规范形式，保证逻辑相等的集合哈希一致
func (s *RelidSet) Hash() uint64 {
	ws := wordsOf(s)
	n := len(ws)
	for n > 0 && ws[n-1] == 0 {
		n--
	}
	buf := make([]byte, n*8)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint64(buf[i*8:], ws[i])
	}
	return xxhash.Sum64(buf)
}

// String 返回形如 (1 3 7) 的可读表示
func (s *RelidSet) String() string {
	var b strings.Builder
	b.WriteByte('(')
	first := true
	for x := s.NextMember(-1); x >= 0; x = s.NextMember(x) {
		if !first {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%d", x)
		first = false
	}
	b.WriteByte(')')
	return b.String()
}

func wordsOf(s *RelidSet) []uint64 {
	if s == nil {
		return nil
	}
	return s.words
}
