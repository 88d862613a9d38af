package world

import "math/bits"

// Mask is a growable bitset of component ids.
type Mask []uint64

// Set sets the bit for id.
func (m *Mask) Set(id ComponentID) {
	word := int(id / 64)
	for len(*m) <= word {
		*m = append(*m, 0)
	}
	(*m)[word] |= 1 << (id % 64)
}

// Clear clears the bit for id.
func (m Mask) Clear(id ComponentID) {
	word := int(id / 64)
	if word < len(m) {
		m[word] &^= 1 << (id % 64)
	}
}

// Has reports whether the bit for id is set.
func (m Mask) Has(id ComponentID) bool {
	word := int(id / 64)
	return word < len(m) && m[word]&(1<<(id%64)) != 0
}

// ContainsAll reports whether every bit of other is set in m.
func (m Mask) ContainsAll(other Mask) bool {
	for i, w := range other {
		var mine uint64
		if i < len(m) {
			mine = m[i]
		}
		if mine&w != w {
			return false
		}
	}
	return true
}

// ContainsAny reports whether any bit of other is set in m.
func (m Mask) ContainsAny(other Mask) bool {
	n := min(len(m), len(other))
	for i := 0; i < n; i++ {
		if m[i]&other[i] != 0 {
			return true
		}
	}
	return false
}

// Count returns the number of set bits.
func (m Mask) Count() int {
	n := 0
	for _, w := range m {
		n += bits.OnesCount64(w)
	}
	return n
}

// IDs returns the set ids in ascending order.
func (m Mask) IDs() []ComponentID {
	ids := make([]ComponentID, 0, m.Count())
	for i, w := range m {
		for w != 0 {
			b := bits.TrailingZeros64(w)
			ids = append(ids, ComponentID(i*64+b))
			w &^= 1 << b
		}
	}
	return ids
}

// Clone returns an independent copy.
func (m Mask) Clone() Mask {
	return append(Mask(nil), m...)
}
