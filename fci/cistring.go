package fci

import (
	"math/bits"
)

// link records that E_pq maps a string to the string at addr with the given sign.
type link struct {
	p, q int
	addr int
	sign float64
}

// combinations yields, in ascending order, the bit strings with n set bits among norb bits.
func combinations(norb, n int) func(yield func(int, uint64) bool) {
	return func(yield func(int, uint64) bool) {
		if n > norb || n < 0 {
			return
		}
		if n == 0 {
			yield(0, 0)
			return
		}
		s := uint64(1)<<n - 1
		last := s << (norb - n)
		for i := 0; ; i++ {
			if !yield(i, s) {
				return
			}
			if s == last {
				return
			}
			// Gosper's hack.
			c := s & -s
			r := s + c
			s = (((r ^ s) >> 2) / c) | r
		}
	}
}

// stringSet holds the occupation strings of one spin together with their E_pq link tables.
type stringSet struct {
	strs  []uint64
	addr  map[uint64]int
	links [][]link
}

func newStringSet(norb, nelec int) *stringSet {
	ss := &stringSet{addr: make(map[uint64]int)}
	for i, s := range combinations(norb, nelec) {
		ss.strs = append(ss.strs, s)
		ss.addr[s] = i
	}

	ss.links = make([][]link, len(ss.strs))
	for i, s := range ss.strs {
		for q := 0; q < norb; q++ {
			if s&(1<<q) == 0 {
				continue
			}
			for p := 0; p < norb; p++ {
				if p == q {
					ss.links[i] = append(ss.links[i], link{p: p, q: q, addr: i, sign: 1})
					continue
				}
				if s&(1<<p) != 0 {
					continue
				}
				removed := s &^ (1 << q)
				t := removed | (1 << p)
				ss.links[i] = append(ss.links[i], link{p: p, q: q, addr: ss.addr[t], sign: parity(removed, p, q)})
			}
		}
	}
	return ss
}

// parity returns the sign of the occupied orbitals of s strictly between p and q.
func parity(s uint64, p, q int) float64 {
	lo, hi := p, q
	if lo > hi {
		lo, hi = hi, lo
	}
	mask := (uint64(1)<<hi - 1) &^ (uint64(1)<<(lo+1) - 1)
	if bits.OnesCount64(s&mask)%2 == 1 {
		return -1
	}
	return 1
}

func occupied(s uint64, norb int) []int {
	occ := make([]int, 0, bits.OnesCount64(s))
	for i := 0; i < norb; i++ {
		if s&(1<<i) != 0 {
			occ = append(occ, i)
		}
	}
	return occ
}
