// Package vrptree holds the final set of Validated ROA Payloads in the
// canonical order the output writers traverse: lexicographic by
// (afi, prefix-bytes, prefixlen, maxlength, asid). Insertion deduplicates
// on that same key.
package vrptree

import (
	"bytes"
	"sort"
	"sync"

	"github.com/cuemby/rpkivet/pkg/model"
)

// Tree is a sorted, deduplicated collection of Vrp entries.
type Tree struct {
	mu      sync.Mutex
	entries []model.Vrp
	total   int // pre-dedup count of every Insert call, duplicates included
}

// New returns an empty VRP tree.
func New() *Tree {
	return &Tree{}
}

// compare implements the ordering key from spec §4.5/§8.
func compare(a, b model.Vrp) int {
	if a.AFI != b.AFI {
		if a.AFI < b.AFI {
			return -1
		}
		return 1
	}
	w := a.AFI.ByteWidthExported()
	if c := bytes.Compare(a.Prefix.Bytes[:w], b.Prefix.Bytes[:w]); c != 0 {
		return c
	}
	if a.Prefix.Length != b.Prefix.Length {
		if a.Prefix.Length < b.Prefix.Length {
			return -1
		}
		return 1
	}
	if a.MaxLength != b.MaxLength {
		if a.MaxLength < b.MaxLength {
			return -1
		}
		return 1
	}
	if a.ASID != b.ASID {
		if a.ASID < b.ASID {
			return -1
		}
		return 1
	}
	return 0
}

// sameKey reports whether a and b share the (afi, prefix, maxlength,
// asid) dedup key — TAL and Expires are not part of the key, matching
// spec §8 scenario 6 (duplicate VRP across TALs collapses to one entry).
func sameKey(a, b model.Vrp) bool {
	return compare(a, b) == 0
}

// Insert adds v to the tree, keeping entries sorted. If an entry with
// the same (afi, prefix, maxlength, asid) key already exists, Insert is
// a no-op for tree contents but still counts toward Total.
func (t *Tree) Insert(v model.Vrp) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total++

	i := sort.Search(len(t.entries), func(i int) bool { return compare(t.entries[i], v) >= 0 })
	if i < len(t.entries) && sameKey(t.entries[i], v) {
		return
	}
	t.entries = append(t.entries, model.Vrp{})
	copy(t.entries[i+1:], t.entries[i:])
	t.entries[i] = v
}

// All returns the tree's entries in canonical order. The returned slice
// is a copy; callers must not mutate the tree through it.
func (t *Tree) All() []model.Vrp {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.Vrp, len(t.entries))
	copy(out, t.entries)
	return out
}

// Uniqs is the number of distinct entries currently in the tree.
func (t *Tree) Uniqs() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Total is the pre-dedup count of every Insert call made so far.
func (t *Tree) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}
