package authority

import (
	"fmt"

	"github.com/cuemby/rpkivet/pkg/model"
	"github.com/cuemby/rpkivet/pkg/rpkierrors"
)

// effectiveIPLocked resolves node idx's IP resources per family, walking
// ancestors for any family marked Inherit. Callers must already hold
// t.mu (read or write).
func (t *Tree) effectiveIPLocked(idx int) map[model.AFI][]model.IPRange {
	n := t.nodes[idx]
	return t.effectiveIPForLocked(n.cert, n.parentIdx)
}

// effectiveIPForLocked is effectiveIPLocked generalized to a certificate
// not yet (or never) admitted to the tree — used to resolve an EE
// certificate's effective resources without inserting it as an
// authority node.
func (t *Tree) effectiveIPForLocked(cert *model.Cert, parentIdx int) map[model.AFI][]model.IPRange {
	out := make(map[model.AFI][]model.IPRange)
	inherit := make(map[model.AFI]bool)
	for _, e := range cert.IPResources {
		if e.Kind == model.CertIPInherit {
			inherit[e.AFI] = true
			continue
		}
		out[e.AFI] = append(out[e.AFI], e.CanonicalRange())
	}
	for afi := range inherit {
		if parentIdx < 0 {
			continue // a TA carrying Inherit is already rejected at parse time
		}
		out[afi] = t.effectiveIPLocked(parentIdx)[afi]
	}
	return out
}

// effectiveASLocked is the AS-resource counterpart of effectiveIPLocked.
func (t *Tree) effectiveASLocked(idx int) []model.CertAS {
	n := t.nodes[idx]
	return t.effectiveASForLocked(n.cert, n.parentIdx)
}

func (t *Tree) effectiveASForLocked(cert *model.Cert, parentIdx int) []model.CertAS {
	var out []model.CertAS
	inherit := false
	for _, e := range cert.ASResources {
		if e.Kind == model.CertASInherit {
			inherit = true
			continue
		}
		out = append(out, e)
	}
	if inherit && parentIdx >= 0 {
		out = append(out, t.effectiveASLocked(parentIdx)...)
	}
	return out
}

// EffectiveIP is the public, locking form of effectiveIPLocked, used by
// ROA validation to resolve an EE certificate's effective IP resources.
func (t *Tree) EffectiveIP(idx int) map[model.AFI][]model.IPRange {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.effectiveIPLocked(idx)
}

// checkIPContainment verifies every concrete entry in entries is
// enclosed by some single entry of parentIdx's effective resources for
// the same family, and that entries don't overlap each other. Inherit
// entries trivially pass (they adopt the parent's set wholesale).
func (t *Tree) checkIPContainment(parentIdx int, entries []model.CertIP) error {
	parentEff := t.effectiveIPLocked(parentIdx)
	var concrete []model.CertIP
	for _, e := range entries {
		if e.Kind != model.CertIPInherit {
			concrete = append(concrete, e)
		}
	}
	for i, e := range concrete {
		r := e.CanonicalRange()
		for j, other := range concrete {
			if i == j {
				continue
			}
			if r.Overlaps(other.CanonicalRange()) {
				return rpkierrors.Wrap(rpkierrors.Validation, "IP resource containment", fmt.Errorf("overlapping entries within certificate for %s", e.AFI))
			}
		}
		covered := false
		for _, anc := range parentEff[e.AFI] {
			if anc.Covers(r) {
				covered = true
				break
			}
		}
		if !covered {
			return rpkierrors.Wrap(rpkierrors.Validation, "IP resource containment", fmt.Errorf("%s range not covered by issuer resources", e.AFI))
		}
	}
	return nil
}

// checkASContainment verifies every concrete AS range is covered by the
// union of parentIdx's effective AS ranges.
func (t *Tree) checkASContainment(parentIdx int, entries []model.CertAS) error {
	parentEff := t.effectiveASLocked(parentIdx)
	ancestorRanges := make([][2]uint32, 0, len(parentEff))
	for _, a := range parentEff {
		lo, hi := a.Range()
		ancestorRanges = append(ancestorRanges, [2]uint32{lo, hi})
	}
	for _, e := range entries {
		if e.Kind == model.CertASInherit {
			continue
		}
		lo, hi := e.Range()
		if !unionCovers(ancestorRanges, lo, hi) {
			return rpkierrors.Wrap(rpkierrors.Validation, "AS resource containment", fmt.Errorf("AS range %d-%d not covered by issuer resources", lo, hi))
		}
	}
	return nil
}

// unionCovers reports whether the merged ranges fully cover [lo,hi].
func unionCovers(ranges [][2]uint32, lo, hi uint32) bool {
	if len(ranges) == 0 {
		return false
	}
	sorted := append([][2]uint32(nil), ranges...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j][0] < sorted[j-1][0]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	cursor := lo
	for _, r := range sorted {
		if r[0] > cursor {
			break
		}
		if r[1] >= cursor {
			cursor = r[1] + 1
			if cursor == 0 || cursor > hi {
				return true
			}
		}
	}
	return false
}
