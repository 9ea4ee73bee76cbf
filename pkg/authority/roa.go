package authority

import (
	"fmt"

	"github.com/cuemby/rpkivet/pkg/model"
	"github.com/cuemby/rpkivet/pkg/rpkierrors"
)

// ValidateEE checks an EE certificate (the one embedded in a ROA's or
// Ghostbuster's CMS envelope) against the authority tree: its issuer
// must be present, its signature must verify, it must not be revoked,
// and its own resources must be covered by the issuer's effective set.
// It returns the EE's effective IP resources, which the caller uses to
// check ROA prefix coverage.
func (t *Tree) ValidateEE(ee *model.Cert) (map[model.AFI][]model.IPRange, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	parentIdx, ok := t.bySKI[keyOf(ee.AKI)]
	if !ok {
		return nil, rpkierrors.Wrap(rpkierrors.Validation, "EE issuer lookup", fmt.Errorf("issuer authority not present for AKI %x", ee.AKI))
	}
	parent := t.nodes[parentIdx]

	if err := ee.X509.CheckSignatureFrom(parent.cert.X509); err != nil {
		return nil, rpkierrors.Wrap(rpkierrors.Validation, "EE signature", err)
	}
	if crl := t.crlFor(parent.cert.SKI); crl != nil && crl.Revokes(ee.X509.SerialNumber) {
		return nil, rpkierrors.Wrap(rpkierrors.Validation, "EE revoked", fmt.Errorf("serial %s present on issuer CRL", ee.X509.SerialNumber))
	}
	if err := t.checkIPContainment(parentIdx, ee.IPResources); err != nil {
		return nil, err
	}
	if err := t.checkASContainment(parentIdx, ee.ASResources); err != nil {
		return nil, err
	}
	return t.effectiveIPForLocked(ee, parentIdx), nil
}

// ValidateROA applies the ROA acceptance rule from spec §4.2: the EE
// certificate must validate, every prefix must be covered by the EE's
// effective IP resources, and every maxLength must be at least the
// prefix length. On acceptance it expands the ROA into one Vrp per
// prefix entry.
func ValidateROA(tree *Tree, roa *model.Roa) ([]model.Vrp, error) {
	eeEff, err := tree.ValidateEE(roa.EECert)
	if err != nil {
		return nil, err
	}
	vrps := make([]model.Vrp, 0, len(roa.IPs))
	for _, ip := range roa.IPs {
		if ip.MaxLength < ip.Prefix.Length {
			return nil, rpkierrors.Wrap(rpkierrors.Validation, "ROA maxLength", fmt.Errorf("maxLength %d below prefix length %d", ip.MaxLength, ip.Prefix.Length))
		}
		if ip.MaxLength > ip.AFI.BitWidthExported() {
			return nil, rpkierrors.Wrap(rpkierrors.Validation, "ROA maxLength", fmt.Errorf("maxLength %d exceeds address width", ip.MaxLength))
		}
		want := ip.Prefix.CanonicalRange()
		covered := false
		for _, anc := range eeEff[ip.AFI] {
			if anc.Covers(want) {
				covered = true
				break
			}
		}
		if !covered {
			return nil, rpkierrors.Wrap(rpkierrors.Validation, "ROA prefix containment", fmt.Errorf("%s/%d not covered by EE resources", ip.AFI, ip.Prefix.Length))
		}
		vrps = append(vrps, model.Vrp{
			AFI:       ip.AFI,
			Prefix:    ip.Prefix,
			MaxLength: ip.MaxLength,
			ASID:      roa.ASID,
			TAL:       roa.TAL,
			Expires:   roa.Expires,
		})
	}
	return vrps, nil
}
