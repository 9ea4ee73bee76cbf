// Package authority implements the in-memory delegation graph the spec
// calls the authority tree: certificates keyed by SKI, linked to their
// issuing parent, with resource containment and revocation checked on
// insertion. It also holds the CRL tree (keyed by issuer SKI/AKI) and the
// pending-by-AKI multimap used to tolerate out-of-order arrival across
// repositories.
package authority

import (
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/cuemby/rpkivet/pkg/model"
	"github.com/cuemby/rpkivet/pkg/rpkierrors"
)

// node is one arena slot. Index into Tree.nodes is the stable handle
// other code holds onto; the parent relationship is an index, never a
// pointer, per the spec's arena design note.
type node struct {
	cert      *model.Cert
	parentIdx int // -1 for a trust anchor (synthetic self-parent)
	debugPath string
}

// Tree is the authority tree: an arena of validated certificates plus
// the auxiliary indices (by SKI, by pending AKI, and the CRL tree) the
// manager needs to drive the manifest walk.
type Tree struct {
	mu      sync.RWMutex
	nodes   []node
	bySKI   map[string]int
	pending map[string][]*model.Cert // keyed by the AKI a cert is waiting on
	crls    map[string]*model.Crl    // keyed by issuer SKI (== CRL's AKI)
}

// NewTree returns an empty authority tree.
func NewTree() *Tree {
	return &Tree{
		bySKI:   make(map[string]int),
		pending: make(map[string][]*model.Cert),
		crls:    make(map[string]*model.Crl),
	}
}

func keyOf(b []byte) string { return hex.EncodeToString(b) }

// ErrDuplicateSKI is returned by Insert when a certificate's SKI already
// exists in the tree.
var ErrDuplicateSKI = fmt.Errorf("authority: duplicate SKI")

// ErrDeferred is returned by Insert when the certificate's issuer is not
// yet present; the caller should hold onto the certificate (Insert has
// already recorded it in the pending-by-AKI multimap) and retry once
// FlushPending reports the issuer has arrived.
var ErrDeferred = fmt.Errorf("authority: deferred, issuer not yet present")

// InsertCRL records crl, indexed by its AKI (the issuing CA's SKI).
func (t *Tree) InsertCRL(crl *model.Crl) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.crls[keyOf(crl.AKI)] = crl
}

// crlFor returns the CRL issued by the CA with the given SKI, if any.
func (t *Tree) crlFor(issuerSKI []byte) *model.Crl {
	return t.crls[keyOf(issuerSKI)]
}

// Insert applies the insertion discipline from spec §4.2 to cert and,
// on success, admits it to the tree. debugPath is carried only for log
// messages (the original implementation's "fn" field, treated as
// diagnostic-only per its own FIXME).
func (t *Tree) Insert(cert *model.Cert, debugPath string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	skiKey := keyOf(cert.SKI)
	if _, exists := t.bySKI[skiKey]; exists {
		return -1, rpkierrors.Wrap(rpkierrors.Validation, "authority insert", ErrDuplicateSKI)
	}

	parentIdx := -1
	if !cert.IsTA {
		idx, ok := t.bySKI[keyOf(cert.AKI)]
		if !ok {
			t.pending[keyOf(cert.AKI)] = append(t.pending[keyOf(cert.AKI)], cert)
			return -1, ErrDeferred
		}
		parentIdx = idx

		parent := t.nodes[parentIdx]
		if err := cert.X509.CheckSignatureFrom(parent.cert.X509); err != nil {
			return -1, rpkierrors.Wrap(rpkierrors.Validation, "certificate signature", err)
		}
		if crl := t.crlFor(parent.cert.SKI); crl != nil && crl.Revokes(cert.X509.SerialNumber) {
			return -1, rpkierrors.Wrap(rpkierrors.Validation, "certificate revoked", fmt.Errorf("serial %s present on issuer CRL", cert.X509.SerialNumber))
		}

		if err := t.checkIPContainment(parentIdx, cert.IPResources); err != nil {
			return -1, err
		}
		if err := t.checkASContainment(parentIdx, cert.ASResources); err != nil {
			return -1, err
		}
	}

	idx := len(t.nodes)
	t.nodes = append(t.nodes, node{cert: cert, parentIdx: parentIdx, debugPath: debugPath})
	t.bySKI[skiKey] = idx
	return idx, nil
}

// FlushPending returns and clears the certificates that were waiting on
// the authority identified by ski, so the caller can retry inserting
// them now that the issuer is present.
func (t *Tree) FlushPending(ski []byte) []*model.Cert {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := keyOf(ski)
	waiting := t.pending[key]
	delete(t.pending, key)
	return waiting
}

// PendingCount reports how many certificates are currently deferred,
// across all issuers.
func (t *Tree) PendingCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, v := range t.pending {
		n += len(v)
	}
	return n
}

// TakePending drops and returns every certificate still waiting on ski.
// It behaves exactly like FlushPending.
func (t *Tree) TakePending(ski []byte) []*model.Cert {
	return t.FlushPending(ski)
}

// DrainAllPending drops and returns every certificate still waiting on
// any issuer, regardless of which AKI it's parked under. The manager
// calls this once the work queue has fully drained: a certificate still
// pending at that point can never resolve (its issuer's repository
// finished without the issuer ever appearing) and is rejected.
func (t *Tree) DrainAllPending() []*model.Cert {
	t.mu.Lock()
	defer t.mu.Unlock()
	var all []*model.Cert
	for key, waiting := range t.pending {
		all = append(all, waiting...)
		delete(t.pending, key)
	}
	return all
}

// Lookup returns the certificate stored under ski, if present.
func (t *Tree) Lookup(ski []byte) (*model.Cert, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	idx, ok := t.bySKI[keyOf(ski)]
	if !ok {
		return nil, false
	}
	return t.nodes[idx].cert, true
}

// Len reports the number of admitted authority nodes.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}
