package manager

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/rpkivet/pkg/model"
	"github.com/cuemby/rpkivet/pkg/repository"
	"github.com/cuemby/rpkivet/pkg/rpkierrors"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := New(Config{CacheRoot: t.TempDir(), ParserWorkers: 1})
	t.Cleanup(m.Close)
	return m
}

// genCert builds a minimal self-signed (if signerCert is nil) or
// signer-issued certificate, mirroring the authority package's own test
// helper — used here to exercise handleManifest's EE validation without
// going through DER/CMS parsing.
func genCert(t *testing.T, cn string, serial int64, signerKey *rsa.PrivateKey, signerCert *x509.Certificate) (*x509.Certificate, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		IsCA:         true,
		// Without a basic-constraints extension, CheckSignatureFrom
		// refuses to treat the certificate as an issuer.
		BasicConstraintsValid: true,
		KeyUsage:     x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
	}
	parent := tmpl
	signKey := key
	if signerCert != nil {
		parent = signerCert
		signKey = signerKey
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, parent, &key.PublicKey, signKey)
	require.NoError(t, err)
	xc, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return xc, key
}

// insertTestTA admits a self-signed TA into m.Tree and returns its cert
// and key so tests can mint EE certificates that chain to it.
func insertTestTA(t *testing.T, m *Manager, ski string) (*x509.Certificate, *rsa.PrivateKey) {
	t.Helper()
	taX, taKey := genCert(t, "TA", 1, nil, nil)
	ta := &model.Cert{X509: taX, SKI: []byte(ski), IsTA: true}
	_, err := m.Tree.Insert(ta, "")
	require.NoError(t, err)
	return taX, taKey
}

func TestCachePathForURI(t *testing.T) {
	m := newTestManager(t)
	got := m.cachePathForURI("rsync://repo.example/module/sub")
	require.Equal(t, filepath.Join(m.cfg.CacheRoot, "repo.example", "module", "sub"), got)
}

func TestCountCertOutcomeClassifiesByCategory(t *testing.T) {
	m := newTestManager(t)

	m.countCertOutcome(rpkierrors.Wrap(rpkierrors.Validation, "sig", assertErr))
	require.Equal(t, 1, m.stats.CertsInvalid)
	require.Equal(t, 0, m.stats.CertsFail)

	m.countCertOutcome(rpkierrors.Wrap(rpkierrors.Parse, "der", assertErr))
	require.Equal(t, 1, m.stats.CertsFail)
}

func TestHandleManifestEnqueuesValidEntriesAndSkipsMismatches(t *testing.T) {
	m := newTestManager(t)
	dir := t.TempDir()

	taX, taKey := insertTestTA(t, m, "ta-ski")
	eeX, _ := genCert(t, "EE", 2, taKey, taX)

	goodBody := []byte("roa body")
	goodSum := sha256.Sum256(goodBody)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.roa"), goodBody, 0o644))

	badBody := []byte("tampered")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.roa"), badBody, 0o644))
	var wrongSum [32]byte // doesn't match bad.roa's actual content

	entity := repository.Entity{
		Kind:      repository.EntityManifest,
		LocalPath: filepath.Join(dir, "manifest.mft"),
		RepoURI:   "rsync://repo.example/module",
		TAL:       "example",
	}
	mft := &model.Mft{
		EECert: &model.Cert{X509: eeX, SKI: eeX.SubjectKeyId, AKI: []byte("ta-ski")},
		Files: []model.MftFile{
			{Name: "good.roa", SHA256: goodSum},
			{Name: "bad.roa", SHA256: wrongSum},
			{Name: "missing.roa", SHA256: goodSum},
		},
	}

	m.handleManifest(entity, mft)
	require.Equal(t, 1, m.stats.Mfts)

	var enqueued []repository.Entity
	for {
		e, ok := m.registry.Dequeue()
		if !ok {
			break
		}
		enqueued = append(enqueued, e)
	}
	require.Len(t, enqueued, 1, "only good.roa should survive the hash check")
	require.Equal(t, filepath.Join(dir, "good.roa"), enqueued[0].LocalPath)
	require.Equal(t, repository.EntityROA, enqueued[0].Kind)
}

func TestHandleManifestMarksStaleAndSkipsChildren(t *testing.T) {
	m := newTestManager(t)
	dir := t.TempDir()

	body := []byte("roa body")
	sum := sha256.Sum256(body)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.roa"), body, 0o644))

	m.handleManifest(repository.Entity{LocalPath: filepath.Join(dir, "m.mft")}, &model.Mft{
		Stale: true,
		Files: []model.MftFile{{Name: "keep.roa", SHA256: sum}},
	})
	require.Equal(t, 1, m.stats.MftsStale)
	require.Equal(t, 0, m.stats.Mfts)

	_, ok := m.registry.Dequeue()
	require.False(t, ok, "a stale manifest's entries must not be enqueued")
}

func TestHandleManifestRejectsUnchainedEE(t *testing.T) {
	m := newTestManager(t)
	dir := t.TempDir()

	// EE signed by a CA that was never admitted to the authority tree.
	rogueX, rogueKey := genCert(t, "Rogue", 1, nil, nil)
	eeX, _ := genCert(t, "EE", 2, rogueKey, rogueX)

	body := []byte("roa body")
	sum := sha256.Sum256(body)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.roa"), body, 0o644))

	mft := &model.Mft{
		EECert: &model.Cert{X509: eeX, SKI: eeX.SubjectKeyId, AKI: []byte("unknown-ski")},
		Files:  []model.MftFile{{Name: "keep.roa", SHA256: sum}},
	}

	m.handleManifest(repository.Entity{LocalPath: filepath.Join(dir, "m.mft")}, mft)
	require.Equal(t, 0, m.stats.Mfts)
	require.Equal(t, 1, m.stats.MftsFail)

	_, ok := m.registry.Dequeue()
	require.False(t, ok, "a manifest whose EE doesn't chain to an admitted authority must not enqueue children")
}

var assertErr = os.ErrInvalid
