package authority

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/rpkivet/pkg/model"
)

// genCert builds a minimal self-signed (if signer is nil) or
// signer-issued certificate for exercising the authority tree without
// going through DER/CMS parsing — Insert only looks at model.Cert's own
// fields, not at the underlying x509.Certificate's extensions.
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

func ipv4Prefix(t *testing.T, addr []byte, length int) model.CertIP {
	t.Helper()
	a, err := model.NewIPAddr(model.AFIv4, addr, length)
	require.NoError(t, err)
	return model.NewCertIPPrefix(a)
}

func TestInsertRejectsDuplicateSKI(t *testing.T) {
	tree := NewTree()
	taX, _ := genCert(t, "TA", 1, nil, nil)
	ta := &model.Cert{X509: taX, SKI: []byte("ta-ski"), IsTA: true}
	_, err := tree.Insert(ta, "")
	require.NoError(t, err)

	dup := &model.Cert{X509: taX, SKI: []byte("ta-ski"), IsTA: true}
	_, err = tree.Insert(dup, "")
	require.ErrorIs(t, err, ErrDuplicateSKI)
}

func TestInsertDefersUnknownIssuer(t *testing.T) {
	tree := NewTree()
	childX, _ := genCert(t, "Child", 2, nil, nil)
	child := &model.Cert{X509: childX, SKI: []byte("child-ski"), AKI: []byte("missing-ski")}
	_, err := tree.Insert(child, "")
	require.ErrorIs(t, err, ErrDeferred)
	require.Equal(t, 1, tree.PendingCount())

	waiting := tree.TakePending([]byte("missing-ski"))
	require.Len(t, waiting, 1)
	require.Equal(t, 0, tree.PendingCount())
}

func TestChildCoveredByParentResourcesSucceeds(t *testing.T) {
	tree := NewTree()

	taKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	taTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1), Subject: pkix.Name{CommonName: "TA"},
		NotBefore: time.Now().Add(-time.Hour), NotAfter: time.Now().Add(time.Hour),
		IsCA: true, BasicConstraintsValid: true, KeyUsage: x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
	}
	taDER, err := x509.CreateCertificate(rand.Reader, taTmpl, taTmpl, &taKey.PublicKey, taKey)
	require.NoError(t, err)
	taX, err := x509.ParseCertificate(taDER)
	require.NoError(t, err)

	ta := &model.Cert{
		X509: taX, SKI: []byte("ta-ski"), IsTA: true,
		IPResources: []model.CertIP{ipv4Prefix(t, []byte{10, 0, 0, 0}, 8)},
		ASResources: []model.CertAS{{Kind: model.CertASID, ID: 64496}},
	}
	_, err = tree.Insert(ta, "")
	require.NoError(t, err)

	childKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	childTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2), Subject: pkix.Name{CommonName: "Child"},
		NotBefore: time.Now().Add(-time.Hour), NotAfter: time.Now().Add(time.Hour),
		IsCA: true, KeyUsage: x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
	}
	childDER, err := x509.CreateCertificate(rand.Reader, childTmpl, taX, &childKey.PublicKey, taKey)
	require.NoError(t, err)
	childX, err := x509.ParseCertificate(childDER)
	require.NoError(t, err)

	child := &model.Cert{
		X509: childX, SKI: []byte("child-ski"), AKI: []byte("ta-ski"),
		IPResources: []model.CertIP{ipv4Prefix(t, []byte{10, 0, 0, 0}, 16)},
		ASResources: []model.CertAS{{Kind: model.CertASInherit}},
	}
	idx, err := tree.Insert(child, "")
	require.NoError(t, err)
	require.Equal(t, 1, idx)

	eff := tree.EffectiveIP(idx)
	require.Len(t, eff[model.AFIv4], 1)
}

func TestChildResourcesOutOfBoundRejected(t *testing.T) {
	tree := NewTree()

	taKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	taTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1), Subject: pkix.Name{CommonName: "TA"},
		NotBefore: time.Now().Add(-time.Hour), NotAfter: time.Now().Add(time.Hour),
		IsCA: true, BasicConstraintsValid: true, KeyUsage: x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
	}
	taDER, err := x509.CreateCertificate(rand.Reader, taTmpl, taTmpl, &taKey.PublicKey, taKey)
	require.NoError(t, err)
	taX, err := x509.ParseCertificate(taDER)
	require.NoError(t, err)

	ta := &model.Cert{
		X509: taX, SKI: []byte("ta-ski"), IsTA: true,
		IPResources: []model.CertIP{ipv4Prefix(t, []byte{10, 0, 0, 0}, 8)},
	}
	_, err = tree.Insert(ta, "")
	require.NoError(t, err)

	childKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	childTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2), Subject: pkix.Name{CommonName: "Child"},
		NotBefore: time.Now().Add(-time.Hour), NotAfter: time.Now().Add(time.Hour),
		IsCA: true, KeyUsage: x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
	}
	childDER, err := x509.CreateCertificate(rand.Reader, childTmpl, taX, &childKey.PublicKey, taKey)
	require.NoError(t, err)
	childX, err := x509.ParseCertificate(childDER)
	require.NoError(t, err)

	child := &model.Cert{
		X509: childX, SKI: []byte("child-ski"), AKI: []byte("ta-ski"),
		IPResources: []model.CertIP{ipv4Prefix(t, []byte{11, 0, 0, 0}, 16)},
	}
	_, err = tree.Insert(child, "")
	require.Error(t, err)
}
