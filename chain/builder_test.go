package chain

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evidensys/padessign/internal/testpki"
)

func TestBuildFollowsAIA(t *testing.T) {
	pki := testpki.New(t)
	_, leaf := pki.IssueLeaf("AIA Walk Test")

	builder := &Builder{}
	chain, err := builder.Build(context.Background(), leaf)
	require.NoError(t, err)

	// Leaf then intermediate; the intermediate carries no AIA so the walk
	// stops there.
	require.Len(t, chain, 2)
	assert.Equal(t, leaf.Raw, chain[0].Raw)
	assert.Equal(t, pki.IntermediateCert.Raw, chain[1].Raw)
	assert.Equal(t, 1, pki.AIARequests)
}

func TestBuildStopsOnSelfSigned(t *testing.T) {
	pki := testpki.New(t)

	builder := &Builder{}
	chain, err := builder.Build(context.Background(), pki.RootCert)
	require.NoError(t, err)
	require.Len(t, chain, 1)
	assert.Zero(t, pki.AIARequests)
}

func TestBuildSurvivesFetchFailure(t *testing.T) {
	pki := testpki.New(t)
	_, leaf := pki.IssueLeaf("AIA Outage Test")
	pki.Server.Close()

	builder := &Builder{Timeout: time.Second}
	chain, err := builder.Build(context.Background(), leaf)
	require.Error(t, err)
	require.Len(t, chain, 1, "the partial chain is still returned")
	assert.Equal(t, leaf.Raw, chain[0].Raw)
}

func makeCert(t *testing.T, template, parent *x509.Certificate, parentKey *rsa.PrivateKey) (*rsa.PrivateKey, *x509.Certificate) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	signer := parentKey
	if signer == nil {
		signer = key
		parent = template
	}
	der, err := x509.CreateCertificate(rand.Reader, template, parent, key.Public(), signer)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return key, cert
}

func testHierarchy(t *testing.T) (root, intermediate, leaf *x509.Certificate) {
	t.Helper()
	rootKey, rootCert := makeCert(t, &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Validator Root"},
		NotBefore:             time.Now().Add(-2 * time.Hour),
		NotAfter:              time.Now().Add(2 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}, nil, nil)

	interKey, interCert := makeCert(t, &x509.Certificate{
		SerialNumber:          big.NewInt(2),
		Subject:               pkix.Name{CommonName: "Validator Intermediate"},
		NotBefore:             time.Now().Add(-2 * time.Hour),
		NotAfter:              time.Now().Add(2 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}, rootCert, rootKey)

	_, leafCert := makeCert(t, &x509.Certificate{
		SerialNumber: big.NewInt(3),
		Subject:      pkix.Name{CommonName: "Validator Leaf"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}, interCert, interKey)

	return rootCert, interCert, leafCert
}

func TestValidateOrdersAndAccepts(t *testing.T) {
	root, intermediate, leaf := testHierarchy(t)

	// Shuffled input order must not matter.
	result := Validate([]*x509.Certificate{root, leaf, intermediate}, leaf, ValidateOptions{})
	assert.True(t, result.Valid, "reasons: %v", result.Reasons)
	require.Len(t, result.Ordered, 3)
	assert.Equal(t, leaf.Raw, result.Ordered[0].Raw)
	assert.Equal(t, intermediate.Raw, result.Ordered[1].Raw)
	assert.Equal(t, root.Raw, result.Ordered[2].Raw)
}

func TestValidateExpiredSigner(t *testing.T) {
	root, intermediate, leaf := testHierarchy(t)

	result := Validate([]*x509.Certificate{root, intermediate}, leaf, ValidateOptions{
		At: time.Now().Add(36 * time.Hour),
	})
	assert.False(t, result.Valid)
	require.NotEmpty(t, result.Reasons)
	assert.Contains(t, result.Reasons[0], "expired")

	skipped := Validate([]*x509.Certificate{root, intermediate}, leaf, ValidateOptions{
		At:                 time.Now().Add(36 * time.Hour),
		SkipValidityPeriod: true,
	})
	assert.True(t, skipped.Valid)
}

func TestValidateKeyUsage(t *testing.T) {
	rootKey, rootCert := makeCert(t, &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "KU Root"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}, nil, nil)

	_, encipherLeaf := makeCert(t, &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "KU Leaf"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment,
	}, rootCert, rootKey)

	result := Validate([]*x509.Certificate{rootCert}, encipherLeaf, ValidateOptions{})
	assert.False(t, result.Valid)
	assert.Contains(t, result.Reasons[0], "key usage")
}

func TestValidateTrustedRoots(t *testing.T) {
	root, intermediate, leaf := testHierarchy(t)
	certs := []*x509.Certificate{root, intermediate}

	pinned := Validate(certs, leaf, ValidateOptions{TrustedRoots: []string{Fingerprint(root)}})
	assert.True(t, pinned.Valid, "reasons: %v", pinned.Reasons)

	otherRoot, _, _ := testHierarchy(t)
	mismatch := Validate(certs, leaf, ValidateOptions{TrustedRoots: []string{Fingerprint(otherRoot)}})
	assert.False(t, mismatch.Valid)
}

func TestValidateBrokenLink(t *testing.T) {
	root, _, leaf := testHierarchy(t)

	// Without the intermediate the chain ends at the leaf, which is not
	// self-signed and cannot reach the pinned root.
	result := Validate([]*x509.Certificate{root}, leaf, ValidateOptions{TrustedRoots: []string{Fingerprint(root)}})
	assert.False(t, result.Valid)
}
