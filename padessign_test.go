package padessign_test

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evidensys/padessign"
	"github.com/evidensys/padessign/cms"
	"github.com/evidensys/padessign/config"
	"github.com/evidensys/padessign/demo"
	"github.com/evidensys/padessign/internal/testpki"
	"github.com/evidensys/padessign/verify"
)

type workflowFixture struct {
	pki      *testpki.TestPKI
	workflow *padessign.Workflow
	key      *rsa.PrivateKey
	certPEM  []byte
	chainPEM []byte
	input    []byte
}

func newWorkflowFixture(t *testing.T, level string) *workflowFixture {
	t.Helper()

	pki := testpki.New(t)
	pki.TSATime = time.Now().Truncate(time.Second)
	key, leaf := pki.IssueLeaf("Dr. Test")

	cfg := config.Default()
	cfg.Info.SignerName = "Dr. Test"
	cfg.Info.Location = "Paris"
	cfg.Info.Reason = "Integration test"
	cfg.PDF.SignatureLevel = level
	cfg.TSA.URL = pki.TSAURL()

	return &workflowFixture{
		pki:      pki,
		workflow: padessign.New(cfg, nil),
		key:      key,
		certPEM:  testpki.CertPEM(leaf),
		chainPEM: pki.ChainPEM(),
		input: demo.Generate(demo.Options{
			Title:      "Integration test",
			SignerName: "Dr. Test",
			Location:   "Paris",
		}),
	}
}

// signLocally stands in for the external signer.
func (f *workflowFixture) signLocally(t *testing.T, attrs []byte) []byte {
	t.Helper()
	digest := sha256.Sum256(attrs)
	signature, err := rsa.SignPKCS1v15(rand.Reader, f.key, crypto.SHA256, digest[:])
	require.NoError(t, err)
	return signature
}

func (f *workflowFixture) signRoundTrip(t *testing.T) *padessign.FinalizeResult {
	t.Helper()

	prepared, err := f.workflow.Prepare(f.input)
	require.NoError(t, err)
	require.Len(t, prepared.MessageDigest, 32)
	require.EqualValues(t, 0, prepared.ByteRange[0])

	attrs, err := f.workflow.PreSign(prepared.MessageDigest, f.certPEM)
	require.NoError(t, err)

	result, err := f.workflow.Finalize(context.Background(), padessign.FinalizeInput{
		PreparedPDF:    prepared.Bytes,
		SignedAttrsDER: attrs,
		Signature:      f.signLocally(t, attrs),
		SignerCertPEM:  f.certPEM,
		ChainPEM:       f.chainPEM,
	})
	require.NoError(t, err)
	return result
}

func TestRoundTripBB(t *testing.T) {
	f := newWorkflowFixture(t, config.LevelBB)
	result := f.signRoundTrip(t)
	assert.False(t, result.Timestamped)
	assert.Zero(t, f.pki.TSARequests)

	report, err := f.workflow.Verify(result.SignedPDF)
	require.NoError(t, err)

	assert.True(t, report.CryptographicallyValid, "reasons: %v", report.Reasons)
	assert.True(t, report.PAdESCompliant, "checks: %+v", report.Checks)
	assert.False(t, report.Timestamped)
	assert.Equal(t, verify.LevelBB, report.Level)
	assert.Empty(t, report.Reasons)
	assert.Equal(t, "Dr. Test", report.Signature.Name)
	assert.Equal(t, "Paris", report.Signature.Location)
	require.NotNil(t, report.Document)
	assert.Equal(t, "Integration test", report.Document.Title)
	assert.Equal(t, 1, report.Document.Pages)
}

func TestRoundTripBT(t *testing.T) {
	f := newWorkflowFixture(t, config.LevelBT)
	result := f.signRoundTrip(t)

	assert.True(t, result.Timestamped)
	require.NotNil(t, result.Timestamp)
	assert.Equal(t, "1", result.Timestamp.Serial)
	assert.Equal(t, "±1s", result.Timestamp.Accuracy)
	assert.Equal(t, 1, f.pki.TSARequests)

	report, err := f.workflow.Verify(result.SignedPDF)
	require.NoError(t, err)

	assert.True(t, report.CryptographicallyValid, "reasons: %v", report.Reasons)
	assert.True(t, report.PAdESCompliant, "checks: %+v", report.Checks)
	assert.True(t, report.Timestamped)
	assert.Equal(t, verify.LevelBT, report.Level)
	require.NotNil(t, report.SignatureTime)
	assert.True(t, report.SignatureTime.Equal(f.pki.TSATime))
}

// Flipping a signed byte must be detected.
func TestTamperDetection(t *testing.T) {
	f := newWorkflowFixture(t, config.LevelBB)
	result := f.signRoundTrip(t)

	tampered := make([]byte, len(result.SignedPDF))
	copy(tampered, result.SignedPDF)
	tampered[25] ^= 0xFF

	report, err := f.workflow.Verify(tampered)
	require.NoError(t, err)
	assert.False(t, report.CryptographicallyValid)
	assert.Equal(t, verify.LevelUnknown, report.Level)
	assert.Contains(t, report.Reasons, "PDF content has been modified")
}

// A TSA outage during finalize downgrades the result to a valid B-B.
func TestTSAOutageFallsBackToBB(t *testing.T) {
	f := newWorkflowFixture(t, config.LevelBT)
	f.pki.FailTSA = true

	result := f.signRoundTrip(t)
	assert.False(t, result.Timestamped)

	report, err := f.workflow.Verify(result.SignedPDF)
	require.NoError(t, err)
	assert.True(t, report.CryptographicallyValid, "reasons: %v", report.Reasons)
	assert.Equal(t, verify.LevelBB, report.Level)
}

// A prepared-but-never-finalized document reports an unknown level.
func TestVerifyUnsignedPrepared(t *testing.T) {
	f := newWorkflowFixture(t, config.LevelBB)

	prepared, err := f.workflow.Prepare(f.input)
	require.NoError(t, err)

	report, err := f.workflow.Verify(prepared.Bytes)
	require.NoError(t, err)
	assert.False(t, report.CryptographicallyValid)
	assert.Equal(t, verify.LevelUnknown, report.Level)
	require.NotEmpty(t, report.Reasons)
	assert.Contains(t, report.Reasons[0], "No CMS signature")
}

// Finalize re-verifies the workflow contract before assembling anything.
func TestFinalizeCrossChecks(t *testing.T) {
	f := newWorkflowFixture(t, config.LevelBB)

	prepared, err := f.workflow.Prepare(f.input)
	require.NoError(t, err)
	attrs, err := f.workflow.PreSign(prepared.MessageDigest, f.certPEM)
	require.NoError(t, err)
	signature := f.signLocally(t, attrs)

	// A digest that does not match the prepared document.
	otherDigest := sha256.Sum256([]byte("a different document"))
	otherAttrs, err := f.workflow.PreSign(otherDigest[:], f.certPEM)
	require.NoError(t, err)

	_, err = f.workflow.Finalize(context.Background(), padessign.FinalizeInput{
		PreparedPDF:    prepared.Bytes,
		SignedAttrsDER: otherAttrs,
		Signature:      signature,
		SignerCertPEM:  f.certPEM,
	})
	require.Error(t, err)
	assert.Equal(t, "input_malformed", padessign.ErrorCode(err))

	// A SET that is not in canonical order violates the pre-sign contract.
	_, err = f.workflow.Finalize(context.Background(), padessign.FinalizeInput{
		PreparedPDF:    prepared.Bytes,
		SignedAttrsDER: reverseAttributeSet(t, attrs),
		Signature:      signature,
		SignerCertPEM:  f.certPEM,
	})
	require.Error(t, err)
	assert.Equal(t, "input_malformed", padessign.ErrorCode(err))
}

// reverseAttributeSet re-emits the SET with its attributes in reverse order.
func reverseAttributeSet(t *testing.T, setDER []byte) []byte {
	t.Helper()
	attrs, err := cms.ParseSignedAttributes(setDER)
	require.NoError(t, err)
	require.True(t, len(attrs) > 1)

	var content []byte
	for i := len(attrs) - 1; i >= 0; i-- {
		der, err := asn1.Marshal(attrs[i])
		require.NoError(t, err)
		content = append(content, der...)
	}
	out, err := asn1.Marshal(asn1.RawValue{
		Class:      asn1.ClassUniversal,
		Tag:        asn1.TagSet,
		IsCompound: true,
		Bytes:      content,
	})
	require.NoError(t, err)
	return out
}

func TestChainHintFromPatterns(t *testing.T) {
	hint := padessign.ChainHintFromPatterns([]string{"ASIP-SANTE", "CPS"})
	require.NotNil(t, hint)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	makeCert := func(cn string) *x509.Certificate {
		template := &x509.Certificate{
			SerialNumber: big.NewInt(1),
			Subject:      pkix.Name{CommonName: cn},
			NotBefore:    time.Now().Add(-time.Hour),
			NotAfter:     time.Now().Add(time.Hour),
		}
		der, err := x509.CreateCertificate(rand.Reader, template, template, key.Public(), key)
		require.NoError(t, err)
		cert, err := x509.ParseCertificate(der)
		require.NoError(t, err)
		return cert
	}

	assert.True(t, hint(makeCert("ASIP-SANTE CA 2024")))
	assert.True(t, hint(makeCert("CPS Professional")))
	assert.False(t, hint(makeCert("Plain Corporate CA")))
	assert.Nil(t, padessign.ChainHintFromPatterns(nil))
}
