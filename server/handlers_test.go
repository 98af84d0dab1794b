package server

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evidensys/padessign"
	"github.com/evidensys/padessign/config"
	"github.com/evidensys/padessign/demo"
	"github.com/evidensys/padessign/internal/testpki"
)

func postJSON(t *testing.T, handler http.Handler, path string, body interface{}, out interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec
}

func TestWorkflowOverHTTP(t *testing.T) {
	pki := testpki.New(t)
	key, leaf := pki.IssueLeaf("HTTP Test Signer")

	cfg := config.Default()
	cfg.Info.SignerName = "HTTP Test Signer"
	workflow := padessign.New(cfg, nil)
	srv := New(workflow, nil)
	handler := srv.Handler()

	input := demo.Generate(demo.Options{Title: "HTTP round trip"})

	var prep prepareResponse
	rec := postJSON(t, handler, "/pdf/prepare", prepareRequest{
		PDFBase64: base64.StdEncoding.EncodeToString(input),
	}, &prep)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 0, prep.ByteRange[0])

	digest, err := base64.StdEncoding.DecodeString(prep.MessageDigestB64)
	require.NoError(t, err)
	require.Len(t, digest, 32)

	var presign presignResponse
	rec = postJSON(t, handler, "/pdf/presign", presignRequest{
		MessageDigestB64: prep.MessageDigestB64,
		SignerCertPEM:    string(testpki.CertPEM(leaf)),
	}, &presign)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	attrs, err := base64.StdEncoding.DecodeString(presign.SignedAttrsDERB64)
	require.NoError(t, err)
	attrsDigest := sha256.Sum256(attrs)
	signature, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, attrsDigest[:])
	require.NoError(t, err)

	var fin finalizeResponse
	rec = postJSON(t, handler, "/pdf/finalize", finalizeRequest{
		PreparedPDFBase64:   prep.PreparedPDFBase64,
		SignedAttrsDERB64:   presign.SignedAttrsDERB64,
		SignatureB64:        base64.StdEncoding.EncodeToString(signature),
		SignerCertPEM:       string(testpki.CertPEM(leaf)),
		CertificateChainPEM: string(pki.ChainPEM()),
	}, &fin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, fin.Timestamped)

	signed, err := base64.StdEncoding.DecodeString(fin.SignedPDFBase64)
	require.NoError(t, err)

	var report struct {
		CryptographicallyValid bool   `json:"cryptographically_valid"`
		PAdESCompliant         bool   `json:"pades_compliant"`
		Level                  string `json:"level"`
	}
	rec = postJSON(t, handler, "/pdf/verify", verifyRequest{
		PDFBase64: base64.StdEncoding.EncodeToString(signed),
	}, &report)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, report.CryptographicallyValid)
	assert.True(t, report.PAdESCompliant)
	assert.Equal(t, "B-B", report.Level)
}

func TestPrepareRejectsBadBase64(t *testing.T) {
	workflow := padessign.New(config.Default(), nil)
	srv := New(workflow, nil)

	rec := postJSON(t, srv.Handler(), "/pdf/prepare", prepareRequest{PDFBase64: "%%%"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPrepareRejectsGarbagePDF(t *testing.T) {
	workflow := padessign.New(config.Default(), nil)
	srv := New(workflow, nil)

	rec := postJSON(t, srv.Handler(), "/pdf/prepare", prepareRequest{
		PDFBase64: base64.StdEncoding.EncodeToString([]byte("not a pdf")),
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "input_malformed", resp.Code)
}

func TestHealthz(t *testing.T) {
	workflow := padessign.New(config.Default(), nil)
	srv := New(workflow, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
