// Package testpki manages a temporary PKI hierarchy for tests: an RSA root
// CA with one intermediate, leaf issuance with AIA pointers, an HTTP server
// answering CA-Issuers fetches and a mock RFC 3161 TSA issuing real tokens.
package testpki

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/digitorus/timestamp"
)

// TestPKI holds the hierarchy and the backing mock servers.
type TestPKI struct {
	T *testing.T

	RootKey          *rsa.PrivateKey
	RootCert         *x509.Certificate
	IntermediateKey  *rsa.PrivateKey
	IntermediateCert *x509.Certificate

	TSAKey  *rsa.PrivateKey
	TSACert *x509.Certificate

	Server *httptest.Server

	// TSA behavior toggles.
	FailTSA   bool
	RejectTSA bool
	TSATime   time.Time

	AIARequests int
	TSARequests int
}

// New creates the hierarchy and starts the mock server.
func New(t *testing.T) *TestPKI {
	t.Helper()

	p := &TestPKI{T: t, TSATime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}

	p.RootKey = generateKey(t)
	p.RootCert = createCertificate(t, &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "PAdES Test Root CA", Organization: []string{"PAdES Test Org"}},
		NotBefore:             time.Now().Add(-1 * time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		SubjectKeyId:          []byte{1, 2, 3, 4},
	}, nil, p.RootKey.Public(), p.RootKey)

	p.IntermediateKey = generateKey(t)
	p.IntermediateCert = createCertificate(t, &x509.Certificate{
		SerialNumber:          big.NewInt(2),
		Subject:               pkix.Name{CommonName: "PAdES Test Intermediate CA", Organization: []string{"PAdES Test Org"}},
		NotBefore:             time.Now().Add(-1 * time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLen:            0,
		SubjectKeyId:          []byte{5, 6, 7, 8},
		AuthorityKeyId:        p.RootCert.SubjectKeyId,
	}, p.RootCert, p.IntermediateKey.Public(), p.RootKey)

	p.TSAKey = generateKey(t)
	p.TSACert = createCertificate(t, &x509.Certificate{
		SerialNumber:   big.NewInt(3),
		Subject:        pkix.Name{CommonName: "PAdES Test TSA", Organization: []string{"PAdES Test Org"}},
		NotBefore:      time.Now().Add(-1 * time.Hour),
		NotAfter:       time.Now().Add(24 * time.Hour),
		KeyUsage:       x509.KeyUsageDigitalSignature,
		ExtKeyUsage:    []x509.ExtKeyUsage{x509.ExtKeyUsageTimeStamping},
		SubjectKeyId:   []byte{9, 9, 9},
		AuthorityKeyId: p.RootCert.SubjectKeyId,
	}, p.RootCert, p.TSAKey.Public(), p.RootKey)

	p.Server = httptest.NewServer(http.HandlerFunc(p.handle))
	t.Cleanup(p.Server.Close)

	return p
}

// IssueLeaf issues a signing certificate below the intermediate, with
// digitalSignature and nonRepudiation usage and an AIA pointer to the mock
// server.
func (p *TestPKI) IssueLeaf(commonName string) (*rsa.PrivateKey, *x509.Certificate) {
	p.T.Helper()

	key := generateKey(p.T)
	serial, _ := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	cert := createCertificate(p.T, &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: commonName, Organization: []string{"PAdES Test Org"}},
		NotBefore:             time.Now().Add(-1 * time.Hour),
		NotAfter:              time.Now().Add(1 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
		IssuingCertificateURL: []string{p.Server.URL + "/ca/intermediate"},
	}, p.IntermediateCert, key.Public(), p.IntermediateKey)
	return key, cert
}

// TSAURL is the endpoint of the mock time-stamp authority.
func (p *TestPKI) TSAURL() string { return p.Server.URL + "/tsa" }

// Chain returns intermediate then root, the order callers supply chains in.
func (p *TestPKI) Chain() []*x509.Certificate {
	return []*x509.Certificate{p.IntermediateCert, p.RootCert}
}

// ChainPEM returns the PEM bundle of the intermediate chain (no root).
func (p *TestPKI) ChainPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: p.IntermediateCert.Raw})
}

// CertPEM encodes a certificate for the PEM-based APIs.
func CertPEM(cert *x509.Certificate) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
}

func (p *TestPKI) handle(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/ca/intermediate":
		p.AIARequests++
		w.Header().Set("Content-Type", "application/pkix-cert")
		_, _ = w.Write(p.IntermediateCert.Raw)
	case "/ca/root":
		w.Header().Set("Content-Type", "application/pkix-cert")
		_, _ = w.Write(p.RootCert.Raw)
	case "/tsa":
		p.handleTSA(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (p *TestPKI) handleTSA(w http.ResponseWriter, r *http.Request) {
	p.TSARequests++

	if p.FailTSA {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	req, err := timestamp.ParseRequest(body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if p.RejectTSA {
		resp, err := timestamp.CreateErrorResponse(timestamp.Rejection, timestamp.SystemFailure)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/timestamp-reply")
		_, _ = w.Write(resp)
		return
	}

	ts := timestamp.Timestamp{
		HashAlgorithm:     req.HashAlgorithm,
		HashedMessage:     req.HashedMessage,
		Time:              p.TSATime,
		Accuracy:          time.Second,
		SerialNumber:      big.NewInt(1),
		AddTSACertificate: req.Certificates,
	}
	resp, err := ts.CreateResponse(p.TSACert, p.TSAKey)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/timestamp-reply")
	_, _ = w.Write(resp)
}

func generateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}
	return key
}

func createCertificate(t *testing.T, template, parent *x509.Certificate, pub crypto.PublicKey, signer crypto.Signer) *x509.Certificate {
	t.Helper()
	if parent == nil {
		parent = template
	}
	der, err := x509.CreateCertificate(rand.Reader, template, parent, pub, signer)
	if err != nil {
		t.Fatalf("failed to create certificate %q: %v", template.Subject.CommonName, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("failed to parse certificate %q: %v", template.Subject.CommonName, err)
	}
	return cert
}
