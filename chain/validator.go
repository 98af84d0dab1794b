package chain

import (
	"bytes"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// ValidateOptions tunes a validation pass.
type ValidateOptions struct {
	// At is the validation time. Zero means now.
	At time.Time

	// SkipValidityPeriod disables the notBefore/notAfter checks.
	SkipValidityPeriod bool

	// SkipKeyUsage disables the signer key-usage check.
	SkipKeyUsage bool

	// TrustedRoots, when non-empty, is the set of accepted root SHA-256
	// fingerprints (lower-case hex). The chain must then terminate in a
	// bit-identical root. Without it, the chain is accepted wherever it
	// terminates; a self-signed last certificate must verify its own
	// signature.
	TrustedRoots []string
}

// Result collects everything a validation pass determined. All checks run;
// nothing aborts on the first failure.
type Result struct {
	Valid   bool
	Ordered []*x509.Certificate
	Reasons []string
}

func (r *Result) fail(format string, args ...interface{}) {
	r.Valid = false
	r.Reasons = append(r.Reasons, fmt.Sprintf(format, args...))
}

// Validate orders certs starting at signer by issuer/subject matching, then
// checks validity periods, the signer's key usage, every link signature and,
// when pinned, the trust anchor.
func Validate(certs []*x509.Certificate, signer *x509.Certificate, opts ValidateOptions) *Result {
	result := &Result{Valid: true}
	if signer == nil {
		result.fail("no signer certificate")
		return result
	}

	at := opts.At
	if at.IsZero() {
		at = time.Now()
	}

	result.Ordered = orderChain(certs, signer)

	if !opts.SkipValidityPeriod {
		for _, cert := range result.Ordered {
			if at.Before(cert.NotBefore) {
				result.fail("certificate %q is not yet valid (notBefore %s)", cert.Subject.CommonName, cert.NotBefore.Format(time.RFC3339))
			}
			if at.After(cert.NotAfter) {
				result.fail("certificate %q has expired (notAfter %s)", cert.Subject.CommonName, cert.NotAfter.Format(time.RFC3339))
			}
		}
	}

	if !opts.SkipKeyUsage {
		if signer.KeyUsage&(x509.KeyUsageDigitalSignature|x509.KeyUsageContentCommitment) == 0 {
			result.fail("signer certificate %q has neither digitalSignature nor nonRepudiation key usage", signer.Subject.CommonName)
		}
	}

	for i, cert := range result.Ordered {
		if i+1 < len(result.Ordered) {
			if err := cert.CheckSignatureFrom(result.Ordered[i+1]); err != nil {
				result.fail("certificate %q signature does not verify against %q: %v", cert.Subject.CommonName, result.Ordered[i+1].Subject.CommonName, err)
			}
		}
	}

	last := result.Ordered[len(result.Ordered)-1]
	selfSigned := bytes.Equal(last.RawSubject, last.RawIssuer)
	if selfSigned {
		if err := last.CheckSignature(last.SignatureAlgorithm, last.RawTBSCertificate, last.Signature); err != nil {
			result.fail("self-signed root %q does not verify: %v", last.Subject.CommonName, err)
		}
	}

	if len(opts.TrustedRoots) > 0 {
		fingerprint := Fingerprint(last)
		trusted := false
		for _, root := range opts.TrustedRoots {
			if strings.EqualFold(root, fingerprint) {
				trusted = true
				break
			}
		}
		if !trusted {
			result.fail("chain terminates in %q which is not among the trusted roots", last.Subject.CommonName)
		}
	}

	return result
}

// Fingerprint returns the lower-case hex SHA-256 of the certificate DER.
func Fingerprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return hex.EncodeToString(sum[:])
}

// orderChain walks from signer, repeatedly picking the remaining certificate
// whose subject matches the current issuer. The walk stops at a self-signed
// certificate or when no successor exists.
func orderChain(certs []*x509.Certificate, signer *x509.Certificate) []*x509.Certificate {
	remaining := make([]*x509.Certificate, 0, len(certs))
	for _, cert := range certs {
		if !bytes.Equal(cert.Raw, signer.Raw) {
			remaining = append(remaining, cert)
		}
	}

	ordered := []*x509.Certificate{signer}
	current := signer
	for !bytes.Equal(current.RawSubject, current.RawIssuer) {
		var next *x509.Certificate
		idx := -1
		for i, cert := range remaining {
			if bytes.Equal(cert.RawSubject, current.RawIssuer) {
				next = cert
				idx = i
				break
			}
		}
		if next == nil {
			break
		}
		ordered = append(ordered, next)
		remaining = append(remaining[:idx], remaining[idx+1:]...)
		current = next
	}

	return ordered
}
