// Package chain builds and validates X.509 certificate chains. The builder
// walks Authority Information Access CA-Issuers URLs over HTTP to collect
// intermediates; the validator orders and checks a candidate chain without
// any network access.
package chain

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds each AIA fetch.
const DefaultTimeout = 10 * time.Second

// DefaultMaxChainLength caps the walk; together with the subject/issuer
// equality stop rule it also breaks cycles.
const DefaultMaxChainLength = 10

// aiaResponseLimit caps how much of an AIA body is read.
const aiaResponseLimit = 1 << 20

// Builder follows CA-Issuers links to reconstruct the issuing chain of a
// certificate.
type Builder struct {
	HTTPClient     *http.Client
	Timeout        time.Duration
	MaxChainLength int
	Logger         *zap.Logger
}

func (b *Builder) logger() *zap.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return zap.NewNop()
}

// Build returns the chain starting at cert, end-entity first. The walk stops
// at a self-signed certificate, a certificate without AIA, or the length
// cap. Fetch failures end the walk: the partial chain is returned together
// with the aggregated error so callers can fall back to what they have.
func (b *Builder) Build(ctx context.Context, cert *x509.Certificate) ([]*x509.Certificate, error) {
	if cert == nil {
		return nil, errors.New("chain: no certificate to build from")
	}

	maxLen := b.MaxChainLength
	if maxLen <= 0 {
		maxLen = DefaultMaxChainLength
	}

	chain := []*x509.Certificate{cert}
	var errs []error

	current := cert
	for len(chain) < maxLen {
		if bytes.Equal(current.RawSubject, current.RawIssuer) {
			break
		}

		urls := httpURLs(current.IssuingCertificateURL)
		if len(urls) == 0 {
			break
		}

		issuer, err := b.fetchIssuer(ctx, urls, current)
		if err != nil {
			errs = append(errs, err)
			b.logger().Warn("AIA fetch failed, chain stays partial",
				zap.String("subject", current.Subject.String()),
				zap.Error(err))
			break
		}

		chain = append(chain, issuer)
		current = issuer
	}

	return chain, errors.Join(errs...)
}

func (b *Builder) fetchIssuer(ctx context.Context, urls []string, current *x509.Certificate) (*x509.Certificate, error) {
	var errs []error
	for _, url := range urls {
		issuer, err := b.fetchCertificate(ctx, url)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		// The fetched certificate must actually be the issuer.
		if !bytes.Equal(issuer.RawSubject, current.RawIssuer) {
			errs = append(errs, &FetchError{URL: url, Err: fmt.Errorf("fetched subject %q does not match issuer %q", issuer.Subject, current.Issuer)})
			continue
		}
		return issuer, nil
	}
	return nil, errors.Join(errs...)
}

func (b *Builder) fetchCertificate(ctx context.Context, url string) (*x509.Certificate, error) {
	timeout := b.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	client := b.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("non success response (%d)", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, aiaResponseLimit))
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	cert, err := parseCertificateBody(body)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	return cert, nil
}

// parseCertificateBody accepts DER (application/pkix-cert,
// application/x-x509-ca-cert) and PEM bodies.
func parseCertificateBody(body []byte) (*x509.Certificate, error) {
	if cert, err := x509.ParseCertificate(body); err == nil {
		return cert, nil
	}
	block, _ := pem.Decode(body)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, errors.New("body is neither DER nor PEM certificate")
	}
	return x509.ParseCertificate(block.Bytes)
}

func httpURLs(urls []string) []string {
	var out []string
	for _, url := range urls {
		if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
			out = append(out, url)
		}
	}
	return out
}
