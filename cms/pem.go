package cms

import (
	"crypto/x509"
	"encoding/pem"
)

// ParseCertificatePEM decodes a single PEM certificate block.
func ParseCertificatePEM(pemBytes []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, &InvalidCertificateError{Reason: "no CERTIFICATE block in PEM input"}
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, &InvalidCertificateError{Reason: "certificate DER does not parse", Err: err}
	}
	return cert, nil
}

// ParseCertificatesPEM decodes every CERTIFICATE block of a PEM bundle, in
// order. An empty input yields an empty slice.
func ParseCertificatesPEM(pemBytes []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	rest := pemBytes
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, &InvalidCertificateError{Reason: "certificate DER does not parse", Err: err}
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

// EncodeCertificatePEM encodes a certificate as a PEM block.
func EncodeCertificatePEM(cert *x509.Certificate) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
}
