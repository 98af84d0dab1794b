// Package cms implements the RFC 5652 SignedData subset used for PAdES
// detached signatures: building the canonical signed-attribute SET handed to
// an external signer, assembling the final ContentInfo around the returned
// signature, and parsing containers back for verification.
package cms

import (
	"bytes"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"
	"math/big"
)

// ContentInfo ::= SEQUENCE {
//   contentType ContentType,
//   content [0] EXPLICIT ANY DEFINED BY contentType }
type ContentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,tag:0"`
}

// EncapsulatedContentInfo ::= SEQUENCE {
//   eContentType ContentType,
//   eContent [0] EXPLICIT OCTET STRING OPTIONAL }
type EncapsulatedContentInfo struct {
	EContentType asn1.ObjectIdentifier
	EContent     asn1.RawValue `asn1:"optional,explicit,tag:0"`
}

// IssuerAndSerialNumber ::= SEQUENCE {
//   issuer Name,
//   serialNumber CertificateSerialNumber }
type IssuerAndSerialNumber struct {
	Issuer       asn1.RawValue
	SerialNumber *big.Int
}

// Attribute ::= SEQUENCE {
//   attrType OBJECT IDENTIFIER,
//   attrValues SET OF AttributeValue }
//
// RawValues holds the complete SET OF block, kept opaque so it is re-emitted
// verbatim.
type Attribute struct {
	Type      asn1.ObjectIdentifier
	RawValues asn1.RawValue
}

// SingleValue returns the one value of the attribute's SET, which is the only
// shape PAdES baseline attributes have.
func (a Attribute) SingleValue() (asn1.RawValue, error) {
	var rv asn1.RawValue
	rest, err := asn1.Unmarshal(a.RawValues.Bytes, &rv)
	if err != nil {
		return rv, fmt.Errorf("attribute %v value: %w", a.Type, err)
	}
	if len(rest) > 0 {
		return rv, fmt.Errorf("attribute %v has more than one value", a.Type)
	}
	return rv, nil
}

// SignerInfo ::= SEQUENCE {
//   version CMSVersion,
//   sid SignerIdentifier,
//   digestAlgorithm DigestAlgorithmIdentifier,
//   signedAttrs [0] IMPLICIT SignedAttributes OPTIONAL,
//   signatureAlgorithm SignatureAlgorithmIdentifier,
//   signature SignatureValue,
//   unsignedAttrs [1] IMPLICIT UnsignedAttributes OPTIONAL }
//
// RawSignedAttrs keeps the [0] block opaque so the bytes that were signed can
// be reproduced exactly; see SignedAttrsForVerification.
type SignerInfo struct {
	Version            int
	SID                asn1.RawValue
	DigestAlgorithm    pkix.AlgorithmIdentifier
	RawSignedAttrs     asn1.RawValue `asn1:"optional,tag:0"`
	SignatureAlgorithm pkix.AlgorithmIdentifier
	Signature          []byte
	RawUnsignedAttrs   asn1.RawValue `asn1:"optional,tag:1"`
}

// SignedData ::= SEQUENCE {
//   version CMSVersion,
//   digestAlgorithms DigestAlgorithmIdentifiers,
//   encapContentInfo EncapsulatedContentInfo,
//   certificates [0] IMPLICIT CertificateSet OPTIONAL,
//   crls [1] IMPLICIT RevocationInfoChoices OPTIONAL,
//   signerInfos SignerInfos }
type SignedData struct {
	Version          int
	DigestAlgorithms []pkix.AlgorithmIdentifier `asn1:"set"`
	EncapContentInfo EncapsulatedContentInfo
	Certificates     []asn1.RawValue `asn1:"optional,set,tag:0"`
	CRLs             []asn1.RawValue `asn1:"optional,set,tag:1"`
	SignerInfos      []SignerInfo    `asn1:"set"`
}

// ErrNotSignedData is returned when a ContentInfo does not wrap a SignedData.
var ErrNotSignedData = errors.New("cms: content type is not signed-data")

// ParseContentInfo parses a top-level DER ContentInfo.
func ParseContentInfo(der []byte) (ContentInfo, error) {
	var ci ContentInfo
	rest, err := asn1.Unmarshal(der, &ci)
	if err != nil {
		return ci, &ParseError{Reason: "invalid ContentInfo", Err: err}
	}
	if len(rest) > 0 {
		return ci, &ParseError{Reason: "trailing data after ContentInfo"}
	}
	return ci, nil
}

// SignedDataContent unwraps the SignedData carried by the ContentInfo.
func (ci ContentInfo) SignedDataContent() (*SignedData, error) {
	if !ci.ContentType.Equal(OIDSignedData) {
		return nil, ErrNotSignedData
	}
	sd := new(SignedData)
	rest, err := asn1.Unmarshal(ci.Content.Bytes, sd)
	if err != nil {
		return nil, &ParseError{Reason: "invalid SignedData", Err: err}
	}
	if len(rest) > 0 {
		return nil, &ParseError{Reason: "trailing data after SignedData"}
	}
	return sd, nil
}

// ParseSignedData parses a DER ContentInfo and unwraps its SignedData.
func ParseSignedData(der []byte) (*SignedData, error) {
	ci, err := ParseContentInfo(der)
	if err != nil {
		return nil, err
	}
	return ci.SignedDataContent()
}

// ContentInfoDER wraps the SignedData in a ContentInfo and DER encodes it.
func (sd *SignedData) ContentInfoDER() ([]byte, error) {
	der, err := asn1.Marshal(*sd)
	if err != nil {
		return nil, fmt.Errorf("marshal SignedData: %w", err)
	}
	ci := ContentInfo{
		ContentType: OIDSignedData,
		Content: asn1.RawValue{
			Class:      asn1.ClassContextSpecific,
			Tag:        0,
			Bytes:      der,
			IsCompound: true,
		},
	}
	return asn1.Marshal(ci)
}

// X509Certificates decodes the certificate set, assuming X.509 encoding.
func (sd *SignedData) X509Certificates() ([]*x509.Certificate, error) {
	certs := make([]*x509.Certificate, 0, len(sd.Certificates))
	for _, raw := range sd.Certificates {
		if raw.Class != asn1.ClassUniversal || raw.Tag != asn1.TagSequence {
			return nil, &ParseError{Reason: fmt.Sprintf("unsupported certificate choice (class %d, tag %d)", raw.Class, raw.Tag)}
		}
		cert, err := x509.ParseCertificate(raw.FullBytes)
		if err != nil {
			return nil, &ParseError{Reason: "invalid certificate in CertificateSet", Err: err}
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

// IsDetached reports whether the encapsulated content is absent.
func (sd *SignedData) IsDetached() bool {
	return len(sd.EncapContentInfo.EContent.Bytes) == 0 && len(sd.EncapContentInfo.EContent.FullBytes) == 0
}

// SignedAttrsForVerification re-emits the signed attributes the way they were
// fed to the signer. Per RFC 5652 §5.4 the [0] IMPLICIT tag is replaced by an
// EXPLICIT SET OF tag; tag and length octets are otherwise identical, so a
// single byte swap reproduces the signed encoding exactly.
func (si SignerInfo) SignedAttrsForVerification() ([]byte, error) {
	if len(si.RawSignedAttrs.FullBytes) == 0 {
		return nil, errors.New("cms: signer info has no signed attributes")
	}
	der := make([]byte, len(si.RawSignedAttrs.FullBytes))
	copy(der, si.RawSignedAttrs.FullBytes)
	der[0] = 0x31
	return der, nil
}

// SignedAttributes parses the individual attributes of the signed SET.
func (si SignerInfo) SignedAttributes() ([]Attribute, error) {
	if len(si.RawSignedAttrs.FullBytes) == 0 {
		return nil, nil
	}
	return parseAttributeSet(si.RawSignedAttrs.Bytes)
}

// UnsignedAttributes parses the individual attributes of the unsigned SET.
func (si SignerInfo) UnsignedAttributes() ([]Attribute, error) {
	if len(si.RawUnsignedAttrs.FullBytes) == 0 {
		return nil, nil
	}
	return parseAttributeSet(si.RawUnsignedAttrs.Bytes)
}

// IssuerAndSerial decodes the SID, assuming the issuerAndSerialNumber choice
// (version 1 signer infos).
func (si SignerInfo) IssuerAndSerial() (IssuerAndSerialNumber, error) {
	var isn IssuerAndSerialNumber
	if si.SID.Class != asn1.ClassUniversal || si.SID.Tag != asn1.TagSequence {
		return isn, errors.New("cms: signer identifier is not issuerAndSerialNumber")
	}
	rest, err := asn1.Unmarshal(si.SID.FullBytes, &isn)
	if err != nil {
		return isn, &ParseError{Reason: "invalid IssuerAndSerialNumber", Err: err}
	}
	if len(rest) > 0 {
		return isn, &ParseError{Reason: "trailing data after IssuerAndSerialNumber"}
	}
	return isn, nil
}

// FindCertificate selects the signer certificate from certs by
// IssuerAndSerialNumber. Callers fall back to the first certificate when no
// match is found.
func (si SignerInfo) FindCertificate(certs []*x509.Certificate) *x509.Certificate {
	isn, err := si.IssuerAndSerial()
	if err != nil {
		return nil
	}
	for _, cert := range certs {
		if bytes.Equal(cert.RawIssuer, isn.Issuer.FullBytes) && isn.SerialNumber.Cmp(cert.SerialNumber) == 0 {
			return cert
		}
	}
	return nil
}

// FindAttribute returns the first attribute with the given type, or nil.
func FindAttribute(attrs []Attribute, oid asn1.ObjectIdentifier) *Attribute {
	for i := range attrs {
		if attrs[i].Type.Equal(oid) {
			return &attrs[i]
		}
	}
	return nil
}

// parseAttributeSet walks the concatenated Attribute SEQUENCEs inside a SET
// or [0]/[1] IMPLICIT block.
func parseAttributeSet(content []byte) ([]Attribute, error) {
	var attrs []Attribute
	rest := content
	for len(rest) > 0 {
		var attr struct {
			Type      asn1.ObjectIdentifier
			RawValues asn1.RawValue
		}
		var err error
		rest, err = asn1.Unmarshal(rest, &attr)
		if err != nil {
			return nil, &ParseError{Reason: "invalid Attribute", Err: err}
		}
		attrs = append(attrs, Attribute(attr))
	}
	return attrs, nil
}

// newIssuerAndSerialRaw builds the SID raw value for a certificate.
func newIssuerAndSerialRaw(cert *x509.Certificate) (asn1.RawValue, error) {
	var rv asn1.RawValue
	sid := IssuerAndSerialNumber{SerialNumber: new(big.Int).Set(cert.SerialNumber)}
	if _, err := asn1.Unmarshal(cert.RawIssuer, &sid.Issuer); err != nil {
		return rv, fmt.Errorf("decode issuer name: %w", err)
	}
	der, err := asn1.Marshal(sid)
	if err != nil {
		return rv, err
	}
	if _, err := asn1.Unmarshal(der, &rv); err != nil {
		return rv, err
	}
	return rv, nil
}
