package cms

import (
	"bytes"
	"crypto/sha256"
	"crypto/x509"
	"fmt"
	"sort"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// BuildSignedAttributes produces the DER SET OF Attribute an external signer
// signs for a PAdES baseline signature: contentType (id-data), messageDigest
// (the ByteRange SHA-256) and signingCertificateV2 (RFC 5035). The SET is in
// DER canonical order; its exact bytes are the signing input.
//
// signingTime is deliberately never emitted, PAdES baseline forbids it.
func BuildSignedAttributes(cert *x509.Certificate, messageDigest []byte) ([]byte, error) {
	if cert == nil {
		return nil, &InvalidCertificateError{Reason: "signer certificate is required"}
	}
	if len(messageDigest) != sha256.Size {
		return nil, &ParseError{Reason: fmt.Sprintf("message digest must be %d octets, got %d", sha256.Size, len(messageDigest))}
	}

	contentType, err := buildContentTypeAttribute()
	if err != nil {
		return nil, err
	}
	digest, err := buildMessageDigestAttribute(messageDigest)
	if err != nil {
		return nil, err
	}
	signingCert, err := buildSigningCertificateV2Attribute(cert)
	if err != nil {
		return nil, err
	}

	return marshalAttributeSet([][]byte{contentType, digest, signingCert})
}

// ReencodeSignedAttributes parses a SET OF Attribute and re-emits it through
// the same canonical path BuildSignedAttributes uses. Finalize relies on the
// result being byte-equal to the pre-sign output, and the verifier uses it to
// reconstruct the signed bytes from a parsed SignerInfo.
func ReencodeSignedAttributes(setDER []byte) ([]byte, error) {
	attrs, err := ParseSignedAttributes(setDER)
	if err != nil {
		return nil, err
	}
	return MarshalAttributes(attrs)
}

// ParseSignedAttributes splits a DER SET OF Attribute into its attributes.
func ParseSignedAttributes(setDER []byte) ([]Attribute, error) {
	input := cryptobyte.String(setDER)
	var content cryptobyte.String
	if !input.ReadASN1(&content, cryptobyte_asn1.SET) || !input.Empty() {
		return nil, &ParseError{Reason: "signed attributes are not a DER SET"}
	}
	return parseAttributeSet([]byte(content))
}

// MarshalAttributes emits attributes as a canonically ordered DER SET.
func MarshalAttributes(attrs []Attribute) ([]byte, error) {
	encoded := make([][]byte, 0, len(attrs))
	for _, attr := range attrs {
		der, err := marshalAttribute(attr)
		if err != nil {
			return nil, err
		}
		encoded = append(encoded, der)
	}
	return marshalAttributeSet(encoded)
}

func marshalAttribute(attr Attribute) ([]byte, error) {
	var b cryptobyte.Builder
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1ObjectIdentifier(attr.Type)
		b.AddBytes(attr.RawValues.FullBytes)
	})
	return b.Bytes()
}

// marshalAttributeSet sorts the encoded attributes ascending by their DER and
// wraps them in a SET. Each element encoding is a separate slice, not a
// region of one shared buffer; sorting moves only the slice headers, and the
// encoded bytes are copied once more into the SET.
func marshalAttributeSet(encoded [][]byte) ([]byte, error) {
	sort.Slice(encoded, func(i, j int) bool {
		return bytes.Compare(encoded[i], encoded[j]) < 0
	})
	var b cryptobyte.Builder
	b.AddASN1(cryptobyte_asn1.SET, func(b *cryptobyte.Builder) {
		for _, der := range encoded {
			b.AddBytes(der)
		}
	})
	return b.Bytes()
}

func buildContentTypeAttribute() ([]byte, error) {
	var b cryptobyte.Builder
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1ObjectIdentifier(OIDAttributeContentType)
		b.AddASN1(cryptobyte_asn1.SET, func(b *cryptobyte.Builder) {
			b.AddASN1ObjectIdentifier(OIDData)
		})
	})
	return b.Bytes()
}

func buildMessageDigestAttribute(digest []byte) ([]byte, error) {
	var b cryptobyte.Builder
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1ObjectIdentifier(OIDAttributeMessageDigest)
		b.AddASN1(cryptobyte_asn1.SET, func(b *cryptobyte.Builder) {
			b.AddASN1OctetString(digest)
		})
	})
	return b.Bytes()
}

// buildSigningCertificateV2Attribute builds the RFC 5035 attribute binding
// the signature to the signer certificate:
//
//	SigningCertificateV2 ::= SEQUENCE { certs SEQUENCE OF ESSCertIDv2 }
//	ESSCertIDv2 ::= SEQUENCE {
//	  hashAlgorithm AlgorithmIdentifier DEFAULT sha256,
//	  certHash OCTET STRING,
//	  issuerSerial IssuerSerial OPTIONAL }
//
// The digest is SHA-256, so hashAlgorithm is omitted per DER DEFAULT rules.
// IssuerSerial carries the issuer as a directoryName GeneralName.
func buildSigningCertificateV2Attribute(cert *x509.Certificate) ([]byte, error) {
	certHash := sha256.Sum256(cert.Raw)

	var b cryptobyte.Builder
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1ObjectIdentifier(OIDAttributeSigningCertificateV2)
		b.AddASN1(cryptobyte_asn1.SET, func(b *cryptobyte.Builder) {
			b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // SigningCertificateV2
				b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // SEQUENCE OF ESSCertIDv2
					b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // ESSCertIDv2
						b.AddASN1OctetString(certHash[:])
						b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // IssuerSerial
							b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // GeneralNames
								// GeneralName directoryName [4] EXPLICIT Name
								b.AddASN1(cryptobyte_asn1.Tag(4).Constructed().ContextSpecific(), func(b *cryptobyte.Builder) {
									b.AddBytes(cert.RawIssuer)
								})
							})
							b.AddASN1BigInt(cert.SerialNumber)
						})
					})
				})
			})
		})
	})
	return b.Bytes()
}
