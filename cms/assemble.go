package cms

import (
	"bytes"
	"context"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// TimestampToken is an RFC 3161 token with the fields reported to callers.
type TimestampToken struct {
	// Token is the DER TimeStampToken (a ContentInfo).
	Token    []byte
	GenTime  time.Time
	Serial   string
	Accuracy string
}

// Timestamper obtains an RFC 3161 token over the given data.
type Timestamper interface {
	Timestamp(ctx context.Context, data []byte) (*TimestampToken, error)
}

// ChainResolver discovers the issuing chain of a certificate, end-entity
// first.
type ChainResolver interface {
	Build(ctx context.Context, cert *x509.Certificate) ([]*x509.Certificate, error)
}

// AssembleInput carries everything needed to wrap an externally produced
// signature into a detached CMS container.
type AssembleInput struct {
	// SignedAttrsDER is the canonical SET OF Attribute returned by the
	// pre-sign step; the signature below covers exactly these bytes.
	SignedAttrsDER []byte
	Signature      []byte
	SignerCert     *x509.Certificate
	Chain          []*x509.Certificate

	// SignatureAlgorithm defaults to sha256WithRSAEncryption.
	SignatureAlgorithm asn1.ObjectIdentifier

	WithTimestamp bool
}

// AssembleResult is the assembled container plus the timestamp outcome.
type AssembleResult struct {
	CMSDER      []byte
	Timestamped bool
	Timestamp   *TimestampToken
}

// Assembler builds ContentInfo{SignedData} containers. TSA and Chains are
// optional collaborators; tests substitute fakes for both.
type Assembler struct {
	TSA    Timestamper
	Chains ChainResolver

	// ChainHint decides whether an empty caller-supplied chain should be
	// completed through the AIA resolver. Defaults to never.
	ChainHint func(*x509.Certificate) bool

	Logger *zap.Logger
}

func (a *Assembler) logger() *zap.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return zap.NewNop()
}

// Assemble builds the detached SignedData for the given signature. A TSA
// failure is never fatal: the container is downgraded to B-B and the error is
// only logged, because the signature itself is complete without the token.
func (a *Assembler) Assemble(ctx context.Context, in AssembleInput) (*AssembleResult, error) {
	if in.SignerCert == nil {
		return nil, &InvalidCertificateError{Reason: "signer certificate is required"}
	}
	// Parsing validates the supplied SET and guarantees the attributes the
	// signer saw are the ones serialized into SignerInfo.signedAttrs.
	if _, err := ParseSignedAttributes(in.SignedAttrsDER); err != nil {
		return nil, err
	}

	sid, err := newIssuerAndSerialRaw(in.SignerCert)
	if err != nil {
		return nil, &InvalidCertificateError{Reason: "signer certificate issuer name", Err: err}
	}

	chain := in.Chain
	if len(chain) == 0 && a.ChainHint != nil && a.ChainHint(in.SignerCert) && a.Chains != nil {
		resolved, err := a.Chains.Build(ctx, in.SignerCert)
		if err != nil {
			a.logger().Warn("chain autodiscovery incomplete",
				zap.String("subject", in.SignerCert.Subject.String()),
				zap.Error(err))
		}
		if len(resolved) > 1 {
			chain = resolved[1:]
		}
	}

	sigAlg := in.SignatureAlgorithm
	if len(sigAlg) == 0 {
		sigAlg = OIDSignatureSHA256WithRSA
	}

	si := SignerInfo{
		Version:         1,
		SID:             sid,
		DigestAlgorithm: pkix.AlgorithmIdentifier{Algorithm: OIDDigestAlgorithmSHA256},
		RawSignedAttrs:  implicitRetag(in.SignedAttrsDER, 0xA0),
		SignatureAlgorithm: pkix.AlgorithmIdentifier{
			Algorithm:  sigAlg,
			Parameters: asn1.NullRawValue,
		},
		Signature: in.Signature,
	}

	result := &AssembleResult{}
	if in.WithTimestamp {
		token, err := a.requestTimestamp(ctx, in.Signature)
		if err != nil {
			a.logger().Warn("timestamp token unavailable, downgrading signature to B-B", zap.Error(err))
		} else {
			unsigned, err := marshalTimestampUnsignedAttrs(token.Token)
			if err != nil {
				return nil, err
			}
			si.RawUnsignedAttrs = unsigned
			result.Timestamped = true
			result.Timestamp = token
		}
	}

	sd := &SignedData{
		Version:          1,
		DigestAlgorithms: []pkix.AlgorithmIdentifier{{Algorithm: OIDDigestAlgorithmSHA256}},
		EncapContentInfo: EncapsulatedContentInfo{EContentType: OIDData},
		Certificates:     certificateSet(in.SignerCert, chain),
		SignerInfos:      []SignerInfo{si},
	}

	der, err := sd.ContentInfoDER()
	if err != nil {
		return nil, err
	}
	result.CMSDER = der
	return result, nil
}

func (a *Assembler) requestTimestamp(ctx context.Context, signature []byte) (*TimestampToken, error) {
	if a.TSA == nil {
		return nil, &ParseError{Reason: "no timestamp authority configured"}
	}
	return a.TSA.Timestamp(ctx, signature)
}

// certificateSet lists the signer followed by the chain intermediates. Roots
// (self-issued certificates from the chain) are never included.
func certificateSet(signer *x509.Certificate, chain []*x509.Certificate) []asn1.RawValue {
	rawCert := func(cert *x509.Certificate) asn1.RawValue {
		var rv asn1.RawValue
		if _, err := asn1.Unmarshal(cert.Raw, &rv); err != nil {
			rv = asn1.RawValue{FullBytes: cert.Raw}
		}
		return rv
	}

	set := []asn1.RawValue{rawCert(signer)}
	for _, cert := range chain {
		if bytes.Equal(cert.RawSubject, cert.RawIssuer) {
			continue
		}
		if bytes.Equal(cert.Raw, signer.Raw) {
			continue
		}
		set = append(set, rawCert(cert))
	}
	return set
}

// implicitRetag copies a DER element and replaces its outer tag, turning the
// EXPLICIT SET OF of the signed encoding into the [0] IMPLICIT form used
// inside SignerInfo (and back). Tag and length octets are the same width, so
// only the first byte changes.
func implicitRetag(der []byte, tag byte) asn1.RawValue {
	out := make([]byte, len(der))
	copy(out, der)
	out[0] = tag
	return asn1.RawValue{FullBytes: out}
}

// marshalTimestampUnsignedAttrs wraps a TimeStampToken in the single
// id-aa-signatureTimeStampToken attribute of unsignedAttrs.
func marshalTimestampUnsignedAttrs(token []byte) (asn1.RawValue, error) {
	var attr cryptobyte.Builder
	attr.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1ObjectIdentifier(OIDAttributeTimeStampToken)
		b.AddASN1(cryptobyte_asn1.SET, func(b *cryptobyte.Builder) {
			b.AddBytes(token)
		})
	})
	attrDER, err := attr.Bytes()
	if err != nil {
		return asn1.RawValue{}, &ParseError{Reason: "marshal timestamp attribute", Err: err}
	}

	var set cryptobyte.Builder
	set.AddASN1(cryptobyte_asn1.Tag(1).Constructed().ContextSpecific(), func(b *cryptobyte.Builder) {
		b.AddBytes(attrDER)
	})
	full, err := set.Bytes()
	if err != nil {
		return asn1.RawValue{}, &ParseError{Reason: "marshal unsigned attributes", Err: err}
	}
	return asn1.RawValue{FullBytes: full}, nil
}
